package registry

import (
	"context"

	"github.com/kbukum/backendkit/events"
)

// Emit records an event on the registry's bus and counts it. Code layered
// on the registry emits through here rather than on the bus directly.
func (r *Registry) Emit(ctx context.Context, t events.Type, name string, data map[string]any, err error) events.Event {
	ev := r.bus.Emit(t, name, data, err)
	r.instruments.RecordEvent(ctx, string(ev.Type), string(ev.Severity))
	return ev
}

// ProviderEvents returns the stored events of one provider, oldest first.
// A positive limit keeps the most recent limit.
func (r *Registry) ProviderEvents(name string, limit int) []events.Event {
	return r.bus.History(name, limit)
}

// AllEvents returns the stored events of every provider, oldest first.
func (r *Registry) AllEvents(limit int) []events.Event {
	return r.bus.History("", limit)
}

// SubscribeToEvents registers h for events of type t.
func (r *Registry) SubscribeToEvents(t events.Type, h events.Handler) events.Subscription {
	return r.bus.On(t, h)
}

// SubscribeToAllEvents registers h for every event type.
func (r *Registry) SubscribeToAllEvents(h events.Handler) events.Subscription {
	return r.bus.OnAll(h)
}

// Unsubscribe removes a subscription.
func (r *Registry) Unsubscribe(sub events.Subscription) bool {
	return r.bus.Off(sub)
}
