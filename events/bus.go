package events

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/backendkit/logger"
)

// DefaultHistorySize bounds the event history.
const DefaultHistorySize = 1000

// Handler receives delivered events.
type Handler func(Event)

// Subscription identifies a registered handler for Off.
type Subscription struct {
	id  uint64
	typ Type
	all bool
}

// Type returns the subscribed event type, or "" for OnAll subscriptions.
func (s Subscription) Type() Type { return s.typ }

type subscriber struct {
	id      uint64
	handler Handler
}

// Bus stores events and fans them out to subscribers.
type Bus struct {
	mu     sync.RWMutex
	ring   []Event
	start  int
	n      int
	counts map[Type]int64

	subsMu sync.RWMutex
	byType map[Type][]subscriber
	all    []subscriber
	nextID uint64

	log *logger.Logger
	now func() time.Time
}

// Option configures a Bus.
type Option func(*Bus)

// WithHistorySize bounds the history to size events.
func WithHistorySize(size int) Option {
	return func(b *Bus) {
		if size > 0 {
			b.ring = make([]Event, size)
		}
	}
}

// WithLogger sets the logger used to report subscriber panics.
func WithLogger(l *logger.Logger) Option {
	return func(b *Bus) { b.log = l }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// NewBus creates a Bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		ring:   make([]Event, DefaultHistorySize),
		counts: make(map[Type]int64),
		byType: make(map[Type][]subscriber),
		log:    logger.Get("events"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Emit records an event and delivers it to the subscribers of its type,
// then to OnAll subscribers, each in registration order.
func (b *Bus) Emit(t Type, providerID string, data map[string]any, err error) Event {
	ev := Event{
		ID:         uuid.NewString(),
		Type:       t,
		ProviderID: providerID,
		Timestamp:  b.now(),
		Severity:   t.Severity(),
		Data:       data,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	ev = ev.clone()

	b.mu.Lock()
	b.push(ev)
	b.counts[t]++
	b.mu.Unlock()

	b.subsMu.RLock()
	targets := make([]subscriber, 0, len(b.byType[t])+len(b.all))
	targets = append(targets, b.byType[t]...)
	targets = append(targets, b.all...)
	b.subsMu.RUnlock()

	for _, s := range targets {
		b.deliver(s, ev)
	}
	return ev.clone()
}

// push appends ev, overwriting the oldest entry when full. Caller holds mu.
func (b *Bus) push(ev Event) {
	size := len(b.ring)
	if b.n < size {
		b.ring[(b.start+b.n)%size] = ev
		b.n++
		return
	}
	b.ring[b.start] = ev
	b.start = (b.start + 1) % size
}

func (b *Bus) deliver(s subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event subscriber panicked", logger.Fields(
				logger.FieldEvent, string(ev.Type),
				logger.FieldProvider, ev.ProviderID,
				logger.FieldError, fmt.Sprint(r),
			))
		}
	}()
	s.handler(ev.clone())
}

// On subscribes h to events of type t.
func (b *Bus) On(t Type, h Handler) Subscription {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	b.nextID++
	b.byType[t] = append(b.byType[t], subscriber{id: b.nextID, handler: h})
	return Subscription{id: b.nextID, typ: t}
}

// OnAll subscribes h to every event type.
func (b *Bus) OnAll(h Handler) Subscription {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	b.nextID++
	b.all = append(b.all, subscriber{id: b.nextID, handler: h})
	return Subscription{id: b.nextID, all: true}
}

// Off removes a subscription. It reports whether one was removed.
func (b *Bus) Off(sub Subscription) bool {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()

	match := func(s subscriber) bool { return s.id == sub.id }
	if sub.all {
		before := len(b.all)
		b.all = slices.DeleteFunc(b.all, match)
		return len(b.all) != before
	}
	list := b.byType[sub.typ]
	before := len(list)
	list = slices.DeleteFunc(list, match)
	if len(list) == 0 {
		delete(b.byType, sub.typ)
	} else {
		b.byType[sub.typ] = list
	}
	return len(list) != before
}

// SubscriberCount returns the number of handlers that would receive t.
func (b *Bus) SubscriberCount(t Type) int {
	b.subsMu.RLock()
	defer b.subsMu.RUnlock()
	return len(b.byType[t]) + len(b.all)
}

// History returns stored events oldest first. A non-empty providerID keeps
// only that provider's events; a positive limit keeps the most recent limit.
func (b *Bus) History(providerID string, limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Event, 0, b.n)
	for i := 0; i < b.n; i++ {
		ev := b.ring[(b.start+i)%len(b.ring)]
		if providerID != "" && ev.ProviderID != providerID {
			continue
		}
		out = append(out, ev.clone())
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Len returns the number of stored events.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.n
}

// Counts returns how many events of each type were emitted since the bus
// was created, including evicted ones.
func (b *Bus) Counts() map[Type]int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[Type]int64, len(b.counts))
	for k, v := range b.counts {
		out[k] = v
	}
	return out
}
