package registry

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/kbukum/backendkit/errors"
	"github.com/kbukum/backendkit/events"
	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/observability"
	"github.com/kbukum/backendkit/provider"
)

// ConfigSource supplies fresh provider configurations on reload.
type ConfigSource interface {
	Load(ctx context.Context, name string) (provider.Config, error)
}

// Registry owns factories and provider instances.
//
// mu guards the factory list, the instance store and every instance
// record. lifeMu serializes lifecycle transitions so that bulk operations
// observe a stable startup order; health and metrics polling do not take
// it and re-check status before changing it.
type Registry struct {
	cfg Config

	mu        sync.RWMutex
	factories []provider.Factory
	instances map[string]*instance
	order     []string

	lifeMu sync.Mutex

	bus         *events.Bus
	source      ConfigSource
	instruments *observability.RegistryInstruments
	meter       metric.Meter
	log         *logger.Logger
	now         func() time.Time

	monMu      sync.Mutex
	monCancel  context.CancelFunc
	monWG      sync.WaitGroup
	monRunning bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithConfig sets monitor intervals and history bounds.
func WithConfig(cfg Config) Option {
	return func(r *Registry) { r.cfg = cfg }
}

// WithLogger sets the registry logger.
func WithLogger(l *logger.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithBus uses bus instead of creating one. EventHistorySize is ignored.
func WithBus(bus *events.Bus) Option {
	return func(r *Registry) { r.bus = bus }
}

// WithConfigSource sets where ReloadProviderConfig reads configurations.
func WithConfigSource(src ConfigSource) Option {
	return func(r *Registry) { r.source = src }
}

// WithMeter records registry metrics on meter.
func WithMeter(m metric.Meter) Option {
	return func(r *Registry) { r.meter = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		instances: make(map[string]*instance),
		log:       logger.Get("registry"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cfg.ApplyDefaults()
	if r.bus == nil {
		r.bus = events.NewBus(
			events.WithHistorySize(r.cfg.EventHistorySize),
			events.WithLogger(r.log.WithComponent("events")),
			events.WithClock(r.now),
		)
	}
	if r.meter != nil {
		ri, err := observability.NewRegistryInstruments(r.meter, r.statusCounts)
		if err != nil {
			r.log.Warn("registry instruments disabled", logger.Fields(logger.FieldError, err.Error()))
		} else {
			r.instruments = ri
		}
	}
	return r
}

// Config returns the effective registry configuration.
func (r *Registry) Config() Config { return r.cfg }

// Bus returns the event bus.
func (r *Registry) Bus() *events.Bus { return r.bus }

// RegisterFactory adds f. Factories are consulted in registration order
// and the first one supporting a type builds its providers.
func (r *Registry) RegisterFactory(f provider.Factory) error {
	if f == nil || f.Name() == "" {
		return errors.InvalidInput("factory", "factory must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if slices.ContainsFunc(r.factories, func(x provider.Factory) bool { return x.Name() == f.Name() }) {
		return errors.RegistrationConflict(f.Name()).WithDetail("resource", "factory")
	}
	r.factories = append(r.factories, f)

	types := make([]string, 0, len(f.SupportedTypes()))
	for _, t := range f.SupportedTypes() {
		types = append(types, string(t))
	}
	r.log.Info("factory registered", logger.Fields(logger.FieldFactory, f.Name(), "types", types))
	return nil
}

// UnregisterFactory removes the named factory. Providers it already built
// are unaffected. It reports whether a factory was removed.
func (r *Registry) UnregisterFactory(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := len(r.factories)
	r.factories = slices.DeleteFunc(r.factories, func(f provider.Factory) bool { return f.Name() == name })
	removed := len(r.factories) != before
	if removed {
		r.log.Info("factory unregistered", logger.Fields(logger.FieldFactory, name))
	}
	return removed
}

// ListFactories returns factory names in registration order.
func (r *Registry) ListFactories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for _, f := range r.factories {
		out = append(out, f.Name())
	}
	return out
}

// Factories returns the registered factories in registration order.
func (r *Registry) Factories() []provider.Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.factories)
}

// FactoryFor returns the first factory supporting t.
func (r *Registry) FactoryFor(t provider.Type) (provider.Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.factoryForLocked(t)
}

func (r *Registry) factoryForLocked(t provider.Type) (provider.Factory, error) {
	for _, f := range r.factories {
		if provider.Supports(f, t) {
			return f, nil
		}
	}
	return nil, errors.FactoryNotFound(string(t))
}

// emit records an event on the bus and the event counter.
func (r *Registry) emit(ctx context.Context, t events.Type, name string, data map[string]any, err error) {
	r.Emit(ctx, t, name, data, err)
}

// statusCounts feeds the providers-by-status gauge.
func (r *Registry) statusCounts() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int64)
	for _, inst := range r.instances {
		out[string(inst.status)]++
	}
	return out
}
