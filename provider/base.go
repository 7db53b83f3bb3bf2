package provider

import (
	"context"
	"sync"
	"time"
)

// Base supplies default implementations of every Provider method. Embed it
// and override what the backend needs; most backends override Start, Stop
// and Health.
type Base struct {
	name    string
	typ     Type
	version string
	caps    Capabilities

	mu      sync.RWMutex
	cfg     Config
	deps    map[string]Provider
	running bool
	rec     *Recorder
}

// NewBase creates a Base for cfg.
func NewBase(cfg Config, version string, caps ...Capability) *Base {
	return &Base{
		name:    cfg.Name,
		typ:     cfg.Type,
		version: version,
		caps:    caps,
		cfg:     cfg.Clone(),
		deps:    make(map[string]Provider),
		rec:     NewRecorder(),
	}
}

func (b *Base) Name() string               { return b.name }
func (b *Base) Type() Type                 { return b.typ }
func (b *Base) Version() string            { return b.version }
func (b *Base) Capabilities() Capabilities { return append(Capabilities(nil), b.caps...) }

// Initialize stores cfg.
func (b *Base) Initialize(_ context.Context, cfg Config) error {
	b.mu.Lock()
	b.cfg = cfg.Clone()
	b.mu.Unlock()
	return nil
}

func (b *Base) Start(context.Context) error {
	b.SetRunning(true)
	return nil
}

func (b *Base) Stop(context.Context) error {
	b.SetRunning(false)
	return nil
}

func (b *Base) Destroy(context.Context) error {
	b.mu.Lock()
	b.running = false
	clear(b.deps)
	b.mu.Unlock()
	return nil
}

// SetRunning records whether the provider is serving.
func (b *Base) SetRunning(running bool) {
	b.mu.Lock()
	b.running = running
	b.mu.Unlock()
}

// Running reports whether Start has completed and Stop has not.
func (b *Base) Running() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// Health reports healthy while running and unhealthy otherwise.
func (b *Base) Health(context.Context) (Health, error) {
	h := Health{State: HealthHealthy, CheckedAt: time.Now()}
	if !b.Running() {
		h.State = HealthUnhealthy
		h.Message = "provider is not running"
		h.Errors = 1
	}
	return h, nil
}

// Metrics returns the recorder snapshot.
func (b *Base) Metrics(context.Context) (Metrics, error) {
	return b.rec.Snapshot(), nil
}

// Recorder returns the request recorder backing Metrics.
func (b *Base) Recorder() *Recorder {
	return b.rec
}

func (b *Base) Config() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg.Clone()
}

// UpdateConfig applies patch to the stored configuration.
func (b *Base) UpdateConfig(_ context.Context, patch ConfigPatch) error {
	b.mu.Lock()
	b.cfg = b.cfg.Apply(patch)
	b.mu.Unlock()
	return nil
}

// Dependencies returns the configured depends_on list.
func (b *Base) Dependencies() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.cfg.DependsOn...)
}

func (b *Base) SetDependency(name string, dep Provider) error {
	b.mu.Lock()
	b.deps[name] = dep
	b.mu.Unlock()
	return nil
}

// Dependency returns an injected dependency.
func (b *Base) Dependency(name string) (Provider, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.deps[name]
	return p, ok
}

func (b *Base) Services() ServiceSet                   { return nil }
func (b *Base) SetupSteps() []SetupStep                { return nil }
func (b *Base) Diagnose(context.Context) []CheckResult { return nil }
