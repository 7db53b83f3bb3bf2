package providertest

import (
	"slices"
	"sync"

	"github.com/kbukum/backendkit/errors"
	"github.com/kbukum/backendkit/provider"
)

// FakeFactory builds FakeProviders and keeps them for inspection.
type FakeFactory struct {
	name  string
	types []provider.Type

	mu         sync.Mutex
	caps       provider.Capabilities
	created    map[string]*FakeProvider
	createErr  error
	validation *provider.ValidationResult
	defaults   provider.Config
	onCreate   func(*FakeProvider)
}

// NewFactory creates a factory named name supporting types.
func NewFactory(name string, types ...provider.Type) *FakeFactory {
	return &FakeFactory{
		name:    name,
		types:   types,
		created: make(map[string]*FakeProvider),
	}
}

// WithCapabilities sets the capabilities of providers built afterwards.
func (f *FakeFactory) WithCapabilities(caps ...provider.Capability) *FakeFactory {
	f.mu.Lock()
	f.caps = caps
	f.mu.Unlock()
	return f
}

// OnCreate runs fn on every new provider before it is returned.
func (f *FakeFactory) OnCreate(fn func(*FakeProvider)) *FakeFactory {
	f.mu.Lock()
	f.onCreate = fn
	f.mu.Unlock()
	return f
}

// FailCreate makes Create return err.
func (f *FakeFactory) FailCreate(err error) {
	f.mu.Lock()
	f.createErr = err
	f.mu.Unlock()
}

// SetValidation fixes the ValidateConfig result.
func (f *FakeFactory) SetValidation(res provider.ValidationResult) {
	f.mu.Lock()
	f.validation = &res
	f.mu.Unlock()
}

// SetDefaults sets the DefaultConfig result.
func (f *FakeFactory) SetDefaults(cfg provider.Config) {
	f.mu.Lock()
	f.defaults = cfg
	f.mu.Unlock()
}

// Provider returns the provider built for name, or nil.
func (f *FakeFactory) Provider(name string) *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[name]
}

func (f *FakeFactory) Name() string                    { return f.name }
func (f *FakeFactory) SupportedTypes() []provider.Type { return slices.Clone(f.types) }

func (f *FakeFactory) Capabilities() provider.Capabilities {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.caps)
}

func (f *FakeFactory) Create(t provider.Type, cfg provider.Config) (provider.Provider, error) {
	if !slices.Contains(f.types, t) {
		return nil, errors.FactoryNotFound(string(t))
	}
	f.mu.Lock()
	if f.createErr != nil {
		err := f.createErr
		f.mu.Unlock()
		return nil, err
	}
	p := NewProvider(cfg, f.caps...)
	f.created[cfg.Name] = p
	hook := f.onCreate
	f.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return p, nil
}

func (f *FakeFactory) ValidateConfig(provider.Type, provider.Config) provider.ValidationResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.validation != nil {
		return *f.validation
	}
	return provider.ValidationResult{Valid: true}
}

func (f *FakeFactory) DefaultConfig(t provider.Type) provider.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg := f.defaults.Clone()
	cfg.Type = t
	return cfg
}
