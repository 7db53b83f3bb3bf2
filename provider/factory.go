package provider

import (
	"fmt"
	"slices"
)

// Factory constructs providers for the types it supports.
type Factory interface {
	Name() string
	SupportedTypes() []Type
	Capabilities() Capabilities
	Create(t Type, cfg Config) (Provider, error)
	ValidateConfig(t Type, cfg Config) ValidationResult
	DefaultConfig(t Type) Config
}

// ValidationResult is a factory's verdict on a configuration.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Supports reports whether f can construct t.
func Supports(f Factory, t Type) bool {
	return slices.Contains(f.SupportedTypes(), t)
}

// CreateFunc constructs a provider.
type CreateFunc func(t Type, cfg Config) (Provider, error)

// FactoryOption configures a factory built by NewFactory.
type FactoryOption func(*funcFactory)

// WithValidator sets the configuration validator.
func WithValidator(fn func(t Type, cfg Config) ValidationResult) FactoryOption {
	return func(f *funcFactory) { f.validate = fn }
}

// WithDefaults sets the default configuration builder.
func WithDefaults(fn func(t Type) Config) FactoryOption {
	return func(f *funcFactory) { f.defaults = fn }
}

// WithCapabilities declares the capabilities of created providers.
func WithCapabilities(caps ...Capability) FactoryOption {
	return func(f *funcFactory) { f.caps = caps }
}

type funcFactory struct {
	name     string
	types    []Type
	caps     Capabilities
	create   CreateFunc
	validate func(Type, Config) ValidationResult
	defaults func(Type) Config
}

// NewFactory builds a Factory from functions. Without a validator every
// configuration is valid; without a defaults builder DefaultConfig returns
// a config carrying only the type and the package defaults.
func NewFactory(name string, types []Type, create CreateFunc, opts ...FactoryOption) Factory {
	f := &funcFactory{name: name, types: slices.Clone(types), create: create}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *funcFactory) Name() string               { return f.name }
func (f *funcFactory) SupportedTypes() []Type     { return slices.Clone(f.types) }
func (f *funcFactory) Capabilities() Capabilities { return slices.Clone(f.caps) }

func (f *funcFactory) Create(t Type, cfg Config) (Provider, error) {
	if !slices.Contains(f.types, t) {
		return nil, fmt.Errorf("factory %s does not support type %s", f.name, t)
	}
	return f.create(t, cfg)
}

func (f *funcFactory) ValidateConfig(t Type, cfg Config) ValidationResult {
	if f.validate == nil {
		return ValidationResult{Valid: true}
	}
	return f.validate(t, cfg)
}

func (f *funcFactory) DefaultConfig(t Type) Config {
	if f.defaults != nil {
		return f.defaults(t)
	}
	cfg := Config{Type: t}
	cfg.ApplyDefaults()
	return cfg
}
