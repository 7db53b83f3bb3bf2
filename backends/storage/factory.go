package storage

import (
	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/provider"
)

// FactoryName is the name the storage factory registers under.
const FactoryName = "objectstore"

func NewFactory(log *logger.Logger) provider.Factory {
	return provider.NewFactory(FactoryName, []provider.Type{provider.TypeStorage},
		func(_ provider.Type, cfg provider.Config) (provider.Provider, error) {
			return New(cfg, log), nil
		},
		provider.WithCapabilities(provider.CapDiagnostics),
		provider.WithDefaults(func(t provider.Type) provider.Config {
			return provider.Config{
				Type:     t,
				Settings: map[string]any{"driver": DriverLocal, "base_path": "./data/storage"},
			}
		}),
		provider.WithValidator(Validate),
	)
}

// Validate checks a storage provider configuration.
func Validate(_ provider.Type, cfg provider.Config) provider.ValidationResult {
	s, err := settingsFrom(cfg)
	if err != nil {
		return provider.ValidationResult{Errors: []string{err.Error()}}
	}
	res := provider.ValidationResult{Valid: true}
	if s.Driver == DriverS3 && s.AccessKey == "" {
		res.Warnings = append(res.Warnings, "no static credentials; the default AWS credential chain is used")
	}
	return res
}
