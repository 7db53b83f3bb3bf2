package database

import (
	"strings"

	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/provider"
)

// FactoryName is the name the database factory registers under.
const FactoryName = "gorm"

// NewFactory returns the factory for database providers.
func NewFactory(log *logger.Logger) provider.Factory {
	return provider.NewFactory(FactoryName, []provider.Type{provider.TypeDatabase},
		func(_ provider.Type, cfg provider.Config) (provider.Provider, error) {
			return New(cfg, log), nil
		},
		provider.WithCapabilities(provider.CapDiagnostics),
		provider.WithDefaults(func(t provider.Type) provider.Config {
			return provider.Config{
				Type:       t,
				RetryCount: 2,
				Settings: map[string]any{
					"driver":         DriverSQLite,
					"max_open_conns": 10,
					"max_idle_conns": 2,
				},
			}
		}),
		provider.WithValidator(Validate),
	)
}

// Validate checks a database provider configuration.
func Validate(_ provider.Type, cfg provider.Config) provider.ValidationResult {
	s, err := settingsFrom(cfg)
	if err != nil {
		return provider.ValidationResult{Errors: []string{err.Error()}}
	}
	res := provider.ValidationResult{Valid: true}
	if strings.Contains(s.DSN, ":memory:") {
		res.Warnings = append(res.Warnings, "in-memory database loses its data when stopped")
	}
	return res
}
