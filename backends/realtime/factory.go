package realtime

import (
	"time"

	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/provider"
)

// FactoryName is the name the realtime factory registers under.
const FactoryName = "redis-pubsub"

func NewFactory(log *logger.Logger) provider.Factory {
	return provider.NewFactory(FactoryName, []provider.Type{provider.TypeRealtime},
		func(_ provider.Type, cfg provider.Config) (provider.Provider, error) {
			return New(cfg, log), nil
		},
		provider.WithCapabilities(provider.CapDiagnostics),
		provider.WithDefaults(func(t provider.Type) provider.Config {
			return provider.Config{
				Type:       t,
				RetryCount: 3,
				Timeout:    10 * time.Second,
				Settings:   map[string]any{"addr": "localhost:6379", "pool_size": 10},
			}
		}),
		provider.WithValidator(Validate),
	)
}

// Validate checks a realtime provider configuration.
func Validate(_ provider.Type, cfg provider.Config) provider.ValidationResult {
	if _, err := settingsFrom(cfg); err != nil {
		return provider.ValidationResult{Errors: []string{err.Error()}}
	}
	return provider.ValidationResult{Valid: true}
}
