package allinone

import (
	"fmt"
	"time"

	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/provider"
)

// FactoryName is the name the all-in-one factory registers under.
const FactoryName = "bundle"

func NewFactory(log *logger.Logger) provider.Factory {
	return provider.NewFactory(FactoryName, []provider.Type{provider.TypeAllInOne},
		func(_ provider.Type, cfg provider.Config) (provider.Provider, error) {
			return New(cfg, log), nil
		},
		provider.WithCapabilities(provider.CapMultiService, provider.CapSetupAutomation, provider.CapDiagnostics),
		provider.WithDefaults(func(t provider.Type) provider.Config {
			return provider.Config{
				Type:     t,
				Timeout:  time.Minute,
				Features: map[string]bool{ServiceStorage: true},
				Settings: map[string]any{
					ServiceDatabase: map[string]any{"driver": "sqlite"},
					ServiceStorage:  map[string]any{"driver": "local", "base_path": "./data/storage"},
				},
			}
		}),
		provider.WithValidator(Validate),
	)
}

// Validate checks every enabled member's section with that member's own
// validator. Messages are prefixed with the service name.
func Validate(_ provider.Type, cfg provider.Config) provider.ValidationResult {
	res := provider.ValidationResult{Valid: true}
	for _, svc := range serviceOrder {
		if !initiallyEnabled(cfg, svc) {
			continue
		}
		if raw, ok := cfg.Settings[svc]; ok {
			if _, isMap := raw.(map[string]any); !isMap {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: settings section must be a map", svc))
				continue
			}
		}
		member := validators[svc](serviceTypes[svc], memberConfig(cfg, svc))
		for _, e := range member.Errors {
			res.Errors = append(res.Errors, svc+": "+e)
		}
		for _, w := range member.Warnings {
			res.Warnings = append(res.Warnings, svc+": "+w)
		}
	}
	res.Valid = len(res.Errors) == 0
	return res
}
