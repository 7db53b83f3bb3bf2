package auth

import (
	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/provider"
)

// FactoryName is the name the auth factory registers under.
const FactoryName = "jwt"

func NewFactory(log *logger.Logger) provider.Factory {
	return provider.NewFactory(FactoryName, []provider.Type{provider.TypeAuth},
		func(_ provider.Type, cfg provider.Config) (provider.Provider, error) {
			return New(cfg, log), nil
		},
		provider.WithCapabilities(provider.CapDependencyInjection, provider.CapDiagnostics),
		provider.WithDefaults(func(t provider.Type) provider.Config {
			return provider.Config{
				Type: t,
				Settings: map[string]any{
					"method":            "HS256",
					"access_token_ttl":  "15m",
					"refresh_token_ttl": "168h",
					"hasher":            HasherBcrypt,
				},
			}
		}),
		provider.WithValidator(Validate),
	)
}

// Validate checks an auth provider configuration.
func Validate(_ provider.Type, cfg provider.Config) provider.ValidationResult {
	s, err := settingsFrom(cfg)
	if err != nil {
		return provider.ValidationResult{Errors: []string{err.Error()}}
	}
	res := provider.ValidationResult{Valid: true}
	if s.Issuer == "" {
		res.Warnings = append(res.Warnings, "issuer is empty; tokens from any issuer with the same key are accepted")
	}
	if s.Hasher == HasherBcrypt && s.BcryptCost < 10 {
		res.Warnings = append(res.Warnings, "bcrypt_cost below 10 is weak")
	}
	return res
}
