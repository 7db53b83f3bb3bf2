// Package validation checks provider configuration.
//
// Struct tag validation covers the fixed configuration fields:
//
//	type Config struct {
//	    Name string `validate:"required,provider_name"`
//	}
//	err := validation.Struct("db", cfg)
//
// Factories check the free-form settings payload with a Validator, which
// collects errors and warnings instead of failing on the first problem:
//
//	v := validation.New()
//	v.RequiredSetting(cfg.Settings, "dsn")
//	v.Warn("pool_size", "not set, using default")
//	return provider.ValidationResult{Valid: !v.HasErrors(), Errors: v.Messages(), Warnings: v.Warnings()}
package validation
