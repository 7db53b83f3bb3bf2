// Package logger provides the structured zerolog-backed logger used by the
// registry, its providers and the admin surface.
//
// Every registry component obtains a scoped logger through Get, which tags
// records with the component name. Provider-related records carry the
// FieldProvider and FieldProviderType keys so lifecycle logs can be filtered
// per provider.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.Get("registry")
//	log.Info("provider started", logger.ProviderFields("db", "database"))
package logger
