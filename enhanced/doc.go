// Package enhanced layers multi-service providers, guided setup and
// diagnostics over a registry.
//
// A Bridge does not keep a second store: every provider lives in the
// wrapped registry and "enhanced" is a property of the provider's declared
// capabilities. Providers that declare none are reported in the fixed
// "general" category and behave exactly as they do through the registry.
//
// Per-service health and metrics carry a Scope. ScopeProvider marks a
// service that cannot be observed on its own; its figures are the whole
// provider's and must not be read as isolated telemetry.
package enhanced
