package provider

import "slices"

// Type identifies a kind of backend. The set is open; these are the
// built-in kinds.
type Type string

const (
	TypeDatabase Type = "database"
	TypeAuth     Type = "auth"
	TypeEmail    Type = "email"
	TypeStorage  Type = "storage"
	TypeRealtime Type = "realtime"
	TypeAllInOne Type = "all-in-one"
)

// Status is the lifecycle state of a registered provider.
type Status string

const (
	StatusRegistered   Status = "registered"
	StatusInitializing Status = "initializing"
	StatusActive       Status = "active"
	StatusDegraded     Status = "degraded"
	StatusFailed       Status = "failed"
	StatusStopped      Status = "stopped"
)

// Running reports whether the provider is serving requests.
func (s Status) Running() bool {
	return s == StatusActive || s == StatusDegraded
}

// HealthState is the observed condition reported by a health probe.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
	HealthUnknown   HealthState = "unknown"
)

// Capability is an optional feature a provider or factory declares.
type Capability string

const (
	CapDependencyInjection Capability = "dependency-injection"
	CapMultiService        Capability = "multi-service"
	CapSetupAutomation     Capability = "setup-automation"
	CapWizardIntegration   Capability = "wizard-integration"
	CapDiagnostics         Capability = "diagnostics"
)

// Capabilities is a declared capability set.
type Capabilities []Capability

// Has reports whether c is declared.
func (cs Capabilities) Has(c Capability) bool {
	return slices.Contains(cs, c)
}

// Enhanced reports whether any capability beyond dependency injection is
// declared. Providers without one behave as basic providers.
func (cs Capabilities) Enhanced() bool {
	for _, c := range cs {
		if c != CapDependencyInjection {
			return true
		}
	}
	return false
}
