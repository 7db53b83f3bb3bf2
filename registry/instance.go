package registry

import (
	"slices"
	"time"

	"github.com/kbukum/backendkit/provider"
)

// instance is the registry's record of one provider. Every field except
// the immutable identity is guarded by Registry.mu.
type instance struct {
	p            provider.Provider
	name         string
	typ          provider.Type
	factory      provider.Factory
	registeredAt time.Time

	status          provider.Status
	generation      uint64
	health          provider.Health
	dependencies    []string
	lastHealthCheck time.Time
	errorCount      int64
	warningCount    int64
	lastError       string
	metrics         []provider.Metrics
}

// Info is a point-in-time view of a registered provider.
type Info struct {
	Name            string                `json:"name"`
	Type            provider.Type         `json:"type"`
	Version         string                `json:"version"`
	Factory         string                `json:"factory"`
	Capabilities    provider.Capabilities `json:"capabilities"`
	Status          provider.Status       `json:"status"`
	Health          provider.HealthState  `json:"health"`
	HealthMessage   string                `json:"health_message,omitempty"`
	Dependencies    []string              `json:"dependencies"`
	Dependents      []string              `json:"dependents"`
	RegisteredAt    time.Time             `json:"registered_at"`
	LastHealthCheck *time.Time            `json:"last_health_check,omitempty"`
	ErrorCount      int64                 `json:"error_count"`
	WarningCount    int64                 `json:"warning_count"`
	LastError       string                `json:"last_error,omitempty"`
	Config          provider.Config       `json:"config"`
}

// infoLocked builds an Info. Caller holds r.mu.
func (r *Registry) infoLocked(inst *instance) Info {
	info := Info{
		Name:          inst.name,
		Type:          inst.typ,
		Version:       inst.p.Version(),
		Factory:       inst.factory.Name(),
		Capabilities:  inst.p.Capabilities(),
		Status:        inst.status,
		Health:        inst.health.State,
		HealthMessage: inst.health.Message,
		Dependencies:  slices.Clone(inst.dependencies),
		Dependents:    r.dependentsLocked(inst.name),
		RegisteredAt:  inst.registeredAt,
		ErrorCount:    inst.errorCount,
		WarningCount:  inst.warningCount,
		LastError:     inst.lastError,
		Config:        inst.p.Config().Redacted(),
	}
	if !inst.lastHealthCheck.IsZero() {
		t := inst.lastHealthCheck
		info.LastHealthCheck = &t
	}
	if info.Dependencies == nil {
		info.Dependencies = []string{}
	}
	return info
}

// dependentsLocked returns the providers that declare name as a dependency,
// in registration order. It is derived from the dependency lists so the two
// directions can never disagree.
func (r *Registry) dependentsLocked(name string) []string {
	out := []string{}
	for _, other := range r.order {
		if slices.Contains(r.instances[other].dependencies, name) {
			out = append(out, other)
		}
	}
	return out
}

// markFailed moves the provider to failed and records err. Caller holds
// r.mu.
func (inst *instance) markFailed(err error) {
	inst.status = provider.StatusFailed
	inst.generation++
	inst.recordFailure(err)
}

// recordFailure bumps the error counter. Caller holds r.mu.
func (inst *instance) recordFailure(err error) {
	inst.errorCount++
	if err != nil {
		inst.lastError = err.Error()
	}
}
