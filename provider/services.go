package provider

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/kbukum/backendkit/errors"
)

// Scope says where per-service telemetry came from.
type Scope string

const (
	// ScopeIsolated means the figures describe the service alone.
	ScopeIsolated Scope = "isolated"
	// ScopeProvider means the service cannot be observed separately and the
	// figures are the whole provider's.
	ScopeProvider Scope = "provider"
)

// ServiceHealth is the health of one sub-service.
type ServiceHealth struct {
	Service string `json:"service"`
	Enabled bool   `json:"enabled"`
	Scope   Scope  `json:"scope"`
	Health  Health `json:"health"`
}

// ServiceMetrics is the metrics of one sub-service.
type ServiceMetrics struct {
	Service string  `json:"service"`
	Scope   Scope   `json:"scope"`
	Metrics Metrics `json:"metrics"`
}

// ServiceSet is implemented by providers declaring CapMultiService.
type ServiceSet interface {
	Available() []string
	Enabled(service string) bool
	Enable(ctx context.Context, service string) error
	Disable(ctx context.Context, service string) error
	ServiceHealth(ctx context.Context, service string) (ServiceHealth, error)
	ServiceMetrics(ctx context.Context, service string) (ServiceMetrics, error)
}

// ServiceSpec describes one sub-service of a ServiceTable. Health and
// Metrics are optional; without them the service reports the provider's
// figures with ScopeProvider.
type ServiceSpec struct {
	Name      string
	Mandatory bool
	Enabled   bool
	Health    func(ctx context.Context) (Health, error)
	Metrics   func(ctx context.Context) (Metrics, error)
	// Toggle is called before the enabled flag changes; an error aborts
	// the change.
	Toggle func(ctx context.Context, enabled bool) error
}

// ServiceTable is a ServiceSet backed by a fixed list of specs.
type ServiceTable struct {
	owner   string
	health  func(ctx context.Context) (Health, error)
	metrics func(ctx context.Context) (Metrics, error)
	specs   []ServiceSpec

	// toggleMu serializes Enable and Disable so a Toggle runs at most once
	// per state change.
	toggleMu sync.Mutex

	mu      sync.RWMutex
	enabled map[string]bool
}

// NewServiceTable creates a table for provider owner. health and metrics
// are the provider-wide probes used for services without their own.
// Mandatory services start enabled.
func NewServiceTable(owner string, health func(context.Context) (Health, error), metrics func(context.Context) (Metrics, error), specs ...ServiceSpec) *ServiceTable {
	t := &ServiceTable{
		owner:   owner,
		health:  health,
		metrics: metrics,
		specs:   slices.Clone(specs),
		enabled: make(map[string]bool, len(specs)),
	}
	for _, s := range specs {
		t.enabled[s.Name] = s.Enabled || s.Mandatory
	}
	return t
}

func (t *ServiceTable) spec(service string) (ServiceSpec, error) {
	for _, s := range t.specs {
		if s.Name == service {
			return s, nil
		}
	}
	return ServiceSpec{}, errors.NotFound("service", t.owner+"/"+service)
}

func (t *ServiceTable) Available() []string {
	names := make([]string, len(t.specs))
	for i, s := range t.specs {
		names[i] = s.Name
	}
	return names
}

// EnabledServices lists the enabled services in declaration order.
func (t *ServiceTable) EnabledServices() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []string
	for _, s := range t.specs {
		if t.enabled[s.Name] {
			out = append(out, s.Name)
		}
	}
	return out
}

func (t *ServiceTable) Enabled(service string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled[service]
}

func (t *ServiceTable) Enable(ctx context.Context, service string) error {
	return t.set(ctx, service, true)
}

// Disable turns a service off. Mandatory services cannot be disabled.
func (t *ServiceTable) Disable(ctx context.Context, service string) error {
	return t.set(ctx, service, false)
}

func (t *ServiceTable) set(ctx context.Context, service string, on bool) error {
	s, err := t.spec(service)
	if err != nil {
		return err
	}
	if !on && s.Mandatory {
		return errors.Configuration(t.owner, fmt.Sprintf("service %q is mandatory and cannot be disabled", service))
	}
	t.toggleMu.Lock()
	defer t.toggleMu.Unlock()
	if t.Enabled(service) == on {
		return nil
	}
	if s.Toggle != nil {
		if err := s.Toggle(ctx, on); err != nil {
			return errors.Lifecycle(toggleOp(on), t.owner+"/"+service, err)
		}
	}
	t.mu.Lock()
	t.enabled[service] = on
	t.mu.Unlock()
	return nil
}

func toggleOp(on bool) string {
	if on {
		return "enable_service"
	}
	return "disable_service"
}

// ServiceHealth probes one service. Disabled services report HealthUnknown.
func (t *ServiceTable) ServiceHealth(ctx context.Context, service string) (ServiceHealth, error) {
	s, err := t.spec(service)
	if err != nil {
		return ServiceHealth{}, err
	}
	out := ServiceHealth{Service: service, Enabled: t.Enabled(service), Scope: ScopeIsolated}
	if !out.Enabled {
		out.Health = Health{State: HealthUnknown, Message: "service is disabled", CheckedAt: time.Now()}
		return out, nil
	}

	probe := s.Health
	if probe == nil {
		probe, out.Scope = t.health, ScopeProvider
	}
	if probe == nil {
		out.Health = Health{State: HealthUnknown, Message: "no health probe", CheckedAt: time.Now()}
		return out, nil
	}
	h, err := probe(ctx)
	if err != nil {
		h = Health{State: HealthUnhealthy, Message: err.Error(), Errors: 1, CheckedAt: time.Now()}
	}
	out.Health = h
	return out, nil
}

// ServiceMetrics reports one service's metrics.
func (t *ServiceTable) ServiceMetrics(ctx context.Context, service string) (ServiceMetrics, error) {
	s, err := t.spec(service)
	if err != nil {
		return ServiceMetrics{}, err
	}
	out := ServiceMetrics{Service: service, Scope: ScopeIsolated}
	collect := s.Metrics
	if collect == nil {
		collect, out.Scope = t.metrics, ScopeProvider
	}
	if collect == nil {
		out.Metrics = Metrics{Timestamp: time.Now()}
		return out, nil
	}
	m, err := collect(ctx)
	if err != nil {
		return ServiceMetrics{}, err
	}
	out.Metrics = m
	return out, nil
}
