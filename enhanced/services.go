package enhanced

import (
	"context"

	"github.com/kbukum/backendkit/errors"
	"github.com/kbukum/backendkit/events"
	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/provider"
	"github.com/kbukum/backendkit/registry"
)

func (b *Bridge) services(name string) (provider.ServiceSet, error) {
	p, ok := b.reg.GetProvider(name)
	if !ok {
		return nil, errors.NotFound("provider", name)
	}
	if !p.Capabilities().Has(provider.CapMultiService) {
		return nil, errors.Unsupported(name, string(provider.CapMultiService))
	}
	set := p.Services()
	if set == nil {
		return nil, errors.Unsupported(name, string(provider.CapMultiService))
	}
	return set, nil
}

// AvailableServices lists the sub-services a provider offers.
func (b *Bridge) AvailableServices(name string) ([]string, error) {
	set, err := b.services(name)
	if err != nil {
		return nil, err
	}
	return set.Available(), nil
}

// IsServiceEnabled reports whether service is enabled on the provider.
func (b *Bridge) IsServiceEnabled(name, service string) (bool, error) {
	set, err := b.services(name)
	if err != nil {
		return false, err
	}
	return set.Enabled(service), nil
}

// EnableService enables a sub-service.
func (b *Bridge) EnableService(ctx context.Context, name, service string) error {
	return b.toggle(ctx, name, service, true)
}

// DisableService disables a sub-service. Disabling a mandatory service
// fails with a configuration error.
func (b *Bridge) DisableService(ctx context.Context, name, service string) error {
	return b.toggle(ctx, name, service, false)
}

func (b *Bridge) toggle(ctx context.Context, name, service string, on bool) error {
	set, err := b.services(name)
	if err != nil {
		return err
	}
	if on {
		err = set.Enable(ctx, service)
	} else {
		err = set.Disable(ctx, service)
	}
	if err != nil {
		return err
	}

	b.log.Info("service toggled", logger.Fields(
		logger.FieldProvider, name,
		logger.FieldService, service,
		"enabled", on,
	))
	b.reg.Emit(ctx, events.ProviderConfigUpdated, name, map[string]any{
		"service": service,
		"enabled": on,
	}, nil)
	return nil
}

// ServiceHealth reports one sub-service's health.
func (b *Bridge) ServiceHealth(ctx context.Context, name, service string) (provider.ServiceHealth, error) {
	set, err := b.services(name)
	if err != nil {
		return provider.ServiceHealth{}, err
	}
	return set.ServiceHealth(ctx, service)
}

// ServiceMetrics reports one sub-service's metrics.
func (b *Bridge) ServiceMetrics(ctx context.Context, name, service string) (provider.ServiceMetrics, error) {
	set, err := b.services(name)
	if err != nil {
		return provider.ServiceMetrics{}, err
	}
	return set.ServiceMetrics(ctx, service)
}

// HealthSummary is the registry summary plus per-service health of every
// running multi-service provider.
type HealthSummary struct {
	registry.HealthSummary
	Services map[string][]provider.ServiceHealth `json:"services,omitempty"`
}

// HealthSummary merges the registry summary with per-service health.
// A service reporting unhealthy adds a warning; it does not change the
// overall state, which follows the provider.
func (b *Bridge) HealthSummary(ctx context.Context) HealthSummary {
	s := HealthSummary{HealthSummary: b.reg.HealthSummary()}
	for _, v := range b.ListProviders() {
		if !v.MultiService || !v.Status.Running() {
			continue
		}
		for _, svc := range v.Services {
			sh, err := b.ServiceHealth(ctx, v.Name, svc)
			if err != nil {
				continue
			}
			if s.Services == nil {
				s.Services = make(map[string][]provider.ServiceHealth)
			}
			s.Services[v.Name] = append(s.Services[v.Name], sh)
			if sh.Enabled && sh.Health.State == provider.HealthUnhealthy {
				s.Warnings = append(s.Warnings, v.Name+"/"+svc+": unhealthy: "+sh.Health.Message)
			}
		}
	}
	return s
}

// MetricsSummary is the registry summary plus per-service metrics.
type MetricsSummary struct {
	registry.MetricsSummary
	Services map[string][]provider.ServiceMetrics `json:"services,omitempty"`
}

// MetricsSummary merges the registry summary with per-service metrics of
// every running multi-service provider.
func (b *Bridge) MetricsSummary(ctx context.Context) MetricsSummary {
	s := MetricsSummary{MetricsSummary: b.reg.MetricsSummary()}
	for _, v := range b.ListProviders() {
		if !v.MultiService || !v.Status.Running() {
			continue
		}
		for _, svc := range v.Enabled {
			sm, err := b.ServiceMetrics(ctx, v.Name, svc)
			if err != nil {
				b.log.Debug("service metrics unavailable", logger.MergeWithError(logger.Fields(
					logger.FieldProvider, v.Name,
					logger.FieldService, svc,
				), err))
				continue
			}
			if s.Services == nil {
				s.Services = make(map[string][]provider.ServiceMetrics)
			}
			s.Services[v.Name] = append(s.Services[v.Name], sm)
		}
	}
	return s
}
