package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/kbukum/backendkit/events"
	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/observability"
	"github.com/kbukum/backendkit/provider"
	"github.com/kbukum/backendkit/resilience"
)

// HealthSummary aggregates the last observed health of every provider.
type HealthSummary struct {
	Overall        provider.HealthState `json:"overall"`
	Total          int                  `json:"total"`
	Healthy        int                  `json:"healthy"`
	Degraded       int                  `json:"degraded"`
	Unhealthy      int                  `json:"unhealthy"`
	Stopped        int                  `json:"stopped"`
	CriticalIssues []string             `json:"critical_issues"`
	Warnings       []string             `json:"warnings"`
}

// CheckProviderHealth probes the named provider and applies the result:
//
//   - unhealthy while running: status becomes failed, provider_failed
//   - degraded while active: status becomes degraded, provider_health_changed
//   - healthy while degraded: status returns to active, provider_health_changed
//
// A probe that errors counts as unhealthy with one error. Providers that
// are not running are not probed; their stored health is returned.
func (r *Registry) CheckProviderHealth(ctx context.Context, name string) (provider.Health, error) {
	inst, err := r.mustInstance(name)
	if err != nil {
		return provider.Health{}, err
	}
	if !r.statusOf(inst).Running() {
		r.mu.RLock()
		h := inst.health
		r.mu.RUnlock()
		return h, nil
	}
	return r.probe(ctx, inst), nil
}

// CheckAllHealth probes every running provider in registration order.
func (r *Registry) CheckAllHealth(ctx context.Context) map[string]provider.Health {
	out := make(map[string]provider.Health)
	for _, name := range r.Names() {
		inst, ok := r.instance(name)
		if !ok || !r.statusOf(inst).Running() {
			continue
		}
		out[name] = r.probe(ctx, inst)
	}
	return out
}

func (r *Registry) probe(ctx context.Context, inst *instance) provider.Health {
	cfg := inst.p.Config()
	ctx, span := observability.StartProviderSpan(ctx, observability.SpanHealth, inst.name, "health")

	gen := r.generationOf(inst)
	started := r.now()
	result := make(chan provider.Health, 1)
	err := resilience.WithTimeout(ctx, cfg.Timeout, "health "+inst.name, func(ctx context.Context) error {
		h, err := inst.p.Health(ctx)
		if err != nil {
			return err
		}
		result <- h
		return nil
	})
	latency := r.now().Sub(started)

	var h provider.Health
	if err != nil {
		h = provider.Health{State: provider.HealthUnhealthy, Message: err.Error(), Errors: 1}
	} else {
		h = <-result
	}
	if h.State == "" {
		h.State = provider.HealthUnknown
	}
	if h.Latency == 0 {
		h.Latency = latency
	}
	if h.CheckedAt.IsZero() {
		h.CheckedAt = r.now()
	}
	observability.EndSpan(span, err)
	r.instruments.RecordHealth(ctx, inst.name, string(h.State), h.Latency)

	r.mu.Lock()
	prev := inst.status
	inst.health = h
	inst.lastHealthCheck = h.CheckedAt
	inst.errorCount += int64(h.Errors)
	inst.warningCount += int64(h.Warnings)
	if inst.generation != gen {
		// The provider was stopped, restarted or failed while the probe ran;
		// the result describes a state that no longer exists.
		r.mu.Unlock()
		r.log.Debug("discarding stale health result", logger.Fields(
			logger.FieldProvider, inst.name,
			logger.FieldStatus, string(prev),
			"health", string(h.State),
		))
		return h
	}
	next := prev
	switch {
	case h.State == provider.HealthUnhealthy && prev.Running():
		next = provider.StatusFailed
		inst.lastError = healthReason(h)
	case h.State == provider.HealthDegraded && prev == provider.StatusActive:
		next = provider.StatusDegraded
	case h.State == provider.HealthHealthy && prev == provider.StatusDegraded:
		next = provider.StatusActive
	}
	if next != prev {
		inst.status = next
		inst.generation++
	}
	r.mu.Unlock()

	if next == prev {
		return h
	}

	fields := logger.Fields(
		logger.FieldProvider, inst.name,
		"from", string(prev),
		"to", string(next),
		"health", string(h.State),
	)
	data := map[string]any{
		"from":    string(prev),
		"to":      string(next),
		"health":  string(h.State),
		"message": h.Message,
	}
	if next == provider.StatusFailed {
		r.log.Error("provider failed health check", fields)
		r.emit(ctx, events.ProviderFailed, inst.name, data, errors.New(healthReason(h)))
		return h
	}
	r.log.Warn("provider health changed", fields)
	r.emit(ctx, events.ProviderHealthChanged, inst.name, data, nil)
	return h
}

func healthReason(h provider.Health) string {
	if h.Message != "" {
		return "health check failed: " + h.Message
	}
	return "health check failed"
}

// HealthSummary aggregates stored health without probing. Failed
// providers count as unhealthy and stopped or never-started ones as
// stopped. A running provider that has not been probed yet counts as
// healthy.
func (r *Registry) HealthSummary() HealthSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := HealthSummary{
		Total:          len(r.order),
		CriticalIssues: []string{},
		Warnings:       []string{},
	}
	for _, name := range r.order {
		inst := r.instances[name]
		switch inst.status {
		case provider.StatusRegistered, provider.StatusStopped:
			s.Stopped++
			continue
		case provider.StatusFailed:
			s.Unhealthy++
			s.CriticalIssues = append(s.CriticalIssues, failureIssue(inst))
			continue
		case provider.StatusInitializing:
			s.Healthy++
			continue
		}

		switch inst.health.State {
		case provider.HealthUnhealthy:
			s.Unhealthy++
			s.CriticalIssues = append(s.CriticalIssues, fmt.Sprintf("%s: unhealthy: %s", name, inst.health.Message))
		case provider.HealthDegraded:
			s.Degraded++
			s.Warnings = append(s.Warnings, fmt.Sprintf("%s: degraded: %s", name, inst.health.Message))
		default:
			s.Healthy++
			if inst.health.Warnings > 0 {
				s.Warnings = append(s.Warnings, fmt.Sprintf("%s: %d warnings", name, inst.health.Warnings))
			}
		}
	}

	switch {
	case s.Unhealthy > 0:
		s.Overall = provider.HealthUnhealthy
	case s.Degraded > 0:
		s.Overall = provider.HealthDegraded
	default:
		s.Overall = provider.HealthHealthy
	}
	return s
}

func failureIssue(inst *instance) string {
	if inst.lastError != "" {
		return fmt.Sprintf("%s: failed: %s", inst.name, inst.lastError)
	}
	return inst.name + ": failed"
}
