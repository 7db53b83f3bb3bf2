package registry

import (
	"context"
	"time"

	"github.com/kbukum/backendkit/provider"
)

// DiagnosticReport is the outcome of testing one provider.
type DiagnosticReport struct {
	Provider string                 `json:"provider"`
	Passed   bool                   `json:"passed"`
	Checks   []provider.CheckResult `json:"checks"`
	Duration time.Duration          `json:"duration"`
	RanAt    time.Time              `json:"ran_at"`
}

// TestProvider runs the provider's own diagnostics when it declares the
// diagnostics capability, otherwise a single health probe check. Lifecycle
// status is never changed.
func (r *Registry) TestProvider(ctx context.Context, name string) (DiagnosticReport, error) {
	inst, err := r.mustInstance(name)
	if err != nil {
		return DiagnosticReport{}, err
	}

	started := r.now()
	var checks []provider.CheckResult
	if inst.p.Capabilities().Has(provider.CapDiagnostics) {
		checks = inst.p.Diagnose(ctx)
	} else {
		checks = []provider.CheckResult{r.healthCheck(ctx, inst)}
	}

	report := DiagnosticReport{
		Provider: name,
		Passed:   true,
		Checks:   checks,
		Duration: r.now().Sub(started),
		RanAt:    started,
	}
	for _, c := range checks {
		if !c.Passed {
			report.Passed = false
		}
	}
	if report.Checks == nil {
		report.Checks = []provider.CheckResult{}
	}
	return report, nil
}

func (r *Registry) healthCheck(ctx context.Context, inst *instance) provider.CheckResult {
	started := r.now()
	h, err := inst.p.Health(ctx)
	res := provider.CheckResult{Name: "health", Duration: r.now().Sub(started)}
	switch {
	case err != nil:
		res.Message = err.Error()
	case h.State == provider.HealthUnhealthy:
		res.Message = h.Message
	default:
		res.Passed = true
		res.Message = string(h.State)
	}
	return res
}

// TestAllProviders tests every provider in registration order.
func (r *Registry) TestAllProviders(ctx context.Context) []DiagnosticReport {
	names := r.Names()
	out := make([]DiagnosticReport, 0, len(names))
	for _, name := range names {
		report, err := r.TestProvider(ctx, name)
		if err != nil {
			continue
		}
		out = append(out, report)
	}
	return out
}
