package enhanced

import (
	"context"
	"time"

	"github.com/kbukum/backendkit/errors"
	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/provider"
)

// StepResult is the outcome of one setup step.
type StepResult struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Required bool          `json:"required"`
	Passed   bool          `json:"passed"`
	Skipped  bool          `json:"skipped,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// SetupReport is the outcome of a guided setup run.
type SetupReport struct {
	Provider  string       `json:"provider"`
	Completed bool         `json:"completed"`
	Steps     []StepResult `json:"steps"`
}

// SetupSteps lists the provider's guided setup steps.
func (b *Bridge) SetupSteps(name string) ([]provider.SetupStep, error) {
	p, ok := b.reg.GetProvider(name)
	if !ok {
		return nil, errors.NotFound("provider", name)
	}
	if !p.Capabilities().Has(provider.CapSetupAutomation) {
		return nil, errors.Unsupported(name, string(provider.CapSetupAutomation))
	}
	return p.SetupSteps(), nil
}

// RunSetup runs the provider's setup steps in order. A failing optional
// step is recorded and the run continues; a failing required step stops
// the run and the remaining steps are reported as skipped.
func (b *Bridge) RunSetup(ctx context.Context, name string) (SetupReport, error) {
	steps, err := b.SetupSteps(name)
	if err != nil {
		return SetupReport{}, err
	}

	report := SetupReport{Provider: name, Completed: true, Steps: make([]StepResult, 0, len(steps))}
	log := b.log.WithProvider(name)
	for _, step := range steps {
		res := StepResult{ID: step.ID, Title: step.Title, Required: step.Required}
		if !report.Completed {
			res.Skipped = true
			report.Steps = append(report.Steps, res)
			continue
		}

		started := time.Now()
		var stepErr error
		if step.Run != nil {
			stepErr = step.Run(ctx)
		}
		res.Duration = time.Since(started)
		res.Passed = stepErr == nil
		if stepErr != nil {
			res.Error = stepErr.Error()
			log.Warn("setup step failed", logger.MergeWithError(logger.Fields("step", step.ID, "required", step.Required), stepErr))
			if step.Required {
				report.Completed = false
			}
		}
		report.Steps = append(report.Steps, res)
	}

	log.Info("setup finished", logger.Fields("completed", report.Completed, "steps", len(report.Steps)))
	return report, nil
}
