package allinone

import (
	"context"
	"fmt"
	"strings"

	"github.com/kbukum/backendkit/provider"
)

// SetupSteps verifies the bundle end to end. Only the database step is
// required; steps for disabled services pass without doing anything.
func (p *Provider) SetupSteps() []provider.SetupStep {
	return []provider.SetupStep{
		{
			ID:          "database",
			Title:       "Verify database connectivity",
			Description: "Pings the database and runs a trivial query.",
			Required:    true,
			Run:         p.diagnoseStep(ServiceDatabase),
		},
		{
			ID:          "auth",
			Title:       "Issue and verify a token",
			Description: "Signs a token with the configured key and verifies it.",
			Run:         p.diagnoseStep(ServiceAuth),
		},
		{
			ID:          "storage",
			Title:       "Write to object storage",
			Description: "Uploads, checks and deletes a small object.",
			Run:         p.diagnoseStep(ServiceStorage),
		},
		{
			ID:          "realtime",
			Title:       "Round-trip a realtime message",
			Description: "Subscribes to a channel and publishes to it.",
			Run:         p.diagnoseStep(ServiceRealtime),
		},
	}
}

func (p *Provider) diagnoseStep(svc string) func(context.Context) error {
	return func(ctx context.Context) error {
		if !p.table.Enabled(svc) {
			return nil
		}
		var failed []string
		for _, c := range p.members[svc].Diagnose(ctx) {
			if !c.Passed {
				failed = append(failed, fmt.Sprintf("%s: %s", c.Name, c.Message))
			}
		}
		if len(failed) > 0 {
			return fmt.Errorf("%s checks failed: %s", svc, strings.Join(failed, "; "))
		}
		return nil
	}
}
