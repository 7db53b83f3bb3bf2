package registry

import (
	"context"
	"testing"

	"github.com/kbukum/backendkit/provider"
	"github.com/kbukum/backendkit/providertest"
)

func TestTestProvider(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	diag := providertest.NewFactory("diag", provider.TypeAllInOne).WithCapabilities(provider.CapDiagnostics)
	if err := r.RegisterFactory(diag); err != nil {
		t.Fatal(err)
	}
	mustRegister(t, r, "db", provider.TypeDatabase)
	mustRegister(t, r, "suite", provider.TypeAllInOne)
	diag.Provider("suite").SetChecks(
		provider.CheckResult{Name: "connect", Passed: true},
		provider.CheckResult{Name: "migrate", Passed: false, Message: "pending"},
	)

	report, err := r.TestProvider(ctx, "suite")
	if err != nil {
		t.Fatal(err)
	}
	if report.Passed || len(report.Checks) != 2 {
		t.Errorf("report = %+v", report)
	}

	basic, err := r.TestProvider(ctx, "db")
	if err != nil {
		t.Fatal(err)
	}
	if basic.Passed || len(basic.Checks) != 1 || basic.Checks[0].Name != "health" {
		t.Errorf("stopped basic provider should fail its health check: %+v", basic)
	}
	if s, _ := r.Status("db"); s != provider.StatusRegistered {
		t.Errorf("diagnostics must not change status, got %s", s)
	}

	_ = r.StartProvider(ctx, "db")
	all := r.TestAllProviders(ctx)
	if len(all) != 2 || !all[0].Passed {
		t.Errorf("all = %+v", all)
	}
}
