package registry

import (
	"context"
	"testing"
	"time"

	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/provider"
	"github.com/kbukum/backendkit/providertest"
)

func TestMonitoring(t *testing.T) {
	ctx := context.Background()
	f := providertest.NewFactory("fake", provider.TypeDatabase)
	r := New(
		WithLogger(logger.NewNop()),
		WithConfig(Config{HealthInterval: 5 * time.Millisecond, MetricsInterval: 5 * time.Millisecond}),
	)
	if err := r.RegisterFactory(f); err != nil {
		t.Fatal(err)
	}
	mustRegister(t, r, "db", provider.TypeDatabase)
	_ = r.StartProvider(ctx, "db")

	r.StartMonitoring(ctx)
	r.StartMonitoring(ctx)
	f.Provider("db").SetHealth(provider.Health{State: provider.HealthUnhealthy, Message: "gone"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s, _ := r.Status("db")
		h, _ := r.MetricsHistory("db", 0)
		if s == provider.StatusFailed && len(h) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	r.StopMonitoring()
	r.StopMonitoring()

	if s, _ := r.Status("db"); s != provider.StatusFailed {
		t.Errorf("health monitor did not demote provider, status = %s", s)
	}
	if r.Monitoring() {
		t.Error("monitoring still running")
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.HealthInterval != 30*time.Second || cfg.MetricsHistorySize != 100 || cfg.EventHistorySize != 1000 {
		t.Errorf("defaults = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Error(err)
	}
	bad := Config{HealthInterval: time.Millisecond}
	if err := bad.Validate(); err == nil {
		t.Error("expected sub-second interval to be rejected")
	}
}
