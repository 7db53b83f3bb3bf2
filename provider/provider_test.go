package provider

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/kbukum/backendkit/errors"
)

func TestCapabilities(t *testing.T) {
	caps := Capabilities{CapDependencyInjection, CapDiagnostics}
	if !caps.Has(CapDiagnostics) || caps.Has(CapMultiService) {
		t.Error("Has mismatch")
	}
	if !caps.Enhanced() {
		t.Error("diagnostics should make the set enhanced")
	}
	if (Capabilities{CapDependencyInjection}).Enhanced() {
		t.Error("dependency injection alone is basic")
	}
}

func TestStatus_Running(t *testing.T) {
	for s, want := range map[Status]bool{
		StatusActive: true, StatusDegraded: true,
		StatusRegistered: false, StatusFailed: false, StatusStopped: false, StatusInitializing: false,
	} {
		if s.Running() != want {
			t.Errorf("%s.Running() = %v", s, !want)
		}
	}
}

func TestNewFactory(t *testing.T) {
	created := 0
	f := NewFactory("sql", []Type{TypeDatabase},
		func(_ Type, cfg Config) (Provider, error) {
			created++
			return NewBase(cfg, "1.0.0"), nil
		},
		WithCapabilities(CapDiagnostics),
		WithValidator(func(_ Type, cfg Config) ValidationResult {
			if cfg.Setting("dsn", "") == "" {
				return ValidationResult{Valid: false, Errors: []string{"settings.dsn: is required"}}
			}
			return ValidationResult{Valid: true}
		}),
	)

	if f.Name() != "sql" || !Supports(f, TypeDatabase) || Supports(f, TypeAuth) {
		t.Fatal("factory metadata mismatch")
	}
	if !f.Capabilities().Has(CapDiagnostics) {
		t.Error("expected declared capability")
	}
	if f.ValidateConfig(TypeDatabase, Config{}).Valid {
		t.Error("expected invalid without dsn")
	}
	if _, err := f.Create(TypeAuth, Config{}); err == nil {
		t.Error("expected error for unsupported type")
	}
	p, err := f.Create(TypeDatabase, Config{Name: "db", Type: TypeDatabase})
	if err != nil || p.Name() != "db" || created != 1 {
		t.Fatalf("unexpected create result: %v %v", p, err)
	}
	if d := f.DefaultConfig(TypeDatabase); d.Type != TypeDatabase || d.Timeout != DefaultTimeout {
		t.Errorf("unexpected default config: %+v", d)
	}
}

func TestNewFactory_NoValidator(t *testing.T) {
	f := NewFactory("noop", []Type{TypeEmail}, func(Type, Config) (Provider, error) { return nil, nil },
		WithDefaults(func(t Type) Config { return Config{Type: t, RetryCount: 3} }))
	if !f.ValidateConfig(TypeEmail, Config{}).Valid {
		t.Error("expected valid without validator")
	}
	if f.DefaultConfig(TypeEmail).RetryCount != 3 {
		t.Error("expected custom defaults")
	}
}

func TestBase_Lifecycle(t *testing.T) {
	ctx := context.Background()
	b := NewBase(Config{Name: "cache", Type: TypeRealtime, DependsOn: []string{"db"}}, "2.0.0", CapDependencyInjection)

	if b.Name() != "cache" || b.Type() != TypeRealtime || b.Version() != "2.0.0" {
		t.Fatal("identity mismatch")
	}
	if deps := b.Dependencies(); len(deps) != 1 || deps[0] != "db" {
		t.Errorf("unexpected dependencies: %v", deps)
	}

	h, _ := b.Health(ctx)
	if h.State != HealthUnhealthy {
		t.Errorf("expected unhealthy before start, got %s", h.State)
	}
	if err := b.Start(ctx); err != nil {
		t.Fatal(err)
	}
	h, _ = b.Health(ctx)
	if h.State != HealthHealthy {
		t.Errorf("expected healthy after start, got %s", h.State)
	}

	dep := NewBase(Config{Name: "db", Type: TypeDatabase}, "1.0.0")
	_ = b.SetDependency("db", dep)
	if got, ok := b.Dependency("db"); !ok || got.Name() != "db" {
		t.Error("dependency not stored")
	}

	on := true
	_ = b.UpdateConfig(ctx, ConfigPatch{AutoStart: &on})
	if !b.Config().AutoStart {
		t.Error("UpdateConfig not applied")
	}

	_ = b.Stop(ctx)
	if b.Running() {
		t.Error("expected stopped")
	}
	_ = b.Destroy(ctx)
	if _, ok := b.Dependency("db"); ok {
		t.Error("Destroy should drop dependencies")
	}
	if b.Services() != nil || b.SetupSteps() != nil || b.Diagnose(ctx) != nil {
		t.Error("expected inert defaults")
	}
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	for i := 1; i <= 100; i++ {
		var err error
		if i%10 == 0 {
			err = errors.New("fail")
		}
		r.Observe(time.Duration(i)*time.Millisecond, err)
	}
	r.AddBusiness("emails_sent", 3)
	r.SetResources(ResourceMetrics{Connections: 4})

	m := r.Snapshot()
	if m.Requests.Total != 100 || m.Requests.Failed != 10 || m.Requests.Successful != 90 {
		t.Errorf("unexpected request counts: %+v", m.Requests)
	}
	if m.Performance.AvgResponseMs != 50.5 {
		t.Errorf("expected avg 50.5, got %v", m.Performance.AvgResponseMs)
	}
	if m.Performance.P50Ms != 50 || m.Performance.P95Ms != 95 || m.Performance.P99Ms != 99 {
		t.Errorf("unexpected percentiles: %+v", m.Performance)
	}
	if m.Business["emails_sent"] != 3 || m.Resources.Connections != 4 {
		t.Errorf("unexpected business/resources: %+v", m)
	}

	err := r.Track(func() error { return errors.New("x") })
	if err == nil || r.Snapshot().Requests.Failed != 11 {
		t.Error("Track should record failures")
	}
}

func TestServiceTable(t *testing.T) {
	ctx := context.Background()
	overall := func(context.Context) (Health, error) { return Health{State: HealthDegraded}, nil }
	overallMetrics := func(context.Context) (Metrics, error) {
		return Metrics{Requests: RequestMetrics{Total: 42}}, nil
	}
	toggled := map[string]bool{}

	table := NewServiceTable("suite", overall, overallMetrics,
		ServiceSpec{Name: "database", Mandatory: true,
			Health: func(context.Context) (Health, error) { return Health{State: HealthHealthy}, nil }},
		ServiceSpec{Name: "storage", Enabled: true},
		ServiceSpec{Name: "realtime", Toggle: func(_ context.Context, on bool) error {
			toggled["realtime"] = on
			return nil
		}},
	)

	if got := table.Available(); len(got) != 3 || got[0] != "database" {
		t.Fatalf("unexpected services: %v", got)
	}
	if !table.Enabled("database") || !table.Enabled("storage") || table.Enabled("realtime") {
		t.Error("unexpected initial enablement")
	}

	t.Run("mandatory cannot be disabled", func(t *testing.T) {
		err := table.Disable(ctx, "database")
		if !apperrors.HasCode(err, apperrors.ErrCodeConfiguration) {
			t.Fatalf("expected CONFIGURATION_ERROR, got %v", err)
		}
		if !table.Enabled("database") {
			t.Error("database must stay enabled")
		}
	})

	t.Run("unknown service", func(t *testing.T) {
		if err := table.Enable(ctx, "email"); !apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
			t.Errorf("expected NOT_FOUND, got %v", err)
		}
	})

	t.Run("toggle hook", func(t *testing.T) {
		if err := table.Enable(ctx, "realtime"); err != nil {
			t.Fatal(err)
		}
		if !toggled["realtime"] || !table.Enabled("realtime") {
			t.Error("expected realtime enabled through hook")
		}
		if got := table.EnabledServices(); len(got) != 3 {
			t.Errorf("expected 3 enabled, got %v", got)
		}
	})

	t.Run("isolated vs provider scope", func(t *testing.T) {
		db, _ := table.ServiceHealth(ctx, "database")
		if db.Scope != ScopeIsolated || db.Health.State != HealthHealthy {
			t.Errorf("unexpected database health: %+v", db)
		}
		st, _ := table.ServiceHealth(ctx, "storage")
		if st.Scope != ScopeProvider || st.Health.State != HealthDegraded {
			t.Errorf("storage should fall back to provider health: %+v", st)
		}
		sm, _ := table.ServiceMetrics(ctx, "storage")
		if sm.Scope != ScopeProvider || sm.Metrics.Requests.Total != 42 {
			t.Errorf("storage should fall back to provider metrics: %+v", sm)
		}
	})

	t.Run("disabled reports unknown", func(t *testing.T) {
		_ = table.Disable(ctx, "storage")
		st, _ := table.ServiceHealth(ctx, "storage")
		if st.Enabled || st.Health.State != HealthUnknown {
			t.Errorf("expected unknown for disabled service: %+v", st)
		}
	})
}

func TestServiceTable_ConcurrentEnableTogglesOnce(t *testing.T) {
	var calls atomic.Int32
	table := NewServiceTable("suite", nil, nil, ServiceSpec{
		Name: "realtime",
		Toggle: func(context.Context, bool) error {
			calls.Add(1)
			time.Sleep(10 * time.Millisecond)
			return nil
		},
	})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := table.Enable(context.Background(), "realtime"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("Toggle ran %d times, want 1", n)
	}
	if !table.Enabled("realtime") {
		t.Error("realtime should be enabled")
	}
}
