package allinone

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/kbukum/backendkit/enhanced"
	"github.com/kbukum/backendkit/errors"
	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/provider"
	"github.com/kbukum/backendkit/registry"
)

const signingKey = "0123456789abcdef0123456789abcdef"

func bundleConfig(t *testing.T, mr *miniredis.Miniredis) provider.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := provider.Config{
		Name: "suite",
		Type: provider.TypeAllInOne,
		Settings: map[string]any{
			ServiceDatabase: map[string]any{"log_level": "silent"},
			ServiceAuth:     map[string]any{"issuer": "suite", "bcrypt_cost": 4},
			ServiceStorage:  map[string]any{"driver": "local", "base_path": filepath.Join(dir, "objects")},
		},
		Secrets: map[string]string{
			"database.dsn":     filepath.Join(dir, "suite.db"),
			"auth.signing_key": signingKey,
		},
	}
	if mr != nil {
		cfg.Settings[ServiceRealtime] = map[string]any{"addr": mr.Addr()}
		cfg.Features = map[string]bool{ServiceRealtime: false}
	}
	return cfg
}

func startBundle(t *testing.T, cfg provider.Config) *Provider {
	t.Helper()
	ctx := context.Background()
	p := New(cfg, logger.NewNop())
	if err := p.Initialize(ctx, cfg); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = p.Destroy(context.Background()) })
	return p
}

func TestMemberConfig(t *testing.T) {
	cfg := bundleConfig(t, nil)
	db := memberConfig(cfg, ServiceDatabase)
	if db.Name != "suite.database" || db.Type != provider.TypeDatabase || db.Secrets["dsn"] == "" {
		t.Errorf("database config = %+v", db)
	}
	a := memberConfig(cfg, ServiceAuth)
	if a.Secrets["signing_key"] != signingKey || len(a.DependsOn) != 1 || a.Secrets["dsn"] != "" {
		t.Errorf("auth config = %+v", a)
	}
	if initiallyEnabled(cfg, ServiceRealtime) {
		t.Error("realtime has no section and should start disabled")
	}
	cfg.Features = map[string]bool{ServiceStorage: false}
	if initiallyEnabled(cfg, ServiceStorage) {
		t.Error("feature flag should override section presence")
	}
}

func TestBundleLifecycle(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	p := startBundle(t, bundleConfig(t, mr))

	set := p.Services()
	if got := strings.Join(set.Available(), ","); got != "database,auth,storage,realtime" {
		t.Errorf("Available = %s", got)
	}
	if set.Enabled(ServiceRealtime) || p.Realtime().Running() {
		t.Error("realtime should be off")
	}
	if !p.Database().Running() || !p.Auth().Running() || !p.Storage().Running() {
		t.Fatal("enabled members should be running")
	}

	h, _ := p.Health(ctx)
	if h.State != provider.HealthHealthy {
		t.Fatalf("Health = %+v", h)
	}

	// Auth gets the database injected.
	if dep, ok := p.Auth().Dependency(ServiceDatabase); !ok || dep != provider.Provider(p.Database()) {
		t.Error("database not injected into auth")
	}

	if err := set.Enable(ctx, ServiceRealtime); err != nil {
		t.Fatal(err)
	}
	if !p.Realtime().Running() {
		t.Error("enabling realtime should start it")
	}
	if _, err := p.Realtime().Publish(ctx, "x", "y"); err != nil {
		t.Errorf("publish: %v", err)
	}

	if err := set.Disable(ctx, ServiceDatabase); !errors.HasCode(err, errors.ErrCodeConfiguration) {
		t.Errorf("disabling database: %v", err)
	}
	if err := set.Disable(ctx, ServiceStorage); err != nil {
		t.Fatal(err)
	}
	if p.Storage().Running() {
		t.Error("disabling storage should stop it")
	}
	sh, _ := set.ServiceHealth(ctx, ServiceStorage)
	if sh.Health.State != provider.HealthUnknown {
		t.Errorf("disabled service health = %s", sh.Health.State)
	}

	if err := p.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if p.Database().Running() || p.Realtime().Running() {
		t.Error("Stop should stop every member")
	}
}

func TestHealthAggregation(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cfg := bundleConfig(t, mr)
	cfg.Features[ServiceRealtime] = true
	cfg.Settings[ServiceRealtime] = map[string]any{"addr": mr.Addr(), "dial_timeout": "100ms", "read_timeout": "100ms"}
	p := startBundle(t, cfg)

	sh, err := p.Services().ServiceHealth(ctx, ServiceRealtime)
	if err != nil || sh.Scope != provider.ScopeIsolated || sh.Health.State != provider.HealthHealthy {
		t.Fatalf("realtime service health = %+v, %v", sh, err)
	}

	mr.Close()
	h, _ := p.Health(ctx)
	if h.State != provider.HealthDegraded || h.Details[ServiceRealtime] != string(provider.HealthUnhealthy) {
		t.Errorf("Health with realtime down = %+v", h)
	}

	_ = p.Database().Stop(ctx)
	h, _ = p.Health(ctx)
	if h.State != provider.HealthUnhealthy {
		t.Errorf("Health with database down = %s", h.State)
	}
}

func TestMetricsAndSetup(t *testing.T) {
	ctx := context.Background()
	p := startBundle(t, bundleConfig(t, nil))

	if _, err := p.Auth().IssueToken(ctx, "user"); err != nil {
		t.Fatal(err)
	}
	if err := p.Storage().Upload(ctx, "a.txt", strings.NewReader("abc")); err != nil {
		t.Fatal(err)
	}
	m, err := p.Metrics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if m.Requests.Total != 2 || m.Business["storage.bytes_uploaded"] != 3 || m.Business["auth.tokens_issued"] != 1 {
		t.Errorf("metrics = %+v", m)
	}

	steps := p.SetupSteps()
	if len(steps) != 4 || !steps[0].Required || steps[1].Required {
		t.Fatalf("steps = %+v", steps)
	}
	for _, s := range steps {
		if err := s.Run(ctx); err != nil {
			t.Errorf("step %s: %v", s.ID, err)
		}
	}

	for _, c := range p.Diagnose(ctx) {
		if !strings.Contains(c.Name, "/") {
			t.Errorf("check %q is not prefixed", c.Name)
		}
		if !c.Passed {
			t.Errorf("%s: %s", c.Name, c.Message)
		}
	}
}

func TestStartRollsBack(t *testing.T) {
	ctx := context.Background()
	cfg := bundleConfig(t, nil)
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg.Settings[ServiceStorage] = map[string]any{"driver": "local", "base_path": filepath.Join(blocker, "sub")}

	p := New(cfg, logger.NewNop())
	if err := p.Initialize(ctx, cfg); err != nil {
		t.Fatal(err)
	}
	if err := p.Start(ctx); err == nil {
		t.Fatal("expected storage start failure")
	}
	if p.Database().Running() || p.Auth().Running() || p.Running() {
		t.Error("members started before the failure should be stopped")
	}
}

func TestValidate(t *testing.T) {
	cfg := bundleConfig(t, nil)
	if res := Validate(provider.TypeAllInOne, cfg); !res.Valid {
		t.Fatalf("Validate = %+v", res)
	}

	delete(cfg.Secrets, "database.dsn")
	cfg.Settings[ServiceStorage] = "local"
	res := Validate(provider.TypeAllInOne, cfg)
	if res.Valid || len(res.Errors) != 2 {
		t.Fatalf("Validate = %+v", res)
	}
	if !strings.HasPrefix(res.Errors[0], "database: ") || !strings.HasPrefix(res.Errors[1], "storage: ") {
		t.Errorf("errors = %v", res.Errors)
	}
}

func TestThroughRegistry(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(
		registry.WithLogger(logger.NewNop()),
		registry.WithConfig(registry.Config{HealthInterval: -1, MetricsInterval: -1}),
	)
	if err := reg.RegisterFactory(NewFactory(logger.NewNop())); err != nil {
		t.Fatal(err)
	}
	b := enhanced.New(reg)
	v, err := b.RegisterProvider(ctx, "suite", provider.TypeAllInOne, bundleConfig(t, nil))
	if err != nil {
		t.Fatal(err)
	}
	if !v.Enhanced || !v.MultiService || v.Category != string(provider.TypeAllInOne) || v.SetupSteps != 4 {
		t.Errorf("view = %+v", v)
	}
	t.Cleanup(func() { _ = reg.Destroy(context.Background()) })

	if err := reg.StartProvider(ctx, "suite"); err != nil {
		t.Fatal(err)
	}
	report, err := b.RunSetup(ctx, "suite")
	if err != nil || !report.Completed {
		t.Errorf("setup = %+v, %v", report, err)
	}
	if err := b.DisableService(ctx, "suite", ServiceStorage); err != nil {
		t.Fatal(err)
	}
	enabled, _ := b.IsServiceEnabled("suite", ServiceStorage)
	if enabled {
		t.Error("storage still enabled")
	}
}
