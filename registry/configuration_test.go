package registry

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/kbukum/backendkit/errors"
	"github.com/kbukum/backendkit/events"
	"github.com/kbukum/backendkit/provider"
)

type mapSource map[string]provider.Config

func (m mapSource) Load(_ context.Context, name string) (provider.Config, error) {
	cfg, ok := m[name]
	if !ok {
		return provider.Config{}, errors.NotFound("provider config", name)
	}
	return cfg, nil
}

func intPtr(n int) *int { return &n }

func TestUpdateProviderConfig(t *testing.T) {
	ctx := context.Background()
	r, f := newTestRegistry(t)
	if _, err := r.RegisterProvider(ctx, "db", provider.TypeDatabase, provider.Config{
		Settings: map[string]any{"dsn": "a"},
	}); err != nil {
		t.Fatal(err)
	}

	err := r.UpdateProviderConfig(ctx, "db", provider.ConfigPatch{
		Settings: map[string]any{"pool": 8},
		Priority: intPtr(3),
	})
	if err != nil {
		t.Fatal(err)
	}
	cfg := f.Provider("db").Config()
	if cfg.Setting("dsn", "") != "a" || cfg.IntSetting("pool", 0) != 8 || cfg.Priority != 3 {
		t.Errorf("patch not merged: %+v", cfg)
	}
	if evs := r.ProviderEvents("db", 1); evs[0].Type != events.ProviderConfigUpdated {
		t.Errorf("last event = %s", evs[0].Type)
	}

	if err := r.UpdateProviderConfig(ctx, "db", provider.ConfigPatch{RetryCount: intPtr(-2)}); !errors.HasCode(err, errors.ErrCodeConfiguration) {
		t.Errorf("expected CONFIGURATION_ERROR, got %v", err)
	}
	if f.Provider("db").Config().RetryCount != 0 {
		t.Error("rejected patch must not reach the provider")
	}

	mustRegister(t, r, "cache", provider.TypeRealtime)
	if err := r.UpdateProviderConfig(ctx, "db", provider.ConfigPatch{DependsOn: []string{"cache"}}); err != nil {
		t.Fatal(err)
	}
	info, _ := r.ProviderInfo("db")
	if !slices.Equal(info.Dependencies, []string{"cache"}) {
		t.Errorf("dependencies not refreshed: %v", info.Dependencies)
	}

	if err := r.UpdateProviderConfig(ctx, "ghost", provider.ConfigPatch{Priority: intPtr(1)}); !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestUpdateProviderConfig_RejectsBrokenDependencyGraph(t *testing.T) {
	tests := []struct {
		name string
		deps []string
		code errors.ErrorCode
	}{
		{"cycle through dependent", []string{"cache"}, errors.ErrCodeCircularDependency},
		{"self dependency", []string{"db"}, errors.ErrCodeCircularDependency},
		{"unknown dependency", []string{"ghost"}, errors.ErrCodeDependency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			r, f := newTestRegistry(t)
			mustRegister(t, r, "db", provider.TypeDatabase)
			mustRegister(t, r, "cache", provider.TypeRealtime, "db")

			err := r.UpdateProviderConfig(ctx, "db", provider.ConfigPatch{DependsOn: tt.deps})
			if !errors.HasCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
			if f.Provider("db").CallCount("update_config") != 0 {
				t.Error("rejected patch must not reach the provider")
			}
			if info, _ := r.ProviderInfo("db"); len(info.Dependencies) != 0 {
				t.Errorf("dependencies changed: %v", info.Dependencies)
			}
			res, err := r.StartAllProviders(ctx)
			if err != nil || !slices.Equal(res.Succeeded, []string{"db", "cache"}) {
				t.Errorf("start all = %+v, %v", res, err)
			}
		})
	}
}

func TestReloadProviderConfig(t *testing.T) {
	ctx := context.Background()
	src := mapSource{"db": {Type: provider.TypeDatabase, Settings: map[string]any{"dsn": "b"}}}
	r, f := newTestRegistry(t, WithConfigSource(src))
	if _, err := r.RegisterProvider(ctx, "db", provider.TypeDatabase, provider.Config{
		Settings: map[string]any{"dsn": "a"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := r.StartProvider(ctx, "db"); err != nil {
		t.Fatal(err)
	}

	if err := r.ReloadProviderConfig(ctx, "db"); err != nil {
		t.Fatal(err)
	}
	fake := f.Provider("db")
	if fake.Config().Setting("dsn", "") != "b" {
		t.Errorf("config not reloaded: %v", fake.Config().Settings)
	}
	if fake.CallCount("start") != 2 {
		t.Errorf("active provider should restart after a change, start calls = %d", fake.CallCount("start"))
	}

	if err := r.ReloadProviderConfig(ctx, "db"); err != nil {
		t.Fatal(err)
	}
	if fake.CallCount("start") != 2 {
		t.Error("unchanged reload must not restart")
	}

	src["db"] = provider.Config{Type: provider.TypeStorage}
	if err := r.ReloadProviderConfig(ctx, "db"); !errors.HasCode(err, errors.ErrCodeConfiguration) {
		t.Errorf("type change should be rejected, got %v", err)
	}
}

func TestReloadAllConfigs_WithoutSource(t *testing.T) {
	ctx := context.Background()
	r, f := newTestRegistry(t)
	mustRegister(t, r, "db", provider.TypeDatabase)
	mustRegister(t, r, "files", provider.TypeStorage)
	if err := r.ReloadAllConfigs(ctx); err != nil {
		t.Fatal(err)
	}
	if f.Provider("db").CallCount("update_config") != 0 {
		t.Error("re-applying the stored configuration should not update the provider")
	}
}

func TestExportImport_RevertsChanges(t *testing.T) {
	ctx := context.Background()
	r, f := newTestRegistry(t)
	if _, err := r.RegisterProvider(ctx, "db", provider.TypeDatabase, provider.Config{
		Settings: map[string]any{"dsn": "a"},
		Secrets:  map[string]string{"password": "s3cret"},
	}); err != nil {
		t.Fatal(err)
	}

	doc := r.ExportConfig()
	if len(doc.Providers) != 1 || doc.Providers[0].Config.Secrets != nil {
		t.Fatalf("export must omit secrets: %+v", doc)
	}
	if !slices.Equal(doc.Factories, []string{"fake"}) {
		t.Errorf("factories = %v", doc.Factories)
	}

	if err := r.UpdateProviderConfig(ctx, "db", provider.ConfigPatch{
		Settings: map[string]any{"dsn": "changed", "pool": 2},
	}); err != nil {
		t.Fatal(err)
	}

	res, err := r.ImportConfig(ctx, doc)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(res.Updated, []string{"db"}) {
		t.Errorf("import result = %+v", res)
	}
	cfg := f.Provider("db").Config()
	if cfg.Setting("dsn", "") != "a" {
		t.Errorf("dsn = %v, want original", cfg.Settings)
	}
	if _, ok := cfg.Settings["pool"]; ok {
		t.Error("settings added after export should be gone")
	}
	if cfg.Secrets["password"] != "s3cret" {
		t.Error("import must keep existing secrets")
	}
}

func TestImportConfig_CreatesAndNeverDeletes(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	mustRegister(t, r, "keep", provider.TypeAuth)

	doc := Document{Providers: []ProviderEntry{
		{Name: "db", Config: provider.Config{Type: provider.TypeDatabase}},
		{Name: "mail", Config: provider.Config{Type: provider.TypeEmail}},
	}}
	res, err := r.ImportConfig(ctx, doc)
	if err == nil {
		t.Fatal("expected error for provider without factory")
	}
	if !slices.Equal(res.Created, []string{"db"}) || res.Failed["mail"] == "" {
		t.Errorf("result = %+v", res)
	}
	if !r.HasProvider("keep") || !r.HasProvider("db") {
		t.Errorf("providers = %v", r.Names())
	}
}

func TestImportConfig_UpdatesMayDependOnCreatedProviders(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	mustRegister(t, r, "api", provider.TypeAuth)

	doc := Document{Providers: []ProviderEntry{
		{Name: "api", Config: provider.Config{Type: provider.TypeAuth, DependsOn: []string{"db"}}},
		{Name: "db", Config: provider.Config{Type: provider.TypeDatabase}},
	}}
	res, err := r.ImportConfig(ctx, doc)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(res.Created, []string{"db"}) || !slices.Equal(res.Updated, []string{"api"}) {
		t.Errorf("result = %+v", res)
	}
	if order, _ := r.StartupOrder(); !slices.Equal(order, []string{"db", "api"}) {
		t.Errorf("order = %v", order)
	}
}

func TestImportConfig_JSONRoundTripIsUnchanged(t *testing.T) {
	ctx := context.Background()
	r, f := newTestRegistry(t)
	if _, err := r.RegisterProvider(ctx, "db", provider.TypeDatabase, provider.Config{
		Settings: map[string]any{
			"pool":  5,
			"ratio": 0.5,
			"tls":   map[string]any{"min_version": 12},
			"ports": []any{5432, 5433},
		},
	}); err != nil {
		t.Fatal(err)
	}

	data, err := r.ExportConfig().Marshal(FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := ParseDocument(data, FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	if pool, ok := doc.Providers[0].Config.Settings["pool"].(int); !ok || pool != 5 {
		t.Errorf("pool decoded as %T(%v)", doc.Providers[0].Config.Settings["pool"], doc.Providers[0].Config.Settings["pool"])
	}

	res, err := r.ImportConfig(ctx, doc)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(res.Unchanged, []string{"db"}) {
		t.Errorf("import result = %+v", res)
	}
	if n := f.Provider("db").CallCount("update_config"); n != 0 {
		t.Errorf("update_config called %d times", n)
	}
}

func TestSameConfig_WidensNumbers(t *testing.T) {
	a := provider.Config{Settings: map[string]any{"pool": 5, "limits": []any{int64(1)}}}
	b := provider.Config{Settings: map[string]any{"pool": 5.0, "limits": []any{1.0}}}
	if !sameConfig(a, b) {
		t.Error("5 and 5.0 should compare equal")
	}
	b.Settings["pool"] = 6.0
	if sameConfig(a, b) {
		t.Error("different values compared equal")
	}
}

func TestDocumentFormats(t *testing.T) {
	doc := Document{
		Factories: []string{"fake"},
		Providers: []ProviderEntry{{Name: "db", Config: provider.Config{
			Name:      "db",
			Type:      provider.TypeDatabase,
			Settings:  map[string]any{"dsn": "file::memory:"},
			DependsOn: []string{"cache"},
			Timeout:   5 * time.Second,
			AutoStart: true,
		}}},
	}
	for _, format := range []string{FormatJSON, FormatYAML} {
		t.Run(format, func(t *testing.T) {
			data, err := doc.Marshal(format)
			if err != nil {
				t.Fatal(err)
			}
			got, err := ParseDocument(data, format)
			if err != nil {
				t.Fatal(err)
			}
			cfg := got.Providers[0].Config
			if got.Providers[0].Name != "db" || cfg.Timeout != 5*time.Second || !cfg.AutoStart {
				t.Errorf("decoded = %+v", got)
			}
			if cfg.Setting("dsn", "") != "file::memory:" || !slices.Equal(cfg.DependsOn, []string{"cache"}) {
				t.Errorf("decoded config = %+v", cfg)
			}
		})
	}

	if _, err := doc.Marshal("toml"); !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
	if _, err := ParseDocument([]byte("{"), FormatJSON); !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}
