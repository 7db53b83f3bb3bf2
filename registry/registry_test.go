package registry

import (
	"context"
	stderrors "errors"
	"slices"
	"testing"

	"github.com/kbukum/backendkit/errors"
	"github.com/kbukum/backendkit/events"
	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/provider"
	"github.com/kbukum/backendkit/providertest"
)

var allTypes = []provider.Type{
	provider.TypeDatabase, provider.TypeAuth, provider.TypeStorage, provider.TypeRealtime,
}

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *providertest.FakeFactory) {
	t.Helper()
	f := providertest.NewFactory("fake", allTypes...)
	base := []Option{
		WithLogger(logger.NewNop()),
		WithConfig(Config{HealthInterval: -1, MetricsInterval: -1}),
	}
	r := New(append(base, opts...)...)
	if err := r.RegisterFactory(f); err != nil {
		t.Fatalf("RegisterFactory: %v", err)
	}
	return r, f
}

func mustRegister(t *testing.T, r *Registry, name string, typ provider.Type, deps ...string) {
	t.Helper()
	if _, err := r.RegisterProvider(context.Background(), name, typ, provider.Config{DependsOn: deps}); err != nil {
		t.Fatalf("RegisterProvider(%s): %v", name, err)
	}
}

func eventTypes(evs []events.Event) []events.Type {
	out := make([]events.Type, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

func TestRegisterFactory(t *testing.T) {
	r, _ := newTestRegistry(t)

	if err := r.RegisterFactory(providertest.NewFactory("fake")); !errors.HasCode(err, errors.ErrCodeRegistrationConflict) {
		t.Errorf("expected conflict for duplicate factory, got %v", err)
	}
	if err := r.RegisterFactory(nil); !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected invalid input for nil factory, got %v", err)
	}

	second := providertest.NewFactory("second", provider.TypeDatabase, provider.TypeEmail)
	if err := r.RegisterFactory(second); err != nil {
		t.Fatal(err)
	}
	if got := r.ListFactories(); !slices.Equal(got, []string{"fake", "second"}) {
		t.Errorf("ListFactories() = %v", got)
	}

	f, err := r.FactoryFor(provider.TypeDatabase)
	if err != nil || f.Name() != "fake" {
		t.Errorf("expected first registered factory to win, got %v, %v", f, err)
	}
	f, err = r.FactoryFor(provider.TypeEmail)
	if err != nil || f.Name() != "second" {
		t.Errorf("expected second factory for email, got %v, %v", f, err)
	}

	if !r.UnregisterFactory("second") || r.UnregisterFactory("second") {
		t.Error("UnregisterFactory should remove once")
	}
	if _, err := r.FactoryFor(provider.TypeEmail); !errors.HasCode(err, errors.ErrCodeFactoryNotFound) {
		t.Errorf("expected FACTORY_NOT_FOUND, got %v", err)
	}
}

func TestRegisterProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("stores instance and emits event", func(t *testing.T) {
		r, f := newTestRegistry(t)
		info, err := r.RegisterProvider(ctx, "db", provider.TypeDatabase, provider.Config{
			Settings: map[string]any{"dsn": "file::memory:"},
			Secrets:  map[string]string{"password": "hunter2"},
		})
		if err != nil {
			t.Fatal(err)
		}
		if info.Status != provider.StatusRegistered || info.Type != provider.TypeDatabase || info.Factory != "fake" {
			t.Errorf("unexpected info: %+v", info)
		}
		if info.Config.Secrets["password"] != logger.RedactedValue {
			t.Errorf("secrets must be redacted in info, got %v", info.Config.Secrets)
		}
		if f.Provider("db") == nil {
			t.Fatal("factory did not build provider")
		}
		if !r.HasProvider("db") {
			t.Error("HasProvider(db) = false")
		}
		if p, ok := r.GetProvider("db"); !ok || p.Name() != "db" {
			t.Errorf("GetProvider(db) = %v, %v", p, ok)
		}
		evs := r.ProviderEvents("db", 0)
		if len(evs) != 1 || evs[0].Type != events.ProviderRegistered {
			t.Errorf("expected provider_registered, got %v", eventTypes(evs))
		}
	})

	t.Run("applies factory defaults", func(t *testing.T) {
		r, f := newTestRegistry(t)
		f.SetDefaults(provider.Config{Settings: map[string]any{"pool": 4, "dsn": "default"}, RetryCount: 2})
		if _, err := r.RegisterProvider(ctx, "db", provider.TypeDatabase, provider.Config{
			Settings: map[string]any{"dsn": "custom"},
		}); err != nil {
			t.Fatal(err)
		}
		cfg := f.Provider("db").Config()
		if cfg.Setting("dsn", "") != "custom" || cfg.IntSetting("pool", 0) != 4 || cfg.RetryCount != 2 {
			t.Errorf("defaults not merged: %+v", cfg)
		}
		if cfg.Timeout != provider.DefaultTimeout {
			t.Errorf("timeout default not applied: %v", cfg.Timeout)
		}
	})

	tests := []struct {
		name  string
		setup func(r *Registry, f *providertest.FakeFactory)
		pname string
		typ   provider.Type
		cfg   provider.Config
		code  errors.ErrorCode
	}{
		{
			name:  "duplicate name",
			setup: func(r *Registry, _ *providertest.FakeFactory) { mustRegister(t, r, "db", provider.TypeDatabase) },
			pname: "db", typ: provider.TypeDatabase, code: errors.ErrCodeRegistrationConflict,
		},
		{
			name:  "no factory for type",
			pname: "mail", typ: provider.TypeEmail, code: errors.ErrCodeFactoryNotFound,
		},
		{
			name:  "invalid name",
			pname: "bad name!", typ: provider.TypeDatabase, code: errors.ErrCodeConfiguration,
		},
		{
			name:  "negative retry count",
			pname: "db", typ: provider.TypeDatabase, cfg: provider.Config{RetryCount: -1},
			code: errors.ErrCodeConfiguration,
		},
		{
			name: "rejected by factory",
			setup: func(_ *Registry, f *providertest.FakeFactory) {
				f.SetValidation(provider.ValidationResult{Valid: false, Errors: []string{"dsn is required"}})
			},
			pname: "db", typ: provider.TypeDatabase, code: errors.ErrCodeConfiguration,
		},
		{
			name:  "empty name",
			pname: "", typ: provider.TypeDatabase, code: errors.ErrCodeInvalidInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, f := newTestRegistry(t)
			if tt.setup != nil {
				tt.setup(r, f)
			}
			_, err := r.RegisterProvider(ctx, tt.pname, tt.typ, tt.cfg)
			if !errors.HasCode(err, tt.code) {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}

	t.Run("construction error is wrapped with the name", func(t *testing.T) {
		r, f := newTestRegistry(t)
		boom := stderrors.New("driver missing")
		f.FailCreate(boom)
		_, err := r.RegisterProvider(ctx, "db", provider.TypeDatabase, provider.Config{})
		if !stderrors.Is(err, boom) {
			t.Fatalf("expected wrapped cause, got %v", err)
		}
		if r.HasProvider("db") {
			t.Error("failed registration must not store an instance")
		}
	})

	t.Run("factory warnings do not fail registration", func(t *testing.T) {
		r, f := newTestRegistry(t)
		f.SetValidation(provider.ValidationResult{Valid: true, Warnings: []string{"pool size is small"}})
		if _, err := r.RegisterProvider(ctx, "db", provider.TypeDatabase, provider.Config{}); err != nil {
			t.Fatal(err)
		}
	})
}

func TestListProviders(t *testing.T) {
	r, _ := newTestRegistry(t)
	mustRegister(t, r, "db", provider.TypeDatabase)
	mustRegister(t, r, "files", provider.TypeStorage)
	mustRegister(t, r, "cache", provider.TypeRealtime, "db")

	all := r.ListProviders()
	names := make([]string, len(all))
	for i, info := range all {
		names[i] = info.Name
	}
	if !slices.Equal(names, []string{"db", "files", "cache"}) {
		t.Errorf("expected registration order, got %v", names)
	}

	storage := r.ListProviders(provider.TypeStorage)
	if len(storage) != 1 || storage[0].Name != "files" {
		t.Errorf("type filter failed: %v", storage)
	}

	db, err := r.ProviderInfo("db")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(db.Dependents, []string{"cache"}) {
		t.Errorf("db dependents = %v", db.Dependents)
	}
	if _, err := r.ProviderInfo("nope"); !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestUnregisterProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown name", func(t *testing.T) {
		r, _ := newTestRegistry(t)
		before := r.Bus().Len()
		ok, err := r.UnregisterProvider(ctx, "ghost")
		if ok || err != nil {
			t.Errorf("UnregisterProvider(ghost) = %v, %v", ok, err)
		}
		if r.Bus().Len() != before {
			t.Error("unregistering an unknown provider must not emit events")
		}
	})

	t.Run("stops, destroys and detaches", func(t *testing.T) {
		r, f := newTestRegistry(t)
		mustRegister(t, r, "db", provider.TypeDatabase)
		mustRegister(t, r, "cache", provider.TypeRealtime, "db")
		if err := r.StartProvider(ctx, "db"); err != nil {
			t.Fatal(err)
		}

		ok, err := r.UnregisterProvider(ctx, "db")
		if !ok || err != nil {
			t.Fatalf("UnregisterProvider(db) = %v, %v", ok, err)
		}
		if r.HasProvider("db") {
			t.Error("db still registered")
		}
		calls := f.Provider("db").Calls()
		if !slices.Equal(calls[len(calls)-2:], []string{"stop", "destroy"}) {
			t.Errorf("expected stop then destroy, got %v", calls)
		}
		cache, _ := r.ProviderInfo("cache")
		if slices.Contains(cache.Dependencies, "db") {
			t.Errorf("cache still depends on db: %v", cache.Dependencies)
		}
		last := r.AllEvents(1)
		if len(last) != 1 || last[0].Type != events.ProviderUnregistered {
			t.Errorf("expected provider_unregistered last, got %v", eventTypes(last))
		}
	})

	t.Run("destroy failure still removes", func(t *testing.T) {
		r, f := newTestRegistry(t)
		mustRegister(t, r, "db", provider.TypeDatabase)
		f.Provider("db").FailDestroy(stderrors.New("leak"))
		ok, err := r.UnregisterProvider(ctx, "db")
		if !ok || !errors.HasCode(err, errors.ErrCodeLifecycle) {
			t.Errorf("UnregisterProvider = %v, %v", ok, err)
		}
		if r.HasProvider("db") {
			t.Error("db should be removed despite destroy failure")
		}
	})
}
