package registry

import (
	"context"
	"slices"
	"testing"

	"github.com/kbukum/backendkit/errors"
	"github.com/kbukum/backendkit/provider"
	"github.com/kbukum/backendkit/providertest"
)

func TestTopoSort(t *testing.T) {
	tests := []struct {
		name      string
		names     []string
		graph     map[string][]string
		want      []string
		wantCycle []string
	}{
		{
			name:  "independent keeps input order",
			names: []string{"a", "b", "c"},
			graph: map[string][]string{"a": nil, "b": nil, "c": nil},
			want:  []string{"a", "b", "c"},
		},
		{
			name:  "chain",
			names: []string{"app", "cache", "db"},
			graph: map[string][]string{"app": {"cache"}, "cache": {"db"}, "db": nil},
			want:  []string{"db", "cache", "app"},
		},
		{
			name:  "diamond",
			names: []string{"api", "auth", "files", "db"},
			graph: map[string][]string{"api": {"auth", "files"}, "auth": {"db"}, "files": {"db"}, "db": nil},
			want:  []string{"db", "auth", "files", "api"},
		},
		{
			name:  "unknown dependency skipped",
			names: []string{"a"},
			graph: map[string][]string{"a": {"ghost"}},
			want:  []string{"a"},
		},
		{
			name:      "two node cycle",
			names:     []string{"a", "b"},
			graph:     map[string][]string{"a": {"b"}, "b": {"a"}},
			wantCycle: []string{"a", "b", "a"},
		},
		{
			name:      "cycle behind a prefix",
			names:     []string{"root", "x", "y", "z"},
			graph:     map[string][]string{"root": {"x"}, "x": {"y"}, "y": {"z"}, "z": {"x"}},
			wantCycle: []string{"x", "y", "z", "x"},
		},
		{
			name:      "self dependency",
			names:     []string{"a"},
			graph:     map[string][]string{"a": {"a"}},
			wantCycle: []string{"a", "a"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := topoSort(tt.names, tt.graph)
			if tt.wantCycle != nil {
				appErr, ok := errors.AsAppError(err)
				if !ok || appErr.Code != errors.ErrCodeCircularDependency {
					t.Fatalf("expected CIRCULAR_DEPENDENCY, got %v", err)
				}
				if path, _ := appErr.Details["path"].([]string); !slices.Equal(path, tt.wantCycle) {
					t.Errorf("cycle path = %v, want %v", path, tt.wantCycle)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("order = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStartupOrder(t *testing.T) {
	r, _ := newTestRegistry(t)
	mustRegister(t, r, "cache", provider.TypeRealtime, "db")
	mustRegister(t, r, "db", provider.TypeDatabase)
	mustRegister(t, r, "auth", provider.TypeAuth, "db", "cache")

	order, err := r.StartupOrder()
	if err != nil {
		t.Fatal(err)
	}
	pos := func(n string) int { return slices.Index(order, n) }
	for _, info := range r.ListProviders() {
		for _, dep := range info.Dependencies {
			if pos(dep) > pos(info.Name) {
				t.Errorf("%s starts before its dependency %s: %v", info.Name, dep, order)
			}
		}
	}

	shutdown, err := r.ShutdownOrder()
	if err != nil {
		t.Fatal(err)
	}
	reversed := slices.Clone(order)
	slices.Reverse(reversed)
	if !slices.Equal(shutdown, reversed) {
		t.Errorf("shutdown %v is not the reverse of startup %v", shutdown, order)
	}
}

func TestStartupOrder_DBThenCache(t *testing.T) {
	r, _ := newTestRegistry(t)
	mustRegister(t, r, "db", provider.TypeDatabase)
	mustRegister(t, r, "cache", provider.TypeRealtime, "db")

	order, err := r.StartupOrder()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(order, []string{"db", "cache"}) {
		t.Errorf("order = %v", order)
	}
}

func TestResolveDependencies(t *testing.T) {
	ctx := context.Background()

	t.Run("missing dependency", func(t *testing.T) {
		r, _ := newTestRegistry(t)
		mustRegister(t, r, "b", provider.TypeDatabase, "a")
		err := r.ResolveDependencies(ctx)
		appErr, ok := errors.AsAppError(err)
		if !ok || appErr.Code != errors.ErrCodeDependency {
			t.Fatalf("expected DEPENDENCY_ERROR, got %v", err)
		}
		if appErr.Details["dependency"] != "a" || appErr.Details["provider"] != "b" {
			t.Errorf("details = %v", appErr.Details)
		}
	})

	t.Run("cycle", func(t *testing.T) {
		r, _ := newTestRegistry(t)
		mustRegister(t, r, "a", provider.TypeDatabase, "b")
		mustRegister(t, r, "b", provider.TypeStorage, "a")
		err := r.ResolveDependencies(ctx)
		appErr, ok := errors.AsAppError(err)
		if !ok || appErr.Code != errors.ErrCodeCircularDependency {
			t.Fatalf("expected CIRCULAR_DEPENDENCY, got %v", err)
		}
		path, _ := appErr.Details["path"].([]string)
		if !slices.Contains(path, "a") || !slices.Contains(path, "b") {
			t.Errorf("cycle path %v must name both providers", path)
		}
		if _, err := r.StartupOrder(); !errors.HasCode(err, errors.ErrCodeCircularDependency) {
			t.Errorf("StartupOrder: expected cycle error, got %v", err)
		}
	})

	t.Run("injects into dependency-injection providers", func(t *testing.T) {
		r := New(WithConfig(Config{HealthInterval: -1, MetricsInterval: -1}))
		plain := providertest.NewFactory("plain", provider.TypeDatabase)
		di := providertest.NewFactory("di", provider.TypeRealtime).WithCapabilities(provider.CapDependencyInjection)
		for _, f := range []*providertest.FakeFactory{plain, di} {
			if err := r.RegisterFactory(f); err != nil {
				t.Fatal(err)
			}
		}
		mustRegister(t, r, "db", provider.TypeDatabase)
		mustRegister(t, r, "cache", provider.TypeRealtime, "db")

		if err := r.ResolveDependencies(ctx); err != nil {
			t.Fatal(err)
		}
		got, ok := di.Provider("cache").Dependency("db")
		if !ok || got.Name() != "db" {
			t.Errorf("db not injected into cache: %v, %v", got, ok)
		}
	})
}
