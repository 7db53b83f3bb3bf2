package config

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/kbukum/backendkit/errors"
	"github.com/kbukum/backendkit/provider"
)

type mockFS struct {
	files  map[string]bool
	loaded []string
}

func (m *mockFS) Exists(path string) bool { return m.files[path] }

func (m *mockFS) LoadEnv(path string) error {
	m.loaded = append(m.loaded, path)
	return nil
}

type appConfig struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`
	Registry      struct {
		HealthInterval time.Duration `mapstructure:"health_interval"`
	} `mapstructure:"registry"`
}

const sampleConfig = `
name: backendkit
environment: production
registry:
  health_interval: 10s
providers:
  - name: db
    type: database
    priority: 1
    timeout: 5s
    settings:
      dsn: "file::memory:"
  - name: cache
    type: realtime
    depends_on: [db]
    auto_start: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestResolveFiles(t *testing.T) {
	fs := &mockFS{files: map[string]bool{
		filepath.Join("cmd", "backendkit", "config.yml"): true,
		".env": true,
	}}
	r := &Resolver{FileSystem: fs}

	got := r.ResolveFiles("backendkit", LoaderConfig{})
	if got.ConfigFile != filepath.Join("cmd", "backendkit", "config.yml") {
		t.Errorf("config file: got %q", got.ConfigFile)
	}
	if got.EnvFile != ".env" {
		t.Errorf("env file: got %q", got.EnvFile)
	}

	explicit := r.ResolveFiles("backendkit", LoaderConfig{ConfigFile: "custom.yml"})
	if explicit.ConfigFile != "custom.yml" {
		t.Errorf("explicit config file ignored: %q", explicit.ConfigFile)
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	fs := &mockFS{files: map[string]bool{path: true}}

	var cfg appConfig
	if err := LoadConfig("backendkit", &cfg, WithFileSystem(fs), WithConfigFile(path)); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Name != "backendkit" || cfg.Environment != "production" {
		t.Errorf("unexpected service config: %+v", cfg.ServiceConfig)
	}
	if cfg.Registry.HealthInterval != 10*time.Second {
		t.Errorf("health interval: got %v", cfg.Registry.HealthInterval)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	fs := &mockFS{files: map[string]bool{path: true}}
	t.Setenv("REGISTRY_HEALTH_INTERVAL", "45s")

	var cfg appConfig
	if err := LoadConfig("backendkit", &cfg, WithFileSystem(fs), WithConfigFile(path)); err != nil {
		t.Fatal(err)
	}
	if cfg.Registry.HealthInterval != 45*time.Second {
		t.Errorf("env override not applied: %v", cfg.Registry.HealthInterval)
	}
}

func TestEnvKeyVariants(t *testing.T) {
	tests := []struct {
		key  string
		want []string
	}{
		{"NAME", []string{"name"}},
		{"LOGGING_LEVEL", []string{"logging_level", "logging.level"}},
		{"REGISTRY_HEALTH_INTERVAL", []string{
			"registry_health_interval",
			"registry.health.interval",
			"registry.health_interval",
			"registry_health.interval",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got := envKeyVariants(tt.key)
			for _, w := range tt.want {
				if !slices.Contains(got, w) {
					t.Errorf("missing variant %q in %v", w, got)
				}
			}
		})
	}
}

func TestServiceConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServiceConfig
		wantErr bool
	}{
		{"valid development", ServiceConfig{Name: "svc"}, false},
		{"valid production", ServiceConfig{Name: "svc", Environment: "production"}, false},
		{"missing name", ServiceConfig{}, true},
		{"bad environment", ServiceConfig{Name: "svc", Environment: "qa"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.ApplyDefaults()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	dev := ServiceConfig{Name: "svc"}
	dev.ApplyDefaults()
	if !dev.Debug || dev.Logging.Level != "debug" {
		t.Errorf("development defaults not applied: %+v", dev)
	}
}

func TestFileSource(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	src := NewFileSource(path)
	ctx := context.Background()

	all, err := src.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(all))
	}

	db, err := src.Load(ctx, "db")
	if err != nil {
		t.Fatal(err)
	}
	if db.Type != provider.TypeDatabase || db.Timeout != 5*time.Second || db.Priority != 1 {
		t.Errorf("unexpected db config: %+v", db)
	}
	if db.Setting("dsn", "") != "file::memory:" {
		t.Errorf("dsn setting: %v", db.Settings)
	}

	cache, err := src.Load(ctx, "cache")
	if err != nil {
		t.Fatal(err)
	}
	if !cache.AutoStart || !slices.Equal(cache.DependsOn, []string{"db"}) {
		t.Errorf("unexpected cache config: %+v", cache)
	}

	if _, err := src.Load(ctx, "missing"); !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestFileSource_PicksUpEdits(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	src := NewFileSource(path)
	ctx := context.Background()

	edited := `
providers:
  - name: db
    type: database
    priority: 7
`
	if err := os.WriteFile(path, []byte(edited), 0o600); err != nil {
		t.Fatal(err)
	}
	db, err := src.Load(ctx, "db")
	if err != nil {
		t.Fatal(err)
	}
	if db.Priority != 7 {
		t.Errorf("expected re-read priority 7, got %d", db.Priority)
	}
}

func TestFileSource_MissingFile(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "absent.yml"))
	if _, err := src.LoadAll(context.Background()); err == nil {
		t.Error("expected error for missing file")
	}
}
