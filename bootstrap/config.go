package bootstrap

import (
	"fmt"

	"github.com/kbukum/backendkit/admin"
	"github.com/kbukum/backendkit/config"
	"github.com/kbukum/backendkit/events/kafka"
	"github.com/kbukum/backendkit/observability"
	"github.com/kbukum/backendkit/provider"
	"github.com/kbukum/backendkit/registry"
	"github.com/kbukum/backendkit/version"
)

// Config is the application configuration.
//
//	name: backendkit
//	registry:
//	  health_interval: 30s
//	admin:
//	  port: 8090
//	providers:
//	  - name: main-db
//	    type: database
//	    auto_start: true
//	    settings: {driver: sqlite, dsn: ./data/app.db}
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Registry  registry.Config      `yaml:"registry" mapstructure:"registry"`
	Admin     admin.Config         `yaml:"admin" mapstructure:"admin"`
	Telemetry observability.Config `yaml:"telemetry" mapstructure:"telemetry"`
	Events    kafka.Config         `yaml:"events" mapstructure:"events"`
	Providers []provider.Config    `yaml:"providers" mapstructure:"providers"`
}

func (c *Config) GetServiceConfig() *config.ServiceConfig { return &c.ServiceConfig }

func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	if c.Version == "" {
		c.Version = version.Get().Version
	}
	c.Registry.ApplyDefaults()
	c.Admin.ApplyDefaults()
	c.Telemetry.ApplyDefaults()
	if c.Events.Enabled {
		c.Events.ApplyDefaults()
	}
}

// Validate checks every section. Provider names must be unique; the
// provider configurations themselves are validated at registration.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Registry.Validate(); err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	if c.Admin.Enabled {
		if err := c.Admin.Validate(); err != nil {
			return fmt.Errorf("admin: %w", err)
		}
	}
	if c.Events.Enabled {
		if err := c.Events.Validate(); err != nil {
			return fmt.Errorf("events: %w", err)
		}
	}
	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("providers[%d]: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}
