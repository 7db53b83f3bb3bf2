package registry

import (
	"fmt"
	"time"

	"github.com/kbukum/backendkit/events"
)

// Default monitor settings.
const (
	DefaultHealthInterval     = 30 * time.Second
	DefaultMetricsInterval    = 60 * time.Second
	DefaultMetricsHistorySize = 100
)

// Config configures the registry monitors and history bounds. A negative
// interval disables the corresponding monitor.
type Config struct {
	HealthInterval     time.Duration `yaml:"health_interval" mapstructure:"health_interval"`
	MetricsInterval    time.Duration `yaml:"metrics_interval" mapstructure:"metrics_interval"`
	EventHistorySize   int           `yaml:"event_history_size" mapstructure:"event_history_size"`
	MetricsHistorySize int           `yaml:"metrics_history_size" mapstructure:"metrics_history_size"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.HealthInterval == 0 {
		c.HealthInterval = DefaultHealthInterval
	}
	if c.MetricsInterval == 0 {
		c.MetricsInterval = DefaultMetricsInterval
	}
	if c.EventHistorySize <= 0 {
		c.EventHistorySize = events.DefaultHistorySize
	}
	if c.MetricsHistorySize <= 0 {
		c.MetricsHistorySize = DefaultMetricsHistorySize
	}
}

// Validate checks the configuration after defaults are applied.
func (c *Config) Validate() error {
	if c.HealthInterval > 0 && c.HealthInterval < time.Second {
		return fmt.Errorf("registry.health_interval must be at least 1s (got: %s)", c.HealthInterval)
	}
	if c.MetricsInterval > 0 && c.MetricsInterval < time.Second {
		return fmt.Errorf("registry.metrics_interval must be at least 1s (got: %s)", c.MetricsInterval)
	}
	return nil
}
