package database

import (
	"fmt"
	"slices"
	"time"
)

// Settings is the typed form of a database provider's settings map. The
// DSN may also be given as the "dsn" secret, which takes precedence.
type Settings struct {
	Driver             string        `mapstructure:"driver"`
	DSN                string        `mapstructure:"dsn"`
	MaxOpenConns       int           `mapstructure:"max_open_conns"`
	MaxIdleConns       int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime    time.Duration `mapstructure:"conn_max_idle_time"`
	SlowQueryThreshold time.Duration `mapstructure:"slow_query_threshold"`
	LogLevel           string        `mapstructure:"log_level"`
	AutoMigrate        bool          `mapstructure:"auto_migrate"`
}

// ApplyDefaults sets defaults for zero-valued fields.
func (s *Settings) ApplyDefaults() {
	if s.Driver == "" {
		s.Driver = DriverSQLite
	}
	if s.MaxOpenConns <= 0 {
		s.MaxOpenConns = 10
	}
	if s.MaxIdleConns <= 0 {
		s.MaxIdleConns = 2
	}
	if s.ConnMaxLifetime == 0 {
		s.ConnMaxLifetime = time.Hour
	}
	if s.ConnMaxIdleTime == 0 {
		s.ConnMaxIdleTime = 5 * time.Minute
	}
	if s.SlowQueryThreshold == 0 {
		s.SlowQueryThreshold = 200 * time.Millisecond
	}
	if s.LogLevel == "" {
		s.LogLevel = "warn"
	}
}

// Validate checks required fields.
func (s *Settings) Validate() error {
	if !slices.Contains(Drivers(), s.Driver) {
		return fmt.Errorf("unsupported driver %q (supported: %v)", s.Driver, Drivers())
	}
	if s.DSN == "" {
		return fmt.Errorf("dsn is required")
	}
	if s.MaxIdleConns > s.MaxOpenConns {
		return fmt.Errorf("max_idle_conns (%d) must be <= max_open_conns (%d)", s.MaxIdleConns, s.MaxOpenConns)
	}
	return nil
}
