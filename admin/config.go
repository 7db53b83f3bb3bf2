package admin

import (
	"fmt"
	"time"
)

// Config holds admin API configuration.
type Config struct {
	Enabled      bool            `yaml:"enabled" mapstructure:"enabled"`
	Host         string          `yaml:"host" mapstructure:"host"`
	Port         int             `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration   `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration   `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration   `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxBodySize  string          `yaml:"max_body_size" mapstructure:"max_body_size"` // e.g. "1MB"
	RateLimit    RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS         CORSConfig      `yaml:"cors" mapstructure:"cors"`
	// KeepAlive is the interval of comment frames on event streams.
	KeepAlive time.Duration `yaml:"keep_alive" mapstructure:"keep_alive"`
}

// RateLimitConfig limits mutating requests per client IP. A negative Rate
// disables limiting.
type RateLimitConfig struct {
	Rate  float64 `yaml:"rate" mapstructure:"rate"`
	Burst int     `yaml:"burst" mapstructure:"burst"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8090
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.MaxBodySize == "" {
		c.MaxBodySize = "1MB"
	}
	if c.RateLimit.Rate == 0 {
		c.RateLimit.Rate = 5
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 10
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = 30 * time.Second
	}
	if len(c.CORS.AllowedMethods) == 0 {
		c.CORS.AllowedMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	}
	if len(c.CORS.AllowedHeaders) == 0 {
		c.CORS.AllowedHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("admin.port must be between 0 and 65535 (got: %d)", c.Port)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.IdleTimeout < 0 {
		return fmt.Errorf("admin timeouts must be non-negative")
	}
	if c.RateLimit.Rate > 0 && c.RateLimit.Burst < 1 {
		return fmt.Errorf("admin.rate_limit.burst must be at least 1 (got: %d)", c.RateLimit.Burst)
	}
	return nil
}
