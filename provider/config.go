package provider

import (
	"maps"
	"slices"
	"time"

	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/validation"
)

// Default configuration values applied by Config.ApplyDefaults.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultRetryCount = 0
)

// Config is the configuration for one provider instance. Secrets are never
// logged or exported; use Redacted before exposing a Config.
type Config struct {
	Name       string            `json:"name" yaml:"name" mapstructure:"name" validate:"required,provider_name"`
	Type       Type              `json:"type" yaml:"type" mapstructure:"type" validate:"required"`
	Features   map[string]bool   `json:"features,omitempty" yaml:"features,omitempty" mapstructure:"features"`
	Settings   map[string]any    `json:"settings,omitempty" yaml:"settings,omitempty" mapstructure:"settings"`
	Secrets    map[string]string `json:"secrets,omitempty" yaml:"secrets,omitempty" mapstructure:"secrets"`
	DependsOn  []string          `json:"depends_on,omitempty" yaml:"depends_on,omitempty" mapstructure:"depends_on" validate:"dive,provider_name"`
	Priority   int               `json:"priority" yaml:"priority" mapstructure:"priority" validate:"gte=0"`
	Timeout    time.Duration     `json:"timeout" yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`
	RetryCount int               `json:"retry_count" yaml:"retry_count" mapstructure:"retry_count" validate:"gte=0,lte=10"`
	AutoStart  bool              `json:"auto_start" yaml:"auto_start" mapstructure:"auto_start"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
}

// Validate checks the fixed fields. Settings are validated by the factory.
func (c *Config) Validate() error {
	return validation.Struct(c.Name, c)
}

// Enabled reports whether feature flag name is set.
func (c Config) Enabled(name string) bool {
	return c.Features[name]
}

// Setting returns a string setting or def when absent.
func (c Config) Setting(key, def string) string {
	if v, ok := c.Settings[key].(string); ok && v != "" {
		return v
	}
	return def
}

// DurationSetting returns a duration setting or def when absent or invalid.
func (c Config) DurationSetting(key string, def time.Duration) time.Duration {
	switch v := c.Settings[key].(type) {
	case time.Duration:
		return v
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// IntSetting returns an integer setting or def when absent.
func (c Config) IntSetting(key string, def int) int {
	switch v := c.Settings[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	out := c
	out.Features = maps.Clone(c.Features)
	out.Settings = cloneMap(c.Settings)
	out.Secrets = maps.Clone(c.Secrets)
	out.DependsOn = slices.Clone(c.DependsOn)
	return out
}

// Redacted returns a copy safe to log or return over the admin API.
func (c Config) Redacted() Config {
	out := c.Clone()
	for k := range out.Secrets {
		out.Secrets[k] = logger.RedactedValue
	}
	out.Settings = logger.Redact(out.Settings)
	return out
}

// WithoutSecrets returns a copy with the secrets removed.
func (c Config) WithoutSecrets() Config {
	out := c.Clone()
	out.Secrets = nil
	return out
}

// ConfigPatch is a partial configuration update. Nil fields are left
// unchanged. Map fields are merged key by key unless Replace is set, in
// which case Features, Settings and DependsOn are replaced wholesale.
// Secrets are only touched when the patch carries them.
type ConfigPatch struct {
	Features   map[string]bool   `json:"features,omitempty" yaml:"features,omitempty"`
	Settings   map[string]any    `json:"settings,omitempty" yaml:"settings,omitempty"`
	Secrets    map[string]string `json:"secrets,omitempty" yaml:"secrets,omitempty"`
	DependsOn  []string          `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Priority   *int              `json:"priority,omitempty" yaml:"priority,omitempty"`
	Timeout    *time.Duration    `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	RetryCount *int              `json:"retry_count,omitempty" yaml:"retry_count,omitempty"`
	AutoStart  *bool             `json:"auto_start,omitempty" yaml:"auto_start,omitempty"`
	Replace    bool              `json:"replace,omitempty" yaml:"replace,omitempty"`
}

// PatchFrom builds a replacing patch that turns any config into cfg,
// keeping the target's secrets when cfg has none.
func PatchFrom(cfg Config) ConfigPatch {
	c := cfg.Clone()
	return ConfigPatch{
		Features:   c.Features,
		Settings:   c.Settings,
		Secrets:    c.Secrets,
		DependsOn:  c.DependsOn,
		Priority:   &c.Priority,
		Timeout:    &c.Timeout,
		RetryCount: &c.RetryCount,
		AutoStart:  &c.AutoStart,
		Replace:    true,
	}
}

// Empty reports whether applying p would change nothing.
func (p ConfigPatch) Empty() bool {
	return !p.Replace && p.Features == nil && p.Settings == nil && p.Secrets == nil &&
		p.DependsOn == nil && p.Priority == nil && p.Timeout == nil &&
		p.RetryCount == nil && p.AutoStart == nil
}

// Apply returns c with p applied. Name and Type never change.
func (c Config) Apply(p ConfigPatch) Config {
	out := c.Clone()
	if p.Replace {
		out.Features = maps.Clone(p.Features)
		out.Settings = cloneMap(p.Settings)
		out.DependsOn = slices.Clone(p.DependsOn)
	} else {
		if p.Features != nil {
			if out.Features == nil {
				out.Features = make(map[string]bool, len(p.Features))
			}
			maps.Copy(out.Features, p.Features)
		}
		if p.Settings != nil {
			if out.Settings == nil {
				out.Settings = make(map[string]any, len(p.Settings))
			}
			maps.Copy(out.Settings, cloneMap(p.Settings))
		}
		if p.DependsOn != nil {
			out.DependsOn = slices.Clone(p.DependsOn)
		}
	}
	if p.Secrets != nil {
		if p.Replace || out.Secrets == nil {
			out.Secrets = make(map[string]string, len(p.Secrets))
		}
		maps.Copy(out.Secrets, p.Secrets)
	}
	if p.Priority != nil {
		out.Priority = *p.Priority
	}
	if p.Timeout != nil {
		out.Timeout = *p.Timeout
	}
	if p.RetryCount != nil {
		out.RetryCount = *p.RetryCount
	}
	if p.AutoStart != nil {
		out.AutoStart = *p.AutoStart
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		s := make([]any, len(t))
		for i := range t {
			s[i] = cloneValue(t[i])
		}
		return s
	default:
		return v
	}
}
