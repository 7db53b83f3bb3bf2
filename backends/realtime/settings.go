package realtime

import (
	stderrors "errors"
	"time"
)

// Settings configures a realtime provider. The server password is the
// "password" secret.
type Settings struct {
	Addr          string        `mapstructure:"addr"`
	DB            int           `mapstructure:"db"`
	PoolSize      int           `mapstructure:"pool_size"`
	MinIdleConns  int           `mapstructure:"min_idle_conns"`
	MaxRetries    int           `mapstructure:"max_retries"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	ChannelPrefix string        `mapstructure:"channel_prefix"`
	BufferSize    int           `mapstructure:"buffer_size"`

	password string
}

func (s *Settings) ApplyDefaults() {
	if s.Addr == "" {
		s.Addr = "localhost:6379"
	}
	if s.PoolSize <= 0 {
		s.PoolSize = 10
	}
	if s.DialTimeout == 0 {
		s.DialTimeout = 5 * time.Second
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = 3 * time.Second
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = 3 * time.Second
	}
	if s.BufferSize <= 0 {
		s.BufferSize = 100
	}
}

func (s *Settings) Validate() error {
	var errs []error
	if s.DB < 0 || s.DB > 15 {
		errs = append(errs, stderrors.New("db must be between 0 and 15"))
	}
	if s.MinIdleConns > s.PoolSize {
		errs = append(errs, stderrors.New("min_idle_conns must not exceed pool_size"))
	}
	if s.MaxRetries < 0 {
		errs = append(errs, stderrors.New("max_retries must be >= 0"))
	}
	return stderrors.Join(errs...)
}
