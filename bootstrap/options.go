package bootstrap

import (
	"time"

	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/provider"
)

// Option configures the App during creation.
type Option func(*appOptions)

type appOptions struct {
	logger          *logger.Logger
	gracefulTimeout *time.Duration
	configFile      string
	factories       []provider.Factory
}

func resolveOptions(opts []Option) *appOptions {
	o := &appOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the application logger instead of building one from
// the logging config.
func WithLogger(l *logger.Logger) Option {
	return func(o *appOptions) { o.logger = l }
}

// WithGracefulTimeout bounds the whole shutdown sequence.
func WithGracefulTimeout(d time.Duration) Option {
	return func(o *appOptions) { o.gracefulTimeout = &d }
}

// WithConfigFile names the file provider configurations are reloaded from.
func WithConfigFile(path string) Option {
	return func(o *appOptions) { o.configFile = path }
}

// WithFactories registers extra factories after the built-in ones.
func WithFactories(f ...provider.Factory) Option {
	return func(o *appOptions) { o.factories = append(o.factories, f...) }
}
