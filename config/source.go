package config

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/viper"

	"github.com/kbukum/backendkit/errors"
	"github.com/kbukum/backendkit/provider"
)

// ProvidersKey is the config file section holding provider configurations.
const ProvidersKey = "providers"

// FileSource reads provider configurations from the providers section of a
// YAML or JSON file. The file is re-read on every Load so edits made while
// the process runs are picked up by a reload.
type FileSource struct {
	path string
	mu   sync.Mutex
}

// NewFileSource returns a source backed by path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the backing file path.
func (s *FileSource) Path() string { return s.path }

// LoadAll reads every provider configuration in file order.
func (s *FileSource) LoadAll(ctx context.Context) ([]provider.Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v := viper.New()
	v.SetConfigFile(s.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading provider config %s: %w", s.path, err)
	}
	var cfgs []provider.Config
	if err := v.UnmarshalKey(ProvidersKey, &cfgs); err != nil {
		return nil, fmt.Errorf("decoding %s section of %s: %w", ProvidersKey, s.path, err)
	}
	return cfgs, nil
}

// Load returns the configuration for the named provider.
func (s *FileSource) Load(ctx context.Context, name string) (provider.Config, error) {
	cfgs, err := s.LoadAll(ctx)
	if err != nil {
		return provider.Config{}, err
	}
	for _, cfg := range cfgs {
		if cfg.Name == name {
			return cfg, nil
		}
	}
	return provider.Config{}, errors.NotFound("provider config", name).
		WithDetail("source", s.path)
}
