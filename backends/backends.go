// Package backends collects the built-in provider factories.
package backends

import (
	"github.com/kbukum/backendkit/backends/allinone"
	"github.com/kbukum/backendkit/backends/auth"
	"github.com/kbukum/backendkit/backends/database"
	"github.com/kbukum/backendkit/backends/realtime"
	"github.com/kbukum/backendkit/backends/storage"
	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/provider"
)

// FactoryRegistrar is the part of the registry Register needs.
type FactoryRegistrar interface {
	RegisterFactory(f provider.Factory) error
}

// Factories returns one factory per provider type.
func Factories(log *logger.Logger) []provider.Factory {
	return []provider.Factory{
		database.NewFactory(log),
		auth.NewFactory(log),
		storage.NewFactory(log),
		realtime.NewFactory(log),
		allinone.NewFactory(log),
	}
}

// Register registers every built-in factory, stopping at the first error.
func Register(r FactoryRegistrar, log *logger.Logger) error {
	for _, f := range Factories(log) {
		if err := r.RegisterFactory(f); err != nil {
			return err
		}
	}
	return nil
}
