package allinone

import (
	"maps"
	"strings"

	"github.com/kbukum/backendkit/backends/auth"
	"github.com/kbukum/backendkit/backends/database"
	"github.com/kbukum/backendkit/backends/realtime"
	"github.com/kbukum/backendkit/backends/storage"
	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/provider"
)

// Service names, in start order.
const (
	ServiceDatabase = "database"
	ServiceAuth     = "auth"
	ServiceStorage  = "storage"
	ServiceRealtime = "realtime"
)

var serviceOrder = []string{ServiceDatabase, ServiceAuth, ServiceStorage, ServiceRealtime}

var serviceTypes = map[string]provider.Type{
	ServiceDatabase: provider.TypeDatabase,
	ServiceAuth:     provider.TypeAuth,
	ServiceStorage:  provider.TypeStorage,
	ServiceRealtime: provider.TypeRealtime,
}

var validators = map[string]func(provider.Type, provider.Config) provider.ValidationResult{
	ServiceDatabase: database.Validate,
	ServiceAuth:     auth.Validate,
	ServiceStorage:  storage.Validate,
	ServiceRealtime: realtime.Validate,
}

func newMember(svc string, cfg provider.Config, log *logger.Logger) provider.Provider {
	switch svc {
	case ServiceDatabase:
		return database.New(cfg, log)
	case ServiceAuth:
		return auth.New(cfg, log)
	case ServiceStorage:
		return storage.New(cfg, log)
	default:
		return realtime.New(cfg, log)
	}
}

// memberConfig carves the configuration of one member out of the bundle's:
// settings come from the section named after the service and secrets from
// keys prefixed "<service>.". The auth member depends on the database
// member.
func memberConfig(cfg provider.Config, svc string) provider.Config {
	out := provider.Config{
		Name: cfg.Name + "." + svc,
		Type: serviceTypes[svc],
	}
	if section, ok := cfg.Settings[svc].(map[string]any); ok {
		out.Settings = maps.Clone(section)
	}
	prefix := svc + "."
	for k, v := range cfg.Secrets {
		if rest, ok := strings.CutPrefix(k, prefix); ok {
			if out.Secrets == nil {
				out.Secrets = make(map[string]string)
			}
			out.Secrets[rest] = v
		}
	}
	if svc == ServiceAuth {
		out.DependsOn = []string{ServiceDatabase}
	}
	return out
}

// initiallyEnabled reads the feature flag for svc. Without a flag a service
// is on when its settings section is present. The database is always on.
func initiallyEnabled(cfg provider.Config, svc string) bool {
	if svc == ServiceDatabase {
		return true
	}
	if on, ok := cfg.Features[svc]; ok {
		return on
	}
	_, ok := cfg.Settings[svc]
	return ok
}
