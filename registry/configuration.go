package registry

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"reflect"
	"slices"

	"github.com/kbukum/backendkit/errors"
	"github.com/kbukum/backendkit/events"
	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/provider"
)

// UpdateProviderConfig applies patch to the named provider. The patched
// configuration is validated the same way as at registration before the
// provider sees it. Dependencies are re-read from the provider afterwards.
func (r *Registry) UpdateProviderConfig(ctx context.Context, name string, patch provider.ConfigPatch) error {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()
	inst, err := r.mustInstance(name)
	if err != nil {
		return err
	}
	_, err = r.updateConfigLocked(ctx, inst, patch, "update")
	return err
}

// updateConfigLocked applies patch and reports whether the configuration
// changed.
func (r *Registry) updateConfigLocked(ctx context.Context, inst *instance, patch provider.ConfigPatch, source string) (bool, error) {
	if patch.Empty() {
		return false, nil
	}
	current := inst.p.Config()
	next := current.Apply(patch)
	next.ApplyDefaults()
	if err := r.validateConfig(inst.factory, next); err != nil {
		return false, err
	}
	if sameConfig(current, next) {
		return false, nil
	}
	if !slices.Equal(current.DependsOn, next.DependsOn) {
		if err := r.checkDependencies(inst.name, next.DependsOn); err != nil {
			return false, err
		}
	}

	if err := inst.p.UpdateConfig(ctx, patch); err != nil {
		r.mu.Lock()
		inst.recordFailure(err)
		r.mu.Unlock()
		return false, errors.Lifecycle("update_config", inst.name, err)
	}

	deps := inst.p.Dependencies()
	r.mu.Lock()
	if deps != nil {
		inst.dependencies = deps
	}
	r.mu.Unlock()

	r.log.Info("provider configuration updated", logger.Fields(
		logger.FieldProvider, inst.name,
		"source", source,
		"config", logger.Redact(configFields(next)),
	))
	r.emit(ctx, events.ProviderConfigUpdated, inst.name, map[string]any{"source": source}, nil)
	return true, nil
}

// sameConfig compares two configurations with every number in their
// settings widened to float64, so 5, int64(5) and the 5.0 a JSON decoder
// produces are the same value.
func sameConfig(a, b provider.Config) bool {
	a.Settings = normalizeNumbers(a.Settings).(map[string]any)
	b.Settings = normalizeNumbers(b.Settings).(map[string]any)
	return reflect.DeepEqual(a, b)
}

func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case map[string]any:
		if x == nil {
			return map[string]any(nil)
		}
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalizeNumbers(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalizeNumbers(e)
		}
		return out
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return v
}

func configFields(c provider.Config) map[string]interface{} {
	return map[string]interface{}{
		"settings":    c.Settings,
		"secrets":     c.Secrets,
		"depends_on":  c.DependsOn,
		"priority":    c.Priority,
		"timeout":     c.Timeout.String(),
		"retry_count": c.RetryCount,
		"auto_start":  c.AutoStart,
	}
}

// ReloadProviderConfig re-reads the named provider's configuration from
// the ConfigSource, or re-applies its stored configuration when there is
// none. A running provider whose configuration changed is restarted.
func (r *Registry) ReloadProviderConfig(ctx context.Context, name string) error {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()
	return r.reloadLocked(ctx, name)
}

func (r *Registry) reloadLocked(ctx context.Context, name string) error {
	inst, err := r.mustInstance(name)
	if err != nil {
		return err
	}

	cfg := inst.p.Config()
	source := "stored"
	if r.source != nil {
		cfg, err = r.source.Load(ctx, name)
		if err != nil {
			return err
		}
		source = "source"
	}
	if cfg.Type != "" && cfg.Type != inst.typ {
		return errors.Configuration(name, "provider type cannot change on reload").
			WithDetail("type", string(cfg.Type))
	}
	cfg.Name = name
	cfg.Type = inst.typ
	cfg.ApplyDefaults()

	changed, err := r.updateConfigLocked(ctx, inst, provider.PatchFrom(cfg), source)
	if err != nil {
		return err
	}
	if changed && r.statusOf(inst).Running() {
		r.log.Info("restarting provider after config reload", logger.Fields(logger.FieldProvider, name))
		return r.restartLocked(ctx, inst)
	}
	return nil
}

// ReloadAllConfigs reloads every provider, continuing past failures.
func (r *Registry) ReloadAllConfigs(ctx context.Context) error {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()
	var errs []error
	for _, name := range r.Names() {
		if err := r.reloadLocked(ctx, name); err != nil {
			r.log.Warn("config reload failed", logger.MergeWithError(logger.Fields(logger.FieldProvider, name), err))
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
