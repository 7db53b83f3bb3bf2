package registry

import (
	"context"
	stderrors "errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/kbukum/backendkit/errors"
	"github.com/kbukum/backendkit/events"
	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/provider"
)

// RegisterProvider builds a provider of type t from cfg and stores it with
// status registered. cfg.Name and cfg.Type are overwritten with name and t.
// The factory's default configuration fills anything cfg leaves unset.
func (r *Registry) RegisterProvider(ctx context.Context, name string, t provider.Type, cfg provider.Config) (Info, error) {
	if name == "" {
		return Info{}, errors.InvalidInput("name", "provider name is required")
	}

	r.mu.RLock()
	_, exists := r.instances[name]
	f, ferr := r.factoryForLocked(t)
	r.mu.RUnlock()
	if exists {
		return Info{}, errors.RegistrationConflict(name)
	}
	if ferr != nil {
		return Info{}, ferr
	}

	cfg = withDefaults(f.DefaultConfig(t), cfg)
	cfg.Name = name
	cfg.Type = t
	cfg.ApplyDefaults()
	if err := r.validateConfig(f, cfg); err != nil {
		return Info{}, err
	}

	p, err := f.Create(t, cfg)
	if err != nil {
		return Info{}, fmt.Errorf("creating provider %q: %w", name, err)
	}
	if p == nil {
		return Info{}, errors.Internal(fmt.Errorf("factory %s returned no provider for %q", f.Name(), name))
	}

	deps := p.Dependencies()
	if deps == nil {
		deps = slices.Clone(cfg.DependsOn)
	}
	inst := &instance{
		p:            p,
		name:         name,
		typ:          t,
		factory:      f,
		registeredAt: r.now(),
		status:       provider.StatusRegistered,
		health:       provider.Health{State: provider.HealthUnknown},
		dependencies: deps,
	}

	r.mu.Lock()
	if _, exists := r.instances[name]; exists {
		r.mu.Unlock()
		return Info{}, errors.RegistrationConflict(name)
	}
	r.instances[name] = inst
	r.order = append(r.order, name)
	info := r.infoLocked(inst)
	r.mu.Unlock()

	r.log.Info("provider registered", logger.Fields(
		logger.FieldProvider, name,
		logger.FieldProviderType, string(t),
		logger.FieldFactory, f.Name(),
		"dependencies", deps,
	))
	r.emit(ctx, events.ProviderRegistered, name, map[string]any{
		"type":    string(t),
		"factory": f.Name(),
	}, nil)
	return info, nil
}

// validateConfig runs struct validation, then the factory's validator.
// Factory warnings are logged and do not fail validation.
func (r *Registry) validateConfig(f provider.Factory, cfg provider.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	res := f.ValidateConfig(cfg.Type, cfg)
	for _, w := range res.Warnings {
		r.log.Warn("provider configuration warning", logger.Fields(
			logger.FieldProvider, cfg.Name,
			logger.FieldFactory, f.Name(),
			"warning", w,
		))
	}
	if !res.Valid {
		reason := strings.Join(res.Errors, "; ")
		if reason == "" {
			reason = "rejected by factory " + f.Name()
		}
		return errors.Configuration(cfg.Name, reason).WithDetail("errors", slices.Clone(res.Errors))
	}
	return nil
}

// withDefaults fills the unset parts of cfg from def.
func withDefaults(def, cfg provider.Config) provider.Config {
	out := cfg.Clone()
	if len(def.Features) > 0 {
		features := maps.Clone(def.Features)
		maps.Copy(features, out.Features)
		out.Features = features
	}
	if len(def.Settings) > 0 {
		settings := def.Clone().Settings
		maps.Copy(settings, out.Settings)
		out.Settings = settings
	}
	if out.Timeout == 0 {
		out.Timeout = def.Timeout
	}
	if out.RetryCount == 0 {
		out.RetryCount = def.RetryCount
	}
	if out.Priority == 0 {
		out.Priority = def.Priority
	}
	if out.DependsOn == nil {
		out.DependsOn = slices.Clone(def.DependsOn)
	}
	return out
}

// UnregisterProvider stops and destroys the named provider, removes it
// from every dependency list and forgets it. An unknown name returns false
// and no error. The provider is removed even when stopping or destroying
// it fails; those failures are returned alongside true.
func (r *Registry) UnregisterProvider(ctx context.Context, name string) (bool, error) {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()
	return r.unregisterLocked(ctx, name)
}

func (r *Registry) unregisterLocked(ctx context.Context, name string) (bool, error) {
	inst, ok := r.instance(name)
	if !ok {
		return false, nil
	}

	var errs []error
	if err := r.stopLocked(ctx, inst); err != nil {
		r.log.Warn("stop before unregister failed", logger.MergeWithError(logger.Fields(logger.FieldProvider, name), err))
		errs = append(errs, err)
	}
	if err := inst.p.Destroy(ctx); err != nil {
		r.log.Warn("provider destroy failed", logger.MergeWithError(logger.Fields(logger.FieldProvider, name), err))
		errs = append(errs, errors.Lifecycle("destroy", name, err))
	}

	r.mu.Lock()
	delete(r.instances, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
	var detached []string
	for _, other := range r.order {
		o := r.instances[other]
		if slices.Contains(o.dependencies, name) {
			o.dependencies = slices.DeleteFunc(o.dependencies, func(d string) bool { return d == name })
			detached = append(detached, other)
		}
	}
	r.mu.Unlock()

	r.log.Info("provider unregistered", logger.Fields(logger.FieldProvider, name, "detached", detached))
	r.emit(ctx, events.ProviderUnregistered, name, map[string]any{"detached": detached}, nil)
	return true, stderrors.Join(errs...)
}

// GetProvider returns the live provider object.
func (r *Registry) GetProvider(name string) (provider.Provider, bool) {
	inst, ok := r.instance(name)
	if !ok {
		return nil, false
	}
	return inst.p, true
}

// HasProvider reports whether name is registered.
func (r *Registry) HasProvider(name string) bool {
	_, ok := r.instance(name)
	return ok
}

// ProviderInfo returns a snapshot of the named provider.
func (r *Registry) ProviderInfo(name string) (Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[name]
	if !ok {
		return Info{}, errors.NotFound("provider", name)
	}
	return r.infoLocked(inst), nil
}

// ListProviders returns snapshots in registration order, limited to the
// given types when any are passed.
func (r *Registry) ListProviders(types ...provider.Type) []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.order))
	for _, name := range r.order {
		inst := r.instances[name]
		if len(types) > 0 && !slices.Contains(types, inst.typ) {
			continue
		}
		out = append(out, r.infoLocked(inst))
	}
	return out
}

// Names returns provider names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Status returns the lifecycle status of the named provider.
func (r *Registry) Status(name string) (provider.Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[name]
	if !ok {
		return "", errors.NotFound("provider", name)
	}
	return inst.status, nil
}

func (r *Registry) instance(name string) (*instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[name]
	return inst, ok
}

func (r *Registry) mustInstance(name string) (*instance, error) {
	inst, ok := r.instance(name)
	if !ok {
		return nil, errors.NotFound("provider", name)
	}
	return inst, nil
}

func (r *Registry) setStatus(inst *instance, s provider.Status) provider.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := inst.status
	inst.status = s
	inst.generation++
	return prev
}

// generationOf returns the counter bumped by every status change. A reader
// that sampled it before a slow call can tell whether the provider moved
// on in between.
func (r *Registry) generationOf(inst *instance) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return inst.generation
}

func (r *Registry) statusOf(inst *instance) provider.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return inst.status
}
