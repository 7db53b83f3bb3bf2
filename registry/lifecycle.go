package registry

import (
	"context"
	"slices"
	"time"

	"github.com/kbukum/backendkit/errors"
	"github.com/kbukum/backendkit/events"
	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/observability"
	"github.com/kbukum/backendkit/provider"
	"github.com/kbukum/backendkit/resilience"
)

// BulkResult reports the outcome of a bulk lifecycle operation.
type BulkResult struct {
	Succeeded []string          `json:"succeeded"`
	Skipped   []string          `json:"skipped,omitempty"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// OK reports whether no provider failed.
func (b BulkResult) OK() bool { return len(b.Failed) == 0 }

func (b *BulkResult) fail(name string, err error) {
	if b.Failed == nil {
		b.Failed = make(map[string]string)
	}
	b.Failed[name] = err.Error()
}

// StartProvider initializes and starts the named provider. An active or
// degraded provider is left alone. Initialize and Start run under the
// provider's timeout and are retried RetryCount times; on failure the
// provider is marked failed, provider_failed is emitted and a
// LIFECYCLE_ERROR is returned.
func (r *Registry) StartProvider(ctx context.Context, name string) error {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()
	inst, err := r.mustInstance(name)
	if err != nil {
		return err
	}
	return r.startLocked(ctx, inst)
}

func (r *Registry) startLocked(ctx context.Context, inst *instance) (err error) {
	if r.statusOf(inst).Running() {
		return nil
	}
	r.warnInactiveDependencies(inst)

	r.setStatus(inst, provider.StatusInitializing)
	cfg := inst.p.Config()
	log := r.log.WithProvider(inst.name)
	log.Debug("starting provider", logger.Fields("timeout", cfg.Timeout.String(), "retry_count", cfg.RetryCount))

	started := r.now()
	ctx, span := observability.StartProviderSpan(ctx, observability.SpanLifecycle, inst.name, "start")
	defer func() {
		observability.EndSpan(span, err)
		r.instruments.RecordLifecycle(ctx, inst.name, "start", err, r.now().Sub(started))
	}()

	retry := resilience.ForRetryCount(cfg.RetryCount)
	retry.OnRetry = func(attempt int, err error, backoff time.Duration) {
		log.Warn("provider start failed, retrying", logger.MergeWithError(logger.Fields(
			logger.FieldAttempt, attempt,
			"backoff", backoff.String(),
		), err))
	}
	startErr := resilience.Retry(ctx, retry, func(ctx context.Context) error {
		return resilience.WithTimeout(ctx, cfg.Timeout, "start "+inst.name, func(ctx context.Context) error {
			if err := inst.p.Initialize(ctx, cfg); err != nil {
				return err
			}
			return inst.p.Start(ctx)
		})
	})

	if startErr != nil {
		r.mu.Lock()
		inst.markFailed(startErr)
		r.mu.Unlock()

		log.Error("provider start failed", logger.ErrorFields("start", startErr))
		r.emit(ctx, events.ProviderFailed, inst.name, map[string]any{"operation": "start"}, startErr)
		return errors.Lifecycle("start", inst.name, startErr)
	}

	elapsed := r.now().Sub(started)
	r.setStatus(inst, provider.StatusActive)
	log.Info("provider started", logger.DurationFields("start", elapsed))
	r.emit(ctx, events.ProviderStarted, inst.name, map[string]any{"duration_ms": elapsed.Milliseconds()}, nil)
	return nil
}

// warnInactiveDependencies logs dependencies that are not running. Start
// does not refuse to run; the provider decides whether it can work without
// them.
func (r *Registry) warnInactiveDependencies(inst *instance) {
	r.mu.RLock()
	var inactive []string
	for _, dep := range inst.dependencies {
		if d, ok := r.instances[dep]; !ok || !d.status.Running() {
			inactive = append(inactive, dep)
		}
	}
	r.mu.RUnlock()
	if len(inactive) > 0 {
		r.log.Warn("starting provider with inactive dependencies", logger.Fields(
			logger.FieldProvider, inst.name,
			logger.FieldDependency, inactive,
		))
	}
}

// StopProvider stops the named provider. A registered or stopped provider
// is left alone. A failing Stop marks the provider failed and returns a
// LIFECYCLE_ERROR.
func (r *Registry) StopProvider(ctx context.Context, name string) error {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()
	inst, err := r.mustInstance(name)
	if err != nil {
		return err
	}
	return r.stopLocked(ctx, inst)
}

func (r *Registry) stopLocked(ctx context.Context, inst *instance) (err error) {
	switch r.statusOf(inst) {
	case provider.StatusRegistered, provider.StatusStopped:
		return nil
	}

	// Probes already in flight must not act on what they see while the
	// provider shuts down.
	r.mu.Lock()
	inst.generation++
	r.mu.Unlock()

	cfg := inst.p.Config()
	log := r.log.WithProvider(inst.name)
	started := r.now()
	ctx, span := observability.StartProviderSpan(ctx, observability.SpanLifecycle, inst.name, "stop")
	defer func() {
		observability.EndSpan(span, err)
		r.instruments.RecordLifecycle(ctx, inst.name, "stop", err, r.now().Sub(started))
	}()

	stopErr := resilience.WithTimeout(ctx, cfg.Timeout, "stop "+inst.name, inst.p.Stop)
	if stopErr != nil {
		r.mu.Lock()
		inst.markFailed(stopErr)
		r.mu.Unlock()

		log.Error("provider stop failed", logger.ErrorFields("stop", stopErr))
		r.emit(ctx, events.ProviderFailed, inst.name, map[string]any{"operation": "stop"}, stopErr)
		return errors.Lifecycle("stop", inst.name, stopErr)
	}

	r.setStatus(inst, provider.StatusStopped)
	log.Info("provider stopped", logger.DurationFields("stop", r.now().Sub(started)))
	r.emit(ctx, events.ProviderStopped, inst.name, nil, nil)
	return nil
}

// RestartProvider stops then starts the named provider.
func (r *Registry) RestartProvider(ctx context.Context, name string) error {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()
	inst, err := r.mustInstance(name)
	if err != nil {
		return err
	}
	return r.restartLocked(ctx, inst)
}

func (r *Registry) restartLocked(ctx context.Context, inst *instance) error {
	if err := r.stopLocked(ctx, inst); err != nil {
		return err
	}
	return r.startLocked(ctx, inst)
}

// StartAllProviders starts every provider in startup order. A provider
// that fails is recorded and the rest are still attempted. Only an
// ordering failure, such as a dependency cycle, is returned as an error.
func (r *Registry) StartAllProviders(ctx context.Context) (BulkResult, error) {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()
	return r.startSetLocked(ctx, nil)
}

// startSetLocked starts the providers in only, or all when only is nil,
// in startup order.
func (r *Registry) startSetLocked(ctx context.Context, only map[string]bool) (BulkResult, error) {
	order, err := r.StartupOrder()
	if err != nil {
		return BulkResult{}, err
	}

	var res BulkResult
	for _, name := range order {
		if only != nil && !only[name] {
			continue
		}
		inst, ok := r.instance(name)
		if !ok {
			continue
		}
		if r.statusOf(inst).Running() {
			res.Skipped = append(res.Skipped, name)
			continue
		}
		if err := r.startLocked(ctx, inst); err != nil {
			res.fail(name, err)
			continue
		}
		res.Succeeded = append(res.Succeeded, name)
	}

	r.logBulk("start", res)
	return res, nil
}

// StopAllProviders stops every provider in shutdown order, continuing past
// failures. When the graph has a cycle it falls back to reverse
// registration order so the process can still shut down.
func (r *Registry) StopAllProviders(ctx context.Context) BulkResult {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()
	return r.stopAllLocked(ctx)
}

func (r *Registry) stopAllLocked(ctx context.Context) BulkResult {
	var res BulkResult
	for _, name := range r.shutdownOrderOrFallback() {
		inst, ok := r.instance(name)
		if !ok {
			continue
		}
		switch r.statusOf(inst) {
		case provider.StatusRegistered, provider.StatusStopped:
			res.Skipped = append(res.Skipped, name)
			continue
		}
		if err := r.stopLocked(ctx, inst); err != nil {
			res.fail(name, err)
			continue
		}
		res.Succeeded = append(res.Succeeded, name)
	}

	r.logBulk("stop", res)
	return res
}

func (r *Registry) shutdownOrderOrFallback() []string {
	order, err := r.ShutdownOrder()
	if err == nil {
		return order
	}
	r.log.Warn("shutdown order unavailable, using reverse registration order", logger.Fields(logger.FieldError, err.Error()))
	names := r.Names()
	slices.Reverse(names)
	return names
}

func (r *Registry) logBulk(op string, res BulkResult) {
	fields := logger.Fields(
		logger.FieldOperation, op,
		"succeeded", len(res.Succeeded),
		"skipped", len(res.Skipped),
		"failed", len(res.Failed),
	)
	if res.OK() {
		r.log.Info("bulk operation completed", fields)
		return
	}
	r.log.Warn("bulk operation completed with failures", fields)
}
