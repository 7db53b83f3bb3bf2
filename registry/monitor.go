package registry

import (
	"context"
	"errors"
	"time"

	"github.com/kbukum/backendkit/logger"
)

// StartMonitoring starts the health and metrics pollers. Calling it while
// they run does nothing.
func (r *Registry) StartMonitoring(ctx context.Context) {
	r.monMu.Lock()
	defer r.monMu.Unlock()
	if r.monRunning {
		return
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.monCancel = cancel
	r.monRunning = true

	r.poll(ctx, "health", r.cfg.HealthInterval, func(ctx context.Context) { r.CheckAllHealth(ctx) })
	r.poll(ctx, "metrics", r.cfg.MetricsInterval, func(ctx context.Context) { r.CollectMetrics(ctx) })

	r.log.Info("monitoring started", logger.Fields(
		"health_interval", r.cfg.HealthInterval.String(),
		"metrics_interval", r.cfg.MetricsInterval.String(),
	))
}

func (r *Registry) poll(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		r.log.Debug("monitor disabled", logger.Fields("monitor", name))
		return
	}
	r.monWG.Add(1)
	go func() {
		defer r.monWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

// StopMonitoring stops the pollers and waits for an in-flight poll to
// return.
func (r *Registry) StopMonitoring() {
	r.monMu.Lock()
	if !r.monRunning {
		r.monMu.Unlock()
		return
	}
	r.monCancel()
	r.monRunning = false
	r.monMu.Unlock()

	r.monWG.Wait()
	r.log.Info("monitoring stopped")
}

// Monitoring reports whether the pollers run.
func (r *Registry) Monitoring() bool {
	r.monMu.Lock()
	defer r.monMu.Unlock()
	return r.monRunning
}

// Start resolves dependencies, starts every auto-start provider together
// with whatever it transitively depends on, and starts monitoring. Provider
// start failures are recorded and do not fail Start.
func (r *Registry) Start(ctx context.Context) (BulkResult, error) {
	if err := r.ResolveDependencies(ctx); err != nil {
		return BulkResult{}, err
	}

	var auto []string
	for _, info := range r.ListProviders() {
		if info.Config.AutoStart {
			auto = append(auto, info.Name)
		}
	}

	r.lifeMu.Lock()
	res, err := r.startSetLocked(ctx, r.withDependencies(auto))
	r.lifeMu.Unlock()
	if err != nil {
		return res, err
	}

	r.StartMonitoring(ctx)
	return res, nil
}

// Stop stops monitoring and every provider.
func (r *Registry) Stop(ctx context.Context) BulkResult {
	r.StopMonitoring()
	return r.StopAllProviders(ctx)
}

// Destroy stops the registry and unregisters every provider in shutdown
// order. The registry is empty afterwards but remains usable.
func (r *Registry) Destroy(ctx context.Context) error {
	r.Stop(ctx)

	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()
	var errs []error
	for _, name := range r.shutdownOrderOrFallback() {
		if _, err := r.unregisterLocked(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	r.log.Info("registry destroyed", logger.Fields("errors", len(errs)))
	return errors.Join(errs...)
}

// Running returns the names of providers that are active or degraded.
func (r *Registry) Running() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, name := range r.order {
		if r.instances[name].status.Running() {
			out = append(out, name)
		}
	}
	return out
}
