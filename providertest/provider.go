package providertest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/kbukum/backendkit/provider"
)

// FakeProvider is a provider whose behavior is set by the test. It records
// every lifecycle call.
type FakeProvider struct {
	*provider.Base

	mu         sync.Mutex
	calls      []string
	initErr    error
	startErr   error
	startFails int
	stopErr    error
	destroyErr error
	startDelay time.Duration
	health     *provider.Health
	healthErr  error
	healthFn   func(context.Context) (provider.Health, error)
	metrics    *provider.Metrics
	metricsErr error
	updateErr  error
	checks     []provider.CheckResult
	services   provider.ServiceSet
	steps      []provider.SetupStep
}

// NewProvider creates a FakeProvider for cfg.
func NewProvider(cfg provider.Config, caps ...provider.Capability) *FakeProvider {
	return &FakeProvider{Base: provider.NewBase(cfg, "0.0.0-test", caps...)}
}

func (f *FakeProvider) record(op string) {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	f.mu.Unlock()
}

// Calls returns the lifecycle calls made so far, in order.
func (f *FakeProvider) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallCount returns how often op was called.
func (f *FakeProvider) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

// FailInitialize makes Initialize return err.
func (f *FakeProvider) FailInitialize(err error) {
	f.mu.Lock()
	f.initErr = err
	f.mu.Unlock()
}

// FailStart makes every Start return err. A nil err clears the failure.
func (f *FakeProvider) FailStart(err error) {
	f.mu.Lock()
	f.startErr = err
	f.startFails = -1
	f.mu.Unlock()
}

// FailStartTimes makes the next n Start calls return err.
func (f *FakeProvider) FailStartTimes(n int, err error) {
	f.mu.Lock()
	f.startErr = err
	f.startFails = n
	f.mu.Unlock()
}

func (f *FakeProvider) FailStop(err error) {
	f.mu.Lock()
	f.stopErr = err
	f.mu.Unlock()
}

func (f *FakeProvider) FailDestroy(err error) {
	f.mu.Lock()
	f.destroyErr = err
	f.mu.Unlock()
}

func (f *FakeProvider) FailUpdateConfig(err error) {
	f.mu.Lock()
	f.updateErr = err
	f.mu.Unlock()
}

// SetStartDelay makes Start block for d or until its context ends.
func (f *FakeProvider) SetStartDelay(d time.Duration) {
	f.mu.Lock()
	f.startDelay = d
	f.mu.Unlock()
}

// SetHealth fixes the probe result. Without it Base.Health is used.
func (f *FakeProvider) SetHealth(h provider.Health) {
	f.mu.Lock()
	f.health = &h
	f.healthErr = nil
	f.mu.Unlock()
}

// SetHealthFunc replaces the probe with fn. It takes precedence over
// SetHealth and SetHealthError.
func (f *FakeProvider) SetHealthFunc(fn func(context.Context) (provider.Health, error)) {
	f.mu.Lock()
	f.healthFn = fn
	f.mu.Unlock()
}

// SetHealthError makes the probe fail.
func (f *FakeProvider) SetHealthError(err error) {
	f.mu.Lock()
	f.healthErr = err
	f.mu.Unlock()
}

// SetMetrics fixes the metrics snapshot.
func (f *FakeProvider) SetMetrics(m provider.Metrics) {
	f.mu.Lock()
	f.metrics = &m
	f.metricsErr = nil
	f.mu.Unlock()
}

func (f *FakeProvider) SetMetricsError(err error) {
	f.mu.Lock()
	f.metricsErr = err
	f.mu.Unlock()
}

// SetChecks sets the diagnostics result.
func (f *FakeProvider) SetChecks(checks ...provider.CheckResult) {
	f.mu.Lock()
	f.checks = checks
	f.mu.Unlock()
}

func (f *FakeProvider) SetServices(s provider.ServiceSet) {
	f.mu.Lock()
	f.services = s
	f.mu.Unlock()
}

func (f *FakeProvider) SetSetupSteps(steps ...provider.SetupStep) {
	f.mu.Lock()
	f.steps = steps
	f.mu.Unlock()
}

func (f *FakeProvider) Initialize(ctx context.Context, cfg provider.Config) error {
	f.record("initialize")
	f.mu.Lock()
	err := f.initErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Base.Initialize(ctx, cfg)
}

func (f *FakeProvider) Start(ctx context.Context) error {
	f.record("start")
	f.mu.Lock()
	delay := f.startDelay
	var err error
	if f.startErr != nil && f.startFails != 0 {
		err = f.startErr
		if f.startFails > 0 {
			f.startFails--
		}
	}
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	return f.Base.Start(ctx)
}

func (f *FakeProvider) Stop(ctx context.Context) error {
	f.record("stop")
	f.mu.Lock()
	err := f.stopErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Base.Stop(ctx)
}

func (f *FakeProvider) Destroy(ctx context.Context) error {
	f.record("destroy")
	f.mu.Lock()
	err := f.destroyErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Base.Destroy(ctx)
}

func (f *FakeProvider) Health(ctx context.Context) (provider.Health, error) {
	f.mu.Lock()
	h, err, fn := f.health, f.healthErr, f.healthFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	if err != nil {
		return provider.Health{}, err
	}
	if h != nil {
		return *h, nil
	}
	return f.Base.Health(ctx)
}

func (f *FakeProvider) Metrics(ctx context.Context) (provider.Metrics, error) {
	f.mu.Lock()
	m, err := f.metrics, f.metricsErr
	f.mu.Unlock()
	if err != nil {
		return provider.Metrics{}, err
	}
	if m != nil {
		return *m, nil
	}
	return f.Base.Metrics(ctx)
}

func (f *FakeProvider) UpdateConfig(ctx context.Context, patch provider.ConfigPatch) error {
	f.record("update_config")
	f.mu.Lock()
	err := f.updateErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Base.UpdateConfig(ctx, patch)
}

func (f *FakeProvider) Services() provider.ServiceSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.services
}

func (f *FakeProvider) SetupSteps() []provider.SetupStep {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.steps)
}

func (f *FakeProvider) Diagnose(context.Context) []provider.CheckResult {
	f.record("diagnose")
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.checks)
}
