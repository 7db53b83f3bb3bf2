package allinone

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/kbukum/backendkit/backends/auth"
	"github.com/kbukum/backendkit/backends/database"
	"github.com/kbukum/backendkit/backends/realtime"
	"github.com/kbukum/backendkit/backends/storage"
	"github.com/kbukum/backendkit/errors"
	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/provider"
)

// Version is reported by every all-in-one provider.
const Version = "1.0.0"

// Provider bundles database, auth, storage and realtime behind one
// registration. The database is mandatory; the others can be toggled at
// runtime and are started or stopped with the toggle when the bundle is
// running.
type Provider struct {
	*provider.Base
	log *logger.Logger

	mu      sync.Mutex
	members map[string]provider.Provider
	configs map[string]provider.Config
	table   *provider.ServiceTable
}

func New(cfg provider.Config, log *logger.Logger) *Provider {
	p := &Provider{
		Base:    provider.NewBase(cfg, Version, provider.CapMultiService, provider.CapSetupAutomation, provider.CapDiagnostics),
		log:     log.WithProvider(cfg.Name),
		members: make(map[string]provider.Provider, len(serviceOrder)),
		configs: make(map[string]provider.Config, len(serviceOrder)),
	}
	specs := make([]provider.ServiceSpec, 0, len(serviceOrder))
	for _, svc := range serviceOrder {
		p.configs[svc] = memberConfig(cfg, svc)
		p.members[svc] = newMember(svc, p.configs[svc], log)
		specs = append(specs, provider.ServiceSpec{
			Name:      svc,
			Mandatory: svc == ServiceDatabase,
			Enabled:   initiallyEnabled(cfg, svc),
			Health:    p.members[svc].Health,
			Metrics:   p.members[svc].Metrics,
			Toggle:    p.toggler(svc),
		})
	}
	p.table = provider.NewServiceTable(cfg.Name, p.Health, p.Metrics, specs...)
	return p
}

func (p *Provider) Services() provider.ServiceSet { return p.table }

// Database returns the database member.
func (p *Provider) Database() *database.Provider { return p.members[ServiceDatabase].(*database.Provider) }

func (p *Provider) Auth() *auth.Provider { return p.members[ServiceAuth].(*auth.Provider) }

func (p *Provider) Storage() *storage.Provider { return p.members[ServiceStorage].(*storage.Provider) }

func (p *Provider) Realtime() *realtime.Provider { return p.members[ServiceRealtime].(*realtime.Provider) }

func (p *Provider) enabled() []string {
	return slices.DeleteFunc(slices.Clone(serviceOrder), func(svc string) bool { return !p.table.Enabled(svc) })
}

// Initialize re-derives member configurations and initializes the enabled
// members.
func (p *Provider) Initialize(ctx context.Context, cfg provider.Config) error {
	p.mu.Lock()
	for _, svc := range serviceOrder {
		p.configs[svc] = memberConfig(cfg, svc)
	}
	p.mu.Unlock()

	for _, svc := range p.enabled() {
		if err := p.initMember(ctx, svc); err != nil {
			return err
		}
	}
	return p.Base.Initialize(ctx, cfg)
}

func (p *Provider) initMember(ctx context.Context, svc string) error {
	p.mu.Lock()
	m, cfg := p.members[svc], p.configs[svc]
	p.mu.Unlock()
	if err := m.Initialize(ctx, cfg); err != nil {
		return fmt.Errorf("%s: %w", svc, err)
	}
	if svc == ServiceAuth {
		return m.SetDependency(ServiceDatabase, p.members[ServiceDatabase])
	}
	return nil
}

// Start starts the enabled members in order. A failure stops the members
// already started.
func (p *Provider) Start(ctx context.Context) error {
	var started []string
	for _, svc := range p.enabled() {
		if err := p.members[svc].Start(ctx); err != nil {
			for _, s := range slices.Backward(started) {
				_ = p.members[s].Stop(ctx)
			}
			return fmt.Errorf("starting %s: %w", svc, err)
		}
		started = append(started, svc)
	}
	p.SetRunning(true)
	p.log.Info("all-in-one provider started", logger.Fields("services", started))
	return nil
}

// Stop stops every running member in reverse order.
func (p *Provider) Stop(ctx context.Context) error {
	p.SetRunning(false)
	var errs []error
	for _, svc := range slices.Backward(serviceOrder) {
		if err := p.members[svc].Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping %s: %w", svc, err))
		}
	}
	return stderrors.Join(errs...)
}

func (p *Provider) Destroy(ctx context.Context) error {
	var errs []error
	for _, svc := range slices.Backward(serviceOrder) {
		if err := p.members[svc].Destroy(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, p.Base.Destroy(ctx))
	return stderrors.Join(errs...)
}

func (p *Provider) toggler(svc string) func(context.Context, bool) error {
	return func(ctx context.Context, on bool) error {
		if !p.Running() {
			return nil
		}
		if !on {
			p.log.Info("stopping service", logger.Fields("service", svc))
			return p.members[svc].Stop(ctx)
		}
		if err := p.initMember(ctx, svc); err != nil {
			return err
		}
		p.log.Info("starting service", logger.Fields("service", svc))
		return p.members[svc].Start(ctx)
	}
}

// Health combines the enabled members. An unhealthy database makes the
// bundle unhealthy; any other member that is not healthy degrades it.
func (p *Provider) Health(ctx context.Context) (provider.Health, error) {
	start := time.Now()
	h := provider.Health{State: provider.HealthHealthy, CheckedAt: start}
	if !p.Running() {
		h.State, h.Message, h.Errors = provider.HealthUnhealthy, "provider is not running", 1
		return h, nil
	}
	details := make(map[string]any)
	var problems []string
	for _, svc := range p.enabled() {
		mh, err := p.members[svc].Health(ctx)
		if err != nil {
			mh = provider.Health{State: provider.HealthUnhealthy, Message: err.Error()}
		}
		details[svc] = string(mh.State)
		if mh.State == provider.HealthHealthy {
			continue
		}
		problems = append(problems, fmt.Sprintf("%s: %s", svc, mh.State))
		if svc == ServiceDatabase && mh.State == provider.HealthUnhealthy {
			h.State = provider.HealthUnhealthy
			h.Errors++
		} else {
			if h.State == provider.HealthHealthy {
				h.State = provider.HealthDegraded
			}
			h.Warnings++
		}
	}
	h.Latency = time.Since(start)
	h.Details = details
	if len(problems) > 0 {
		h.Message = fmt.Sprint(problems)
	}
	return h, nil
}

// Metrics sums the enabled members' request counts. Business counters are
// keyed "<service>.<name>".
func (p *Provider) Metrics(ctx context.Context) (provider.Metrics, error) {
	out := provider.Metrics{Timestamp: time.Now(), Business: make(map[string]float64)}
	var weighted float64
	for _, svc := range p.enabled() {
		m, err := p.members[svc].Metrics(ctx)
		if err != nil {
			return provider.Metrics{}, errors.Lifecycle("metrics", p.Name()+"/"+svc, err)
		}
		out.Requests.Total += m.Requests.Total
		out.Requests.Successful += m.Requests.Successful
		out.Requests.Failed += m.Requests.Failed
		out.Resources.Connections += m.Resources.Connections
		weighted += m.Performance.AvgResponseMs * float64(m.Requests.Total)
		out.Performance.P95Ms = max(out.Performance.P95Ms, m.Performance.P95Ms)
		out.Performance.P99Ms = max(out.Performance.P99Ms, m.Performance.P99Ms)
		for k, v := range m.Business {
			out.Business[svc+"."+k] = v
		}
	}
	if out.Requests.Total > 0 {
		out.Performance.AvgResponseMs = weighted / float64(out.Requests.Total)
	}
	return out, nil
}

// Diagnose runs every enabled member's checks, prefixing check names with
// the service.
func (p *Provider) Diagnose(ctx context.Context) []provider.CheckResult {
	var out []provider.CheckResult
	for _, svc := range p.enabled() {
		for _, c := range p.members[svc].Diagnose(ctx) {
			c.Name = svc + "/" + c.Name
			out = append(out, c)
		}
	}
	return out
}
