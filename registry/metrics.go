package registry

import (
	"context"
	"slices"
	"time"

	"github.com/kbukum/backendkit/errors"
	"github.com/kbukum/backendkit/events"
	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/provider"
	"github.com/kbukum/backendkit/resilience"
)

// MetricsSummary aggregates the latest snapshot of every provider.
type MetricsSummary struct {
	Providers          int                      `json:"providers"`
	TotalRequests      int64                    `json:"total_requests"`
	SuccessfulRequests int64                    `json:"successful_requests"`
	FailedRequests     int64                    `json:"failed_requests"`
	SuccessRate        float64                  `json:"success_rate"`
	ErrorRate          float64                  `json:"error_rate"`
	AvgResponseMs      float64                  `json:"avg_response_ms"`
	Resources          provider.ResourceMetrics `json:"resources"`
	Timestamp          time.Time                `json:"timestamp"`
}

// ProviderCounts counts providers by lifecycle status.
type ProviderCounts struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Degraded int `json:"degraded"`
	Failed   int `json:"failed"`
	Stopped  int `json:"stopped"`
}

// Snapshot is the registry-wide metrics view, recomputed on every call.
type Snapshot struct {
	Providers   ProviderCounts        `json:"providers"`
	Performance MetricsSummary        `json:"performance"`
	Events      map[events.Type]int64 `json:"events"`
	EventsHeld  int                   `json:"events_held"`
	Timestamp   time.Time             `json:"timestamp"`
}

// CollectMetrics snapshots every running provider into its rolling
// history. A failing collection is logged, counted as an error and
// reported as metrics_collection_failed; it does not change status.
func (r *Registry) CollectMetrics(ctx context.Context) map[string]provider.Metrics {
	out := make(map[string]provider.Metrics)
	for _, name := range r.Names() {
		inst, ok := r.instance(name)
		if !ok || !r.statusOf(inst).Running() {
			continue
		}
		m, err := r.collect(ctx, inst)
		if err != nil {
			continue
		}
		out[name] = m
	}
	return out
}

func (r *Registry) collect(ctx context.Context, inst *instance) (provider.Metrics, error) {
	cfg := inst.p.Config()
	result := make(chan provider.Metrics, 1)
	err := resilience.WithTimeout(ctx, cfg.Timeout, "metrics "+inst.name, func(ctx context.Context) error {
		m, err := inst.p.Metrics(ctx)
		if err != nil {
			return err
		}
		result <- m
		return nil
	})
	if err != nil {
		r.mu.Lock()
		inst.recordFailure(err)
		r.mu.Unlock()
		r.log.Warn("metrics collection failed", logger.MergeWithError(logger.Fields(logger.FieldProvider, inst.name), err))
		r.emit(ctx, events.MetricsCollectionFailed, inst.name, nil, err)
		return provider.Metrics{}, err
	}

	m := <-result
	if m.Timestamp.IsZero() {
		m.Timestamp = r.now()
	}
	r.mu.Lock()
	inst.metrics = append(inst.metrics, m)
	if over := len(inst.metrics) - r.cfg.MetricsHistorySize; over > 0 {
		inst.metrics = slices.Delete(inst.metrics, 0, over)
	}
	r.mu.Unlock()
	return m, nil
}

// ProviderMetrics collects a fresh snapshot from the named provider and
// appends it to its history.
func (r *Registry) ProviderMetrics(ctx context.Context, name string) (provider.Metrics, error) {
	inst, err := r.mustInstance(name)
	if err != nil {
		return provider.Metrics{}, err
	}
	m, err := r.collect(ctx, inst)
	if err != nil {
		return provider.Metrics{}, errors.Lifecycle("collect_metrics", name, err)
	}
	return m, nil
}

// MetricsHistory returns the stored snapshots of the named provider,
// oldest first. A positive limit keeps the most recent limit.
func (r *Registry) MetricsHistory(name string, limit int) ([]provider.Metrics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[name]
	if !ok {
		return nil, errors.NotFound("provider", name)
	}
	h := inst.metrics
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	return slices.Clone(h), nil
}

// AllMetrics returns the latest stored snapshot of every provider that
// has one.
func (r *Registry) AllMetrics() map[string]provider.Metrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]provider.Metrics, len(r.instances))
	for name, inst := range r.instances {
		if n := len(inst.metrics); n > 0 {
			out[name] = inst.metrics[n-1]
		}
	}
	return out
}

// MetricsSummary sums request counts and resources across the latest
// snapshots. The average response time is weighted by request count, or a
// plain mean when no provider has served requests.
func (r *Registry) MetricsSummary() MetricsSummary {
	return summarize(r.AllMetrics(), r.now())
}

func summarize(latest map[string]provider.Metrics, now time.Time) MetricsSummary {
	s := MetricsSummary{Providers: len(latest), Timestamp: now}
	var weighted, plain float64
	for _, m := range latest {
		s.TotalRequests += m.Requests.Total
		s.SuccessfulRequests += m.Requests.Successful
		s.FailedRequests += m.Requests.Failed
		weighted += m.Performance.AvgResponseMs * float64(m.Requests.Total)
		plain += m.Performance.AvgResponseMs
		s.Resources.CPUPercent += m.Resources.CPUPercent
		s.Resources.MemoryBytes += m.Resources.MemoryBytes
		s.Resources.Connections += m.Resources.Connections
	}
	switch {
	case s.TotalRequests > 0:
		s.SuccessRate = float64(s.SuccessfulRequests) / float64(s.TotalRequests)
		s.ErrorRate = float64(s.FailedRequests) / float64(s.TotalRequests)
		s.AvgResponseMs = weighted / float64(s.TotalRequests)
	case len(latest) > 0:
		s.AvgResponseMs = plain / float64(len(latest))
	}
	return s
}

// RegistryMetrics returns provider counts, the metrics summary and event
// counts.
func (r *Registry) RegistryMetrics() Snapshot {
	r.mu.RLock()
	var counts ProviderCounts
	counts.Total = len(r.instances)
	for _, inst := range r.instances {
		switch inst.status {
		case provider.StatusActive:
			counts.Active++
		case provider.StatusDegraded:
			counts.Degraded++
		case provider.StatusFailed:
			counts.Failed++
		case provider.StatusStopped, provider.StatusRegistered:
			counts.Stopped++
		}
	}
	r.mu.RUnlock()

	return Snapshot{
		Providers:   counts,
		Performance: r.MetricsSummary(),
		Events:      r.bus.Counts(),
		EventsHeld:  r.bus.Len(),
		Timestamp:   r.now(),
	}
}
