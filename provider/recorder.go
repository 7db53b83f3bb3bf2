package provider

import (
	"slices"
	"sync"
	"time"
)

const recorderWindow = 1024

// Recorder counts requests and keeps a sliding window of latencies for
// percentile reporting. It is safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	total     int64
	failed    int64
	sumMs     float64
	window    []float64
	next      int
	business  map[string]float64
	resources ResourceMetrics
}

func NewRecorder() *Recorder {
	return &Recorder{window: make([]float64, 0, recorderWindow), business: make(map[string]float64)}
}

// Observe records one request.
func (r *Recorder) Observe(d time.Duration, err error) {
	ms := float64(d) / float64(time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.total++
	if err != nil {
		r.failed++
	}
	r.sumMs += ms
	if len(r.window) < recorderWindow {
		r.window = append(r.window, ms)
	} else {
		r.window[r.next] = ms
	}
	r.next = (r.next + 1) % recorderWindow
}

// Track times fn and records its outcome.
func (r *Recorder) Track(fn func() error) error {
	start := time.Now()
	err := fn()
	r.Observe(time.Since(start), err)
	return err
}

// AddBusiness increments a named business counter.
func (r *Recorder) AddBusiness(name string, delta float64) {
	r.mu.Lock()
	r.business[name] += delta
	r.mu.Unlock()
}

// SetResources replaces the reported resource usage.
func (r *Recorder) SetResources(res ResourceMetrics) {
	r.mu.Lock()
	r.resources = res
	r.mu.Unlock()
}

// Snapshot returns the current metrics.
func (r *Recorder) Snapshot() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := Metrics{
		Timestamp: time.Now(),
		Requests: RequestMetrics{
			Total:      r.total,
			Successful: r.total - r.failed,
			Failed:     r.failed,
		},
		Resources: r.resources,
	}
	if r.total > 0 {
		m.Performance.AvgResponseMs = r.sumMs / float64(r.total)
	}
	if len(r.window) > 0 {
		sorted := slices.Clone(r.window)
		slices.Sort(sorted)
		m.Performance.P50Ms = percentile(sorted, 0.50)
		m.Performance.P95Ms = percentile(sorted, 0.95)
		m.Performance.P99Ms = percentile(sorted, 0.99)
	}
	if len(r.business) > 0 {
		m.Business = make(map[string]float64, len(r.business))
		for k, v := range r.business {
			m.Business[k] = v
		}
	}
	return m
}

// percentile uses nearest-rank on an ascending slice.
func percentile(sorted []float64, p float64) float64 {
	idx := int(float64(len(sorted))*p+0.5) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
