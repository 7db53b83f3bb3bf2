package provider

import (
	"context"
	"time"
)

// Provider is the contract every backend implementation satisfies. Methods
// gated by a capability (Services, SetupSteps, Diagnose, SetDependency)
// are only called by the registry when Capabilities declares it.
type Provider interface {
	Name() string
	Type() Type
	Version() string
	Capabilities() Capabilities

	// Initialize prepares the provider with cfg. It is called on every
	// start, so it must tolerate being called again after Stop.
	Initialize(ctx context.Context, cfg Config) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	// Destroy releases everything the provider holds. It is called once,
	// when the provider is unregistered.
	Destroy(ctx context.Context) error

	Health(ctx context.Context) (Health, error)
	Metrics(ctx context.Context) (Metrics, error)

	Config() Config
	UpdateConfig(ctx context.Context, patch ConfigPatch) error

	// Dependencies names the providers that must be active first.
	Dependencies() []string
	SetDependency(name string, dep Provider) error

	Services() ServiceSet
	SetupSteps() []SetupStep
	Diagnose(ctx context.Context) []CheckResult
}

// Health is the result of one health probe.
type Health struct {
	State     HealthState    `json:"state"`
	Message   string         `json:"message,omitempty"`
	Latency   time.Duration  `json:"latency"`
	Errors    int            `json:"errors"`
	Warnings  int            `json:"warnings"`
	Details   map[string]any `json:"details,omitempty"`
	CheckedAt time.Time      `json:"checked_at"`
}

// Metrics is a point-in-time metrics snapshot.
type Metrics struct {
	Timestamp   time.Time          `json:"timestamp"`
	Requests    RequestMetrics     `json:"requests"`
	Performance PerformanceMetrics `json:"performance"`
	Resources   ResourceMetrics    `json:"resources"`
	Business    map[string]float64 `json:"business,omitempty"`
}

type RequestMetrics struct {
	Total      int64 `json:"total"`
	Successful int64 `json:"successful"`
	Failed     int64 `json:"failed"`
}

// PerformanceMetrics holds response times in milliseconds.
type PerformanceMetrics struct {
	AvgResponseMs float64 `json:"avg_response_ms"`
	P50Ms         float64 `json:"p50_ms"`
	P95Ms         float64 `json:"p95_ms"`
	P99Ms         float64 `json:"p99_ms"`
}

type ResourceMetrics struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryBytes int64   `json:"memory_bytes"`
	Connections int     `json:"connections"`
}

// CheckResult is the outcome of one diagnostic check.
type CheckResult struct {
	Name     string        `json:"name"`
	Passed   bool          `json:"passed"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// SetupStep is one step of a guided setup. Optional steps may fail without
// aborting the setup.
type SetupStep struct {
	ID          string                          `json:"id"`
	Title       string                          `json:"title"`
	Description string                          `json:"description,omitempty"`
	Required    bool                            `json:"required"`
	Run         func(ctx context.Context) error `json:"-"`
}
