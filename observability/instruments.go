package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/kbukum/backendkit/registry"

// Attribute keys on registry instruments and spans.
const (
	AttrProvider  = "provider.name"
	AttrType      = "provider.type"
	AttrOperation = "operation"
	AttrStatus    = "status"
	AttrHealth    = "health"
	AttrEvent     = "event.type"
	AttrSeverity  = "event.severity"
)

// StatusCounter reports the number of providers per lifecycle status.
type StatusCounter func() map[string]int64

// RegistryInstruments holds the registry's metric instruments.
type RegistryInstruments struct {
	lifecycleTotal    metric.Int64Counter
	lifecycleDuration metric.Float64Histogram
	healthLatency     metric.Float64Histogram
	eventTotal        metric.Int64Counter
	providers         metric.Int64ObservableGauge
	registration      metric.Registration
}

// NewRegistryInstruments creates the instruments on meter. When counts is
// non-nil a gauge of providers per status is observed on every collection.
// A nil meter uses the global meter provider.
func NewRegistryInstruments(meter metric.Meter, counts StatusCounter) (*RegistryInstruments, error) {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	ri := &RegistryInstruments{}
	var err error

	if ri.lifecycleTotal, err = meter.Int64Counter("registry.lifecycle.operations",
		metric.WithDescription("Provider lifecycle operations by outcome"),
	); err != nil {
		return nil, fmt.Errorf("creating registry.lifecycle.operations counter: %w", err)
	}
	if ri.lifecycleDuration, err = meter.Float64Histogram("registry.lifecycle.duration",
		metric.WithDescription("Duration of provider lifecycle operations"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating registry.lifecycle.duration histogram: %w", err)
	}
	if ri.healthLatency, err = meter.Float64Histogram("registry.health.latency",
		metric.WithDescription("Latency of provider health probes"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating registry.health.latency histogram: %w", err)
	}
	if ri.eventTotal, err = meter.Int64Counter("registry.events",
		metric.WithDescription("Provider events emitted"),
	); err != nil {
		return nil, fmt.Errorf("creating registry.events counter: %w", err)
	}
	if ri.providers, err = meter.Int64ObservableGauge("registry.providers",
		metric.WithDescription("Registered providers by lifecycle status"),
	); err != nil {
		return nil, fmt.Errorf("creating registry.providers gauge: %w", err)
	}

	if counts != nil {
		ri.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			for status, n := range counts() {
				o.ObserveInt64(ri.providers, n, metric.WithAttributes(attribute.String(AttrStatus, status)))
			}
			return nil
		}, ri.providers)
		if err != nil {
			return nil, fmt.Errorf("registering registry.providers callback: %w", err)
		}
	}
	return ri, nil
}

// RecordLifecycle records one lifecycle operation.
func (ri *RegistryInstruments) RecordLifecycle(ctx context.Context, provider, op string, err error, d time.Duration) {
	if ri == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	ri.lifecycleTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrProvider, provider),
		attribute.String(AttrOperation, op),
		attribute.String(AttrStatus, status),
	))
	ri.lifecycleDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String(AttrOperation, op),
		attribute.String(AttrStatus, status),
	))
}

// RecordHealth records one health probe.
func (ri *RegistryInstruments) RecordHealth(ctx context.Context, provider, state string, latency time.Duration) {
	if ri == nil {
		return
	}
	ri.healthLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(
		attribute.String(AttrProvider, provider),
		attribute.String(AttrHealth, state),
	))
}

// RecordEvent counts one emitted event.
func (ri *RegistryInstruments) RecordEvent(ctx context.Context, eventType, severity string) {
	if ri == nil {
		return
	}
	ri.eventTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrEvent, eventType),
		attribute.String(AttrSeverity, severity),
	))
}

// Close unregisters the gauge callback.
func (ri *RegistryInstruments) Close() error {
	if ri == nil || ri.registration == nil {
		return nil
	}
	return ri.registration.Unregister()
}
