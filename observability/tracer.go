package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names used by the registry.
const (
	SpanLifecycle = "registry.lifecycle"
	SpanHealth    = "registry.health"
	SpanResolve   = "registry.resolve"
)

// Tracer returns the registry tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartProviderSpan starts a span for op on provider.
func StartProviderSpan(ctx context.Context, name, provider, op string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(
		attribute.String(AttrProvider, provider),
		attribute.String(AttrOperation, op),
	))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
