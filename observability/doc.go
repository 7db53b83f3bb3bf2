// Package observability exports registry telemetry over OTLP.
//
// InitMeter and InitTracer install global OpenTelemetry providers.
// RegistryInstruments records lifecycle operations, health probes and
// events; a nil *RegistryInstruments is valid and records nothing, so the
// registry can run without telemetry configured.
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4318"
//	  insecure: true
package observability
