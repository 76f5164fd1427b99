// Package telemetry is the observability surface of the tutor runtime: a
// fixed span taxonomy (session lifecycle, routing, conversation items,
// guardrail checks, escalations) exported over OTLP/HTTP protobuf, a small
// set of Prometheus metrics, structured slog-based logging carried through
// context, and a per-worker health/metrics HTTP server.
//
// # Tracing
//
// [InitTracer] wires the global OTel tracer provider to an OTLP/HTTP
// exporter (the observability backend does not accept gRPC). The span
// taxonomy in spans.go (SessionStart, RoutingDecision, GuardrailCheck, etc.)
// is the only sanctioned way to emit spans — callers should not call
// [StartSpan] directly except from within this package, so the attribute
// set per span name stays fixed.
//
// # Metrics
//
// [InitMeter] wires the global OTel meter provider to a Prometheus exporter.
// The resulting *prometheus.Exporter is served at /metrics by [HealthServer].
//
// # Logging
//
// [NewLoggerFromConfig] builds a [Logger] from plain level/format strings
// (see config.Config) and [WithLogger] attaches it to a context for
// propagation down the call stack; [FromContext] retrieves it.
package telemetry
