package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// TracerOption configures the tracer provider initialised by InitTracer.
type TracerOption func(*tracerConfig)

type tracerConfig struct {
	exporter   sdktrace.SpanExporter
	sampler    sdktrace.Sampler
	syncExport bool
}

// WithSpanExporter overrides the default OTLP/HTTP exporter, primarily for
// tests that capture spans in memory.
func WithSpanExporter(exp sdktrace.SpanExporter) TracerOption {
	return func(cfg *tracerConfig) { cfg.exporter = exp }
}

// WithSampler sets a custom sampler for the tracer provider.
func WithSampler(s sdktrace.Sampler) TracerOption {
	return func(cfg *tracerConfig) { cfg.sampler = s }
}

// WithSyncExport configures synchronous span export instead of batched,
// useful in tests where spans must be available immediately after End().
func WithSyncExport() TracerOption {
	return func(cfg *tracerConfig) { cfg.syncExport = true }
}

// InitTracer initialises the global OTel tracer provider, exporting spans
// over OTLP/HTTP protobuf to endpoint (the observability backend's target
// explicitly does not support gRPC). It returns a shutdown function that
// must be called on worker exit to flush pending spans.
func InitTracer(ctx context.Context, serviceName, endpoint string, opts ...TracerOption) (func(context.Context) error, error) {
	cfg := &tracerConfig{
		sampler: sdktrace.AlwaysSample(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.exporter == nil {
		exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
		if err != nil {
			return nil, fmt.Errorf("telemetry: create otlp/http exporter: %w", err)
		}
		cfg.exporter = exp
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(cfg.sampler),
	}
	if cfg.syncExport {
		tpOpts = append(tpOpts, sdktrace.WithSyncer(cfg.exporter))
	} else {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.exporter))
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)
	tracer = tp.Tracer("github.com/brightclass/voicetutor/telemetry")

	return tp.Shutdown, nil
}
