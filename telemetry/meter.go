package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// meter is the package-level OTel meter used by the recording functions
// below. It is re-pointed at a Prometheus-backed MeterProvider by InitMeter.
var meter metric.Meter

var (
	activeSessions    metric.Int64UpDownCounter
	routingDecisions  metric.Int64Counter
	safetyRewrites    metric.Int64Counter
	ttsSentencesTotal metric.Int64Counter

	meterOnce sync.Once
	meterErr  error
)

func init() {
	meter = otel.Meter("github.com/brightclass/voicetutor/telemetry")
}

func initInstruments() error {
	meterOnce.Do(func() {
		var err error

		activeSessions, err = meter.Int64UpDownCounter(
			"tutor.sessions.active",
			metric.WithDescription("Number of currently active tutoring sessions"),
			metric.WithUnit("{session}"),
		)
		if err != nil {
			meterErr = err
			return
		}

		routingDecisions, err = meter.Int64Counter(
			"tutor.routing.decisions",
			metric.WithDescription("Number of routing decisions by transition"),
			metric.WithUnit("{decision}"),
		)
		if err != nil {
			meterErr = err
			return
		}

		safetyRewrites, err = meter.Int64Counter(
			"tutor.safety.rewrites",
			metric.WithDescription("Number of sentences rewritten by the safety filter"),
			metric.WithUnit("{sentence}"),
		)
		if err != nil {
			meterErr = err
			return
		}

		ttsSentencesTotal, err = meter.Int64Counter(
			"tutor.tts.sentences",
			metric.WithDescription("Number of sentences flushed to synthesis"),
			metric.WithUnit("{sentence}"),
		)
		if err != nil {
			meterErr = err
			return
		}
	})
	return meterErr
}

// InitMeter configures the package-level meter to export via a Prometheus
// exporter, installs the backing *sdkmetric.MeterProvider as the global
// meter provider, and returns the exporter, which the health server serves
// at /metrics. The MeterProvider itself is not returned.
func InitMeter(serviceName string) (*prometheus.Exporter, error) {
	exp, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("telemetry: create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp))
	otel.SetMeterProvider(mp)
	meter = mp.Meter(
		"github.com/brightclass/voicetutor/telemetry",
		metric.WithInstrumentationAttributes(attribute.String("service.name", serviceName)),
	)

	meterOnce = sync.Once{}
	meterErr = nil
	if err := initInstruments(); err != nil {
		return nil, err
	}
	return exp, nil
}

// SessionOpened increments the active-session gauge.
func SessionOpened(ctx context.Context, sessionType string) {
	if initInstruments() != nil {
		return
	}
	activeSessions.Add(ctx, 1, metric.WithAttributes(attribute.String("session_type", sessionType)))
}

// SessionClosed decrements the active-session gauge.
func SessionClosed(ctx context.Context, sessionType string) {
	if initInstruments() != nil {
		return
	}
	activeSessions.Add(ctx, -1, metric.WithAttributes(attribute.String("session_type", sessionType)))
}

// RoutingDecisionRecorded increments the routing-decision counter for the
// given from/to subject transition.
func RoutingDecisionRecorded(ctx context.Context, from, to string) {
	if initInstruments() != nil {
		return
	}
	routingDecisions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("from", from), attribute.String("to", to)))
}

// SafetyRewriteRecorded increments the safety-rewrite counter.
func SafetyRewriteRecorded(ctx context.Context) {
	if initInstruments() != nil {
		return
	}
	safetyRewrites.Add(ctx, 1)
}

// TTSSentenceRecorded increments the synthesized-sentence counter.
func TTSSentenceRecorded(ctx context.Context) {
	if initInstruments() != nil {
		return
	}
	ttsSentencesTotal.Add(ctx, 1)
}
