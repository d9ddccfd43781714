package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records contentflow metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordFiring records an accepted firing and its subscriber count.
	RecordFiring(ctx context.Context, eventID string, subscribers int)

	// RecordFiringRejected records a firing refused while the event was in flight.
	RecordFiringRejected(ctx context.Context, eventID string)

	// RecordFiringSettled records the time from fire to settlement.
	RecordFiringSettled(ctx context.Context, eventID string, duration time.Duration)

	// RecordTask records one producer, merger, or renderer task.
	RecordTask(ctx context.Context, kind, componentID string, duration time.Duration, err error)

	// RecordRender records a successful render, or a skipped render with no inputs.
	RecordRender(ctx context.Context, rendererID string, skipped bool)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	firings         metric.Int64Counter
	firingsRejected metric.Int64Counter
	settleLatency   metric.Float64Histogram
	taskLatency     metric.Float64Histogram
	taskErrors      metric.Int64Counter
	renders         metric.Int64Counter
	rendersSkipped  metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics(otel.Meter("contentflow"))
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics(meter metric.Meter) (*otelMetrics, error) {
	firings, err := meter.Int64Counter("contentflow.firings",
		metric.WithDescription("Number of accepted firings"),
	)
	if err != nil {
		return nil, err
	}

	firingsRejected, err := meter.Int64Counter("contentflow.firing.rejected",
		metric.WithDescription("Number of firings rejected because the event was in flight"),
	)
	if err != nil {
		return nil, err
	}

	settleLatency, err := meter.Float64Histogram("contentflow.firing.settle_ms",
		metric.WithDescription("Time from fire to settlement in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	taskLatency, err := meter.Float64Histogram("contentflow.task.latency_ms",
		metric.WithDescription("Task latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	taskErrors, err := meter.Int64Counter("contentflow.task.errors",
		metric.WithDescription("Number of failed tasks"),
	)
	if err != nil {
		return nil, err
	}

	renders, err := meter.Int64Counter("contentflow.renders",
		metric.WithDescription("Number of render calls"),
	)
	if err != nil {
		return nil, err
	}

	rendersSkipped, err := meter.Int64Counter("contentflow.renders.skipped",
		metric.WithDescription("Number of cycles that reached a renderer with no inputs"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		firings:         firings,
		firingsRejected: firingsRejected,
		settleLatency:   settleLatency,
		taskLatency:     taskLatency,
		taskErrors:      taskErrors,
		renders:         renders,
		rendersSkipped:  rendersSkipped,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// NewMeterRecorder returns a MetricsRecorder whose instruments are created
// on meter rather than the global provider.
func NewMeterRecorder(meter metric.Meter) (MetricsRecorder, error) {
	m, err := newOtelMetrics(meter)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordFiring records an accepted firing.
func (m *otelMetrics) RecordFiring(ctx context.Context, eventID string, subscribers int) {
	m.firings.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_id", eventID),
		attribute.Int("subscribers", subscribers),
	))
}

// RecordFiringRejected records a rejected firing.
func (m *otelMetrics) RecordFiringRejected(ctx context.Context, eventID string) {
	m.firingsRejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_id", eventID),
	))
}

// RecordFiringSettled records settlement latency.
func (m *otelMetrics) RecordFiringSettled(ctx context.Context, eventID string, duration time.Duration) {
	m.settleLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.String("event_id", eventID),
	))
}

// RecordTask records a task execution.
func (m *otelMetrics) RecordTask(ctx context.Context, kind, componentID string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("kind", kind),
		attribute.String("component_id", componentID),
	}

	m.taskLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.taskErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordRender records a successful render or a skipped render.
func (m *otelMetrics) RecordRender(ctx context.Context, rendererID string, skipped bool) {
	attrs := metric.WithAttributes(attribute.String("component_id", rendererID))
	if skipped {
		m.rendersSkipped.Add(ctx, 1, attrs)
		return
	}
	m.renders.Add(ctx, 1, attrs)
}
