package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

// Compile-time interface check.
var _ MetricsRecorder = NoopMetrics{}

// RecordFiring does nothing.
func (NoopMetrics) RecordFiring(_ context.Context, _ string, _ int) {}

// RecordFiringRejected does nothing.
func (NoopMetrics) RecordFiringRejected(_ context.Context, _ string) {}

// RecordFiringSettled does nothing.
func (NoopMetrics) RecordFiringSettled(_ context.Context, _ string, _ time.Duration) {}

// RecordTask does nothing.
func (NoopMetrics) RecordTask(_ context.Context, _, _ string, _ time.Duration, _ error) {}

// RecordRender does nothing.
func (NoopMetrics) RecordRender(_ context.Context, _ string, _ bool) {}

// NoopSpanManager is a SpanManager that does nothing.
type NoopSpanManager struct{}

// Compile-time interface check.
var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

// StartFireSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartFireSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartTaskSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartTaskSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}
