package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the contentflow tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("contentflow")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartFireSpan starts a span covering one firing until it settles.
	StartFireSpan(ctx context.Context, eventID, cycleID string) (context.Context, trace.Span)

	// StartTaskSpan starts a span for one producer, merger, or renderer task.
	StartTaskSpan(ctx context.Context, kind, componentID string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct {
	tracer trace.Tracer // nil uses the package tracer
}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// NewTracerSpanManager returns a SpanManager that starts spans on t.
func NewTracerSpanManager(t trace.Tracer) SpanManager {
	return &otelSpanManager{tracer: t}
}

func (m *otelSpanManager) start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if m.tracer != nil {
		return m.tracer.Start(ctx, name, opts...)
	}
	return tracer.Start(ctx, name, opts...)
}

// StartFireSpan starts a span for a firing.
func (m *otelSpanManager) StartFireSpan(ctx context.Context, eventID, cycleID string) (context.Context, trace.Span) {
	return m.start(ctx, "contentflow.fire",
		trace.WithAttributes(
			attribute.String("event.id", eventID),
			attribute.String("cycle.id", cycleID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartTaskSpan starts a span for a task.
func (m *otelSpanManager) StartTaskSpan(ctx context.Context, kind, componentID string) (context.Context, trace.Span) {
	return m.start(ctx, "contentflow.task."+kind,
		trace.WithAttributes(
			attribute.String("task.kind", kind),
			attribute.String("component.id", componentID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
