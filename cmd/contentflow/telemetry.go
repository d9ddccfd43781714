package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// telemetry owns in-process OTel providers. Metrics are collected on
// demand for the exit summary; finished spans are logged at debug level.
type telemetry struct {
	reader  *sdkmetric.ManualReader
	meters  *sdkmetric.MeterProvider
	tracers *sdktrace.TracerProvider
}

func setupTelemetry(logger *slog.Logger) *telemetry {
	reader := sdkmetric.NewManualReader()
	return &telemetry{
		reader: reader,
		meters: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		tracers: sdktrace.NewTracerProvider(
			sdktrace.WithSpanProcessor(&spanLogger{logger: logger}),
		),
	}
}

// summary writes one line per metric: counter totals, histogram counts and means.
func (t *telemetry) summary(ctx context.Context, w io.Writer) error {
	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("collect metrics: %w", err)
	}

	var lines []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				var total int64
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
				lines = append(lines, fmt.Sprintf("%-32s %d", m.Name, total))
			case metricdata.Histogram[float64]:
				var (
					count uint64
					sum   float64
				)
				for _, dp := range data.DataPoints {
					count += dp.Count
					sum += dp.Sum
				}
				mean := 0.0
				if count > 0 {
					mean = sum / float64(count)
				}
				lines = append(lines, fmt.Sprintf("%-32s n=%d mean=%.2f", m.Name, count, mean))
			}
		}
	}
	slices.Sort(lines)

	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}

func (t *telemetry) shutdown(ctx context.Context) error {
	return errors.Join(t.meters.Shutdown(ctx), t.tracers.Shutdown(ctx))
}

// spanLogger is a SpanProcessor that logs ended spans.
type spanLogger struct {
	logger *slog.Logger
}

func (p *spanLogger) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *spanLogger) OnEnd(s sdktrace.ReadOnlySpan) {
	attrs := []any{
		slog.String("span", s.Name()),
		slog.Float64("duration_ms", float64(s.EndTime().Sub(s.StartTime()).Microseconds())/1000),
		slog.String("status", s.Status().Code.String()),
	}
	for _, kv := range s.Attributes() {
		attrs = append(attrs, slog.String(string(kv.Key), kv.Value.Emit()))
	}
	p.logger.Debug("span ended", attrs...)
}

func (p *spanLogger) Shutdown(context.Context) error   { return nil }
func (p *spanLogger) ForceFlush(context.Context) error { return nil }
