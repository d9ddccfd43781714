// Package observability provides structured logging, metrics, and tracing
// helpers for contentflow.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds cycle context to a logger.
// Returns a new logger with event_id, cycle_id, and component_id fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "tick", cycleID, "weather")
//	enriched.Info("producing") // includes event_id, cycle_id, component_id
func EnrichLogger(logger *slog.Logger, eventID, cycleID, componentID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("event_id", eventID),
		slog.String("cycle_id", cycleID),
		slog.String("component_id", componentID),
	)
}

// LogFiring logs an accepted firing.
func LogFiring(logger *slog.Logger, eventID, cycleID string, subscribers int) {
	if logger == nil {
		return
	}
	logger.Debug("event fired",
		slog.String("event_id", eventID),
		slog.String("cycle_id", cycleID),
		slog.Int("subscribers", subscribers),
	)
}

// LogFiringRejected logs a firing refused because the event was still in flight.
func LogFiringRejected(logger *slog.Logger, eventID, inflightCycleID string) {
	if logger == nil {
		return
	}
	logger.Warn("event already firing",
		slog.String("event_id", eventID),
		slog.String("inflight_cycle_id", inflightCycleID),
	)
}

// LogFiringSettled logs a firing whose subscribers all reached a terminal state.
func LogFiringSettled(logger *slog.Logger, eventID, cycleID string, durationMs float64, failures int) {
	if logger == nil {
		return
	}
	logger.Debug("firing settled",
		slog.String("event_id", eventID),
		slog.String("cycle_id", cycleID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("failures", failures),
	)
}

// LogTaskError logs a failed producer, merger, or renderer task.
func LogTaskError(logger *slog.Logger, kind, componentID string, err error) {
	if logger == nil {
		return
	}
	logger.Error(kind+" failed",
		slog.String("component_id", componentID),
		slog.String("error", err.Error()),
	)
}

// LogDiscarded logs a late result dropped because its component was removed.
func LogDiscarded(logger *slog.Logger, kind, componentID string) {
	if logger == nil {
		return
	}
	logger.Debug("late result discarded",
		slog.String("kind", kind),
		slog.String("component_id", componentID),
	)
}

// LogRenderSkipped logs a cycle in which a renderer received no inputs.
func LogRenderSkipped(logger *slog.Logger, rendererID string) {
	if logger == nil {
		return
	}
	logger.Debug("render skipped, no merged inputs",
		slog.String("component_id", rendererID),
	)
}

// LogActivatorTerminated logs an activator exit.
func LogActivatorTerminated(logger *slog.Logger, activatorID string, cause error) {
	if logger == nil {
		return
	}
	if cause == nil {
		logger.Info("activator terminated",
			slog.String("component_id", activatorID),
		)
		return
	}
	logger.Warn("activator terminated",
		slog.String("component_id", activatorID),
		slog.String("cause", cause.Error()),
	)
}

// TimedOperation starts a task clock. The returned function reports the
// time elapsed since the call.
func TimedOperation() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}
