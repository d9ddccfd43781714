package contentflow

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/contentflow/pkg/contentflow/config"
	"github.com/randalmurphal/contentflow/pkg/contentflow/journal"
	"github.com/randalmurphal/contentflow/pkg/contentflow/observability"
	"github.com/randalmurphal/contentflow/pkg/contentflow/pool"
	"github.com/randalmurphal/contentflow/pkg/contentflow/security"
)

// options holds coordinator configuration.
type options struct {
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager
	guard    security.Guard
	reporter journal.Reporter

	pool            *pool.Pool
	maxWorkers      int
	idleTimeout     time.Duration
	producerTimeout time.Duration
	mergerTimeout   time.Duration
}

func defaultOptions() options {
	return options{
		logger:      slog.Default(),
		metrics:     observability.NoopMetrics{},
		spans:       observability.NoopSpanManager{},
		guard:       security.AllowAll,
		reporter:    journal.Discard,
		idleTimeout: pool.DefaultConfig.IdleTimeout,
	}
}

// Option configures a Coordinator.
type Option func(*options)

// WithLogger sets the logger.
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics enables OpenTelemetry metrics.
//
// Example:
//
//	c := contentflow.New(contentflow.WithMetrics(observability.NewMetricsRecorder()))
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithSpans enables OpenTelemetry tracing.
func WithSpans(s observability.SpanManager) Option {
	return func(o *options) {
		if s != nil {
			o.spans = s
		}
	}
}

// WithGuard sets the permission check consulted before fire, produce,
// merge and render.
// Default: security.AllowAll
func WithGuard(g security.Guard) Option {
	return func(o *options) {
		if g != nil {
			o.guard = g
		}
	}
}

// WithReporter sets where isolated failures are reported.
// Default: journal.Discard
func WithReporter(r journal.Reporter) Option {
	return func(o *options) {
		if r != nil {
			o.reporter = r
		}
	}
}

// WithPool runs tasks on an existing pool. The coordinator does not close it.
func WithPool(p *pool.Pool) Option {
	return func(o *options) {
		o.pool = p
	}
}

// WithMaxWorkers sets the worker pool soft cap.
// Default: 0 (unbounded)
func WithMaxWorkers(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxWorkers = n
		}
	}
}

// WithIdleTimeout sets how long idle workers are kept.
// Default: 60s
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.idleTimeout = d
		}
	}
}

// WithProducerTimeout sets the timeout for producers that declare none.
// Default: 0 (no timeout)
func WithProducerTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.producerTimeout = d
		}
	}
}

// WithMergerTimeout sets the partial-merge deadline for mergers that
// declare none.
// Default: 0 (wait for every expected input)
func WithMergerTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.mergerTimeout = d
		}
	}
}

// WithSettings applies pool and timeout settings read from a config file.
func WithSettings(s config.Settings) Option {
	return func(o *options) {
		WithMaxWorkers(s.MaxWorkers)(o)
		WithIdleTimeout(s.IdleTimeout)(o)
		WithProducerTimeout(s.ProducerTimeout)(o)
		WithMergerTimeout(s.MergerTimeout)(o)
	}
}
