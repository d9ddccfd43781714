package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/contentflow/pkg/contentflow"
	"github.com/randalmurphal/contentflow/pkg/contentflow/builtin"
	"github.com/randalmurphal/contentflow/pkg/contentflow/config"
	"github.com/randalmurphal/contentflow/pkg/contentflow/journal"
	"github.com/randalmurphal/contentflow/pkg/contentflow/observability"
)

type runFlags struct {
	duration time.Duration
	grace    time.Duration
	metrics  bool
}

func newRunCmd(g *globalFlags) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run <manifest>",
		Short: "Load a manifest and run its pipeline",
		Long: `Loads every add-on in the manifest and runs the pipeline until the
duration elapses, every activator has stopped, or SIGINT/SIGTERM arrives.
In-flight cycles are allowed to complete before exit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.settings()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, args[0], s, flags, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().DurationVarP(&flags.duration, "duration", "d", 0, "stop after this long (0 runs until stopped)")
	cmd.Flags().DurationVar(&flags.grace, "grace", 10*time.Second, "how long to wait for in-flight cycles on exit")
	cmd.Flags().BoolVar(&flags.metrics, "metrics", false, "print a metrics summary on exit")

	return cmd
}

func run(ctx context.Context, manifestPath string, s config.Settings, flags *runFlags, stdout, stderr io.Writer) error {
	logger := newLogger(stderr, s.LogLevel)

	m, err := contentflow.LoadManifest(manifestPath)
	if err != nil {
		return err
	}

	j, err := openJournal(s.JournalPath)
	if err != nil {
		return err
	}
	defer j.Close()

	tel := setupTelemetry(logger)
	defer func() {
		if err := tel.shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	if flags.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flags.duration)
		defer cancel()
	}

	metrics, err := observability.NewMeterRecorder(tel.meters.Meter("contentflow"))
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	c := contentflow.New(
		contentflow.WithSettings(s),
		contentflow.WithLogger(logger),
		contentflow.WithReporter(j),
		contentflow.WithMetrics(metrics),
		contentflow.WithSpans(observability.NewTracerSpanManager(tel.tracers.Tracer("contentflow"))),
	)

	cat := builtin.Catalog(builtin.Env{Out: stdout, Logger: logger})
	if err := c.Apply(ctx, m, cat); err != nil {
		_ = c.Close(context.Background())
		return err
	}
	logger.Info("pipeline running", slog.Any("addons", c.AddOns()))

	waitActivators(ctx, c)

	closeCtx, cancel := context.WithTimeout(context.Background(), flags.grace)
	defer cancel()
	if err := c.Close(closeCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	n, err := j.Count(context.Background(), journal.Filter{})
	if err != nil {
		return err
	}
	logger.Info("pipeline stopped", slog.Int("failures", n))

	if flags.metrics {
		return tel.summary(context.Background(), stdout)
	}
	return nil
}

// waitActivators returns when ctx is done or no activator is running.
func waitActivators(ctx context.Context, c *contentflow.Coordinator) {
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
		running := false
		for _, a := range c.Snapshot().Activators {
			running = running || a.Running
		}
		if !running {
			return
		}
	}
}

func openJournal(path string) (journal.Journal, error) {
	if path == "" {
		return journal.NewMemoryJournal(), nil
	}
	return journal.NewSQLiteJournal(path)
}
