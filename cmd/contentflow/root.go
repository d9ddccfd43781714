package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/contentflow/pkg/contentflow/config"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "contentflow",
		Short: "Run add-on content pipelines",
		Long: `contentflow loads add-on manifests and runs their activators, producers,
mergers and renderers on one coordinator.

Runtime settings come from an optional YAML or JSON config file:

  pool:
    max_workers: 8
    idle_timeout: 60s
  producer:
    timeout: 2s
  merger:
    timeout: 5s
  journal:
    path: failures.db
  log:
    level: info`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to a YAML or JSON config file")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(newRunCmd(flags))
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newFailuresCmd(flags))

	return rootCmd
}

// settings loads the config file, if any, and applies flag overrides.
func (f *globalFlags) settings() (config.Settings, error) {
	cfg := config.New(nil)
	if f.configPath != "" {
		loaded, err := config.FromFile(f.configPath)
		if err != nil {
			return config.Settings{}, err
		}
		cfg = loaded
	}

	s, err := cfg.Settings()
	if err != nil {
		return config.Settings{}, fmt.Errorf("config %s: %w", f.configPath, err)
	}
	if f.logLevel != "" {
		if err := s.LogLevel.UnmarshalText([]byte(f.logLevel)); err != nil {
			return config.Settings{}, fmt.Errorf("--log-level: %w", err)
		}
	}
	return s, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
