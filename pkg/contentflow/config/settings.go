package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Settings are the runtime knobs read from a config file.
type Settings struct {
	// MaxWorkers is the worker pool soft cap (pool.max_workers). Zero is unbounded.
	MaxWorkers int

	// IdleTimeout reclaims idle workers (pool.idle_timeout).
	IdleTimeout time.Duration

	// ProducerTimeout is the default per-producer timeout (producer.timeout).
	// Zero disables it.
	ProducerTimeout time.Duration

	// MergerTimeout is the default partial-merge deadline (merger.timeout).
	// Zero means a merger waits for every expected input.
	MergerTimeout time.Duration

	// JournalPath selects a SQLite failure journal (journal.path).
	// Empty keeps failures in memory.
	JournalPath string

	// LogLevel is the minimum log level (log.level).
	LogLevel slog.Level
}

// DefaultSettings returns the settings used when a key is absent.
func DefaultSettings() Settings {
	return Settings{
		IdleTimeout: 60 * time.Second,
		LogLevel:    slog.LevelInfo,
	}
}

// Settings extracts and validates runtime settings.
func (c Config) Settings() (Settings, error) {
	s := DefaultSettings()

	pool := c.Sub("pool")
	s.MaxWorkers = pool.Int("max_workers", s.MaxWorkers)
	s.IdleTimeout = pool.Duration("idle_timeout", s.IdleTimeout)
	s.ProducerTimeout = c.Sub("producer").Duration("timeout", s.ProducerTimeout)
	s.MergerTimeout = c.Sub("merger").Duration("timeout", s.MergerTimeout)
	s.JournalPath = c.Sub("journal").String("path", s.JournalPath)

	if level := c.String("log.level", ""); level != "" {
		if err := s.LogLevel.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
			return Settings{}, fmt.Errorf("log.level: %w", err)
		}
	}

	switch {
	case s.MaxWorkers < 0:
		return Settings{}, fmt.Errorf("pool.max_workers must not be negative, got %d", s.MaxWorkers)
	case s.IdleTimeout <= 0:
		return Settings{}, fmt.Errorf("pool.idle_timeout must be positive, got %s", s.IdleTimeout)
	case s.ProducerTimeout < 0:
		return Settings{}, fmt.Errorf("producer.timeout must not be negative, got %s", s.ProducerTimeout)
	case s.MergerTimeout < 0:
		return Settings{}, fmt.Errorf("merger.timeout must not be negative, got %s", s.MergerTimeout)
	}
	return s, nil
}
