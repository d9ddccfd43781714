package builtin

import (
	"fmt"
	"time"

	"github.com/randalmurphal/contentflow/pkg/contentflow"
	"github.com/randalmurphal/contentflow/pkg/contentflow/activator"
	"github.com/randalmurphal/contentflow/pkg/contentflow/event"
)

func newTicker(s contentflow.ComponentSpec) (activator.Activator, error) {
	if len(s.Events) != 1 {
		return nil, fmt.Errorf("ticker %s: want exactly one event, got %d", s.ID, len(s.Events))
	}
	cfg := s.Settings()
	interval := cfg.Duration("interval", time.Second)
	if interval <= 0 {
		return nil, fmt.Errorf("ticker %s: interval must be positive, got %s", s.ID, interval)
	}

	t := activator.NewTicker(s.ID, event.ID(s.Events[0]), interval)
	t.Limit = cfg.Int("limit", 0)
	if t.Limit < 0 {
		return nil, fmt.Errorf("ticker %s: negative limit %d", s.ID, t.Limit)
	}

	if cfg.Has("retry") {
		retry := cfg.Sub("retry")
		p := activator.RetryPolicy{
			Attempts:   retry.Int("attempts", activator.DefaultRetryPolicy.Attempts),
			Backoff:    retry.Duration("backoff", activator.DefaultRetryPolicy.Backoff),
			MaxBackoff: retry.Duration("max_backoff", activator.DefaultRetryPolicy.MaxBackoff),
		}
		switch {
		case p.Attempts < 1:
			return nil, fmt.Errorf("ticker %s: retry.attempts must be at least 1, got %d", s.ID, p.Attempts)
		case p.Backoff <= 0:
			return nil, fmt.Errorf("ticker %s: retry.backoff must be positive, got %s", s.ID, p.Backoff)
		case p.MaxBackoff < 0:
			return nil, fmt.Errorf("ticker %s: retry.max_backoff must not be negative, got %s", s.ID, p.MaxBackoff)
		}
		t.Retry = &p
	}
	return t, nil
}
