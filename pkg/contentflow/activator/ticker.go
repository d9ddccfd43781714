package activator

import (
	"context"
	"errors"
	"sync"
	"time"

	cferrors "github.com/randalmurphal/contentflow/pkg/contentflow/errors"
	"github.com/randalmurphal/contentflow/pkg/contentflow/event"
)

// Ticker fires one event on a fixed interval.
//
// A tick that overlaps an unsettled firing of the same event is dropped,
// unless Retry is set, in which case the tick waits the firing out. Other
// transient refusals drop the tick; a permanent one ends Run.
type Ticker struct {
	id       string
	event    event.ID
	interval time.Duration

	// Limit stops the ticker after this many accepted firings. Zero is unlimited.
	Limit int

	// Retry makes a tick retry an overlapping firing through FireWithRetry.
	Retry *RetryPolicy

	// OnFire observes every fire attempt.
	OnFire func(f *event.Firing, err error)

	mu    sync.Mutex
	fired int
	cause error
	ended bool
}

// NewTicker creates a ticker activator.
func NewTicker(id string, eventID event.ID, interval time.Duration) *Ticker {
	return &Ticker{id: id, event: eventID, interval: interval}
}

// ID implements Activator.
func (t *Ticker) ID() string {
	return t.id
}

// Run implements Activator.
func (t *Ticker) Run(ctx context.Context, fire event.Firer) error {
	if t.interval <= 0 {
		return errors.New("ticker interval must be positive")
	}

	tick := time.NewTicker(t.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}

		f, err := t.fire(ctx, fire)
		if t.OnFire != nil {
			t.OnFire(f, err)
		}

		switch {
		case err == nil:
			if t.accepted() {
				return nil
			}
		case ctx.Err() != nil:
			return nil
		case cferrors.IsRetryable(err):
			// dropped
		default:
			return err
		}
	}
}

func (t *Ticker) fire(ctx context.Context, fire event.Firer) (*event.Firing, error) {
	if t.Retry == nil {
		return fire.Fire(ctx, t.event)
	}
	return FireWithRetry(ctx, fire, t.event, *t.Retry)
}

// accepted counts a firing and reports whether the limit has been reached.
func (t *Ticker) accepted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fired++
	return t.Limit > 0 && t.fired >= t.Limit
}

// Fired returns the number of accepted firings.
func (t *Ticker) Fired() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

// Terminated implements Activator.
func (t *Ticker) Terminated(cause error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ended = true
	t.cause = cause
}

// Ended reports whether Terminated ran, and with which cause.
func (t *Ticker) Ended() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ended, t.cause
}
