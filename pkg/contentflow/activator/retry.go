package activator

import (
	"context"
	"errors"
	"fmt"
	"time"

	cferrors "github.com/randalmurphal/contentflow/pkg/contentflow/errors"
	"github.com/randalmurphal/contentflow/pkg/contentflow/event"
)

// RetryPolicy controls how FireWithRetry waits out an overlapping firing.
type RetryPolicy struct {
	// Attempts is the total number of Fire calls, including the first.
	// Values below one mean a single attempt.
	Attempts int

	// Backoff is the wait after the first rejection. It doubles after
	// every further rejection.
	Backoff time.Duration

	// MaxBackoff caps the wait. Zero leaves it uncapped.
	MaxBackoff time.Duration
}

// DefaultRetryPolicy suits an activator whose cycles settle within a second.
var DefaultRetryPolicy = RetryPolicy{
	Attempts:   5,
	Backoff:    10 * time.Millisecond,
	MaxBackoff: time.Second,
}

// next returns the wait that follows wait.
func (p RetryPolicy) next(wait time.Duration) time.Duration {
	wait *= 2
	if p.MaxBackoff > 0 && wait > p.MaxBackoff {
		return p.MaxBackoff
	}
	return wait
}

// FireWithRetry fires id, retrying while the previous firing of id is
// still in flight. Other errors are returned after the attempt that
// produced them. Once every attempt was rejected, the last
// *errors.ConcurrentFiringError is returned wrapped as transient.
func FireWithRetry(ctx context.Context, fire event.Firer, id event.ID, p RetryPolicy) (*event.Firing, error) {
	attempts := max(p.Attempts, 1)
	wait := p.Backoff

	for attempt := 1; ; attempt++ {
		f, err := fire.Fire(ctx, id)
		if err == nil || !isConcurrentFiring(err) {
			return f, err
		}
		if attempt == attempts {
			return nil, cferrors.Transient(err, fmt.Sprintf("fire %s: %d attempts", id, attempt))
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		wait = p.next(wait)
	}
}

func isConcurrentFiring(err error) bool {
	var concurrent *cferrors.ConcurrentFiringError
	return errors.As(err, &concurrent)
}
