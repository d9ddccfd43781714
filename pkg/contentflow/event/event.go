package event

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	cferrors "github.com/randalmurphal/contentflow/pkg/contentflow/errors"
)

// ID names a logical trigger. It is an opaque, non-empty token.
type ID string

// Validate returns an InvalidEventIDError for malformed ids.
func (id ID) Validate() error {
	if id == "" {
		return &cferrors.InvalidEventIDError{EventID: string(id), Reason: "empty"}
	}
	return nil
}

// String returns the id as a string.
func (id ID) String() string {
	return string(id)
}

// Dispatch describes one firing of one event.
// Every subscriber of the firing receives the same Dispatch value.
type Dispatch struct {
	// CycleID uniquely identifies this firing.
	CycleID string

	// EventID is the fired event.
	EventID ID

	// FiredAt is when Fire accepted the event.
	FiredAt time.Time

	// Subscribers is the sorted snapshot of subscriber ids taken at fire time.
	Subscribers []string
}

// Includes reports whether subscriberID was part of the firing snapshot.
func (d Dispatch) Includes(subscriberID string) bool {
	_, found := slices.BinarySearch(d.Subscribers, subscriberID)
	return found
}

// Subscriber reacts to fired events.
type Subscriber interface {
	// SubscriberID identifies the subscriber. Registration is idempotent
	// per (event id, subscriber id).
	SubscriberID() string

	// OnEvent handles one firing. It runs on the bus scheduler and the
	// firing settles only after every subscriber returned.
	OnEvent(ctx context.Context, d Dispatch) error
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc struct {
	ID string
	Fn func(ctx context.Context, d Dispatch) error
}

// SubscriberID implements Subscriber.
func (s SubscriberFunc) SubscriberID() string {
	return s.ID
}

// OnEvent implements Subscriber.
func (s SubscriberFunc) OnEvent(ctx context.Context, d Dispatch) error {
	return s.Fn(ctx, d)
}

// NewSubscriber creates a Subscriber from a function.
func NewSubscriber(id string, fn func(ctx context.Context, d Dispatch) error) Subscriber {
	return SubscriberFunc{ID: id, Fn: fn}
}

// Firer fires events. Activators receive a Firer, never the bus itself.
type Firer interface {
	Fire(ctx context.Context, id ID) (*Firing, error)
}

// Registrar mutates the subscription graph.
type Registrar interface {
	Register(id ID, sub Subscriber) error
	Unregister(id ID, sub Subscriber) error
}

// Outcome is the terminal state of one subscriber within a firing.
type Outcome struct {
	SubscriberID string
	Err          error
	Duration     time.Duration
}

// Firing is the handle for one dispatch batch.
type Firing struct {
	dispatch Dispatch

	mu       sync.Mutex
	pending  int
	outcomes []Outcome
	done     chan struct{}
}

func newFiring(d Dispatch) *Firing {
	return &Firing{
		dispatch: d,
		pending:  len(d.Subscribers),
		outcomes: make([]Outcome, 0, len(d.Subscribers)),
		done:     make(chan struct{}),
	}
}

// Dispatch returns the dispatch this firing delivers.
func (f *Firing) Dispatch() Dispatch {
	return f.dispatch
}

// CycleID returns the unique id of this firing.
func (f *Firing) CycleID() string {
	return f.dispatch.CycleID
}

// EventID returns the fired event.
func (f *Firing) EventID() ID {
	return f.dispatch.EventID
}

// Done is closed once every subscriber reached a terminal state.
func (f *Firing) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether the firing has settled.
func (f *Firing) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the firing settles or ctx is done.
func (f *Firing) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outcomes returns the outcomes recorded so far, sorted by subscriber id.
func (f *Firing) Outcomes() []Outcome {
	f.mu.Lock()
	out := append([]Outcome(nil), f.outcomes...)
	f.mu.Unlock()

	slices.SortFunc(out, func(a, b Outcome) int {
		return strings.Compare(a.SubscriberID, b.SubscriberID)
	})
	return out
}

// Err joins the errors returned by subscribers, or nil if all succeeded.
func (f *Firing) Err() error {
	var errs []error
	for _, o := range f.Outcomes() {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errors.Join(errs...)
}

// record stores an outcome and reports whether it was the last one.
func (f *Firing) record(o Outcome) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, o)
	f.pending--
	return f.pending == 0
}
