// Package journal records the failures the pipeline isolates.
//
// Producer, merger and renderer failures never abort a firing; the
// coordinator reports them here instead, together with activator
// termination causes. MemoryJournal suits tests and short-lived hosts;
// SQLiteJournal keeps the record across restarts.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	cferrors "github.com/randalmurphal/contentflow/pkg/contentflow/errors"
)

// Failure kinds.
const (
	KindProducer  = "producer"
	KindMerger    = "merger"
	KindRenderer  = "renderer"
	KindActivator = "activator"
)

// Failure is one reported task failure.
type Failure struct {
	ID          uuid.UUID
	Kind        string
	ComponentID string
	EventID     string
	CycleID     string
	Category    string
	Message     string
	OccurredAt  time.Time
}

// Reporter receives failures.
// Implementations must be safe for concurrent use.
type Reporter interface {
	Report(ctx context.Context, f Failure) error
}

// Journal is a Reporter that can be queried.
type Journal interface {
	Reporter

	// List returns matching failures, oldest first.
	List(ctx context.Context, filter Filter) ([]Failure, error)

	// Count returns the number of matching failures.
	Count(ctx context.Context, filter Filter) (int, error)

	// Close releases any resources.
	Close() error
}

// Filter selects failures. Empty fields match everything.
type Filter struct {
	Kind        string
	ComponentID string
	EventID     string
	CycleID     string

	// Limit caps List results. Zero means no limit.
	Limit int
}

func (f Filter) matches(fl Failure) bool {
	return (f.Kind == "" || f.Kind == fl.Kind) &&
		(f.ComponentID == "" || f.ComponentID == fl.ComponentID) &&
		(f.EventID == "" || f.EventID == fl.EventID) &&
		(f.CycleID == "" || f.CycleID == fl.CycleID)
}

// ErrClosed indicates the journal has been closed.
var ErrClosed = errors.New("journal closed")

// FromError builds a Failure for err. Event and cycle ids are taken from
// the pipeline failure types when err carries one.
func FromError(kind, componentID string, err error) Failure {
	f := Failure{
		ID:          uuid.New(),
		Kind:        kind,
		ComponentID: componentID,
		Category:    cferrors.Categorize(err).String(),
		OccurredAt:  time.Now().UTC(),
	}
	if err != nil {
		f.Message = err.Error()
	}

	var (
		producer *cferrors.ProducerFailure
		merger   *cferrors.MergeFailure
		renderer *cferrors.RenderFailure
	)
	switch {
	case errors.As(err, &producer):
		f.EventID, f.CycleID = producer.EventID, producer.CycleID
	case errors.As(err, &merger):
		f.EventID, f.CycleID = merger.EventID, merger.CycleID
	case errors.As(err, &renderer):
		f.EventID, f.CycleID = renderer.EventID, renderer.CycleID
	}
	return f
}

// Discard drops every failure.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Report(context.Context, Failure) error { return nil }
