package contentflow

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/contentflow/pkg/contentflow/activator"
	"github.com/randalmurphal/contentflow/pkg/contentflow/event"
)

// Registration errors.
var (
	// ErrDuplicateComponent indicates a component id is already registered.
	ErrDuplicateComponent = errors.New("component already registered")

	// ErrUnknownComponent indicates a component id is not registered.
	ErrUnknownComponent = errors.New("component not registered")

	// ErrInvalidRegistration indicates a malformed registration.
	ErrInvalidRegistration = errors.New("invalid registration")

	// ErrClosed is returned by registration calls after Close.
	ErrClosed = errors.New("coordinator closed")
)

// ProducerRegistration declares what a producer listens to and produces.
type ProducerRegistration struct {
	// Events the producer subscribes to.
	Events []event.ID

	// Items the producer can produce.
	Items []string

	// Timeout bounds one Produce call. Zero uses the coordinator default.
	Timeout time.Duration
}

// MergerRegistration declares the items a merger combines.
type MergerRegistration struct {
	// Inputs are the required item ids.
	Inputs []string

	// Timeout is the partial-merge deadline, measured from the firing.
	// Zero uses the coordinator default; if that is zero too, the merger
	// waits until every expected input is terminal.
	Timeout time.Duration
}

// RendererRegistration declares the merged items a renderer waits for.
type RendererRegistration struct {
	// Inputs are merger ids.
	Inputs []string
}

// ActivatorRegistration declares the events an activator may fire.
type ActivatorRegistration struct {
	// Events the activator may fire. Empty allows any event.
	Events []event.ID
}

type producerEntry struct {
	producer ContentProducer
	reg      ProducerRegistration
	items    map[string]bool
	removed  atomic.Bool
}

func (e *producerEntry) id() string { return e.producer.ID() }

type mergerEntry struct {
	merger  OutputMerger
	reg     MergerRegistration
	inputs  map[string]bool
	removed atomic.Bool
}

func (e *mergerEntry) id() string { return e.merger.ID() }

// wants reports whether any item p declares is a required input.
func (e *mergerEntry) wants(p *producerEntry) bool {
	for item := range p.items {
		if e.inputs[item] {
			return true
		}
	}
	return false
}

type rendererEntry struct {
	renderer OutputRenderer
	reg      RendererRegistration
	inputs   map[string]bool
	removed  atomic.Bool
}

func (e *rendererEntry) id() string { return e.renderer.ID() }

type activatorEntry struct {
	activator activator.Activator
	reg       ActivatorRegistration
	events    map[event.ID]bool
}

func (e *activatorEntry) declares(id event.ID) bool {
	return len(e.events) == 0 || e.events[id]
}

// graph is an immutable view of all registrations. Mutations clone it.
type graph struct {
	producers  map[string]*producerEntry
	mergers    map[string]*mergerEntry
	renderers  map[string]*rendererEntry
	activators map[string]*activatorEntry
}

func newGraph() *graph {
	return &graph{
		producers:  make(map[string]*producerEntry),
		mergers:    make(map[string]*mergerEntry),
		renderers:  make(map[string]*rendererEntry),
		activators: make(map[string]*activatorEntry),
	}
}

func (g *graph) clone() *graph {
	return &graph{
		producers:  maps.Clone(g.producers),
		mergers:    maps.Clone(g.mergers),
		renderers:  maps.Clone(g.renderers),
		activators: maps.Clone(g.activators),
	}
}

func set[K comparable](keys []K) map[K]bool {
	m := make(map[K]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

func sortedKeys[K interface{ ~string }](m map[K]bool) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func validateID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%s: empty id: %w", kind, ErrInvalidRegistration)
	}
	return nil
}

func validateEvents(kind, id string, events []event.ID, required bool) error {
	if required && len(events) == 0 {
		return fmt.Errorf("%s %s: no events: %w", kind, id, ErrInvalidRegistration)
	}
	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			return fmt.Errorf("%s %s: %w", kind, id, err)
		}
	}
	return nil
}

func validateNames(kind, id, what string, names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("%s %s: no %s: %w", kind, id, what, ErrInvalidRegistration)
	}
	if slices.Contains(names, "") {
		return fmt.Errorf("%s %s: empty %s entry: %w", kind, id, what, ErrInvalidRegistration)
	}
	return nil
}

func validateTimeout(kind, id string, d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%s %s: negative timeout %s: %w", kind, id, d, ErrInvalidRegistration)
	}
	return nil
}
