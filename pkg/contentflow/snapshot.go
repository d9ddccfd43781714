package contentflow

import (
	"slices"
	"strings"
	"time"

	"github.com/randalmurphal/contentflow/pkg/contentflow/event"
	"github.com/randalmurphal/contentflow/pkg/contentflow/pool"
)

// Snapshot is a read-only view of registrations and in-flight work.
type Snapshot struct {
	Producers  []ProducerInfo
	Mergers    []MergerInfo
	Renderers  []RendererInfo
	Activators []ActivatorInfo

	// AddOns maps add-on names to the component ids they contributed.
	AddOns map[string][]string

	// Subscriptions maps event ids to subscribed producer ids.
	Subscriptions map[event.ID][]string

	// InFlight counts cycles per event id that have not completed. A cycle
	// completes once its firing settled and its merges and renders ran.
	InFlight map[event.ID]int

	Pool pool.Stats
}

// ProducerInfo describes a registered producer.
type ProducerInfo struct {
	ID      string
	Events  []event.ID
	Items   []string
	Timeout time.Duration
}

// MergerInfo describes a registered merger.
type MergerInfo struct {
	ID      string
	Inputs  []string
	Timeout time.Duration
}

// RendererInfo describes a registered renderer.
type RendererInfo struct {
	ID     string
	Inputs []string
}

// ActivatorInfo describes a registered activator.
type ActivatorInfo struct {
	ID      string
	Events  []event.ID
	Running bool
}

// Snapshot returns a consistent copy of the current registrations.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	g := c.graph.Load()
	subs := c.bus.Subscriptions()
	addOns := make(map[string][]string, len(c.addOns))
	for name, rec := range c.addOns {
		addOns[name] = rec.componentIDs()
	}
	c.mu.Unlock()

	s := Snapshot{
		AddOns:        addOns,
		Subscriptions: subs,
		InFlight:      make(map[event.ID]int),
		Pool:          c.pool.Stats(),
	}

	for id, e := range g.producers {
		s.Producers = append(s.Producers, ProducerInfo{
			ID:      id,
			Events:  slices.Clone(e.reg.Events),
			Items:   slices.Clone(e.reg.Items),
			Timeout: e.reg.Timeout,
		})
	}
	for id, e := range g.mergers {
		s.Mergers = append(s.Mergers, MergerInfo{ID: id, Inputs: slices.Clone(e.reg.Inputs), Timeout: e.reg.Timeout})
	}
	for id, e := range g.renderers {
		s.Renderers = append(s.Renderers, RendererInfo{ID: id, Inputs: slices.Clone(e.reg.Inputs)})
	}
	for id, e := range g.activators {
		_, running := c.runtime.Lookup(id)
		s.Activators = append(s.Activators, ActivatorInfo{ID: id, Events: slices.Clone(e.reg.Events), Running: running})
	}

	slices.SortFunc(s.Producers, func(a, b ProducerInfo) int { return strings.Compare(a.ID, b.ID) })
	slices.SortFunc(s.Mergers, func(a, b MergerInfo) int { return strings.Compare(a.ID, b.ID) })
	slices.SortFunc(s.Renderers, func(a, b RendererInfo) int { return strings.Compare(a.ID, b.ID) })
	slices.SortFunc(s.Activators, func(a, b ActivatorInfo) int { return strings.Compare(a.ID, b.ID) })

	c.cyclesMu.Lock()
	for _, cy := range c.cycles {
		s.InFlight[cy.d.EventID]++
	}
	c.cyclesMu.Unlock()

	return s
}
