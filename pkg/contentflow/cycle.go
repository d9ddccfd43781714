package contentflow

import (
	"sync"
	"time"

	"github.com/randalmurphal/contentflow/pkg/contentflow/event"
)

// cycle is the aggregation state of one firing.
//
// Expected inputs are fixed when the cycle opens. A merger becomes eligible
// once every expected producer is terminal, when its deadline passes, or
// when the firing settles. A renderer becomes eligible once every
// participating merger is terminal.
type cycle struct {
	d event.Dispatch
	g *graph

	mu        sync.Mutex
	mergers   map[string]*mergeState
	renderers map[string]*renderState
	settled   bool
	finished  bool
	pending   int // participating mergers and renderers not yet finished
}

type mergeState struct {
	entry    *mergerEntry
	expected map[string]bool // producer ids not yet terminal
	items    []ContentItem
	done     bool
	expired  bool
	timer    *time.Timer
}

type renderState struct {
	entry    *rendererEntry
	expected map[string]bool // merger ids not yet terminal
	items    []MergedItem
	done     bool
}

// newCycle computes participation from the graph snapshot of the firing.
func newCycle(d event.Dispatch, g *graph) *cycle {
	cy := &cycle{
		d:         d,
		g:         g,
		mergers:   make(map[string]*mergeState),
		renderers: make(map[string]*renderState),
	}

	var producers []*producerEntry
	for _, id := range d.Subscribers {
		if p, ok := g.producers[id]; ok {
			producers = append(producers, p)
		}
	}

	for id, m := range g.mergers {
		expected := make(map[string]bool)
		for _, p := range producers {
			if m.wants(p) {
				expected[p.id()] = true
			}
		}
		if len(expected) == 0 {
			continue
		}
		cy.mergers[id] = &mergeState{entry: m, expected: expected}
	}

	for id, r := range g.renderers {
		expected := make(map[string]bool)
		for mergerID := range r.inputs {
			if _, ok := cy.mergers[mergerID]; ok {
				expected[mergerID] = true
			}
		}
		if len(expected) == 0 {
			continue
		}
		cy.renderers[id] = &renderState{entry: r, expected: expected}
	}

	cy.pending = len(cy.mergers) + len(cy.renderers)
	return cy
}

// arm starts partial-merge deadlines. expire is called once per merger
// whose deadline passes first.
func (cy *cycle) arm(defaultTimeout time.Duration, expire func(*mergeState)) {
	cy.mu.Lock()
	defer cy.mu.Unlock()

	for _, ms := range cy.mergers {
		timeout := ms.entry.reg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		if timeout <= 0 {
			continue
		}
		ms.timer = time.AfterFunc(timeout, func() {
			cy.mu.Lock()
			if ms.done {
				cy.mu.Unlock()
				return
			}
			ms.done = true
			ms.expired = true
			cy.mu.Unlock()
			expire(ms)
		})
	}
}

// producerDone records a terminal producer. item is nil when the producer
// failed or its result was discarded. It returns the mergers that became
// eligible.
func (cy *cycle) producerDone(producerID string, item *ContentItem) []*mergeState {
	cy.mu.Lock()
	defer cy.mu.Unlock()

	var ready []*mergeState
	for _, ms := range cy.mergers {
		if ms.done || !ms.expected[producerID] {
			continue
		}
		delete(ms.expected, producerID)
		if item != nil && ms.entry.inputs[item.ItemID] {
			ms.items = append(ms.items, *item)
		}
		if len(ms.expected) == 0 {
			ms.done = true
			ready = append(ready, ms)
		}
	}
	return ready
}

// mergerDone records a terminal merger. merged is nil when the merge
// failed, was skipped, or was discarded. It returns the renderers that
// became eligible.
func (cy *cycle) mergerDone(mergerID string, merged *MergedItem) []*renderState {
	cy.mu.Lock()
	defer cy.mu.Unlock()

	var ready []*renderState
	for _, rs := range cy.renderers {
		if rs.done || !rs.expected[mergerID] {
			continue
		}
		delete(rs.expected, mergerID)
		if merged != nil {
			rs.items = append(rs.items, *merged)
		}
		if len(rs.expected) == 0 {
			rs.done = true
			ready = append(ready, rs)
		}
	}
	return ready
}

// settle marks the firing settled and returns mergers still waiting. Once
// every subscriber is terminal nothing else can arrive for them.
func (cy *cycle) settle() []*mergeState {
	cy.mu.Lock()
	defer cy.mu.Unlock()

	cy.settled = true
	var ready []*mergeState
	for _, ms := range cy.mergers {
		if ms.done {
			continue
		}
		ms.done = true
		ready = append(ready, ms)
	}
	return ready
}

// stageDone counts a finished merger or renderer. It reports true exactly
// once, when the cycle is complete.
func (cy *cycle) stageDone() bool {
	cy.mu.Lock()
	defer cy.mu.Unlock()
	cy.pending--
	return cy.finishLocked()
}

// tryFinish reports true exactly once, when the cycle is complete.
func (cy *cycle) tryFinish() bool {
	cy.mu.Lock()
	defer cy.mu.Unlock()
	return cy.finishLocked()
}

func (cy *cycle) finishLocked() bool {
	if cy.finished || !cy.settled || cy.pending > 0 {
		return false
	}
	cy.finished = true
	return true
}

// snapshotItems returns a copy of the merger's accumulated items. The
// merger is done, so nothing else appends.
func (cy *cycle) snapshotItems(ms *mergeState) []ContentItem {
	cy.mu.Lock()
	defer cy.mu.Unlock()
	if ms.timer != nil {
		ms.timer.Stop()
	}
	return append([]ContentItem(nil), ms.items...)
}

func (cy *cycle) snapshotMerged(rs *renderState) []MergedItem {
	cy.mu.Lock()
	defer cy.mu.Unlock()
	return append([]MergedItem(nil), rs.items...)
}
