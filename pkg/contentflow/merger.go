package contentflow

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	cferrors "github.com/randalmurphal/contentflow/pkg/contentflow/errors"
	"github.com/randalmurphal/contentflow/pkg/contentflow/journal"
	"github.com/randalmurphal/contentflow/pkg/contentflow/observability"
	"github.com/randalmurphal/contentflow/pkg/contentflow/security"
)

// OutputMerger combines the items of one cycle into one merged payload.
type OutputMerger interface {
	// ID identifies the merger. Ids are unique within a Coordinator.
	ID() string

	// Merge combines items, sorted by item id then producer id. Some
	// declared inputs may be missing. It should have no side effects;
	// a returned error drops the merged item for the cycle.
	Merge(ctx context.Context, items []ContentItem) (any, error)
}

// MergerFunc adapts a function to OutputMerger.
type MergerFunc struct {
	Name string
	Fn   func(ctx context.Context, items []ContentItem) (any, error)
}

// ID implements OutputMerger.
func (m MergerFunc) ID() string { return m.Name }

// Merge implements OutputMerger.
func (m MergerFunc) Merge(ctx context.Context, items []ContentItem) (any, error) {
	return m.Fn(ctx, items)
}

// scheduleMerge runs an eligible merger on the pool.
func (c *Coordinator) scheduleMerge(cy *cycle, ms *mergeState) {
	items := cy.snapshotItems(ms)
	id := ms.entry.id()
	logger := observability.EnrichLogger(c.opts.logger, string(cy.d.EventID), cy.d.CycleID, id)

	if ms.expired {
		logger.Debug("merge deadline passed, merging partial inputs",
			slog.Int("items", len(items)))
	}
	if len(items) == 0 || ms.entry.removed.Load() {
		c.finishMerge(cy, ms, nil)
		return
	}

	err := c.pool.Submit(func() {
		merged, err := c.runMerge(cy, ms.entry, items)
		if err != nil {
			observability.LogTaskError(logger, journal.KindMerger, id, err)
			c.report(context.Background(), journal.KindMerger, id, err)
			c.finishMerge(cy, ms, nil)
			return
		}
		if ms.entry.removed.Load() {
			observability.LogDiscarded(logger, journal.KindMerger, id)
			merged = nil
		}
		c.finishMerge(cy, ms, merged)
	})
	if err != nil {
		failure := &cferrors.MergeFailure{
			MergerID: id,
			EventID:  string(cy.d.EventID),
			CycleID:  cy.d.CycleID,
			Err:      fmt.Errorf("schedule: %w", err),
		}
		observability.LogTaskError(logger, journal.KindMerger, id, failure)
		c.report(context.Background(), journal.KindMerger, id, failure)
		c.finishMerge(cy, ms, nil)
	}
}

func (c *Coordinator) runMerge(cy *cycle, e *mergerEntry, items []ContentItem) (*MergedItem, error) {
	id := e.id()
	ctx, span := c.opts.spans.StartTaskSpan(context.Background(), journal.KindMerger, id)
	elapsed := observability.TimedOperation()

	slices.SortFunc(items, compareContentItems)
	payload, err := c.callMerge(ctx, e, cy, items)

	c.opts.metrics.RecordTask(ctx, journal.KindMerger, id, elapsed(), err)
	c.opts.spans.EndSpanWithError(span, err)

	if err != nil {
		return nil, &cferrors.MergeFailure{
			MergerID: id,
			EventID:  string(cy.d.EventID),
			CycleID:  cy.d.CycleID,
			Err:      err,
		}
	}

	inputs := make([]string, len(items))
	for i, item := range items {
		inputs[i] = item.ProducerID
	}
	return &MergedItem{
		MergerID: id,
		EventID:  cy.d.EventID,
		CycleID:  cy.d.CycleID,
		Payload:  payload,
		Inputs:   inputs,
		MergedAt: time.Now(),
	}, nil
}

func (c *Coordinator) callMerge(ctx context.Context, e *mergerEntry, cy *cycle, items []ContentItem) (payload any, err error) {
	if err := c.opts.guard.Permit(ctx, security.Request{
		ComponentID: e.id(),
		Operation:   security.OpMerge,
		EventID:     cy.d.EventID,
	}); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			err = &cferrors.PanicError{Component: e.id(), Value: r}
		}
	}()
	return e.merger.Merge(ctx, items)
}

// finishMerge hands the merged item, or its absence, to renderers.
func (c *Coordinator) finishMerge(cy *cycle, ms *mergeState, merged *MergedItem) {
	for _, rs := range cy.mergerDone(ms.entry.id(), merged) {
		c.scheduleRender(cy, rs)
	}
	if cy.stageDone() {
		c.closeCycle(cy)
	}
}
