package contentflow

import (
	"context"
	"fmt"
	"slices"

	cferrors "github.com/randalmurphal/contentflow/pkg/contentflow/errors"
	"github.com/randalmurphal/contentflow/pkg/contentflow/journal"
	"github.com/randalmurphal/contentflow/pkg/contentflow/observability"
	"github.com/randalmurphal/contentflow/pkg/contentflow/security"
)

// OutputRenderer is the terminal stage. Render produces the externally
// visible output of a cycle.
type OutputRenderer interface {
	// ID identifies the renderer. Ids are unique within a Coordinator.
	ID() string

	// Render receives the merged items that exist for the cycle, sorted by
	// merger id. It is not called when none exist.
	Render(ctx context.Context, items []MergedItem) error
}

// RendererFunc adapts a function to OutputRenderer.
type RendererFunc struct {
	Name string
	Fn   func(ctx context.Context, items []MergedItem) error
}

// ID implements OutputRenderer.
func (r RendererFunc) ID() string { return r.Name }

// Render implements OutputRenderer.
func (r RendererFunc) Render(ctx context.Context, items []MergedItem) error {
	return r.Fn(ctx, items)
}

// scheduleRender runs an eligible renderer on the pool.
func (c *Coordinator) scheduleRender(cy *cycle, rs *renderState) {
	items := cy.snapshotMerged(rs)
	id := rs.entry.id()
	logger := observability.EnrichLogger(c.opts.logger, string(cy.d.EventID), cy.d.CycleID, id)

	if rs.entry.removed.Load() {
		observability.LogDiscarded(logger, journal.KindRenderer, id)
		c.finishRender(cy)
		return
	}
	if len(items) == 0 {
		observability.LogRenderSkipped(logger, id)
		c.opts.metrics.RecordRender(context.Background(), id, true)
		c.finishRender(cy)
		return
	}

	err := c.pool.Submit(func() {
		if err := c.runRender(cy, rs.entry, items); err != nil {
			observability.LogTaskError(logger, journal.KindRenderer, id, err)
			c.report(context.Background(), journal.KindRenderer, id, err)
		}
		c.finishRender(cy)
	})
	if err != nil {
		failure := &cferrors.RenderFailure{
			RendererID: id,
			EventID:    string(cy.d.EventID),
			CycleID:    cy.d.CycleID,
			Err:        fmt.Errorf("schedule: %w", err),
		}
		observability.LogTaskError(logger, journal.KindRenderer, id, failure)
		c.report(context.Background(), journal.KindRenderer, id, failure)
		c.finishRender(cy)
	}
}

func (c *Coordinator) runRender(cy *cycle, e *rendererEntry, items []MergedItem) error {
	id := e.id()
	ctx, span := c.opts.spans.StartTaskSpan(context.Background(), journal.KindRenderer, id)
	elapsed := observability.TimedOperation()

	slices.SortFunc(items, compareMergedItems)
	err := c.callRender(ctx, e, cy, items)

	c.opts.metrics.RecordTask(ctx, journal.KindRenderer, id, elapsed(), err)
	c.opts.spans.EndSpanWithError(span, err)

	if err != nil {
		return &cferrors.RenderFailure{
			RendererID: id,
			EventID:    string(cy.d.EventID),
			CycleID:    cy.d.CycleID,
			Err:        err,
		}
	}
	c.opts.metrics.RecordRender(ctx, id, false)
	return nil
}

func (c *Coordinator) callRender(ctx context.Context, e *rendererEntry, cy *cycle, items []MergedItem) (err error) {
	if err := c.opts.guard.Permit(ctx, security.Request{
		ComponentID: e.id(),
		Operation:   security.OpRender,
		EventID:     cy.d.EventID,
	}); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = &cferrors.PanicError{Component: e.id(), Value: r}
		}
	}()
	return e.renderer.Render(ctx, items)
}

func (c *Coordinator) finishRender(cy *cycle) {
	if cy.stageDone() {
		c.closeCycle(cy)
	}
}
