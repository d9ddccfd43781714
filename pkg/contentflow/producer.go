package contentflow

import (
	"context"
	"fmt"
	"time"

	cferrors "github.com/randalmurphal/contentflow/pkg/contentflow/errors"
	"github.com/randalmurphal/contentflow/pkg/contentflow/event"
	"github.com/randalmurphal/contentflow/pkg/contentflow/journal"
	"github.com/randalmurphal/contentflow/pkg/contentflow/observability"
	"github.com/randalmurphal/contentflow/pkg/contentflow/security"
)

// ContentProducer computes one content item per firing.
type ContentProducer interface {
	// ID identifies the producer. Ids are unique within a Coordinator.
	ID() string

	// Produce computes the item for one firing of eventID. It runs on the
	// shared worker pool and should return quickly.
	Produce(ctx context.Context, eventID event.ID) (Content, error)

	// HandleError is called exactly once for every failed Produce,
	// including timeouts, panics and refused permissions. err is a
	// *errors.ProducerFailure.
	HandleError(err error)
}

// ProducerFunc adapts a function to ContentProducer. Failures are ignored
// unless OnError is set.
type ProducerFunc struct {
	Name    string
	Fn      func(ctx context.Context, eventID event.ID) (Content, error)
	OnError func(err error)
}

// ID implements ContentProducer.
func (p ProducerFunc) ID() string { return p.Name }

// Produce implements ContentProducer.
func (p ProducerFunc) Produce(ctx context.Context, eventID event.ID) (Content, error) {
	return p.Fn(ctx, eventID)
}

// HandleError implements ContentProducer.
func (p ProducerFunc) HandleError(err error) {
	if p.OnError != nil {
		p.OnError(err)
	}
}

// producerSubscriber is the bus subscription of one producer entry.
type producerSubscriber struct {
	c     *Coordinator
	entry *producerEntry
}

func (s *producerSubscriber) SubscriberID() string {
	return s.entry.id()
}

func (s *producerSubscriber) OnEvent(ctx context.Context, d event.Dispatch) error {
	return s.c.runProducer(ctx, s.entry, d)
}

// runProducer executes one production task and feeds the cycle.
func (c *Coordinator) runProducer(ctx context.Context, e *producerEntry, d event.Dispatch) error {
	id := e.id()
	cy := c.lookupCycle(d.CycleID)
	logger := observability.EnrichLogger(c.opts.logger, string(d.EventID), d.CycleID, id)

	ctx, span := c.opts.spans.StartTaskSpan(ctx, journal.KindProducer, id)
	elapsed := observability.TimedOperation()
	item, err := c.produce(ctx, e, d)
	c.opts.metrics.RecordTask(ctx, journal.KindProducer, id, elapsed(), err)
	c.opts.spans.EndSpanWithError(span, err)

	if err != nil {
		failure := &cferrors.ProducerFailure{
			ProducerID: id,
			EventID:    string(d.EventID),
			CycleID:    d.CycleID,
			Err:        err,
		}
		observability.LogTaskError(logger, journal.KindProducer, id, failure)
		handleProducerError(e.producer, failure)
		c.report(ctx, journal.KindProducer, id, failure)
		c.feedProducer(cy, id, nil)
		return failure
	}

	if e.removed.Load() {
		observability.LogDiscarded(logger, journal.KindProducer, id)
		c.feedProducer(cy, id, nil)
		return nil
	}

	c.feedProducer(cy, id, &item)
	return nil
}

func (c *Coordinator) produce(ctx context.Context, e *producerEntry, d event.Dispatch) (ContentItem, error) {
	id := e.id()
	if err := c.opts.guard.Permit(ctx, security.Request{
		ComponentID: id,
		Operation:   security.OpProduce,
		EventID:     d.EventID,
	}); err != nil {
		return ContentItem{}, err
	}

	content, err := c.callProduce(ctx, e, d.EventID)
	if err != nil {
		return ContentItem{}, err
	}

	itemID := content.ItemID
	if itemID == "" && len(e.reg.Items) == 1 {
		itemID = e.reg.Items[0]
	}
	if !e.items[itemID] {
		return ContentItem{}, cferrors.Permanent(fmt.Errorf("undeclared item %q", itemID), "produce "+id)
	}

	return ContentItem{
		ProducerID: id,
		ItemID:     itemID,
		EventID:    d.EventID,
		CycleID:    d.CycleID,
		Payload:    content.Payload,
		ProducedAt: time.Now(),
	}, nil
}

// callProduce applies the producer timeout. On timeout the worker returns
// and the late result is dropped.
func (c *Coordinator) callProduce(ctx context.Context, e *producerEntry, eventID event.ID) (Content, error) {
	timeout := e.reg.Timeout
	if timeout == 0 {
		timeout = c.opts.producerTimeout
	}
	if timeout <= 0 {
		return safeProduce(ctx, e.producer, eventID)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		content Content
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		content, err := safeProduce(ctx, e.producer, eventID)
		ch <- result{content, err}
	}()

	select {
	case r := <-ch:
		return r.content, r.err
	case <-ctx.Done():
		return Content{}, &cferrors.TimeoutError{Operation: "produce " + e.id(), Duration: timeout}
	}
}

func safeProduce(ctx context.Context, p ContentProducer, eventID event.ID) (content Content, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &cferrors.PanicError{Component: p.ID(), Value: r}
		}
	}()
	return p.Produce(ctx, eventID)
}

func handleProducerError(p ContentProducer, err error) {
	defer func() { _ = recover() }()
	p.HandleError(err)
}

// feedProducer records a terminal producer and schedules eligible merges.
func (c *Coordinator) feedProducer(cy *cycle, producerID string, item *ContentItem) {
	if cy == nil {
		return
	}
	for _, ms := range cy.producerDone(producerID, item) {
		c.scheduleMerge(cy, ms)
	}
}
