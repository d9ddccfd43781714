package contentflow_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/contentflow/pkg/contentflow"
	"github.com/randalmurphal/contentflow/pkg/contentflow/event"
	"github.com/randalmurphal/contentflow/pkg/contentflow/journal"
	"github.com/randalmurphal/contentflow/pkg/contentflow/observability"
)

// testProducer returns a fixed value, or fails, and counts HandleError calls.
type testProducer struct {
	id      string
	value   any
	itemID  string
	err     error
	gate    chan struct{} // when set, Produce blocks until closed
	started chan struct{} // when set, closed when Produce starts

	calls    atomic.Int32
	errCalls atomic.Int32
	mu       sync.Mutex
	errs     []error
}

func (p *testProducer) ID() string { return p.id }

func (p *testProducer) Produce(ctx context.Context, _ event.ID) (contentflow.Content, error) {
	p.calls.Add(1)
	if p.started != nil {
		close(p.started)
	}
	if p.gate != nil {
		<-p.gate
	}
	if p.err != nil {
		return contentflow.Content{}, p.err
	}
	return contentflow.Content{ItemID: p.itemID, Payload: p.value}, nil
}

func (p *testProducer) HandleError(err error) {
	p.errCalls.Add(1)
	p.mu.Lock()
	p.errs = append(p.errs, err)
	p.mu.Unlock()
}

func (p *testProducer) handled() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]error(nil), p.errs...)
}

// sumMerger adds int payloads and records what it was given.
type sumMerger struct {
	id string

	mu    sync.Mutex
	calls [][]contentflow.ContentItem
}

func (m *sumMerger) ID() string { return m.id }

func (m *sumMerger) Merge(_ context.Context, items []contentflow.ContentItem) (any, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]contentflow.ContentItem(nil), items...))
	m.mu.Unlock()

	total := 0
	for _, item := range items {
		v, ok := item.Payload.(int)
		if !ok {
			return nil, fmt.Errorf("item %s from %s is %T, not int", item.ItemID, item.ProducerID, item.Payload)
		}
		total += v
	}
	return total, nil
}

func (m *sumMerger) merges() [][]contentflow.ContentItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]contentflow.ContentItem(nil), m.calls...)
}

// recordingRenderer renders merged payloads as text.
type recordingRenderer struct {
	id  string
	err error

	mu      sync.Mutex
	outputs []string
	inputs  [][]contentflow.MergedItem
}

func (r *recordingRenderer) ID() string { return r.id }

func (r *recordingRenderer) Render(_ context.Context, items []contentflow.MergedItem) error {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprint(item.Payload)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs = append(r.outputs, out)
	r.inputs = append(r.inputs, append([]contentflow.MergedItem(nil), items...))
	return r.err
}

func (r *recordingRenderer) rendered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.outputs...)
}

// renderCounter records RecordRender calls by outcome.
type renderCounter struct {
	observability.NoopMetrics

	mu       sync.Mutex
	ok, skip []string
}

func (m *renderCounter) RecordRender(_ context.Context, rendererID string, skipped bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if skipped {
		m.skip = append(m.skip, rendererID)
		return
	}
	m.ok = append(m.ok, rendererID)
}

func (m *renderCounter) rendered() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.ok)
	slices.Sort(out)
	return out
}

func (m *renderCounter) skipped() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.skip)
	slices.Sort(out)
	return out
}

func newCoordinator(t *testing.T, opts ...contentflow.Option) (*contentflow.Coordinator, *journal.MemoryJournal) {
	t.Helper()
	j := journal.NewMemoryJournal()
	opts = append([]contentflow.Option{contentflow.WithReporter(j)}, opts...)
	c := contentflow.New(opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})
	return c, j
}

// fireAndDrain fires id and waits for the cycle to complete.
func fireAndDrain(t *testing.T, c *contentflow.Coordinator, id event.ID) *event.Firing {
	t.Helper()
	f, err := c.Bus().Fire(context.Background(), id)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.Wait(ctx))
	require.NoError(t, c.Drain(ctx))
	return f
}

var errProduce = errors.New("sensor offline")
