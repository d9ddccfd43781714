package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	cferrors "github.com/randalmurphal/contentflow/pkg/contentflow/errors"
	"github.com/randalmurphal/contentflow/pkg/contentflow/observability"
)

// ErrBusClosed is returned by Fire and Register after Close.
var ErrBusClosed = errors.New("event bus closed")

// Scheduler runs dispatch jobs. *pool.Pool satisfies it.
type Scheduler interface {
	Submit(task func()) error
}

// goScheduler runs every job on a fresh goroutine.
type goScheduler struct{}

func (goScheduler) Submit(task func()) error {
	go task()
	return nil
}

// BusConfig configures bus behavior.
type BusConfig struct {
	// Scheduler runs one job per subscriber per firing.
	// Default: a new goroutine per job
	Scheduler Scheduler

	// OnFire is called with the dispatch snapshot before any subscriber
	// runs. It executes inside the subscription read lock, so it observes
	// exactly the graph the firing dispatches to. It must not call back
	// into Register, Unregister, or Update.
	OnFire func(d Dispatch)

	// OnSettle is called once every subscriber reached a terminal state,
	// before the event may fire again.
	OnSettle func(d Dispatch, outcomes []Outcome)

	// OnError is called when a subscriber returns an error or panics.
	OnError func(d Dispatch, subscriberID string, err error)

	// Logger for bus diagnostics.
	// Default: slog.Default()
	Logger *slog.Logger

	// Metrics records firing counters.
	// Default: observability.NoopMetrics{}
	Metrics observability.MetricsRecorder

	// Spans traces firings.
	// Default: observability.NoopSpanManager{}
	Spans observability.SpanManager
}

// LocalBus is an in-memory event bus that serializes firings per event id.
type LocalBus struct {
	config BusConfig

	mu   sync.RWMutex
	subs map[ID]map[string]Subscriber // event id -> subscriber id -> subscriber

	firingMu sync.Mutex
	inflight map[ID]string // event id -> cycle id of the unsettled firing
	settled  *sync.Cond

	closed atomic.Bool // stored under firingMu
}

// NewBus creates a new local event bus.
func NewBus(config BusConfig) *LocalBus {
	if config.Scheduler == nil {
		config.Scheduler = goScheduler{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Metrics == nil {
		config.Metrics = observability.NoopMetrics{}
	}
	if config.Spans == nil {
		config.Spans = observability.NoopSpanManager{}
	}

	b := &LocalBus{
		config:   config,
		subs:     make(map[ID]map[string]Subscriber),
		inflight: make(map[ID]string),
	}
	b.settled = sync.NewCond(&b.firingMu)
	return b
}

// Register subscribes sub to id. Registering the same pair twice is a no-op.
func (b *LocalBus) Register(id ID, sub Subscriber) error {
	return b.Update(func(r Registrar) error {
		return r.Register(id, sub)
	})
}

// Unregister removes sub from id. Unregistering an absent pair is a no-op.
func (b *LocalBus) Unregister(id ID, sub Subscriber) error {
	return b.Update(func(r Registrar) error {
		return r.Unregister(id, sub)
	})
}

// Update applies fn under exclusive access to the subscription graph.
// No firing observes a partial update; if fn returns an error every change
// it made is rolled back.
func (b *LocalBus) Update(fn func(r Registrar) error) error {
	if b.closed.Load() {
		return ErrBusClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	tx := &registrarTx{bus: b}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// Fire dispatches id to its current subscribers.
//
// Fire fails with *errors.ConcurrentFiringError while an earlier firing of
// the same id is unsettled. Firings of different ids never wait on each
// other. The returned Firing settles once every subscriber has returned.
//
// Subscribers run with a context that keeps ctx values but not its
// cancellation, so a cancelled caller does not abort dispatched work.
func (b *LocalBus) Fire(ctx context.Context, id ID) (*Firing, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	cycleID := uuid.New().String()

	b.firingMu.Lock()
	if b.closed.Load() {
		b.firingMu.Unlock()
		return nil, ErrBusClosed
	}
	if prior, ok := b.inflight[id]; ok {
		b.firingMu.Unlock()
		b.config.Metrics.RecordFiringRejected(ctx, string(id))
		observability.LogFiringRejected(b.config.Logger, string(id), prior)
		return nil, &cferrors.ConcurrentFiringError{EventID: string(id), CycleID: prior}
	}
	b.inflight[id] = cycleID
	b.firingMu.Unlock()

	b.mu.RLock()
	targets := b.snapshot(id)
	ids := make([]string, len(targets))
	for i, sub := range targets {
		ids[i] = sub.SubscriberID()
	}
	d := Dispatch{
		CycleID:     cycleID,
		EventID:     id,
		FiredAt:     time.Now(),
		Subscribers: ids,
	}
	f := newFiring(d)
	if b.config.OnFire != nil {
		b.config.OnFire(d)
	}
	b.mu.RUnlock()

	b.config.Metrics.RecordFiring(ctx, string(id), len(targets))
	observability.LogFiring(b.config.Logger, string(id), cycleID, len(targets))

	if len(targets) == 0 {
		b.settle(ctx, f, nil)
		return f, nil
	}

	jobCtx, span := b.config.Spans.StartFireSpan(context.WithoutCancel(ctx), string(id), cycleID)
	for _, sub := range targets {
		err := b.config.Scheduler.Submit(func() {
			b.deliver(jobCtx, f, sub, span)
		})
		if err != nil {
			// The job never ran; it still counts as terminal.
			b.complete(jobCtx, f, Outcome{
				SubscriberID: sub.SubscriberID(),
				Err:          fmt.Errorf("schedule %s: %w", sub.SubscriberID(), err),
			}, span)
		}
	}

	return f, nil
}

// snapshot returns subscribers of id sorted by subscriber id.
// Caller must hold b.mu.
func (b *LocalBus) snapshot(id ID) []Subscriber {
	byID := b.subs[id]
	out := make([]Subscriber, 0, len(byID))
	for _, sub := range byID {
		out = append(out, sub)
	}
	slices.SortFunc(out, func(a, c Subscriber) int {
		return strings.Compare(a.SubscriberID(), c.SubscriberID())
	})
	return out
}

func (b *LocalBus) deliver(ctx context.Context, f *Firing, sub Subscriber, span trace.Span) {
	start := time.Now()
	err := invoke(ctx, f.dispatch, sub)
	b.complete(ctx, f, Outcome{
		SubscriberID: sub.SubscriberID(),
		Err:          err,
		Duration:     time.Since(start),
	}, span)
}

// invoke calls the subscriber, converting a panic into an error.
func invoke(ctx context.Context, d Dispatch, sub Subscriber) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &cferrors.PanicError{Component: sub.SubscriberID(), Value: r}
		}
	}()
	return sub.OnEvent(ctx, d)
}

func (b *LocalBus) complete(ctx context.Context, f *Firing, o Outcome, span trace.Span) {
	if o.Err != nil && b.config.OnError != nil {
		b.config.OnError(f.dispatch, o.SubscriberID, o.Err)
	}
	if f.record(o) {
		b.settle(ctx, f, span)
	}
}

func (b *LocalBus) settle(ctx context.Context, f *Firing, span trace.Span) {
	outcomes := f.Outcomes()
	failures := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failures++
		}
	}

	if b.config.OnSettle != nil {
		b.config.OnSettle(f.dispatch, outcomes)
	}

	b.firingMu.Lock()
	if b.inflight[f.dispatch.EventID] == f.dispatch.CycleID {
		delete(b.inflight, f.dispatch.EventID)
	}
	b.settled.Broadcast()
	b.firingMu.Unlock()

	elapsed := time.Since(f.dispatch.FiredAt)
	b.config.Metrics.RecordFiringSettled(ctx, string(f.dispatch.EventID), elapsed)
	observability.LogFiringSettled(b.config.Logger, string(f.dispatch.EventID), f.dispatch.CycleID,
		float64(elapsed.Microseconds())/1000, failures)
	if span != nil {
		span.End()
	}

	close(f.done)
}

// InFlight returns the ids with an unsettled firing, sorted.
func (b *LocalBus) InFlight() []ID {
	b.firingMu.Lock()
	defer b.firingMu.Unlock()

	ids := make([]ID, 0, len(b.inflight))
	for id := range b.inflight {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Subscriptions returns a copy of the subscription graph with sorted
// subscriber ids.
func (b *LocalBus) Subscriptions() map[ID][]string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[ID][]string, len(b.subs))
	for id, byID := range b.subs {
		ids := make([]string, 0, len(byID))
		for subID := range byID {
			ids = append(ids, subID)
		}
		slices.Sort(ids)
		out[id] = ids
	}
	return out
}

// Close rejects new firings and registrations, then waits until every
// in-flight firing settled or ctx is done.
func (b *LocalBus) Close(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		b.firingMu.Lock()
		b.settled.Broadcast()
		b.firingMu.Unlock()
	})
	defer stop()

	b.firingMu.Lock()
	defer b.firingMu.Unlock()
	b.closed.Store(true)
	for len(b.inflight) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.settled.Wait()
	}
	return nil
}

// registrarTx records changes made during Update so they can be undone.
type registrarTx struct {
	bus  *LocalBus
	undo []func()
}

func (tx *registrarTx) Register(id ID, sub Subscriber) error {
	if err := id.Validate(); err != nil {
		return err
	}
	if sub == nil {
		return fmt.Errorf("register %s: nil subscriber", id)
	}
	subID := sub.SubscriberID()
	if subID == "" {
		return fmt.Errorf("register %s: empty subscriber id", id)
	}

	byID := tx.bus.subs[id]
	if byID == nil {
		byID = make(map[string]Subscriber)
		tx.bus.subs[id] = byID
	}

	prev, existed := byID[subID]
	byID[subID] = sub
	tx.undo = append(tx.undo, func() {
		if existed {
			tx.bus.subs[id][subID] = prev
			return
		}
		tx.bus.removeLocked(id, subID)
	})
	return nil
}

func (tx *registrarTx) Unregister(id ID, sub Subscriber) error {
	if err := id.Validate(); err != nil {
		return err
	}
	if sub == nil {
		return fmt.Errorf("unregister %s: nil subscriber", id)
	}
	subID := sub.SubscriberID()

	prev, existed := tx.bus.subs[id][subID]
	if !existed {
		return nil
	}
	tx.bus.removeLocked(id, subID)
	tx.undo = append(tx.undo, func() {
		if tx.bus.subs[id] == nil {
			tx.bus.subs[id] = make(map[string]Subscriber)
		}
		tx.bus.subs[id][subID] = prev
	})
	return nil
}

func (tx *registrarTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

// removeLocked deletes one subscription. Caller must hold b.mu.
func (b *LocalBus) removeLocked(id ID, subID string) {
	byID, ok := b.subs[id]
	if !ok {
		return
	}
	delete(byID, subID)
	if len(byID) == 0 {
		delete(b.subs, id)
	}
}
