package contentflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/randalmurphal/contentflow/pkg/contentflow/activator"
	cferrors "github.com/randalmurphal/contentflow/pkg/contentflow/errors"
	"github.com/randalmurphal/contentflow/pkg/contentflow/event"
	"github.com/randalmurphal/contentflow/pkg/contentflow/journal"
	"github.com/randalmurphal/contentflow/pkg/contentflow/pool"
	"github.com/randalmurphal/contentflow/pkg/contentflow/security"
)

// Coordinator wires the event bus to producers, mergers and renderers and
// runs activators. It is the only entry point add-on hosts use.
type Coordinator struct {
	opts     options
	pool     *pool.Pool
	ownsPool bool
	bus      *event.LocalBus
	runtime  *activator.Runtime

	// mu serializes registration. The graph is replaced inside bus.Update,
	// so a firing sees the graph that matches its subscriber snapshot.
	mu     sync.Mutex
	graph  atomic.Pointer[graph]
	addOns map[string]*addOnRecord
	closed bool

	cyclesMu   sync.Mutex
	cycles     map[string]*cycle
	cyclesIdle *sync.Cond
}

// New creates a coordinator.
func New(opts ...Option) *Coordinator {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	c := &Coordinator{
		opts:   o,
		addOns: make(map[string]*addOnRecord),
		cycles: make(map[string]*cycle),
	}
	c.cyclesIdle = sync.NewCond(&c.cyclesMu)
	c.graph.Store(newGraph())

	c.pool = o.pool
	if c.pool == nil {
		c.pool = pool.New(pool.Config{
			MaxWorkers:  o.maxWorkers,
			IdleTimeout: o.idleTimeout,
			Logger:      o.logger,
		})
		c.ownsPool = true
	}

	c.bus = event.NewBus(event.BusConfig{
		Scheduler: c.pool,
		OnFire:    c.openCycle,
		OnSettle:  c.settleCycle,
		Logger:    o.logger,
		Metrics:   o.metrics,
		Spans:     o.spans,
	})

	c.runtime = activator.NewRuntime(activator.RuntimeConfig{
		Firer:        c.bus,
		Guard:        security.GuardFunc(c.permitFire),
		OnTerminated: c.activatorTerminated,
		Logger:       o.logger,
	})

	return c
}

// Bus returns the event bus. Hosts may fire events on it directly.
func (c *Coordinator) Bus() *event.LocalBus {
	return c.bus
}

// Pool returns the shared worker pool.
func (c *Coordinator) Pool() *pool.Pool {
	return c.pool
}

// mutateLocked applies fn to a copy of the graph inside one bus update.
// The copy replaces the graph only if fn succeeds. Caller must hold c.mu.
func (c *Coordinator) mutateLocked(fn func(g *graph, r event.Registrar) error) error {
	if c.closed {
		return ErrClosed
	}
	return c.bus.Update(func(r event.Registrar) error {
		next := c.graph.Load().clone()
		if err := fn(next, r); err != nil {
			return err
		}
		c.graph.Store(next)
		return nil
	})
}

func (c *Coordinator) mutate(fn func(g *graph, r event.Registrar) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mutateLocked(fn)
}

// AddProducer registers p and subscribes it to its events.
func (c *Coordinator) AddProducer(p ContentProducer, reg ProducerRegistration) error {
	if p == nil {
		return fmt.Errorf("producer: nil: %w", ErrInvalidRegistration)
	}
	id := p.ID()
	if err := validateID("producer", id); err != nil {
		return err
	}
	if err := validateEvents("producer", id, reg.Events, true); err != nil {
		return err
	}
	if err := validateNames("producer", id, "items", reg.Items); err != nil {
		return err
	}
	if err := validateTimeout("producer", id, reg.Timeout); err != nil {
		return err
	}

	reg.Events = append([]event.ID(nil), reg.Events...)
	reg.Items = append([]string(nil), reg.Items...)

	return c.mutate(func(g *graph, r event.Registrar) error {
		if _, ok := g.producers[id]; ok {
			return fmt.Errorf("producer %s: %w", id, ErrDuplicateComponent)
		}
		e := &producerEntry{producer: p, reg: reg, items: set(reg.Items)}
		sub := &producerSubscriber{c: c, entry: e}
		for _, ev := range reg.Events {
			if err := r.Register(ev, sub); err != nil {
				return err
			}
		}
		g.producers[id] = e
		return nil
	})
}

// RemoveProducer unsubscribes and removes a producer. Tasks already running
// finish, but their results are discarded.
func (c *Coordinator) RemoveProducer(id string) error {
	return c.mutate(func(g *graph, r event.Registrar) error {
		e, ok := g.producers[id]
		if !ok {
			return fmt.Errorf("producer %s: %w", id, ErrUnknownComponent)
		}
		sub := &producerSubscriber{c: c, entry: e}
		for _, ev := range e.reg.Events {
			if err := r.Unregister(ev, sub); err != nil {
				return err
			}
		}
		delete(g.producers, id)
		e.removed.Store(true)
		return nil
	})
}

// AddMerger registers m.
func (c *Coordinator) AddMerger(m OutputMerger, reg MergerRegistration) error {
	if m == nil {
		return fmt.Errorf("merger: nil: %w", ErrInvalidRegistration)
	}
	id := m.ID()
	if err := validateID("merger", id); err != nil {
		return err
	}
	if err := validateNames("merger", id, "inputs", reg.Inputs); err != nil {
		return err
	}
	if err := validateTimeout("merger", id, reg.Timeout); err != nil {
		return err
	}
	reg.Inputs = append([]string(nil), reg.Inputs...)

	return c.mutate(func(g *graph, _ event.Registrar) error {
		if _, ok := g.mergers[id]; ok {
			return fmt.Errorf("merger %s: %w", id, ErrDuplicateComponent)
		}
		g.mergers[id] = &mergerEntry{merger: m, reg: reg, inputs: set(reg.Inputs)}
		return nil
	})
}

// RemoveMerger removes a merger. A merge already running finishes, but its
// result is discarded.
func (c *Coordinator) RemoveMerger(id string) error {
	return c.mutate(func(g *graph, _ event.Registrar) error {
		e, ok := g.mergers[id]
		if !ok {
			return fmt.Errorf("merger %s: %w", id, ErrUnknownComponent)
		}
		delete(g.mergers, id)
		e.removed.Store(true)
		return nil
	})
}

// AddRenderer registers r.
func (c *Coordinator) AddRenderer(r OutputRenderer, reg RendererRegistration) error {
	if r == nil {
		return fmt.Errorf("renderer: nil: %w", ErrInvalidRegistration)
	}
	id := r.ID()
	if err := validateID("renderer", id); err != nil {
		return err
	}
	if err := validateNames("renderer", id, "inputs", reg.Inputs); err != nil {
		return err
	}
	reg.Inputs = append([]string(nil), reg.Inputs...)

	return c.mutate(func(g *graph, _ event.Registrar) error {
		if _, ok := g.renderers[id]; ok {
			return fmt.Errorf("renderer %s: %w", id, ErrDuplicateComponent)
		}
		g.renderers[id] = &rendererEntry{renderer: r, reg: reg, inputs: set(reg.Inputs)}
		return nil
	})
}

// RemoveRenderer removes a renderer. Renders already running finish.
func (c *Coordinator) RemoveRenderer(id string) error {
	return c.mutate(func(g *graph, _ event.Registrar) error {
		e, ok := g.renderers[id]
		if !ok {
			return fmt.Errorf("renderer %s: %w", id, ErrUnknownComponent)
		}
		delete(g.renderers, id)
		e.removed.Store(true)
		return nil
	})
}

// AddActivator registers and starts a. The returned handle resolves after
// the activator's Terminated hook ran.
//
// An activator that exits on its own stays registered, reported as not
// running by Snapshot. Call RemoveActivator before adding the same id again.
func (c *Coordinator) AddActivator(a activator.Activator, reg ActivatorRegistration) (*activator.Handle, error) {
	if a == nil {
		return nil, fmt.Errorf("activator: nil: %w", ErrInvalidRegistration)
	}
	id := a.ID()
	if err := validateID("activator", id); err != nil {
		return nil, err
	}
	if err := validateEvents("activator", id, reg.Events, false); err != nil {
		return nil, err
	}
	reg.Events = append([]event.ID(nil), reg.Events...)

	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.mutateLocked(func(g *graph, _ event.Registrar) error {
		if _, ok := g.activators[id]; ok {
			return fmt.Errorf("activator %s: %w", id, ErrDuplicateComponent)
		}
		g.activators[id] = &activatorEntry{activator: a, reg: reg, events: set(reg.Events)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Started after the graph is visible, so its first fire is permitted.
	h, err := c.runtime.Start(a)
	if err != nil {
		_ = c.mutateLocked(func(g *graph, _ event.Registrar) error {
			delete(g.activators, id)
			return nil
		})
		return nil, fmt.Errorf("activator %s: %w", id, err)
	}
	return h, nil
}

// RemoveActivator removes an activator, cancels it and waits until it
// terminated or ctx is done.
func (c *Coordinator) RemoveActivator(ctx context.Context, id string) error {
	err := c.mutate(func(g *graph, _ event.Registrar) error {
		if _, ok := g.activators[id]; !ok {
			return fmt.Errorf("activator %s: %w", id, ErrUnknownComponent)
		}
		delete(g.activators, id)
		return nil
	})
	if err != nil {
		return err
	}
	return c.runtime.Stop(ctx, id)
}

// permitFire checks that an activator declared the event, then asks the guard.
func (c *Coordinator) permitFire(ctx context.Context, req security.Request) error {
	e, ok := c.graph.Load().activators[req.ComponentID]
	if !ok {
		return &cferrors.Forbidden{Kind: string(security.OpFire), Reason: "activator " + req.ComponentID + " not registered"}
	}
	if !e.declares(req.EventID) {
		return &cferrors.Forbidden{Kind: string(security.OpFire), Reason: "event " + string(req.EventID) + " not declared"}
	}
	return c.opts.guard.Permit(ctx, req)
}

func (c *Coordinator) activatorTerminated(id string, cause error) {
	if cause != nil {
		c.report(context.Background(), journal.KindActivator, id, cause)
	}
}

// openCycle runs inside the bus snapshot, before any producer starts.
func (c *Coordinator) openCycle(d event.Dispatch) {
	cy := newCycle(d, c.graph.Load())

	c.cyclesMu.Lock()
	c.cycles[d.CycleID] = cy
	c.cyclesMu.Unlock()

	cy.arm(c.opts.mergerTimeout, func(ms *mergeState) {
		c.scheduleMerge(cy, ms)
	})
}

func (c *Coordinator) settleCycle(d event.Dispatch, _ []event.Outcome) {
	cy := c.lookupCycle(d.CycleID)
	if cy == nil {
		return
	}
	for _, ms := range cy.settle() {
		c.scheduleMerge(cy, ms)
	}
	if cy.tryFinish() {
		c.closeCycle(cy)
	}
}

func (c *Coordinator) lookupCycle(cycleID string) *cycle {
	c.cyclesMu.Lock()
	defer c.cyclesMu.Unlock()
	return c.cycles[cycleID]
}

func (c *Coordinator) closeCycle(cy *cycle) {
	c.cyclesMu.Lock()
	delete(c.cycles, cy.d.CycleID)
	if len(c.cycles) == 0 {
		c.cyclesIdle.Broadcast()
	}
	c.cyclesMu.Unlock()

	c.opts.logger.Debug("cycle complete",
		slog.String("event_id", string(cy.d.EventID)),
		slog.String("cycle_id", cy.d.CycleID))
}

func (c *Coordinator) report(ctx context.Context, kind, componentID string, err error) {
	if rerr := c.opts.reporter.Report(ctx, journal.FromError(kind, componentID, err)); rerr != nil {
		c.opts.logger.Warn("failure report dropped",
			slog.String("kind", kind),
			slog.String("component_id", componentID),
			slog.String("error", rerr.Error()))
	}
}

// Close stops activators, waits for in-flight cycles to complete, then
// stops the worker pool if the coordinator created it.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	if err := c.runtime.Close(ctx); err != nil {
		return fmt.Errorf("stop activators: %w", err)
	}
	if err := c.bus.Close(ctx); err != nil {
		return fmt.Errorf("close bus: %w", err)
	}
	if err := c.waitCycles(ctx); err != nil {
		return fmt.Errorf("wait for cycles: %w", err)
	}
	if c.ownsPool {
		if err := c.pool.Close(ctx); err != nil {
			return fmt.Errorf("close pool: %w", err)
		}
	}
	return nil
}

// Drain waits until no cycle is in flight or ctx is done. New firings may
// start while it waits.
func (c *Coordinator) Drain(ctx context.Context) error {
	return c.waitCycles(ctx)
}

func (c *Coordinator) waitCycles(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		c.cyclesMu.Lock()
		c.cyclesIdle.Broadcast()
		c.cyclesMu.Unlock()
	})
	defer stop()

	c.cyclesMu.Lock()
	defer c.cyclesMu.Unlock()
	for len(c.cycles) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.cyclesIdle.Wait()
	}
	return nil
}
