package activator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	cferrors "github.com/randalmurphal/contentflow/pkg/contentflow/errors"
	"github.com/randalmurphal/contentflow/pkg/contentflow/event"
	"github.com/randalmurphal/contentflow/pkg/contentflow/observability"
	"github.com/randalmurphal/contentflow/pkg/contentflow/security"
)

// ErrDuplicateActivator is returned when an activator id is already running.
var ErrDuplicateActivator = errors.New("activator already running")

// Activator originates events.
type Activator interface {
	// ID identifies the activator. Ids are unique within a Runtime.
	ID() string

	// Run is the activator body. It should return promptly once ctx is done.
	Run(ctx context.Context, fire event.Firer) error

	// Terminated is called exactly once after Run exits. cause is nil on a
	// clean exit.
	Terminated(cause error)
}

// RuntimeConfig configures the activator runtime.
type RuntimeConfig struct {
	// Firer is what activators fire through. Required.
	Firer event.Firer

	// Guard checks OpFire before each fire.
	// Default: security.AllowAll
	Guard security.Guard

	// OnTerminated is called after an activator's Terminated hook returned.
	OnTerminated func(id string, cause error)

	// Logger for lifecycle events.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Runtime starts activators and tracks their handles.
type Runtime struct {
	config RuntimeConfig

	mu      sync.Mutex
	running map[string]*Handle
}

// NewRuntime creates an activator runtime.
func NewRuntime(config RuntimeConfig) *Runtime {
	if config.Guard == nil {
		config.Guard = security.AllowAll
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Runtime{
		config:  config,
		running: make(map[string]*Handle),
	}
}

// Start runs a on a dedicated goroutine.
func (r *Runtime) Start(a Activator) (*Handle, error) {
	if a == nil {
		return nil, fmt.Errorf("start: nil activator")
	}
	id := a.ID()
	if id == "" {
		return nil, fmt.Errorf("start: empty activator id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.running[id]; ok {
		return nil, fmt.Errorf("start %s: %w", id, ErrDuplicateActivator)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		id:     id,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.running[id] = h

	firer := security.NewGuardedFirer(r.config.Guard, id, r.config.Firer)
	go r.run(ctx, a, firer, h)

	return h, nil
}

func (r *Runtime) run(ctx context.Context, a Activator, firer event.Firer, h *Handle) {
	defer close(h.done)
	defer h.cancel()

	cause := runBody(ctx, a, firer)
	h.cause = cause

	terminated(a, cause)
	observability.LogActivatorTerminated(r.config.Logger, h.id, cause)
	if r.config.OnTerminated != nil {
		r.config.OnTerminated(h.id, cause)
	}

	r.mu.Lock()
	if r.running[h.id] == h {
		delete(r.running, h.id)
	}
	r.mu.Unlock()
}

func runBody(ctx context.Context, a Activator, firer event.Firer) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &cferrors.PanicError{Component: a.ID(), Value: rec}
		}
	}()
	return a.Run(ctx, firer)
}

// terminated invokes the hook, swallowing a panic so the handle still resolves.
func terminated(a Activator, cause error) {
	defer func() { _ = recover() }()
	a.Terminated(cause)
}

// Lookup returns the handle of a running activator.
func (r *Runtime) Lookup(id string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.running[id]
	return h, ok
}

// Running returns the ids of running activators, sorted.
func (r *Runtime) Running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.running))
	for id := range r.running {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Stop cancels the activator id and waits for it to terminate.
func (r *Runtime) Stop(ctx context.Context, id string) error {
	h, ok := r.Lookup(id)
	if !ok {
		return nil
	}
	h.Cancel()
	return h.Wait(ctx)
}

// Close cancels every running activator and waits for all of them.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.running))
	for _, h := range r.running {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
	for _, h := range handles {
		if err := h.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Handle controls one running activator.
type Handle struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
	cause  error // written before done is closed
}

// ID returns the activator id.
func (h *Handle) ID() string {
	return h.id
}

// Cancel interrupts the activator. It does not wait.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed after Terminated returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the activator terminated or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the termination cause. It is nil until Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.cause
	default:
		return nil
	}
}
