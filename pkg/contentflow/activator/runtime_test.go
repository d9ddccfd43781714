package activator_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/contentflow/pkg/contentflow/activator"
	cferrors "github.com/randalmurphal/contentflow/pkg/contentflow/errors"
	"github.com/randalmurphal/contentflow/pkg/contentflow/event"
	"github.com/randalmurphal/contentflow/pkg/contentflow/security"
)

// funcActivator runs fn and records Terminated calls.
type funcActivator struct {
	id string
	fn func(ctx context.Context, fire event.Firer) error

	mu         sync.Mutex
	terminated int
	cause      error
}

func (a *funcActivator) ID() string { return a.id }

func (a *funcActivator) Run(ctx context.Context, fire event.Firer) error {
	return a.fn(ctx, fire)
}

func (a *funcActivator) Terminated(cause error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.terminated++
	a.cause = cause
}

func (a *funcActivator) state() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.terminated, a.cause
}

func newRuntime(t *testing.T, cfg activator.RuntimeConfig) *activator.Runtime {
	t.Helper()
	if cfg.Firer == nil {
		bus := event.NewBus(event.BusConfig{})
		t.Cleanup(func() { _ = bus.Close(context.Background()) })
		cfg.Firer = bus
	}
	rt := activator.NewRuntime(cfg)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	return rt
}

func waitHandle(t *testing.T, h *activator.Handle) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(ctx))
}

func TestRuntime_CleanExit(t *testing.T) {
	rt := newRuntime(t, activator.RuntimeConfig{})
	a := &funcActivator{id: "a", fn: func(context.Context, event.Firer) error { return nil }}

	h, err := rt.Start(a)
	require.NoError(t, err)
	waitHandle(t, h)

	n, cause := a.state()
	assert.Equal(t, 1, n)
	assert.NoError(t, cause)
	assert.NoError(t, h.Err())
	assert.Empty(t, rt.Running())
}

func TestRuntime_ErrorExit(t *testing.T) {
	var hookID string
	var hookCause error
	rt := newRuntime(t, activator.RuntimeConfig{
		OnTerminated: func(id string, cause error) {
			hookID, hookCause = id, cause
		},
	})

	boom := errors.New("sensor unplugged")
	a := &funcActivator{id: "a", fn: func(context.Context, event.Firer) error { return boom }}

	h, err := rt.Start(a)
	require.NoError(t, err)
	waitHandle(t, h)

	n, cause := a.state()
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, cause, boom)
	assert.ErrorIs(t, h.Err(), boom)
	assert.Equal(t, "a", hookID)
	assert.ErrorIs(t, hookCause, boom)
}

func TestRuntime_PanicExit(t *testing.T) {
	rt := newRuntime(t, activator.RuntimeConfig{})
	a := &funcActivator{id: "a", fn: func(context.Context, event.Firer) error { panic("bad") }}

	h, err := rt.Start(a)
	require.NoError(t, err)
	waitHandle(t, h)

	n, cause := a.state()
	assert.Equal(t, 1, n)
	var panicErr *cferrors.PanicError
	require.True(t, errors.As(cause, &panicErr))
	assert.Equal(t, "a", panicErr.Component)
}

func TestRuntime_CancelInvokesTerminatedBeforeResolve(t *testing.T) {
	rt := newRuntime(t, activator.RuntimeConfig{})

	started := make(chan struct{})
	a := &funcActivator{id: "a", fn: func(ctx context.Context, _ event.Firer) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}

	h, err := rt.Start(a)
	require.NoError(t, err)
	<-started

	n, _ := a.state()
	assert.Equal(t, 0, n)
	assert.NoError(t, h.Err(), "no cause before termination")

	h.Cancel()
	waitHandle(t, h)

	n, cause := a.state()
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, cause, context.Canceled)
}

func TestRuntime_DuplicateID(t *testing.T) {
	rt := newRuntime(t, activator.RuntimeConfig{})

	block := func(ctx context.Context, _ event.Firer) error {
		<-ctx.Done()
		return nil
	}
	h, err := rt.Start(&funcActivator{id: "a", fn: block})
	require.NoError(t, err)

	_, err = rt.Start(&funcActivator{id: "a", fn: block})
	assert.ErrorIs(t, err, activator.ErrDuplicateActivator)
	assert.Equal(t, []string{"a"}, rt.Running())

	require.NoError(t, rt.Stop(context.Background(), "a"))
	waitHandle(t, h)

	_, err = rt.Start(&funcActivator{id: "a", fn: block})
	assert.NoError(t, err, "id is free once the activator terminated")
}

func TestRuntime_StartValidation(t *testing.T) {
	rt := newRuntime(t, activator.RuntimeConfig{})

	_, err := rt.Start(nil)
	assert.Error(t, err)

	_, err = rt.Start(&funcActivator{id: ""})
	assert.Error(t, err)
}

func TestRuntime_FiresThroughGuard(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	defer bus.Close(context.Background())

	var delivered atomic.Int32
	require.NoError(t, bus.Register("tick", event.NewSubscriber("p", func(context.Context, event.Dispatch) error {
		delivered.Add(1)
		return nil
	})))

	guard := security.NewCapabilityGuard()
	guard.Grant("allowed", security.OpFire)
	rt := newRuntime(t, activator.RuntimeConfig{Firer: bus, Guard: guard})

	fireOnce := func(ctx context.Context, fire event.Firer) error {
		f, err := fire.Fire(ctx, "tick")
		if err != nil {
			return err
		}
		return f.Wait(ctx)
	}

	h, err := rt.Start(&funcActivator{id: "allowed", fn: fireOnce})
	require.NoError(t, err)
	waitHandle(t, h)
	assert.NoError(t, h.Err())
	assert.Equal(t, int32(1), delivered.Load())

	h, err = rt.Start(&funcActivator{id: "denied", fn: fireOnce})
	require.NoError(t, err)
	waitHandle(t, h)
	assert.True(t, cferrors.IsPermissionDenied(h.Err()))
	assert.Equal(t, int32(1), delivered.Load())
}

func TestRuntime_CloseStopsAll(t *testing.T) {
	rt := activator.NewRuntime(activator.RuntimeConfig{Firer: event.NewBus(event.BusConfig{})})

	var as []*funcActivator
	for _, id := range []string{"a", "b", "c"} {
		a := &funcActivator{id: id, fn: func(ctx context.Context, _ event.Firer) error {
			<-ctx.Done()
			return nil
		}}
		as = append(as, a)
		_, err := rt.Start(a)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a", "b", "c"}, rt.Running())

	require.NoError(t, rt.Close(context.Background()))
	for _, a := range as {
		n, _ := a.state()
		assert.Equal(t, 1, n, "activator %s", a.id)
	}
	assert.Empty(t, rt.Running())
}
