package event_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cferrors "github.com/randalmurphal/contentflow/pkg/contentflow/errors"
	"github.com/randalmurphal/contentflow/pkg/contentflow/event"
	"github.com/randalmurphal/contentflow/pkg/contentflow/pool"
)

func newTestBus(t *testing.T, cfg event.BusConfig) *event.LocalBus {
	t.Helper()
	if cfg.Scheduler == nil {
		p := pool.New(pool.Config{})
		t.Cleanup(func() { _ = p.Close(context.Background()) })
		cfg.Scheduler = p
	}
	bus := event.NewBus(cfg)
	t.Cleanup(func() { _ = bus.Close(context.Background()) })
	return bus
}

func counting(id string, n *atomic.Int32) event.Subscriber {
	return event.NewSubscriber(id, func(context.Context, event.Dispatch) error {
		n.Add(1)
		return nil
	})
}

func waitFiring(t *testing.T, f *event.Firing) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.Wait(ctx))
}

func TestBus_FireDeliversToSubscribers(t *testing.T) {
	bus := newTestBus(t, event.BusConfig{})

	var a, b atomic.Int32
	require.NoError(t, bus.Register("tick", counting("a", &a)))
	require.NoError(t, bus.Register("tick", counting("b", &b)))

	f, err := bus.Fire(context.Background(), "tick")
	require.NoError(t, err)
	waitFiring(t, f)

	assert.Equal(t, int32(1), a.Load())
	assert.Equal(t, int32(1), b.Load())
	assert.Equal(t, []string{"a", "b"}, f.Dispatch().Subscribers)
	assert.NotEmpty(t, f.CycleID())
	assert.Equal(t, event.ID("tick"), f.EventID())
	assert.NoError(t, f.Err())
}

func TestBus_NonMatchingEventNotDelivered(t *testing.T) {
	bus := newTestBus(t, event.BusConfig{})

	var n atomic.Int32
	require.NoError(t, bus.Register("tick", counting("a", &n)))

	f, err := bus.Fire(context.Background(), "other")
	require.NoError(t, err)
	waitFiring(t, f)

	assert.Equal(t, int32(0), n.Load())
	assert.True(t, f.Settled(), "firing with no subscribers settles immediately")
}

func TestBus_RegisterIsIdempotent(t *testing.T) {
	bus := newTestBus(t, event.BusConfig{})

	var n atomic.Int32
	sub := counting("a", &n)
	require.NoError(t, bus.Register("tick", sub))
	require.NoError(t, bus.Register("tick", sub))

	f, err := bus.Fire(context.Background(), "tick")
	require.NoError(t, err)
	waitFiring(t, f)

	assert.Equal(t, int32(1), n.Load(), "subscriber invoked once per firing")
	assert.Equal(t, map[event.ID][]string{"tick": {"a"}}, bus.Subscriptions())
}

func TestBus_UnregisterIsIdempotent(t *testing.T) {
	bus := newTestBus(t, event.BusConfig{})

	var n atomic.Int32
	sub := counting("a", &n)
	require.NoError(t, bus.Register("tick", sub))
	require.NoError(t, bus.Unregister("tick", sub))
	require.NoError(t, bus.Unregister("tick", sub))

	f, err := bus.Fire(context.Background(), "tick")
	require.NoError(t, err)
	waitFiring(t, f)

	assert.Equal(t, int32(0), n.Load())
	assert.Empty(t, bus.Subscriptions())
}

func TestBus_InvalidEventID(t *testing.T) {
	bus := newTestBus(t, event.BusConfig{})
	var n atomic.Int32

	err := bus.Register("", counting("a", &n))
	assert.ErrorIs(t, err, cferrors.ErrInvalidEventID)

	err = bus.Unregister("", counting("a", &n))
	assert.ErrorIs(t, err, cferrors.ErrInvalidEventID)

	_, err = bus.Fire(context.Background(), "")
	assert.ErrorIs(t, err, cferrors.ErrInvalidEventID)
}

func TestBus_ConcurrentFiringRejected(t *testing.T) {
	bus := newTestBus(t, event.BusConfig{})

	release := make(chan struct{})
	require.NoError(t, bus.Register("tick", event.NewSubscriber("slow", func(context.Context, event.Dispatch) error {
		<-release
		return nil
	})))

	first, err := bus.Fire(context.Background(), "tick")
	require.NoError(t, err)

	_, err = bus.Fire(context.Background(), "tick")
	var concurrent *cferrors.ConcurrentFiringError
	require.True(t, errors.As(err, &concurrent), "expected ConcurrentFiringError, got %v", err)
	assert.Equal(t, "tick", concurrent.EventID)
	assert.Equal(t, first.CycleID(), concurrent.CycleID)
	assert.Equal(t, []event.ID{"tick"}, bus.InFlight())

	close(release)
	waitFiring(t, first)

	second, err := bus.Fire(context.Background(), "tick")
	require.NoError(t, err, "fire succeeds once the prior firing settled")
	waitFiring(t, second)
	assert.NotEqual(t, first.CycleID(), second.CycleID())
	assert.Empty(t, bus.InFlight())
}

func TestBus_DistinctEventsDoNotBlock(t *testing.T) {
	bus := newTestBus(t, event.BusConfig{})

	release := make(chan struct{})
	require.NoError(t, bus.Register("slow", event.NewSubscriber("s", func(context.Context, event.Dispatch) error {
		<-release
		return nil
	})))
	var fast atomic.Int32
	require.NoError(t, bus.Register("fast", counting("f", &fast)))

	slow, err := bus.Fire(context.Background(), "slow")
	require.NoError(t, err)

	f, err := bus.Fire(context.Background(), "fast")
	require.NoError(t, err)
	waitFiring(t, f)

	assert.Equal(t, int32(1), fast.Load())
	assert.False(t, slow.Settled())

	close(release)
	waitFiring(t, slow)
}

func TestBus_SettlesOnlyAfterAllSubscribers(t *testing.T) {
	bus := newTestBus(t, event.BusConfig{})

	release := make(chan struct{})
	var quick atomic.Int32
	require.NoError(t, bus.Register("tick", counting("quick", &quick)))
	require.NoError(t, bus.Register("tick", event.NewSubscriber("slow", func(context.Context, event.Dispatch) error {
		<-release
		return errors.New("slow failed")
	})))

	f, err := bus.Fire(context.Background(), "tick")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return quick.Load() == 1 }, time.Second, time.Millisecond)
	assert.False(t, f.Settled())

	close(release)
	waitFiring(t, f)

	outcomes := f.Outcomes()
	require.Len(t, outcomes, 2)
	assert.Equal(t, "quick", outcomes[0].SubscriberID)
	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, "slow", outcomes[1].SubscriberID)
	assert.EqualError(t, outcomes[1].Err, "slow failed")
	assert.EqualError(t, f.Err(), "slow failed")
}

func TestBus_SubscriberPanicIsIsolated(t *testing.T) {
	var errorsSeen atomic.Int32
	bus := newTestBus(t, event.BusConfig{
		OnError: func(event.Dispatch, string, error) { errorsSeen.Add(1) },
	})

	var n atomic.Int32
	require.NoError(t, bus.Register("tick", event.NewSubscriber("bad", func(context.Context, event.Dispatch) error {
		panic("boom")
	})))
	require.NoError(t, bus.Register("tick", counting("good", &n)))

	f, err := bus.Fire(context.Background(), "tick")
	require.NoError(t, err)
	waitFiring(t, f)

	assert.Equal(t, int32(1), n.Load())
	assert.Equal(t, int32(1), errorsSeen.Load())

	var panicErr *cferrors.PanicError
	assert.True(t, errors.As(f.Err(), &panicErr))
}

func TestBus_HooksSeeSnapshot(t *testing.T) {
	var mu sync.Mutex
	var fired, settled []event.Dispatch
	var settledOutcomes []event.Outcome

	bus := newTestBus(t, event.BusConfig{
		OnFire: func(d event.Dispatch) {
			mu.Lock()
			fired = append(fired, d)
			mu.Unlock()
		},
		OnSettle: func(d event.Dispatch, outcomes []event.Outcome) {
			mu.Lock()
			settled = append(settled, d)
			settledOutcomes = outcomes
			mu.Unlock()
		},
	})

	var n atomic.Int32
	require.NoError(t, bus.Register("tick", counting("a", &n)))

	f, err := bus.Fire(context.Background(), "tick")
	require.NoError(t, err)
	waitFiring(t, f)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, fired, 1)
	require.Len(t, settled, 1)
	assert.Equal(t, f.CycleID(), fired[0].CycleID)
	assert.Equal(t, f.CycleID(), settled[0].CycleID)
	assert.True(t, fired[0].Includes("a"))
	assert.False(t, fired[0].Includes("b"))
	require.Len(t, settledOutcomes, 1)
}

func TestBus_UpdateRollsBackOnError(t *testing.T) {
	bus := newTestBus(t, event.BusConfig{})

	var n atomic.Int32
	sub := counting("a", &n)
	require.NoError(t, bus.Register("keep", sub))

	err := bus.Update(func(r event.Registrar) error {
		if err := r.Register("tick", sub); err != nil {
			return err
		}
		if err := r.Unregister("keep", sub); err != nil {
			return err
		}
		return r.Register("", sub)
	})
	require.ErrorIs(t, err, cferrors.ErrInvalidEventID)

	assert.Equal(t, map[event.ID][]string{"keep": {"a"}}, bus.Subscriptions())
}

func TestBus_RemovedSubscriberNotInvokedOnNewFirings(t *testing.T) {
	bus := newTestBus(t, event.BusConfig{})

	var n atomic.Int32
	sub := counting("a", &n)
	require.NoError(t, bus.Register("tick", sub))

	f, err := bus.Fire(context.Background(), "tick")
	require.NoError(t, err)
	waitFiring(t, f)

	require.NoError(t, bus.Unregister("tick", sub))

	f, err = bus.Fire(context.Background(), "tick")
	require.NoError(t, err)
	waitFiring(t, f)

	assert.Equal(t, int32(1), n.Load())
	assert.Empty(t, f.Dispatch().Subscribers)
}

func TestBus_CancelledCallerDoesNotAbortDispatch(t *testing.T) {
	bus := newTestBus(t, event.BusConfig{})

	release := make(chan struct{})
	var sawCancel atomic.Bool
	require.NoError(t, bus.Register("tick", event.NewSubscriber("a", func(ctx context.Context, _ event.Dispatch) error {
		<-release
		sawCancel.Store(ctx.Err() != nil)
		return nil
	})))

	ctx, cancel := context.WithCancel(context.Background())
	f, err := bus.Fire(ctx, "tick")
	require.NoError(t, err)
	cancel()
	close(release)
	waitFiring(t, f)

	assert.False(t, sawCancel.Load())
}

func TestBus_CloseWaitsAndRejects(t *testing.T) {
	p := pool.New(pool.Config{})
	defer p.Close(context.Background())
	bus := event.NewBus(event.BusConfig{Scheduler: p})

	release := make(chan struct{})
	require.NoError(t, bus.Register("tick", event.NewSubscriber("a", func(context.Context, event.Dispatch) error {
		<-release
		return nil
	})))

	f, err := bus.Fire(context.Background(), "tick")
	require.NoError(t, err)

	closed := make(chan error, 1)
	go func() { closed <- bus.Close(context.Background()) }()

	select {
	case <-closed:
		t.Fatal("Close returned before in-flight firing settled")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-closed)
	assert.True(t, f.Settled())

	_, err = bus.Fire(context.Background(), "tick")
	assert.ErrorIs(t, err, event.ErrBusClosed)
	assert.ErrorIs(t, bus.Register("tick", counting("b", new(atomic.Int32))), event.ErrBusClosed)
}

func TestBus_CloseHonorsContext(t *testing.T) {
	bus := newTestBus(t, event.BusConfig{})

	release := make(chan struct{})
	require.NoError(t, bus.Register("tick", event.NewSubscriber("a", func(context.Context, event.Dispatch) error {
		<-release
		return nil
	})))

	f, err := bus.Fire(context.Background(), "tick")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Close(ctx), context.DeadlineExceeded)
	assert.Equal(t, []event.ID{"tick"}, bus.InFlight())

	close(release)
	waitFiring(t, f)
	require.NoError(t, bus.Close(context.Background()))
}

func TestBus_FireRacingCloseNeverOutlivesDrain(t *testing.T) {
	bus := newTestBus(t, event.BusConfig{})

	ids := make([]event.ID, 50)
	for i := range ids {
		ids[i] = event.ID("e" + strconv.Itoa(i))
		require.NoError(t, bus.Register(ids[i], event.NewSubscriber("s", func(context.Context, event.Dispatch) error {
			time.Sleep(time.Millisecond)
			return nil
		})))
	}

	var (
		mu       sync.Mutex
		accepted []*event.Firing
		wg       sync.WaitGroup
	)
	start := make(chan struct{})
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if f, err := bus.Fire(context.Background(), id); err == nil {
				mu.Lock()
				accepted = append(accepted, f)
				mu.Unlock()
			}
		}()
	}

	close(start)
	require.NoError(t, bus.Close(context.Background()))
	wg.Wait()

	assert.Empty(t, bus.InFlight())
	mu.Lock()
	defer mu.Unlock()
	for _, f := range accepted {
		assert.True(t, f.Settled(), "firing %s accepted after drain", f.EventID())
	}
}

func TestBus_SchedulerFailureCountsAsTerminal(t *testing.T) {
	p := pool.New(pool.Config{})
	require.NoError(t, p.Close(context.Background()))

	bus := event.NewBus(event.BusConfig{Scheduler: p})
	var n atomic.Int32
	require.NoError(t, bus.Register("tick", counting("a", &n)))

	f, err := bus.Fire(context.Background(), "tick")
	require.NoError(t, err)
	waitFiring(t, f)

	assert.ErrorIs(t, f.Err(), pool.ErrClosed)
	assert.Equal(t, int32(0), n.Load())
}
