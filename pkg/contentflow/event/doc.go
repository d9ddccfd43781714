// Package event provides the event bus at the front of the contentflow
// pipeline.
//
// # Overview
//
// The bus owns the event id -> subscriber mapping and dispatches firings.
// Each firing gets a unique cycle id and a snapshot of the subscribers
// registered at that moment:
//
//	bus := event.NewBus(event.BusConfig{Scheduler: workers})
//	bus.Register("tick", event.NewSubscriber("clock-face", onTick))
//
//	firing, err := bus.Fire(ctx, "tick")
//	if err != nil {
//	    // *errors.ConcurrentFiringError: "tick" is still in flight
//	}
//	firing.Wait(ctx) // every subscriber reached a terminal state
//
// # Per-event serialization
//
// Events are not re-entrant per id. While a firing of "tick" is unsettled,
// a second Fire("tick") fails immediately; firings of other ids proceed
// concurrently and unordered. The caller decides whether to drop, queue,
// or retry a rejected firing.
//
// # Atomic graph updates
//
// Update applies several registrations in one critical section, so no
// firing observes a half-registered component:
//
//	bus.Update(func(r event.Registrar) error {
//	    if err := r.Register("tick", sub); err != nil {
//	        return err
//	    }
//	    return r.Register("tock", sub)
//	})
//
// The OnFire hook runs inside the same lock as the snapshot, which lets a
// caller record derived state that is consistent with the dispatched graph.
package event
