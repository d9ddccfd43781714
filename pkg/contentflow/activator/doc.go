// Package activator runs the long-lived add-on components that originate
// events.
//
// Each activator runs on its own goroutine and may block indefinitely. The
// runtime hands it an event.Firer and a context that is cancelled when its
// Handle is cancelled:
//
//	rt := activator.NewRuntime(activator.RuntimeConfig{Firer: bus})
//	h, err := rt.Start(activator.NewTicker("clock", "tick", time.Second))
//	...
//	h.Cancel()
//	_ = h.Wait(ctx) // Terminated has run
//
// When Run returns or panics, Terminated is invoked exactly once with the
// cause (nil on a clean exit) before the handle resolves.
//
// The runtime never retries a rejected fire. An activator that wants to
// wait out an overlapping firing calls FireWithRetry with a RetryPolicy;
// Ticker does so when its Retry field is set.
package activator
