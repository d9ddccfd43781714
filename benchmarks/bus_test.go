package benchmarks

import (
	"context"
	"fmt"
	"testing"

	"github.com/randalmurphal/contentflow/pkg/contentflow/event"
	"github.com/randalmurphal/contentflow/pkg/contentflow/pool"
)

// BenchmarkFire_Subscribers fires one event to n subscribers and waits for settlement.
func BenchmarkFire_Subscribers(b *testing.B) {
	for _, n := range []int{1, 10, 100} {
		b.Run(fmt.Sprintf("subscribers=%d", n), func(b *testing.B) {
			p := pool.New(pool.Config{})
			defer p.Close(context.Background())

			bus := event.NewBus(event.BusConfig{Scheduler: p})
			defer bus.Close(context.Background())

			for i := range n {
				_ = bus.Register("tick", event.NewSubscriber(fmt.Sprintf("s%03d", i), func(context.Context, event.Dispatch) error {
					return nil
				}))
			}

			ctx := context.Background()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				f, err := bus.Fire(ctx, "tick")
				if err != nil {
					b.Fatal(err)
				}
				_ = f.Wait(ctx)
			}
		})
	}
}

// BenchmarkFire_DistinctEvents fires independent events in parallel.
func BenchmarkFire_DistinctEvents(b *testing.B) {
	bus := event.NewBus(event.BusConfig{})
	defer bus.Close(context.Background())

	const events = 64
	for i := range events {
		_ = bus.Register(event.ID(fmt.Sprintf("e%02d", i)), event.NewSubscriber("s", func(context.Context, event.Dispatch) error {
			return nil
		}))
	}

	ctx := context.Background()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			f, err := bus.Fire(ctx, event.ID(fmt.Sprintf("e%02d", i%events)))
			i++
			if err != nil {
				continue // the same id is still in flight on another goroutine
			}
			_ = f.Wait(ctx)
		}
	})
}

// BenchmarkPool_Submit measures task dispatch on a warm pool.
func BenchmarkPool_Submit(b *testing.B) {
	p := pool.New(pool.Config{MaxWorkers: 8})
	defer p.Close(context.Background())

	done := make(chan struct{}, 1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := p.Submit(func() { done <- struct{}{} }); err != nil {
			b.Fatal(err)
		}
		<-done
	}
}
