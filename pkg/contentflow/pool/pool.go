// Package pool provides the elastic worker pool shared by producer tasks,
// merges and renders.
//
// The pool grows a new worker whenever work arrives and no worker is idle,
// and reclaims workers that stay idle longer than IdleTimeout. MaxWorkers is
// a soft cap: once reached, work queues until a worker frees up. A zero cap
// keeps the pool unbounded, trading resource capping for latency.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("worker pool closed")

// Config configures pool behavior.
type Config struct {
	// MaxWorkers is the soft cap on concurrent workers.
	// Default: 0 (unbounded)
	MaxWorkers int

	// IdleTimeout is how long an idle worker waits before exiting.
	// Default: 60s
	IdleTimeout time.Duration

	// Logger receives recovered task panics.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig provides reasonable defaults.
var DefaultConfig = Config{
	IdleTimeout: 60 * time.Second,
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers int
	Idle    int
	Queued  int
	Peak    int
}

// Pool is an elastic goroutine pool.
type Pool struct {
	config Config

	mu      sync.Mutex
	queue   []func()
	workers int
	idle    int
	peak    int
	closed  bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a pool. No workers are started until work is submitted.
func New(config Config) *Pool {
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultConfig.IdleTimeout
	}
	if config.MaxWorkers < 0 {
		config.MaxWorkers = 0
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Pool{
		config: config,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Submit schedules task on the pool. It never blocks.
func (p *Pool) Submit(task func()) error {
	if task == nil {
		return fmt.Errorf("submit: nil task")
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}

	if p.idle == 0 && (p.config.MaxWorkers == 0 || p.workers < p.config.MaxWorkers) {
		p.workers++
		if p.workers > p.peak {
			p.peak = p.workers
		}
		p.wg.Add(1)
		p.mu.Unlock()
		go p.worker(task)
		return nil
	}

	p.queue = append(p.queue, task)
	hasIdle := p.idle > 0
	p.mu.Unlock()

	if hasIdle {
		p.signal()
	}
	return nil
}

// Stats returns current pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Workers: p.workers,
		Idle:    p.idle,
		Queued:  len(p.queue),
		Peak:    p.peak,
	}
}

// Close stops accepting work and waits for queued and running tasks to
// finish, or for ctx to be done.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
	p.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pool) worker(task func()) {
	defer p.wg.Done()

	timer := time.NewTimer(p.config.IdleTimeout)
	defer timer.Stop()

	for {
		if task != nil {
			p.run(task)
			task = nil
		}

		p.mu.Lock()
		if len(p.queue) > 0 {
			task = p.queue[0]
			p.queue[0] = nil
			p.queue = p.queue[1:]
			// Pass the wake-up along so queued work is not left behind
			// a single token.
			if len(p.queue) > 0 && p.idle > 0 {
				p.signal()
			}
			p.mu.Unlock()
			continue
		}
		if p.closed {
			p.workers--
			p.mu.Unlock()
			return
		}
		p.idle++
		p.mu.Unlock()

		timer.Reset(p.config.IdleTimeout)

		select {
		case <-p.wake:
			p.mu.Lock()
			p.idle--
			p.mu.Unlock()

		case <-p.done:
			p.mu.Lock()
			p.idle--
			p.mu.Unlock()

		case <-timer.C:
			p.mu.Lock()
			p.idle--
			if len(p.queue) > 0 {
				p.mu.Unlock()
				continue
			}
			p.workers--
			p.mu.Unlock()
			return
		}
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.config.Logger.Error("worker task panicked",
				slog.String("panic", fmt.Sprint(r)))
		}
	}()
	task()
}
