package journal

import (
	"context"
	"sync"
)

// MemoryJournal keeps failures in memory.
// Data is lost when the process exits.
type MemoryJournal struct {
	mu       sync.RWMutex
	failures []Failure
	closed   bool
}

// NewMemoryJournal creates an empty in-memory journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

// Report implements Reporter.
func (m *MemoryJournal) Report(_ context.Context, f Failure) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.failures = append(m.failures, f)
	return nil
}

// List implements Journal.
func (m *MemoryJournal) List(_ context.Context, filter Filter) ([]Failure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	var out []Failure
	for _, f := range m.failures {
		if !filter.matches(f) {
			continue
		}
		out = append(out, f)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Count implements Journal.
func (m *MemoryJournal) Count(_ context.Context, filter Filter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrClosed
	}

	n := 0
	for _, f := range m.failures {
		if filter.matches(f) {
			n++
		}
	}
	return n, nil
}

// Close implements Journal.
func (m *MemoryJournal) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.failures = nil
	return nil
}
