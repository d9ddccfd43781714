package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Sentinel errors for registry lookups.
var (
	// ErrDuplicate indicates a name is already registered.
	ErrDuplicate = errors.New("already registered")

	// ErrNotFound indicates a name is not registered.
	ErrNotFound = errors.New("not registered")
)

// Registry is a thread-safe set of named values of one kind.
// It uses sync.RWMutex for read-heavy workloads.
type Registry[V any] struct {
	kind string

	mu      sync.RWMutex
	entries map[string]V
}

// New creates an empty registry. kind names the values in error messages.
func New[V any](kind string) *Registry[V] {
	return &Registry[V]{
		kind:    kind,
		entries: make(map[string]V),
	}
}

// Kind returns the registry's value kind.
func (r *Registry[V]) Kind() string {
	return r.kind
}

// Register adds value under name. It fails if name is taken.
func (r *Registry[V]) Register(name string, value V) error {
	if name == "" {
		return fmt.Errorf("register %s: empty name", r.kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("%s %q: %w", r.kind, name, ErrDuplicate)
	}
	r.entries[name] = value
	return nil
}

// MustRegister is Register for init-time wiring. It panics on error.
func (r *Registry[V]) MustRegister(name string, value V) {
	if err := r.Register(name, value); err != nil {
		panic(err)
	}
}

// Get returns the value registered under name.
func (r *Registry[V]) Get(name string) (V, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.entries[name]
	if !ok {
		var zero V
		return zero, fmt.Errorf("%s %q: %w", r.kind, name, ErrNotFound)
	}
	return v, nil
}

// Has returns true if name is registered.
func (r *Registry[V]) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Delete removes name. Deleting an absent name is a no-op.
func (r *Registry[V]) Delete(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// Names returns the registered names, sorted.
func (r *Registry[V]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of entries.
func (r *Registry[V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
