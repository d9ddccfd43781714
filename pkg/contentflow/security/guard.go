package security

import (
	"context"
	"fmt"
	"slices"
	"sync"

	cferrors "github.com/randalmurphal/contentflow/pkg/contentflow/errors"
	"github.com/randalmurphal/contentflow/pkg/contentflow/event"
)

// Operation names a privileged call the runtime makes on behalf of a component.
type Operation string

// Operations checked by the coordinator.
const (
	OpFire    Operation = "fire"
	OpProduce Operation = "produce"
	OpMerge   Operation = "merge"
	OpRender  Operation = "render"
)

// Request asks whether a component may perform an operation now.
type Request struct {
	ComponentID string
	Operation   Operation
	EventID     event.ID
}

// Guard decides whether a request may proceed.
//
// Permit returns nil, *errors.PermissionDenied when the refusal is transient,
// or *errors.Forbidden when the capability is unavailable for good. Callers
// propagate the error unchanged.
type Guard interface {
	Permit(ctx context.Context, req Request) error
}

// GuardFunc adapts a function to the Guard interface.
type GuardFunc func(ctx context.Context, req Request) error

// Permit implements Guard.
func (f GuardFunc) Permit(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// AllowAll permits every request.
var AllowAll Guard = GuardFunc(func(context.Context, Request) error { return nil })

// CapabilityGuard grants operations per component.
type CapabilityGuard struct {
	mu        sync.RWMutex
	granted   map[string]map[Operation]bool
	forbidden map[string]map[Operation]string // reason
}

// NewCapabilityGuard creates a guard with no grants.
func NewCapabilityGuard() *CapabilityGuard {
	return &CapabilityGuard{
		granted:   make(map[string]map[Operation]bool),
		forbidden: make(map[string]map[Operation]string),
	}
}

// Grant allows componentID to perform ops.
func (g *CapabilityGuard) Grant(componentID string, ops ...Operation) {
	g.mu.Lock()
	defer g.mu.Unlock()

	set := g.granted[componentID]
	if set == nil {
		set = make(map[Operation]bool)
		g.granted[componentID] = set
	}
	for _, op := range ops {
		set[op] = true
	}
}

// Revoke withdraws a grant. Later requests are denied, not forbidden.
func (g *CapabilityGuard) Revoke(componentID string, ops ...Operation) {
	g.mu.Lock()
	defer g.mu.Unlock()

	set := g.granted[componentID]
	for _, op := range ops {
		delete(set, op)
	}
	if len(set) == 0 {
		delete(g.granted, componentID)
	}
}

// Forbid permanently refuses op for componentID. It overrides any grant.
func (g *CapabilityGuard) Forbid(componentID string, op Operation, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	set := g.forbidden[componentID]
	if set == nil {
		set = make(map[Operation]string)
		g.forbidden[componentID] = set
	}
	set[op] = reason
}

// Granted returns the operations granted to componentID, sorted.
func (g *CapabilityGuard) Granted(componentID string) []Operation {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ops := make([]Operation, 0, len(g.granted[componentID]))
	for op := range g.granted[componentID] {
		ops = append(ops, op)
	}
	slices.Sort(ops)
	return ops
}

// Permit implements Guard.
func (g *CapabilityGuard) Permit(_ context.Context, req Request) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if reason, ok := g.forbidden[req.ComponentID][req.Operation]; ok {
		return &cferrors.Forbidden{Kind: string(req.Operation), Reason: reason}
	}
	if g.granted[req.ComponentID][req.Operation] {
		return nil
	}
	return &cferrors.PermissionDenied{
		Kind:   string(req.Operation),
		Reason: fmt.Sprintf("%s not granted to %s", req.Operation, req.ComponentID),
	}
}

// GuardedFirer checks OpFire for one component before every fire.
type GuardedFirer struct {
	guard       Guard
	componentID string
	next        event.Firer
}

// NewGuardedFirer wraps next so each Fire is permitted first.
func NewGuardedFirer(guard Guard, componentID string, next event.Firer) *GuardedFirer {
	if guard == nil {
		guard = AllowAll
	}
	return &GuardedFirer{guard: guard, componentID: componentID, next: next}
}

// Fire implements event.Firer.
func (f *GuardedFirer) Fire(ctx context.Context, id event.ID) (*event.Firing, error) {
	err := f.guard.Permit(ctx, Request{
		ComponentID: f.componentID,
		Operation:   OpFire,
		EventID:     id,
	})
	if err != nil {
		return nil, err
	}
	return f.next.Fire(ctx, id)
}
