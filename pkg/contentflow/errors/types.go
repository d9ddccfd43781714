package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidEventID is matched by every InvalidEventIDError.
var ErrInvalidEventID = errors.New("invalid event id")

// InvalidEventIDError reports a malformed event identifier.
type InvalidEventIDError struct {
	EventID string
	Reason  string
}

// Error implements the error interface.
func (e *InvalidEventIDError) Error() string {
	return fmt.Sprintf("invalid event id %q: %s", e.EventID, e.Reason)
}

// Is reports ErrInvalidEventID as a match.
func (e *InvalidEventIDError) Is(target error) bool {
	return target == ErrInvalidEventID
}

// ConcurrentFiringError indicates that an event was fired while a previous
// firing of the same event had not settled.
type ConcurrentFiringError struct {
	EventID string

	// CycleID identifies the unsettled firing.
	CycleID string
}

// Error implements the error interface.
func (e *ConcurrentFiringError) Error() string {
	return fmt.Sprintf("event %s already firing (cycle %s)", e.EventID, e.CycleID)
}

// ProducerFailure wraps an error raised while computing a content item.
type ProducerFailure struct {
	ProducerID string
	EventID    string
	CycleID    string
	Err        error
}

// Error implements the error interface.
func (e *ProducerFailure) Error() string {
	return fmt.Sprintf("producer %s failed on event %s: %v", e.ProducerID, e.EventID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProducerFailure) Unwrap() error {
	return e.Err
}

// MergeFailure wraps an error raised by a merger.
type MergeFailure struct {
	MergerID string
	EventID  string
	CycleID  string
	Err      error
}

// Error implements the error interface.
func (e *MergeFailure) Error() string {
	return fmt.Sprintf("merger %s failed on event %s: %v", e.MergerID, e.EventID, e.Err)
}

// Unwrap returns the underlying error.
func (e *MergeFailure) Unwrap() error {
	return e.Err
}

// RenderFailure wraps an error raised by a renderer. It is terminal.
type RenderFailure struct {
	RendererID string
	EventID    string
	CycleID    string
	Err        error
}

// Error implements the error interface.
func (e *RenderFailure) Error() string {
	return fmt.Sprintf("renderer %s failed on event %s: %v", e.RendererID, e.EventID, e.Err)
}

// Unwrap returns the underlying error.
func (e *RenderFailure) Unwrap() error {
	return e.Err
}

// TimeoutError indicates an operation timed out.
type TimeoutError struct {
	Operation string
	Duration  time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: %s", e.Duration, e.Operation)
}

// PermissionDenied is a transient refusal from the security layer.
// The same operation may be permitted later.
type PermissionDenied struct {
	Kind   string
	Reason string
}

// Error implements the error interface.
func (e *PermissionDenied) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("permission denied for %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("permission denied for %s", e.Kind)
}

// Forbidden is a permanent refusal from the security layer.
// The capability must be treated as unavailable.
type Forbidden struct {
	Kind   string
	Reason string
}

// Error implements the error interface.
func (e *Forbidden) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("forbidden %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("forbidden %s", e.Kind)
}

// PanicError carries a value recovered from a panicking component.
type PanicError struct {
	Component string
	Value     any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("%s panicked: %v", e.Component, e.Value)
}

// IsForbidden reports whether err carries a permanent security refusal.
func IsForbidden(err error) bool {
	var f *Forbidden
	return errors.As(err, &f)
}

// IsPermissionDenied reports whether err carries a transient security refusal.
func IsPermissionDenied(err error) bool {
	var d *PermissionDenied
	return errors.As(err, &d)
}
