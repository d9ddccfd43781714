// Package errors defines the contentflow failure taxonomy and the
// categorization used to decide whether an operation may be tried again.
//
// The taxonomy mirrors the pipeline stages:
//   - InvalidEventIDError and ConcurrentFiringError fail Fire/Register synchronously
//   - ProducerFailure, MergeFailure and RenderFailure are isolated per task
//   - PermissionDenied (transient) and Forbidden (permanent) come from the security layer
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category represents how an error should be handled.
type Category int

const (
	// CategoryTransient indicates the same operation may succeed later.
	// Examples: overlapping firings, permission denied for now, timeouts.
	CategoryTransient Category = iota

	// CategoryPermanent indicates retrying will not help.
	// Examples: malformed event ids, forbidden capabilities, producer bugs.
	CategoryPermanent
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category and context.
type CategorizedError struct {
	// Err is the underlying error.
	Err error

	// Category indicates how this error should be handled.
	Category Category

	// Context describes what operation was being attempted.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Context, e.Err, e.Category)
	}
	return fmt.Sprintf("%s (%s)", e.Err, e.Category)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// Transient marks err as transient.
func Transient(err error, context string) *CategorizedError {
	return &CategorizedError{Err: err, Category: CategoryTransient, Context: context}
}

// Permanent marks err as permanent.
func Permanent(err error, context string) *CategorizedError {
	return &CategorizedError{Err: err, Category: CategoryPermanent, Context: context}
}

// Categorize determines how an error should be handled.
// Unknown errors are permanent.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	var forbidden *Forbidden
	if errors.As(err, &forbidden) {
		return CategoryPermanent
	}

	var denied *PermissionDenied
	if errors.As(err, &denied) {
		return CategoryTransient
	}

	var concurrent *ConcurrentFiringError
	if errors.As(err, &concurrent) {
		return CategoryTransient
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return CategoryTransient
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}

	return CategoryPermanent
}

// IsRetryable reports whether the error may succeed on a later attempt.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}

