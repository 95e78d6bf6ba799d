// Package errs defines the error kinds shared by the game services and the
// replication layer. Callers classify failures with errors.Is against the
// exported sentinels.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Wrap with one of the constructors below so errors.Is works
// through the whole call chain.
var (
	// ErrValidation covers invalid state transitions, insufficient momentum,
	// load-limit violations and missing required selections.
	ErrValidation = errors.New("validation error")

	// ErrConcurrency covers action-lock conflicts (action already in progress,
	// or no action found for commit/abort).
	ErrConcurrency = errors.New("concurrency error")

	// ErrNotFound is returned when a mutation targets a missing entity.
	ErrNotFound = errors.New("not found")

	// ErrTripped is returned once the broadcast circuit breaker has tripped.
	// It is fatal for the session's auto-sync and requires a manual reload.
	ErrTripped = errors.New("circuit breaker tripped")
)

// Validation builds a validation error with a formatted message.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Concurrency builds a concurrency error with a formatted message.
func Concurrency(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConcurrency, fmt.Sprintf(format, args...))
}

// NotFound builds a not-found error for the given entity and id.
func NotFound(entity string, id interface{}) error {
	return fmt.Errorf("%w: %s %v", ErrNotFound, entity, id)
}
