// Package apperr defines the error sentinels shared by the search and quiz
// services. Callers classify failures with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input rejected before any store access.
	ErrValidation = errors.New("invalid input")
	// ErrNotFound marks a question or session that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotAvailable marks an empty catalog, e.g. no published questions.
	ErrNotAvailable = errors.New("not available")
	// ErrStoreUnavailable marks a backing store failure. It is never retried here.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrConflict marks a request that does not match the current session state.
	ErrConflict = errors.New("conflict")
	// ErrLimitReached marks a client that used up today's quiz allowance.
	ErrLimitReached = errors.New("daily limit reached")
	// ErrRateLimited marks a client that is sending requests too fast.
	ErrRateLimited = errors.New("rate limited")
)

// Validation returns an ErrValidation with a message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Store wraps a store failure so it matches ErrStoreUnavailable while keeping the cause.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
