package calendar

import (
	"errors"
	"fmt"
)

var (
	ErrStoreUnavailable             = errors.New("event store unavailable")
	ErrConflictBlocked              = errors.New("conflicts with a makeup appointment")
	ErrConflictRequiresConfirmation = errors.New("conflicts with an existing event")
	ErrNotFound                     = errors.New("event not found")
	ErrInvalidEvent                 = errors.New("invalid event")
)

// ConflictError reports a create or update that the conflict policy did not let through.
type ConflictError struct {
	Verdict Verdict
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v (%s)", e.Unwrap(), e.Verdict.ConflictingType)
}

// Unwrap returns ErrConflictBlocked for hard blocks and
// ErrConflictRequiresConfirmation otherwise.
func (e *ConflictError) Unwrap() error {
	if e.Verdict.Policy() == PolicyBlock {
		return ErrConflictBlocked
	}
	return ErrConflictRequiresConfirmation
}

// StoreError wraps a failed gateway call.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrStoreUnavailable, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidEvent, fmt.Sprintf(format, args...))
}
