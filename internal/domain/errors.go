package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrActiveCapReached is returned when a launch would exceed the active project limit.
	ErrActiveCapReached = errors.New("active project limit reached")
	// ErrConcurrentModification is returned when an optimistic precondition no longer holds.
	ErrConcurrentModification = errors.New("status changed before update; refresh and retry")
	ErrNotFound               = errors.New("not found")
	ErrAlreadyConverted       = errors.New("draft already converted")
	ErrUnauthenticated        = errors.New("authentication required")
)

// ValidationError reports malformed input on a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Invalid builds a ValidationError for field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError reports an action requested from a status that does not allow it.
type InvalidTransitionError struct {
	Action Action
	Status Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("Cannot %s a %s project", e.Action, e.Status)
}
