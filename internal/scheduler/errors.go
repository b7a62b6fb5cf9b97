package scheduler

import (
	"errors"
	"fmt"
)

// ErrNoObservation signals that no catalog entry is currently eligible.
// It is a normal scheduling outcome, not a fault: the engine responds by
// parking, never by treating it as an error condition.
var ErrNoObservation = errors.New("scheduler: no eligible observation")

// ValidationError reports rejected Field, Observation, or Constraint
// parameters. Construction never coerces bad input; the caller gets this
// and nothing is built.
type ValidationError struct {
	// Field names the offending parameter, e.g. "min_nexp".
	Field string

	// Reason explains what was wrong with it.
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("scheduler: invalid %s: %s", e.Field, e.Reason)
}

func validationErrorf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
