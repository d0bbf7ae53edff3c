package engine

import (
	"errors"
	"fmt"
)

// ErrInvalidInput marks a request rejected before any state was read.
var ErrInvalidInput = errors.New("invalid input")

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// InvalidStateError reports an action that is illegal from the entity's
// current status.
type InvalidStateError struct {
	Entity string
	Status string
	Action string
	Reason string
}

func (e InvalidStateError) Error() string {
	msg := fmt.Sprintf("cannot %s %s in status %s", e.Action, e.Entity, e.Status)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// ConflictError reports a lost race or a duplicate.
type ConflictError struct {
	Reason string
}

func (e ConflictError) Error() string {
	return e.Reason
}

// ErrJobUnavailable is returned to the losing side of a direct-request accept.
var ErrJobUnavailable = ConflictError{Reason: "this job is no longer available"}
