package escrow

import (
	"errors"
	"fmt"
)

var (
	// ErrConcurrencyConflict means a transition lost an optimistic-version
	// race. The caller must reload the record and redo the whole operation,
	// including recomputation; replaying the stale decision is never safe.
	ErrConcurrencyConflict = errors.New("escrow record version conflict")

	// ErrRecordNotFound is returned by stores for unknown record IDs.
	ErrRecordNotFound = errors.New("escrow record not found")

	// ErrAuthorizationExpired means a PENDING_CAPTURE record was captured
	// after its authorization window closed. The record is failed, never
	// left pending.
	ErrAuthorizationExpired = errors.New("authorization window expired")
)

// ValidationError reports malformed calculator or transition input. It is
// raised before any state mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidTransitionError reports a transition requested from a state that
// does not permit it. This is a caller bug and is never retried.
type InvalidTransitionError struct {
	Current   string
	Requested string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %q from state %q", e.Requested, e.Current)
}
