package attendance

import (
	"errors"
	"fmt"
)

// ErrorKind identifies a rejected state transition.
type ErrorKind string

// Transition error kinds.
const (
	KindDuplicateCheckIn  ErrorKind = "duplicate_check_in"
	KindMissingCheckIn    ErrorKind = "missing_check_in"
	KindDuplicateCheckOut ErrorKind = "duplicate_check_out"
)

// Sentinel errors for errors.Is comparisons against a *TransitionError.
var (
	ErrDuplicateCheckIn  = &TransitionError{Kind: KindDuplicateCheckIn}
	ErrMissingCheckIn    = &TransitionError{Kind: KindMissingCheckIn}
	ErrDuplicateCheckOut = &TransitionError{Kind: KindDuplicateCheckOut}
)

// ErrConflict is returned by a Store when a conditional write lost a race.
var ErrConflict = errors.New("attendance record changed concurrently")

// TransitionError is an expected, user-facing rejection of a transition.
// Record holds the conflicting record when one exists.
type TransitionError struct {
	Kind   ErrorKind
	Record *Record
}

func (e *TransitionError) Error() string {
	switch e.Kind {
	case KindDuplicateCheckIn:
		return "already checked in today"
	case KindMissingCheckIn:
		return "no check-in found for today"
	case KindDuplicateCheckOut:
		return "already checked out today"
	default:
		return fmt.Sprintf("attendance transition rejected: %s", e.Kind)
	}
}

// Is matches any TransitionError of the same kind.
func (e *TransitionError) Is(target error) bool {
	var t *TransitionError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// AsTransition extracts a *TransitionError from err.
func AsTransition(err error) (*TransitionError, bool) {
	var t *TransitionError
	if errors.As(err, &t) {
		return t, true
	}
	return nil, false
}
