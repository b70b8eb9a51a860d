// Package attendance implements the daily check-in/check-out state machine.
//
// The Tracker is pure: it takes a snapshot of the current record and returns
// the next record or a TransitionError. Service layers persistence and
// per-key serialization on top of it.
package attendance

import "time"

// DateLayout is the calendar date format used for record keys.
const DateLayout = "2006-01-02"

// Status is the classification of a day's attendance.
type Status string

// Status values. StatusAbsent is never stored; it is inferred by reports.
const (
	StatusPresent Status = "present"
	StatusLate    Status = "late"
	StatusAbsent  Status = "absent"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusLate, StatusAbsent:
		return true
	}
	return false
}

// State is the position of a (user, date) key in the daily state machine.
type State int

// States of the daily state machine.
const (
	StateAbsent State = iota
	StateCheckedIn
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateCheckedIn:
		return "checked_in"
	case StateComplete:
		return "complete"
	default:
		return "absent"
	}
}

// Direction is the action requested by the operator.
type Direction string

// Directions accepted by Service.Mark.
const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Record is the attendance of one user on one calendar date.
type Record struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Date      string     `json:"date"`
	TimeIn    *time.Time `json:"timeIn"`
	TimeOut   *time.Time `json:"timeOut"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// StateOf returns the state for a possibly nil record.
func StateOf(r *Record) State {
	switch {
	case r == nil || r.TimeIn == nil:
		return StateAbsent
	case r.TimeOut == nil:
		return StateCheckedIn
	default:
		return StateComplete
	}
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.TimeIn != nil {
		t := *r.TimeIn
		c.TimeIn = &t
	}
	if r.TimeOut != nil {
		t := *r.TimeOut
		c.TimeOut = &t
	}
	return &c
}

// Duration returns the time worked, or zero when the record is not complete.
func (r *Record) Duration() time.Duration {
	if r == nil || r.TimeIn == nil || r.TimeOut == nil {
		return 0
	}
	return r.TimeOut.Sub(*r.TimeIn)
}
