package attendance

import (
	"time"

	"github.com/google/uuid"
)

// TimeResolution is the precision timestamps are stored with. Clamped
// time-outs stay strictly after time-in at this resolution.
const TimeResolution = time.Microsecond

// Tracker applies check-in and check-out transitions to a record snapshot.
// It never writes to storage; the caller persists the returned record.
type Tracker struct {
	Policy Policy

	// NewID generates record IDs. Defaults to random UUIDs.
	NewID func() string
}

// NewTracker creates a tracker with the given policy.
func NewTracker(policy Policy) *Tracker {
	return &Tracker{Policy: policy}
}

func (t *Tracker) newID() string {
	if t.NewID != nil {
		return t.NewID()
	}
	return uuid.NewString()
}

// CheckIn creates the day's record. It is only allowed from StateAbsent;
// otherwise the existing record is returned inside a TransitionError.
func (t *Tracker) CheckIn(userID, date string, now time.Time, existing *Record) (*Record, error) {
	if !sameKey(existing, userID, date) {
		existing = nil
	}
	if StateOf(existing) != StateAbsent {
		return nil, &TransitionError{Kind: KindDuplicateCheckIn, Record: existing.Clone()}
	}

	now = now.Truncate(TimeResolution)
	timeIn := now
	return &Record{
		ID:        t.newID(),
		UserID:    userID,
		Date:      date,
		TimeIn:    &timeIn,
		Status:    t.Policy.Classify(now),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CheckOut sets the time-out on a checked-in record. Status is left as
// classified at check-in.
func (t *Tracker) CheckOut(userID, date string, now time.Time, existing *Record) (*Record, error) {
	if !sameKey(existing, userID, date) {
		return nil, &TransitionError{Kind: KindMissingCheckIn}
	}
	switch StateOf(existing) {
	case StateAbsent:
		return nil, &TransitionError{Kind: KindMissingCheckIn}
	case StateComplete:
		return nil, &TransitionError{Kind: KindDuplicateCheckOut, Record: existing.Clone()}
	}

	now = now.Truncate(TimeResolution)
	next := existing.Clone()
	timeOut := now
	if !timeOut.After(*next.TimeIn) {
		timeOut = next.TimeIn.Truncate(TimeResolution).Add(TimeResolution)
	}
	next.TimeOut = &timeOut
	next.UpdatedAt = now
	return next, nil
}

// sameKey reports whether a snapshot belongs to the (user, date) key. A nil
// snapshot matches any key.
func sameKey(r *Record, userID, date string) bool {
	return r == nil || (r.UserID == userID && r.Date == date)
}
