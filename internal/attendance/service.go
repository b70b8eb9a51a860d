package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidDirection is returned by Mark for anything other than "in" or "out".
var ErrInvalidDirection = errors.New("invalid attendance type")

// ErrInvalidRecord is returned by Override when the record breaks an invariant.
var ErrInvalidRecord = errors.New("invalid attendance record")

// ErrRecordNotFound is returned by Override when no record matches.
var ErrRecordNotFound = errors.New("attendance record not found")

// Amendment is an administrative change to a stored record. Nil or empty
// fields keep the stored value.
type Amendment struct {
	TimeIn       *time.Time
	TimeOut      *time.Time
	ClearTimeOut bool
	Status       Status
}

func (a Amendment) apply(rec *Record) {
	if a.TimeIn != nil {
		t := a.TimeIn.Truncate(TimeResolution)
		rec.TimeIn = &t
	}
	if a.ClearTimeOut {
		rec.TimeOut = nil
	} else if a.TimeOut != nil {
		t := a.TimeOut.Truncate(TimeResolution)
		rec.TimeOut = &t
	}
	if a.Status != "" {
		rec.Status = a.Status
	}
}

// Service runs tracker transitions against a Store, allowing at most one
// successful transition per (user, date, action).
type Service struct {
	store   Store
	tracker *Tracker
	now     func() time.Time
	locks   *keyedMutex
}

// NewService creates a service. A nil clock defaults to time.Now.
func NewService(store Store, tracker *Tracker, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:   store,
		tracker: tracker,
		now:     now,
		locks:   newKeyedMutex(),
	}
}

// Policy returns the tracker policy.
func (s *Service) Policy() Policy {
	return s.tracker.Policy
}

// Today returns the current date in the policy location.
func (s *Service) Today() string {
	return s.tracker.Policy.DateOf(s.now())
}

// Mark dispatches to CheckIn or CheckOut.
func (s *Service) Mark(ctx context.Context, userID string, dir Direction) (*Record, error) {
	switch dir {
	case DirectionIn:
		return s.CheckIn(ctx, userID)
	case DirectionOut:
		return s.CheckOut(ctx, userID)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDirection, dir)
	}
}

// CheckIn records the first arrival of the day for userID.
func (s *Service) CheckIn(ctx context.Context, userID string) (*Record, error) {
	now := s.now()
	date := s.tracker.Policy.DateOf(now)

	unlock := s.locks.Lock(userID + "|" + date)
	defer unlock()

	existing, err := s.store.Get(ctx, userID, date)
	if err != nil {
		return nil, fmt.Errorf("load attendance: %w", err)
	}

	rec, err := s.tracker.CheckIn(userID, date, now, existing)
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, rec); err != nil {
		if errors.Is(err, ErrConflict) {
			// Another process won the race; report what it stored.
			current, getErr := s.store.Get(ctx, userID, date)
			if getErr != nil {
				return nil, fmt.Errorf("reload attendance: %w", getErr)
			}
			return nil, &TransitionError{Kind: KindDuplicateCheckIn, Record: current}
		}
		return nil, fmt.Errorf("create attendance: %w", err)
	}
	return rec, nil
}

// CheckOut records the departure of userID for today.
func (s *Service) CheckOut(ctx context.Context, userID string) (*Record, error) {
	now := s.now()
	date := s.tracker.Policy.DateOf(now)

	unlock := s.locks.Lock(userID + "|" + date)
	defer unlock()

	existing, err := s.store.Get(ctx, userID, date)
	if err != nil {
		return nil, fmt.Errorf("load attendance: %w", err)
	}

	rec, err := s.tracker.CheckOut(userID, date, now, existing)
	if err != nil {
		return nil, err
	}

	if err := s.store.CloseOut(ctx, rec); err != nil {
		if errors.Is(err, ErrConflict) {
			current, getErr := s.store.Get(ctx, userID, date)
			if getErr != nil {
				return nil, fmt.Errorf("reload attendance: %w", getErr)
			}
			return nil, &TransitionError{Kind: KindDuplicateCheckOut, Record: current}
		}
		return nil, fmt.Errorf("close out attendance: %w", err)
	}
	return rec, nil
}

// Override applies an administrative change to the record id stored for
// (userID, date). The record is re-read under the key lock, so a transition
// that completed meanwhile is amended rather than overwritten.
func (s *Service) Override(ctx context.Context, userID, date, id string, change Amendment) (*Record, error) {
	unlock := s.locks.Lock(userID + "|" + date)
	defer unlock()

	current, err := s.store.Get(ctx, userID, date)
	if err != nil {
		return nil, fmt.Errorf("get attendance: %w", err)
	}
	if current == nil || current.ID != id {
		return nil, ErrRecordNotFound
	}

	next := current.Clone()
	change.apply(next)
	if err := ValidateRecord(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now()
	if err := s.store.Replace(ctx, next); err != nil {
		return nil, fmt.Errorf("replace attendance: %w", err)
	}
	return next, nil
}

// ValidateRecord checks the invariants every stored record must satisfy.
func ValidateRecord(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("%w: missing record", ErrInvalidRecord)
	}
	if rec.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidRecord)
	}
	if _, err := time.Parse(DateLayout, rec.Date); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidRecord)
	}
	if rec.Status != StatusPresent && rec.Status != StatusLate {
		return fmt.Errorf("%w: status must be present or late", ErrInvalidRecord)
	}
	if rec.TimeIn == nil {
		return fmt.Errorf("%w: time in is required", ErrInvalidRecord)
	}
	if rec.TimeOut != nil && !rec.TimeOut.After(*rec.TimeIn) {
		return fmt.Errorf("%w: time out must be after time in", ErrInvalidRecord)
	}
	return nil
}
