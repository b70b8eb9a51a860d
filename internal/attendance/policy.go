package attendance

import (
	"fmt"
	"time"
)

// DefaultCutoff is the time of day from which a check-in counts as late.
const DefaultCutoff = "09:00"

// Policy holds the rules used to classify a check-in.
type Policy struct {
	// CutoffHour and CutoffMinute define the late threshold in Location.
	CutoffHour   int
	CutoffMinute int
	Location     *time.Location
}

// DefaultPolicy returns a 09:00 cutoff in the local time zone.
func DefaultPolicy() Policy {
	return Policy{CutoffHour: 9, Location: time.Local}
}

// ParseCutoff parses an "HH:MM" cutoff into a policy for loc.
func ParseCutoff(cutoff string, loc *time.Location) (Policy, error) {
	if cutoff == "" {
		cutoff = DefaultCutoff
	}
	t, err := time.Parse("15:04", cutoff)
	if err != nil {
		return Policy{}, fmt.Errorf("invalid cutoff %q: %w", cutoff, err)
	}
	if loc == nil {
		loc = time.Local
	}
	return Policy{CutoffHour: t.Hour(), CutoffMinute: t.Minute(), Location: loc}, nil
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}

// Classify returns StatusLate when t's local time of day is at or past the cutoff.
func (p Policy) Classify(t time.Time) Status {
	local := t.In(p.location())
	minutes := local.Hour()*60 + local.Minute()
	if minutes >= p.CutoffHour*60+p.CutoffMinute {
		return StatusLate
	}
	return StatusPresent
}

// DateOf returns the calendar date of t in the policy location.
func (p Policy) DateOf(t time.Time) string {
	return t.In(p.location()).Format(DateLayout)
}

// Cutoff formats the cutoff as "HH:MM".
func (p Policy) Cutoff() string {
	return fmt.Sprintf("%02d:%02d", p.CutoffHour, p.CutoffMinute)
}
