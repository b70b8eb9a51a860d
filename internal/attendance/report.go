package attendance

import (
	"fmt"
	"math"
	"time"
)

// Person is the minimal identity information needed to build a roster.
type Person struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department"`
}

// RosterEntry is one row of a daily roster or user history. Record is nil
// for inferred absences.
type RosterEntry struct {
	UserID     string  `json:"userId"`
	Name       string  `json:"name,omitempty"`
	Department string  `json:"department,omitempty"`
	Date       string  `json:"date"`
	Status     Status  `json:"status"`
	Record     *Record `json:"record,omitempty"`
}

// DailyRoster lists every known person for date. Rows backed by a record come
// first in record order, followed by people without a record as absent.
// Records for unknown people (for example deleted users) are dropped.
func DailyRoster(date string, people []Person, records []*Record) []RosterEntry {
	byID := make(map[string]Person, len(people))
	for _, p := range people {
		byID[p.ID] = p
	}

	entries := make([]RosterEntry, 0, len(people))
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if r == nil || r.Date != date || seen[r.UserID] {
			continue
		}
		p, ok := byID[r.UserID]
		if !ok {
			continue
		}
		seen[r.UserID] = true
		entries = append(entries, RosterEntry{
			UserID:     p.ID,
			Name:       p.Name,
			Department: p.Department,
			Date:       date,
			Status:     r.Status,
			Record:     r,
		})
	}

	for _, p := range people {
		if seen[p.ID] {
			continue
		}
		entries = append(entries, RosterEntry{
			UserID:     p.ID,
			Name:       p.Name,
			Department: p.Department,
			Date:       date,
			Status:     StatusAbsent,
		})
	}
	return entries
}

// UserHistory returns one entry per calendar date in [from, min(to, today)].
// Dates without a record for userID are absent.
func UserHistory(userID, from, to, today string, records []*Record) ([]RosterEntry, error) {
	start, err := time.Parse(DateLayout, from)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", from, err)
	}
	end, err := time.Parse(DateLayout, to)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", to, err)
	}
	if today != "" {
		limit, err := time.Parse(DateLayout, today)
		if err != nil {
			return nil, fmt.Errorf("invalid current date %q: %w", today, err)
		}
		if limit.Before(end) {
			end = limit
		}
	}

	byDate := make(map[string]*Record, len(records))
	for _, r := range records {
		if r == nil || r.UserID != userID {
			continue
		}
		if _, ok := byDate[r.Date]; !ok {
			byDate[r.Date] = r
		}
	}

	var entries []RosterEntry
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		date := d.Format(DateLayout)
		entry := RosterEntry{UserID: userID, Date: date, Status: StatusAbsent}
		if r, ok := byDate[date]; ok {
			entry.Status = r.Status
			entry.Record = r
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Summary counts entries by status.
type Summary struct {
	Present        int     `json:"present"`
	Late           int     `json:"late"`
	Absent         int     `json:"absent"`
	Total          int     `json:"total"`
	PresentPercent float64 `json:"presentPercent"`
	LatePercent    float64 `json:"latePercent"`
	AbsentPercent  float64 `json:"absentPercent"`
}

// Summarize counts entries by status. Percentages are rounded to one decimal.
func Summarize(entries []RosterEntry) Summary {
	var s Summary
	for _, e := range entries {
		switch e.Status {
		case StatusPresent:
			s.Present++
		case StatusLate:
			s.Late++
		default:
			s.Absent++
		}
	}
	s.Total = len(entries)
	if s.Total > 0 {
		s.PresentPercent = percent(s.Present, s.Total)
		s.LatePercent = percent(s.Late, s.Total)
		s.AbsentPercent = percent(s.Absent, s.Total)
	}
	return s
}

func percent(n, total int) float64 {
	return math.Round(float64(n)*1000/float64(total)) / 10
}

// FormatDuration renders a worked duration as "8h 30m".
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", h, m)
}
