// Package importer converts users and attendance records from the legacy
// flat-file store and from an HR directory into the database.
package importer

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// LegacyUser is one entry of the legacy users.json file.
type LegacyUser struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	Department     string          `json:"department"`
	Role           string          `json:"role"`
	ProfileImage   string          `json:"profileImage"`
	FaceDescriptor json.RawMessage `json:"faceDescriptor"`
	CreatedAt      string          `json:"createdAt"`
}

// LegacyRecord is one entry of the legacy attendance.json file. Times of day
// are "HH:MM:SS" strings relative to Date.
type LegacyRecord struct {
	ID        string  `json:"id"`
	UserID    string  `json:"userId"`
	Date      string  `json:"date"`
	TimeIn    string  `json:"timeIn"`
	TimeOut   *string `json:"timeOut"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"createdAt"`
	UpdatedAt string  `json:"updatedAt"`
}

// ReadUsers decodes a legacy users.json array.
func ReadUsers(r io.Reader) ([]LegacyUser, error) {
	var users []LegacyUser
	if err := json.NewDecoder(r).Decode(&users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}

// ReadRecords decodes a legacy attendance.json array.
func ReadRecords(r io.Reader) ([]LegacyRecord, error) {
	var records []LegacyRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode attendance: %w", err)
	}
	return records, nil
}

// ParseDescriptor accepts the shapes the legacy store produced: null, a
// number array, a string holding a JSON array (multipart form uploads) or an
// index-keyed object (a serialized Float32Array).
func ParseDescriptor(raw json.RawMessage) ([]float32, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil, nil
	}

	switch s[0] {
	case '[':
		var d []float32
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("descriptor array: %w", err)
		}
		return d, nil
	case '"':
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("descriptor string: %w", err)
		}
		if strings.TrimSpace(inner) == "" {
			return nil, nil
		}
		return ParseDescriptor(json.RawMessage(inner))
	case '{':
		var m map[string]float32
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("descriptor object: %w", err)
		}
		keys := make([]int, 0, len(m))
		for k := range m {
			i, err := strconv.Atoi(k)
			if err != nil || i < 0 {
				return nil, fmt.Errorf("descriptor object has non-index key %q", k)
			}
			keys = append(keys, i)
		}
		sort.Ints(keys)
		d := make([]float32, len(keys))
		for i, k := range keys {
			if k != i {
				return nil, fmt.Errorf("descriptor object is missing index %d", i)
			}
			d[i] = m[strconv.Itoa(k)]
		}
		return d, nil
	}
	return nil, fmt.Errorf("unsupported descriptor %.20q", s)
}

// ToStored converts a legacy user. Descriptors that do not have dim finite
// values are dropped so the user can be re-enrolled.
func (u LegacyUser) ToStored(dim int) (database.StoredUser, error) {
	if strings.TrimSpace(u.Name) == "" || strings.TrimSpace(u.Email) == "" {
		return database.StoredUser{}, fmt.Errorf("user %q: name and email are required", u.ID)
	}

	descriptor, err := ParseDescriptor(u.FaceDescriptor)
	if err != nil {
		return database.StoredUser{}, fmt.Errorf("user %q: %w", u.ID, err)
	}
	if descriptor != nil && !facematch.ValidDescriptor(descriptor, dim) {
		descriptor = nil
	}

	user := database.StoredUser{
		ID:           u.ID,
		Name:         strings.TrimSpace(u.Name),
		Email:        strings.TrimSpace(u.Email),
		Department:   u.Department,
		Role:         u.Role,
		ProfileImage: u.ProfileImage,
		Descriptor:   descriptor,
	}
	if t, err := time.Parse(time.RFC3339, u.CreatedAt); err == nil {
		user.CreatedAt = t
		if descriptor != nil {
			user.EnrolledAt = &t
		}
	}
	return user, nil
}

// clockOn combines a date with an "HH:MM:SS" time of day in loc. Some
// runtimes format midnight as hour 24, which is read as hour 0.
func clockOn(date, clock string, loc *time.Location) (time.Time, error) {
	clock = strings.TrimSpace(clock)
	if strings.HasPrefix(clock, "24:") {
		clock = "00:" + clock[3:]
	}
	t, err := time.ParseInLocation(attendance.DateLayout+" 15:04:05", date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q on %s: %w", clock, date, err)
	}
	return t, nil
}

// ToRecord converts a legacy record using the policy location. A missing or
// unknown status is classified from the time-in.
func (r LegacyRecord) ToRecord(policy attendance.Policy) (*attendance.Record, error) {
	loc := policy.Location
	if loc == nil {
		loc = time.Local
	}
	if r.ID == "" || r.UserID == "" {
		return nil, fmt.Errorf("record %q: id and userId are required", r.ID)
	}

	timeIn, err := clockOn(r.Date, r.TimeIn, loc)
	if err != nil {
		return nil, fmt.Errorf("record %q: %w", r.ID, err)
	}

	rec := &attendance.Record{
		ID:        r.ID,
		UserID:    r.UserID,
		Date:      r.Date,
		TimeIn:    &timeIn,
		Status:    attendance.Status(r.Status),
		CreatedAt: timeIn,
		UpdatedAt: timeIn,
	}
	if rec.Status != attendance.StatusPresent && rec.Status != attendance.StatusLate {
		rec.Status = policy.Classify(timeIn)
	}

	if r.TimeOut != nil && strings.TrimSpace(*r.TimeOut) != "" {
		timeOut, err := clockOn(r.Date, *r.TimeOut, loc)
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", r.ID, err)
		}
		if !timeOut.After(timeIn) {
			timeOut = timeIn.Add(attendance.TimeResolution)
		}
		rec.TimeOut = &timeOut
		rec.UpdatedAt = timeOut
	}

	if t, err := time.Parse(time.RFC3339, r.CreatedAt); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, r.UpdatedAt); err == nil {
		rec.UpdatedAt = t
	}

	if err := attendance.ValidateRecord(rec); err != nil {
		return nil, fmt.Errorf("record %q: %w", r.ID, err)
	}
	return rec, nil
}
