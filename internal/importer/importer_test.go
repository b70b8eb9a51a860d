package importer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mariadb"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
)

func TestParseDescriptor(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected []float32
		wantErr  bool
	}{
		{"absent", ``, nil, false},
		{"null", `null`, nil, false},
		{"array", `[0.5, -0.25, 1]`, []float32{0.5, -0.25, 1}, false},
		{"string", `"[0.5,-0.25,1]"`, []float32{0.5, -0.25, 1}, false},
		{"empty string", `""`, nil, false},
		{"typed array object", `{"1": -0.25, "0": 0.5, "2": 1}`, []float32{0.5, -0.25, 1}, false},
		{"object with gap", `{"0": 0.5, "2": 1}`, nil, true},
		{"object with bad key", `{"x": 0.5}`, nil, true},
		{"number", `42`, nil, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseDescriptor(json.RawMessage(tc.raw))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tc.expected) {
				t.Fatalf("expected %v, got %v", tc.expected, got)
			}
			for i := range got {
				if got[i] != tc.expected[i] {
					t.Errorf("index %d: expected %v, got %v", i, tc.expected[i], got[i])
				}
			}
		})
	}
}

func TestReadUsers_ToStored(t *testing.T) {
	data := `[
		{"id": "a", "name": " Alice ", "email": "alice@example.com", "department": "Eng", "role": "Dev",
		 "profileImage": "/placeholder.svg", "faceDescriptor": [0.1, 0.2, 0.3], "createdAt": "2024-01-02T10:00:00.000Z"},
		{"id": "b", "name": "Bob", "email": "bob@example.com", "department": "Eng", "role": "Dev",
		 "faceDescriptor": [0.1, 0.2], "createdAt": "not a date"},
		{"id": "c", "name": "", "email": "c@example.com"}
	]`
	users, err := ReadUsers(strings.NewReader(data))
	if err != nil {
		t.Fatalf("ReadUsers: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("expected 3 users, got %d", len(users))
	}

	alice, err := users[0].ToStored(3)
	if err != nil {
		t.Fatalf("ToStored: %v", err)
	}
	if alice.ID != "a" || alice.Name != "Alice" || len(alice.Descriptor) != 3 {
		t.Errorf("unexpected user: %+v", alice)
	}
	if alice.EnrolledAt == nil || alice.CreatedAt.Year() != 2024 {
		t.Errorf("expected timestamps from createdAt, got %v / %v", alice.CreatedAt, alice.EnrolledAt)
	}

	bob, err := users[1].ToStored(3)
	if err != nil {
		t.Fatalf("ToStored: %v", err)
	}
	if bob.Descriptor != nil || bob.EnrolledAt != nil {
		t.Error("expected a wrong-length descriptor to be dropped")
	}
	if !bob.CreatedAt.IsZero() {
		t.Error("expected an unparseable createdAt to be left for the store to fill")
	}

	if _, err := users[2].ToStored(3); err == nil {
		t.Error("expected an error for a user without a name")
	}
}

func TestLegacyRecord_ToRecord(t *testing.T) {
	policy, err := attendance.ParseCutoff("09:00", time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	out := "17:30:00"
	empty := ""
	early := "08:00:00"
	same := "09:00:00"

	tests := []struct {
		name       string
		record     LegacyRecord
		status     attendance.Status
		hasTimeOut bool
		wantErr    bool
	}{
		{
			name:       "complete",
			record:     LegacyRecord{ID: "r1", UserID: "u1", Date: "2024-03-15", TimeIn: "08:55:10", TimeOut: &out, Status: "present"},
			status:     attendance.StatusPresent,
			hasTimeOut: true,
		},
		{
			name:   "status inferred",
			record: LegacyRecord{ID: "r2", UserID: "u1", Date: "2024-03-15", TimeIn: "09:00:00"},
			status: attendance.StatusLate,
		},
		{
			name:   "empty time-out",
			record: LegacyRecord{ID: "r3", UserID: "u1", Date: "2024-03-15", TimeIn: "10:00:00", TimeOut: &empty, Status: "late"},
			status: attendance.StatusLate,
		},
		{
			name:   "midnight as hour 24",
			record: LegacyRecord{ID: "r4", UserID: "u1", Date: "2024-03-15", TimeIn: "24:10:00"},
			status: attendance.StatusPresent,
		},
		{
			name:       "time-out before time-in is clamped",
			record:     LegacyRecord{ID: "r5", UserID: "u1", Date: "2024-03-15", TimeIn: "09:30:00", TimeOut: &early, Status: "late"},
			status:     attendance.StatusLate,
			hasTimeOut: true,
		},
		{
			name:       "time-out equal to time-in is clamped",
			record:     LegacyRecord{ID: "r8", UserID: "u1", Date: "2024-03-15", TimeIn: "09:00:00", TimeOut: &same, Status: "late"},
			status:     attendance.StatusLate,
			hasTimeOut: true,
		},
		{
			name:    "bad time",
			record:  LegacyRecord{ID: "r6", UserID: "u1", Date: "2024-03-15", TimeIn: "9am"},
			wantErr: true,
		},
		{
			name:    "missing user",
			record:  LegacyRecord{ID: "r7", Date: "2024-03-15", TimeIn: "09:00:00"},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := tc.record.ToRecord(policy)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Status != tc.status {
				t.Errorf("expected status %s, got %s", tc.status, rec.Status)
			}
			if (rec.TimeOut != nil) != tc.hasTimeOut {
				t.Errorf("expected time-out present=%v, got %v", tc.hasTimeOut, rec.TimeOut)
			}
			// Timestamps are stored with microsecond precision.
			if rec.TimeOut != nil && !rec.TimeOut.Round(time.Microsecond).After(rec.TimeIn.Round(time.Microsecond)) {
				t.Errorf("time-out %v must stay after time-in %v when stored", rec.TimeOut, rec.TimeIn)
			}
		})
	}
}

type fakeImporter struct {
	keys map[string]bool
	err  error
}

func (f *fakeImporter) Import(ctx context.Context, rec *attendance.Record) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	key := rec.UserID + "|" + rec.Date
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}

func TestImportRecords(t *testing.T) {
	policy, _ := attendance.ParseCutoff("09:00", time.UTC)
	records := []LegacyRecord{
		{ID: "r1", UserID: "u1", Date: "2024-03-15", TimeIn: "08:00:00"},
		{ID: "r2", UserID: "u1", Date: "2024-03-15", TimeIn: "08:05:00"},
		{ID: "r3", UserID: "u2", Date: "2024-03-15", TimeIn: "bad"},
	}
	calls := 0

	res := ImportRecords(context.Background(), &fakeImporter{keys: map[string]bool{}}, records, policy, func() { calls++ })

	if res.Imported != 1 || res.Skipped != 1 || res.Failed != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(res.Errors) != 1 {
		t.Errorf("expected 1 error message, got %v", res.Errors)
	}
	if calls != 3 {
		t.Errorf("expected progress per record, got %d", calls)
	}
}

func TestImportRecords_StoreError(t *testing.T) {
	policy, _ := attendance.ParseCutoff("09:00", time.UTC)
	records := []LegacyRecord{{ID: "r1", UserID: "u1", Date: "2024-03-15", TimeIn: "08:00:00"}}

	res := ImportRecords(context.Background(), &fakeImporter{err: errors.New("db down")}, records, policy, nil)

	if res.Failed != 1 || res.Imported != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestImportUsers(t *testing.T) {
	users := mock.NewMockUserWriter()
	users.AddUser(database.StoredUser{ID: "existing", Name: "Existing", Email: "taken@example.com"})

	res := ImportUsers(context.Background(), users, []database.StoredUser{
		{Name: "New", Email: "new@example.com"},
		{Name: "Dup", Email: "TAKEN@example.com"},
	}, nil)

	if res.Imported != 1 || res.Skipped != 1 || res.Failed != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	total, _, _ := users.CountUsers(context.Background())
	if total != 2 {
		t.Errorf("expected 2 users, got %d", total)
	}
}

func TestImportUsers_Error(t *testing.T) {
	users := mock.NewMockUserWriter()
	users.CreateError = errors.New("db down")

	res := ImportUsers(context.Background(), users, []database.StoredUser{{Name: "A", Email: "a@example.com"}}, nil)

	if res.Failed != 1 || len(res.Errors) != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestEmployeeToUser(t *testing.T) {
	u, ok := EmployeeToUser(mariadb.Employee{ID: "42", Name: " Jana ", Email: "jana@example.com"})
	if !ok {
		t.Fatal("expected employee to convert")
	}
	if u.Name != "Jana" || u.Department != "Unassigned" || u.Role != "Employee" {
		t.Errorf("unexpected user: %+v", u)
	}

	again, _ := EmployeeToUser(mariadb.Employee{ID: "42", Name: "Jana", Email: "jana@example.com"})
	if again.ID != u.ID {
		t.Error("expected a stable ID for the same employee")
	}
	other, _ := EmployeeToUser(mariadb.Employee{ID: "43", Name: "Jana", Email: "jana2@example.com"})
	if other.ID == u.ID {
		t.Error("expected different IDs for different employees")
	}

	if _, ok := EmployeeToUser(mariadb.Employee{ID: "44", Name: "No Email"}); ok {
		t.Error("expected rows without email to be rejected")
	}
}
