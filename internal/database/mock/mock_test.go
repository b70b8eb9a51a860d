package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// Compile-time interface checks.
var (
	_ database.UserWriter       = (*MockUserWriter)(nil)
	_ database.AttendanceWriter = (*MockAttendanceWriter)(nil)
	_ database.CameraWriter     = (*MockCameraWriter)(nil)
)

func TestMockAttendanceWriter_ConditionalWrites(t *testing.T) {
	ctx := context.Background()
	m := NewMockAttendanceWriter()
	in := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	rec := &attendance.Record{ID: "r1", UserID: "u1", Date: "2024-03-04", TimeIn: &in, Status: attendance.StatusPresent}

	if err := m.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := rec.Clone()
	dup.ID = "r2"
	if err := m.Create(ctx, dup); !errors.Is(err, attendance.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}

	out := in.Add(8 * time.Hour)
	done := rec.Clone()
	done.TimeOut = &out
	if err := m.CloseOut(ctx, done); err != nil {
		t.Fatalf("close out: %v", err)
	}
	if err := m.CloseOut(ctx, done); !errors.Is(err, attendance.ErrConflict) {
		t.Errorf("expected conflict on second close out, got %v", err)
	}

	got, _ := m.Get(ctx, "u1", "2024-03-04")
	if got == nil || got.TimeOut == nil {
		t.Fatalf("expected completed record, got %+v", got)
	}
	// Returned records are copies.
	got.Status = attendance.StatusLate
	again, _ := m.Get(ctx, "u1", "2024-03-04")
	if again.Status != attendance.StatusPresent {
		t.Error("mutating a returned record changed the store")
	}
}

func TestMockUserWriter_DuplicateEmailAndLookalikes(t *testing.T) {
	ctx := context.Background()
	m := NewMockUserWriter()

	a := &database.StoredUser{Name: "A", Email: "a@example.com", Descriptor: []float32{0, 0}}
	if err := m.CreateUser(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.CreateUser(ctx, &database.StoredUser{Name: "B", Email: "A@EXAMPLE.com"}); !errors.Is(err, database.ErrDuplicate) {
		t.Errorf("expected duplicate, got %v", err)
	}
	b := &database.StoredUser{Name: "B", Email: "b@example.com", Descriptor: []float32{0.5, 0}}
	_ = m.CreateUser(ctx, b)

	hits, err := m.FindLookalikes(ctx, []float32{0, 0}, a.ID, 0.6, 5)
	if err != nil {
		t.Fatalf("lookalikes: %v", err)
	}
	if len(hits) != 1 || hits[0].User.ID != b.ID {
		t.Errorf("expected b as lookalike, got %+v", hits)
	}

	if err := m.DeleteUser(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.GetUser(ctx, a.ID); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
