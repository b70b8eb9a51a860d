package database

import (
	"context"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
)

// UserReader provides read-only access to identities
type UserReader interface {
	// GetUser retrieves a user by ID, returns ErrNotFound if missing
	GetUser(ctx context.Context, id string) (*StoredUser, error)
	// ListUsers returns all users ordered by name
	ListUsers(ctx context.Context) ([]StoredUser, error)
	// ListEnrolled returns all users that have a face template.
	// The result is a consistent snapshot used for one identification.
	ListEnrolled(ctx context.Context) ([]StoredUser, error)
	// CountUsers returns the number of users and how many are enrolled
	CountUsers(ctx context.Context) (total int, enrolled int, err error)
	// FindLookalikes returns enrolled users other than excludeID whose template
	// is strictly closer than maxDistance, closest first
	FindLookalikes(ctx context.Context, descriptor []float32, excludeID string, maxDistance float64, limit int) ([]Lookalike, error)
}

// UserWriter provides write access to identities
type UserWriter interface {
	UserReader

	// CreateUser inserts a user. ID and timestamps are filled in when empty.
	// Returns ErrDuplicate if the email is already registered.
	CreateUser(ctx context.Context, user *StoredUser) error
	// UpdateUser updates profile fields (not the descriptor)
	UpdateUser(ctx context.Context, user *StoredUser) error
	// DeleteUser removes a user and its template. Attendance history is kept.
	DeleteUser(ctx context.Context, id string) error
	// SetDescriptor replaces the face template of a user
	SetDescriptor(ctx context.Context, id string, descriptor []float32, enrolledAt time.Time) error
}

// AttendanceReader provides read-only access to attendance records
type AttendanceReader interface {
	// Get returns the record for a (user, date) key, or nil if none exists
	Get(ctx context.Context, userID, date string) (*attendance.Record, error)
	// GetRecord returns a record by ID, returns ErrNotFound if missing
	GetRecord(ctx context.Context, id string) (*attendance.Record, error)
	// ListByDate returns records for one date, or all records when date is empty
	ListByDate(ctx context.Context, date string) ([]*attendance.Record, error)
	// ListByUser returns a user's records within [from, to]; empty bounds are open
	ListByUser(ctx context.Context, userID, from, to string) ([]*attendance.Record, error)
}

// AttendanceWriter provides write access to attendance records.
// Create and CloseOut are conditional writes so concurrent transitions on
// the same key cannot both succeed.
type AttendanceWriter interface {
	AttendanceReader
	attendance.Store
}

// CameraReader provides read-only access to camera configuration
type CameraReader interface {
	// GetCamera retrieves a camera by ID, returns ErrNotFound if missing
	GetCamera(ctx context.Context, id string) (*StoredCamera, error)
	// ListCameras returns all cameras ordered by name
	ListCameras(ctx context.Context) ([]StoredCamera, error)
	// ListActiveCameras returns enabled cameras only
	ListActiveCameras(ctx context.Context) ([]StoredCamera, error)
}

// CameraWriter provides write access to camera configuration
type CameraWriter interface {
	CameraReader

	CreateCamera(ctx context.Context, camera *StoredCamera) error
	UpdateCamera(ctx context.Context, camera *StoredCamera) error
	DeleteCamera(ctx context.Context, id string) error
}
