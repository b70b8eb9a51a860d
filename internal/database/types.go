package database

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique field (such as a user's email) is taken.
var ErrDuplicate = errors.New("already exists")

// StoredUser represents an identity with an optional face template
type StoredUser struct {
	ID           string
	Name         string
	Email        string
	Department   string
	Role         string
	ProfileImage string
	Descriptor   []float32 // nil when no face is enrolled
	EnrolledAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasDescriptor reports whether a face template is enrolled.
func (u *StoredUser) HasDescriptor() bool {
	return len(u.Descriptor) > 0
}

// Lookalike is an enrolled user whose template is close to a query descriptor
type Lookalike struct {
	User     StoredUser
	Distance float64
}

// Camera types
const (
	CameraTypeWebcam = "webcam"
	CameraTypeIP     = "ip"
)

// StoredCamera represents a configured capture device
type StoredCamera struct {
	ID                string
	Name              string
	Type              string // CameraTypeWebcam or CameraTypeIP
	Location          string
	Enabled           bool
	IPAddress         string
	Port              int
	Username          string
	Password          string
	StreamPath        string
	RefreshIntervalMs int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsIP reports whether the camera is a network camera.
func (c *StoredCamera) IsIP() bool {
	return c.Type == CameraTypeIP
}
