package database

import (
	"context"
	"fmt"
)

// HNSWRebuilder is an interface for repositories that support HNSW index rebuilding
type HNSWRebuilder interface {
	// RebuildHNSW rebuilds the in-memory HNSW index
	RebuildHNSW(ctx context.Context) error
	// HNSWCount returns the number of items in the HNSW index
	HNSWCount() int
	// IsHNSWEnabled returns whether HNSW is enabled
	IsHNSWEnabled() bool
	// SaveHNSWIndex saves the current index to disk (if path configured)
	SaveHNSWIndex() error
}

var (
	postgresUserWriter       func() UserWriter
	postgresAttendanceWriter func() AttendanceWriter
	postgresCameraWriter     func() CameraWriter
	userHNSW                 HNSWRebuilder // Singleton for lookalike index rebuilding
	postgresInitialized      bool
)

// RegisterPostgresBackend registers PostgreSQL repository constructors.
// This is called by the postgres package to avoid import cycles.
func RegisterPostgresBackend(
	userWriter func() UserWriter,
	attendanceWriter func() AttendanceWriter,
	cameraWriter func() CameraWriter,
) {
	postgresUserWriter = userWriter
	postgresAttendanceWriter = attendanceWriter
	postgresCameraWriter = cameraWriter
	postgresInitialized = true
}

// RegisterUserHNSWRebuilder registers the HNSW rebuilder for the user repository.
// This allows rebuilding the in-memory HNSW index without knowing the concrete type.
func RegisterUserHNSWRebuilder(rebuilder HNSWRebuilder) {
	userHNSW = rebuilder
}

// GetUserHNSWRebuilder returns the registered user HNSW rebuilder, or nil if not registered.
func GetUserHNSWRebuilder() HNSWRebuilder {
	return userHNSW
}

// IsInitialized returns whether the PostgreSQL backend has been initialized.
func IsInitialized() bool {
	return postgresInitialized
}

// ResetForTesting clears all registered backends.
func ResetForTesting() {
	postgresUserWriter = nil
	postgresAttendanceWriter = nil
	postgresCameraWriter = nil
	userHNSW = nil
	postgresInitialized = false
}

// GetUserReader returns a UserReader from the PostgreSQL backend
func GetUserReader(ctx context.Context) (UserReader, error) {
	writer, err := GetUserWriter(ctx)
	if err != nil {
		return nil, err
	}
	return writer, nil
}

// GetUserWriter returns a UserWriter from the PostgreSQL backend
func GetUserWriter(ctx context.Context) (UserWriter, error) {
	if !postgresInitialized {
		return nil, fmt.Errorf("PostgreSQL backend not initialized: DATABASE_URL is required")
	}
	if postgresUserWriter == nil {
		return nil, fmt.Errorf("PostgreSQL user writer not registered")
	}
	return postgresUserWriter(), nil
}

// GetAttendanceReader returns an AttendanceReader from the PostgreSQL backend
func GetAttendanceReader(ctx context.Context) (AttendanceReader, error) {
	writer, err := GetAttendanceWriter(ctx)
	if err != nil {
		return nil, err
	}
	return writer, nil
}

// GetAttendanceWriter returns an AttendanceWriter from the PostgreSQL backend
func GetAttendanceWriter(ctx context.Context) (AttendanceWriter, error) {
	if !postgresInitialized {
		return nil, fmt.Errorf("PostgreSQL backend not initialized: DATABASE_URL is required")
	}
	if postgresAttendanceWriter == nil {
		return nil, fmt.Errorf("PostgreSQL attendance writer not registered")
	}
	return postgresAttendanceWriter(), nil
}

// GetCameraReader returns a CameraReader from the PostgreSQL backend
func GetCameraReader(ctx context.Context) (CameraReader, error) {
	writer, err := GetCameraWriter(ctx)
	if err != nil {
		return nil, err
	}
	return writer, nil
}

// GetCameraWriter returns a CameraWriter from the PostgreSQL backend
func GetCameraWriter(ctx context.Context) (CameraWriter, error) {
	if !postgresInitialized {
		return nil, fmt.Errorf("PostgreSQL backend not initialized: DATABASE_URL is required")
	}
	if postgresCameraWriter == nil {
		return nil, fmt.Errorf("PostgreSQL camera writer not registered")
	}
	return postgresCameraWriter(), nil
}
