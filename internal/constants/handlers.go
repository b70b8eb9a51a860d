// Package constants provides shared constants used across the codebase.
package constants

// Handler constants
const (
	// MaxRequestBodySize is the maximum JSON request body size in bytes (1MB)
	MaxRequestBodySize = 1 << 20

	// DefaultSnapshotSize is the default longest edge of a proxied camera snapshot
	DefaultSnapshotSize = 640

	// MaxSnapshotSize is the largest snapshot edge a client may request
	MaxSnapshotSize = 1920

	// MaxSnapshotBytes caps the upstream camera response size (20MB)
	MaxSnapshotBytes = 20 << 20
)

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100
)
