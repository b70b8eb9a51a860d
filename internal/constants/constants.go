// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Recognition constants
const (
	// DefaultDescriptorDim is the length of a face descriptor produced by the
	// client-side face model
	DefaultDescriptorDim = 128

	// DefaultLookalikeLimit is the number of HNSW neighbours inspected when
	// checking a new enrollment against existing templates
	DefaultLookalikeLimit = 10

	// HNSWSaveInterval is the number of index mutations between saves of the
	// persisted lookalike index
	HNSWSaveInterval = 50
)

// Import constants
const (
	// ImportBatchSize is the number of rows read per HR directory query
	ImportBatchSize = 500
)
