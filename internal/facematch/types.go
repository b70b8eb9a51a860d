// Package facematch resolves face descriptors to enrolled identities.
// It is shared between the CLI and the web handlers and performs no I/O.
package facematch

// DefaultThreshold is the maximum L2 distance at which two descriptors are
// considered the same person. Lower values are stricter.
const DefaultThreshold = 0.6

// Candidate is an enrolled identity and its face template.
type Candidate struct {
	UserID     string
	Descriptor []float32
}

// MatchResult is the outcome of a single recognition attempt.
// It is never persisted.
type MatchResult struct {
	UserID     string  `json:"user_id,omitempty"`
	Matched    bool    `json:"matched"`
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
}
