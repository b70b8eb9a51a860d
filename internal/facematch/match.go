package facematch

import "sort"

// Matcher finds the closest enrolled identity under a fixed threshold.
// A Matcher holds no mutable state and is safe for concurrent use.
type Matcher struct {
	Threshold float64
}

// NewMatcher creates a matcher. Non-positive thresholds fall back to DefaultThreshold.
func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{Threshold: threshold}
}

// Match scans all candidates and returns the one with the smallest distance
// strictly below the threshold. Candidates without a descriptor are skipped.
// When several candidates share the best distance the first one wins.
func (m *Matcher) Match(query []float32, candidates []Candidate) MatchResult {
	if len(query) == 0 || len(candidates) == 0 {
		return MatchResult{}
	}

	best := m.Threshold
	bestIdx := -1
	for i := range candidates {
		c := &candidates[i]
		if len(c.Descriptor) == 0 {
			continue
		}
		d := EuclideanDistance(query, c.Descriptor)
		if d < best {
			best = d
			bestIdx = i
		}
	}

	if bestIdx < 0 {
		return MatchResult{}
	}

	return MatchResult{
		UserID:     candidates[bestIdx].UserID,
		Matched:    true,
		Distance:   best,
		Confidence: 1 - best,
	}
}

// Nearby returns every candidate other than excludeID whose distance to query
// is strictly below the threshold, closest first.
func (m *Matcher) Nearby(query []float32, candidates []Candidate, excludeID string) []MatchResult {
	var out []MatchResult
	for i := range candidates {
		c := &candidates[i]
		if c.UserID == excludeID {
			continue
		}
		d := EuclideanDistance(query, c.Descriptor)
		if d < m.Threshold {
			out = append(out, MatchResult{
				UserID:     c.UserID,
				Matched:    true,
				Distance:   d,
				Confidence: 1 - d,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Distance < out[j].Distance
	})
	return out
}
