// Package metrics exposes Prometheus instrumentation for recognition and attendance.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recognition outcomes.
const (
	OutcomeMatched   = "matched"
	OutcomeUnmatched = "unmatched"
	OutcomeNoUsers   = "no_users"
)

// Metrics holds the application collectors. A nil *Metrics is a no-op.
type Metrics struct {
	// Recognition attempts by outcome
	RecognitionOutcome *prometheus.CounterVec

	// Distance of the best accepted match
	MatchDistance prometheus.Histogram

	// Enrolled templates compared per identification
	CandidatesCompared prometheus.Histogram

	// Attendance transitions by action ("in", "out", "override") and outcome
	Transitions *prometheus.CounterVec
}

// New creates a Metrics instance registered with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		RecognitionOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "face_attendance_recognition_total",
			Help: "Total identification requests by outcome",
		}, []string{"outcome"}), // outcome: "matched", "unmatched", "no_users"

		MatchDistance: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "face_attendance_match_distance",
			Help:    "Euclidean distance of accepted matches",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.45, 0.5, 0.55, 0.6},
		}),

		CandidatesCompared: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "face_attendance_candidates_compared",
			Help:    "Number of enrolled templates compared per identification",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),

		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "face_attendance_transitions_total",
			Help: "Attendance transitions by action and outcome",
		}, []string{"action", "outcome"}),
	}
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide instance registered with the default registerer.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(nil)
	})
	return defaultMetrics
}

// ObserveRecognition records an identification attempt.
func (m *Metrics) ObserveRecognition(outcome string, candidates int, distance float64) {
	if m == nil {
		return
	}
	m.RecognitionOutcome.WithLabelValues(outcome).Inc()
	m.CandidatesCompared.Observe(float64(candidates))
	if outcome == OutcomeMatched {
		m.MatchDistance.Observe(distance)
	}
}

// IncrementTransition records an attendance transition result. outcome is
// "ok", an error kind such as "duplicate_check_in", or "error".
func (m *Metrics) IncrementTransition(action, outcome string) {
	if m != nil {
		m.Transitions.WithLabelValues(action, outcome).Inc()
	}
}
