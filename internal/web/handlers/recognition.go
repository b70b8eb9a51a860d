package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// RecognitionHandler handles identification and enrollment endpoints
type RecognitionHandler struct {
	config  *config.Config
	matcher *facematch.Matcher
	metrics *metrics.Metrics
	loads   singleflight.Group
	now     func() time.Time
}

// NewRecognitionHandler creates a new recognition handler
func NewRecognitionHandler(cfg *config.Config, m *metrics.Metrics) *RecognitionHandler {
	return &RecognitionHandler{
		config:  cfg,
		matcher: facematch.NewMatcher(cfg.Attendance.MatchThreshold),
		metrics: m,
		now:     time.Now,
	}
}

type descriptorRequest struct {
	Descriptor []float32 `json:"descriptor"`
}

// IdentifyResponse is the result of an identification
type IdentifyResponse struct {
	Recognized bool          `json:"recognized"`
	User       *UserResponse `json:"user,omitempty"`
	Confidence float64       `json:"confidence"`
	Distance   float64       `json:"distance"`
}

// EnrollResponse is the result of an enrollment
type EnrollResponse struct {
	User       UserResponse        `json:"user"`
	Lookalikes []LookalikeResponse `json:"lookalikes"`
}

// candidateSnapshot loads the enrolled templates once for all concurrent
// identifications. The returned slice is shared and must not be modified.
func (h *RecognitionHandler) candidateSnapshot(ctx context.Context, repo database.UserReader) ([]database.StoredUser, error) {
	v, err, _ := h.loads.Do("enrolled", func() (any, error) {
		return repo.ListEnrolled(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	return v.([]database.StoredUser), nil
}

// Identify resolves a descriptor to the closest enrolled user under the threshold
func (h *RecognitionHandler) Identify(w http.ResponseWriter, r *http.Request) {
	var req descriptorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if len(req.Descriptor) == 0 {
		respondError(w, http.StatusBadRequest, "face descriptor is required")
		return
	}

	repo := getUserWriter(r, w)
	if repo == nil {
		return
	}

	users, err := h.candidateSnapshot(r.Context(), repo)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load enrolled users")
		return
	}
	if len(users) == 0 {
		h.metrics.ObserveRecognition(metrics.OutcomeNoUsers, 0, 0)
		respondError(w, http.StatusNotFound, "no users with face data found")
		return
	}

	candidates := make([]facematch.Candidate, len(users))
	byID := make(map[string]*database.StoredUser, len(users))
	for i := range users {
		candidates[i] = facematch.Candidate{UserID: users[i].ID, Descriptor: users[i].Descriptor}
		byID[users[i].ID] = &users[i]
	}

	result := h.matcher.Match(req.Descriptor, candidates)
	if !result.Matched {
		h.metrics.ObserveRecognition(metrics.OutcomeUnmatched, len(candidates), 0)
		respondJSON(w, http.StatusOK, IdentifyResponse{Recognized: false})
		return
	}

	h.metrics.ObserveRecognition(metrics.OutcomeMatched, len(candidates), result.Distance)
	user := userToResponse(byID[result.UserID])
	respondJSON(w, http.StatusOK, IdentifyResponse{
		Recognized: true,
		User:       &user,
		Confidence: result.Confidence,
		Distance:   result.Distance,
	})
}

// Enroll replaces a user's face template and reports possible duplicate registrations
func (h *RecognitionHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req descriptorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	dim := h.config.Attendance.DescriptorDim
	if !facematch.ValidDescriptor(req.Descriptor, dim) {
		respondError(w, http.StatusBadRequest, descriptorError(dim))
		return
	}

	repo := getUserWriter(r, w)
	if repo == nil {
		return
	}

	ctx := r.Context()
	userID := chi.URLParam(r, "userId")
	if err := repo.SetDescriptor(ctx, userID, req.Descriptor, h.now()); err != nil {
		respondStorageError(w, err, "user not found", "failed to enroll face")
		return
	}

	user, err := repo.GetUser(ctx, userID)
	if err != nil {
		respondStorageError(w, err, "user not found", "failed to get user")
		return
	}

	lookalikes, err := repo.FindLookalikes(ctx, req.Descriptor, userID, h.config.Attendance.MatchThreshold, constants.DefaultLookalikeLimit)
	if err != nil {
		// Enrollment already succeeded; the warning list is best effort.
		log.Printf("Lookalike check failed for user %s: %v", sanitizeForLog(userID), err)
		lookalikes = nil
	}
	if len(lookalikes) > 0 {
		log.Printf("Enrolled user %s has %d lookalike(s)", sanitizeForLog(userID), len(lookalikes))
	}

	respondJSON(w, http.StatusOK, EnrollResponse{
		User:       userToResponse(user),
		Lookalikes: lookalikesToResponse(lookalikes),
	})
}
