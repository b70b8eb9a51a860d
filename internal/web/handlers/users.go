package handlers

import (
	"log"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// UsersHandler handles identity endpoints
type UsersHandler struct {
	config *config.Config
}

// NewUsersHandler creates a new users handler
func NewUsersHandler(cfg *config.Config) *UsersHandler {
	return &UsersHandler{config: cfg}
}

// UserResponse represents a user in API responses. The descriptor is never returned.
type UserResponse struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Department   string     `json:"department"`
	Role         string     `json:"role"`
	ProfileImage string     `json:"profileImage,omitempty"`
	Enrolled     bool       `json:"enrolled"`
	EnrolledAt   *time.Time `json:"enrolledAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func userToResponse(u *database.StoredUser) UserResponse {
	return UserResponse{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Department:   u.Department,
		Role:         u.Role,
		ProfileImage: u.ProfileImage,
		Enrolled:     u.HasDescriptor(),
		EnrolledAt:   u.EnrolledAt,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

// LookalikeResponse is an enrolled user whose template is close to another one
type LookalikeResponse struct {
	User       UserResponse `json:"user"`
	Distance   float64      `json:"distance"`
	Confidence float64      `json:"confidence"`
}

func lookalikesToResponse(l []database.Lookalike) []LookalikeResponse {
	out := make([]LookalikeResponse, len(l))
	for i := range l {
		out[i] = LookalikeResponse{
			User:       userToResponse(&l[i].User),
			Distance:   l[i].Distance,
			Confidence: 1 - l[i].Distance,
		}
	}
	return out
}

// userRequest is the body of create and update requests
type userRequest struct {
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Department   string    `json:"department"`
	Role         string    `json:"role"`
	ProfileImage string    `json:"profileImage"`
	Descriptor   []float32 `json:"descriptor,omitempty"`
}

// validate checks required fields and returns an error message, or "".
func (req *userRequest) validate(descriptorDim int) string {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Department = strings.TrimSpace(req.Department)
	req.Role = strings.TrimSpace(req.Role)

	if req.Name == "" || req.Email == "" || req.Department == "" || req.Role == "" {
		return "name, email, department and role are required"
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return "invalid email address"
	}
	if req.Descriptor != nil && !facematch.ValidDescriptor(req.Descriptor, descriptorDim) {
		return descriptorError(descriptorDim)
	}
	return ""
}

func descriptorError(dim int) string {
	return "descriptor must contain " + strconv.Itoa(dim) + " finite values"
}

// List returns all users, optionally filtered by a diacritic-insensitive name query (?q=)
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	repo := getUserWriter(r, w)
	if repo == nil {
		return
	}

	users, err := repo.ListUsers(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	query := r.URL.Query().Get("q")
	department := r.URL.Query().Get("department")
	response := make([]UserResponse, 0, len(users))
	for i := range users {
		if query != "" && !facematch.NameContains(users[i].Name, query) {
			continue
		}
		if department != "" && !strings.EqualFold(users[i].Department, department) {
			continue
		}
		response = append(response, userToResponse(&users[i]))
	}

	respondJSON(w, http.StatusOK, response)
}

// Get returns a single user
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	repo := getUserWriter(r, w)
	if repo == nil {
		return
	}

	user, err := repo.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStorageError(w, err, "user not found", "failed to get user")
		return
	}
	respondJSON(w, http.StatusOK, userToResponse(user))
}

// Create registers a new user with an optional face template
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if msg := req.validate(h.config.Attendance.DescriptorDim); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	repo := getUserWriter(r, w)
	if repo == nil {
		return
	}

	user := &database.StoredUser{
		Name:         req.Name,
		Email:        req.Email,
		Department:   req.Department,
		Role:         req.Role,
		ProfileImage: req.ProfileImage,
		Descriptor:   req.Descriptor,
	}
	if err := repo.CreateUser(r.Context(), user); err != nil {
		respondStorageError(w, err, "user not found", "failed to create user")
		return
	}

	log.Printf("Created user %s (%s)", user.ID, sanitizeForLog(user.Name))
	respondJSON(w, http.StatusCreated, userToResponse(user))
}

// Update changes profile fields of a user. The face template is changed via enrollment.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	req.Descriptor = nil
	if msg := req.validate(h.config.Attendance.DescriptorDim); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	repo := getUserWriter(r, w)
	if repo == nil {
		return
	}

	user := &database.StoredUser{
		ID:           chi.URLParam(r, "id"),
		Name:         req.Name,
		Email:        req.Email,
		Department:   req.Department,
		Role:         req.Role,
		ProfileImage: req.ProfileImage,
	}
	if err := repo.UpdateUser(r.Context(), user); err != nil {
		respondStorageError(w, err, "user not found", "failed to update user")
		return
	}

	updated, err := repo.GetUser(r.Context(), user.ID)
	if err != nil {
		respondStorageError(w, err, "user not found", "failed to get user")
		return
	}
	respondJSON(w, http.StatusOK, userToResponse(updated))
}

// Delete removes a user and its face template. Attendance history is kept.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	repo := getUserWriter(r, w)
	if repo == nil {
		return
	}

	id := chi.URLParam(r, "id")
	if err := repo.DeleteUser(r.Context(), id); err != nil {
		respondStorageError(w, err, "user not found", "failed to delete user")
		return
	}

	log.Printf("Deleted user %s", sanitizeForLog(id))
	respondJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

// Lookalikes lists enrolled users whose template is within the match threshold
// of this user's template (possible duplicate registrations)
func (h *UsersHandler) Lookalikes(w http.ResponseWriter, r *http.Request) {
	repo := getUserWriter(r, w)
	if repo == nil {
		return
	}

	user, err := repo.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStorageError(w, err, "user not found", "failed to get user")
		return
	}
	if !user.HasDescriptor() {
		respondError(w, http.StatusBadRequest, "user has no face data")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = constants.DefaultLookalikeLimit
	}

	lookalikes, err := repo.FindLookalikes(r.Context(), user.Descriptor, user.ID, h.config.Attendance.MatchThreshold, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to find lookalikes")
		return
	}
	respondJSON(w, http.StatusOK, lookalikesToResponse(lookalikes))
}
