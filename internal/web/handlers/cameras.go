package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// CamerasHandler handles camera configuration and snapshot endpoints
type CamerasHandler struct {
	config  *config.Config
	fetcher *camera.Fetcher
}

// NewCamerasHandler creates a new cameras handler
func NewCamerasHandler(cfg *config.Config) *CamerasHandler {
	return &CamerasHandler{
		config:  cfg,
		fetcher: camera.NewFetcher(cfg.Cameras.SnapshotTimeout),
	}
}

// CameraResponse represents a camera in API responses. The password is never returned.
type CameraResponse struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Type              string    `json:"type"`
	Location          string    `json:"location"`
	Enabled           bool      `json:"enabled"`
	IPAddress         string    `json:"ipAddress,omitempty"`
	Port              int       `json:"port,omitempty"`
	Username          string    `json:"username,omitempty"`
	HasPassword       bool      `json:"hasPassword"`
	StreamPath        string    `json:"streamPath,omitempty"`
	RefreshIntervalMs int       `json:"refreshIntervalMs"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func cameraToResponse(c *database.StoredCamera) CameraResponse {
	return CameraResponse{
		ID:                c.ID,
		Name:              c.Name,
		Type:              c.Type,
		Location:          c.Location,
		Enabled:           c.Enabled,
		IPAddress:         c.IPAddress,
		Port:              c.Port,
		Username:          c.Username,
		HasPassword:       c.Password != "",
		StreamPath:        c.StreamPath,
		RefreshIntervalMs: c.RefreshIntervalMs,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

func camerasToResponse(cameras []database.StoredCamera) []CameraResponse {
	out := make([]CameraResponse, len(cameras))
	for i := range cameras {
		out[i] = cameraToResponse(&cameras[i])
	}
	return out
}

// cameraRequest is the body of create and update requests. Nil fields take
// the type defaults on create and keep the stored value on update.
type cameraRequest struct {
	Name              *string `json:"name"`
	Type              string  `json:"type"`
	Location          *string `json:"location"`
	Enabled           *bool   `json:"enabled"`
	IPAddress         *string `json:"ipAddress"`
	Port              *int    `json:"port"`
	Username          *string `json:"username"`
	Password          *string `json:"password"`
	StreamPath        *string `json:"streamPath"`
	RefreshIntervalMs *int    `json:"refreshIntervalMs"`
}

// apply copies the set fields of req onto c.
func (req *cameraRequest) apply(c *database.StoredCamera) {
	if req.Name != nil {
		c.Name = strings.TrimSpace(*req.Name)
	}
	if req.Location != nil {
		c.Location = *req.Location
	}
	if req.Enabled != nil {
		c.Enabled = *req.Enabled
	}
	if req.IPAddress != nil {
		c.IPAddress = strings.TrimSpace(*req.IPAddress)
	}
	if req.Port != nil {
		c.Port = *req.Port
	}
	if req.Username != nil {
		c.Username = *req.Username
	}
	if req.Password != nil {
		c.Password = *req.Password
	}
	if req.StreamPath != nil {
		c.StreamPath = *req.StreamPath
	}
	if req.RefreshIntervalMs != nil {
		c.RefreshIntervalMs = *req.RefreshIntervalMs
	}
}

// validateCamera returns an error message for an invalid camera, or "".
func validateCamera(c *database.StoredCamera) string {
	if c.Name == "" {
		return "name is required"
	}
	if c.Port < 0 || c.Port > 65535 {
		return "port must be between 0 and 65535"
	}
	if c.RefreshIntervalMs < 0 {
		return "refreshIntervalMs must not be negative"
	}
	if c.IsIP() && c.IPAddress == "" {
		return "ipAddress is required for IP cameras"
	}
	return ""
}

// List returns all cameras
func (h *CamerasHandler) List(w http.ResponseWriter, r *http.Request) {
	repo := getCameraWriter(r, w)
	if repo == nil {
		return
	}
	cameras, err := repo.ListCameras(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list cameras")
		return
	}
	respondJSON(w, http.StatusOK, camerasToResponse(cameras))
}

// Active returns enabled cameras
func (h *CamerasHandler) Active(w http.ResponseWriter, r *http.Request) {
	repo := getCameraWriter(r, w)
	if repo == nil {
		return
	}
	cameras, err := repo.ListActiveCameras(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list cameras")
		return
	}
	respondJSON(w, http.StatusOK, camerasToResponse(cameras))
}

// Get returns a single camera
func (h *CamerasHandler) Get(w http.ResponseWriter, r *http.Request) {
	repo := getCameraWriter(r, w)
	if repo == nil {
		return
	}
	cam, err := repo.GetCamera(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStorageError(w, err, "camera not found", "failed to get camera")
		return
	}
	respondJSON(w, http.StatusOK, cameraToResponse(cam))
}

// Defaults returns the default settings for each camera type
func (h *CamerasHandler) Defaults(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.config.Cameras.Defaults)
}

// Create adds a camera, filling unset fields from the type defaults
func (h *CamerasHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req cameraRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	defaults, ok := h.config.Cameras.Defaults.For(req.Type)
	if !ok {
		respondError(w, http.StatusBadRequest, "type must be 'webcam' or 'ip'")
		return
	}

	cam := &database.StoredCamera{
		Name:              defaults.Name,
		Type:              req.Type,
		Location:          defaults.Location,
		Enabled:           defaults.Enabled,
		IPAddress:         defaults.IPAddress,
		Port:              defaults.Port,
		StreamPath:        defaults.StreamPath,
		RefreshIntervalMs: defaults.RefreshIntervalMs,
	}
	req.apply(cam)
	if msg := validateCamera(cam); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	repo := getCameraWriter(r, w)
	if repo == nil {
		return
	}
	if err := repo.CreateCamera(r.Context(), cam); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create camera")
		return
	}

	log.Printf("Created camera %s (%s)", cam.ID, sanitizeForLog(cam.Name))
	respondJSON(w, http.StatusCreated, cameraToResponse(cam))
}

// Update changes the provided fields of a camera. The type cannot change.
func (h *CamerasHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req cameraRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	repo := getCameraWriter(r, w)
	if repo == nil {
		return
	}
	cam, err := repo.GetCamera(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStorageError(w, err, "camera not found", "failed to get camera")
		return
	}
	if req.Type != "" && req.Type != cam.Type {
		respondError(w, http.StatusBadRequest, "camera type cannot be changed")
		return
	}

	req.apply(cam)
	if msg := validateCamera(cam); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}
	if err := repo.UpdateCamera(r.Context(), cam); err != nil {
		respondStorageError(w, err, "camera not found", "failed to update camera")
		return
	}
	respondJSON(w, http.StatusOK, cameraToResponse(cam))
}

// Delete removes a camera
func (h *CamerasHandler) Delete(w http.ResponseWriter, r *http.Request) {
	repo := getCameraWriter(r, w)
	if repo == nil {
		return
	}
	id := chi.URLParam(r, "id")
	if err := repo.DeleteCamera(r.Context(), id); err != nil {
		respondStorageError(w, err, "camera not found", "failed to delete camera")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "camera deleted"})
}

// Snapshot proxies the current frame of an IP camera as JPEG (?size= longest edge)
func (h *CamerasHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	size := constants.DefaultSnapshotSize
	if s := r.URL.Query().Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > constants.MaxSnapshotSize {
			respondError(w, http.StatusBadRequest, "invalid size")
			return
		}
		size = n
	}

	repo := getCameraWriter(r, w)
	if repo == nil {
		return
	}
	cam, err := repo.GetCamera(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStorageError(w, err, "camera not found", "failed to get camera")
		return
	}

	data, err := h.fetcher.Fetch(r.Context(), cam)
	if err != nil {
		switch {
		case errors.Is(err, camera.ErrNotNetworkCamera):
			respondError(w, http.StatusBadRequest, "snapshots are only available for IP cameras")
		case errors.Is(err, camera.ErrDisabled):
			respondError(w, http.StatusConflict, "camera is disabled")
		default:
			log.Printf("Snapshot from camera %s failed: %v", cam.ID, err)
			respondError(w, http.StatusBadGateway, "failed to fetch snapshot")
		}
		return
	}

	jpg, err := camera.ResizeJPEG(data, size)
	if err != nil {
		respondError(w, http.StatusBadGateway, "camera returned an invalid image")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(jpg)
}
