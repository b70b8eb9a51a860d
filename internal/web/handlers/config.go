package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse represents the configuration the kiosk client needs
type ConfigResponse struct {
	MatchThreshold  float64                     `json:"matchThreshold"`
	LateCutoff      string                      `json:"lateCutoff"`
	Timezone        string                      `json:"timezone"`
	DescriptorDim   int                         `json:"descriptorDim"`
	CameraDefaults  config.CameraDefaultsByType `json:"cameraDefaults"`
	StorageWritable bool                        `json:"storageWritable"`
	EventsMQTT      bool                        `json:"eventsMqtt"`
}

// Get returns the client-facing configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	timezone := h.config.Attendance.Timezone
	if loc, err := h.config.Attendance.Location(); err == nil {
		timezone = loc.String()
	}

	respondJSON(w, http.StatusOK, ConfigResponse{
		MatchThreshold:  h.config.Attendance.MatchThreshold,
		LateCutoff:      h.config.Attendance.LateCutoff,
		Timezone:        timezone,
		DescriptorDim:   h.config.Attendance.DescriptorDim,
		CameraDefaults:  h.config.Cameras.Defaults,
		StorageWritable: database.IsInitialized(),
		EventsMQTT:      h.config.Events.MQTTEnabled(),
	})
}
