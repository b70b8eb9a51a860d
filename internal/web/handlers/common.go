package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a size-limited JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxRequestBodySize)
	return json.NewDecoder(r.Body).Decode(dst)
}

// validDate reports whether s is a YYYY-MM-DD calendar date.
func validDate(s string) bool {
	_, err := time.Parse(attendance.DateLayout, s)
	return err == nil
}

func getUserWriter(r *http.Request, w http.ResponseWriter) database.UserWriter {
	writer, err := database.GetUserWriter(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "user storage not available")
		return nil
	}
	return writer
}

func getAttendanceReader(r *http.Request, w http.ResponseWriter) database.AttendanceReader {
	reader, err := database.GetAttendanceReader(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "attendance storage not available")
		return nil
	}
	return reader
}

func getCameraWriter(r *http.Request, w http.ResponseWriter) database.CameraWriter {
	writer, err := database.GetCameraWriter(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "camera storage not available")
		return nil
	}
	return writer
}

// respondStorageError maps repository errors to HTTP responses.
func respondStorageError(w http.ResponseWriter, err error, notFound, fallback string) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, notFound)
	case errors.Is(err, database.ErrDuplicate):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, fallback)
	}
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
