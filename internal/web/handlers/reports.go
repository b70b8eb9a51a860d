package handlers

import (
	"bytes"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/report"
)

// ReportsHandler serves spreadsheet exports
type ReportsHandler struct {
	config  *config.Config
	service *attendance.Service
}

// NewReportsHandler creates a new reports handler
func NewReportsHandler(cfg *config.Config, svc *attendance.Service) *ReportsHandler {
	return &ReportsHandler{config: cfg, service: svc}
}

func sendWorkbook(w http.ResponseWriter, filename string, buf *bytes.Buffer) {
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// Daily exports the roster of one date, absent users included
func (h *ReportsHandler) Daily(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if !validDate(date) {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	roster, err := loadRoster(r.Context(), date)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to build roster")
		return
	}

	var buf bytes.Buffer
	if err := report.WriteDaily(&buf, date, roster, h.service.Policy().Location); err != nil {
		log.Printf("Failed to render daily report: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to generate report")
		return
	}
	sendWorkbook(w, report.DailyFilename(date), &buf)
}

// User exports one user's history for ?startDate=&endDate= with a summary
func (h *ReportsHandler) User(w http.ResponseWriter, r *http.Request) {
	from, to, ok := dateRange(r)
	if !ok || from == "" || to == "" {
		respondError(w, http.StatusBadRequest, "startDate and endDate are required (YYYY-MM-DD)")
		return
	}

	users := getUserWriter(r, w)
	if users == nil {
		return
	}
	userID := chi.URLParam(r, "userId")
	user, err := users.GetUser(r.Context(), userID)
	if err != nil {
		respondStorageError(w, err, "user not found", "failed to get user")
		return
	}

	reader := getAttendanceReader(r, w)
	if reader == nil {
		return
	}
	records, err := reader.ListByUser(r.Context(), userID, from, to)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list attendance")
		return
	}
	history, err := attendance.UserHistory(userID, from, to, h.service.Today(), records)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var buf bytes.Buffer
	info := report.UserInfo{ID: user.ID, Name: user.Name, Department: user.Department}
	if err := report.WriteUser(&buf, info, report.Period{From: from, To: to}, history, h.service.Policy().Location); err != nil {
		log.Printf("Failed to render user report: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to generate report")
		return
	}
	sendWorkbook(w, report.UserFilename(userID), &buf)
}
