package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/events"
	"github.com/kozaktomas/face-attendance/internal/metrics"
)

// AttendanceHandler handles attendance endpoints
type AttendanceHandler struct {
	config    *config.Config
	service   *attendance.Service
	hub       *events.Hub
	publisher events.Publisher
	metrics   *metrics.Metrics
	onChange  func()
}

// NewAttendanceHandler creates a new attendance handler. Successful transitions
// are sent to publisher (which should include hub) and streamed to hub listeners.
func NewAttendanceHandler(cfg *config.Config, svc *attendance.Service, hub *events.Hub, publisher events.Publisher, m *metrics.Metrics) *AttendanceHandler {
	if publisher == nil {
		publisher = hub
	}
	return &AttendanceHandler{
		config:    cfg,
		service:   svc,
		hub:       hub,
		publisher: publisher,
		metrics:   m,
	}
}

// OnChange registers a callback invoked after every successful transition.
func (h *AttendanceHandler) OnChange(fn func()) {
	h.onChange = fn
}

// RecordResponse is an attendance record with the user's display name
type RecordResponse struct {
	*attendance.Record
	UserName string `json:"userName,omitempty"`
}

// TransitionErrorResponse describes a rejected check-in or check-out
type TransitionErrorResponse struct {
	Error  string             `json:"error"`
	Kind   string             `json:"kind"`
	Record *attendance.Record `json:"record,omitempty"`
}

// RosterResponse is a daily roster with inferred absences
type RosterResponse struct {
	Date    string                   `json:"date"`
	Entries []attendance.RosterEntry `json:"entries"`
	Summary attendance.Summary       `json:"summary"`
}

// HistoryResponse is a user's day-by-day history
type HistoryResponse struct {
	UserID    string                   `json:"userId"`
	StartDate string                   `json:"startDate"`
	EndDate   string                   `json:"endDate"`
	Entries   []attendance.RosterEntry `json:"entries"`
	Summary   attendance.Summary       `json:"summary"`
}

type markRequest struct {
	UserID string `json:"userId"`
	Type   string `json:"type"`
}

type overrideRequest struct {
	TimeIn       *time.Time `json:"timeIn"`
	TimeOut      *time.Time `json:"timeOut"`
	ClearTimeOut bool       `json:"clearTimeOut"`
	Status       string     `json:"status"`
}

// Mark records a check-in or check-out for today
func (h *AttendanceHandler) Mark(w http.ResponseWriter, r *http.Request) {
	var req markRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.UserID == "" {
		respondError(w, http.StatusBadRequest, "userId is required")
		return
	}
	dir := attendance.Direction(strings.ToLower(req.Type))
	if dir != attendance.DirectionIn && dir != attendance.DirectionOut {
		respondError(w, http.StatusBadRequest, "type must be 'in' or 'out'")
		return
	}

	users := getUserWriter(r, w)
	if users == nil {
		return
	}
	user, err := users.GetUser(r.Context(), req.UserID)
	if err != nil {
		respondStorageError(w, err, "user not found", "failed to get user")
		return
	}

	rec, err := h.service.Mark(r.Context(), user.ID, dir)
	if err != nil {
		if te, ok := attendance.AsTransition(err); ok {
			h.metrics.IncrementTransition(string(dir), string(te.Kind))
			respondJSON(w, http.StatusConflict, TransitionErrorResponse{
				Error:  te.Error(),
				Kind:   string(te.Kind),
				Record: te.Record,
			})
			return
		}
		h.metrics.IncrementTransition(string(dir), "error")
		log.Printf("Failed to mark %s for user %s: %v", dir, sanitizeForLog(user.ID), err)
		respondError(w, http.StatusInternalServerError, "failed to record attendance")
		return
	}

	h.metrics.IncrementTransition(string(dir), "ok")
	eventType := events.TypeCheckIn
	status := http.StatusCreated
	if dir == attendance.DirectionOut {
		eventType = events.TypeCheckOut
		status = http.StatusOK
	}
	h.emit(eventType, user.Name, rec)

	respondJSON(w, status, RecordResponse{Record: rec, UserName: user.Name})
}

func (h *AttendanceHandler) emit(eventType, userName string, rec *attendance.Record) {
	_ = h.publisher.Publish(events.Event{
		Type:     eventType,
		UserID:   rec.UserID,
		UserName: userName,
		Record:   rec,
		At:       rec.UpdatedAt,
	})
	if h.onChange != nil {
		h.onChange()
	}
}

// userNames maps user IDs to display names. Lookup failures yield an empty map.
func userNames(ctx context.Context, users database.UserReader) map[string]string {
	names := make(map[string]string)
	list, err := users.ListUsers(ctx)
	if err != nil {
		return names
	}
	for _, u := range list {
		names[u.ID] = u.Name
	}
	return names
}

func withNames(records []*attendance.Record, names map[string]string) []RecordResponse {
	out := make([]RecordResponse, len(records))
	for i, rec := range records {
		out[i] = RecordResponse{Record: rec, UserName: names[rec.UserID]}
	}
	return out
}

// List returns all records, or the records of one day (?date=YYYY-MM-DD)
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date != "" && !validDate(date) {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	reader := getAttendanceReader(r, w)
	if reader == nil {
		return
	}
	users := getUserWriter(r, w)
	if users == nil {
		return
	}

	records, err := reader.ListByDate(r.Context(), date)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list attendance")
		return
	}
	respondJSON(w, http.StatusOK, withNames(records, userNames(r.Context(), users)))
}

// dateRange reads startDate/endDate query parameters; both are optional.
func dateRange(r *http.Request) (string, string, bool) {
	from := r.URL.Query().Get("startDate")
	to := r.URL.Query().Get("endDate")
	if (from != "" && !validDate(from)) || (to != "" && !validDate(to)) {
		return "", "", false
	}
	return from, to, true
}

// ByUser returns a user's records, optionally within ?startDate=&endDate=
func (h *AttendanceHandler) ByUser(w http.ResponseWriter, r *http.Request) {
	from, to, ok := dateRange(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "dates must be YYYY-MM-DD")
		return
	}

	reader := getAttendanceReader(r, w)
	if reader == nil {
		return
	}

	records, err := reader.ListByUser(r.Context(), chi.URLParam(r, "userId"), from, to)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list attendance")
		return
	}
	respondJSON(w, http.StatusOK, records)
}

// History returns one entry per day in [startDate, min(endDate, today)] with
// inferred absences and a summary
func (h *AttendanceHandler) History(w http.ResponseWriter, r *http.Request) {
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
	if _, err := users.GetUser(r.Context(), userID); err != nil {
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

	entries, err := attendance.UserHistory(userID, from, to, h.service.Today(), records)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if entries == nil {
		entries = []attendance.RosterEntry{}
	}
	respondJSON(w, http.StatusOK, HistoryResponse{
		UserID:    userID,
		StartDate: from,
		EndDate:   to,
		Entries:   entries,
		Summary:   attendance.Summarize(entries),
	})
}

// people converts users to roster identities.
func people(users []database.StoredUser) []attendance.Person {
	out := make([]attendance.Person, len(users))
	for i, u := range users {
		out[i] = attendance.Person{ID: u.ID, Name: u.Name, Department: u.Department}
	}
	return out
}

// loadRoster builds the roster for date from the registered repositories.
func loadRoster(ctx context.Context, date string) ([]attendance.RosterEntry, error) {
	users, err := database.GetUserReader(ctx)
	if err != nil {
		return nil, err
	}
	reader, err := database.GetAttendanceReader(ctx)
	if err != nil {
		return nil, err
	}
	list, err := users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	records, err := reader.ListByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	return attendance.DailyRoster(date, people(list), records), nil
}

// Roster returns every known user for a day, absent users included
func (h *AttendanceHandler) Roster(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if !validDate(date) {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	entries, err := loadRoster(r.Context(), date)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to build roster")
		return
	}
	respondJSON(w, http.StatusOK, RosterResponse{
		Date:    date,
		Entries: entries,
		Summary: attendance.Summarize(entries),
	})
}

// Override replaces time-in, time-out or status of a record (administrative correction)
func (h *AttendanceHandler) Override(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	reader := getAttendanceReader(r, w)
	if reader == nil {
		return
	}

	id := chi.URLParam(r, "id")
	rec, err := reader.GetRecord(r.Context(), id)
	if err != nil {
		respondStorageError(w, err, "attendance record not found", "failed to get attendance record")
		return
	}

	// User and date never change, so the lookup only resolves the lock key.
	change := attendance.Amendment{
		TimeIn:       req.TimeIn,
		TimeOut:      req.TimeOut,
		ClearTimeOut: req.ClearTimeOut,
		Status:       attendance.Status(req.Status),
	}
	updated, err := h.service.Override(r.Context(), rec.UserID, rec.Date, rec.ID, change)
	if err != nil {
		h.metrics.IncrementTransition("override", "error")
		switch {
		case errors.Is(err, attendance.ErrInvalidRecord):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, attendance.ErrRecordNotFound), errors.Is(err, database.ErrNotFound):
			respondError(w, http.StatusNotFound, "attendance record not found")
		default:
			respondError(w, http.StatusInternalServerError, "failed to update attendance record")
		}
		return
	}

	h.metrics.IncrementTransition("override", "ok")
	log.Printf("Attendance record %s overridden", sanitizeForLog(id))
	h.emit(events.TypeOverride, "", updated)
	respondJSON(w, http.StatusOK, updated)
}

// Events streams successful transitions as server-sent events
func (h *AttendanceHandler) Events(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, http.StatusServiceUnavailable, "event stream not available")
		return
	}
	streamEvents(w, r, h.hub)
}
