package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
)

const statsCacheTTL = 30 * time.Second

// statsCache holds cached stats with expiry
type statsCache struct {
	mu        sync.RWMutex
	data      *StatsResponse
	expiresAt time.Time
}

func (c *statsCache) get(now time.Time) (*StatsResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.data == nil || now.After(c.expiresAt) {
		return nil, false
	}
	return c.data, true
}

func (c *statsCache) set(data *StatsResponse, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = data
	c.expiresAt = now.Add(statsCacheTTL)
}

func (c *statsCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = nil
}

// StatsHandler handles dashboard statistics
type StatsHandler struct {
	config  *config.Config
	service *attendance.Service
	cache   statsCache
	now     func() time.Time
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(cfg *config.Config, svc *attendance.Service) *StatsHandler {
	return &StatsHandler{
		config:  cfg,
		service: svc,
		now:     time.Now,
	}
}

// InvalidateCache clears the cached stats so the next request fetches fresh data
func (h *StatsHandler) InvalidateCache() {
	h.cache.invalidate()
}

// StatsResponse represents the dashboard statistics
type StatsResponse struct {
	TotalUsers    int                `json:"totalUsers"`
	EnrolledUsers int                `json:"enrolledUsers"`
	IndexedUsers  int                `json:"indexedUsers"`
	Date          string             `json:"date"`
	Today         attendance.Summary `json:"today"`
}

// Get returns user counts and today's attendance summary
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if cached, ok := h.cache.get(h.now()); ok {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	repo := getUserWriter(r, w)
	if repo == nil {
		return
	}
	total, enrolled, err := repo.CountUsers(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to count users")
		return
	}

	date := h.service.Today()
	entries, err := loadRoster(r.Context(), date)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to build roster")
		return
	}

	stats := &StatsResponse{
		TotalUsers:    total,
		EnrolledUsers: enrolled,
		Date:          date,
		Today:         attendance.Summarize(entries),
	}
	if rebuilder := database.GetUserHNSWRebuilder(); rebuilder != nil && rebuilder.IsHNSWEnabled() {
		stats.IndexedUsers = rebuilder.HNSWCount()
	}

	h.cache.set(stats, h.now())
	respondJSON(w, http.StatusOK, stats)
}

// RebuildIndex rebuilds the in-memory lookalike index from the database
func (h *StatsHandler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	rebuilder := database.GetUserHNSWRebuilder()
	if rebuilder == nil {
		respondError(w, http.StatusServiceUnavailable, "lookalike index not available")
		return
	}
	if err := rebuilder.RebuildHNSW(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to rebuild index")
		return
	}
	if err := rebuilder.SaveHNSWIndex(); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save index")
		return
	}
	h.InvalidateCache()
	respondJSON(w, http.StatusOK, map[string]any{"indexedUsers": rebuilder.HNSWCount()})
}
