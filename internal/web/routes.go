package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRoutes() {
	// Create handlers
	usersHandler := handlers.NewUsersHandler(s.config)
	recognitionHandler := handlers.NewRecognitionHandler(s.config, s.metrics)
	attendanceHandler := handlers.NewAttendanceHandler(s.config, s.service, s.hub, s.publisher, s.metrics)
	reportsHandler := handlers.NewReportsHandler(s.config, s.service)
	camerasHandler := handlers.NewCamerasHandler(s.config)
	configHandler := handlers.NewConfigHandler(s.config)
	statsHandler := handlers.NewStatsHandler(s.config, s.service)

	attendanceHandler.OnChange(statsHandler.InvalidateCache)

	// Health check and metrics (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)
	s.router.Handle("/metrics", promhttp.Handler())

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireToken(s.config.Web.APIToken))

		// Users
		r.Get("/users", usersHandler.List)
		r.Post("/users", usersHandler.Create)
		r.Get("/users/{id}", usersHandler.Get)
		r.Put("/users/{id}", usersHandler.Update)
		r.Delete("/users/{id}", usersHandler.Delete)
		r.Get("/users/{id}/lookalikes", usersHandler.Lookalikes)

		// Recognition
		r.With(middleware.RateLimit(s.config.Web.RecognitionRPS, s.config.Web.RecognitionBurst)).
			Post("/recognition/identify", recognitionHandler.Identify)
		r.Post("/recognition/enroll/{userId}", recognitionHandler.Enroll)

		// Attendance
		r.Post("/attendance/mark", attendanceHandler.Mark)
		r.Get("/attendance", attendanceHandler.List)
		r.Get("/attendance/events", attendanceHandler.Events)
		r.Get("/attendance/roster/{date}", attendanceHandler.Roster)
		r.Get("/attendance/user/{userId}", attendanceHandler.ByUser)
		r.Get("/attendance/user/{userId}/history", attendanceHandler.History)
		r.Put("/attendance/{id}", attendanceHandler.Override)

		// Reports
		r.Get("/reports/daily/{date}", reportsHandler.Daily)
		r.Get("/reports/user/{userId}", reportsHandler.User)

		// Cameras
		r.Get("/cameras", camerasHandler.List)
		r.Post("/cameras", camerasHandler.Create)
		r.Get("/cameras/active", camerasHandler.Active)
		r.Get("/cameras/defaults", camerasHandler.Defaults)
		r.Get("/cameras/{id}", camerasHandler.Get)
		r.Put("/cameras/{id}", camerasHandler.Update)
		r.Delete("/cameras/{id}", camerasHandler.Delete)
		r.Get("/cameras/{id}/snapshot", camerasHandler.Snapshot)

		// Config
		r.Get("/config", configHandler.Get)

		// Stats
		r.Get("/stats", statsHandler.Get)
		r.Post("/stats/rebuild-index", statsHandler.RebuildIndex)
	})
}
