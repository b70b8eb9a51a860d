package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
)

// openStorage connects to PostgreSQL, runs migrations and registers the
// repositories with the database package.
func openStorage(cfg *config.Config) (*postgres.Backend, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	backend, err := postgres.Initialize(context.Background(), &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	return backend, nil
}

// attendancePolicy builds the late-cutoff policy from configuration.
func attendancePolicy(cfg *config.Config) (attendance.Policy, error) {
	loc, err := cfg.Attendance.Location()
	if err != nil {
		return attendance.Policy{}, fmt.Errorf("invalid ATTENDANCE_TIMEZONE: %w", err)
	}
	policy, err := attendance.ParseCutoff(cfg.Attendance.LateCutoff, loc)
	if err != nil {
		return attendance.Policy{}, fmt.Errorf("invalid LATE_CUTOFF: %w", err)
	}
	return policy, nil
}

// newAttendanceService builds the serialized attendance service over the
// registered store.
func newAttendanceService(cfg *config.Config) (*attendance.Service, error) {
	policy, err := attendancePolicy(cfg)
	if err != nil {
		return nil, err
	}
	return attendance.NewService(database.AttendanceStore(), attendance.NewTracker(policy), time.Now), nil
}

// loadRoster builds the roster of date, absent users included.
func loadRoster(ctx context.Context, b *postgres.Backend, date string) ([]attendance.RosterEntry, error) {
	users, err := b.Users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	records, err := b.Attendance.ListByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance: %w", err)
	}
	people := make([]attendance.Person, len(users))
	for i, u := range users {
		people[i] = attendance.Person{ID: u.ID, Name: u.Name, Department: u.Department}
	}
	return attendance.DailyRoster(date, people, records), nil
}
