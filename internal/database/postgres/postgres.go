package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	_ "github.com/lib/pq"
)

// applicationName identifies this service in pg_stat_activity.
const applicationName = "face-attendance"

// Pool wraps the connection pool shared by the repositories.
type Pool struct {
	db *sql.DB
}

// withApplicationName adds application_name to a URL or key=value connection
// string unless it is already set.
func withApplicationName(conn string) (string, error) {
	if strings.HasPrefix(conn, "postgres://") || strings.HasPrefix(conn, "postgresql://") {
		u, err := url.Parse(conn)
		if err != nil {
			return "", fmt.Errorf("invalid database URL: %w", err)
		}
		q := u.Query()
		if q.Get("application_name") == "" {
			q.Set("application_name", applicationName)
			u.RawQuery = q.Encode()
		}
		return u.String(), nil
	}
	if strings.Contains(conn, "application_name=") {
		return conn, nil
	}
	return strings.TrimSpace(conn + " application_name=" + applicationName), nil
}

// NewPool opens and pings a connection pool.
func NewPool(cfg *config.DatabaseConfig) (*Pool, error) {
	if cfg.URL == "" {
		return nil, errors.New("database URL is required")
	}
	conn, err := withApplicationName(cfg.URL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", conn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// QueryRow executes a query that returns a single row.
func (p *Pool) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return p.db.QueryRowContext(ctx, query, args...)
}

// Query executes a query that returns rows.
func (p *Pool) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return rows, nil
}

// Exec executes a query that doesn't return rows.
func (p *Pool) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	result, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing statement: %w", err)
	}
	return result, nil
}

// Backend is an initialized store: the pool and the repositories registered
// with the database package.
type Backend struct {
	Pool       *Pool
	Users      *UserRepository
	Attendance *AttendanceRepository
	Cameras    *CameraRepository
}

// NewBackend builds the repositories over pool and registers them as the
// active storage backend.
func NewBackend(pool *Pool) *Backend {
	b := &Backend{
		Pool:       pool,
		Users:      NewUserRepository(pool),
		Attendance: NewAttendanceRepository(pool),
		Cameras:    NewCameraRepository(pool),
	}
	database.RegisterPostgresBackend(
		func() database.UserWriter { return b.Users },
		func() database.AttendanceWriter { return b.Attendance },
		func() database.CameraWriter { return b.Cameras },
	)
	return b
}

// Close closes the underlying pool.
func (b *Backend) Close() error {
	return b.Pool.Close()
}

// Initialize connects, applies pending migrations and registers the
// repositories as the active storage backend.
func Initialize(ctx context.Context, cfg *config.DatabaseConfig) (*Backend, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("database URL is required")
	}

	pool, err := NewPool(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL pool: %w", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return NewBackend(pool), nil
}
