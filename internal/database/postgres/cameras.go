package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/database"
)

const cameraColumns = `id, name, type, location, enabled, ip_address, port, username, password,
	stream_path, refresh_interval_ms, created_at, updated_at`

// CameraRepository provides PostgreSQL-backed camera configuration storage.
type CameraRepository struct {
	pool *Pool
}

// NewCameraRepository creates a new PostgreSQL camera repository.
func NewCameraRepository(pool *Pool) *CameraRepository {
	return &CameraRepository{pool: pool}
}

func scanCameraRow(scanner interface{ Scan(...any) error }) (database.StoredCamera, error) {
	var c database.StoredCamera
	err := scanner.Scan(
		&c.ID,
		&c.Name,
		&c.Type,
		&c.Location,
		&c.Enabled,
		&c.IPAddress,
		&c.Port,
		&c.Username,
		&c.Password,
		&c.StreamPath,
		&c.RefreshIntervalMs,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return c, fmt.Errorf("scan camera: %w", err)
	}
	return c, nil
}

func (r *CameraRepository) listCameras(ctx context.Context, where string) ([]database.StoredCamera, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+cameraColumns+" FROM cameras "+where+" ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("query cameras: %w", err)
	}
	defer rows.Close()

	var cameras []database.StoredCamera
	for rows.Next() {
		c, err := scanCameraRow(rows)
		if err != nil {
			return nil, err
		}
		cameras = append(cameras, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cameras: %w", err)
	}
	return cameras, nil
}

// GetCamera retrieves a camera by ID.
func (r *CameraRepository) GetCamera(ctx context.Context, id string) (*database.StoredCamera, error) {
	c, err := scanCameraRow(r.pool.QueryRow(ctx, "SELECT "+cameraColumns+" FROM cameras WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCameras returns all cameras.
func (r *CameraRepository) ListCameras(ctx context.Context) ([]database.StoredCamera, error) {
	return r.listCameras(ctx, "")
}

// ListActiveCameras returns enabled cameras.
func (r *CameraRepository) ListActiveCameras(ctx context.Context) ([]database.StoredCamera, error) {
	return r.listCameras(ctx, "WHERE enabled")
}

// CreateCamera inserts a camera.
func (r *CameraRepository) CreateCamera(ctx context.Context, c *database.StoredCamera) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := r.pool.Exec(ctx, `
		INSERT INTO cameras (id, name, type, location, enabled, ip_address, port, username, password,
		                     stream_path, refresh_interval_ms, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		c.ID, c.Name, c.Type, c.Location, c.Enabled, c.IPAddress, c.Port, c.Username, c.Password,
		c.StreamPath, c.RefreshIntervalMs, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("camera %s: %w", c.ID, database.ErrDuplicate)
		}
		return fmt.Errorf("insert camera: %w", err)
	}
	return nil
}

// UpdateCamera updates all fields of a camera.
func (r *CameraRepository) UpdateCamera(ctx context.Context, c *database.StoredCamera) error {
	c.UpdatedAt = time.Now()
	result, err := r.pool.Exec(ctx, `
		UPDATE cameras
		SET name = $2, type = $3, location = $4, enabled = $5, ip_address = $6, port = $7,
		    username = $8, password = $9, stream_path = $10, refresh_interval_ms = $11, updated_at = $12
		WHERE id = $1
	`,
		c.ID, c.Name, c.Type, c.Location, c.Enabled, c.IPAddress, c.Port,
		c.Username, c.Password, c.StreamPath, c.RefreshIntervalMs, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update camera: %w", err)
	}
	return requireAffected(result)
}

// DeleteCamera removes a camera.
func (r *CameraRepository) DeleteCamera(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, "DELETE FROM cameras WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete camera: %w", err)
	}
	return requireAffected(result)
}
