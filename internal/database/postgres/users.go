package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

const userColumns = `id, name, email, department, role, profile_image, descriptor, enrolled_at, created_at, updated_at`

// UserRepository provides PostgreSQL-backed user storage with optional in-memory HNSW index.
type UserRepository struct {
	pool          *Pool
	hnswIndex     *database.HNSWIndex
	hnswEnabled   bool
	hnswIndexPath string // Path to persist HNSW index (optional)
	hnswMutations int    // Index changes since the last save
	hnswMu        sync.RWMutex
}

// NewUserRepository creates a new PostgreSQL user repository.
func NewUserRepository(pool *Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// descriptorParam converts a descriptor into a query argument, NULL when empty.
func descriptorParam(d []float32) any {
	if len(d) == 0 {
		return nil
	}
	return pgvector.NewVector(d)
}

func scanUserRow(scanner interface{ Scan(...any) error }, extraDest ...any) (database.StoredUser, error) {
	var u database.StoredUser
	var vec *pgvector.Vector
	var enrolledAt sql.NullTime

	dest := make([]any, 0, 10+len(extraDest))
	dest = append(dest,
		&u.ID,
		&u.Name,
		&u.Email,
		&u.Department,
		&u.Role,
		&u.ProfileImage,
		&vec,
		&enrolledAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	dest = append(dest, extraDest...)

	if err := scanner.Scan(dest...); err != nil {
		return u, fmt.Errorf("scan user: %w", err)
	}
	if vec != nil {
		u.Descriptor = vec.Slice()
	}
	if enrolledAt.Valid {
		t := enrolledAt.Time
		u.EnrolledAt = &t
	}
	return u, nil
}

func scanUsers(rows *sql.Rows) ([]database.StoredUser, error) {
	var users []database.StoredUser
	for rows.Next() {
		u, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// GetUser retrieves a user by ID.
func (r *UserRepository) GetUser(ctx context.Context, id string) (*database.StoredUser, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	u, err := scanUserRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers returns all users ordered by name.
func (r *UserRepository) ListUsers(ctx context.Context) ([]database.StoredUser, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+userColumns+" FROM users ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	return scanUsers(rows)
}

// ListEnrolled returns all users with a face template in one statement.
func (r *UserRepository) ListEnrolled(ctx context.Context) ([]database.StoredUser, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+userColumns+" FROM users WHERE descriptor IS NOT NULL ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("query enrolled users: %w", err)
	}
	defer rows.Close()

	return scanUsers(rows)
}

// CountUsers returns the number of users and how many have a template.
func (r *UserRepository) CountUsers(ctx context.Context) (int, int, error) {
	var total, enrolled int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*), COUNT(descriptor) FROM users").Scan(&total, &enrolled)
	if err != nil {
		return 0, 0, fmt.Errorf("count users: %w", err)
	}
	return total, enrolled, nil
}

// CreateUser inserts a new user.
func (r *UserRepository) CreateUser(ctx context.Context, user *database.StoredUser) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	if user.HasDescriptor() && user.EnrolledAt == nil {
		user.EnrolledAt = &now
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, name, email, department, role, profile_image, descriptor, enrolled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::vector, $8, $9, $10)
	`,
		user.ID,
		user.Name,
		user.Email,
		user.Department,
		user.Role,
		user.ProfileImage,
		descriptorParam(user.Descriptor),
		user.EnrolledAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", user.Email, database.ErrDuplicate)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	if user.HasDescriptor() {
		r.updateHNSWUser(user.ID, user.Descriptor)
	}
	return nil
}

// UpdateUser updates profile fields.
func (r *UserRepository) UpdateUser(ctx context.Context, user *database.StoredUser) error {
	user.UpdatedAt = time.Now()
	result, err := r.pool.Exec(ctx, `
		UPDATE users
		SET name = $2, email = $3, department = $4, role = $5, profile_image = $6, updated_at = $7
		WHERE id = $1
	`, user.ID, user.Name, user.Email, user.Department, user.Role, user.ProfileImage, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", user.Email, database.ErrDuplicate)
		}
		return fmt.Errorf("update user: %w", err)
	}
	return requireAffected(result)
}

// DeleteUser removes a user and its template.
func (r *UserRepository) DeleteUser(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}
	r.removeHNSWUser(id)
	return nil
}

// SetDescriptor replaces the face template of a user.
func (r *UserRepository) SetDescriptor(ctx context.Context, id string, descriptor []float32, enrolledAt time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET descriptor = $2::vector, enrolled_at = $3, updated_at = $3 WHERE id = $1
	`, id, descriptorParam(descriptor), enrolledAt)
	if err != nil {
		return fmt.Errorf("update descriptor: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}
	if len(descriptor) == 0 {
		r.removeHNSWUser(id)
	} else {
		r.updateHNSWUser(id, descriptor)
	}
	return nil
}

// requireAffected turns a zero-row update into database.ErrNotFound.
func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}

// FindLookalikes finds enrolled users near descriptor. The HNSW index is
// used when enabled, otherwise pgvector's L2 operator orders the candidates.
// Distances are always re-scored with facematch.EuclideanDistance.
func (r *UserRepository) FindLookalikes(
	ctx context.Context, descriptor []float32, excludeID string, maxDistance float64, limit int,
) ([]database.Lookalike, error) {
	if len(descriptor) == 0 || limit <= 0 {
		return nil, nil
	}
	if r.isHNSWEnabled() {
		return r.findLookalikesHNSW(ctx, descriptor, excludeID, maxDistance, limit)
	}
	return r.findLookalikesPostgres(ctx, descriptor, excludeID, maxDistance, limit)
}

func (r *UserRepository) findLookalikesHNSW(
	ctx context.Context, descriptor []float32, excludeID string, maxDistance float64, limit int,
) ([]database.Lookalike, error) {
	r.hnswMu.RLock()
	neighbors, err := r.hnswIndex.Within(descriptor, maxDistance, limit, excludeID)
	r.hnswMu.RUnlock()
	if err != nil {
		if errors.Is(err, database.ErrDimensionMismatch) {
			return nil, nil
		}
		return nil, fmt.Errorf("search HNSW index: %w", err)
	}

	var out []database.Lookalike
	for _, n := range neighbors {
		u, err := r.GetUser(ctx, n.UserID)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		d := facematch.EuclideanDistance(descriptor, u.Descriptor)
		if d >= maxDistance {
			continue
		}
		out = append(out, database.Lookalike{User: *u, Distance: d})
	}
	sortLookalikes(out)
	return out, nil
}

func (r *UserRepository) findLookalikesPostgres(
	ctx context.Context, descriptor []float32, excludeID string, maxDistance float64, limit int,
) ([]database.Lookalike, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE descriptor IS NOT NULL
		  AND id <> $2
		  AND vector_dims(descriptor) = $3
		ORDER BY descriptor <-> $1::vector
		LIMIT $4
	`, pgvector.NewVector(descriptor), excludeID, len(descriptor), limit*database.HNSWSearchMultiplier)
	if err != nil {
		return nil, fmt.Errorf("query lookalikes: %w", err)
	}
	defer rows.Close()

	users, err := scanUsers(rows)
	if err != nil {
		return nil, err
	}

	var out []database.Lookalike
	for _, u := range users {
		d := facematch.EuclideanDistance(descriptor, u.Descriptor)
		if d < maxDistance {
			out = append(out, database.Lookalike{User: u, Distance: d})
		}
	}
	sortLookalikes(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortLookalikes(l []database.Lookalike) {
	sort.SliceStable(l, func(i, j int) bool {
		if l[i].Distance != l[j].Distance {
			return l[i].Distance < l[j].Distance
		}
		return strings.Compare(l[i].User.ID, l[j].User.ID) < 0
	})
}

// isHNSWEnabled checks whether the HNSW index is active.
func (r *UserRepository) isHNSWEnabled() bool {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	return r.hnswEnabled && r.hnswIndex != nil
}

// updateHNSWUser replaces a user's descriptor in the HNSW index.
func (r *UserRepository) updateHNSWUser(id string, descriptor []float32) {
	if !r.isHNSWEnabled() {
		return
	}
	r.hnswMu.Lock()
	if err := r.hnswIndex.Add(id, descriptor); err != nil {
		fmt.Printf("User index: skipping %s: %v\n", id, err)
		r.hnswMu.Unlock()
		return
	}
	r.hnswMu.Unlock()
	r.noteHNSWMutation()
}

// removeHNSWUser drops a user from the HNSW index.
func (r *UserRepository) removeHNSWUser(id string) {
	if !r.isHNSWEnabled() {
		return
	}
	r.hnswMu.Lock()
	r.hnswIndex.Delete(id)
	r.hnswMu.Unlock()
	r.noteHNSWMutation()
}

// noteHNSWMutation persists the index every constants.HNSWSaveInterval changes.
func (r *UserRepository) noteHNSWMutation() {
	r.hnswMu.Lock()
	r.hnswMutations++
	due := r.hnswIndexPath != "" && r.hnswMutations >= constants.HNSWSaveInterval
	if due {
		r.hnswMutations = 0
	}
	r.hnswMu.Unlock()

	if due {
		if err := r.SaveHNSWIndex(); err != nil {
			fmt.Printf("Warning: failed to save user index: %v\n", err)
		}
	}
}

// enrollmentStats returns the enrolled count and latest enrollment time.
func (r *UserRepository) enrollmentStats(ctx context.Context) (int64, time.Time, error) {
	var count int64
	var last sql.NullTime
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*), MAX(enrolled_at) FROM users WHERE descriptor IS NOT NULL",
	).Scan(&count, &last)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to get enrollment stats: %w", err)
	}
	return count, last.Time, nil
}

// tryLoadUserIndex attempts to load a fresh user index from disk.
func (r *UserRepository) tryLoadUserIndex(indexPath string, count int64, last time.Time) bool {
	metadata, err := database.LoadHNSWMetadata(indexPath)
	if err != nil {
		fmt.Printf("User index: metadata file error: %v (will rebuild)\n", err)
		return false
	}
	if !metadata.Matches(count, last) {
		fmt.Printf("User index: stale (db: count=%d, cached: count=%d) (will rebuild)\n", count, metadata.UserCount)
		return false
	}

	index := database.NewHNSWIndex()
	if err := index.Load(indexPath); err != nil {
		fmt.Printf("User index: failed to load: %v (will rebuild)\n", err)
		return false
	}
	if index.IsEmpty() {
		fmt.Printf("User index: loaded graph is empty (will rebuild)\n")
		return false
	}
	r.hnswIndex = index
	fmt.Printf("User index: loaded from disk (fresh)\n")
	return true
}

// EnableHNSW loads or builds the in-memory HNSW index used for lookalike checks.
// If indexPath is provided, it will try to load from disk first and save after building.
// This should be called once at startup.
func (r *UserRepository) EnableHNSW(ctx context.Context, indexPath string) error {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()

	r.hnswIndexPath = indexPath

	count, last, err := r.enrollmentStats(ctx)
	if err != nil {
		return err
	}

	if indexPath != "" && r.tryLoadUserIndex(indexPath, count, last) {
		r.hnswEnabled = true
		return nil
	}

	users, err := r.ListEnrolled(ctx)
	if err != nil {
		return fmt.Errorf("failed to load enrolled users: %w", err)
	}

	r.hnswIndex = database.NewHNSWIndex()
	r.hnswIndex.SetPath(indexPath)
	if err := r.hnswIndex.BuildFromUsers(users); err != nil {
		return fmt.Errorf("failed to build HNSW index: %w", err)
	}

	if indexPath != "" && len(users) > 0 {
		metadata := database.HNSWIndexMetadata{UserCount: count, LastEnrolled: last}
		if err := r.hnswIndex.SaveWithMetadata(indexPath, metadata); err != nil {
			fmt.Printf("Warning: failed to save HNSW index to disk: %v\n", err)
		}
	}

	r.hnswEnabled = true
	return nil
}

// DisableHNSW disables the in-memory HNSW index, falling back to PostgreSQL queries.
func (r *UserRepository) DisableHNSW() {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()
	r.hnswEnabled = false
	r.hnswIndex = nil
}

// IsHNSWEnabled returns whether the in-memory HNSW index is enabled.
func (r *UserRepository) IsHNSWEnabled() bool {
	return r.isHNSWEnabled()
}

// HNSWCount returns the number of users in the HNSW index.
func (r *UserRepository) HNSWCount() int {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswIndex == nil {
		return 0
	}
	return r.hnswIndex.Count()
}

// RebuildHNSW rebuilds the HNSW index from PostgreSQL data.
func (r *UserRepository) RebuildHNSW(ctx context.Context) error {
	r.hnswMu.RLock()
	indexPath := r.hnswIndexPath
	r.hnswMu.RUnlock()
	return r.EnableHNSW(ctx, indexPath)
}

// SaveHNSWIndex saves the current HNSW index to disk (if path configured).
func (r *UserRepository) SaveHNSWIndex() error {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()

	if r.hnswIndexPath == "" {
		fmt.Println("User index save: no path configured, skipping")
		return nil // No path configured, nothing to save
	}
	if r.hnswIndex == nil {
		fmt.Println("User index save: no index in memory, skipping")
		return nil // No index to save
	}

	count, last, err := r.enrollmentStats(context.Background())
	if err != nil {
		return err
	}

	metadata := database.HNSWIndexMetadata{UserCount: count, LastEnrolled: last}
	if err := r.hnswIndex.SaveWithMetadata(r.hnswIndexPath, metadata); err != nil {
		return fmt.Errorf("saving HNSW user index: %w", err)
	}

	fmt.Printf("User index save: saved successfully (count=%d)\n", count)
	return nil
}
