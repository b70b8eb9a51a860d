// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// MockUserWriter is a mock implementation of database.UserWriter
type MockUserWriter struct {
	mu    sync.RWMutex
	users map[string]*database.StoredUser

	// Error injection
	GetError           error
	ListError          error
	ListEnrolledError  error
	CountError         error
	LookalikesError    error
	CreateError        error
	UpdateError        error
	DeleteError        error
	SetDescriptorError error
}

// NewMockUserWriter creates a new mock user writer
func NewMockUserWriter() *MockUserWriter {
	return &MockUserWriter{
		users: make(map[string]*database.StoredUser),
	}
}

// AddUser adds a user to the mock store
func (m *MockUserWriter) AddUser(user database.StoredUser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = &user
}

func copyUser(u *database.StoredUser) database.StoredUser {
	c := *u
	if u.Descriptor != nil {
		c.Descriptor = append([]float32(nil), u.Descriptor...)
	}
	return c
}

// sortedUsers returns copies of the stored users ordered by name then ID.
func (m *MockUserWriter) sortedUsers(filter func(*database.StoredUser) bool) []database.StoredUser {
	var out []database.StoredUser
	for _, u := range m.users {
		if filter == nil || filter(u) {
			out = append(out, copyUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GetUser retrieves a user by ID
func (m *MockUserWriter) GetUser(ctx context.Context, id string) (*database.StoredUser, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	c := copyUser(u)
	return &c, nil
}

// ListUsers returns all users
func (m *MockUserWriter) ListUsers(ctx context.Context) ([]database.StoredUser, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedUsers(nil), nil
}

// ListEnrolled returns users with a descriptor
func (m *MockUserWriter) ListEnrolled(ctx context.Context) ([]database.StoredUser, error) {
	if m.ListEnrolledError != nil {
		return nil, m.ListEnrolledError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedUsers(func(u *database.StoredUser) bool { return u.HasDescriptor() }), nil
}

// CountUsers returns total and enrolled counts
func (m *MockUserWriter) CountUsers(ctx context.Context) (int, int, error) {
	if m.CountError != nil {
		return 0, 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	enrolled := 0
	for _, u := range m.users {
		if u.HasDescriptor() {
			enrolled++
		}
	}
	return len(m.users), enrolled, nil
}

// FindLookalikes scans all enrolled users linearly
func (m *MockUserWriter) FindLookalikes(
	ctx context.Context, descriptor []float32, excludeID string, maxDistance float64, limit int,
) ([]database.Lookalike, error) {
	if m.LookalikesError != nil {
		return nil, m.LookalikesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.Lookalike
	for _, u := range m.sortedUsers(func(u *database.StoredUser) bool { return u.HasDescriptor() && u.ID != excludeID }) {
		if d := facematch.EuclideanDistance(descriptor, u.Descriptor); d < maxDistance {
			out = append(out, database.Lookalike{User: u, Distance: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CreateUser stores a user, rejecting duplicate emails
func (m *MockUserWriter) CreateUser(ctx context.Context, user *database.StoredUser) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return fmt.Errorf("user %s: %w", user.Email, database.ErrDuplicate)
		}
	}
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
	c := copyUser(user)
	m.users[user.ID] = &c
	return nil
}

// UpdateUser updates profile fields
func (m *MockUserWriter) UpdateUser(ctx context.Context, user *database.StoredUser) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[user.ID]
	if !ok {
		return database.ErrNotFound
	}
	for id, u := range m.users {
		if id != user.ID && strings.EqualFold(u.Email, user.Email) {
			return fmt.Errorf("user %s: %w", user.Email, database.ErrDuplicate)
		}
	}
	user.UpdatedAt = time.Now()
	existing.Name = user.Name
	existing.Email = user.Email
	existing.Department = user.Department
	existing.Role = user.Role
	existing.ProfileImage = user.ProfileImage
	existing.UpdatedAt = user.UpdatedAt
	return nil
}

// DeleteUser removes a user
func (m *MockUserWriter) DeleteUser(ctx context.Context, id string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return database.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

// SetDescriptor replaces a user's template
func (m *MockUserWriter) SetDescriptor(ctx context.Context, id string, descriptor []float32, enrolledAt time.Time) error {
	if m.SetDescriptorError != nil {
		return m.SetDescriptorError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return database.ErrNotFound
	}
	u.Descriptor = append([]float32(nil), descriptor...)
	u.EnrolledAt = &enrolledAt
	u.UpdatedAt = enrolledAt
	return nil
}

// MockAttendanceWriter is a mock implementation of database.AttendanceWriter.
// Create and CloseOut behave like the conditional writes of the real store.
type MockAttendanceWriter struct {
	mu      sync.RWMutex
	records map[string]*attendance.Record // keyed by ID
	keys    map[string]string             // user|date -> ID

	// Error injection
	GetError      error
	ListError     error
	CreateError   error
	CloseOutError error
	ReplaceError  error
}

// NewMockAttendanceWriter creates a new mock attendance writer
func NewMockAttendanceWriter() *MockAttendanceWriter {
	return &MockAttendanceWriter{
		records: make(map[string]*attendance.Record),
		keys:    make(map[string]string),
	}
}

func recordKey(userID, date string) string {
	return userID + "|" + date
}

// AddRecord adds a record to the mock store
func (m *MockAttendanceWriter) AddRecord(rec attendance.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := rec.Clone()
	m.records[c.ID] = c
	m.keys[recordKey(c.UserID, c.Date)] = c.ID
}

// Get returns the record for (userID, date)
func (m *MockAttendanceWriter) Get(ctx context.Context, userID, date string) (*attendance.Record, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.keys[recordKey(userID, date)]
	if !ok {
		return nil, nil
	}
	return m.records[id].Clone(), nil
}

// GetRecord returns a record by ID
func (m *MockAttendanceWriter) GetRecord(ctx context.Context, id string) (*attendance.Record, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *MockAttendanceWriter) list(filter func(*attendance.Record) bool) []*attendance.Record {
	var out []*attendance.Record
	for _, r := range m.records {
		if filter(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].TimeIn.Before(*out[j].TimeIn)
	})
	return out
}

// ListByDate returns the records of a date, or all records for an empty date
func (m *MockAttendanceWriter) ListByDate(ctx context.Context, date string) ([]*attendance.Record, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.list(func(r *attendance.Record) bool { return date == "" || r.Date == date }), nil
}

// ListByUser returns a user's records within [from, to]
func (m *MockAttendanceWriter) ListByUser(ctx context.Context, userID, from, to string) ([]*attendance.Record, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.list(func(r *attendance.Record) bool {
		return r.UserID == userID && (from == "" || r.Date >= from) && (to == "" || r.Date <= to)
	}), nil
}

// Create inserts a record unless the key is taken
func (m *MockAttendanceWriter) Create(ctx context.Context, rec *attendance.Record) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := recordKey(rec.UserID, rec.Date)
	if _, ok := m.keys[key]; ok {
		return attendance.ErrConflict
	}
	m.records[rec.ID] = rec.Clone()
	m.keys[key] = rec.ID
	return nil
}

// CloseOut sets the time-out if it is still empty
func (m *MockAttendanceWriter) CloseOut(ctx context.Context, rec *attendance.Record) error {
	if m.CloseOutError != nil {
		return m.CloseOutError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.records[rec.ID]
	if !ok || cur.TimeOut != nil {
		return attendance.ErrConflict
	}
	out := *rec.TimeOut
	cur.TimeOut = &out
	cur.UpdatedAt = rec.UpdatedAt
	return nil
}

// Replace overwrites an existing record
func (m *MockAttendanceWriter) Replace(ctx context.Context, rec *attendance.Record) error {
	if m.ReplaceError != nil {
		return m.ReplaceError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.records[rec.ID]
	if !ok {
		return database.ErrNotFound
	}
	next := rec.Clone()
	next.UserID = cur.UserID
	next.Date = cur.Date
	next.CreatedAt = cur.CreatedAt
	m.records[rec.ID] = next
	return nil
}

// MockCameraWriter is a mock implementation of database.CameraWriter
type MockCameraWriter struct {
	mu      sync.RWMutex
	cameras map[string]*database.StoredCamera

	// Error injection
	GetError    error
	ListError   error
	CreateError error
	UpdateError error
	DeleteError error
}

// NewMockCameraWriter creates a new mock camera writer
func NewMockCameraWriter() *MockCameraWriter {
	return &MockCameraWriter{
		cameras: make(map[string]*database.StoredCamera),
	}
}

// AddCamera adds a camera to the mock store
func (m *MockCameraWriter) AddCamera(camera database.StoredCamera) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cameras[camera.ID] = &camera
}

// GetCamera retrieves a camera by ID
func (m *MockCameraWriter) GetCamera(ctx context.Context, id string) (*database.StoredCamera, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cameras[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MockCameraWriter) list(activeOnly bool) []database.StoredCamera {
	var out []database.StoredCamera
	for _, c := range m.cameras {
		if !activeOnly || c.Enabled {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListCameras returns all cameras
func (m *MockCameraWriter) ListCameras(ctx context.Context) ([]database.StoredCamera, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.list(false), nil
}

// ListActiveCameras returns enabled cameras
func (m *MockCameraWriter) ListActiveCameras(ctx context.Context) ([]database.StoredCamera, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.list(true), nil
}

// CreateCamera stores a camera
func (m *MockCameraWriter) CreateCamera(ctx context.Context, camera *database.StoredCamera) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if camera.ID == "" {
		camera.ID = uuid.NewString()
	}
	now := time.Now()
	camera.CreatedAt = now
	camera.UpdatedAt = now
	c := *camera
	m.cameras[camera.ID] = &c
	return nil
}

// UpdateCamera replaces a camera
func (m *MockCameraWriter) UpdateCamera(ctx context.Context, camera *database.StoredCamera) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.cameras[camera.ID]
	if !ok {
		return database.ErrNotFound
	}
	camera.CreatedAt = existing.CreatedAt
	camera.UpdatedAt = time.Now()
	c := *camera
	m.cameras[camera.ID] = &c
	return nil
}

// DeleteCamera removes a camera
func (m *MockCameraWriter) DeleteCamera(ctx context.Context, id string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cameras[id]; !ok {
		return database.ErrNotFound
	}
	delete(m.cameras, id)
	return nil
}

// Register installs the given mocks as the active backend. Nil mocks are
// replaced with empty ones.
func Register(users *MockUserWriter, records *MockAttendanceWriter, cameras *MockCameraWriter) {
	if users == nil {
		users = NewMockUserWriter()
	}
	if records == nil {
		records = NewMockAttendanceWriter()
	}
	if cameras == nil {
		cameras = NewMockCameraWriter()
	}
	database.RegisterPostgresBackend(
		func() database.UserWriter { return users },
		func() database.AttendanceWriter { return records },
		func() database.CameraWriter { return cameras },
	)
}
