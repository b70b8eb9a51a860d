package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
)

// testNow is the fixed clock used by handler tests: 08:30 UTC, before the cutoff.
var testNow = time.Date(2024, 3, 15, 8, 30, 0, 0, time.UTC)

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Attendance: config.AttendanceConfig{
			MatchThreshold: 0.6,
			LateCutoff:     "09:00",
			Timezone:       "UTC",
			DescriptorDim:  4,
		},
		Cameras: config.CamerasConfig{
			SnapshotTimeout: 2 * time.Second,
			Defaults: config.CameraDefaultsByType{
				Webcam: config.CameraDefaults{Name: "Webcam", Location: "Entrance", Enabled: true, RefreshIntervalMs: 1000},
				IP:     config.CameraDefaults{Name: "IP Camera", Location: "Lobby", Enabled: true, Port: 80, StreamPath: "/snapshot.jpg", RefreshIntervalMs: 5000},
			},
		},
	}
}

// testBackend holds the mocks registered for one test
type testBackend struct {
	users   *mock.MockUserWriter
	records *mock.MockAttendanceWriter
	cameras *mock.MockCameraWriter
}

// setupBackend registers fresh mock repositories and resets them after the test
func setupBackend(t *testing.T) *testBackend {
	t.Helper()
	b := &testBackend{
		users:   mock.NewMockUserWriter(),
		records: mock.NewMockAttendanceWriter(),
		cameras: mock.NewMockCameraWriter(),
	}
	mock.Register(b.users, b.records, b.cameras)
	t.Cleanup(database.ResetForTesting)
	return b
}

// testService creates an attendance service over the registered store with a settable clock
func testService(t *testing.T, now *time.Time) *attendance.Service {
	t.Helper()
	policy, err := attendance.ParseCutoff("09:00", time.UTC)
	if err != nil {
		t.Fatalf("ParseCutoff: %v", err)
	}
	return attendance.NewService(database.AttendanceStore(), attendance.NewTracker(policy), func() time.Time { return *now })
}

// testUser returns a stored user with the given descriptor (nil for not enrolled)
func testUser(id, name string, descriptor []float32) database.StoredUser {
	u := database.StoredUser{
		ID:         id,
		Name:       name,
		Email:      id + "@example.com",
		Department: "Engineering",
		Role:       "Developer",
		Descriptor: descriptor,
		CreatedAt:  testNow,
		UpdatedAt:  testNow,
	}
	if descriptor != nil {
		at := testNow
		u.EnrolledAt = &at
	}
	return u
}

// jsonRequest creates a request with a JSON body
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
