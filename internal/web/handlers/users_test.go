package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/database"
)

func TestUsersHandler_List(t *testing.T) {
	b := setupBackend(t)
	b.users.AddUser(testUser("u1", "Jiří Novák", []float32{0, 0, 0, 0}))
	b.users.AddUser(testUser("u2", "Alice Smith", nil))
	sales := testUser("u3", "Bob Jones", nil)
	sales.Department = "Sales"
	b.users.AddUser(sales)

	handler := NewUsersHandler(testConfig())

	tests := []struct {
		name     string
		query    string
		expected []string
	}{
		{"all", "", []string{"u2", "u3", "u1"}},
		{"diacritic-insensitive name", "?q=jiri", []string{"u1"}},
		{"department", "?department=sales", []string{"u3"}},
		{"no match", "?q=nobody", []string{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.List(recorder, httptest.NewRequest("GET", "/api/v1/users"+tc.query, nil))

			assertStatusCode(t, recorder, http.StatusOK)
			var result []UserResponse
			parseJSONResponse(t, recorder, &result)
			if len(result) != len(tc.expected) {
				t.Fatalf("expected %d users, got %d", len(tc.expected), len(result))
			}
			for i, id := range tc.expected {
				if result[i].ID != id {
					t.Errorf("expected user %s at %d, got %s", id, i, result[i].ID)
				}
			}
		})
	}
}

func TestUsersHandler_List_StorageUnavailable(t *testing.T) {
	database.ResetForTesting()
	handler := NewUsersHandler(testConfig())

	recorder := httptest.NewRecorder()
	handler.List(recorder, httptest.NewRequest("GET", "/api/v1/users", nil))

	assertStatusCode(t, recorder, http.StatusInternalServerError)
	assertJSONError(t, recorder, "user storage not available")
}

func TestUsersHandler_Get(t *testing.T) {
	b := setupBackend(t)
	b.users.AddUser(testUser("u1", "Alice", []float32{0.1, 0.2, 0.3, 0.4}))
	handler := NewUsersHandler(testConfig())

	req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/users/u1", nil), map[string]string{"id": "u1"})
	recorder := httptest.NewRecorder()
	handler.Get(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result map[string]any
	parseJSONResponse(t, recorder, &result)
	if result["name"] != "Alice" {
		t.Errorf("expected name 'Alice', got %v", result["name"])
	}
	if result["enrolled"] != true {
		t.Error("expected enrolled user")
	}
	if _, ok := result["descriptor"]; ok {
		t.Error("descriptor must not be serialized")
	}
}

func TestUsersHandler_Get_NotFound(t *testing.T) {
	setupBackend(t)
	handler := NewUsersHandler(testConfig())

	req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/users/missing", nil), map[string]string{"id": "missing"})
	recorder := httptest.NewRecorder()
	handler.Get(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)
	assertJSONError(t, recorder, "user not found")
}

func TestUsersHandler_Create(t *testing.T) {
	b := setupBackend(t)
	handler := NewUsersHandler(testConfig())

	body := map[string]any{
		"name":       " Alice ",
		"email":      "alice@example.com",
		"department": "Engineering",
		"role":       "Developer",
		"descriptor": []float32{0.1, 0.2, 0.3, 0.4},
	}
	recorder := httptest.NewRecorder()
	handler.Create(recorder, jsonRequest(t, "POST", "/api/v1/users", body))

	assertStatusCode(t, recorder, http.StatusCreated)
	var result UserResponse
	parseJSONResponse(t, recorder, &result)
	if result.ID == "" {
		t.Fatal("expected generated ID")
	}
	if result.Name != "Alice" {
		t.Errorf("expected trimmed name 'Alice', got '%s'", result.Name)
	}
	if !result.Enrolled || result.EnrolledAt == nil {
		t.Error("expected user created with a descriptor to be enrolled")
	}

	stored, err := b.users.GetUser(t.Context(), result.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if len(stored.Descriptor) != 4 {
		t.Errorf("expected stored descriptor, got %v", stored.Descriptor)
	}
}

func TestUsersHandler_Create_Validation(t *testing.T) {
	setupBackend(t)
	handler := NewUsersHandler(testConfig())

	tests := []struct {
		name     string
		body     map[string]any
		expected string
	}{
		{
			name:     "missing role",
			body:     map[string]any{"name": "A", "email": "a@example.com", "department": "D"},
			expected: "name, email, department and role are required",
		},
		{
			name:     "invalid email",
			body:     map[string]any{"name": "A", "email": "not-an-email", "department": "D", "role": "R"},
			expected: "invalid email address",
		},
		{
			name:     "wrong descriptor length",
			body:     map[string]any{"name": "A", "email": "a@example.com", "department": "D", "role": "R", "descriptor": []float32{1, 2}},
			expected: "descriptor must contain 4 finite values",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.Create(recorder, jsonRequest(t, "POST", "/api/v1/users", tc.body))

			assertStatusCode(t, recorder, http.StatusBadRequest)
			assertJSONError(t, recorder, tc.expected)
		})
	}
}

func TestUsersHandler_Create_InvalidJSON(t *testing.T) {
	setupBackend(t)
	handler := NewUsersHandler(testConfig())

	req := httptest.NewRequest("POST", "/api/v1/users", nil)
	recorder := httptest.NewRecorder()
	handler.Create(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, errInvalidRequestBody)
}

func TestUsersHandler_Create_DuplicateEmail(t *testing.T) {
	b := setupBackend(t)
	b.users.AddUser(testUser("u1", "Alice", nil))
	handler := NewUsersHandler(testConfig())

	body := map[string]any{"name": "Other", "email": "U1@example.com", "department": "D", "role": "R"}
	recorder := httptest.NewRecorder()
	handler.Create(recorder, jsonRequest(t, "POST", "/api/v1/users", body))

	assertStatusCode(t, recorder, http.StatusConflict)
}

func TestUsersHandler_Update(t *testing.T) {
	b := setupBackend(t)
	b.users.AddUser(testUser("u1", "Alice", []float32{0.1, 0.2, 0.3, 0.4}))
	handler := NewUsersHandler(testConfig())

	body := map[string]any{
		"name":       "Alice Cooper",
		"email":      "alice@example.com",
		"department": "Sales",
		"role":       "Manager",
		"descriptor": []float32{9, 9, 9, 9},
	}
	req := requestWithChiParams(jsonRequest(t, "PUT", "/api/v1/users/u1", body), map[string]string{"id": "u1"})
	recorder := httptest.NewRecorder()
	handler.Update(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result UserResponse
	parseJSONResponse(t, recorder, &result)
	if result.Name != "Alice Cooper" || result.Department != "Sales" {
		t.Errorf("unexpected user after update: %+v", result)
	}

	stored, _ := b.users.GetUser(t.Context(), "u1")
	if stored.Descriptor[0] != 0.1 {
		t.Error("update must not change the descriptor")
	}
}

func TestUsersHandler_Update_NotFound(t *testing.T) {
	setupBackend(t)
	handler := NewUsersHandler(testConfig())

	body := map[string]any{"name": "A", "email": "a@example.com", "department": "D", "role": "R"}
	req := requestWithChiParams(jsonRequest(t, "PUT", "/api/v1/users/missing", body), map[string]string{"id": "missing"})
	recorder := httptest.NewRecorder()
	handler.Update(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestUsersHandler_Delete(t *testing.T) {
	b := setupBackend(t)
	b.users.AddUser(testUser("u1", "Alice", nil))
	handler := NewUsersHandler(testConfig())

	req := requestWithChiParams(httptest.NewRequest("DELETE", "/api/v1/users/u1", nil), map[string]string{"id": "u1"})
	recorder := httptest.NewRecorder()
	handler.Delete(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	if _, err := b.users.GetUser(t.Context(), "u1"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected user to be deleted, got %v", err)
	}
}

func TestUsersHandler_Delete_StorageError(t *testing.T) {
	b := setupBackend(t)
	b.users.DeleteError = errors.New("connection reset")
	handler := NewUsersHandler(testConfig())

	req := requestWithChiParams(httptest.NewRequest("DELETE", "/api/v1/users/u1", nil), map[string]string{"id": "u1"})
	recorder := httptest.NewRecorder()
	handler.Delete(recorder, req)

	assertStatusCode(t, recorder, http.StatusInternalServerError)
	assertJSONError(t, recorder, "failed to delete user")
}

func TestUsersHandler_Lookalikes(t *testing.T) {
	b := setupBackend(t)
	b.users.AddUser(testUser("u1", "Alice", []float32{0, 0, 0, 0}))
	b.users.AddUser(testUser("u2", "Twin", []float32{0.3, 0, 0, 0}))
	b.users.AddUser(testUser("u3", "Far", []float32{1, 1, 1, 1}))
	b.users.AddUser(testUser("u4", "Not enrolled", nil))
	handler := NewUsersHandler(testConfig())

	req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/users/u1/lookalikes", nil), map[string]string{"id": "u1"})
	recorder := httptest.NewRecorder()
	handler.Lookalikes(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result []LookalikeResponse
	parseJSONResponse(t, recorder, &result)
	if len(result) != 1 {
		t.Fatalf("expected 1 lookalike, got %d", len(result))
	}
	if result[0].User.ID != "u2" {
		t.Errorf("expected lookalike u2, got %s", result[0].User.ID)
	}
	if d := result[0].Distance; d < 0.2999 || d > 0.3001 {
		t.Errorf("expected distance 0.3, got %v", d)
	}
	if c := result[0].Confidence; c < 0.6999 || c > 0.7001 {
		t.Errorf("expected confidence 0.7, got %v", c)
	}
}

func TestUsersHandler_Lookalikes_NoFaceData(t *testing.T) {
	b := setupBackend(t)
	b.users.AddUser(testUser("u1", "Alice", nil))
	handler := NewUsersHandler(testConfig())

	req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/users/u1/lookalikes", nil), map[string]string{"id": "u1"})
	recorder := httptest.NewRecorder()
	handler.Lookalikes(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "user has no face data")
}
