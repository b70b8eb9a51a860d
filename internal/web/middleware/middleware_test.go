package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRequireToken(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		header   string
		query    string
		expected int
	}{
		{"disabled", "", "", "", http.StatusOK},
		{"valid header", "secret", "Bearer secret", "", http.StatusOK},
		{"wrong header", "secret", "Bearer nope", "", http.StatusUnauthorized},
		{"basic scheme", "secret", "Basic secret", "", http.StatusUnauthorized},
		{"missing", "secret", "", "", http.StatusUnauthorized},
		{"query param", "secret", "", "secret", http.StatusOK},
		{"wrong query param", "secret", "", "other", http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := "/api/v1/users"
			if tc.query != "" {
				path += "?token=" + tc.query
			}
			req := httptest.NewRequest("GET", path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			recorder := httptest.NewRecorder()

			RequireToken(tc.token)(okHandler).ServeHTTP(recorder, req)

			if recorder.Code != tc.expected {
				t.Errorf("expected status %d, got %d", tc.expected, recorder.Code)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://kiosk.example.com", " "})(okHandler)

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"https://kiosk.example.com", true},
		{"http://localhost:5173", true},
		{"https://evil.example.com", false},
		{"", false},
	}

	for _, tc := range tests {
		req := httptest.NewRequest("GET", "/api/v1/health", nil)
		if tc.origin != "" {
			req.Header.Set("Origin", tc.origin)
		}
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)

		got := recorder.Header().Get("Access-Control-Allow-Origin")
		if tc.allowed && got != tc.origin {
			t.Errorf("origin %q: expected allowed, got %q", tc.origin, got)
		}
		if !tc.allowed && got != "" {
			t.Errorf("origin %q: expected no CORS header, got %q", tc.origin, got)
		}
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	handler := CORS(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/attendance/mark", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Errorf("expected 200 for preflight, got %d", recorder.Code)
	}
	if called {
		t.Error("preflight should not reach the next handler")
	}
}

func TestRateLimit(t *testing.T) {
	handler := RateLimit(1, 2)(okHandler)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/api/v1/recognition/identify", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)
		codes = append(codes, recorder.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("expected burst of 2 to pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected third request to be limited, got %d", codes[2])
	}

	// A different client has its own bucket.
	req := httptest.NewRequest("POST", "/api/v1/recognition/identify", nil)
	req.RemoteAddr = "10.0.0.2:5000"
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Errorf("expected other client to pass, got %d", recorder.Code)
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	handler := RateLimit(0, 0)(okHandler)
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest("POST", "/", nil)
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)
		if recorder.Code != http.StatusOK {
			t.Fatalf("request %d limited with limiting disabled", i)
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	recorder := httptest.NewRecorder()
	SecurityHeaders()(okHandler).ServeHTTP(recorder, req)

	if recorder.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected nosniff header")
	}
	if recorder.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("expected DENY frame options")
	}
}

func TestClientRateLimiter_EvictsIdleClients(t *testing.T) {
	start := time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC)
	now := start
	l := NewClientRateLimiter(1, 1)
	l.now = func() time.Time { return now }

	a := l.Limiter("10.0.0.1")
	l.Limiter("10.0.0.2")
	l.Limiter("10.0.0.3")
	if l.Len() != 3 {
		t.Fatalf("expected 3 clients, got %d", l.Len())
	}

	now = start.Add(2 * time.Minute)
	if l.Limiter("10.0.0.1") != a {
		t.Error("active client should keep its bucket")
	}

	now = start.Add(4 * time.Minute)
	l.Limiter("10.0.0.4")
	if got := l.Len(); got != 2 {
		t.Errorf("expected idle clients to be swept, %d remain", got)
	}
	if l.Limiter("10.0.0.1") != a {
		t.Error("client seen within the TTL was evicted")
	}
}
