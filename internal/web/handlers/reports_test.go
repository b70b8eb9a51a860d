package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/report"
	"github.com/xuri/excelize/v2"
)

func newTestReportsHandler(t *testing.T) (*ReportsHandler, *testBackend) {
	t.Helper()
	b := setupBackend(t)
	now := testNow
	return NewReportsHandler(testConfig(), testService(t, &now)), b
}

func openWorkbook(t *testing.T, recorder *httptest.ResponseRecorder) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(recorder.Body.Bytes()))
	if err != nil {
		t.Fatalf("response is not a workbook: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestReportsHandler_Daily(t *testing.T) {
	handler, b := newTestReportsHandler(t)
	b.users.AddUser(testUser("u1", "Alice", nil))
	b.users.AddUser(testUser("u2", "Bob", nil))
	b.records.AddRecord(storedRecord("r1", "u2", "2024-03-15", testNow, timePtr(testNow.Add(8*time.Hour)), attendance.StatusPresent))

	req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/reports/daily/2024-03-15", nil), map[string]string{"date": "2024-03-15"})
	recorder := httptest.NewRecorder()
	handler.Daily(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	assertContentType(t, recorder, report.ContentType)
	disposition := recorder.Header().Get("Content-Disposition")
	if !strings.Contains(disposition, "attachment") || !strings.Contains(disposition, "attendance_2024-03-15.xlsx") {
		t.Errorf("unexpected Content-Disposition: %s", disposition)
	}

	f := openWorkbook(t, recorder)
	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header and 2 rows, got %d", len(rows))
	}
	if rows[1][0] != "Bob" || rows[2][0] != "Alice" {
		t.Errorf("expected Bob then absent Alice, got %v / %v", rows[1], rows[2])
	}
}

func TestReportsHandler_Daily_InvalidDate(t *testing.T) {
	handler, _ := newTestReportsHandler(t)

	req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/reports/daily/yesterday", nil), map[string]string{"date": "yesterday"})
	recorder := httptest.NewRecorder()
	handler.Daily(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
}

func TestReportsHandler_User(t *testing.T) {
	handler, b := newTestReportsHandler(t)
	b.users.AddUser(testUser("u1", "Alice", nil))
	b.records.AddRecord(storedRecord("r1", "u1", "2024-03-14", testNow.AddDate(0, 0, -1), nil, attendance.StatusLate))

	req := requestWithChiParams(
		httptest.NewRequest("GET", "/api/v1/reports/user/u1?startDate=2024-03-13&endDate=2024-03-15", nil),
		map[string]string{"userId": "u1"},
	)
	recorder := httptest.NewRecorder()
	handler.User(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	if d := recorder.Header().Get("Content-Disposition"); !strings.Contains(d, "attendance_u1.xlsx") {
		t.Errorf("unexpected Content-Disposition: %s", d)
	}

	f := openWorkbook(t, recorder)
	title, err := f.GetCellValue(f.GetSheetName(0), "A1")
	if err != nil {
		t.Fatalf("GetCellValue: %v", err)
	}
	if title != "Attendance Report for Alice" {
		t.Errorf("unexpected title %q", title)
	}
}

func TestReportsHandler_User_Errors(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		query  string
		status int
	}{
		{"missing range", "u1", "", http.StatusBadRequest},
		{"missing end", "u1", "?startDate=2024-03-01", http.StatusBadRequest},
		{"invalid date", "u1", "?startDate=2024-03-01&endDate=March", http.StatusBadRequest},
		{"unknown user", "ghost", "?startDate=2024-03-01&endDate=2024-03-02", http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler, b := newTestReportsHandler(t)
			b.users.AddUser(testUser("u1", "Alice", nil))

			req := requestWithChiParams(
				httptest.NewRequest("GET", "/api/v1/reports/user/"+tc.userID+tc.query, nil),
				map[string]string{"userId": tc.userID},
			)
			recorder := httptest.NewRecorder()
			handler.User(recorder, req)

			assertStatusCode(t, recorder, tc.status)
		})
	}
}
