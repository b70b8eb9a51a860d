package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/xuri/excelize/v2"
)

func ptr(t time.Time) *time.Time { return &t }

func openWorkbook(t *testing.T, buf *bytes.Buffer) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("failed to open workbook: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func cell(t *testing.T, f *excelize.File, sheet, name string) string {
	t.Helper()
	v, err := f.GetCellValue(sheet, name)
	if err != nil {
		t.Fatalf("failed to read %s!%s: %v", sheet, name, err)
	}
	return v
}

func TestWriteDaily(t *testing.T) {
	in := time.Date(2024, 3, 4, 8, 15, 0, 0, time.UTC)
	out := time.Date(2024, 3, 4, 17, 0, 0, 0, time.UTC)
	roster := []attendance.RosterEntry{
		{UserID: "u1", Name: "Alice", Department: "R&D", Date: "2024-03-04", Status: attendance.StatusPresent,
			Record: &attendance.Record{UserID: "u1", Date: "2024-03-04", TimeIn: &in, TimeOut: &out, Status: attendance.StatusPresent}},
		{UserID: "u2", Name: "Bob", Department: "Sales", Date: "2024-03-04", Status: attendance.StatusAbsent},
	}

	var buf bytes.Buffer
	if err := WriteDaily(&buf, "2024-03-04", roster, time.UTC); err != nil {
		t.Fatalf("WriteDaily returned error: %v", err)
	}

	f := openWorkbook(t, &buf)
	rows, err := f.GetRows(dailySheet)
	if err != nil {
		t.Fatalf("failed to read rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	wantHeader := []string{"Name", "Department", "Date", "Time In", "Time Out", "Status"}
	for i, h := range wantHeader {
		if rows[0][i] != h {
			t.Errorf("header[%d] = %q, want %q", i, rows[0][i], h)
		}
	}

	tests := []struct {
		cell string
		want string
	}{
		{"A2", "Alice"},
		{"D2", "08:15:00"},
		{"E2", "17:00:00"},
		{"F2", "present"},
		{"A3", "Bob"},
		{"D3", "-"},
		{"E3", "-"},
		{"F3", "absent"},
	}
	for _, tt := range tests {
		if got := cell(t, f, dailySheet, tt.cell); got != tt.want {
			t.Errorf("%s = %q, want %q", tt.cell, got, tt.want)
		}
	}
}

func TestWriteUser(t *testing.T) {
	records := []*attendance.Record{
		{UserID: "u1", Date: "2024-03-04", Status: attendance.StatusPresent,
			TimeIn:  ptr(time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)),
			TimeOut: ptr(time.Date(2024, 3, 4, 16, 30, 0, 0, time.UTC))},
		{UserID: "u1", Date: "2024-03-05", Status: attendance.StatusLate,
			TimeIn: ptr(time.Date(2024, 3, 5, 9, 10, 0, 0, time.UTC))},
	}
	history, err := attendance.UserHistory("u1", "2024-03-04", "2024-03-06", "", records)
	if err != nil {
		t.Fatalf("UserHistory returned error: %v", err)
	}

	var buf bytes.Buffer
	err = WriteUser(&buf, UserInfo{ID: "u1", Name: "Alice"}, Period{From: "2024-03-04", To: "2024-03-06"}, history, time.UTC)
	if err != nil {
		t.Fatalf("WriteUser returned error: %v", err)
	}

	f := openWorkbook(t, &buf)
	tests := []struct {
		cell string
		want string
	}{
		{"A1", "Attendance Report for Alice"},
		{"A2", "Period: 2024-03-04 to 2024-03-06"},
		{"A4", "Date"},
		{"A5", "2024-03-04"},
		{"B5", "Monday"},
		{"E5", "8h 30m"},
		{"F5", "present"},
		{"D6", "-"},
		{"E6", "-"},
		{"F6", "late"},
		{"F7", "absent"},
		{"A9", "Summary"},
		{"B10", "1"},
		{"C10", "33.3%"},
		{"B12", "1"},
		{"B13", "3"},
	}
	for _, tt := range tests {
		if got := cell(t, f, userSheet, tt.cell); got != tt.want {
			t.Errorf("%s = %q, want %q", tt.cell, got, tt.want)
		}
	}
}

func TestFilenames(t *testing.T) {
	if got := DailyFilename("2024-03-04"); got != "attendance_2024-03-04.xlsx" {
		t.Errorf("DailyFilename = %q", got)
	}
	if got := UserFilename("u1"); got != "attendance_u1.xlsx" {
		t.Errorf("UserFilename = %q", got)
	}
}
