// Package report renders attendance spreadsheets.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/xuri/excelize/v2"
)

// ContentType is the MIME type of the generated workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	dailySheet = "Daily Attendance"
	userSheet  = "User Attendance"
	timeLayout = "15:04:05"
)

// UserInfo identifies the subject of a user report.
type UserInfo struct {
	ID         string
	Name       string
	Department string
}

// Period is the inclusive date range covered by a user report.
type Period struct {
	From string
	To   string
}

// DailyFilename returns the attachment name for a daily report.
func DailyFilename(date string) string {
	return fmt.Sprintf("attendance_%s.xlsx", date)
}

// UserFilename returns the attachment name for a user report.
func UserFilename(userID string) string {
	return fmt.Sprintf("attendance_%s.xlsx", userID)
}

// WriteDaily renders a daily roster, absences included, into w.
func WriteDaily(w io.Writer, date string, roster []attendance.RosterEntry, loc *time.Location) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", dailySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := []any{"Name", "Department", "Date", "Time In", "Time Out", "Status"}
	if err := writeHeader(f, dailySheet, "A1", header); err != nil {
		return err
	}

	for i, e := range roster {
		row := []any{e.Name, e.Department, date, clock(e.Record, true, loc), clock(e.Record, false, loc), string(e.Status)}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(dailySheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := setWidths(f, dailySheet, []float64{20, 15, 12, 12, 12, 10}); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// WriteUser renders one user's history with a summary block into w.
func WriteUser(w io.Writer, user UserInfo, period Period, history []attendance.RosterEntry, loc *time.Location) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", userSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	title := fmt.Sprintf("Attendance Report for %s", user.Name)
	if err := f.SetCellValue(userSheet, "A1", title); err != nil {
		return fmt.Errorf("write title: %w", err)
	}
	if err := f.MergeCell(userSheet, "A1", "G1"); err != nil {
		return fmt.Errorf("merge title: %w", err)
	}
	titleStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 16}})
	if err != nil {
		return fmt.Errorf("title style: %w", err)
	}
	if err := f.SetCellStyle(userSheet, "A1", "A1", titleStyle); err != nil {
		return fmt.Errorf("apply title style: %w", err)
	}

	if err := f.SetCellValue(userSheet, "A2", fmt.Sprintf("Period: %s to %s", period.From, period.To)); err != nil {
		return fmt.Errorf("write period: %w", err)
	}
	if err := f.MergeCell(userSheet, "A2", "G2"); err != nil {
		return fmt.Errorf("merge period: %w", err)
	}

	header := []any{"Date", "Day", "Time In", "Time Out", "Duration", "Status"}
	if err := writeHeader(f, userSheet, "A4", header); err != nil {
		return err
	}

	next := 5
	for _, e := range history {
		duration := "-"
		if e.Record != nil {
			duration = attendance.FormatDuration(e.Record.Duration())
		}
		row := []any{e.Date, weekday(e.Date), clock(e.Record, true, loc), clock(e.Record, false, loc), duration, string(e.Status)}
		cell, _ := excelize.CoordinatesToCellName(1, next)
		if err := f.SetSheetRow(userSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", next, err)
		}
		next++
	}

	sum := attendance.Summarize(history)
	next++
	summary := [][]any{
		{"Summary"},
		{"Present Days:", sum.Present, fmt.Sprintf("%.1f%%", sum.PresentPercent)},
		{"Late Days:", sum.Late, fmt.Sprintf("%.1f%%", sum.LatePercent)},
		{"Absent Days:", sum.Absent, fmt.Sprintf("%.1f%%", sum.AbsentPercent)},
		{"Total Days:", sum.Total},
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, next+i)
		if err := f.SetSheetRow(userSheet, cell, &row); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("summary style: %w", err)
	}
	summaryCell, _ := excelize.CoordinatesToCellName(1, next)
	if err := f.SetCellStyle(userSheet, summaryCell, summaryCell, bold); err != nil {
		return fmt.Errorf("apply summary style: %w", err)
	}

	if err := setWidths(f, userSheet, []float64{12, 12, 12, 12, 12, 10}); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeHeader(f *excelize.File, sheet, cell string, header []any) error {
	if err := f.SetSheetRow(sheet, cell, &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	col, row, err := excelize.CellNameToCoordinates(cell)
	if err != nil {
		return fmt.Errorf("header cell: %w", err)
	}
	end, _ := excelize.CoordinatesToCellName(col+len(header)-1, row)
	if err := f.SetCellStyle(sheet, cell, end, style); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}
	return nil
}

func setWidths(f *excelize.File, sheet string, widths []float64) error {
	for i, width := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return fmt.Errorf("column width: %w", err)
		}
	}
	return nil
}

// clock formats the time-in (in=true) or time-out of rec, "-" when unset.
func clock(rec *attendance.Record, in bool, loc *time.Location) string {
	if rec == nil {
		return "-"
	}
	t := rec.TimeOut
	if in {
		t = rec.TimeIn
	}
	if t == nil {
		return "-"
	}
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(timeLayout)
}

func weekday(date string) string {
	d, err := time.Parse(attendance.DateLayout, date)
	if err != nil {
		return ""
	}
	return d.Weekday().String()
}
