package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/report"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export attendance spreadsheets",
}

var reportDailyCmd = &cobra.Command{
	Use:   "daily [date]",
	Short: "Export the roster of one day",
	Long: `Export the roster of one day as an .xlsx workbook, absent users included.

Examples:
  face-attendance report daily 2024-03-15
  face-attendance report daily 2024-03-15 --out march15.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: runReportDaily,
}

var reportUserCmd = &cobra.Command{
	Use:   "user [user-id]",
	Short: "Export one user's attendance history with a summary",
	Long: `Export one user's attendance history as an .xlsx workbook.

Examples:
  face-attendance report user 0b7c... --from 2024-03-01 --to 2024-03-31`,
	Args: cobra.ExactArgs(1),
	RunE: runReportUser,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportDailyCmd, reportUserCmd)

	reportDailyCmd.Flags().String("out", "", "Output file (default attendance_<date>.xlsx)")

	reportUserCmd.Flags().String("from", "", "First date (YYYY-MM-DD)")
	reportUserCmd.Flags().String("to", "", "Last date (YYYY-MM-DD)")
	reportUserCmd.Flags().String("out", "", "Output file (default attendance_<user-id>.xlsx)")
	_ = reportUserCmd.MarkFlagRequired("from")
	_ = reportUserCmd.MarkFlagRequired("to")
}

func writeWorkbook(path string, buf *bytes.Buffer) error {
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Printf("Report written to %s\n", path)
	return nil
}

func runReportDaily(cmd *cobra.Command, args []string) error {
	date := args[0]
	out := mustGetString(cmd, "out")
	if out == "" {
		out = report.DailyFilename(date)
	}

	cfg := config.Load()
	policy, err := attendancePolicy(cfg)
	if err != nil {
		return err
	}
	repos, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer repos.Close()

	roster, err := loadRoster(context.Background(), repos, date)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := report.WriteDaily(&buf, date, roster, policy.Location); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return writeWorkbook(out, &buf)
}

func runReportUser(cmd *cobra.Command, args []string) error {
	userID := args[0]
	from := mustGetString(cmd, "from")
	to := mustGetString(cmd, "to")
	out := mustGetString(cmd, "out")
	if out == "" {
		out = report.UserFilename(userID)
	}

	cfg := config.Load()
	policy, err := attendancePolicy(cfg)
	if err != nil {
		return err
	}
	repos, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer repos.Close()

	ctx := context.Background()
	user, err := repos.Users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("user %s not found", userID)
		}
		return fmt.Errorf("failed to get user: %w", err)
	}
	records, err := repos.Attendance.ListByUser(ctx, userID, from, to)
	if err != nil {
		return fmt.Errorf("failed to list attendance: %w", err)
	}
	history, err := attendance.UserHistory(userID, from, to, policy.DateOf(timeNow()), records)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	info := report.UserInfo{ID: user.ID, Name: user.Name, Department: user.Department}
	if err := report.WriteUser(&buf, info, report.Period{From: from, To: to}, history, policy.Location); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	summary := attendance.Summarize(history)
	fmt.Printf("%s: present %d, late %d, absent %d of %d day(s)\n", user.Name, summary.Present, summary.Late, summary.Absent, summary.Total)
	return writeWorkbook(out, &buf)
}
