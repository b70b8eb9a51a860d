package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/spf13/cobra"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Record and inspect attendance",
}

var attendanceMarkCmd = &cobra.Command{
	Use:   "mark",
	Short: "Check a user in or out for today",
	Long: `Check a user in or out for today.

Examples:
  face-attendance attendance mark --user 0b7c... --type in
  face-attendance attendance mark --user 0b7c... --type out`,
	Args: cobra.NoArgs,
	RunE: runAttendanceMark,
}

var attendanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the roster of a day, absent users included",
	Args:  cobra.NoArgs,
	RunE:  runAttendanceList,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)
	attendanceCmd.AddCommand(attendanceMarkCmd, attendanceListCmd)

	attendanceMarkCmd.Flags().String("user", "", "User ID")
	attendanceMarkCmd.Flags().String("type", "in", "Direction: in or out")
	_ = attendanceMarkCmd.MarkFlagRequired("user")

	attendanceListCmd.Flags().String("date", "", "Date (YYYY-MM-DD, default today)")
	attendanceListCmd.Flags().Bool("json", false, "Output as JSON")
}

func runAttendanceMark(cmd *cobra.Command, args []string) error {
	userID := mustGetString(cmd, "user")
	dir := attendance.Direction(mustGetString(cmd, "type"))

	cfg := config.Load()
	repos, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer repos.Close()

	svc, err := newAttendanceService(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	user, err := repos.Users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("user %s not found", userID)
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	rec, err := svc.Mark(ctx, user.ID, dir)
	if err != nil {
		if te, ok := attendance.AsTransition(err); ok && te.Record != nil {
			loc := svc.Policy().Location
			return fmt.Errorf("%w (in %s, out %s)", err, clockOrDash(te.Record.TimeIn, loc), clockOrDash(te.Record.TimeOut, loc))
		}
		return err
	}

	loc := svc.Policy().Location
	if dir == attendance.DirectionIn {
		fmt.Printf("%s checked in at %s (%s)\n", user.Name, clockOrDash(rec.TimeIn, loc), rec.Status)
	} else {
		fmt.Printf("%s checked out at %s after %s\n", user.Name, clockOrDash(rec.TimeOut, loc), attendance.FormatDuration(rec.Duration()))
	}
	return nil
}

func runAttendanceList(cmd *cobra.Command, args []string) error {
	date := mustGetString(cmd, "date")
	jsonOutput := mustGetBool(cmd, "json")

	cfg := config.Load()
	repos, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer repos.Close()

	policy, err := attendancePolicy(cfg)
	if err != nil {
		return err
	}
	if date == "" {
		date = policy.DateOf(timeNow())
	}

	roster, err := loadRoster(context.Background(), repos, date)
	if err != nil {
		return err
	}
	summary := attendance.Summarize(roster)

	if jsonOutput {
		return outputJSON(map[string]any{"date": date, "entries": roster, "summary": summary})
	}

	fmt.Printf("Attendance for %s\n\n", date)
	fmt.Printf("%-25s  %-20s  %-8s  %-8s  %-8s\n", "NAME", "DEPARTMENT", "IN", "OUT", "STATUS")
	for _, e := range roster {
		in, out := "-", "-"
		if e.Record != nil {
			in = clockOrDash(e.Record.TimeIn, policy.Location)
			out = clockOrDash(e.Record.TimeOut, policy.Location)
		}
		fmt.Printf("%-25s  %-20s  %-8s  %-8s  %-8s\n", e.Name, e.Department, in, out, e.Status)
	}
	fmt.Printf("\nPresent: %d  Late: %d  Absent: %d  Total: %d\n", summary.Present, summary.Late, summary.Absent, summary.Total)
	return nil
}
