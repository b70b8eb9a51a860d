package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mariadb"
	"github.com/kozaktomas/face-attendance/internal/importer"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import users and attendance from other systems",
}

var importLegacyCmd = &cobra.Command{
	Use:   "legacy",
	Short: "Import users.json and attendance.json from the flat-file data directory",
	Long: `Import users and attendance records from the JSON files of the flat-file
deployment. Users whose ID or email already exists and records whose
(user, date) is already taken are skipped, so the import can be re-run.

Examples:
  face-attendance import legacy --users data/users.json --attendance data/attendance.json
  face-attendance import legacy --users data/users.json --json`,
	Args: cobra.NoArgs,
	RunE: runImportLegacy,
}

var importHRCmd = &cobra.Command{
	Use:   "hr",
	Short: "Import users from a MariaDB HR directory",
	Long: `Import users (without face templates) from a MariaDB/MySQL HR table.
IDs are derived from HR employee IDs, so repeated imports skip known people.

Examples:
  face-attendance import hr --dsn 'hr:secret@tcp(db:3306)/hr' --table employees`,
	Args: cobra.NoArgs,
	RunE: runImportHR,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.AddCommand(importLegacyCmd, importHRCmd)

	importLegacyCmd.Flags().String("users", "", "Path to users.json")
	importLegacyCmd.Flags().String("attendance", "", "Path to attendance.json")
	importLegacyCmd.Flags().Bool("json", false, "Output as JSON")

	importHRCmd.Flags().String("dsn", "", "MariaDB DSN (default $HR_DATABASE_DSN)")
	importHRCmd.Flags().String("table", "employees", "HR table name")
	importHRCmd.Flags().Int("batch", constants.ImportBatchSize, "Rows per query")
	importHRCmd.Flags().Bool("json", false, "Output as JSON")
}

// LegacyImportResult is the JSON output of import legacy.
type LegacyImportResult struct {
	Users      importer.Result `json:"users"`
	Attendance importer.Result `json:"attendance"`
	Duration   string          `json:"duration"`
}

func newImportBar(total int, description, unit string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString(unit),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

// barStep returns a progress callback, or nil when no bar is shown.
func barStep(bar *progressbar.ProgressBar) func() {
	if bar == nil {
		return nil
	}
	return func() { _ = bar.Add(1) }
}

func printImportResult(label string, res importer.Result) {
	fmt.Printf("%s: imported %d, skipped %d, failed %d\n", label, res.Imported, res.Skipped, res.Failed)
	for _, e := range res.Errors {
		fmt.Printf("  - %s\n", e)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runImportLegacy(cmd *cobra.Command, args []string) error {
	usersPath := mustGetString(cmd, "users")
	attendancePath := mustGetString(cmd, "attendance")
	jsonOutput := mustGetBool(cmd, "json")
	if usersPath == "" && attendancePath == "" {
		return errors.New("at least one of --users or --attendance is required")
	}

	cfg := config.Load()
	policy, err := attendancePolicy(cfg)
	if err != nil {
		return err
	}

	var legacyUsers []importer.LegacyUser
	if usersPath != "" {
		f, err := os.Open(usersPath)
		if err != nil {
			return fmt.Errorf("failed to open users file: %w", err)
		}
		legacyUsers, err = importer.ReadUsers(f)
		f.Close()
		if err != nil {
			return err
		}
	}
	var legacyRecords []importer.LegacyRecord
	if attendancePath != "" {
		f, err := os.Open(attendancePath)
		if err != nil {
			return fmt.Errorf("failed to open attendance file: %w", err)
		}
		legacyRecords, err = importer.ReadRecords(f)
		f.Close()
		if err != nil {
			return err
		}
	}

	repos, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer repos.Close()

	ctx, stop := signalContext()
	defer stop()
	start := time.Now()
	result := LegacyImportResult{}

	// Users first so imported records reference existing identities.
	if len(legacyUsers) > 0 {
		stored := make([]database.StoredUser, 0, len(legacyUsers))
		for _, lu := range legacyUsers {
			u, err := lu.ToStored(cfg.Attendance.DescriptorDim)
			if err != nil {
				result.Users.Failed++
				result.Users.Errors = append(result.Users.Errors, err.Error())
				continue
			}
			stored = append(stored, u)
		}

		var bar *progressbar.ProgressBar
		if !jsonOutput {
			fmt.Printf("Importing %d users...\n", len(stored))
			bar = newImportBar(len(stored), "Users", "users")
		}
		res := importer.ImportUsers(ctx, repos.Users, stored, barStep(bar))
		res.Failed += result.Users.Failed
		res.Errors = append(result.Users.Errors, res.Errors...)
		result.Users = res
		if bar != nil {
			_ = bar.Finish()
			fmt.Println()
		}
	}

	if len(legacyRecords) > 0 {
		var bar *progressbar.ProgressBar
		if !jsonOutput {
			fmt.Printf("Importing %d attendance records...\n", len(legacyRecords))
			bar = newImportBar(len(legacyRecords), "Attendance", "records")
		}
		result.Attendance = importer.ImportRecords(ctx, repos.Attendance, legacyRecords, policy, barStep(bar))
		if bar != nil {
			_ = bar.Finish()
			fmt.Println()
		}
	}

	result.Duration = formatDuration(time.Since(start))
	if jsonOutput {
		return outputJSON(result)
	}

	fmt.Println()
	if usersPath != "" {
		printImportResult("Users", result.Users)
	}
	if attendancePath != "" {
		printImportResult("Attendance", result.Attendance)
	}
	fmt.Printf("Completed in %s\n", result.Duration)
	return nil
}

func runImportHR(cmd *cobra.Command, args []string) error {
	dsn := mustGetString(cmd, "dsn")
	if dsn == "" {
		dsn = os.Getenv("HR_DATABASE_DSN")
	}
	if dsn == "" {
		return errors.New("--dsn or HR_DATABASE_DSN is required")
	}
	table := mustGetString(cmd, "table")
	batchSize := mustGetInt(cmd, "batch")
	jsonOutput := mustGetBool(cmd, "json")

	hr, err := mariadb.NewPool(dsn, mariadb.Options{})
	if err != nil {
		return fmt.Errorf("failed to connect to HR database: %w", err)
	}
	defer hr.Close()

	cfg := config.Load()
	repos, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer repos.Close()

	ctx, stop := signalContext()
	defer stop()
	start := time.Now()

	total, err := hr.CountEmployees(ctx, table)
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		fmt.Printf("Importing %d employees from %s...\n", total, table)
		bar = newImportBar(total, "Employees", "rows")
	}

	var result importer.Result
	err = hr.ListEmployees(ctx, table, mariadb.DefaultEmployeeColumns(), batchSize, func(batch []mariadb.Employee) error {
		users := make([]database.StoredUser, 0, len(batch))
		for _, e := range batch {
			u, ok := importer.EmployeeToUser(e)
			if !ok {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("employee %s: missing name or email", e.ID))
				if bar != nil {
					_ = bar.Add(1)
				}
				continue
			}
			users = append(users, u)
		}
		res := importer.ImportUsers(ctx, repos.Users, users, barStep(bar))
		result.Imported += res.Imported
		result.Skipped += res.Skipped
		result.Failed += res.Failed
		result.Errors = append(result.Errors, res.Errors...)
		return ctx.Err()
	})
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return fmt.Errorf("HR import interrupted: %w", err)
	}

	if jsonOutput {
		return outputJSON(map[string]any{
			"result":   result,
			"duration": formatDuration(time.Since(start)),
		})
	}
	printImportResult("Employees", result)
	fmt.Printf("Completed in %s\n", formatDuration(time.Since(start)))
	return nil
}
