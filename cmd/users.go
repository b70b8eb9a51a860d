package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/importer"
	"github.com/spf13/cobra"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage users and face templates",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Long: `List registered users.

Examples:
  face-attendance users list
  face-attendance users list --search jiri --json`,
	Args: cobra.NoArgs,
	RunE: runUsersList,
}

var usersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a user",
	Long: `Register a user, optionally with a face descriptor.

Examples:
  face-attendance users add --name "Jana Nováková" --email jana@example.com \
    --department Finance --role Accountant --descriptor jana.json`,
	Args: cobra.NoArgs,
	RunE: runUsersAdd,
}

var usersDeleteCmd = &cobra.Command{
	Use:   "delete [user-id]",
	Short: "Delete a user and its face template (attendance history is kept)",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsersDelete,
}

var usersEnrollCmd = &cobra.Command{
	Use:   "enroll [user-id]",
	Short: "Replace a user's face template from a descriptor JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsersEnroll,
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersListCmd, usersAddCmd, usersDeleteCmd, usersEnrollCmd)

	usersListCmd.Flags().String("search", "", "Filter by name (diacritic-insensitive)")
	usersListCmd.Flags().Bool("json", false, "Output as JSON")

	usersAddCmd.Flags().String("name", "", "Full name")
	usersAddCmd.Flags().String("email", "", "Email address")
	usersAddCmd.Flags().String("department", "", "Department")
	usersAddCmd.Flags().String("role", "", "Role")
	usersAddCmd.Flags().String("profile-image", "", "Profile image URL")
	usersAddCmd.Flags().String("descriptor", "", "Path to a JSON file with the face descriptor")

	usersEnrollCmd.Flags().String("descriptor", "", "Path to a JSON file with the face descriptor")
	_ = usersEnrollCmd.MarkFlagRequired("descriptor")
}

// readDescriptor loads a descriptor file and checks its length.
func readDescriptor(path string, dim int) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}
	d, err := importer.ParseDescriptor(json.RawMessage(data))
	if err != nil {
		return nil, err
	}
	if !facematch.ValidDescriptor(d, dim) {
		return nil, fmt.Errorf("descriptor must contain %d finite values, got %d", dim, len(d))
	}
	return d, nil
}

func runUsersList(cmd *cobra.Command, args []string) error {
	search := mustGetString(cmd, "search")
	jsonOutput := mustGetBool(cmd, "json")

	cfg := config.Load()
	repos, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer repos.Close()

	users, err := repos.Users.ListUsers(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	rows := make([]userRow, 0, len(users))
	for _, u := range users {
		if search != "" && !facematch.NameContains(u.Name, search) {
			continue
		}
		rows = append(rows, userRow{
			ID:         u.ID,
			Name:       u.Name,
			Email:      u.Email,
			Department: u.Department,
			Role:       u.Role,
			Enrolled:   u.HasDescriptor(),
		})
	}

	if jsonOutput {
		return outputJSON(rows)
	}

	fmt.Printf("%-36s  %-25s  %-20s  %-8s\n", "ID", "NAME", "DEPARTMENT", "ENROLLED")
	for _, u := range rows {
		enrolled := "no"
		if u.Enrolled {
			enrolled = "yes"
		}
		fmt.Printf("%-36s  %-25s  %-20s  %-8s\n", u.ID, u.Name, u.Department, enrolled)
	}
	fmt.Printf("\n%d user(s)\n", len(rows))
	return nil
}

type userRow struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department"`
	Role       string `json:"role"`
	Enrolled   bool   `json:"enrolled"`
}

func runUsersAdd(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	user := &database.StoredUser{
		Name:         strings.TrimSpace(mustGetString(cmd, "name")),
		Email:        strings.TrimSpace(mustGetString(cmd, "email")),
		Department:   strings.TrimSpace(mustGetString(cmd, "department")),
		Role:         strings.TrimSpace(mustGetString(cmd, "role")),
		ProfileImage: mustGetString(cmd, "profile-image"),
	}
	if user.Name == "" || user.Email == "" || user.Department == "" || user.Role == "" {
		return errors.New("--name, --email, --department and --role are required")
	}
	if path := mustGetString(cmd, "descriptor"); path != "" {
		d, err := readDescriptor(path, cfg.Attendance.DescriptorDim)
		if err != nil {
			return err
		}
		user.Descriptor = d
	}

	repos, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer repos.Close()

	if err := repos.Users.CreateUser(context.Background(), user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	fmt.Printf("Created user %s (%s)\n", user.ID, user.Name)
	return nil
}

func runUsersDelete(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	repos, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer repos.Close()

	if err := repos.Users.DeleteUser(context.Background(), args[0]); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("user %s not found", args[0])
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}
	fmt.Printf("Deleted user %s\n", args[0])
	return nil
}

func runUsersEnroll(cmd *cobra.Command, args []string) error {
	userID := args[0]
	cfg := config.Load()

	descriptor, err := readDescriptor(mustGetString(cmd, "descriptor"), cfg.Attendance.DescriptorDim)
	if err != nil {
		return err
	}

	repos, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer repos.Close()

	ctx := context.Background()
	if err := repos.Users.SetDescriptor(ctx, userID, descriptor, time.Now()); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("user %s not found", userID)
		}
		return fmt.Errorf("failed to enroll user: %w", err)
	}
	fmt.Printf("Enrolled face template for user %s\n", userID)

	lookalikes, err := repos.Users.FindLookalikes(ctx, descriptor, userID, cfg.Attendance.MatchThreshold, constants.DefaultLookalikeLimit)
	if err != nil {
		fmt.Printf("Warning: lookalike check failed: %v\n", err)
		return nil
	}
	if len(lookalikes) > 0 {
		fmt.Printf("\nWarning: %d enrolled user(s) look alike:\n", len(lookalikes))
		for _, l := range lookalikes {
			fmt.Printf("  %-36s  %-25s  distance %.3f\n", l.User.ID, l.User.Name, l.Distance)
		}
	}
	return nil
}
