package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/events"
	"github.com/kozaktomas/face-attendance/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Attendance API server.
The server identifies faces from descriptors, records check-ins and
check-outs, streams attendance events and exports reports.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// initUserHNSW builds or loads the lookalike HNSW index.
func initUserHNSW(ctx context.Context, userRepo *postgres.UserRepository, indexPath string) {
	if indexPath != "" {
		fmt.Printf("Loading face template HNSW index from %s...\n", indexPath)
	} else {
		fmt.Printf("Building in-memory HNSW index for lookalike checks...\n")
	}
	if err := userRepo.EnableHNSW(ctx, indexPath); err != nil {
		fmt.Printf("Warning: Failed to build HNSW index: %v\n", err)
		fmt.Printf("Lookalike checks will use PostgreSQL queries (slower)\n")
	} else if indexPath != "" {
		fmt.Printf("HNSW index ready with %d templates (persisted to %s)\n", userRepo.HNSWCount(), indexPath)
	} else {
		fmt.Printf("HNSW index built with %d templates (in-memory only)\n", userRepo.HNSWCount())
	}
	database.RegisterUserHNSWRebuilder(userRepo)
}

// initMQTT connects the optional MQTT event publisher.
func initMQTT(ctx context.Context, cfg config.EventsConfig) *events.MQTTPublisher {
	if !cfg.MQTTEnabled() {
		return nil
	}
	fmt.Printf("Connecting to MQTT broker %s...\n", cfg.MQTTBroker)
	publisher := events.NewMQTTPublisher(cfg)
	if err := publisher.Connect(ctx); err != nil {
		// The client keeps retrying in the background.
		fmt.Printf("Warning: MQTT broker not reachable yet: %v\n", err)
	} else {
		fmt.Printf("Publishing attendance events to %s/*\n", cfg.MQTTTopic)
	}
	return publisher
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

// saveHNSWIndex saves the lookalike index to disk during shutdown.
func saveHNSWIndex() {
	if rebuilder := database.GetUserHNSWRebuilder(); rebuilder != nil {
		if err := rebuilder.SaveHNSWIndex(); err != nil {
			fmt.Printf("Warning: failed to save HNSW index: %v\n", err)
		} else {
			fmt.Println("HNSW index saved to disk")
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	fmt.Printf("Connecting to PostgreSQL database...\n")
	repos, err := openStorage(cfg)
	if err != nil {
		return err
	}
	fmt.Printf("Using PostgreSQL backend\n")

	svc, err := newAttendanceService(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initUserHNSW(ctx, repos.Users, cfg.Database.HNSWIndexPath)

	var publishers []events.Publisher
	mqttPublisher := initMQTT(ctx, cfg.Events)
	if mqttPublisher != nil {
		publishers = append(publishers, mqttPublisher)
	}

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(cfg, port, host, svc, publishers...)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		saveHNSWIndex()

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
		if mqttPublisher != nil {
			mqttPublisher.Disconnect()
		}
		repos.Close()
	}()

	policy := svc.Policy()
	fmt.Printf("Late cutoff %s (%s), match threshold %.2f\n", policy.Cutoff(), policy.Location, cfg.Attendance.MatchThreshold)
	fmt.Printf("Starting Face Attendance API on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
