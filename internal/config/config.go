package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed cameras.yaml
var camerasYAML []byte

type Config struct {
	Database   DatabaseConfig
	Web        WebConfig
	Attendance AttendanceConfig
	Cameras    CamerasConfig
	Events     EventsConfig
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the lookalike HNSW index (optional, if empty index is rebuilt on startup)
}

type WebConfig struct {
	APIToken         string   // Static operator token for the API (optional)
	AllowedOrigins   []string // Extra CORS origins besides localhost
	RecognitionRPS   float64  // Per-client identify requests per second (default 5)
	RecognitionBurst int      // Burst allowance for identify requests (default 10)
}

type AttendanceConfig struct {
	MatchThreshold float64 // Maximum descriptor distance for a match (default 0.6)
	LateCutoff     string  // "HH:MM" from which a check-in is late (default 09:00)
	Timezone       string  // IANA zone used for dates and the cutoff (default Local)
	DescriptorDim  int     // Required descriptor length at enrollment (default 128)
}

// Location resolves Timezone, falling back to time.Local.
func (c *AttendanceConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

type CamerasConfig struct {
	SnapshotTimeout time.Duration // Upstream timeout for snapshot proxying (default 5s)
	Defaults        CameraDefaultsByType
}

type CameraDefaultsByType struct {
	Webcam CameraDefaults `yaml:"webcam" json:"webcam"`
	IP     CameraDefaults `yaml:"ip" json:"ip"`
}

type CameraDefaults struct {
	Name              string `yaml:"name" json:"name"`
	Location          string `yaml:"location" json:"location"`
	Enabled           bool   `yaml:"enabled" json:"enabled"`
	IPAddress         string `yaml:"ip_address" json:"ipAddress,omitempty"`
	Port              int    `yaml:"port" json:"port,omitempty"`
	StreamPath        string `yaml:"stream_path" json:"streamPath,omitempty"`
	RefreshIntervalMs int    `yaml:"refresh_interval_ms" json:"refreshIntervalMs"`
}

// For returns the defaults for a camera type ("webcam" or "ip").
func (d CameraDefaultsByType) For(cameraType string) (CameraDefaults, bool) {
	switch cameraType {
	case "webcam":
		return d.Webcam, true
	case "ip":
		return d.IP, true
	}
	return CameraDefaults{}, false
}

type EventsConfig struct {
	MQTTBroker   string // host:port of an MQTT broker; empty disables publishing
	MQTTTopic    string // Topic for attendance transitions (default face-attendance/attendance)
	MQTTClientID string // Client identifier (default face-attendance)
}

// MQTTEnabled reports whether attendance events are published over MQTT.
func (c *EventsConfig) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float, returning defaultVal when unset or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration reads a positive duration such as "5s".
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// envList splits a comma separated variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var defaults CameraDefaultsByType
	if err := yaml.Unmarshal(camerasYAML, &defaults); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded cameras.yaml: " + err.Error())
	}

	return &Config{
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Web: WebConfig{
			APIToken:         os.Getenv("WEB_API_TOKEN"),
			AllowedOrigins:   envList("WEB_ALLOWED_ORIGINS"),
			RecognitionRPS:   envFloat("WEB_RECOGNITION_RPS", 5),
			RecognitionBurst: envInt("WEB_RECOGNITION_BURST", 10),
		},
		Attendance: AttendanceConfig{
			MatchThreshold: envFloat("MATCH_THRESHOLD", 0.6),
			LateCutoff:     envString("LATE_CUTOFF", "09:00"),
			Timezone:       os.Getenv("ATTENDANCE_TIMEZONE"),
			DescriptorDim:  envInt("DESCRIPTOR_DIM", 128),
		},
		Cameras: CamerasConfig{
			SnapshotTimeout: envDuration("CAMERA_SNAPSHOT_TIMEOUT", 5*time.Second),
			Defaults:        defaults,
		},
		Events: EventsConfig{
			MQTTBroker:   os.Getenv("MQTT_BROKER"),
			MQTTTopic:    envString("MQTT_TOPIC", "face-attendance/attendance"),
			MQTTClientID: envString("MQTT_CLIENT_ID", "face-attendance"),
		},
	}
}
