package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"deliverySync/internal/assign"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig
	GRPC     GRPCConfig
	HTTP     HTTPConfig
	Auth     AuthConfig
	Events   EventsConfig
	Log      LogConfig
	Assign   AssignConfig
	Surface  SurfaceConfig
}

// DatabaseConfig contains database-related settings.
type DatabaseConfig struct {
	Path string // SQLite database file path
}

// GRPCConfig contains gRPC server settings.
type GRPCConfig struct {
	Address string // gRPC server listen address (e.g., ":50051")
}

// HTTPConfig contains REST server settings.
type HTTPConfig struct {
	Address     string   // e.g. ":8080"
	CORSOrigins []string // browser origins allowed to call the API; "*" allows any
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	JWTSecret string // JWT signing secret
}

// EventsConfig controls the push feed.
type EventsConfig struct {
	Buffer  int    // per-subscriber queue length
	AMQPURL string // empty disables the RabbitMQ fanout
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string // debug | info | warn | error
	Format string // json | text
}

// AssignConfig is shared by the server auto-assignment and the admin surface sweep.
type AssignConfig struct {
	Policy assign.Policy
	Grace  time.Duration
}

// SurfaceConfig is read by cmd/surface only.
type SurfaceConfig struct {
	BackendURL     string
	EventsURL      string
	Role           string
	ID             int64
	Token          string
	HTTPTimeout    time.Duration
	ThrottleWindow time.Duration
	CascadeOrder   bool // issue the implied order update from the client as well
	TrackOrders    []int64
}

// Load loads configuration from environment variables with sensible defaults.
// A .env file in the working directory is read first when present.
func Load() (*Config, error) {
	cfg, err := load("")
	if err != nil {
		return nil, err
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is not set; required for production")
	}
	return cfg, nil
}

// LoadWithDefaults is like Load but uses a safe default for JWT_SECRET in development.
// WARNING: Only use in development! Use Load() in production.
func LoadWithDefaults() (*Config, error) {
	return load("dev-secret-change-me")
}

func load(defaultSecret string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}
	policy, err := assign.ParsePolicy(getEnv("AGENT_EXCLUSIVITY", ""))
	if err != nil {
		return nil, err
	}
	buffer, err := getEnvInt("EVENT_BUFFER", 64)
	if err != nil {
		return nil, err
	}
	grace, err := getEnvDuration("AUTO_ASSIGN_GRACE", assign.DefaultGrace)
	if err != nil {
		return nil, err
	}
	window, err := getEnvDuration("THROTTLE_WINDOW", 5*time.Second)
	if err != nil {
		return nil, err
	}
	timeout, err := getEnvDuration("HTTP_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	surfaceID, err := getEnvInt("SURFACE_ID", 0)
	if err != nil {
		return nil, err
	}
	cascade, err := getEnvBool("CASCADE_ORDER_STATUS", false)
	if err != nil {
		return nil, err
	}
	track, err := getEnvIDs("TRACK_ORDERS")
	if err != nil {
		return nil, err
	}

	return &Config{
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "app.db"),
		},
		GRPC: GRPCConfig{
			Address: getEnv("GRPC_ADDRESS", ":50051"),
		},
		HTTP: HTTPConfig{
			Address:     getEnv("HTTP_ADDRESS", ":8080"),
			CORSOrigins: getEnvList("CORS_ORIGINS", []string{"*"}),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", defaultSecret),
		},
		Events: EventsConfig{
			Buffer:  buffer,
			AMQPURL: getEnv("AMQP_URL", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Assign: AssignConfig{
			Policy: policy,
			Grace:  grace,
		},
		Surface: SurfaceConfig{
			BackendURL:     getEnv("BACKEND_URL", "http://localhost:8080"),
			EventsURL:      getEnv("EVENTS_URL", ""),
			Role:           getEnv("SURFACE_ROLE", ""),
			ID:             int64(surfaceID),
			Token:          getEnv("SURFACE_TOKEN", ""),
			HTTPTimeout:    timeout,
			ThrottleWindow: window,
			CascadeOrder:   cascade,
			TrackOrders:    track,
		},
	}, nil
}

// getEnv retrieves an environment variable with a default fallback.
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

// getEnvInt retrieves an environment variable as an integer with a default fallback.
func getEnvInt(key string, defaultVal int) (int, error) {
	if value, exists := os.LookupEnv(key); exists {
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return intVal, nil
	}
	return defaultVal, nil
}

// getEnvIDs parses a comma-separated list of positive ids.
func getEnvIDs(key string) ([]int64, error) {
	raw := getEnv(key, "")
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid %s entry %q", key, part)
		}
		out = append(out, id)
	}
	return out, nil
}

// getEnvList splits a comma-separated value, dropping empty entries.
func getEnvList(key string, defaultVal []string) []string {
	raw := getEnv(key, "")
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		return d, nil
	}
	return defaultVal, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	if value, exists := os.LookupEnv(key); exists {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, fmt.Errorf("invalid boolean for %s: %w", key, err)
		}
		return b, nil
	}
	return defaultVal, nil
}

// String returns a string representation of the config (sensitive values are masked).
func (c *Config) String() string {
	amqp := "off"
	if c.Events.AMQPURL != "" {
		amqp = "on"
	}
	return fmt.Sprintf("Config{DB: %s, gRPC: %s, HTTP: %s, AMQP: %s, policy: %s, Auth: *** (masked) ***}",
		c.Database.Path, c.GRPC.Address, c.HTTP.Address, amqp, c.Assign.Policy)
}
