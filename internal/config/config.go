package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Store
	StoreBackend     string
	MongoURI         string
	MongoDatabase    string
	MongoCollection  string
	MongoConnectWait time.Duration

	// Rollover
	RolloverCron        string
	RolloverTimezone    string
	RolloverTimeout     time.Duration
	RolloverConcurrency int
	SchedulerEnabled    bool

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	HistoryCacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// JWT / Auth
	JWTSecret string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StoreBackend:     strings.ToLower(getEnv("STORE_BACKEND", BackendMongo)),
		MongoURI:         getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:    getEnv("MONGODB_DB", "finance_tracker"),
		MongoCollection:  getEnv("MONGODB_COLLECTION", "user_finances"),
		MongoConnectWait: getEnvDuration("MONGODB_CONNECT_TIMEOUT", 10*time.Second),

		RolloverCron:        getEnv("ROLLOVER_CRON", "1 0 1 * *"),
		RolloverTimezone:    getEnv("ROLLOVER_TIMEZONE", "Local"),
		RolloverTimeout:     getEnvDuration("ROLLOVER_TIMEOUT", 30*time.Second),
		RolloverConcurrency: getEnvInt("ROLLOVER_CONCURRENCY", 1),
		SchedulerEnabled:    getEnvBool("SCHEDULER_ENABLED", true),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 8),

		HistoryCacheTTL: getEnvDuration("HISTORY_CACHE_TTL", 5*time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		JWTSecret: getEnv("JWT_SECRET", "finance-tracker-dev-secret-change-me"),
	}
}

// Location resolves RolloverTimezone; month boundaries are computed in it.
func (c *Config) Location() (*time.Location, error) {
	if c.RolloverTimezone == "" || c.RolloverTimezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.RolloverTimezone)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
