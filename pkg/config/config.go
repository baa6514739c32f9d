package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv    string
	LogLevel  string
	LogFormat string
	Timezone  string

	// Database
	DatabaseURL    string
	DatabaseDriver string
	SQLitePath     string

	// Redis backs the usage counter and the schedule lookup cache.
	RedisURL string

	// RabbitMQ carries domain events; empty disables publishing.
	RabbitMQURL   string
	NotifyTimeout time.Duration

	// Outbox stores events before they reach RabbitMQ. The relay runs in-process
	// unless OutboxRelayInProcess is false, in which case cmd/worker drains it.
	OutboxEnabled         bool
	OutboxRelayInProcess  bool
	OutboxPollInterval    time.Duration
	OutboxBatchSize       int
	OutboxMaxRetries      int
	OutboxRetentionDays   int
	OutboxCleanupInterval time.Duration
	OutboxStatsInterval   time.Duration
	WorkerHealthAddr      string

	// Schedule lookups
	ScheduleSource     string
	LookupCacheTTL     time.Duration
	LookupTimeout      time.Duration
	LookupRatePerSec   float64
	LookupBurst        int
	LookupMaxFailures  uint32
	LookupOpenDuration time.Duration
	CalDAVURL          string
	CalDAVUsername     string
	CalDAVPassword     string
	CalDAVCalendar     string
	CalDAVBearerToken  string
	CalDAVTokenURL     string
	CalDAVClientID     string
	CalDAVClientSecret string
	CalDAVScopes       []string

	// Conflict classification and resolution
	BufferMinutes      int
	SearchRadiusDays   int
	ClassifyBatchSize  int
	ClassifyWorkers    int
	ResolveMaxAttempts int

	// Permission profiles
	ProfilesPath        string
	ProfilesPollEvery   time.Duration
	CriticalityPlugin   string
	CriticalityChecksum string
	ResourcePlugin      string
	ResourceChecksum    string

	// MCP
	MCPAddr      string
	MCPAuthToken string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		Timezone:  getEnv("CAREVISIT_TIMEZONE", "UTC"),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DatabaseDriver: getEnv("DATABASE_DRIVER", ""),
		SQLitePath:     getEnv("SQLITE_PATH", ""),

		RedisURL: getEnv("REDIS_URL", ""),

		RabbitMQURL:   getEnv("RABBITMQ_URL", ""),
		NotifyTimeout: getDurationEnv("CAREVISIT_NOTIFY_TIMEOUT", 5*time.Second),

		OutboxEnabled:         getBoolEnv("CAREVISIT_OUTBOX_ENABLED", false),
		OutboxRelayInProcess:  getBoolEnv("CAREVISIT_OUTBOX_RELAY_IN_PROCESS", true),
		OutboxPollInterval:    getDurationEnv("CAREVISIT_OUTBOX_POLL_INTERVAL", time.Second),
		OutboxBatchSize:       getIntEnv("CAREVISIT_OUTBOX_BATCH_SIZE", 100),
		OutboxMaxRetries:      getIntEnv("CAREVISIT_OUTBOX_MAX_RETRIES", 5),
		OutboxRetentionDays:   getIntEnv("CAREVISIT_OUTBOX_RETENTION_DAYS", 7),
		OutboxCleanupInterval: getDurationEnv("CAREVISIT_OUTBOX_CLEANUP_INTERVAL", time.Hour),
		OutboxStatsInterval:   getDurationEnv("CAREVISIT_OUTBOX_STATS_INTERVAL", time.Minute),
		WorkerHealthAddr:      getEnv("WORKER_HEALTH_ADDR", ""),

		ScheduleSource:     getEnv("CAREVISIT_SCHEDULE_SOURCE", "database"),
		LookupCacheTTL:     getDurationEnv("CAREVISIT_LOOKUP_CACHE_TTL", 2*time.Minute),
		LookupTimeout:      getDurationEnv("CAREVISIT_LOOKUP_TIMEOUT", 5*time.Second),
		LookupRatePerSec:   getFloatEnv("CAREVISIT_LOOKUP_RATE", 20),
		LookupBurst:        getIntEnv("CAREVISIT_LOOKUP_BURST", 10),
		LookupMaxFailures:  uint32(getIntEnv("CAREVISIT_LOOKUP_MAX_FAILURES", 5)),
		LookupOpenDuration: getDurationEnv("CAREVISIT_LOOKUP_OPEN_DURATION", 30*time.Second),
		CalDAVURL:          getEnv("CAREVISIT_CALDAV_URL", ""),
		CalDAVUsername:     getEnv("CAREVISIT_CALDAV_USERNAME", ""),
		CalDAVPassword:     getEnv("CAREVISIT_CALDAV_PASSWORD", ""),
		CalDAVCalendar:     getEnv("CAREVISIT_CALDAV_CALENDAR", ""),
		CalDAVBearerToken:  getEnv("CAREVISIT_CALDAV_BEARER_TOKEN", ""),
		CalDAVTokenURL:     getEnv("CAREVISIT_CALDAV_TOKEN_URL", ""),
		CalDAVClientID:     getEnv("CAREVISIT_CALDAV_CLIENT_ID", ""),
		CalDAVClientSecret: getEnv("CAREVISIT_CALDAV_CLIENT_SECRET", ""),
		CalDAVScopes:       getListEnv("CAREVISIT_CALDAV_SCOPES"),

		BufferMinutes:      getIntEnv("CAREVISIT_BUFFER_MINUTES", 15),
		SearchRadiusDays:   getIntEnv("CAREVISIT_SEARCH_RADIUS_DAYS", 1),
		ClassifyBatchSize:  getIntEnv("CAREVISIT_CLASSIFY_BATCH_SIZE", 50),
		ClassifyWorkers:    getIntEnv("CAREVISIT_CLASSIFY_WORKERS", 8),
		ResolveMaxAttempts: getIntEnv("CAREVISIT_RESOLVE_MAX_ATTEMPTS", 20),

		ProfilesPath:        getEnv("CAREVISIT_PROFILES_PATH", ""),
		ProfilesPollEvery:   getDurationEnv("CAREVISIT_PROFILES_POLL_INTERVAL", 10*time.Second),
		CriticalityPlugin:   getEnv("CAREVISIT_CRITICALITY_PLUGIN", ""),
		CriticalityChecksum: getEnv("CAREVISIT_CRITICALITY_PLUGIN_CHECKSUM", ""),
		ResourcePlugin:      getEnv("CAREVISIT_RESOURCE_PLUGIN", ""),
		ResourceChecksum:    getEnv("CAREVISIT_RESOURCE_PLUGIN_CHECKSUM", ""),

		MCPAddr:      getEnv("MCP_ADDR", "127.0.0.1:8082"),
		MCPAuthToken: getEnv("MCP_AUTH_TOKEN", ""),
	}

	if cfg.DatabaseDriver == "" {
		if cfg.DatabaseURL == "" {
			cfg.DatabaseDriver = "sqlite"
		} else {
			cfg.DatabaseDriver = "auto"
		}
	}
	if cfg.DatabaseDriver == "sqlite" && cfg.SQLitePath == "" {
		cfg.SQLitePath = defaultSQLitePath()
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Location resolves Timezone, falling back to UTC for unknown names.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// UsesCalDAV reports whether booked visits come from a CalDAV server.
func (c *Config) UsesCalDAV() bool {
	return strings.EqualFold(c.ScheduleSource, "caldav") && c.CalDAVURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func defaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".carevisit", "carevisit.db")
	}
	return filepath.Join(home, ".carevisit", "carevisit.db")
}
