package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// MongoDB configuration
	MongoURI     string
	DatabaseName string

	// Server configuration
	Port        string
	Environment string
	CORSOrigins string

	// Session cookies
	CookiePrefix        string
	CookieEncryptionKey string
	AdminSessionTimeout time.Duration
	SessionTimeout      time.Duration

	// Rate limiting
	RateLimitWindow        time.Duration
	RateLimitMaxEntries    int
	RateLimitSweepInterval time.Duration

	// Sentiment analysis
	ClaudeAPIKey            string
	ClaudeModel             string
	ClaudeRequestsPerMinute int

	// Ingestion
	GraphRequestsPerMinute int
	ImportBatchDelay       time.Duration

	// Webhook configuration
	VerifyToken string
}

func LoadConfig() *Config {
	cfg := &Config{
		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DatabaseName: getEnv("MONGO_DB_NAME", "feedback_sentiment"),

		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("APP_ENV", "development"),
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:5173, http://localhost:3000"),

		CookiePrefix:        getEnv("COOKIE_PREFIX", "fs_"),
		CookieEncryptionKey: getEnv("COOKIE_ENCRYPTION_KEY", ""),
		AdminSessionTimeout: getDuration("ADMIN_SESSION_TIMEOUT", 2*time.Hour),
		SessionTimeout:      getDuration("SESSION_TIMEOUT", 5*time.Hour),

		RateLimitWindow:        time.Duration(getInt("RATE_LIMIT_WINDOW_MS", 1000)) * time.Millisecond,
		RateLimitMaxEntries:    getInt("RATE_LIMIT_MAX_ENTRIES", 100000),
		RateLimitSweepInterval: getDuration("RATE_LIMIT_SWEEP_INTERVAL", 5*time.Minute),

		ClaudeAPIKey:            getEnv("CLAUDE_API_KEY", ""),
		ClaudeModel:             getEnv("CLAUDE_MODEL", "claude-3-5-haiku-latest"),
		ClaudeRequestsPerMinute: getInt("CLAUDE_REQUESTS_PER_MINUTE", 50),

		GraphRequestsPerMinute: getInt("GRAPH_REQUESTS_PER_MINUTE", 200),
		ImportBatchDelay:       getDuration("IMPORT_BATCH_DELAY", 0),

		VerifyToken: getEnv("WEBHOOK_VERIFY_TOKEN", "webhook_verify_token"),
	}

	// Validate required configuration
	if cfg.MongoURI == "" {
		slog.Error("MONGO_URI not set")
	}
	if cfg.ClaudeAPIKey == "" {
		slog.Warn("CLAUDE_API_KEY not set, sentiment analysis will fail")
	}
	if cfg.RateLimitWindow < 0 {
		slog.Warn("Negative RATE_LIMIT_WINDOW_MS, throttling disabled")
		cfg.RateLimitWindow = 0
	}

	return cfg
}

// IsProduction reports whether secure-only cookies must be issued
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// RateLimitRetention is how long an idle client entry is kept before sweeping
func (c *Config) RateLimitRetention() time.Duration {
	retention := 10 * c.RateLimitWindow
	if retention < time.Minute {
		retention = time.Minute
	}
	return retention
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("Invalid integer in environment, using default", "key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return n
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("Invalid duration in environment, using default", "key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return d
}
