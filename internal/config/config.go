// Package config handles application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port    int
	BaseURL string

	// Upstream market-data API
	APIBaseURL string
	APITimeout time.Duration

	// J-Quants credentials and rate class
	JQuantsAPIKey string
	JQuantsPlan   string

	// Storage locations
	ServiceDataDir  string
	MarketDBPath    string
	PortfolioDBPath string
	DatasetBasePath string

	// Logging
	LogLevel string

	// CORS
	CORSOrigins []string

	// Job registry / executor pool
	JobCleanupInterval time.Duration
	JobRetention       time.Duration
	ExecutorSlots      int
	SyncJobTimeout     time.Duration

	// Admission-side HTTP rate limiting (distinct from the upstream fetch limiter)
	HTTPRateLimitPerMinute int

	// Idle shutdown (for scale-to-zero deployments)
	IdleTimeout time.Duration

	// Admin control-plane secret (admin token for the dataset evict route)
	AdminTokenSecret string
}

const serviceName = "btorch"

var jquantsPlans = map[string]bool{
	"free":     true,
	"light":    true,
	"standard": true,
	"premium":  true,
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dataDir := getEnv("BTORCH_DATA_DIR", defaultDataDir())

	cfg := &Config{
		Port:    getEnvInt("PORT", 8080),
		BaseURL: getEnv("BASE_URL", "http://localhost:8080"),

		APIBaseURL: getEnv("API_BASE_URL", ""),
		APITimeout: getEnvDuration("API_TIMEOUT", 30*time.Second),

		JQuantsAPIKey: getEnv("JQUANTS_API_KEY", ""),
		JQuantsPlan:   strings.ToLower(getEnv("JQUANTS_PLAN", "free")),

		ServiceDataDir:  dataDir,
		MarketDBPath:    getEnv("MARKET_DB_PATH", filepath.Join(dataDir, "market.db")),
		PortfolioDBPath: getEnv("PORTFOLIO_DB_PATH", filepath.Join(dataDir, "portfolio.db")),
		DatasetBasePath: getEnv("DATASET_BASE_PATH", filepath.Join(dataDir, "datasets")),

		LogLevel: getEnv("LOG_LEVEL", "WARNING"),

		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),

		JobCleanupInterval: getEnvDuration("JOB_CLEANUP_INTERVAL", time.Hour),
		JobRetention:       getEnvDuration("JOB_RETENTION", 24*time.Hour),
		ExecutorSlots:      getEnvInt("EXECUTOR_SLOTS", 4),
		SyncJobTimeout:     getEnvDuration("SYNC_JOB_TIMEOUT", 35*time.Minute),

		HTTPRateLimitPerMinute: getEnvInt("HTTP_RATE_LIMIT_PER_MINUTE", 120),

		IdleTimeout: getEnvDuration("IDLE_TIMEOUT", 0),

		AdminTokenSecret: getEnv("ADMIN_TOKEN_SECRET", ""),
	}

	if !jquantsPlans[cfg.JQuantsPlan] {
		cfg.JQuantsPlan = "free"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configuration that would make the server unable to start safely.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.APITimeout <= 0 {
		return fmt.Errorf("API_TIMEOUT must be positive")
	}
	if c.JobCleanupInterval <= 0 {
		return fmt.Errorf("JOB_CLEANUP_INTERVAL must be positive")
	}
	if c.JobRetention <= 0 {
		return fmt.Errorf("JOB_RETENTION must be positive")
	}
	if c.ExecutorSlots <= 0 {
		return fmt.Errorf("EXECUTOR_SLOTS must be positive, got %d", c.ExecutorSlots)
	}
	if c.SyncJobTimeout <= 0 {
		return fmt.Errorf("SYNC_JOB_TIMEOUT must be positive")
	}
	return nil
}

// defaultDataDir mirrors the XDG_DATA_HOME convention used to lay out datasets.
func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, serviceName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), serviceName)
	}
	return filepath.Join(home, ".local", "share", serviceName)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		}
		return false
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getEnvWithFallback(primaryKey, fallbackKey, defaultValue string) string {
	if value := os.Getenv(primaryKey); value != "" {
		return value
	}
	return getEnv(fallbackKey, defaultValue)
}
