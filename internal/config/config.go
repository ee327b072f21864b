package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DatabasePath string
	LogLevel     string
	Port         int
	DevMode      bool

	// Default strategy for new portfolios
	DefaultStrategy string

	// Cron expression for the monthly review job
	ReviewSchedule string

	// Fetch throttle
	FetchMinDelay        time.Duration
	FetchBatchSize       int
	FetchInterBatchDelay time.Duration
	FetchMaxRetries      int
	FetchBaseBackoff     time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnvAsInt("PORT", 8080),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		DatabasePath:    getEnv("DATABASE_PATH", "./data/research.db"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		DefaultStrategy: getEnv("DEFAULT_STRATEGY", "balanced"),
		ReviewSchedule:  getEnv("REVIEW_SCHEDULE", "0 0 9 1 * *"), // 09:00 on the 1st

		FetchMinDelay:        getEnvAsDuration("FETCH_MIN_DELAY", 500*time.Millisecond),
		FetchBatchSize:       getEnvAsInt("FETCH_BATCH_SIZE", 10),
		FetchInterBatchDelay: getEnvAsDuration("FETCH_INTER_BATCH_DELAY", 2*time.Second),
		FetchMaxRetries:      getEnvAsInt("FETCH_MAX_RETRIES", 3),
		FetchBaseBackoff:     getEnvAsDuration("FETCH_BASE_BACKOFF", time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.FetchBatchSize <= 0 {
		return fmt.Errorf("FETCH_BATCH_SIZE must be positive")
	}
	if c.FetchMaxRetries < 0 {
		return fmt.Errorf("FETCH_MAX_RETRIES must not be negative")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
