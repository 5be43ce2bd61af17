// Package config provides configuration management for the precompute service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
// All values are read once at startup; a missing required value aborts startup
// with the full list of missing variables (never a partial fallback).
type Config struct {
	DataDir string // Base directory for the SQLite databases (always absolute)

	Timezone string // IANA zone name the whole system operates in (e.g. "Asia/Bangkok")
	Location *time.Location

	MarketAPIBase string // Market-data provider base URL
	MarketAPIKey  string // Provider API key

	AWSRegion     string
	ReportsBucket string // Object-store bucket for rendered reports
	RefDataBucket string // Bucket the reference-data producer writes CSVs to
	RefDataPrefix string

	ReferenceIndexSymbol string // Display symbol of the relative-strength reference index

	Schedule string // Cron expression for the nightly run, in the configured zone

	WorkerConcurrency int           // Max concurrent worker executions
	MaxRetries        int           // Queue redelivery cap per message
	WorkerTimeout     time.Duration // Wall-clock budget per message, finalization margin included
	PhaseTimeout      time.Duration // Barrier timeout per fan-out phase
	LookbackDays      int           // Trailing window for raw fetch and percentiles

	EnableRefDataSync bool // Feature flag: reference-data CSV ingest loop
	EnablePDFReports  bool // Feature flag: PDF rendering + object-store upload

	LogLevel string
	Port     int
	DevMode  bool
}

// Load reads configuration from environment variables (and .env if present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:              absDataDir,
		Timezone:             getEnv("PRECOMPUTE_TZ", ""),
		MarketAPIBase:        getEnv("MARKET_API_BASE", ""),
		MarketAPIKey:         getEnv("MARKET_API_KEY", ""),
		AWSRegion:            getEnv("AWS_REGION", "ap-southeast-1"),
		ReportsBucket:        getEnv("REPORTS_BUCKET", ""),
		RefDataBucket:        getEnv("REFDATA_BUCKET", ""),
		RefDataPrefix:        getEnv("REFDATA_PREFIX", "refdata/"),
		ReferenceIndexSymbol: getEnv("REFERENCE_INDEX_SYMBOL", "SPY"),
		Schedule:             getEnv("PRECOMPUTE_SCHEDULE", "0 1 * * *"), // 01:00 local, after market close
		WorkerConcurrency:    getEnvAsInt("WORKER_CONCURRENCY", 4),
		MaxRetries:           getEnvAsInt("WORKER_MAX_RETRIES", 3),
		WorkerTimeout:        getEnvAsDuration("WORKER_TIMEOUT", 5*time.Minute),
		PhaseTimeout:         getEnvAsDuration("PHASE_TIMEOUT", 30*time.Minute),
		LookbackDays:         getEnvAsInt("LOOKBACK_DAYS", 365),
		EnableRefDataSync:    getEnvAsBool("FEATURE_REFDATA_SYNC", false),
		EnablePDFReports:     getEnvAsBool("FEATURE_PDF_REPORTS", false),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		Port:                 getEnvAsInt("GO_PORT", 8001),
		DevMode:              getEnvAsBool("DEV_MODE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid PRECOMPUTE_TZ %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	return cfg, nil
}

// Validate checks that all required configuration is present.
// It collects every missing variable so operators see the full list at once.
func (c *Config) Validate() error {
	var missing []string

	if c.Timezone == "" {
		missing = append(missing, "PRECOMPUTE_TZ")
	}
	if c.MarketAPIBase == "" {
		missing = append(missing, "MARKET_API_BASE")
	}
	if c.EnablePDFReports && c.ReportsBucket == "" {
		missing = append(missing, "REPORTS_BUCKET")
	}
	if c.EnableRefDataSync && c.RefDataBucket == "" {
		missing = append(missing, "REFDATA_BUCKET")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be >= 1, got %d", c.WorkerConcurrency)
	}
	if c.LookbackDays < 1 {
		return fmt.Errorf("LOOKBACK_DAYS must be >= 1, got %d", c.LookbackDays)
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
