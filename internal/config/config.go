/**
 * Configuration for the extraction review worker
 *
 * Loads configuration from environment variables. The validator and
 * aggregator thresholds live here so a template change does not require a
 * rebuild; the field zones can additionally be overridden from a JSON file.
 */

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/formguard/extraction-worker/internal/validation"
)

// Config holds worker configuration.
type Config struct {
	// Redis configuration
	RedisURL  string
	QueueMode string // "asynq" or "redis" (raw LIST, review-UI compatible)
	QueueName string

	// PostgreSQL configuration; empty disables persistence and replay.
	DatabaseURL string

	// Validator thresholds
	MinConfidenceThreshold  float64
	SpatialOverlapThreshold float64

	// Optional JSON file overriding the default field zones.
	ZonesPath string

	// Aggregator configuration
	CaseInsensitiveFields []string

	// Reporting
	ReportDir         string
	ReportIntervalMin int

	// Worker configuration
	WorkerConcurrency int
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:                getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		QueueMode:               getEnvOrDefault("QUEUE_MODE", "asynq"),
		QueueName:               getEnvOrDefault("QUEUE_NAME", "formreview"),
		DatabaseURL:             getEnvOrDefault("DATABASE_URL", ""),
		MinConfidenceThreshold:  getEnvAsFloatOrDefault("MIN_CONFIDENCE_THRESHOLD", validation.DefaultMinConfidence),
		SpatialOverlapThreshold: getEnvAsFloatOrDefault("SPATIAL_OVERLAP_THRESHOLD", validation.DefaultSpatialOverlapThreshold),
		ZonesPath:               getEnvOrDefault("FIELD_ZONES_PATH", ""),
		CaseInsensitiveFields:   splitCSV(getEnvOrDefault("CASE_INSENSITIVE_FIELDS", "lastName,firstName,address.city,address.street")),
		ReportDir:               getEnvOrDefault("REPORT_DIR", "./reports"),
		ReportIntervalMin:       getEnvAsIntOrDefault("REPORT_INTERVAL_MIN", 60),
		WorkerConcurrency:       getEnvAsIntOrDefault("WORKER_CONCURRENCY", 10),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid.
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.QueueMode != "asynq" && c.QueueMode != "redis" {
		return fmt.Errorf("QUEUE_MODE must be 'asynq' or 'redis', got %q", c.QueueMode)
	}

	if c.MinConfidenceThreshold < 0 || c.MinConfidenceThreshold > 1 {
		return fmt.Errorf("MIN_CONFIDENCE_THRESHOLD must be between 0 and 1, got %v", c.MinConfidenceThreshold)
	}

	if c.SpatialOverlapThreshold <= 0 || c.SpatialOverlapThreshold > 1 {
		return fmt.Errorf("SPATIAL_OVERLAP_THRESHOLD must be between 0 (exclusive) and 1, got %v", c.SpatialOverlapThreshold)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.ReportIntervalMin < 1 {
		return fmt.Errorf("REPORT_INTERVAL_MIN must be at least 1, got %d", c.ReportIntervalMin)
	}

	return nil
}

// LoadZones reads the field-zone override file when configured, falling
// back to the built-in template zones.
func (c *Config) LoadZones() (map[string]validation.FieldZone, error) {
	if c.ZonesPath == "" {
		return validation.DefaultZones(), nil
	}

	data, err := os.ReadFile(c.ZonesPath)
	if err != nil {
		return nil, fmt.Errorf("read zones file %s: %w", c.ZonesPath, err)
	}

	var zones map[string]validation.FieldZone
	if err := json.Unmarshal(data, &zones); err != nil {
		return nil, fmt.Errorf("parse zones file %s: %w", c.ZonesPath, err)
	}

	return zones, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	fields := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			fields = append(fields, trimmed)
		}
	}
	return fields
}
