// Package config manages application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration for the upload pipeline.
type Config struct {
	// DataDir is the root directory for config, database and token files.
	DataDir string `json:"data_dir"`

	// WorkerCount is the number of concurrent upload workers (1-5).
	WorkerCount int `json:"worker_count"`
	// DelayFrom and DelayTo bound the random anti-throttle delay, in seconds.
	DelayFrom int `json:"delay_from_ss"`
	DelayTo   int `json:"delay_to_ss"`

	// MaxRetries is the per-task retry budget.
	MaxRetries int `json:"max_retries"`
	// RetryBaseDelay is the backoff base for the first retry.
	RetryBaseDelay time.Duration `json:"retry_base_delay"`

	// DefaultPrivacy is used when prod.json does not set one.
	DefaultPrivacy string `json:"default_privacy"`
	// DefaultCategoryID is the YouTube category when prod.json does not set one.
	DefaultCategoryID int `json:"default_category_id"`

	// UploadChunkSize is the resumable upload chunk size in bytes.
	UploadChunkSize int `json:"upload_chunk_size"`
	// APIRequestsPerSecond paces calls against the YouTube Data API.
	APIRequestsPerSecond float64 `json:"api_requests_per_second"`

	// SyncMaxVideos bounds how many channel videos a duplicate-cache sync pulls.
	SyncMaxVideos int `json:"sync_max_videos"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir:              "data",
		WorkerCount:          2,
		DelayFrom:            30,
		DelayTo:              120,
		MaxRetries:           3,
		RetryBaseDelay:       30 * time.Second,
		DefaultPrivacy:       "unlisted",
		DefaultCategoryID:    22,
		UploadChunkSize:      8 * 1024 * 1024,
		APIRequestsPerSecond: 2,
		SyncMaxVideos:        1000,
	}
}

// Load loads configuration from a .env file (if present), the settings file,
// and environment variables, then validates the result.
// Priority: env vars > settings file > defaults.
func Load() (*Config, error) {
	// .env is optional; loaded first so its values act as env vars below.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if err := cfg.loadFromFile(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load settings file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile attempts settings.json in the data dir, then the current
// directory.
func (c *Config) loadFromFile() error {
	paths := []string{
		filepath.Join(c.DataDir, "config", "settings.json"),
		"settings.json",
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	}

	return os.ErrNotExist
}

// loadFromEnv overrides config with MTYAP_-prefixed environment variables.
func (c *Config) loadFromEnv() {
	if v := os.Getenv("MTYAP_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("MTYAP_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.WorkerCount = n
		}
	}
	if v := os.Getenv("MTYAP_DELAY_FROM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DelayFrom = n
		}
	}
	if v := os.Getenv("MTYAP_DELAY_TO"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DelayTo = n
		}
	}
	if v := os.Getenv("MTYAP_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = n
		}
	}
	if v := os.Getenv("MTYAP_RETRY_BASE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RetryBaseDelay = d
		}
	}
	if v := os.Getenv("MTYAP_API_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.APIRequestsPerSecond = f
		}
	}
}

// Validate checks that configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.WorkerCount < 1 || c.WorkerCount > 5 {
		return fmt.Errorf("worker_count must be between 1 and 5, got %d", c.WorkerCount)
	}
	if c.DelayFrom < 0 {
		return fmt.Errorf("delay_from_ss must be non-negative")
	}
	if c.DelayTo < c.DelayFrom {
		return fmt.Errorf("delay_to_ss must be >= delay_from_ss")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	if c.RetryBaseDelay <= 0 {
		return fmt.Errorf("retry_base_delay must be positive")
	}
	switch c.DefaultPrivacy {
	case "public", "unlisted", "private":
	default:
		return fmt.Errorf("default_privacy must be public, unlisted or private")
	}
	if c.UploadChunkSize <= 0 {
		return fmt.Errorf("upload_chunk_size must be positive")
	}
	if c.APIRequestsPerSecond <= 0 {
		return fmt.Errorf("api_requests_per_second must be positive")
	}
	if c.SyncMaxVideos <= 0 {
		return fmt.Errorf("sync_max_videos must be positive")
	}
	return nil
}

// ConfigDir is where credential sets and settings live.
func (c *Config) ConfigDir() string {
	return filepath.Join(c.DataDir, "config")
}

// DBPath is the SQLite database location.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "db", "mtyap.db")
}
