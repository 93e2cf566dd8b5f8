// Package config loads daemon configuration from the environment.
package config

import (
	"errors"
	"os"
	"time"
)

// Config holds the annosyncd runtime configuration.
type Config struct {
	ListenAddr    string        // localhost API address
	BackendURL    string        // annotation backend base URL
	APIToken      string        // optional bearer token for the backend
	DataDir       string        // local SQLite location
	SyncInterval  time.Duration // periodic processing cadence
	ItemDelay     time.Duration // throttle between queue items
	ProbeInterval time.Duration // connectivity probe cadence
	LogLevel      string        // DEBUG, INFO, WARN, ERROR
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	syncInterval, err := getDuration("SYNC_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, errors.New("invalid SYNC_INTERVAL format")
	}
	itemDelay, err := getDuration("SYNC_ITEM_DELAY", 1*time.Second)
	if err != nil {
		return nil, errors.New("invalid SYNC_ITEM_DELAY format")
	}
	probeInterval, err := getDuration("PROBE_INTERVAL", 10*time.Second)
	if err != nil {
		return nil, errors.New("invalid PROBE_INTERVAL format")
	}

	cfg := &Config{
		ListenAddr:    getEnv("LISTEN_ADDR", "127.0.0.1:8091"),
		BackendURL:    os.Getenv("BACKEND_URL"),
		APIToken:      os.Getenv("API_TOKEN"),
		DataDir:       getEnv("DATA_DIR", "./data"),
		SyncInterval:  syncInterval,
		ItemDelay:     itemDelay,
		ProbeInterval: probeInterval,
		LogLevel:      getEnv("LOG_LEVEL", "INFO"),
	}

	// Validate required fields
	if cfg.BackendURL == "" {
		return nil, errors.New("BACKEND_URL is required")
	}

	return cfg, nil
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Helper: get duration env with default value
func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return time.ParseDuration(value)
}
