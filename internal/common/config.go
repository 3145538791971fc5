package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string            `toml:"environment"` // "development" or "production"
	Server      ServerConfig      `toml:"server"`
	Queue       QueueConfig       `toml:"queue"`
	Scraper     ScraperConfig     `toml:"scraper"`
	Storage     StorageConfig     `toml:"storage"`
	Maintenance MaintenanceConfig `toml:"maintenance"`
	WebSocket   WebSocketConfig   `toml:"websocket"`
	Logging     LoggingConfig     `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// QueueConfig controls the worker pool and retry policy
type QueueConfig struct {
	Workers          int    `toml:"workers"`            // Number of concurrent scrape workers
	PollInterval     string `toml:"poll_interval"`      // e.g. "1s" - idle sleep between queue polls
	MaxRetryAttempts int    `toml:"max_retry_attempts"` // Retries per task before marking failed
	RetryBaseDelay   string `toml:"retry_base_delay"`   // Base for exponential backoff, e.g. "2s"
	MaxRetryDelay    string `toml:"max_retry_delay"`    // Backoff ceiling, e.g. "60s"
}

// ScraperConfig controls outbound HTTP fetches
type ScraperConfig struct {
	Timeout           string  `toml:"timeout"`             // Per-request timeout, e.g. "30s"
	UserAgent         string  `toml:"user_agent"`          // User-Agent header sent on every fetch
	RequestsPerSecond float64 `toml:"requests_per_second"` // Shared outbound rate limit (0 = unlimited)
	MaxContentLength  int     `toml:"max_content_length"`  // Cap on stored article content in characters
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// MaintenanceConfig controls the stuck-article janitor
type MaintenanceConfig struct {
	Enabled        bool   `toml:"enabled"`
	Schedule       string `toml:"schedule"`        // Cron schedule (standard 5-field format)
	StuckThreshold string `toml:"stuck_threshold"` // How long SCRAPING may last before requeue, e.g. "10m"
}

type WebSocketConfig struct {
	HeartbeatInterval string `toml:"heartbeat_interval"` // e.g. "30s"
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability;
// only user-facing settings should be exposed in colligo.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Queue: QueueConfig{
			Workers:          5,
			PollInterval:     "1s",
			MaxRetryAttempts: 3,
			RetryBaseDelay:   "2s",
			MaxRetryDelay:    "60s",
		},
		Scraper: ScraperConfig{
			Timeout:           "30s",
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestsPerSecond: 5,
			MaxContentLength:  50000,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Maintenance: MaintenanceConfig{
			Enabled:        true,
			Schedule:       "*/5 * * * *", // Every 5 minutes
			StuckThreshold: "10m",
		},
		WebSocket: WebSocketConfig{
			HeartbeatInterval: "30s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> env. Later files override earlier files,
// environment variables override all files, CLI flags are applied separately
// via ApplyFlagOverrides and have the highest priority.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("COLLIGO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("COLLIGO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("COLLIGO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Queue configuration
	if workers := os.Getenv("COLLIGO_QUEUE_WORKERS"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil && w > 0 {
			config.Queue.Workers = w
		}
	}
	if pollInterval := os.Getenv("COLLIGO_QUEUE_POLL_INTERVAL"); pollInterval != "" {
		config.Queue.PollInterval = pollInterval
	}
	if maxRetries := os.Getenv("COLLIGO_QUEUE_MAX_RETRY_ATTEMPTS"); maxRetries != "" {
		if mr, err := strconv.Atoi(maxRetries); err == nil && mr >= 0 {
			config.Queue.MaxRetryAttempts = mr
		}
	}
	if baseDelay := os.Getenv("COLLIGO_QUEUE_RETRY_BASE_DELAY"); baseDelay != "" {
		config.Queue.RetryBaseDelay = baseDelay
	}
	if maxDelay := os.Getenv("COLLIGO_QUEUE_MAX_RETRY_DELAY"); maxDelay != "" {
		config.Queue.MaxRetryDelay = maxDelay
	}

	// Scraper configuration
	if timeout := os.Getenv("COLLIGO_SCRAPER_TIMEOUT"); timeout != "" {
		config.Scraper.Timeout = timeout
	}
	if userAgent := os.Getenv("COLLIGO_SCRAPER_USER_AGENT"); userAgent != "" {
		config.Scraper.UserAgent = userAgent
	}
	if rps := os.Getenv("COLLIGO_SCRAPER_REQUESTS_PER_SECOND"); rps != "" {
		if r, err := strconv.ParseFloat(rps, 64); err == nil && r >= 0 {
			config.Scraper.RequestsPerSecond = r
		}
	}

	// Storage configuration
	if badgerPath := os.Getenv("COLLIGO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Maintenance configuration
	if enabled := os.Getenv("COLLIGO_MAINTENANCE_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Maintenance.Enabled = e
		}
	}
	if schedule := os.Getenv("COLLIGO_MAINTENANCE_SCHEDULE"); schedule != "" {
		config.Maintenance.Schedule = schedule
	}
	if threshold := os.Getenv("COLLIGO_MAINTENANCE_STUCK_THRESHOLD"); threshold != "" {
		config.Maintenance.StuckThreshold = threshold
	}

	// WebSocket configuration
	if heartbeat := os.Getenv("COLLIGO_WEBSOCKET_HEARTBEAT_INTERVAL"); heartbeat != "" {
		config.WebSocket.HeartbeatInterval = heartbeat
	}

	// Logging configuration
	if level := os.Getenv("COLLIGO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("COLLIGO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// parseDuration parses a duration string, falling back when empty or invalid
func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// PollIntervalDuration returns the parsed poll interval (default 1s)
func (q *QueueConfig) PollIntervalDuration() time.Duration {
	return parseDuration(q.PollInterval, time.Second)
}

// RetryBaseDelayDuration returns the parsed backoff base (default 2s)
func (q *QueueConfig) RetryBaseDelayDuration() time.Duration {
	return parseDuration(q.RetryBaseDelay, 2*time.Second)
}

// MaxRetryDelayDuration returns the parsed backoff ceiling (default 60s)
func (q *QueueConfig) MaxRetryDelayDuration() time.Duration {
	return parseDuration(q.MaxRetryDelay, 60*time.Second)
}

// TimeoutDuration returns the parsed scrape timeout (default 30s)
func (s *ScraperConfig) TimeoutDuration() time.Duration {
	return parseDuration(s.Timeout, 30*time.Second)
}

// StuckThresholdDuration returns the parsed stuck-article threshold (default 10m)
func (m *MaintenanceConfig) StuckThresholdDuration() time.Duration {
	return parseDuration(m.StuckThreshold, 10*time.Minute)
}

// HeartbeatIntervalDuration returns the parsed heartbeat interval (default 30s)
func (w *WebSocketConfig) HeartbeatIntervalDuration() time.Duration {
	return parseDuration(w.HeartbeatInterval, 30*time.Second)
}
