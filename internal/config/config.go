// Package config contains everything related to configuration
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/j-veylop/claude-usage-monitor/internal/models"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath        string
	UsagePagePath       string
	RefreshCommand      string
	IngestAddr          string
	ServerChanKey       string
	ServerChanBaseURL   string
	FirebaseDatabaseURL string
	LogLevel            string
	LogPath             string
	CheckInterval       time.Duration
	RefreshTimeout      time.Duration
	NotifyThreshold     int
	AutoRefreshInterval int
	EnableNotifications bool
	EnableAutoRefresh   bool
	DesktopNotify       bool
}

// Default values
const (
	appDirName               = "claude-usage-monitor"
	defaultCheckInterval     = 15 * time.Minute
	defaultRefreshTimeout    = 60 * time.Second
	defaultIngestAddr        = "127.0.0.1:8765"
	defaultServerChanBaseURL = "https://sctapi.ftqq.com"
)

// Load reads configuration from .env files and environment variables.
func Load() (*Config, error) {
	// Try loading .env from multiple locations
	envPaths := getEnvPaths()
	for _, path := range envPaths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			break
		}
	}

	cfg := &Config{
		DatabasePath:        getEnvString("DATABASE_PATH", defaultPath("usage.db")),
		UsagePagePath:       getEnvString("USAGE_PAGE_PATH", defaultPath("usage.txt")),
		RefreshCommand:      getEnvString("REFRESH_COMMAND", ""),
		IngestAddr:          getEnvRaw("INGEST_ADDR", defaultIngestAddr),
		ServerChanKey:       getEnvString("SERVERCHAN_KEY", ""),
		ServerChanBaseURL:   strings.TrimRight(getEnvString("SERVERCHAN_BASE_URL", defaultServerChanBaseURL), "/"),
		FirebaseDatabaseURL: strings.TrimRight(getEnvString("FIREBASE_DATABASE_URL", ""), "/"),
		LogLevel:            getEnvString("LOG_LEVEL", "info"),
		LogPath:             getEnvRaw("LOG_PATH", defaultPath("usagemon.log")),
		CheckInterval:       getEnvDuration("CHECK_INTERVAL", defaultCheckInterval),
		RefreshTimeout:      getEnvDuration("REFRESH_TIMEOUT", defaultRefreshTimeout),
		NotifyThreshold:     getEnvInt("NOTIFY_THRESHOLD", models.DefaultNotifyThreshold),
		AutoRefreshInterval: getEnvInt("AUTO_REFRESH_INTERVAL", models.DefaultAutoRefreshInterval),
		EnableNotifications: getEnvBool("ENABLE_NOTIFICATIONS", true),
		EnableAutoRefresh:   getEnvBool("ENABLE_AUTO_REFRESH", true),
		DesktopNotify:       getEnvBool("DESKTOP_NOTIFICATIONS", true),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Ensure database directory exists
	if err := ensureDir(filepath.Dir(cfg.DatabasePath)); err != nil {
		return nil, err
	}

	// Ensure the watched page directory exists
	if err := ensureDir(filepath.Dir(cfg.UsagePagePath)); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.NotifyThreshold <= 0 {
		return fmt.Errorf("NOTIFY_THRESHOLD must be positive, got %d", c.NotifyThreshold)
	}
	if c.AutoRefreshInterval <= 0 {
		return fmt.Errorf("AUTO_REFRESH_INTERVAL must be positive, got %d", c.AutoRefreshInterval)
	}
	if c.CheckInterval < time.Minute {
		return fmt.Errorf("CHECK_INTERVAL must be at least 1m, got %s", c.CheckInterval)
	}
	if c.FirebaseDatabaseURL != "" && !strings.HasPrefix(c.FirebaseDatabaseURL, "https://") &&
		!strings.HasPrefix(c.FirebaseDatabaseURL, "http://") {
		return fmt.Errorf("FIREBASE_DATABASE_URL must be an http(s) URL, got %q", c.FirebaseDatabaseURL)
	}
	return nil
}

// SeedSettings returns the settings used when the store has none yet.
func (c *Config) SeedSettings() models.Settings {
	s := models.DefaultSettings()
	s.ServerChanKey = c.ServerChanKey
	s.NotifyThreshold = c.NotifyThreshold
	s.EnableNotifications = c.EnableNotifications
	s.EnableAutoRefresh = c.EnableAutoRefresh
	s.AutoRefreshInterval = c.AutoRefreshInterval
	if c.FirebaseDatabaseURL != "" {
		s.FirebaseConfig = &models.FirebaseConfig{DatabaseURL: c.FirebaseDatabaseURL}
	}
	return s
}

// IngestEnabled reports whether the HTTP ingest API should be started.
func (c *Config) IngestEnabled() bool {
	return c.IngestAddr != ""
}

// getEnvPaths returns a list of paths to check for .env files.
func getEnvPaths() []string {
	var paths []string

	// Current directory
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}

	// Home directory locations
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", appDirName, ".env"),
			filepath.Join(home, "."+appDirName, ".env"),
		)
	}

	// Parent directories (useful for development)
	if cwd, err := os.Getwd(); err == nil {
		parent := filepath.Dir(cwd)
		paths = append(paths, filepath.Join(parent, ".env"))
	}

	return paths
}

// defaultPath returns name inside the application config directory.
func defaultPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".config", appDirName, name)
}

// getEnvString retrieves a string environment variable or returns the default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvRaw is like getEnvString but an explicitly empty value wins over the default.
func getEnvRaw(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns the default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns the default.
// Accepts values like "30s", "1m", "500ms".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		// Try parsing as seconds if no unit specified
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

// ensureDir creates a directory and all parent directories if they don't exist.
func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o750)
}
