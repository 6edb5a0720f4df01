package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate points HOME and the working directory at an empty temp dir so
// Load cannot pick up a developer's .env file.
func isolate(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("Chdir failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("DATABASE_PATH", filepath.Join(tmpDir, "data", "usage.db"))
	t.Setenv("USAGE_PAGE_PATH", filepath.Join(tmpDir, "page", "usage.txt"))
	return tmpDir
}

func TestGetEnvString(t *testing.T) {
	key := "TEST_ENV_STRING"
	val := "test_value"
	os.Setenv(key, val)
	defer os.Unsetenv(key)

	if got := getEnvString(key, "default"); got != val {
		t.Errorf("getEnvString() = %q, want %q", got, val)
	}

	if got := getEnvString("NON_EXISTENT", "default"); got != "default" {
		t.Errorf("getEnvString() = %q, want %q", got, "default")
	}
}

func TestGetEnvRaw_EmptyWins(t *testing.T) {
	t.Setenv("TEST_ENV_RAW", "")

	if got := getEnvRaw("TEST_ENV_RAW", "default"); got != "" {
		t.Errorf("getEnvRaw() = %q, want empty", got)
	}
	if got := getEnvRaw("TEST_ENV_RAW_UNSET", "default"); got != "default" {
		t.Errorf("getEnvRaw() = %q, want default", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name   string
		envVal string
		want   int
	}{
		{"Valid", "45", 45},
		{"Spaces", " 12 ", 12},
		{"Invalid", "abc", 7},
		{"Empty", "", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_ENV_INT", tt.envVal)
			if got := getEnvInt("TEST_ENV_INT", 7); got != tt.want {
				t.Errorf("getEnvInt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name   string
		envVal string
		def    bool
		want   bool
	}{
		{"True", "true", false, true},
		{"One", "1", false, true},
		{"False", "false", true, false},
		{"Invalid", "maybe", true, true},
		{"Empty", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_ENV_BOOL", tt.envVal)
			if got := getEnvBool("TEST_ENV_BOOL", tt.def); got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	key := "TEST_ENV_DURATION"

	tests := []struct {
		name       string
		envVal     string
		defaultVal time.Duration
		want       time.Duration
	}{
		{"ValidDuration", "1m", time.Second, time.Minute},
		{"ValidSeconds", "60", time.Second, 60 * time.Second},
		{"Invalid", "invalid", time.Second, time.Second},
		{"Empty", "", time.Second, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envVal != "" {
				os.Setenv(key, tt.envVal)
				defer os.Unsetenv(key)
			} else {
				os.Unsetenv(key)
			}

			if got := getEnvDuration(key, tt.defaultVal); got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEnsureDir(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "dir")

	if err := ensureDir(path); err != nil {
		t.Fatalf("ensureDir() failed: %v", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("directory was not created")
	}

	if err := ensureDir(""); err != nil {
		t.Error("ensureDir(\"\") should not error")
	}
}

func TestDefaultPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Skipping test because user home dir cannot be found")
	}

	want := filepath.Join(home, ".config", "claude-usage-monitor", "usage.db")
	if got := defaultPath("usage.db"); got != want {
		t.Errorf("defaultPath() = %q, want %q", got, want)
	}
}

func TestGetEnvPaths(t *testing.T) {
	paths := getEnvPaths()
	if len(paths) == 0 {
		t.Error("getEnvPaths() returned empty list")
	}

	// Basic check that it contains current directory
	cwd, _ := os.Getwd()
	found := false
	for _, p := range paths {
		if p == filepath.Join(cwd, ".env") {
			found = true
			break
		}
	}
	if !found {
		t.Error("getEnvPaths() missing current directory .env")
	}
}

func TestLoad_Defaults(t *testing.T) {
	tmpDir := isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.NotifyThreshold != 60 {
		t.Errorf("NotifyThreshold = %d, want 60", cfg.NotifyThreshold)
	}
	if cfg.AutoRefreshInterval != 30 {
		t.Errorf("AutoRefreshInterval = %d, want 30", cfg.AutoRefreshInterval)
	}
	if cfg.CheckInterval != defaultCheckInterval {
		t.Errorf("CheckInterval = %v, want %v", cfg.CheckInterval, defaultCheckInterval)
	}
	if !cfg.EnableNotifications || !cfg.EnableAutoRefresh {
		t.Error("notifications and auto refresh should default to enabled")
	}
	if cfg.ServerChanBaseURL != defaultServerChanBaseURL {
		t.Errorf("ServerChanBaseURL = %q", cfg.ServerChanBaseURL)
	}
	if !cfg.IngestEnabled() || cfg.IngestAddr != defaultIngestAddr {
		t.Errorf("IngestAddr = %q, want %q", cfg.IngestAddr, defaultIngestAddr)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "data")); err != nil {
		t.Errorf("database directory was not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "page")); err != nil {
		t.Errorf("page directory was not created: %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	isolate(t)
	t.Setenv("SERVERCHAN_KEY", "SCTkey")
	t.Setenv("FIREBASE_DATABASE_URL", "https://demo.firebaseio.com/")
	t.Setenv("NOTIFY_THRESHOLD", "45")
	t.Setenv("ENABLE_NOTIFICATIONS", "false")
	t.Setenv("CHECK_INTERVAL", "5m")
	t.Setenv("INGEST_ADDR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.FirebaseDatabaseURL != "https://demo.firebaseio.com" {
		t.Errorf("FirebaseDatabaseURL = %q, trailing slash should be trimmed", cfg.FirebaseDatabaseURL)
	}
	if cfg.IngestEnabled() {
		t.Error("empty INGEST_ADDR should disable the ingest API")
	}

	s := cfg.SeedSettings()
	if s.ServerChanKey != "SCTkey" || s.NotifyThreshold != 45 || s.EnableNotifications {
		t.Errorf("unexpected seed settings: %+v", s)
	}
	if s.FirebaseURL() != "https://demo.firebaseio.com" {
		t.Errorf("seed FirebaseURL() = %q", s.FirebaseURL())
	}
	if s.LastNotifyTime != 0 {
		t.Error("seed settings should start with no notification history")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"ZeroThreshold", "NOTIFY_THRESHOLD", "0"},
		{"NegativeRefresh", "AUTO_REFRESH_INTERVAL", "-5"},
		{"TinyCheckInterval", "CHECK_INTERVAL", "10s"},
		{"BadFirebaseURL", "FIREBASE_DATABASE_URL", "demo.firebaseio.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv(tt.key, tt.val)

			if _, err := Load(); err == nil {
				t.Errorf("Load() should fail for %s=%s", tt.key, tt.val)
			}
		})
	}
}

func TestLoad_WithEnvFile(t *testing.T) {
	tmpDir := isolate(t)
	envPath := filepath.Join(tmpDir, ".env")
	content := "SERVERCHAN_KEY=from-env-file\nNOTIFY_THRESHOLD=20"
	if err := os.WriteFile(envPath, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	os.Unsetenv("SERVERCHAN_KEY")
	os.Unsetenv("NOTIFY_THRESHOLD")
	t.Cleanup(func() {
		os.Unsetenv("SERVERCHAN_KEY")
		os.Unsetenv("NOTIFY_THRESHOLD")
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.ServerChanKey != "from-env-file" {
		t.Errorf("ServerChanKey = %q, want from-env-file", cfg.ServerChanKey)
	}
	if cfg.NotifyThreshold != 20 {
		t.Errorf("NotifyThreshold = %d, want 20", cfg.NotifyThreshold)
	}
}
