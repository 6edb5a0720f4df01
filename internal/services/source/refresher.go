package source

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/j-veylop/claude-usage-monitor/internal/logger"
	"github.com/j-veylop/claude-usage-monitor/internal/models"
)

// DefaultRefreshTimeout bounds one run of the refresh command.
const DefaultRefreshTimeout = 60 * time.Second

// SettingsStore loads persisted settings. *db.DB implements it.
type SettingsStore interface {
	LoadSettings(ctx context.Context, seed models.Settings) (models.Settings, error)
}

// LatestProvider returns the newest snapshot of the current account.
type LatestProvider interface {
	Latest(ctx context.Context) (*models.UsageSnapshot, error)
}

// PageLoader ingests the page file. *Watcher implements it.
type PageLoader interface {
	Load(ctx context.Context) (*models.UsageSnapshot, error)
}

// SkipReason says why RefreshIfStale did nothing.
type SkipReason string

// Skip reasons.
const (
	SkipNone     SkipReason = ""
	SkipDisabled SkipReason = "auto-refresh disabled"
	SkipFresh    SkipReason = "usage data is fresh"
)

// RefreshResult describes one refresh attempt.
type RefreshResult struct {
	Snapshot *models.UsageSnapshot
	Skipped  SkipReason
	Age      time.Duration
}

// Refresher re-dumps the usage page when the current snapshot is older than
// the configured auto-refresh interval.
type Refresher struct {
	settings SettingsStore
	usage    LatestProvider
	page     PageLoader
	run      func(ctx context.Context, command string) ([]byte, error)
	seed     models.Settings
	command  string
	timeout  time.Duration
}

// NewRefresher creates a refresher. An empty command only re-reads the page file.
func NewRefresher(settings SettingsStore, seed models.Settings, usage LatestProvider, page PageLoader, command string, timeout time.Duration) *Refresher {
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	return &Refresher{
		settings: settings,
		usage:    usage,
		page:     page,
		run:      runShell,
		seed:     seed,
		command:  command,
		timeout:  timeout,
	}
}

// RefreshIfStale refreshes when auto-refresh is enabled and the current
// snapshot is missing or at least AutoRefreshAfter old at now.
func (r *Refresher) RefreshIfStale(ctx context.Context, now time.Time) (RefreshResult, error) {
	settings, err := r.settings.LoadSettings(ctx, r.seed)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("failed to load settings: %w", err)
	}
	if !settings.EnableAutoRefresh {
		return RefreshResult{Skipped: SkipDisabled}, nil
	}

	var age time.Duration
	latest, err := r.usage.Latest(ctx)
	if err != nil {
		// No usable snapshot counts as stale.
		logger.Debug("no current snapshot before refresh", "error", err)
	} else {
		age = latest.Age(now)
		if age < settings.AutoRefreshAfter() {
			return RefreshResult{Skipped: SkipFresh, Age: age}, nil
		}
	}

	logger.Info("usage data is stale, refreshing", "age", age.Round(time.Second))
	snap, err := r.Refresh(ctx)
	return RefreshResult{Snapshot: snap, Age: age}, err
}

// Refresh runs the refresh command, if any, and ingests the resulting page.
func (r *Refresher) Refresh(ctx context.Context) (*models.UsageSnapshot, error) {
	if r.command != "" {
		runCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		out, err := r.run(runCtx, r.command)
		if err != nil {
			return nil, fmt.Errorf("refresh command failed: %w: %s", err, strings.TrimSpace(string(out)))
		}
	}

	snap, err := r.page.Load(ctx)
	if errors.Is(err, ErrUnchanged) && r.command != "" {
		return nil, fmt.Errorf("refresh command did not update the usage page: %w", err)
	}
	return snap, err
}

func runShell(ctx context.Context, command string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	// Children of the shell may hold the output pipe open after it is killed.
	cmd.WaitDelay = time.Second
	return cmd.CombinedOutput()
}
