package source

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/j-veylop/claude-usage-monitor/internal/models"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type staticSettings struct {
	err      error
	settings models.Settings
}

func (s staticSettings) LoadSettings(context.Context, models.Settings) (models.Settings, error) {
	return s.settings, s.err
}

type fakeLatest struct {
	snap *models.UsageSnapshot
	err  error
}

func (f fakeLatest) Latest(context.Context) (*models.UsageSnapshot, error) {
	return f.snap, f.err
}

type fakePage struct {
	snap  *models.UsageSnapshot
	err   error
	loads int
}

func (f *fakePage) Load(context.Context) (*models.UsageSnapshot, error) {
	f.loads++
	return f.snap, f.err
}

func snapshotAged(age time.Duration) *models.UsageSnapshot {
	return &models.UsageSnapshot{AccountID: "a", Timestamp: testNow.Add(-age).UnixMilli()}
}

func newTestRefresher(settings models.Settings, latest fakeLatest, page *fakePage, command string) (*Refresher, *[]string) {
	r := NewRefresher(staticSettings{settings: settings}, models.DefaultSettings(), latest, page, command, 0)
	var ran []string
	r.run = func(_ context.Context, command string) ([]byte, error) {
		ran = append(ran, command)
		return nil, nil
	}
	return r, &ran
}

func TestRefreshIfStale(t *testing.T) {
	enabled := models.DefaultSettings()
	enabled.AutoRefreshInterval = 30
	disabled := enabled
	disabled.EnableAutoRefresh = false

	tests := []struct {
		name        string
		settings    models.Settings
		latest      fakeLatest
		wantSkip    SkipReason
		wantRefresh bool
	}{
		{"disabled", disabled, fakeLatest{snap: snapshotAged(2 * time.Hour)}, SkipDisabled, false},
		{"fresh", enabled, fakeLatest{snap: snapshotAged(10 * time.Minute)}, SkipFresh, false},
		{"exactly due", enabled, fakeLatest{snap: snapshotAged(30 * time.Minute)}, SkipNone, true},
		{"stale", enabled, fakeLatest{snap: snapshotAged(45 * time.Minute)}, SkipNone, true},
		{"no snapshot", enabled, fakeLatest{err: errors.New("no usage snapshot")}, SkipNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := &fakePage{snap: snapshotAged(0)}
			r, ran := newTestRefresher(tt.settings, tt.latest, page, "dump-usage")

			result, err := r.RefreshIfStale(context.Background(), testNow)
			if err != nil {
				t.Fatalf("RefreshIfStale() failed: %v", err)
			}
			if result.Skipped != tt.wantSkip {
				t.Errorf("Skipped = %q, want %q", result.Skipped, tt.wantSkip)
			}
			refreshed := len(*ran) == 1 && page.loads == 1
			if refreshed != tt.wantRefresh {
				t.Errorf("refreshed = %v (ran %v, loads %d), want %v", refreshed, *ran, page.loads, tt.wantRefresh)
			}
			if tt.wantRefresh && result.Snapshot == nil {
				t.Error("refresh result has no snapshot")
			}
		})
	}
}

func TestRefreshIfStale_SettingsError(t *testing.T) {
	r := NewRefresher(staticSettings{err: errors.New("db locked")}, models.DefaultSettings(), fakeLatest{}, &fakePage{}, "", 0)
	if _, err := r.RefreshIfStale(context.Background(), testNow); err == nil {
		t.Error("expected settings error")
	}
}

func TestRefresh_NoCommandReloadsPage(t *testing.T) {
	page := &fakePage{err: ErrUnchanged}
	r, ran := newTestRefresher(models.DefaultSettings(), fakeLatest{}, page, "")

	_, err := r.Refresh(context.Background())
	if !errors.Is(err, ErrUnchanged) {
		t.Errorf("Refresh() error = %v, want ErrUnchanged", err)
	}
	if len(*ran) != 0 {
		t.Error("no command should run")
	}
	if page.loads != 1 {
		t.Errorf("loads = %d, want 1", page.loads)
	}
}

func TestRefresh_CommandLeftPageUnchanged(t *testing.T) {
	page := &fakePage{err: ErrUnchanged}
	r, _ := newTestRefresher(models.DefaultSettings(), fakeLatest{}, page, "dump-usage")

	_, err := r.Refresh(context.Background())
	if err == nil || !strings.Contains(err.Error(), "did not update") {
		t.Errorf("Refresh() error = %v", err)
	}
}

func TestRefresh_CommandFails(t *testing.T) {
	page := &fakePage{}
	r, _ := newTestRefresher(models.DefaultSettings(), fakeLatest{}, page, "dump-usage")
	r.run = func(context.Context, string) ([]byte, error) {
		return []byte("browser not running\n"), errors.New("exit status 1")
	}

	_, err := r.Refresh(context.Background())
	if err == nil || !strings.Contains(err.Error(), "browser not running") {
		t.Errorf("Refresh() error = %v, want command output", err)
	}
	if page.loads != 0 {
		t.Error("page should not be loaded after a failed command")
	}
}

func TestRefresh_CommandTimeout(t *testing.T) {
	page := &fakePage{}
	r := NewRefresher(staticSettings{}, models.DefaultSettings(), fakeLatest{}, page, "sleep 5", 50*time.Millisecond)

	start := time.Now()
	if _, err := r.Refresh(context.Background()); err == nil {
		t.Error("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("command was not killed on timeout, took %v", elapsed)
	}
}
