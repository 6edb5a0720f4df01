package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/claude-usage-monitor/internal/config"
	"github.com/j-veylop/claude-usage-monitor/internal/models"
	"github.com/j-veylop/claude-usage-monitor/internal/services"
	"github.com/j-veylop/claude-usage-monitor/internal/services/notify"
)

const testPage = "me@example.com\nCurrent session\nResets in 45 min\n30% used\nAll models\nResets Tue 12:59 PM\n8% used\n"

// newTestManager opens a manager on a temp database. It is not started, so
// page sources are unavailable.
func newTestManager(t *testing.T) *services.Manager {
	t.Helper()

	tmpDir := t.TempDir()
	cfg := &config.Config{
		DatabasePath:        filepath.Join(tmpDir, "usage.db"),
		UsagePagePath:       filepath.Join(tmpDir, "usage.txt"),
		ServerChanBaseURL:   "http://127.0.0.1:1",
		CheckInterval:       time.Hour,
		RefreshTimeout:      time.Second,
		NotifyThreshold:     60,
		AutoRefreshInterval: 30,
		EnableNotifications: true,
	}

	mgr, err := services.NewManager(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

func TestCommands_Tick(t *testing.T) {
	cmds := NewCommands(nil)
	if cmds.Tick(time.Millisecond) == nil {
		t.Error("Tick returned nil")
	}
	if cmds.DefaultTick() == nil {
		t.Error("DefaultTick returned nil")
	}
}

func TestCommands_Notifications(t *testing.T) {
	cmds := NewCommands(nil)

	tests := []struct {
		name string
		fn   func(string) tea.Cmd
		want NotificationType
	}{
		{"Success", cmds.NotifySuccess, NotificationSuccess},
		{"Error", cmds.NotifyError, NotificationError},
		{"Warning", cmds.NotifyWarning, NotificationWarning},
		{"Info", cmds.NotifyInfo, NotificationInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.fn("msg")()

			addMsg, ok := msg.(AddNotificationMsg)
			if !ok {
				t.Fatalf("Expected AddNotificationMsg, got %T", msg)
			}
			if addMsg.Type != tt.want {
				t.Errorf("Type = %v, want %v", addMsg.Type, tt.want)
			}
			if addMsg.Message != "msg" {
				t.Errorf("Message = %q, want msg", addMsg.Message)
			}
			if addMsg.Duration <= 0 {
				t.Error("toasts should expire")
			}
		})
	}
}

func TestCommands_Quit(t *testing.T) {
	msg := NewCommands(nil).Quit()()
	if _, ok := msg.(tea.QuitMsg); !ok {
		t.Errorf("Expected QuitMsg, got %T", msg)
	}
}

func TestCommands_LoadAccounts(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	if _, err := mgr.IngestText(ctx, testPage, "test", time.Now()); err != nil {
		t.Fatalf("IngestText failed: %v", err)
	}

	msg := NewCommands(mgr).LoadAccounts()()
	loaded, ok := msg.(AccountsLoadedMsg)
	if !ok {
		t.Fatalf("Expected AccountsLoadedMsg, got %T", msg)
	}
	if loaded.Err != nil {
		t.Fatalf("Err = %v", loaded.Err)
	}
	if len(loaded.Accounts) != 1 || loaded.Accounts[0].AccountID != "me@example.com" {
		t.Errorf("Accounts = %+v", loaded.Accounts)
	}
	if loaded.CurrentAccount != "me@example.com" {
		t.Errorf("CurrentAccount = %q", loaded.CurrentAccount)
	}
}

func TestCommands_Settings(t *testing.T) {
	mgr := newTestManager(t)
	cmds := NewCommands(mgr)

	msg := cmds.LoadSettings()()
	loaded, ok := msg.(SettingsLoadedMsg)
	if !ok {
		t.Fatalf("Expected SettingsLoadedMsg, got %T", msg)
	}
	if loaded.Err != nil || loaded.Settings.NotifyThreshold != 60 {
		t.Fatalf("SettingsLoadedMsg = %+v", loaded)
	}
	if loaded.NextCheck != nil {
		t.Error("NextCheck should be nil before Start")
	}

	threshold := 30
	msg = cmds.UpdateSettings(models.SettingsPatch{NotifyThreshold: &threshold})()
	updated, ok := msg.(SettingsUpdatedMsg)
	if !ok {
		t.Fatalf("Expected SettingsUpdatedMsg, got %T", msg)
	}
	if updated.Err != nil || updated.Settings.NotifyThreshold != 30 {
		t.Errorf("SettingsUpdatedMsg = %+v", updated)
	}
}

func TestCommands_RefreshBeforeStart(t *testing.T) {
	mgr := newTestManager(t)

	msg := NewCommands(mgr).Refresh()()
	res, ok := msg.(RefreshResultMsg)
	if !ok {
		t.Fatalf("Expected RefreshResultMsg, got %T", msg)
	}
	if !errors.Is(res.Err, services.ErrNotStarted) {
		t.Errorf("Err = %v, want ErrNotStarted", res.Err)
	}
}

func TestCommands_SendTestNotificationUnconfigured(t *testing.T) {
	mgr := newTestManager(t)

	msg := NewCommands(mgr).SendTestNotification()()
	res, ok := msg.(TestNotificationResultMsg)
	if !ok {
		t.Fatalf("Expected TestNotificationResultMsg, got %T", msg)
	}
	if !notify.IsNotConfigured(res.Result.Err) {
		t.Errorf("Err = %v, want not configured", res.Result.Err)
	}
}

func TestCommands_SwitchAccount(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	if _, err := mgr.IngestText(ctx, testPage, "test", time.Now()); err != nil {
		t.Fatalf("IngestText failed: %v", err)
	}

	msg := NewCommands(mgr).SwitchAccount("me@example.com")()
	res, ok := msg.(SwitchAccountResultMsg)
	if !ok {
		t.Fatalf("Expected SwitchAccountResultMsg, got %T", msg)
	}
	if res.Err != nil {
		t.Errorf("Err = %v", res.Err)
	}
}

func TestWaitForServiceEventCmd(t *testing.T) {
	ch := make(chan services.ServiceEvent, 1)
	ch <- services.ErrorEvent{Service: "test", Error: errors.New("boom")}

	msg := waitForServiceEventCmd(ch)()
	wrapped, ok := msg.(ServiceEventMsg)
	if !ok {
		t.Fatalf("Expected ServiceEventMsg, got %T", msg)
	}
	if _, ok := wrapped.Event.(services.ErrorEvent); !ok {
		t.Errorf("Event = %T", wrapped.Event)
	}

	close(ch)
	if msg := waitForServiceEventCmd(ch)(); msg != nil {
		t.Errorf("closed channel should yield nil, got %T", msg)
	}
}
