package settings

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/j-veylop/claude-usage-monitor/internal/app"
	"github.com/j-veylop/claude-usage-monitor/internal/config"
	"github.com/j-veylop/claude-usage-monitor/internal/models"
	"github.com/j-veylop/claude-usage-monitor/internal/services/notify"
)

var testNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.Local)

func testConfig() *config.Config {
	return &config.Config{
		DatabasePath:  "/tmp/usage.db",
		UsagePagePath: "/tmp/usage.txt",
		IngestAddr:    "127.0.0.1:8765",
		CheckInterval: 15 * time.Minute,
	}
}

func newTestModel(settings *models.Settings) (*Model, *app.State) {
	state := app.NewState()
	if settings != nil {
		state.SetSettings(*settings)
	}
	m := New(state, testConfig())
	m.now = func() time.Time { return testNow }
	m.SetSize(110, 80)
	return m, state
}

func pressKey(t *testing.T, m *Model, r rune) tea.Msg {
	t.Helper()
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	if cmd == nil {
		return nil
	}
	return cmd()
}

func TestNew(t *testing.T) {
	m := New(app.NewState(), nil)
	if m == nil {
		t.Fatal("New returned nil")
	}
	if m.Init() != nil {
		t.Error("Init should return nil")
	}
}

func TestModel_ViewNotLoaded(t *testing.T) {
	m := New(app.NewState(), nil)
	m.SetSize(80, 60)

	view := ansi.Strip(m.View())
	if !strings.Contains(view, "Settings not loaded yet") {
		t.Error("missing settings placeholder")
	}
	if !strings.Contains(view, "Configuration not loaded") {
		t.Error("missing config placeholder")
	}
	if !strings.Contains(view, "About Claude Usage Monitor") {
		t.Error("about card should always render")
	}
}

func TestModel_View(t *testing.T) {
	settings := models.DefaultSettings()
	settings.ServerChanKey = "SCT123456789"
	settings.FirebaseConfig = &models.FirebaseConfig{DatabaseURL: "https://demo.firebaseio.com"}
	settings.LastNotifyTime = testNow.Add(-10 * time.Minute).UnixMilli()

	m, state := newTestModel(&settings)
	next := testNow.Add(5 * time.Minute)
	state.SetNextCheck(&next)

	view := ansi.Strip(m.View())
	for _, want := range []string{
		"Notifications:",
		"SCT1...89",
		"1 hours before reset",
		"30 minutes",
		"10 minutes ago",
		"none this session",
		next.Format("15:04:05"),
		"30 minutes",
		"https://demo.firebaseio.com",
		"/tmp/usage.txt",
		"none (re-read page file)",
		"/tmp/usage.db",
		"http://127.0.0.1:8765/api/usage",
		"15m0s",
		"Go Version:",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if strings.Contains(view, "SCT123456789") {
		t.Error("the ServerChan key must be masked")
	}
}

func TestModel_ViewLastResult(t *testing.T) {
	settings := models.DefaultSettings()

	tests := []struct {
		name   string
		result notify.Result
		want   string
	}{
		{
			name:   "sent",
			result: notify.Result{Type: notify.ResultSent, At: testNow.Add(-2 * time.Minute)},
			want:   "sent, 2 minutes ago",
		},
		{
			name:   "test failed",
			result: notify.Result{Type: notify.ResultFailed, Test: true, At: testNow, Err: errors.New("boom")},
			want:   "test failed, just now: boom",
		},
		{
			name: "skipped",
			result: notify.Result{
				Type:     notify.ResultSkipped,
				At:       testNow,
				Decision: notify.Decision{Reason: notify.ReasonCooldown},
			},
			want: "skipped, just now (cooldown in effect)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, state := newTestModel(&settings)
			state.SetLastNotification(tt.result)
			if view := ansi.Strip(m.View()); !strings.Contains(view, tt.want) {
				t.Errorf("view missing %q", tt.want)
			}
		})
	}
}

func TestModel_Toggles(t *testing.T) {
	settings := models.DefaultSettings()
	m, _ := newTestModel(&settings)

	msg, ok := pressKey(t, m, 'n').(app.UpdateSettingsMsg)
	if !ok || msg.Patch.EnableNotifications == nil || *msg.Patch.EnableNotifications {
		t.Errorf("n should disable notifications, got %+v", msg)
	}

	msg, ok = pressKey(t, m, 'a').(app.UpdateSettingsMsg)
	if !ok || msg.Patch.EnableAutoRefresh == nil || *msg.Patch.EnableAutoRefresh {
		t.Errorf("a should disable auto-refresh, got %+v", msg)
	}
}

func TestModel_Threshold(t *testing.T) {
	settings := models.DefaultSettings()
	m, state := newTestModel(&settings)

	msg, ok := pressKey(t, m, '+').(app.UpdateSettingsMsg)
	if !ok || msg.Patch.NotifyThreshold == nil || *msg.Patch.NotifyThreshold != 65 {
		t.Errorf("+ should raise the threshold to 65, got %+v", msg)
	}

	msg, ok = pressKey(t, m, '-').(app.UpdateSettingsMsg)
	if !ok || msg.Patch.NotifyThreshold == nil || *msg.Patch.NotifyThreshold != 55 {
		t.Errorf("- should lower the threshold to 55, got %+v", msg)
	}

	settings.NotifyThreshold = 7
	state.SetSettings(settings)
	msg, ok = pressKey(t, m, '-').(app.UpdateSettingsMsg)
	if !ok || *msg.Patch.NotifyThreshold != minThreshold {
		t.Errorf("threshold should stop at %d, got %+v", minThreshold, msg)
	}

	settings.NotifyThreshold = minThreshold
	state.SetSettings(settings)
	if got := pressKey(t, m, '-'); got != nil {
		t.Errorf("threshold at the minimum should not change, got %T", got)
	}
}

func TestModel_KeysNeedSettings(t *testing.T) {
	m, _ := newTestModel(nil)

	if got := pressKey(t, m, 'n'); got != nil {
		t.Errorf("edits without settings should be ignored, got %T", got)
	}

	if _, ok := pressKey(t, m, 't').(app.SendTestNotificationMsg); !ok {
		t.Error("t should request a test notification")
	}
}

func TestModel_Help(t *testing.T) {
	m := New(app.NewState(), nil)
	if len(m.ShortHelp()) == 0 {
		t.Error("ShortHelp empty")
	}
	if len(m.FullHelp()) == 0 {
		t.Error("FullHelp empty")
	}
}
