// Package settings provides the settings tab.
package settings

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/claude-usage-monitor/internal/app"
	"github.com/j-veylop/claude-usage-monitor/internal/config"
	"github.com/j-veylop/claude-usage-monitor/internal/models"
	"github.com/j-veylop/claude-usage-monitor/internal/ui/styles"
)

// Threshold adjustments, in minutes.
const (
	thresholdStep = 5
	minThreshold  = 5
)

// keyMap defines the key bindings specific to the settings tab.
type keyMap struct {
	ToggleNotifications key.Binding
	ToggleAutoRefresh   key.Binding
	IncreaseThreshold   key.Binding
	DecreaseThreshold   key.Binding
	TestNotification    key.Binding
	Refresh             key.Binding
	Up                  key.Binding
	Down                key.Binding
}

// defaultKeyMap returns the default key bindings for the settings tab.
func defaultKeyMap() keyMap {
	return keyMap{
		ToggleNotifications: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "toggle notifications"),
		),
		ToggleAutoRefresh: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "toggle auto-refresh"),
		),
		IncreaseThreshold: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "threshold +5 min"),
		),
		DecreaseThreshold: key.NewBinding(
			key.WithKeys("-", "_"),
			key.WithHelp("-", "threshold -5 min"),
		),
		TestNotification: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "send test notification"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh now"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "scroll down"),
		),
	}
}

// Model represents the settings tab state.
type Model struct {
	state    *app.State
	config   *config.Config
	now      func() time.Time
	keys     keyMap
	viewport viewport.Model
	width    int
	height   int
}

// New creates a new settings model. cfg may be nil.
func New(state *app.State, cfg *config.Config) *Model {
	return &Model{
		state:    state,
		config:   cfg,
		now:      time.Now,
		keys:     defaultKeyMap(),
		viewport: viewport.New(0, 0),
	}
}

// Init initializes the settings tab.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the settings tab.
func (m *Model) Update(msg tea.Msg) (app.Tab, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if cmd := m.handleKeyMsg(keyMsg); cmd != nil {
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(keyMsg)
	return m, cmd
}

// handleKeyMsg turns setting keys into requests for the root model.
// Edits need loaded settings to compute the new value.
func (m *Model) handleKeyMsg(msg tea.KeyMsg) tea.Cmd {
	if key.Matches(msg, m.keys.TestNotification) {
		return func() tea.Msg { return app.SendTestNotificationMsg{} }
	}

	settings := m.state.GetSettings()
	if settings == nil {
		return nil
	}

	var patch models.SettingsPatch
	switch {
	case key.Matches(msg, m.keys.ToggleNotifications):
		enabled := !settings.EnableNotifications
		patch.EnableNotifications = &enabled
	case key.Matches(msg, m.keys.ToggleAutoRefresh):
		enabled := !settings.EnableAutoRefresh
		patch.EnableAutoRefresh = &enabled
	case key.Matches(msg, m.keys.IncreaseThreshold):
		threshold := settings.NotifyThreshold + thresholdStep
		patch.NotifyThreshold = &threshold
	case key.Matches(msg, m.keys.DecreaseThreshold):
		threshold := max(settings.NotifyThreshold-thresholdStep, minThreshold)
		if threshold == settings.NotifyThreshold {
			return nil
		}
		patch.NotifyThreshold = &threshold
	default:
		return nil
	}

	return func() tea.Msg { return app.UpdateSettingsMsg{Patch: patch} }
}

// SetSize sets the available size for the settings tab.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = max(width-styles.DocStyle.GetHorizontalFrameSize(), 0)
	m.viewport.Height = max(height-styles.DocStyle.GetVerticalFrameSize(), 0)
}

// ShortHelp returns the key bindings for the short help view.
func (m *Model) ShortHelp() []key.Binding {
	return []key.Binding{
		m.keys.ToggleNotifications,
		m.keys.ToggleAutoRefresh,
		m.keys.IncreaseThreshold,
		m.keys.DecreaseThreshold,
		m.keys.TestNotification,
		m.keys.Refresh,
	}
}

// FullHelp returns the key bindings for the full help view.
func (m *Model) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{m.keys.ToggleNotifications, m.keys.ToggleAutoRefresh},
		{m.keys.IncreaseThreshold, m.keys.DecreaseThreshold},
		{m.keys.TestNotification, m.keys.Refresh},
		{m.keys.Up, m.keys.Down},
	}
}
