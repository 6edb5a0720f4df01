// Package dashboard provides the usage dashboard tab.
package dashboard

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/claude-usage-monitor/internal/app"
	"github.com/j-veylop/claude-usage-monitor/internal/models"
	"github.com/j-veylop/claude-usage-monitor/internal/ui/components"
	"github.com/j-veylop/claude-usage-monitor/internal/ui/styles"
)

// animationDuration is how long a bar takes to ease to a new value.
const animationDuration = 1.5

type animationTickMsg time.Time

func animationTickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*40, func(t time.Time) tea.Msg {
		return animationTickMsg(t)
	})
}

// keyMap defines the key bindings specific to the dashboard tab.
type keyMap struct {
	NextAccount   key.Binding
	PrevAccount   key.Binding
	FirstAccount  key.Binding
	LastAccount   key.Binding
	FollowAccount key.Binding
	ToggleTrend   key.Binding
	Refresh       key.Binding
}

// defaultKeyMap returns the default key bindings for the dashboard tab.
func defaultKeyMap() keyMap {
	return keyMap{
		NextAccount: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "next account"),
		),
		PrevAccount: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "prev account"),
		),
		FirstAccount: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "first account"),
		),
		LastAccount: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "last account"),
		),
		FollowAccount: key.NewBinding(
			key.WithKeys("enter", "f"),
			key.WithHelp("enter", "follow account"),
		),
		ToggleTrend: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "toggle trend chart"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
	}
}

// AnimationState tracks the state of an animation.
type AnimationState struct {
	StartTime      time.Time
	CurrentPercent float64
	TargetPercent  float64
	StartPercent   float64
}

// Model represents the dashboard tab state.
type Model struct {
	state          *app.State
	animations     map[string]*AnimationState
	now            func() time.Time
	spinner        components.LoadingSpinner
	keys           keyMap
	viewport       viewport.Model
	usageBar       components.UsageBar
	width          int
	height         int
	animationFrame int
	showTrend      bool
}

// New creates a new dashboard model.
func New(state *app.State) *Model {
	return &Model{
		state:      state,
		spinner:    components.NewSpinner("Loading usage..."),
		usageBar:   components.NewUsageBar(30),
		keys:       defaultKeyMap(),
		viewport:   viewport.New(0, 0),
		animations: make(map[string]*AnimationState),
		now:        time.Now,
		showTrend:  true,
	}
}

// Init initializes the model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Init(), animationTickCmd())
}

// Update handles messages and updates the model.
func (m *Model) Update(msg tea.Msg) (app.Tab, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case animationTickMsg:
		cmds = append(cmds, m.handleAnimationTick(msg))

	case app.RefreshMsg:
		m.spinner.Start("Refreshing usage page...", m.now())
		cmds = append(cmds, animationTickCmd())

	case app.AccountsLoadedMsg, app.SnapshotUpdatedMsg:
		if m.syncAnimationTargets(m.now()) {
			cmds = append(cmds, animationTickCmd())
		}

	case tea.KeyMsg:
		cmds = append(cmds, m.handleKeyMsg(msg))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) handleAnimationTick(msg animationTickMsg) tea.Cmd {
	m.animationFrame++
	now := time.Time(msg)

	m.syncAnimationTargets(now)
	animating := m.stepAnimations(now)

	if animating || m.state.AnyLoading() {
		return animationTickCmd()
	}
	return nil
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) tea.Cmd {
	count := m.state.GetAccountCount()
	selected := m.state.GetSelectedAccountIndex()

	switch {
	case key.Matches(msg, m.keys.NextAccount):
		if count > 0 {
			m.state.SetSelectedAccountIndex((selected + 1) % count)
		}
	case key.Matches(msg, m.keys.PrevAccount):
		if count > 0 {
			m.state.SetSelectedAccountIndex((selected - 1 + count) % count)
		}
	case key.Matches(msg, m.keys.FirstAccount):
		if count > 0 {
			m.state.SetSelectedAccountIndex(0)
		}
	case key.Matches(msg, m.keys.LastAccount):
		if count > 0 {
			m.state.SetSelectedAccountIndex(count - 1)
		}
	case key.Matches(msg, m.keys.FollowAccount):
		acc := m.state.SelectedAccount()
		if acc == nil || acc.IsCurrent {
			return nil
		}
		accountID := acc.AccountID
		return func() tea.Msg { return app.SwitchAccountMsg{AccountID: accountID} }
	case key.Matches(msg, m.keys.ToggleTrend):
		m.showTrend = !m.showTrend
	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd
	}
	return nil
}

// SetSize sets the available size for the dashboard.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = max(width-styles.DocStyle.GetHorizontalFrameSize(), 0)
	m.viewport.Height = max(height-styles.DocStyle.GetVerticalFrameSize(), 0)
	m.usageBar.SetWidth(barWidth(width))
}

// barWidth leaves room for the card border, label, percentage and countdown.
func barWidth(width int) int {
	return max(width-64, 10)
}

func animationKey(accountID, label string) string {
	return accountID + ":" + label
}

// syncAnimationTargets points every window's animation at its current
// percentage and reports whether any bar still has to move.
func (m *Model) syncAnimationTargets(now time.Time) bool {
	animating := false
	for _, acc := range m.state.GetAccounts() {
		if acc.Snapshot == nil {
			continue
		}
		for _, w := range acc.Snapshot.Windows() {
			if m.updateAnimationState(animationKey(acc.AccountID, w.Label), float64(w.Percentage), now) {
				animating = true
			}
		}
	}
	return animating
}

func (m *Model) updateAnimationState(animKey string, target float64, now time.Time) bool {
	state, exists := m.animations[animKey]
	if !exists {
		state = &AnimationState{StartTime: now}
		m.animations[animKey] = state
	}

	if target != state.TargetPercent {
		state.StartPercent = state.CurrentPercent
		state.TargetPercent = target
		state.StartTime = now
	}

	return state.CurrentPercent != state.TargetPercent
}

// stepAnimations advances every bar and reports whether any is still moving.
func (m *Model) stepAnimations(now time.Time) bool {
	moving := false
	for _, state := range m.animations {
		if state.CurrentPercent == state.TargetPercent {
			continue
		}
		elapsed := now.Sub(state.StartTime).Seconds()
		if elapsed >= animationDuration {
			state.CurrentPercent = state.TargetPercent
			continue
		}
		progress := elapsed / animationDuration
		ease := 1.0 - (1.0-progress)*(1.0-progress)
		state.CurrentPercent = state.StartPercent + (state.TargetPercent-state.StartPercent)*ease
		moving = true
	}
	return moving
}

// shownPercent returns the animated fill for a window, falling back to
// its real value before the first animation frame.
func (m *Model) shownPercent(accountID string, w models.QuotaWindow) float64 {
	if state, ok := m.animations[animationKey(accountID, w.Label)]; ok {
		return state.CurrentPercent
	}
	return float64(w.Percentage)
}

// ShortHelp returns the key bindings for the short help view.
func (m *Model) ShortHelp() []key.Binding {
	return []key.Binding{
		m.keys.NextAccount,
		m.keys.PrevAccount,
		m.keys.FollowAccount,
		m.keys.ToggleTrend,
		m.keys.Refresh,
	}
}

// FullHelp returns the key bindings for the full help view.
func (m *Model) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{m.keys.NextAccount, m.keys.PrevAccount},
		{m.keys.FirstAccount, m.keys.LastAccount},
		{m.keys.FollowAccount, m.keys.ToggleTrend, m.keys.Refresh},
	}
}
