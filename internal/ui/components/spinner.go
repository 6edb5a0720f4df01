package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/claude-usage-monitor/internal/ui/styles"
)

// LoadingSpinner wraps a bubble spinner with a label and the time the
// current operation started.
type LoadingSpinner struct {
	started time.Time
	spinner spinner.Model
	label   string
	style   lipgloss.Style
}

// NewSpinner creates a new loading spinner with the given label.
func NewSpinner(label string) LoadingSpinner {
	s := spinner.New()
	s.Spinner = spinner.MiniDot
	s.Style = lipgloss.NewStyle().Foreground(styles.Primary)

	return LoadingSpinner{
		spinner: s,
		label:   label,
		style:   lipgloss.NewStyle().Foreground(styles.TextSecondary),
	}
}

// Init starts the spinner animation.
func (l LoadingSpinner) Init() tea.Cmd {
	return l.spinner.Tick
}

// Update handles spinner tick messages.
func (l LoadingSpinner) Update(msg tea.Msg) (LoadingSpinner, tea.Cmd) {
	var cmd tea.Cmd
	l.spinner, cmd = l.spinner.Update(msg)
	return l, cmd
}

// Start relabels the spinner and resets its elapsed time.
func (l *LoadingSpinner) Start(label string, now time.Time) {
	l.label = label
	l.started = now
}

// Elapsed returns how long the current operation has been running.
func (l LoadingSpinner) Elapsed(now time.Time) time.Duration {
	if l.started.IsZero() {
		return 0
	}
	return now.Sub(l.started)
}

// View renders the spinner glyph only.
func (l LoadingSpinner) View() string {
	return l.spinner.View()
}

// ViewWithLabel renders the spinner with its label. Operations running for
// more than two seconds also show their elapsed time.
func (l LoadingSpinner) ViewWithLabel(now time.Time) string {
	label := l.label
	if elapsed := l.Elapsed(now); elapsed >= 2*time.Second {
		label = fmt.Sprintf("%s (%ds)", label, int(elapsed.Seconds()))
	}
	return l.spinner.View() + " " + l.style.Render(label)
}

// Label returns the current label.
func (l LoadingSpinner) Label() string {
	return l.label
}

// Tick returns the tick command for the spinner.
func (l LoadingSpinner) Tick() tea.Cmd {
	return l.spinner.Tick
}

// RenderSpinnerCentered renders a spinner centered in a given width and height.
func RenderSpinnerCentered(s LoadingSpinner, width, height int, now time.Time) string {
	return styles.CenterBoth(s.ViewWithLabel(now), width, height)
}
