package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/claude-usage-monitor/internal/app"
	"github.com/j-veylop/claude-usage-monitor/internal/models"
	"github.com/j-veylop/claude-usage-monitor/internal/services/notify"
	"github.com/j-veylop/claude-usage-monitor/internal/services/quota"
	"github.com/j-veylop/claude-usage-monitor/internal/ui/components"
	"github.com/j-veylop/claude-usage-monitor/internal/ui/styles"
)

// bannerMinutes is how close a five-hour or weekly reset has to be for the banner.
const bannerMinutes = 60

// windowPeriods is the full length of each window, used for the reset bar.
var windowPeriods = map[string]time.Duration{
	models.LabelCurrentSession: 5 * time.Hour,
	models.LabelFiveHour:       5 * time.Hour,
	models.LabelWeekly:         7 * 24 * time.Hour,
}

// View renders the dashboard component.
func (m *Model) View() string {
	now := m.now()

	if m.state.IsInitialLoading() {
		return components.RenderSpinnerCentered(m.spinner, m.width, m.height, now)
	}

	sections := []string{m.renderTitle(now)}

	acc := m.state.SelectedAccount()
	if acc == nil {
		sections = append(sections, m.renderEmpty())
	} else {
		if banner := m.renderBanner(acc, now); banner != "" {
			sections = append(sections, banner)
		}
		sections = append(sections, m.renderAccountCard(acc, now))
		if m.showTrend {
			sections = append(sections, m.renderTrend(acc))
		}
		if m.state.GetAccountCount() > 1 {
			sections = append(sections, m.renderAccountList(now))
		}
	}

	m.viewport.SetContent(lipgloss.JoinVertical(lipgloss.Left, sections...))

	return styles.DocStyle.Render(m.viewport.View())
}

func (m *Model) cardWidth() int {
	return max(m.viewport.Width, 40)
}

// renderTitle renders the dashboard title and the refresh status line.
func (m *Model) renderTitle(now time.Time) string {
	title := styles.TitleStyle.Render("Claude Usage")

	var status string
	switch {
	case m.state.IsLoading(app.ResourceRefresh):
		status = m.spinner.ViewWithLabel(now)
	case !m.state.GetLastUpdated().IsZero():
		status = styles.HelpStyle.Render("Loaded " + quota.FormatAge(m.state.GetLastUpdated(), now))
	default:
		status = styles.HelpStyle.Render("Reset monitor for claude.ai usage limits")
	}

	if next := m.state.GetNextCheck(); next != nil {
		status += styles.HelpStyle.Render(fmt.Sprintf("  ·  next check in %s", formatUntil(*next, now)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, title, status, "")
}

func (m *Model) renderEmpty() string {
	rows := []string{
		styles.CardTitleStyle.Render("No usage captured yet"),
		styles.HelpStyle.Render("  Open claude.ai/settings/usage and save the page text,"),
		styles.HelpStyle.Render("  or POST it to the ingest API."),
		"",
		styles.InfoTextStyle.Render("  ╰─▶ Press r to read the usage page now"),
	}
	return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// renderBanner warns when a five-hour or weekly window resets within the hour.
func (m *Model) renderBanner(acc *models.AccountUsage, now time.Time) string {
	if acc.Snapshot == nil {
		return ""
	}

	var parts []string
	for _, w := range []models.QuotaWindow{acc.Snapshot.FiveHourLimit, acc.Snapshot.WeeklyLimits} {
		if !w.HasReset() {
			continue
		}
		if notify.IsImminent(quota.RemainingMinutes(w.ResetTimestamp, now), bannerMinutes) {
			parts = append(parts, fmt.Sprintf("%s resets in %s", w.Label, quota.FormatCountdown(w.ResetTimestamp, now)))
		}
	}
	if len(parts) == 0 {
		return ""
	}

	return styles.BannerStyle.Width(m.cardWidth()).Render("⚠ " + strings.Join(parts, "  ·  "))
}

func (m *Model) renderAccountCard(acc *models.AccountUsage, now time.Time) string {
	rows := []string{m.renderAccountHeader(acc), ""}

	if acc.Snapshot == nil {
		for _, label := range []string{models.LabelCurrentSession, models.LabelWeekly, models.LabelFiveHour} {
			rows = append(rows, components.UsageBarLoading(label, m.cardWidth()-6, m.animationFrame))
		}
		return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	}

	for i, w := range acc.Snapshot.Windows() {
		if i > 0 {
			rows = append(rows, "")
		}
		rows = append(rows, m.renderWindow(acc.AccountID, w, now)...)
	}

	rows = append(rows, "", m.renderFooter(acc.Snapshot, now))

	for _, warning := range acc.Snapshot.ParseWarnings {
		rows = append(rows, styles.WarningTextStyle.Render("  ! "+warning))
	}

	return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m *Model) renderAccountHeader(acc *models.AccountUsage) string {
	name := lipgloss.NewStyle().Bold(true).Render(truncate(acc.DisplayName(), 40))
	if acc.IsCurrent {
		return fmt.Sprintf("%s %s %s", styles.SuccessTextStyle.Render("●"), name, styles.HelpStyle.Render("(following)"))
	}
	return fmt.Sprintf("%s %s %s", lipgloss.NewStyle().Foreground(styles.Subtle).Render("○"), name,
		styles.HelpStyle.Render("(enter to follow)"))
}

// renderWindow renders the usage bar of one window and its reset line.
func (m *Model) renderWindow(accountID string, w models.QuotaWindow, now time.Time) []string {
	bar := m.usageBar.View(w.Label, m.shownPercent(accountID, w), w.Percentage)

	if !w.HasReset() {
		reset := styles.HelpStyle.Render("reset unknown")
		if w.ResetText != "" {
			reset = styles.WarningTextStyle.Render(fmt.Sprintf("could not read %q", w.ResetText))
		}
		return []string{bar, indentReset(reset)}
	}

	countdown := quota.FormatCountdown(w.ResetTimestamp, now)
	countdownStyle := styles.InfoTextStyle
	if notify.IsImminent(quota.RemainingMinutes(w.ResetTimestamp, now), bannerMinutes) {
		countdownStyle = styles.WarningTextStyle.Bold(true)
	}

	resetLine := components.RenderResetBar(resetElapsed(w, now), m.usageBar.Width()) + " " +
		countdownStyle.Render("resets in "+countdown) + " " +
		styles.HelpStyle.Render(w.ResetAt().Local().Format("Mon 15:04"))

	return []string{bar, indentReset(resetLine)}
}

func (m *Model) renderFooter(snap *models.UsageSnapshot, now time.Time) string {
	updated := "updated " + quota.FormatAge(snap.CapturedAt(), now)
	if snap.Source != "" {
		updated += " · via " + snap.Source
	}
	return styles.HelpStyle.Render(updated)
}

func (m *Model) renderTrend(acc *models.AccountUsage) string {
	title := styles.SubTitleStyle.Render("Current session trend")
	chart := components.RenderTrendChart(m.state.Trend(acc.AccountID), m.cardWidth()-14, 6, "% used per snapshot")
	return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, title, "", chart))
}

// renderAccountList renders every known account with a session sparkline.
func (m *Model) renderAccountList(now time.Time) string {
	accounts := m.state.GetAccounts()
	selected := m.state.GetSelectedAccountIndex()

	titleIcon := lipgloss.NewStyle().Foreground(styles.Primary).Render("◈")
	rows := []string{fmt.Sprintf("%s %s", titleIcon, styles.CardTitleStyle.Render("Accounts"))}

	for i := range accounts {
		acc := &accounts[i]

		prefix := "  "
		if i == selected {
			prefix = styles.FocusedStyle.Render("▸ ")
		}
		marker := lipgloss.NewStyle().Foreground(styles.Subtle).Render("○ ")
		if acc.IsCurrent {
			marker = styles.SuccessTextStyle.Render("● ")
		}

		line := prefix + marker + lipgloss.NewStyle().Width(34).Render(truncate(acc.DisplayName(), 32))
		if acc.Snapshot != nil {
			session := acc.Snapshot.CurrentSession.Percentage
			line += components.RenderSparkline(m.state.Trend(acc.AccountID), 16) + " " +
				styles.GetUsageStyle(session).Width(5).Align(lipgloss.Right).Render(fmt.Sprintf("%d%%", session)) + " " +
				styles.HelpStyle.Render(quota.FormatAge(acc.Snapshot.CapturedAt(), now))
		}
		rows = append(rows, line)
	}

	rows = append(rows, "", components.UsageLegend())

	return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// resetElapsed returns how much of the window's period has passed.
func resetElapsed(w models.QuotaWindow, now time.Time) float64 {
	period, ok := windowPeriods[w.Label]
	if !ok {
		period = 5 * time.Hour
	}
	remaining := quota.TimeUntilReset(w.ResetTimestamp, now)
	return 1 - float64(remaining)/float64(period)
}

func indentReset(s string) string {
	return strings.Repeat(" ", lipgloss.Width(styles.ProgressLabelStyle.Render(""))) + s
}

func formatUntil(t, now time.Time) string {
	d := t.Sub(now).Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	return d.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
