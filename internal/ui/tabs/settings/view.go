package settings

import (
	"fmt"
	"runtime"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/claude-usage-monitor/internal/app"
	"github.com/j-veylop/claude-usage-monitor/internal/models"
	"github.com/j-veylop/claude-usage-monitor/internal/services/notify"
	"github.com/j-veylop/claude-usage-monitor/internal/services/quota"
	"github.com/j-veylop/claude-usage-monitor/internal/ui/styles"
	"github.com/j-veylop/claude-usage-monitor/internal/version"
)

// View renders the settings tab.
func (m *Model) View() string {
	now := m.now()

	sections := []string{
		m.renderTitle(),
		m.renderNotificationsCard(now),
		m.renderRefreshCard(),
		m.renderServiceCard(),
		m.renderAboutCard(),
	}

	m.viewport.SetContent(lipgloss.JoinVertical(lipgloss.Left, sections...))

	return styles.DocStyle.Render(m.viewport.View())
}

func (m *Model) renderTitle() string {
	title := styles.TitleStyle.Render("Settings")
	subtitle := styles.HelpStyle.Render("Reset alerts, refresh schedule and configuration")

	return lipgloss.JoinVertical(lipgloss.Left, title, subtitle, "")
}

func (m *Model) cardWidth() int {
	return min(max(m.viewport.Width, 50), 90)
}

func (m *Model) renderCard(title string, rows ...string) string {
	content := append([]string{styles.CardTitleStyle.Render(title)}, rows...)
	return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, content...))
}

func (m *Model) renderNotificationsCard(now time.Time) string {
	settings := m.state.GetSettings()
	if settings == nil {
		return m.renderCard("Reset Alerts", styles.HelpStyle.Render("Settings not loaded yet"))
	}

	masked := settings.Masked()
	serverChan := styles.WarningTextStyle.Render("not set")
	if masked.ServerChanKey != "" {
		serverChan = masked.ServerChanKey
	}

	lastAlert := "never"
	if settings.LastNotifyTime > 0 {
		lastAlert = quota.FormatAge(time.UnixMilli(settings.LastNotifyTime), now)
	}

	nextCheck := "not scheduled"
	if next := m.state.GetNextCheck(); next != nil {
		nextCheck = next.Local().Format("15:04:05")
	}

	rows := []string{
		renderRow("Notifications", onOff(settings.EnableNotifications), "n"),
		renderRow("ServerChan key", serverChan, ""),
		renderRow("Alert threshold", quota.FormatDuration(settings.NotifyThreshold)+" before reset", "+/-"),
		renderRow("Cooldown", quota.FormatDuration(models.NotifyCooldownMinutes), ""),
		renderRow("Last alert", lastAlert, ""),
		renderRow("Last result", m.lastResult(now), "t"),
		renderRow("Next check", nextCheck, ""),
	}
	return m.renderCard("Reset Alerts", rows...)
}

// lastResult describes the most recent check or test send of this session.
func (m *Model) lastResult(now time.Time) string {
	if m.state.IsLoading(app.ResourceNotify) {
		return styles.InfoTextStyle.Render("sending...")
	}

	res := m.state.GetLastNotification()
	if res == nil {
		return styles.HelpStyle.Render("none this session")
	}

	label := res.Type.String()
	if res.Test {
		label = "test " + label
	}
	label += ", " + quota.FormatAge(res.At, now)

	switch res.Type {
	case notify.ResultSent:
		return styles.SuccessTextStyle.Render(label)
	case notify.ResultFailed:
		return styles.ErrorTextStyle.Render(fmt.Sprintf("%s: %v", label, res.Err))
	default:
		return styles.HelpStyle.Render(fmt.Sprintf("%s (%s)", label, res.Decision.Reason))
	}
}

func (m *Model) renderRefreshCard() string {
	settings := m.state.GetSettings()

	var rows []string
	if settings != nil {
		rows = append(rows,
			renderRow("Auto refresh", onOff(settings.EnableAutoRefresh), "a"),
			renderRow("Refresh after", quota.FormatDuration(int(settings.AutoRefreshAfter().Minutes())), ""),
		)
		if url := settings.FirebaseURL(); url != "" {
			rows = append(rows, renderRow("Firebase", url, ""))
		}
	}

	if m.config != nil {
		command := m.config.RefreshCommand
		if command == "" {
			command = styles.HelpStyle.Render("none (re-read page file)")
		}
		rows = append(rows,
			renderRow("Usage page", m.config.UsagePagePath, ""),
			renderRow("Refresh command", command, "r"),
		)
	}

	if len(rows) == 0 {
		rows = append(rows, styles.HelpStyle.Render("Settings not loaded yet"))
	}
	return m.renderCard("Refresh", rows...)
}

func (m *Model) renderServiceCard() string {
	if m.config == nil {
		return m.renderCard("Service", styles.HelpStyle.Render("Configuration not loaded"))
	}

	ingest := styles.HelpStyle.Render("disabled")
	if m.config.IngestEnabled() {
		ingest = "http://" + m.config.IngestAddr + "/api/usage"
	}

	logPath := m.config.LogPath
	if logPath == "" {
		logPath = "stderr"
	}

	return m.renderCard("Service",
		renderRow("Database", m.config.DatabasePath, ""),
		renderRow("Ingest API", ingest, ""),
		renderRow("Check interval", m.config.CheckInterval.String(), ""),
		renderRow("Log file", logPath, ""),
	)
}

func (m *Model) renderAboutCard() string {
	return m.renderCard("About Claude Usage Monitor",
		renderRow("Version", version.GetVersion(), ""),
		renderRow("Git Commit", version.GetCommit(), ""),
		renderRow("Build Date", version.GetDate(), ""),
		renderRow("Go Version", runtime.Version(), ""),
		renderRow("Platform", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH), ""),
		renderRow("Accounts", styles.InfoTextStyle.Render(fmt.Sprintf("%d", m.state.GetAccountCount())), ""),
	)
}

// renderRow renders a key-value row with an optional key hint.
func renderRow(label, value, hint string) string {
	labelStyle := lipgloss.NewStyle().
		Width(18).
		Foreground(styles.TextMuted)

	valueStyle := lipgloss.NewStyle().
		Foreground(styles.TextPrimary)

	row := labelStyle.Render(label+":") + " " + valueStyle.Render(value)
	if hint != "" {
		row += "  " + styles.HelpKeyStyle.Render("["+hint+"]")
	}
	return row
}

func onOff(enabled bool) string {
	if enabled {
		return styles.SuccessTextStyle.Render("on")
	}
	return styles.ErrorTextStyle.Render("off")
}
