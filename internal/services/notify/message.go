package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/j-veylop/claude-usage-monitor/internal/models"
	"github.com/j-veylop/claude-usage-monitor/internal/services/quota"
)

// Alert titles.
const (
	AlertTitle = "Claude usage reset coming up ⏰"
	TestTitle  = "Test notification"
)

// upcomingWindow is how close a reset must be to get its own line.
const upcomingWindow = 60

const rule = "━━━━━━━━━━━━━"

// BuildMessage renders the alert body for snap at now.
func BuildMessage(snap *models.UsageSnapshot, now time.Time) string {
	fiveHour := quota.RemainingMinutes(snap.FiveHourLimit.ResetTimestamp, now)
	weekly := quota.RemainingMinutes(snap.WeeklyLimits.ResetTimestamp, now)

	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line(rule)
	line("⏰ Good time to use Claude!")
	line("")

	var upcoming []string
	if IsImminent(fiveHour, upcomingWindow) {
		upcoming = append(upcoming, fmt.Sprintf("• 5-hour limit resets in %s", quota.FormatDuration(fiveHour)))
	}
	if IsImminent(weekly, upcomingWindow) {
		upcoming = append(upcoming, fmt.Sprintf("• Weekly limit resets in %s", quota.FormatDuration(weekly)))
	}
	if len(upcoming) > 0 {
		line("🔔 Upcoming resets:")
		for _, u := range upcoming {
			line("%s", u)
		}
		line("")
	}

	line("📊 Current usage:")
	line("• Current session: %d%%", snap.CurrentSession.Percentage)
	line("• Weekly limit: %d%%", snap.WeeklyLimits.Percentage)
	line("• 5-hour limit: %d%%", snap.FiveHourLimit.Percentage)
	line("")

	line("⏱️ Time until full reset:")
	line("• Weekly limit: %s", quota.FormatWindowRemaining(snap.WeeklyLimits, now))
	line("• 5-hour limit: %s", quota.FormatWindowRemaining(snap.FiveHourLimit, now))
	line("")

	line("✨ Use it now and it will be back soon!")
	b.WriteString(rule)

	return b.String()
}

// BuildTestMessage renders the body of a test notification.
func BuildTestMessage(now time.Time) string {
	return fmt.Sprintf("This is a test notification from claude-usage-monitor.\n\nSent at %s.",
		now.Format("2006-01-02 15:04:05"))
}
