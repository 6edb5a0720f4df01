package quota

import (
	"fmt"
	"time"

	"github.com/j-veylop/claude-usage-monitor/internal/models"
)

// FormatDuration renders a minute count for humans:
// "resetting now", "N minutes", "H hours" or "H hours M minutes".
// Callers decide whether a reset is known; see FormatWindowRemaining.
func FormatDuration(minutes int) string {
	switch {
	case minutes <= 0:
		return "resetting now"
	case minutes < 60:
		return fmt.Sprintf("%d minutes", minutes)
	}

	hours := minutes / 60
	mins := minutes % 60
	if mins == 0 {
		return fmt.Sprintf("%d hours", hours)
	}
	return fmt.Sprintf("%d hours %d minutes", hours, mins)
}

// FormatRemaining humanizes the time left until resetTimestamp. A zero or
// negative timestamp renders as "unknown".
func FormatRemaining(resetTimestamp int64, now time.Time) string {
	if resetTimestamp <= 0 {
		return "unknown"
	}
	return FormatDuration(RemainingMinutes(resetTimestamp, now))
}

// FormatWindowRemaining humanizes the time left until w resets.
func FormatWindowRemaining(w models.QuotaWindow, now time.Time) string {
	if !w.HasReset() {
		return "unknown"
	}
	return FormatDuration(RemainingMinutes(w.ResetTimestamp, now))
}

// FormatCountdown formats the time until reset compactly for the dashboard.
func FormatCountdown(resetTimestamp int64, now time.Time) string {
	if resetTimestamp <= 0 {
		return "Unknown"
	}

	duration := TimeUntilReset(resetTimestamp, now)
	if duration <= 0 {
		return "Now"
	}

	if duration < time.Minute {
		return "< 1m"
	}

	if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	}

	days := int(duration.Hours()) / 24
	hours := int(duration.Hours()) % 24
	minutes := int(duration.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	if minutes == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh%dm", hours, minutes)
}

// FormatAge renders how long ago something happened, e.g. "just now" or "12 minutes ago".
func FormatAge(then, now time.Time) string {
	if then.IsZero() {
		return "never"
	}
	d := now.Sub(then)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	default:
		return then.Format("Jan 2 15:04")
	}
}
