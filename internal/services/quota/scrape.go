package quota

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/j-veylop/claude-usage-monitor/internal/models"
)

// fallbackFiveHourMinutes is assumed when the page has no separate five-hour block
// and the session countdown is missing too.
const fallbackFiveHourMinutes = 300

var (
	sessionPercentPattern  = regexp.MustCompile(`(?i)Current session[\s\S]*?(\d+)%`)
	sessionResetPattern    = regexp.MustCompile(`(?i)Current session[\s\S]*?Resets in\s+([^\n]+)`)
	weeklyPercentPattern   = regexp.MustCompile(`(?i)All models[\s\S]*?(\d+)%`)
	weeklyResetPattern     = regexp.MustCompile(`(?i)All models[\s\S]*?Resets\s+([^\n]+)`)
	fiveHourPercentPattern = regexp.MustCompile(`(?i)5[\s-]hour[\s\S]*?(\d+)%`)
	fiveHourResetPattern   = regexp.MustCompile(`(?i)5[\s-]hour[\s\S]*?Resets in\s+([^\n]+)`)
	emailPattern           = regexp.MustCompile(`([a-zA-Z0-9._-]+@[a-zA-Z0-9._-]+\.[a-zA-Z0-9_-]+)`)
)

// ExtractSnapshot reads the visible text of the usage page into a snapshot.
// Blocks that cannot be read leave their window unknown and add a parse warning.
func ExtractSnapshot(text string, now time.Time) *models.UsageSnapshot {
	snap := &models.UsageSnapshot{
		AccountID:      DetectAccountID(text),
		Timestamp:      now.UnixMilli(),
		CurrentSession: models.QuotaWindow{Label: models.LabelCurrentSession},
		WeeklyLimits:   models.QuotaWindow{Label: models.LabelWeekly},
		FiveHourLimit:  models.QuotaWindow{Label: models.LabelFiveHour},
	}

	warn := func(format string, args ...any) {
		snap.ParseWarnings = append(snap.ParseWarnings, fmt.Sprintf(format, args...))
	}

	// Current session
	if pct, ok := matchPercent(sessionPercentPattern, text); ok {
		snap.CurrentSession.Percentage = pct
	} else {
		warn("current session: usage percentage not found")
	}
	if m := sessionResetPattern.FindStringSubmatch(text); m != nil {
		applyCountdown(&snap.CurrentSession, m[1], now, warn)
	} else {
		warn("current session: reset time not found")
	}

	// Weekly limits, either a countdown or a fixed weekday time
	if pct, ok := matchPercent(weeklyPercentPattern, text); ok {
		snap.WeeklyLimits.Percentage = pct
	} else {
		warn("weekly limits: usage percentage not found")
	}
	if m := weeklyResetPattern.FindStringSubmatch(text); m != nil {
		resetText := strings.TrimSpace(m[1])
		if IsFixedResetText(resetText) {
			applyFixed(&snap.WeeklyLimits, resetText, now, warn)
		} else {
			applyCountdown(&snap.WeeklyLimits, resetText, now, warn)
		}
	} else {
		warn("weekly limits: reset time not found")
	}

	// Five-hour window, falling back to the session block
	if pct, ok := matchPercent(fiveHourPercentPattern, text); ok {
		snap.FiveHourLimit.Percentage = pct
		if m := fiveHourResetPattern.FindStringSubmatch(text); m != nil {
			applyCountdown(&snap.FiveHourLimit, m[1], now, warn)
		}
	} else {
		fallback := snap.CurrentSession
		fallback.Label = models.LabelFiveHour
		if fallback.ResetMinutes <= 0 {
			fallback.ResetMinutes = fallbackFiveHourMinutes
		}
		if fallback.ResetTimestamp <= 0 {
			fallback.ResetTimestamp = ToAbsolute(fallbackFiveHourMinutes, now)
		}
		if fallback.ResetType == "" {
			fallback.ResetType = models.ResetCountdown
		}
		snap.FiveHourLimit = fallback
	}

	return snap
}

// DetectAccountID returns the first email address in text, or the default account id.
func DetectAccountID(text string) string {
	if m := emailPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return models.DefaultAccountID
}

func matchPercent(pattern *regexp.Regexp, text string) (int, bool) {
	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return min(max(n, 0), 100), true
}

func applyCountdown(w *models.QuotaWindow, resetText string, now time.Time, warn func(string, ...any)) {
	resetText = strings.TrimSpace(resetText)
	w.ResetText = resetText
	w.ResetType = models.ResetCountdown

	minutes, ok := ParseCountdown(resetText)
	if !ok {
		warn("%s: unrecognised reset text %q", strings.ToLower(w.Label), resetText)
		return
	}
	w.ResetMinutes = minutes
	w.ResetTimestamp = ToAbsolute(minutes, now)
}

func applyFixed(w *models.QuotaWindow, resetText string, now time.Time, warn func(string, ...any)) {
	w.ResetText = resetText
	w.ResetType = models.ResetFixed

	at, ok := ParseFixedWeekdayTime(resetText, now)
	if !ok {
		warn("%s: unrecognised reset time %q", strings.ToLower(w.Label), resetText)
		return
	}
	w.ResetTimestamp = at.UnixMilli()
	w.ResetMinutes = int(at.Sub(now) / time.Minute)
}
