// Package quota turns usage page text into snapshots and keeps the latest one per account.
package quota

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// Units may run straight into the next number, as in "1hr30min".
	hoursPattern   = regexp.MustCompile(`(?i)(\d+)\s*h(?:ou)?rs?(?:[^a-z]|$)`)
	minutesPattern = regexp.MustCompile(`(?i)(\d+)\s*min(?:ute)?s?(?:[^a-z]|$)`)
	fixedPattern   = regexp.MustCompile(`(?i)\b([a-z]+)\.?\s+(\d{1,2}):(\d{2})\s*([ap])\.?m\.?`)
)

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// ParseRelativeDuration converts countdown text such as "1 hr 30 min" into minutes.
// Empty, "just now" and unrecognised text all yield 0.
func ParseRelativeDuration(text string) int {
	minutes, _ := ParseCountdown(text)
	return minutes
}

// ParseCountdown is ParseRelativeDuration with a flag reporting whether the
// text was understood. "just now" is understood and yields 0.
func ParseCountdown(text string) (int, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}
	if strings.Contains(strings.ToLower(text), "just now") {
		return 0, true
	}

	total := 0
	matched := false

	if m := hoursPattern.FindStringSubmatch(text); m != nil {
		if h, err := strconv.Atoi(m[1]); err == nil {
			total += h * 60
			matched = true
		}
	}
	if m := minutesPattern.FindStringSubmatch(text); m != nil {
		if mins, err := strconv.Atoi(m[1]); err == nil {
			total += mins
			matched = true
		}
	}

	return total, matched
}

// IsFixedResetText reports whether text looks like "Tue 12:59 PM".
func IsFixedResetText(text string) bool {
	m := fixedPattern.FindStringSubmatch(text)
	if m == nil {
		return false
	}
	_, ok := lookupWeekday(m[1])
	return ok
}

// ParseFixedWeekdayTime resolves "<weekday> H:MM AM|PM" to its next occurrence
// strictly after now, in now's location. The result is at most seven days ahead.
func ParseFixedWeekdayTime(text string, now time.Time) (time.Time, bool) {
	for _, m := range fixedPattern.FindAllStringSubmatch(text, -1) {
		day, ok := lookupWeekday(m[1])
		if !ok {
			continue
		}

		hour, err := strconv.Atoi(m[2])
		if err != nil || hour < 1 || hour > 12 {
			return time.Time{}, false
		}
		minute, err := strconv.Atoi(m[3])
		if err != nil || minute > 59 {
			return time.Time{}, false
		}

		hour %= 12
		if strings.EqualFold(m[4], "p") {
			hour += 12
		}

		daysAhead := (int(day) - int(now.Weekday()) + 7) % 7
		target := time.Date(now.Year(), now.Month(), now.Day()+daysAhead, hour, minute, 0, 0, now.Location())
		if !target.After(now) {
			target = time.Date(now.Year(), now.Month(), now.Day()+daysAhead+7, hour, minute, 0, 0, now.Location())
		}
		return target, true
	}

	return time.Time{}, false
}

// lookupWeekday matches a day name on its first three letters.
func lookupWeekday(name string) (time.Weekday, bool) {
	name = strings.ToLower(name)
	if len(name) < 3 {
		return 0, false
	}
	day, ok := weekdays[name[:3]]
	return day, ok
}
