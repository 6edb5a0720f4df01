package quota

import "time"

// UnknownRemaining is reported for windows whose reset time is unknown, so
// threshold checks treat them as far away rather than imminent.
const UnknownRemaining = 999

const millisPerMinute = int64(time.Minute / time.Millisecond)

// ToAbsolute converts a minutes-from-now countdown to epoch milliseconds.
func ToAbsolute(minutesFromNow int, now time.Time) int64 {
	return now.UnixMilli() + int64(minutesFromNow)*millisPerMinute
}

// RemainingMinutes returns whole minutes from now until resetTimestamp.
// Zero or negative timestamps are unknown; past instants yield 0.
func RemainingMinutes(resetTimestamp int64, now time.Time) int {
	if resetTimestamp <= 0 {
		return UnknownRemaining
	}
	diff := resetTimestamp - now.UnixMilli()
	if diff <= 0 {
		return 0
	}
	return int(diff / millisPerMinute)
}

// TimeUntilReset is RemainingMinutes at millisecond precision for countdown displays.
func TimeUntilReset(resetTimestamp int64, now time.Time) time.Duration {
	if resetTimestamp <= 0 {
		return 0
	}
	d := time.UnixMilli(resetTimestamp).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
