// Package notify decides when a reset alert is due and delivers it.
package notify

import (
	"time"

	"github.com/j-veylop/claude-usage-monitor/internal/models"
	"github.com/j-veylop/claude-usage-monitor/internal/services/quota"
)

// Reason explains a Decision in logs and API responses.
type Reason string

// Decision reasons.
const (
	ReasonDisabled        Reason = "notifications disabled"
	ReasonNoCredential    Reason = "no ServerChan key configured"
	ReasonNoSnapshot      Reason = "no usage snapshot"
	ReasonCooldown        Reason = "cooldown in effect"
	ReasonNothingImminent Reason = "no reset within threshold"
	ReasonImminent        Reason = "reset within threshold"
)

// Decision is the outcome of evaluating a snapshot against the alert policy.
type Decision struct {
	Reason            Reason
	FiveHourRemaining int
	WeeklyRemaining   int
	Notify            bool
}

// Evaluate applies the alert policy. Remaining time is computed from the
// absolute reset timestamps at now, never taken from the snapshot.
// Only the five-hour and weekly windows can trigger; the current session is informational.
func Evaluate(snap *models.UsageSnapshot, state models.NotificationState, now time.Time) Decision {
	d := Decision{
		FiveHourRemaining: quota.UnknownRemaining,
		WeeklyRemaining:   quota.UnknownRemaining,
	}

	if !state.Enabled {
		d.Reason = ReasonDisabled
		return d
	}
	if !state.HasCredential {
		d.Reason = ReasonNoCredential
		return d
	}

	interval := state.MinIntervalMinutes
	if interval <= 0 {
		interval = models.NotifyCooldownMinutes
	}
	if now.UnixMilli()-state.LastNotifiedAt < int64(interval)*int64(time.Minute/time.Millisecond) {
		d.Reason = ReasonCooldown
		return d
	}

	if snap == nil {
		d.Reason = ReasonNoSnapshot
		return d
	}

	threshold := state.ThresholdMinutes
	if threshold <= 0 {
		threshold = models.DefaultNotifyThreshold
	}

	d.FiveHourRemaining = quota.RemainingMinutes(snap.FiveHourLimit.ResetTimestamp, now)
	d.WeeklyRemaining = quota.RemainingMinutes(snap.WeeklyLimits.ResetTimestamp, now)

	// An unknown reset stays non-imminent whatever the threshold.
	fiveHour := snap.FiveHourLimit.HasReset() && IsImminent(d.FiveHourRemaining, threshold)
	weekly := snap.WeeklyLimits.HasReset() && IsImminent(d.WeeklyRemaining, threshold)
	if fiveHour || weekly {
		d.Notify = true
		d.Reason = ReasonImminent
		return d
	}

	d.Reason = ReasonNothingImminent
	return d
}

// ShouldNotify reports whether an alert should be sent for snap at now.
func ShouldNotify(snap *models.UsageSnapshot, state models.NotificationState, now time.Time) bool {
	return Evaluate(snap, state, now).Notify
}

// MarkNotified returns state with the cooldown clock restarted at now.
func MarkNotified(state models.NotificationState, now time.Time) models.NotificationState {
	state.LastNotifiedAt = now.UnixMilli()
	return state
}

// IsImminent reports whether a window with remaining minutes left resets
// within threshold. Windows that already reset or are unknown are not imminent.
func IsImminent(remaining, threshold int) bool {
	return remaining > 0 && remaining <= threshold
}
