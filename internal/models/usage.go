// Package models defines data structures and domain types.
package models

import (
	"encoding/json"
	"time"
)

// DefaultAccountID identifies snapshots whose page text carried no email address.
const DefaultAccountID = "account_default"

// Window labels as shown on the usage page.
const (
	LabelCurrentSession = "Current session"
	LabelWeekly         = "Weekly limits"
	LabelFiveHour       = "5-hour rolling window"
)

// ResetType describes how a window's reset time was expressed on the page.
type ResetType string

const (
	// ResetCountdown is a relative expression such as "in 1 hr 30 min".
	ResetCountdown ResetType = "countdown"
	// ResetFixed is a weekday plus clock time such as "Tue 12:59 PM".
	ResetFixed ResetType = "fixed"
)

// QuotaWindow is one rate-limit window of an account.
// ResetTimestamp is absolute epoch milliseconds; zero means unknown.
type QuotaWindow struct {
	Label          string    `json:"label"`
	ResetText      string    `json:"resetTime,omitempty"`
	ResetType      ResetType `json:"resetType,omitempty"`
	Percentage     int       `json:"percentage"`
	ResetMinutes   int       `json:"resetMinutes"`
	ResetTimestamp int64     `json:"resetTimestamp,omitempty"`
}

// HasReset reports whether the reset instant of the window is known.
func (w QuotaWindow) HasReset() bool {
	return w.ResetTimestamp > 0
}

// ResetAt returns the reset instant, or the zero time when unknown.
func (w QuotaWindow) ResetAt() time.Time {
	if !w.HasReset() {
		return time.Time{}
	}
	return time.UnixMilli(w.ResetTimestamp)
}

// UnmarshalJSON accepts resetTimestamp as null, epoch seconds/milliseconds or an ISO string.
func (w *QuotaWindow) UnmarshalJSON(data []byte) error {
	type alias QuotaWindow
	aux := struct {
		*alias
		ResetTimestamp json.RawMessage `json:"resetTimestamp"`
	}{alias: (*alias)(w)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	w.ResetTimestamp = 0
	if len(aux.ResetTimestamp) > 0 {
		if t := parseTimeField(aux.ResetTimestamp); !t.IsZero() {
			w.ResetTimestamp = t.UnixMilli()
		}
	}
	return nil
}

// UsageSnapshot is the full quota state of one account at the time it was read.
type UsageSnapshot struct {
	AccountID      string      `json:"accountId"`
	URL            string      `json:"url,omitempty"`
	Source         string      `json:"source,omitempty"`
	ParseWarnings  []string    `json:"parseWarnings,omitempty"`
	CurrentSession QuotaWindow `json:"currentSession"`
	WeeklyLimits   QuotaWindow `json:"weeklyLimits"`
	FiveHourLimit  QuotaWindow `json:"fiveHourLimit"`
	Timestamp      int64       `json:"timestamp"`
}

// CapturedAt returns when the snapshot was read from the page.
func (s *UsageSnapshot) CapturedAt() time.Time {
	if s.Timestamp <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.Timestamp)
}

// Age returns how long ago the snapshot was captured.
func (s *UsageSnapshot) Age(now time.Time) time.Duration {
	if s.Timestamp <= 0 {
		return 0
	}
	return now.Sub(s.CapturedAt())
}

// Windows returns the three windows in display order.
func (s *UsageSnapshot) Windows() []QuotaWindow {
	return []QuotaWindow{s.CurrentSession, s.WeeklyLimits, s.FiveHourLimit}
}

// Clone returns a deep copy of the snapshot.
func (s *UsageSnapshot) Clone() *UsageSnapshot {
	if s == nil {
		return nil
	}
	clone := *s
	if s.ParseWarnings != nil {
		clone.ParseWarnings = make([]string, len(s.ParseWarnings))
		copy(clone.ParseWarnings, s.ParseWarnings)
	}
	return &clone
}

// UnmarshalJSON accepts timestamp as epoch seconds/milliseconds or an ISO string.
func (s *UsageSnapshot) UnmarshalJSON(data []byte) error {
	type alias UsageSnapshot
	aux := struct {
		*alias
		Timestamp json.RawMessage `json:"timestamp"`
	}{alias: (*alias)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	s.Timestamp = 0
	if len(aux.Timestamp) > 0 {
		if t := parseTimeField(aux.Timestamp); !t.IsZero() {
			s.Timestamp = t.UnixMilli()
		}
	}
	return nil
}
