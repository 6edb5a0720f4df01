// Package models defines data structures and domain types.
package models

import (
	"encoding/json"
	"strings"
	"time"
)

// AccountUsage pairs an account with its latest snapshot.
type AccountUsage struct {
	UpdatedAt time.Time      `json:"updatedAt"`
	Snapshot  *UsageSnapshot `json:"snapshot,omitempty"`
	AccountID string         `json:"accountId"`
	IsCurrent bool           `json:"isCurrent"`
}

// DisplayName returns a short label for the account.
func (a *AccountUsage) DisplayName() string {
	if a.AccountID == "" || a.AccountID == DefaultAccountID {
		return "default account"
	}
	return a.AccountID
}

// SanitizeAccountID rewrites characters that are not allowed in a
// realtime database path segment.
func SanitizeAccountID(id string) string {
	return strings.NewReplacer("@", "_", ".", "_").Replace(id)
}

// parseTimeField attempts to parse a JSON time value as either ISO string or Unix timestamp.
func parseTimeField(data json.RawMessage) time.Time {
	// Try as string first (ISO 8601)
	var strVal string
	if err := json.Unmarshal(data, &strVal); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, strVal); err == nil {
			return t
		}
		return time.Time{}
	}

	// Try as number (Unix timestamp in milliseconds or seconds)
	var numVal float64
	if err := json.Unmarshal(data, &numVal); err == nil {
		if numVal <= 0 {
			return time.Time{}
		}
		if numVal > 1e12 {
			return time.UnixMilli(int64(numVal))
		}
		return time.Unix(int64(numVal), 0)
	}

	return time.Time{}
}
