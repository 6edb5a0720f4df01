package app

import (
	"time"

	"github.com/j-veylop/claude-usage-monitor/internal/models"
	"github.com/j-veylop/claude-usage-monitor/internal/services"
	"github.com/j-veylop/claude-usage-monitor/internal/services/notify"
)

// TickMsg is sent every second so countdowns stay live.
type TickMsg struct {
	Time time.Time
}

// StartLoadingMsg signals that a resource is starting to load.
type StartLoadingMsg struct {
	Resource string
}

// StopLoadingMsg signals that a resource has finished loading.
type StopLoadingMsg struct {
	Resource string
}

// AccountsLoadedMsg contains every stored account.
type AccountsLoadedMsg struct {
	Err            error
	CurrentAccount string
	Accounts       []models.AccountUsage
}

// SettingsLoadedMsg contains the persisted settings.
type SettingsLoadedMsg struct {
	Err       error
	NextCheck *time.Time
	Settings  models.Settings
}

// RefreshMsg requests re-reading the usage page, running the refresh
// command first when one is configured.
type RefreshMsg struct{}

// RefreshResultMsg contains the outcome of a refresh.
type RefreshResultMsg struct {
	Err      error
	Snapshot *models.UsageSnapshot
}

// SendTestNotificationMsg requests a test notification.
type SendTestNotificationMsg struct{}

// TestNotificationResultMsg contains the outcome of a test notification.
type TestNotificationResultMsg struct {
	Result notify.Result
}

// UpdateSettingsMsg requests merging a patch into the settings.
type UpdateSettingsMsg struct {
	Patch models.SettingsPatch
}

// SettingsUpdatedMsg contains the merged settings.
type SettingsUpdatedMsg struct {
	Err      error
	Settings models.Settings
}

// SwitchAccountMsg requests following a different account.
type SwitchAccountMsg struct {
	AccountID string
}

// SwitchAccountResultMsg contains the result of an account switch.
type SwitchAccountResultMsg struct {
	Err       error
	AccountID string
}

// SnapshotUpdatedMsg is forwarded to the tabs when a snapshot is stored.
type SnapshotUpdatedMsg struct {
	Snapshot  *models.UsageSnapshot
	AccountID string
}

// AddNotificationMsg requests adding a new notification.
type AddNotificationMsg struct {
	Message  string
	Type     NotificationType
	Duration time.Duration
}

// RemoveNotificationMsg requests removal of a notification.
type RemoveNotificationMsg struct {
	ID string
}

// ClearExpiredNotificationsMsg triggers clearing of expired notifications.
type ClearExpiredNotificationsMsg struct{}

// ServiceEventMsg wraps a service event from the service manager.
type ServiceEventMsg struct {
	Event services.ServiceEvent
}

// SubscriptionEventMsg is the callback wrapper for service subscription.
type SubscriptionEventMsg struct {
	Channel chan services.ServiceEvent
}

// ErrorMsg represents a general error.
type ErrorMsg struct {
	Error   error
	Context string
}

// TabSwitchMsg requests switching to a specific tab.
type TabSwitchMsg struct {
	Tab TabID
}

// ToggleHelpMsg toggles the help display.
type ToggleHelpMsg struct{}
