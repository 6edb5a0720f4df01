package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/claude-usage-monitor/internal/models"
	"github.com/j-veylop/claude-usage-monitor/internal/services"
)

const (
	// DefaultTickInterval is the default interval between ticks.
	DefaultTickInterval = time.Second

	// DefaultNotificationDuration is the default duration for notifications.
	DefaultNotificationDuration = 5 * time.Second

	// QuickNotificationDuration is for brief notifications.
	QuickNotificationDuration = 3 * time.Second

	// LongNotificationDuration is for important notifications.
	LongNotificationDuration = 10 * time.Second

	// storeTimeout bounds store reads and writes issued from the UI.
	storeTimeout = 5 * time.Second

	// actionTimeout bounds refreshes and webhook calls. It is longer than
	// the refresh command timeout.
	actionTimeout = 90 * time.Second
)

// tickCmd returns a command that sends a TickMsg after the specified interval.
func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}

// defaultTickCmd returns a command that sends a TickMsg after the default interval.
func defaultTickCmd() tea.Cmd {
	return tickCmd(DefaultTickInterval)
}

// loadInitialData returns a command that loads all initial data.
func loadInitialData(mgr *services.Manager) tea.Cmd {
	return tea.Batch(
		loadAccountsCmd(mgr),
		loadSettingsCmd(mgr),
	)
}

// loadAccountsCmd returns a command that loads every account.
func loadAccountsCmd(mgr *services.Manager) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		accounts, err := mgr.Accounts(ctx)
		if err != nil {
			// the cache still has what was ingested in this session
			accounts = mgr.CachedAccounts()
		}
		return AccountsLoadedMsg{
			Accounts:       accounts,
			CurrentAccount: mgr.CurrentAccount(),
			Err:            err,
		}
	}
}

// loadSettingsCmd returns a command that loads the settings and the next check time.
func loadSettingsCmd(mgr *services.Manager) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		settings, err := mgr.Settings(ctx)
		return SettingsLoadedMsg{
			Settings:  settings,
			NextCheck: mgr.NextCheck(),
			Err:       err,
		}
	}
}

// refreshCmd returns a command that refreshes the usage page.
func refreshCmd(mgr *services.Manager) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		snap, err := mgr.Refresh(ctx)
		return RefreshResultMsg{Snapshot: snap, Err: err}
	}
}

// sendTestNotificationCmd returns a command that sends a test notification.
func sendTestNotificationCmd(mgr *services.Manager) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		return TestNotificationResultMsg{Result: mgr.SendTestNotification(ctx)}
	}
}

// updateSettingsCmd returns a command that merges patch into the settings.
func updateSettingsCmd(mgr *services.Manager, patch models.SettingsPatch) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		settings, err := mgr.UpdateSettings(ctx, patch)
		return SettingsUpdatedMsg{Settings: settings, Err: err}
	}
}

// switchAccountCmd returns a command that follows another account.
func switchAccountCmd(mgr *services.Manager, accountID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		err := mgr.SetCurrentAccount(ctx, accountID)
		return SwitchAccountResultMsg{AccountID: accountID, Err: err}
	}
}

// subscribeToServicesCmd returns a command that subscribes to service events.
func subscribeToServicesCmd(mgr *services.Manager) tea.Cmd {
	ch, _ := mgr.Subscribe()
	return func() tea.Msg {
		return SubscriptionEventMsg{Channel: ch}
	}
}

// waitForServiceEventCmd returns a command that waits for the next service event.
func waitForServiceEventCmd(ch <-chan services.ServiceEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return nil
		}
		return ServiceEventMsg{Event: event}
	}
}

// clearNotificationCmd returns a command that removes a notification after a delay.
func clearNotificationCmd(id string, delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(_ time.Time) tea.Msg {
		return RemoveNotificationMsg{ID: id}
	})
}

func notifyCmd(t NotificationType, message string, d time.Duration) tea.Cmd {
	return func() tea.Msg {
		return AddNotificationMsg{Type: t, Message: message, Duration: d}
	}
}

// notifySuccessCmd returns a command that adds a success notification.
func notifySuccessCmd(message string) tea.Cmd {
	return notifyCmd(NotificationSuccess, message, DefaultNotificationDuration)
}

// notifyErrorCmd returns a command that adds an error notification.
func notifyErrorCmd(message string) tea.Cmd {
	return notifyCmd(NotificationError, message, LongNotificationDuration)
}

// notifyWarningCmd returns a command that adds a warning notification.
func notifyWarningCmd(message string) tea.Cmd {
	return notifyCmd(NotificationWarning, message, DefaultNotificationDuration)
}

// notifyInfoCmd returns a command that adds an info notification.
func notifyInfoCmd(message string) tea.Cmd {
	return notifyCmd(NotificationInfo, message, QuickNotificationDuration)
}

// Commands exposes the command constructors bound to a manager.
type Commands struct {
	manager *services.Manager
}

// NewCommands creates a new Commands instance.
func NewCommands(mgr *services.Manager) *Commands {
	return &Commands{manager: mgr}
}

// Tick returns a tick command with the specified interval.
func (c *Commands) Tick(interval time.Duration) tea.Cmd {
	return tickCmd(interval)
}

// DefaultTick returns a tick command with the default interval.
func (c *Commands) DefaultTick() tea.Cmd {
	return defaultTickCmd()
}

// LoadInitialData returns a command that loads accounts and settings.
func (c *Commands) LoadInitialData() tea.Cmd {
	return loadInitialData(c.manager)
}

// LoadAccounts returns a command that loads accounts.
func (c *Commands) LoadAccounts() tea.Cmd {
	return loadAccountsCmd(c.manager)
}

// LoadSettings returns a command that loads settings.
func (c *Commands) LoadSettings() tea.Cmd {
	return loadSettingsCmd(c.manager)
}

// Refresh returns a command that refreshes the usage page.
func (c *Commands) Refresh() tea.Cmd {
	return refreshCmd(c.manager)
}

// SendTestNotification returns a command that sends a test notification.
func (c *Commands) SendTestNotification() tea.Cmd {
	return sendTestNotificationCmd(c.manager)
}

// UpdateSettings returns a command that merges patch into the settings.
func (c *Commands) UpdateSettings(patch models.SettingsPatch) tea.Cmd {
	return updateSettingsCmd(c.manager, patch)
}

// SwitchAccount returns a command that follows another account.
func (c *Commands) SwitchAccount(accountID string) tea.Cmd {
	return switchAccountCmd(c.manager, accountID)
}

// SubscribeToServices returns a command that subscribes to service events.
func (c *Commands) SubscribeToServices() tea.Cmd {
	return subscribeToServicesCmd(c.manager)
}

// NotifySuccess returns a command that adds a success notification.
func (c *Commands) NotifySuccess(message string) tea.Cmd {
	return notifySuccessCmd(message)
}

// NotifyError returns a command that adds an error notification.
func (c *Commands) NotifyError(message string) tea.Cmd {
	return notifyErrorCmd(message)
}

// NotifyWarning returns a command that adds a warning notification.
func (c *Commands) NotifyWarning(message string) tea.Cmd {
	return notifyWarningCmd(message)
}

// NotifyInfo returns a command that adds an info notification.
func (c *Commands) NotifyInfo(message string) tea.Cmd {
	return notifyInfoCmd(message)
}

// ClearNotification returns a command that removes a notification after a delay.
func (c *Commands) ClearNotification(id string, delay time.Duration) tea.Cmd {
	return clearNotificationCmd(id, delay)
}

// Quit returns a command that quits the application.
func (c *Commands) Quit() tea.Cmd {
	return tea.Quit
}
