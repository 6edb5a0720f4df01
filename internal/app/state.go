// Package app provides the main Bubble Tea application model and state management.
package app

import (
	"fmt"
	"sync"
	"time"

	"github.com/j-veylop/claude-usage-monitor/internal/models"
	"github.com/j-veylop/claude-usage-monitor/internal/services/notify"
)

// NotificationType defines the type of notification.
type NotificationType int

const (
	// NotificationSuccess represents a success notification.
	NotificationSuccess NotificationType = iota
	// NotificationError represents an error notification.
	NotificationError
	// NotificationWarning represents a warning notification.
	NotificationWarning
	// NotificationInfo represents an informational notification.
	NotificationInfo
	// NotificationLoading represents a loading notification with spinner.
	NotificationLoading
)

const (
	// LoadingNotificationID is the fixed ID for loading notifications.
	LoadingNotificationID = "__loading__"

	// maxNotifications caps the toast stack.
	maxNotifications = 10

	// TrendLimit is how many session samples are kept per account.
	TrendLimit = 120
)

// Loading resources.
const (
	ResourceInitial  = "initial"
	ResourceAccounts = "accounts"
	ResourceRefresh  = "refresh"
	ResourceNotify   = "notify"
)

// String returns the string representation of a NotificationType.
func (n NotificationType) String() string {
	switch n {
	case NotificationSuccess:
		return "success"
	case NotificationError:
		return "error"
	case NotificationWarning:
		return "warning"
	case NotificationInfo:
		return "info"
	case NotificationLoading:
		return "loading"
	default:
		return "unknown"
	}
}

// Notification represents a user-facing toast.
type Notification struct {
	CreatedAt time.Time
	ID        string
	Message   string
	Type      NotificationType
	Duration  time.Duration
}

// IsExpired returns true if the notification has expired.
func (n *Notification) IsExpired() bool {
	if n.Duration <= 0 {
		return false
	}
	return time.Since(n.CreatedAt) > n.Duration
}

// LoadingState tracks loading states for different resources.
type LoadingState struct {
	Initial  bool
	Accounts bool
	Refresh  bool
	Notify   bool
}

// State is the data shared by the root model and the tabs.
type State struct {
	mu sync.RWMutex

	Accounts             []models.AccountUsage
	CurrentAccount       string
	Settings             *models.Settings
	LastNotification     *notify.Result
	NextCheck            *time.Time
	SelectedAccountIndex int

	Loading LoadingState

	LastUpdated time.Time

	// session usage samples per account, oldest first
	trends    map[string][]float64
	trendSeen map[string]int64

	notifications   []Notification
	notificationSeq int
}

// NewState creates an empty state in the initial loading phase.
func NewState() *State {
	return &State{
		Accounts:      make([]models.AccountUsage, 0),
		trends:        make(map[string][]float64),
		trendSeen:     make(map[string]int64),
		notifications: make([]Notification, 0),
		Loading: LoadingState{
			Initial: true,
		},
	}
}

// SetLoading sets the loading state for a specific resource.
func (s *State) SetLoading(resource string, loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch resource {
	case ResourceInitial:
		s.Loading.Initial = loading
	case ResourceAccounts:
		s.Loading.Accounts = loading
	case ResourceRefresh:
		s.Loading.Refresh = loading
	case ResourceNotify:
		s.Loading.Notify = loading
	}
}

// IsLoading reports whether one resource is loading.
func (s *State) IsLoading(resource string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch resource {
	case ResourceInitial:
		return s.Loading.Initial
	case ResourceAccounts:
		return s.Loading.Accounts
	case ResourceRefresh:
		return s.Loading.Refresh
	case ResourceNotify:
		return s.Loading.Notify
	}
	return false
}

// AnyLoading returns true if any resource is currently loading.
func (s *State) AnyLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.Loading.Initial ||
		s.Loading.Accounts ||
		s.Loading.Refresh ||
		s.Loading.Notify
}

// IsInitialLoading returns true if initial data is still loading.
func (s *State) IsInitialLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Loading.Initial
}

// SetAccounts replaces the account list, keeps the selection in range and
// samples each new snapshot into the session trend.
func (s *State) SetAccounts(accounts []models.AccountUsage, current string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Accounts = accounts
	s.CurrentAccount = current
	s.LastUpdated = time.Now()

	switch {
	case len(accounts) == 0:
		s.SelectedAccountIndex = 0
	case s.SelectedAccountIndex >= len(accounts):
		s.SelectedAccountIndex = len(accounts) - 1
	}

	for i := range accounts {
		snap := accounts[i].Snapshot
		if snap == nil {
			continue
		}
		s.recordTrendLocked(accounts[i].AccountID, snap)
	}
}

func (s *State) recordTrendLocked(accountID string, snap *models.UsageSnapshot) {
	if s.trendSeen[accountID] == snap.Timestamp {
		return
	}
	s.trendSeen[accountID] = snap.Timestamp

	points := append(s.trends[accountID], float64(snap.CurrentSession.Percentage))
	if len(points) > TrendLimit {
		points = points[len(points)-TrendLimit:]
	}
	s.trends[accountID] = points
}

// GetAccounts returns a copy of the accounts list.
func (s *State) GetAccounts() []models.AccountUsage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]models.AccountUsage, len(s.Accounts))
	copy(accounts, s.Accounts)
	return accounts
}

// GetAccountCount returns the number of accounts.
func (s *State) GetAccountCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Accounts)
}

// GetCurrentAccount returns the id of the followed account.
func (s *State) GetCurrentAccount() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.CurrentAccount
}

// SelectedAccount returns the account under the cursor, or nil.
func (s *State) SelectedAccount() *models.AccountUsage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.SelectedAccountIndex < 0 || s.SelectedAccountIndex >= len(s.Accounts) {
		return nil
	}
	acc := s.Accounts[s.SelectedAccountIndex]
	return &acc
}

// GetSelectedAccountIndex returns the currently selected account index.
func (s *State) GetSelectedAccountIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.SelectedAccountIndex
}

// SetSelectedAccountIndex updates the selected account index.
func (s *State) SetSelectedAccountIndex(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx < 0 || idx >= len(s.Accounts) {
		return
	}
	s.SelectedAccountIndex = idx
}

// Trend returns a copy of the session usage samples of an account.
func (s *State) Trend(accountID string) []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := s.trends[accountID]
	out := make([]float64, len(points))
	copy(out, points)
	return out
}

// SetSettings stores the last loaded settings.
func (s *State) SetSettings(settings models.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Settings = &settings
}

// GetSettings returns the last loaded settings, or nil before the first load.
func (s *State) GetSettings() *models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Settings == nil {
		return nil
	}
	settings := *s.Settings
	return &settings
}

// SetLastNotification records the latest delivery attempt.
func (s *State) SetLastNotification(res notify.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastNotification = &res
}

// GetLastNotification returns the latest delivery attempt, or nil.
func (s *State) GetLastNotification() *notify.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastNotification
}

// SetNextCheck records when the scheduler runs the next check.
func (s *State) SetNextCheck(next *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NextCheck = next
}

// GetNextCheck returns the next scheduled check, or nil.
func (s *State) GetNextCheck() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.NextCheck
}

// AddNotification adds a new notification and returns its ID.
func (s *State) AddNotification(notifType NotificationType, message string, duration time.Duration) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notificationSeq++
	now := time.Now()
	id := fmt.Sprintf("%s-%d", now.Format("20060102150405"), s.notificationSeq)

	s.notifications = append(s.notifications, Notification{
		ID:        id,
		Type:      notifType,
		Message:   message,
		CreatedAt: now,
		Duration:  duration,
	})

	if len(s.notifications) > maxNotifications {
		s.notifications = s.notifications[len(s.notifications)-maxNotifications:]
	}

	return id
}

// RemoveNotification removes a notification by ID.
func (s *State) RemoveNotification(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications {
		if n.ID == id {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			return
		}
	}
}

// ClearExpiredNotifications removes all expired notifications.
func (s *State) ClearExpiredNotifications() {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := make([]Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		if !n.IsExpired() {
			active = append(active, n)
		}
	}
	s.notifications = active
}

// GetNotifications returns a copy of all active notifications.
func (s *State) GetNotifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		if !n.IsExpired() {
			active = append(active, n)
		}
	}
	return active
}

// ClearAllNotifications removes all notifications.
func (s *State) ClearAllNotifications() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = make([]Notification, 0)
}

// SetLoadingNotification sets a loading notification message.
func (s *State) SetLoadingNotification(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications {
		if n.ID == LoadingNotificationID {
			s.notifications[i].Message = message
			return
		}
	}

	s.notifications = append(s.notifications, Notification{
		ID:        LoadingNotificationID,
		Type:      NotificationLoading,
		Message:   message,
		CreatedAt: time.Now(),
	})
}

// ClearLoadingNotification removes the loading notification.
func (s *State) ClearLoadingNotification() {
	s.RemoveNotification(LoadingNotificationID)
}

// GetLastUpdated returns the last time the accounts were loaded.
func (s *State) GetLastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastUpdated
}
