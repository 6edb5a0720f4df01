package models

import "time"

// Defaults for persisted settings.
const (
	DefaultNotifyThreshold     = 60
	DefaultAutoRefreshInterval = 30
	NotifyCooldownMinutes      = 30
)

// FirebaseConfig points at a Firebase Realtime Database.
type FirebaseConfig struct {
	DatabaseURL string `json:"databaseURL"`
}

// Settings is the user-editable configuration persisted in the store.
// LastNotifyTime is epoch milliseconds of the last delivered alert.
type Settings struct {
	FirebaseConfig      *FirebaseConfig `json:"firebaseConfig"`
	ServerChanKey       string          `json:"serverChanKey"`
	NotifyThreshold     int             `json:"notifyThreshold"`
	AutoRefreshInterval int             `json:"autoRefreshInterval"`
	LastNotifyTime      int64           `json:"lastNotifyTime"`
	EnableNotifications bool            `json:"enableNotifications"`
	EnableAutoRefresh   bool            `json:"enableAutoRefresh"`
}

// DefaultSettings returns the settings used before anything was saved.
func DefaultSettings() Settings {
	return Settings{
		NotifyThreshold:     DefaultNotifyThreshold,
		EnableNotifications: true,
		EnableAutoRefresh:   true,
		AutoRefreshInterval: DefaultAutoRefreshInterval,
	}
}

// FirebaseURL returns the configured database URL or "".
func (s Settings) FirebaseURL() string {
	if s.FirebaseConfig == nil {
		return ""
	}
	return s.FirebaseConfig.DatabaseURL
}

// AutoRefreshAfter returns the snapshot age after which a refresh is due.
func (s Settings) AutoRefreshAfter() time.Duration {
	minutes := s.AutoRefreshInterval
	if minutes <= 0 {
		minutes = DefaultAutoRefreshInterval
	}
	return time.Duration(minutes) * time.Minute
}

// NotificationState derives the alerting state from the settings.
func (s Settings) NotificationState() NotificationState {
	return NotificationState{
		LastNotifiedAt:     s.LastNotifyTime,
		ThresholdMinutes:   s.NotifyThreshold,
		MinIntervalMinutes: NotifyCooldownMinutes,
		Enabled:            s.EnableNotifications,
		HasCredential:      s.ServerChanKey != "",
	}
}

// Masked returns a copy that is safe to show or return over the API.
func (s Settings) Masked() Settings {
	masked := s
	if len(s.ServerChanKey) > 6 {
		masked.ServerChanKey = s.ServerChanKey[:4] + "..." + s.ServerChanKey[len(s.ServerChanKey)-2:]
	} else if s.ServerChanKey != "" {
		masked.ServerChanKey = "***"
	}
	return masked
}

// SettingsPatch is a partial update; nil fields keep their current value.
type SettingsPatch struct {
	ServerChanKey       *string         `json:"serverChanKey,omitempty"`
	FirebaseConfig      *FirebaseConfig `json:"firebaseConfig,omitempty"`
	NotifyThreshold     *int            `json:"notifyThreshold,omitempty"`
	EnableNotifications *bool           `json:"enableNotifications,omitempty"`
	EnableAutoRefresh   *bool           `json:"enableAutoRefresh,omitempty"`
	AutoRefreshInterval *int            `json:"autoRefreshInterval,omitempty"`
}

// Apply merges the patch over s and returns the result.
// An empty databaseURL clears the Firebase configuration. A key equal to the
// masked form of the current one is what GET handed out, so it is ignored.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.ServerChanKey != nil && *p.ServerChanKey != s.Masked().ServerChanKey {
		s.ServerChanKey = *p.ServerChanKey
	}
	if p.FirebaseConfig != nil {
		if p.FirebaseConfig.DatabaseURL == "" {
			s.FirebaseConfig = nil
		} else {
			cfg := *p.FirebaseConfig
			s.FirebaseConfig = &cfg
		}
	}
	if p.NotifyThreshold != nil && *p.NotifyThreshold > 0 {
		s.NotifyThreshold = *p.NotifyThreshold
	}
	if p.EnableNotifications != nil {
		s.EnableNotifications = *p.EnableNotifications
	}
	if p.EnableAutoRefresh != nil {
		s.EnableAutoRefresh = *p.EnableAutoRefresh
	}
	if p.AutoRefreshInterval != nil && *p.AutoRefreshInterval > 0 {
		s.AutoRefreshInterval = *p.AutoRefreshInterval
	}
	return s
}

// NotificationState is the process-wide alerting state.
// LastNotifiedAt is epoch milliseconds; zero means never notified.
type NotificationState struct {
	LastNotifiedAt     int64
	ThresholdMinutes   int
	MinIntervalMinutes int
	Enabled            bool
	HasCredential      bool
}
