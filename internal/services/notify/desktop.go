package notify

import (
	"github.com/gen2brain/beeep"
)

// Desktop shows alerts as local OS notifications.
type Desktop struct {
	notify  func(title, message string) error
	enabled bool
}

// NewDesktop creates the local notification channel.
func NewDesktop(enabled bool) *Desktop {
	return &Desktop{
		notify: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		enabled: enabled,
	}
}

// Send shows a notification. It is a no-op when disabled.
func (d *Desktop) Send(title, message string) error {
	if d == nil || !d.enabled {
		return nil
	}
	return d.notify(title, message)
}
