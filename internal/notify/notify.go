// Package notify shows desktop notifications.
package notify

import "github.com/gen2brain/beeep"

// Notifier sends notifications when enabled. A nil Notifier is disabled.
type Notifier struct {
	Enabled bool
	send    func(title, message string) error
}

// New returns a notifier; a disabled one drops every message.
func New(enabled bool) *Notifier {
	return &Notifier{
		Enabled: enabled,
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
}

// Notify shows a notification; disabled notifiers return nil.
func (n *Notifier) Notify(title, message string) error {
	if n == nil || !n.Enabled || n.send == nil {
		return nil
	}
	return n.send(title, message)
}
