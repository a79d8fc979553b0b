package session

import "time"

// DefaultTimeout bounds a session from its last transition to its terminal
// status.
const DefaultTimeout = 5 * time.Minute

// Watchdog decides expiry from the time since the last transition. It holds
// no timer; the machine polls it.
type Watchdog struct {
	Timeout time.Duration
}

// Expired reports whether the bound has elapsed. A non-positive Timeout
// never expires.
func (w Watchdog) Expired(last, now time.Time) bool {
	return w.Timeout > 0 && now.Sub(last) >= w.Timeout
}

// Remaining is the time left before expiry, never negative.
func (w Watchdog) Remaining(last, now time.Time) time.Duration {
	if w.Timeout <= 0 {
		return w.Timeout
	}
	if left := w.Timeout - now.Sub(last); left > 0 {
		return left
	}
	return 0
}
