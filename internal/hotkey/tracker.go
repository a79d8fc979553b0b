package hotkey

import (
	"time"

	"github.com/siddug/wave-sub000/internal/shortcut"
)

// Tracker converts raw key down/up notifications into KeyEvents. Modifier keys
// become FlagsChanged events carrying the resulting modifier mask and are only
// reported when their state actually changes; auto-repeat of ordinary keys is
// passed through.
type Tracker struct {
	held map[uint32]bool
}

// NewTracker creates a tracker with no keys held.
func NewTracker() *Tracker {
	return &Tracker{held: make(map[uint32]bool)}
}

// Modifiers returns the mask of modifier keys currently held.
func (t *Tracker) Modifiers() shortcut.Modifiers {
	var m shortcut.Modifiers
	for vk, down := range t.held {
		if down {
			m |= shortcut.ModifierForKey(vk)
		}
	}
	return m
}

// Translate records the key transition and returns the event to publish, if any.
func (t *Tracker) Translate(vk uint32, down bool, at time.Time) (shortcut.KeyEvent, bool) {
	if vk == 0 {
		return shortcut.KeyEvent{}, false
	}
	if shortcut.ModifierForKey(vk) != 0 {
		if t.held[vk] == down {
			return shortcut.KeyEvent{}, false
		}
		if down {
			t.held[vk] = true
		} else {
			delete(t.held, vk)
		}
		return shortcut.KeyEvent{Kind: shortcut.FlagsChanged, KeyCode: vk, Modifiers: t.Modifiers(), Timestamp: at}, true
	}
	kind := shortcut.KeyDown
	if !down {
		kind = shortcut.KeyUp
	}
	return shortcut.KeyEvent{Kind: kind, KeyCode: vk, Modifiers: t.Modifiers(), Timestamp: at}, true
}

// Reset forgets all held keys, e.g. after the hook was reinstalled.
func (t *Tracker) Reset() {
	clear(t.held)
}
