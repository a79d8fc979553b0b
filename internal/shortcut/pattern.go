// Package shortcut maps raw key events onto logical recording triggers.
package shortcut

import (
	"fmt"
	"time"
)

// EventKind is the kind of a raw key event.
type EventKind int

const (
	KindUnknown EventKind = iota
	KeyDown
	KeyUp
	FlagsChanged
)

func (k EventKind) String() string {
	switch k {
	case KeyDown:
		return "keyDown"
	case KeyUp:
		return "keyUp"
	case FlagsChanged:
		return "flagsChanged"
	default:
		return "unknown"
	}
}

// Modifiers is a modifier bitmask. Bit values follow the Win32 MOD_* flags.
type Modifiers uint32

const (
	ModAlt     Modifiers = 0x0001
	ModControl Modifiers = 0x0002
	ModShift   Modifiers = 0x0004
	ModSuper   Modifiers = 0x0008

	modMask = ModAlt | ModControl | ModShift | ModSuper
)

// KeyEvent is one raw event from the key event source.
type KeyEvent struct {
	Kind      EventKind
	KeyCode   uint32
	Modifiers Modifiers
	Timestamp time.Time
}

// KeyPattern describes the event a shortcut waits for. AnyModifiers is used
// for key-up patterns, where the user may already have let go of modifiers.
type KeyPattern struct {
	Kind         EventKind `json:"kind"`
	KeyCode      uint32    `json:"keyCode"`
	Modifiers    Modifiers `json:"modifiers"`
	AnyModifiers bool      `json:"anyModifiers,omitempty"`
}

// Matches reports whether ev is exactly the event described by p.
func (p KeyPattern) Matches(ev KeyEvent) bool {
	if p.Kind == KindUnknown || ev.Kind != p.Kind || ev.KeyCode != p.KeyCode {
		return false
	}
	if p.AnyModifiers {
		return true
	}
	return ev.Modifiers&modMask == p.Modifiers&modMask
}

func (p KeyPattern) String() string {
	return fmt.Sprintf("%s vk=0x%X mod=0x%X", p.Kind, p.KeyCode, uint32(p.Modifiers))
}

// Type is the shortcut family that started a session.
type Type string

const (
	TypeHold   Type = "hold"
	TypeToggle Type = "toggle"
)

// Definition is a user-configurable shortcut. Hold shortcuts need distinct
// start and end patterns; toggle shortcuts reuse one pattern for both.
type Definition struct {
	Type  Type       `json:"type"`
	Start KeyPattern `json:"start"`
	End   KeyPattern `json:"end"`
}

// Validate checks the hold/toggle pattern invariants.
func (d Definition) Validate() error {
	if d.Start.Kind == KindUnknown || d.Start.KeyCode == 0 {
		return fmt.Errorf("%s shortcut: start pattern is empty", d.Type)
	}
	switch d.Type {
	case TypeHold:
		if d.End.Kind == KindUnknown || d.End.KeyCode == 0 {
			return fmt.Errorf("hold shortcut: end pattern is empty")
		}
		if d.Start == d.End {
			return fmt.Errorf("hold shortcut: start and end patterns must differ")
		}
	case TypeToggle:
		if d.Start != d.End {
			return fmt.Errorf("toggle shortcut: start and end patterns must be identical")
		}
	default:
		return fmt.Errorf("unknown shortcut type %q", d.Type)
	}
	return nil
}
