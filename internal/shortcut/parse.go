package shortcut

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	VK_SHIFT    = 0x10
	VK_CONTROL  = 0x11
	VK_MENU     = 0x12
	VK_LWIN     = 0x5B
	VK_RWIN     = 0x5C
	VK_NUMPAD0  = 0x60
	VK_ADD      = 0x6B
	VK_SUBTRACT = 0x6D
	VK_LSHIFT   = 0xA0
	VK_RSHIFT   = 0xA1
	VK_LCONTROL = 0xA2
	VK_RCONTROL = 0xA3
	VK_LMENU    = 0xA4
	VK_RMENU    = 0xA5
)

// ModifierForKey returns the modifier bit a key code contributes, or 0 for
// ordinary keys.
func ModifierForKey(vk uint32) Modifiers {
	switch vk {
	case VK_MENU, VK_LMENU, VK_RMENU:
		return ModAlt
	case VK_CONTROL, VK_LCONTROL, VK_RCONTROL:
		return ModControl
	case VK_SHIFT, VK_LSHIFT, VK_RSHIFT:
		return ModShift
	case VK_LWIN, VK_RWIN:
		return ModSuper
	}
	return 0
}

var modifierKeys = map[string]uint32{
	"alt":     VK_LMENU,
	"menu":    VK_LMENU,
	"lalt":    VK_LMENU,
	"ralt":    VK_RMENU,
	"altgr":   VK_RMENU,
	"ctrl":    VK_LCONTROL,
	"control": VK_LCONTROL,
	"lctrl":   VK_LCONTROL,
	"rctrl":   VK_RCONTROL,
	"shift":   VK_LSHIFT,
	"lshift":  VK_LSHIFT,
	"rshift":  VK_RSHIFT,
	"win":     VK_LWIN,
	"meta":    VK_LWIN,
	"super":   VK_LWIN,
	"lwin":    VK_LWIN,
	"rwin":    VK_RWIN,
}

var namedKeys = map[string]uint32{
	"esc":        0x1B,
	"escape":     0x1B,
	"space":      0x20,
	"enter":      0x0D,
	"return":     0x0D,
	"tab":        0x09,
	"backspace":  0x08,
	"insert":     0x2D,
	"delete":     0x2E,
	"home":       0x24,
	"end":        0x23,
	"pageup":     0x21,
	"pagedown":   0x22,
	"left":       0x25,
	"up":         0x26,
	"right":      0x27,
	"down":       0x28,
	"add":        VK_ADD,
	"plus":       VK_ADD,
	"kpadd":      VK_ADD,
	"subtract":   VK_SUBTRACT,
	"minus":      VK_SUBTRACT,
	"kpsubtract": VK_SUBTRACT,
}

// ParseKey accepts strings like "alt+q", "ctrl+shift+F1", "esc" or a bare
// modifier such as "rctrl". It returns the modifier mask that must be held,
// the virtual key code of the final token, and whether that token is itself a
// modifier key.
func ParseKey(s string) (Modifiers, uint32, bool, error) {
	if strings.TrimSpace(s) == "" {
		return 0, 0, false, fmt.Errorf("empty key")
	}
	parts := strings.Split(s, "+")
	for i := range parts {
		parts[i] = strings.TrimSpace(strings.ToLower(parts[i]))
	}
	var mod Modifiers
	for _, p := range parts[:len(parts)-1] {
		vk, ok := modifierKeys[p]
		if !ok {
			return 0, 0, false, fmt.Errorf("unsupported modifier %q in %s", p, s)
		}
		mod |= ModifierForKey(vk)
	}
	keyToken := parts[len(parts)-1]

	if vk, ok := modifierKeys[keyToken]; ok {
		return mod | ModifierForKey(vk), vk, true, nil
	}
	if len(keyToken) == 1 {
		ch := keyToken[0]
		if ch >= 'a' && ch <= 'z' {
			return mod, uint32(ch - 'a' + 'A'), false, nil
		}
		if ch >= '0' && ch <= '9' {
			return mod, uint32(ch), false, nil
		}
	}
	if v, ok := namedKeys[keyToken]; ok {
		return mod, v, false, nil
	}
	if strings.HasPrefix(keyToken, "f") {
		if n, err := strconv.Atoi(strings.TrimPrefix(keyToken, "f")); err == nil && n >= 1 && n <= 24 {
			return mod, 0x70 + uint32(n-1), false, nil
		}
	}
	for _, prefix := range []string{"numpad", "num", "kp"} {
		if rest, ok := strings.CutPrefix(keyToken, prefix); ok {
			if n, err := strconv.Atoi(rest); err == nil && n >= 0 && n <= 9 {
				return mod, VK_NUMPAD0 + uint32(n), false, nil
			}
		}
	}
	return 0, 0, false, fmt.Errorf("unsupported key token: %s", s)
}

// HoldDefinition derives a hold shortcut from a key spec. A bare modifier
// ("rctrl") starts on its press and ends on its release; any other key starts
// on key down and ends on key up. Both end patterns ignore the modifiers still
// held, so releasing the key while Shift or the other Ctrl is down still ends
// the session. Sources report modifier transitions only, so the next event for
// a held modifier is its release.
func HoldDefinition(spec string) (Definition, error) {
	mod, vk, modifierOnly, err := ParseKey(spec)
	if err != nil {
		return Definition{}, err
	}
	if modifierOnly {
		bit := ModifierForKey(vk)
		if mod != bit {
			return Definition{}, fmt.Errorf("hold key %q: modifier-only hold keys must be a single key", spec)
		}
		return Definition{
			Type:  TypeHold,
			Start: KeyPattern{Kind: FlagsChanged, KeyCode: vk, Modifiers: bit},
			End:   KeyPattern{Kind: FlagsChanged, KeyCode: vk, AnyModifiers: true},
		}, nil
	}
	return Definition{
		Type:  TypeHold,
		Start: KeyPattern{Kind: KeyDown, KeyCode: vk, Modifiers: mod},
		End:   KeyPattern{Kind: KeyUp, KeyCode: vk, AnyModifiers: true},
	}, nil
}

// ToggleDefinition derives a toggle shortcut whose single pattern alternates
// between start and stop.
func ToggleDefinition(spec string) (Definition, error) {
	mod, vk, modifierOnly, err := ParseKey(spec)
	if err != nil {
		return Definition{}, err
	}
	kind := KeyDown
	if modifierOnly {
		kind = FlagsChanged
	}
	p := KeyPattern{Kind: kind, KeyCode: vk, Modifiers: mod}
	return Definition{Type: TypeToggle, Start: p, End: p}, nil
}
