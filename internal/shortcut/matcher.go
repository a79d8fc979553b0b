package shortcut

import (
	"sync"
	"time"
)

// DefaultDebounce is the window in which a repeated toggle match is ignored.
const DefaultDebounce = 300 * time.Millisecond

// Trigger is the logical outcome of matching one raw event.
type Trigger int

const (
	None Trigger = iota
	HoldStart
	HoldEnd
	ToggleStart
	ToggleStop
)

func (t Trigger) String() string {
	switch t {
	case HoldStart:
		return "hold_start"
	case HoldEnd:
		return "hold_end"
	case ToggleStart:
		return "toggle_start"
	case ToggleStop:
		return "toggle_stop"
	default:
		return "none"
	}
}

// IsStart reports whether t asks for a new session.
func (t Trigger) IsStart() bool { return t == HoldStart || t == ToggleStart }

// Type returns the shortcut family of t.
func (t Trigger) Type() Type {
	if t == ToggleStart || t == ToggleStop {
		return TypeToggle
	}
	return TypeHold
}

// Phase is the session phase as seen by the matcher.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRecording
	PhaseBusy
)

// Config is the active shortcut configuration. Either definition may be nil.
type Config struct {
	Hold     *Definition
	Toggle   *Definition
	Debounce time.Duration
}

// State is what Match needs to know about the outside world.
type State struct {
	Phase      Phase
	Trigger    Type
	LastToggle time.Time
}

// Match maps one raw event to a trigger. It never panics; events that match
// nothing, or arrive in the wrong phase, yield None.
//
// Precedence when one event matches both a hold and the toggle pattern: the
// hold end wins only while a hold-started recording is active, otherwise the
// toggle is evaluated before the hold start.
func Match(ev KeyEvent, cfg Config, st State) Trigger {
	if ev.Kind == KindUnknown || ev.KeyCode == 0 {
		return None
	}

	if cfg.Hold != nil && st.Phase == PhaseRecording && st.Trigger == TypeHold && cfg.Hold.End.Matches(ev) {
		return HoldEnd
	}

	if cfg.Toggle != nil && cfg.Toggle.Start.Matches(ev) {
		if t := matchToggle(ev, cfg, st); t != None {
			return t
		}
	}

	if cfg.Hold != nil && st.Phase == PhaseIdle && cfg.Hold.Start.Matches(ev) {
		return HoldStart
	}
	return None
}

func matchToggle(ev KeyEvent, cfg Config, st State) Trigger {
	if !st.LastToggle.IsZero() && ev.Timestamp.Sub(st.LastToggle) < cfg.Debounce {
		return None
	}
	switch {
	case st.Phase == PhaseIdle:
		return ToggleStart
	case st.Phase == PhaseRecording && st.Trigger == TypeToggle:
		return ToggleStop
	}
	return None
}

// PhaseFunc reports the current session phase and the family that started it.
type PhaseFunc func() (Phase, Type)

// Matcher is the stateful wrapper around Match: it remembers the timestamp of
// the last accepted toggle trigger.
type Matcher struct {
	mu         sync.Mutex
	cfg        Config
	phase      PhaseFunc
	lastToggle time.Time
}

// NewMatcher creates a matcher. A zero Debounce is replaced by DefaultDebounce.
func NewMatcher(cfg Config, phase PhaseFunc) *Matcher {
	if cfg.Debounce == 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &Matcher{cfg: cfg, phase: phase}
}

// SetConfig swaps the shortcut definitions, e.g. after a settings change.
func (m *Matcher) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg.Debounce == 0 {
		cfg.Debounce = m.cfg.Debounce
	}
	m.cfg = cfg
}

// Config returns the active configuration.
func (m *Matcher) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Feed matches ev against the current phase and records accepted toggles.
func (m *Matcher) Feed(ev KeyEvent) Trigger {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := State{LastToggle: m.lastToggle}
	if m.phase != nil {
		st.Phase, st.Trigger = m.phase()
	}
	t := Match(ev, m.cfg, st)
	if t == ToggleStart || t == ToggleStop {
		m.lastToggle = ev.Timestamp
	}
	return t
}
