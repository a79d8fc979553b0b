package shortcut

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func at(ms int) time.Time { return epoch.Add(time.Duration(ms) * time.Millisecond) }

func testConfig(t *testing.T) Config {
	t.Helper()
	hold, err := HoldDefinition("rctrl")
	require.NoError(t, err)
	toggle, err := ToggleDefinition("alt+q")
	require.NoError(t, err)
	return Config{Hold: &hold, Toggle: &toggle, Debounce: DefaultDebounce}
}

func toggleEvent(ms int) KeyEvent {
	return KeyEvent{Kind: KeyDown, KeyCode: 'Q', Modifiers: ModAlt, Timestamp: at(ms)}
}

func TestMatchHold(t *testing.T) {
	cfg := testConfig(t)
	press := KeyEvent{Kind: FlagsChanged, KeyCode: VK_RCONTROL, Modifiers: ModControl, Timestamp: at(0)}
	release := KeyEvent{Kind: FlagsChanged, KeyCode: VK_RCONTROL, Modifiers: 0, Timestamp: at(800)}

	assert.Equal(t, HoldStart, Match(press, cfg, State{Phase: PhaseIdle}))
	assert.Equal(t, None, Match(press, cfg, State{Phase: PhaseBusy}), "press while transcribing")
	assert.Equal(t, HoldEnd, Match(release, cfg, State{Phase: PhaseRecording, Trigger: TypeHold}))
	assert.Equal(t, None, Match(release, cfg, State{Phase: PhaseIdle}), "release with nothing active")
	assert.Equal(t, None, Match(release, cfg, State{Phase: PhaseRecording, Trigger: TypeToggle}), "hold end cannot stop a toggle session")
}

func TestMatchHoldEndsWithOtherModifiersHeld(t *testing.T) {
	cfg := testConfig(t)
	recording := State{Phase: PhaseRecording, Trigger: TypeHold}

	withShift := KeyEvent{Kind: FlagsChanged, KeyCode: VK_RCONTROL, Modifiers: ModShift, Timestamp: at(900)}
	assert.Equal(t, HoldEnd, Match(withShift, cfg, recording))

	withLeftCtrl := KeyEvent{Kind: FlagsChanged, KeyCode: VK_RCONTROL, Modifiers: ModControl, Timestamp: at(900)}
	assert.Equal(t, HoldEnd, Match(withLeftCtrl, cfg, recording))

	otherModifier := KeyEvent{Kind: FlagsChanged, KeyCode: VK_LSHIFT, Timestamp: at(950)}
	assert.Equal(t, None, Match(otherModifier, cfg, recording), "only the hold key ends the session")
}

func TestMatcherHoldReleasedUnderShift(t *testing.T) {
	cfg := testConfig(t)
	phase, trigger := PhaseIdle, Type("")
	m := NewMatcher(cfg, func() (Phase, Type) { return phase, trigger })

	require.Equal(t, HoldStart, m.Feed(KeyEvent{Kind: FlagsChanged, KeyCode: VK_RCONTROL, Modifiers: ModControl, Timestamp: at(0)}))
	phase, trigger = PhaseRecording, TypeHold
	assert.Equal(t, None, m.Feed(KeyEvent{Kind: FlagsChanged, KeyCode: VK_LSHIFT, Modifiers: ModControl | ModShift, Timestamp: at(200)}))
	assert.Equal(t, HoldEnd, m.Feed(KeyEvent{Kind: FlagsChanged, KeyCode: VK_RCONTROL, Modifiers: ModShift, Timestamp: at(800)}))
}

func TestMatchHoldRequiresExactModifiers(t *testing.T) {
	cfg := testConfig(t)
	ev := KeyEvent{Kind: FlagsChanged, KeyCode: VK_RCONTROL, Modifiers: ModControl | ModShift, Timestamp: at(0)}
	assert.Equal(t, None, Match(ev, cfg, State{Phase: PhaseIdle}))
}

func TestMatchToggleFlipsOnSessionPhase(t *testing.T) {
	cfg := testConfig(t)
	assert.Equal(t, ToggleStart, Match(toggleEvent(0), cfg, State{Phase: PhaseIdle}))
	assert.Equal(t, ToggleStop, Match(toggleEvent(1000), cfg, State{Phase: PhaseRecording, Trigger: TypeToggle, LastToggle: at(0)}))
	assert.Equal(t, None, Match(toggleEvent(1000), cfg, State{Phase: PhaseBusy, LastToggle: at(0)}), "toggle while transcribing")
	assert.Equal(t, None, Match(toggleEvent(1000), cfg, State{Phase: PhaseRecording, Trigger: TypeHold}), "toggle cannot stop a hold session")
}

func TestMatchToggleDebounce(t *testing.T) {
	cfg := testConfig(t)
	st := State{Phase: PhaseRecording, Trigger: TypeToggle, LastToggle: at(0)}
	assert.Equal(t, None, Match(toggleEvent(100), cfg, st))
	assert.Equal(t, None, Match(toggleEvent(299), cfg, st))
	assert.Equal(t, ToggleStop, Match(toggleEvent(300), cfg, st))
}

func TestMatchIgnoresMalformedEvents(t *testing.T) {
	cfg := testConfig(t)
	assert.Equal(t, None, Match(KeyEvent{}, cfg, State{}))
	assert.Equal(t, None, Match(KeyEvent{Kind: KeyDown}, cfg, State{}))
	assert.Equal(t, None, Match(KeyEvent{Kind: KeyDown, KeyCode: 'Z'}, cfg, State{}))
	assert.Equal(t, None, Match(toggleEvent(0), Config{}, State{}))
}

func TestMatchOverlapPrecedence(t *testing.T) {
	p := KeyPattern{Kind: KeyDown, KeyCode: 0x78}
	hold := Definition{Type: TypeHold, Start: p, End: p}
	toggle := Definition{Type: TypeToggle, Start: p, End: p}
	cfg := Config{Hold: &hold, Toggle: &toggle, Debounce: DefaultDebounce}
	ev := KeyEvent{Kind: KeyDown, KeyCode: 0x78, Timestamp: at(1000)}

	assert.Equal(t, HoldEnd, Match(ev, cfg, State{Phase: PhaseRecording, Trigger: TypeHold}), "active hold wins")
	assert.Equal(t, ToggleStart, Match(ev, cfg, State{Phase: PhaseIdle}), "toggle evaluated before hold start")
	assert.Equal(t, ToggleStop, Match(ev, cfg, State{Phase: PhaseRecording, Trigger: TypeToggle}))

	debounced := State{Phase: PhaseIdle, LastToggle: at(900)}
	assert.Equal(t, HoldStart, Match(ev, cfg, debounced), "debounced toggle falls through to hold")
}

func TestMatcherRapidDoubleToggle(t *testing.T) {
	phase, typ := PhaseIdle, Type("")
	m := NewMatcher(testConfig(t), func() (Phase, Type) { return phase, typ })

	require.Equal(t, ToggleStart, m.Feed(toggleEvent(0)))
	phase, typ = PhaseRecording, TypeToggle

	assert.Equal(t, None, m.Feed(toggleEvent(100)))
	assert.Equal(t, ToggleStop, m.Feed(toggleEvent(500)))
}

func TestMatcherDebounceUsesAcceptedTimestamp(t *testing.T) {
	phase := PhaseIdle
	m := NewMatcher(Config{Toggle: testConfig(t).Toggle}, func() (Phase, Type) { return phase, TypeToggle })

	require.Equal(t, ToggleStart, m.Feed(toggleEvent(0)))
	phase = PhaseRecording
	// Rejected events do not extend the window.
	assert.Equal(t, None, m.Feed(toggleEvent(200)))
	assert.Equal(t, None, m.Feed(toggleEvent(250)))
	assert.Equal(t, ToggleStop, m.Feed(toggleEvent(320)))
}

func TestMatcherSetConfigKeepsDebounce(t *testing.T) {
	m := NewMatcher(Config{Debounce: time.Second}, nil)
	toggle, err := ToggleDefinition("F8")
	require.NoError(t, err)
	m.SetConfig(Config{Toggle: &toggle})
	assert.Equal(t, time.Second, m.Config().Debounce)
}
