// Package indicator turns session events into show/hide commands for the
// floating recording pill.
package indicator

import (
	"context"

	"github.com/siddug/wave-sub000/internal/logging"
	"github.com/siddug/wave-sub000/internal/session"
)

// Mode is the indicator state shown while a session is active.
type Mode string

const (
	ModeRecording  Mode = "recording"
	ModeProcessing Mode = "processing"
)

// Command is what a surface should display.
type Command struct {
	Visible bool `json:"visible"`
	Mode    Mode `json:"mode,omitempty"`
}

// Present maps an event to a command. Hidden only when the session is
// neither recording nor transcribing.
func Present(ev session.Event) Command {
	switch {
	case ev.Recording:
		return Command{Visible: true, Mode: ModeRecording}
	case ev.Transcribing:
		return Command{Visible: true, Mode: ModeProcessing}
	default:
		return Command{}
	}
}

// Surface renders commands. Calls are fire-and-forget.
type Surface interface {
	Show(mode Mode)
	Hide()
}

// Presenter forwards bus events to a surface.
type Presenter struct {
	surface Surface
	log     logging.Logger
}

// NewPresenter creates a presenter drawing on surface.
func NewPresenter(surface Surface) *Presenter {
	return &Presenter{surface: surface, log: logging.NewLogger(context.Background()).WithComponent("indicator")}
}

// Attach subscribes to bus and returns the unsubscribe function.
func (p *Presenter) Attach(bus *session.Bus) func() {
	return bus.Subscribe(p.Handle)
}

// Handle applies one session event to the surface.
func (p *Presenter) Handle(ev session.Event) {
	cmd := Present(ev)
	p.log.Debugf("event %d %s -> %+v", ev.Seq, ev.Status, cmd)
	if cmd.Visible {
		p.surface.Show(cmd.Mode)
		return
	}
	p.surface.Hide()
}

// Multi fans commands out to several surfaces.
type Multi []Surface

func (m Multi) Show(mode Mode) {
	for _, s := range m {
		s.Show(mode)
	}
}

func (m Multi) Hide() {
	for _, s := range m {
		s.Hide()
	}
}
