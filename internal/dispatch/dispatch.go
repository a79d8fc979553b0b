// Package dispatch performs the side effects of a finished session: paste,
// clipboard, audio archive and history. Every effect runs on its own; one
// failing never stops the others.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/siddug/wave-sub000/internal/history"
	"github.com/siddug/wave-sub000/internal/logging"
	"github.com/siddug/wave-sub000/internal/metrics"
)

const (
	EffectArchive   = "archive"
	EffectPaste     = "paste"
	EffectClipboard = "clipboard"
	EffectHistory   = "history"
	EffectNotify    = "notify"
)

// Meta describes the session being drained.
type Meta struct {
	SessionID    string
	Status       string
	Trigger      string
	StartedAt    time.Time
	OriginalText string
	Processed    bool
	AudioPath    string
	Err          error
}

// Clipboard writes text and pastes it into the focused application.
type Clipboard interface {
	WriteText(text string) error
	PasteAtCursor(text string) error
}

// History persists one record per dispatched session.
type History interface {
	Append(ctx context.Context, r history.Record) error
}

// Notifier shows a desktop notification.
type Notifier interface {
	Notify(title, message string) error
}

// Settings gates the paste and clipboard effects.
type Settings interface {
	PasteEnabled() bool
	ClipboardEnabled() bool
}

// Archiver keeps or removes the session audio and returns the kept path.
type Archiver interface {
	Archive(ctx context.Context, audioPath, id string) (string, error)
}

// Config wires the effects. Nil members are skipped. Notifier announces
// finished transcripts and FailureNotifier failed ones.
type Config struct {
	Clipboard       Clipboard
	History         History
	Settings        Settings
	Archiver        Archiver
	Notifier        Notifier
	FailureNotifier Notifier
	Clock           func() time.Time
}

// Dispatcher runs the side effects of a finished session.
type Dispatcher struct {
	cfg Config
	log logging.Logger
}

// New creates a dispatcher. A nil Clock uses time.Now.
func New(cfg Config) *Dispatcher {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Dispatcher{cfg: cfg, log: logging.NewLogger(context.Background()).WithComponent("dispatch")}
}

// Dispatch runs every enabled effect for one terminal session.
func (d *Dispatcher) Dispatch(ctx context.Context, text string, meta Meta) {
	log := d.log.WithField("session", meta.SessionID)

	audioPath := ""
	if meta.AudioPath != "" && d.cfg.Archiver != nil {
		d.run(log, EffectArchive, func() error {
			p, err := d.cfg.Archiver.Archive(ctx, meta.AudioPath, meta.SessionID)
			audioPath = p
			return err
		})
	}

	if text != "" && d.cfg.Clipboard != nil && d.cfg.Settings != nil && d.cfg.Settings.PasteEnabled() {
		d.run(log, EffectPaste, func() error { return d.cfg.Clipboard.PasteAtCursor(text) })
	}
	if text != "" && d.cfg.Clipboard != nil && d.cfg.Settings != nil && d.cfg.Settings.ClipboardEnabled() {
		d.run(log, EffectClipboard, func() error { return d.cfg.Clipboard.WriteText(text) })
	}

	if d.cfg.History != nil {
		now := d.cfg.Clock()
		rec := history.Record{
			ID:              meta.SessionID,
			OriginalText:    meta.OriginalText,
			EnhancedText:    text,
			Timestamp:       meta.StartedAt,
			DurationSeconds: durationSeconds(meta.StartedAt, now),
			AudioFilePath:   audioPath,
			CreatedAt:       now,
		}
		d.run(log, EffectHistory, func() error { return d.cfg.History.Append(ctx, rec) })
	}

	switch {
	case meta.Err != nil && d.cfg.FailureNotifier != nil:
		d.run(log, EffectNotify, func() error {
			return d.cfg.FailureNotifier.Notify("Dictation failed", meta.Err.Error())
		})
	case meta.Err == nil && text != "" && d.cfg.Notifier != nil:
		d.run(log, EffectNotify, func() error {
			return d.cfg.Notifier.Notify("Dictation", preview(text, 120))
		})
	}
	log.Debugf("dispatched %s session (%d chars)", meta.Status, len(text))
}

func (d *Dispatcher) run(log logging.Logger, effect string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SideEffectErrors.WithLabelValues(effect).Inc()
			log.Errorf("%s panicked: %v", effect, r)
		}
	}()
	if err := fn(); err != nil {
		metrics.SideEffectErrors.WithLabelValues(effect).Inc()
		log.Warnf("%s failed: %v", effect, err)
	}
}

func durationSeconds(start, end time.Time) float64 {
	if start.IsZero() || end.Before(start) {
		return 0
	}
	return end.Sub(start).Seconds()
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return fmt.Sprintf("%s…", string(r[:n]))
}
