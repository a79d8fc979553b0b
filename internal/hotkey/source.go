// Package hotkey turns OS keyboard input into a push stream of raw
// shortcut.KeyEvent values.
package hotkey

import (
	"context"
	"errors"
	"sync"

	"github.com/siddug/wave-sub000/internal/shortcut"
)

// ErrUnsupported is returned by Open on platforms without a global key hook.
var ErrUnsupported = errors.New("hotkey: global key events are not supported on this platform")

// DefaultBuffer is the event channel capacity used when Options.Buffer is 0.
const DefaultBuffer = 256

// Source emits raw key events until closed. The channel is closed by Close.
type Source interface {
	Events() <-chan shortcut.KeyEvent
	Close() error
}

// Options tunes a platform source. Swallow, when set, is asked for every key
// down; a true result hides the key (and its matching key up) from other
// applications.
type Options struct {
	Buffer  int
	Swallow func(shortcut.KeyEvent) bool
	Debug   bool
}

func (o Options) buffer() int {
	if o.Buffer <= 0 {
		return DefaultBuffer
	}
	return o.Buffer
}

// ChanSource is a Source fed by Push. Tests and non-hook producers use it.
type ChanSource struct {
	mu     sync.RWMutex
	ch     chan shortcut.KeyEvent
	done   chan struct{}
	once   sync.Once
	closed bool
}

// NewChanSource creates a source fed by Push.
func NewChanSource(buffer int) *ChanSource {
	return &ChanSource{ch: make(chan shortcut.KeyEvent, buffer), done: make(chan struct{})}
}

func (s *ChanSource) Events() <-chan shortcut.KeyEvent { return s.ch }

// Push delivers ev, blocking while the buffer is full. It returns false once
// the source is closed.
func (s *ChanSource) Push(ev shortcut.KeyEvent) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *ChanSource) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
	return nil
}

// Pump calls fn for every event from src until ctx is done or the source
// closes its channel.
func Pump(ctx context.Context, src Source, fn func(shortcut.KeyEvent)) error {
	events := src.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			fn(ev)
		}
	}
}
