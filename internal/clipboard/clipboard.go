// Package clipboard writes text to the system clipboard and pastes it into
// the focused window.
package clipboard

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
)

// Backend is the system clipboard.
type Backend interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

type systemBackend struct{}

func (systemBackend) ReadAll() (string, error)   { return clipboard.ReadAll() }
func (systemBackend) WriteAll(text string) error { return clipboard.WriteAll(text) }

// Clipboard serializes clipboard access; paste temporarily replaces the
// clipboard and restores the previous content afterwards.
type Clipboard struct {
	mu      sync.Mutex
	backend Backend
	sendKey func() error
	settle  time.Duration
	restore time.Duration
}

// New returns a clipboard backed by the system clipboard.
func New() *Clipboard {
	return &Clipboard{
		backend: systemBackend{},
		sendKey: sendPasteChord,
		settle:  80 * time.Millisecond,
		restore: 120 * time.Millisecond,
	}
}

// WriteText replaces the clipboard content.
func (c *Clipboard) WriteText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.backend.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard write: %w", err)
	}
	return nil
}

// PasteAtCursor writes text to the clipboard, sends the paste chord and
// restores whatever the clipboard held before.
func (c *Clipboard) PasteAtCursor(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	orig, readErr := c.backend.ReadAll()
	if err := c.backend.WriteAll(text); err != nil {
		return fmt.Errorf("paste: clipboard write: %w", err)
	}
	time.Sleep(c.settle)

	if err := c.sendKey(); err != nil {
		return fmt.Errorf("paste: send keys: %w", err)
	}
	time.Sleep(c.restore)
	if readErr == nil {
		_ = c.backend.WriteAll(orig)
	}
	return nil
}

var (
	bondingOnce sync.Once
	bonding     keybd_event.KeyBonding
	bondingErr  error
)

func sendPasteChord() error {
	bondingOnce.Do(func() {
		bonding, bondingErr = keybd_event.NewKeyBonding()
		if bondingErr == nil && runtime.GOOS == "linux" {
			// uinput needs a moment before the virtual device accepts events
			time.Sleep(2 * time.Second)
		}
	})
	if bondingErr != nil {
		return bondingErr
	}
	kb := bonding
	if runtime.GOOS == "darwin" {
		kb.HasSuper(true)
	} else {
		kb.HasCTRL(true)
	}
	kb.SetKeys(keybd_event.VK_V)
	return kb.Launching()
}
