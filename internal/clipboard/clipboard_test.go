package clipboard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBackend struct {
	content string
	writes  []string
	readErr error
}

func (m *memBackend) ReadAll() (string, error) { return m.content, m.readErr }

func (m *memBackend) WriteAll(text string) error {
	m.content = text
	m.writes = append(m.writes, text)
	return nil
}

func newTestClipboard(b Backend, send func() error) *Clipboard {
	return &Clipboard{backend: b, sendKey: send}
}

func TestPasteRestoresPreviousContent(t *testing.T) {
	b := &memBackend{content: "previous"}
	var seen string
	c := newTestClipboard(b, func() error {
		seen = b.content
		return nil
	})

	require.NoError(t, c.PasteAtCursor("dictated"))
	assert.Equal(t, "dictated", seen, "clipboard holds the text while the chord is sent")
	assert.Equal(t, "previous", b.content)
}

func TestPasteKeyFailure(t *testing.T) {
	b := &memBackend{content: "previous"}
	c := newTestClipboard(b, func() error { return errors.New("no uinput") })
	assert.ErrorContains(t, c.PasteAtCursor("dictated"), "no uinput")
}

func TestPasteSkipsRestoreWhenUnreadable(t *testing.T) {
	b := &memBackend{readErr: errors.New("empty")}
	c := newTestClipboard(b, func() error { return nil })
	require.NoError(t, c.PasteAtCursor("dictated"))
	assert.Equal(t, []string{"dictated"}, b.writes)
}

func TestWriteText(t *testing.T) {
	b := &memBackend{}
	require.NoError(t, newTestClipboard(b, nil).WriteText("kept"))
	assert.Equal(t, "kept", b.content)
}
