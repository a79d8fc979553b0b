package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siddug/wave-sub000/internal/history"
)

type fakeClipboard struct {
	written, pasted []string
	pasteErr        error
	panicOnWrite    bool
}

func (f *fakeClipboard) WriteText(text string) error {
	if f.panicOnWrite {
		panic("clipboard gone")
	}
	f.written = append(f.written, text)
	return nil
}

func (f *fakeClipboard) PasteAtCursor(text string) error {
	f.pasted = append(f.pasted, text)
	return f.pasteErr
}

type fakeHistory struct {
	records []history.Record
	err     error
}

func (f *fakeHistory) Append(_ context.Context, r history.Record) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, r)
	return nil
}

type toggles struct{ paste, clipboard bool }

func (t toggles) PasteEnabled() bool     { return t.paste }
func (t toggles) ClipboardEnabled() bool { return t.clipboard }

type fakeNotifier struct{ got []string }

func (f *fakeNotifier) Notify(title, message string) error {
	f.got = append(f.got, title+": "+message)
	return nil
}

var (
	started = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ended   = started.Add(3 * time.Second)
)

func newTestDispatcher(cb *fakeClipboard, h *fakeHistory, st Settings) *Dispatcher {
	return New(Config{Clipboard: cb, History: h, Settings: st, Clock: func() time.Time { return ended }})
}

func TestDispatchAllEffects(t *testing.T) {
	cb, h := &fakeClipboard{}, &fakeHistory{}
	d := newTestDispatcher(cb, h, toggles{paste: true, clipboard: true})

	d.Dispatch(context.Background(), "Hello, world.", Meta{SessionID: "s1", StartedAt: started, OriginalText: "hello world", Status: "completed"})

	assert.Equal(t, []string{"Hello, world."}, cb.pasted)
	assert.Equal(t, []string{"Hello, world."}, cb.written)
	require.Len(t, h.records, 1)
	r := h.records[0]
	assert.Equal(t, "s1", r.ID)
	assert.Equal(t, "hello world", r.OriginalText)
	assert.Equal(t, "Hello, world.", r.EnhancedText)
	assert.Equal(t, 3.0, r.DurationSeconds)
	assert.Equal(t, started, r.Timestamp)
}

func TestDispatchGates(t *testing.T) {
	cb, h := &fakeClipboard{}, &fakeHistory{}
	d := newTestDispatcher(cb, h, toggles{})
	d.Dispatch(context.Background(), "text", Meta{SessionID: "s1", StartedAt: started})

	assert.Empty(t, cb.pasted)
	assert.Empty(t, cb.written)
	assert.Len(t, h.records, 1, "history is not gated")
}

func TestDispatchEffectsAreIsolated(t *testing.T) {
	cb := &fakeClipboard{pasteErr: errors.New("no focus"), panicOnWrite: true}
	h := &fakeHistory{}
	d := newTestDispatcher(cb, h, toggles{paste: true, clipboard: true})

	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), "text", Meta{SessionID: "s1", StartedAt: started})
	})
	assert.Len(t, cb.pasted, 1)
	assert.Len(t, h.records, 1, "history still written after paste error and clipboard panic")
}

func TestDispatchFailedSessionStillRecorded(t *testing.T) {
	cb, h := &fakeClipboard{}, &fakeHistory{}
	fail := &fakeNotifier{}
	d := New(Config{Clipboard: cb, History: h, Settings: toggles{paste: true}, FailureNotifier: fail})

	d.Dispatch(context.Background(), "", Meta{SessionID: "s2", StartedAt: started, Status: "failed", Err: errors.New("transcribe: timeout")})

	assert.Empty(t, cb.pasted, "nothing to paste")
	require.Len(t, h.records, 1)
	assert.Empty(t, h.records[0].EnhancedText)
	assert.Equal(t, []string{"Dictation failed: transcribe: timeout"}, fail.got)
}

func TestDispatchArchivesAudio(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "RecordTemp_s3.wav")
	require.NoError(t, os.WriteFile(src, []byte("RIFF"), 0o644))
	h := &fakeHistory{}
	d := New(Config{History: h, Archiver: &FileArchiver{Dir: filepath.Join(dir, "archive"), Keep: true}})

	d.Dispatch(context.Background(), "t", Meta{SessionID: "s3", AudioPath: src})

	require.Len(t, h.records, 1)
	want := filepath.Join(dir, "archive", "recording_s3.wav")
	assert.Equal(t, want, h.records[0].AudioFilePath)
	assert.FileExists(t, want)
	assert.NoFileExists(t, src)
}

func TestArchiverDiscardsWhenNotKeeping(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.wav")
	require.NoError(t, os.WriteFile(src, []byte("RIFF"), 0o644))

	p, err := (&FileArchiver{}).Archive(context.Background(), src, "x")
	require.NoError(t, err)
	assert.Empty(t, p)
	assert.NoFileExists(t, src)
}

func TestArchiverConverts(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.wav")
	require.NoError(t, os.WriteFile(src, []byte("RIFF"), 0o644))
	a := &FileArchiver{Dir: dir, Keep: true, Ext: "ogg", Convert: func(_ context.Context, in, out string) error {
		return os.WriteFile(out, []byte("OggS"), 0o644)
	}}

	p, err := a.Archive(context.Background(), src, "x")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "recording_x.ogg"), p)
	assert.NoFileExists(t, src)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short", 10))
	assert.Equal(t, "abc…", preview("abcdef", 3))
}
