package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siddug/wave-sub000/internal/config"
)

func TestArgs(t *testing.T) {
	args, err := Args(OptionsFromConfig(config.DefaultConfig()), "in.wav", "out.ogg")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"-y", "-i", "in.wav", "-ac", "1", "-ar", "16000",
		"-c:a", "libopus", "-b:a", "128k", "-sample_fmt", "s16", "out.ogg",
	}, args)

	args, err = Args(Options{Codec: "pcm", Channels: 2, SampleRate: 44100}, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"-y", "-i", "a", "-ac", "2", "-ar", "44100", "-c:a", "pcm_s16le", "b"}, args)

	args, err = Args(Options{Codec: "FLAC", Depth: 24}, "a", "b")
	require.NoError(t, err)
	assert.NotContains(t, args, "-b:a")
	assert.Contains(t, args, "s24")

	_, err = Args(Options{Codec: "speex"}, "a", "b")
	assert.Error(t, err)
}

func TestNormalizer(t *testing.T) {
	dir := t.TempDir()
	var got []string
	n := Normalizer{Dir: dir, Run: func(_ context.Context, args []string) error {
		got = args
		return nil
	}}

	out, err := n.ToMonoPCM(context.Background(), "rec.wav", 16000)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(out))
	assert.Equal(t, []string{"-y", "-i", "rec.wav", "-ac", "1", "-ar", "16000", "-c:a", "pcm_s16le", out}, got)
}

func TestNormalizerCleansUpOnFailure(t *testing.T) {
	dir := t.TempDir()
	n := Normalizer{Dir: dir, Run: func(context.Context, []string) error { return errors.New("exit status 1") }}

	_, err := n.ToMonoPCM(context.Background(), "rec.wav", 16000)
	require.Error(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
