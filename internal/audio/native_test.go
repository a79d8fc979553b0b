package audio

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTone(t *testing.T, path string, rate, channels int, seconds float64) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	frames := int(float64(rate) * seconds)
	data := make([]int, frames*channels)
	for i := 0; i < frames; i++ {
		v := int(math.Sin(2*math.Pi*440*float64(i)/float64(rate)) * 8000)
		for c := 0; c < channels; c++ {
			data[i*channels+c] = v
		}
	}
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
}

func decode(t *testing.T, path string) (*goaudio.IntBuffer, *wav.Decoder) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	return buf, dec
}

func TestNativeDownmixesAndResamples(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	writeTone(t, in, 48000, 2, 0.5)

	out, err := Native{}.ToMonoPCM(context.Background(), in, 16000)
	require.NoError(t, err)
	assert.NotEqual(t, in, out)
	assert.Equal(t, dir, filepath.Dir(out))

	buf, dec := decode(t, out)
	assert.Equal(t, 1, buf.Format.NumChannels)
	assert.Equal(t, 16000, buf.Format.SampleRate)
	assert.Equal(t, uint16(16), dec.BitDepth)
	assert.InDelta(t, 8000, len(buf.Data), 2)
}

func TestNativePassesThroughNormalizedInput(t *testing.T) {
	in := filepath.Join(t.TempDir(), "in.wav")
	writeTone(t, in, 16000, 1, 0.1)

	out, err := Native{}.ToMonoPCM(context.Background(), in, 16000)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestNativeRejectsNonWAV(t *testing.T) {
	in := filepath.Join(t.TempDir(), "in.ogg")
	require.NoError(t, os.WriteFile(in, []byte("OggS not a wav file at all"), 0o644))

	_, err := Native{}.ToMonoPCM(context.Background(), in, 16000)
	assert.ErrorIs(t, err, ErrNotWAV)
}

func TestResample(t *testing.T) {
	in := make([]float32, 4800)
	for i := range in {
		in[i] = 0.5
	}
	out := Resample(in, 48000, 16000)
	require.Len(t, out, 1600)
	// DC passes the low-pass at unity gain away from the edges.
	assert.InDelta(t, 0.5, out[800], 1e-3)

	assert.Equal(t, in, Resample(in, 16000, 16000))
	assert.Len(t, Resample(in[:160], 16000, 48000), 480)
	assert.Empty(t, Resample(nil, 8000, 16000))
}

func TestDownmix(t *testing.T) {
	assert.Equal(t, []float32{0.5, 0}, Downmix([]float32{1, 0, 0.5, -0.5}, 2))
	mono := []float32{1, 2}
	assert.Equal(t, mono, Downmix(mono, 1))
}
