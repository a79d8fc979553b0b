// Package audio prepares recordings for the speech engine.
package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/siddug/wave-sub000/internal/logging"
)

// ErrNotWAV is returned for input the native normalizer cannot decode.
var ErrNotWAV = errors.New("not a WAV file")

// Native normalizes WAV input to 16-bit mono PCM without external tools.
// Output files are written to Dir, or next to the input when Dir is empty.
type Native struct {
	Dir string
}

// ToMonoPCM returns inputPath unchanged when it is already 16-bit mono at
// sampleRate. Otherwise it writes a new file and returns its path.
func (n Native) ToMonoPCM(ctx context.Context, inputPath string, sampleRate int) (string, error) {
	log := logging.NewLogger(ctx).WithComponent("audio")

	f, err := os.Open(inputPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return "", fmt.Errorf("%s: %w", filepath.Base(inputPath), ErrNotWAV)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", filepath.Base(inputPath), err)
	}
	channels := buf.Format.NumChannels
	srcRate := buf.Format.SampleRate
	depth := int(dec.BitDepth)
	if channels == 1 && srcRate == sampleRate && depth == 16 {
		return inputPath, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	samples := Downmix(toFloat(buf.Data, depth), channels)
	samples = Resample(samples, srcRate, sampleRate)
	log.Debugf("normalized %s: %dch %dHz %dbit -> mono %dHz", filepath.Base(inputPath), channels, srcRate, depth, sampleRate)

	dir := n.Dir
	if dir == "" {
		dir = filepath.Dir(inputPath)
	}
	out, err := os.CreateTemp(dir, "norm_*.wav")
	if err != nil {
		return "", err
	}
	if err := WriteWAV(out, samples, sampleRate); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}

// WriteWAV encodes mono float samples as 16-bit PCM.
func WriteWAV(f *os.File, samples []float32, sampleRate int) error {
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(math.Round(float64(clamp(s)) * math.MaxInt16))
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

func toFloat(data []int, depth int) []float32 {
	if depth <= 0 {
		depth = 16
	}
	scale := float32(int64(1) << (depth - 1))
	offset := 0
	if depth == 8 {
		// 8-bit WAV is unsigned
		offset = 128
	}
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v-offset) / scale
	}
	return out
}

func clamp(s float32) float32 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	}
	return s
}
