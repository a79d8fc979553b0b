// Package ffmpeg shells out to the ffmpeg binary for normalization and
// archive transcoding.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/siddug/wave-sub000/internal/config"
	"github.com/siddug/wave-sub000/internal/logging"
)

// Options selects the output encoding for Convert.
type Options struct {
	Codec      string
	Channels   int
	SampleRate int
	BitRate    int
	Depth      int
}

// OptionsFromConfig reads the archive encoding from cfg.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Codec:      cfg.CODECS,
		Channels:   cfg.Channels,
		SampleRate: cfg.SAMPLING_RATE,
		BitRate:    cfg.BIT_RATE,
		Depth:      cfg.SAMPLING_RATE_DEPTH,
	}
}

// Runner executes ffmpeg with args.
type Runner func(ctx context.Context, args []string) error

// Exec runs the ffmpeg binary found on PATH.
func Exec(ctx context.Context, args []string) error {
	logging.NewLogger(ctx).WithComponent("ffmpeg").Debugf("executing: ffmpeg %s", strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w\n%s", err, stderr.String())
	}
	return nil
}

// Args builds the ffmpeg argument list converting in to out.
func Args(opts Options, in, out string) ([]string, error) {
	ffCodec, hasBitrate := codecFor(opts.Codec)
	if ffCodec == "" {
		return nil, fmt.Errorf("unsupported codec: %s", opts.Codec)
	}
	channels := opts.Channels
	if channels <= 0 {
		channels = 1
	}
	rate := opts.SampleRate
	if rate <= 0 {
		rate = 16000
	}

	args := []string{"-y", "-i", in, "-ac", strconv.Itoa(channels), "-ar", strconv.Itoa(rate), "-c:a", ffCodec}
	if !strings.HasPrefix(ffCodec, "pcm_") {
		if hasBitrate {
			bitrate := opts.BitRate
			if bitrate <= 0 {
				bitrate = 128
			}
			args = append(args, "-b:a", fmt.Sprintf("%dk", bitrate))
		}
		if f := sampleFormat(opts.Depth); f != "" {
			args = append(args, "-sample_fmt", f)
		}
	}
	return append(args, out), nil
}

// Convert transcodes in to out with the real ffmpeg binary.
func Convert(ctx context.Context, opts Options, in, out string) error {
	args, err := Args(opts, in, out)
	if err != nil {
		return err
	}
	return Exec(ctx, args)
}

// Normalizer produces 16-bit mono WAV for the speech engine.
type Normalizer struct {
	Dir string
	Run Runner
}

func (n Normalizer) ToMonoPCM(ctx context.Context, inputPath string, sampleRate int) (string, error) {
	dir := n.Dir
	if dir == "" {
		dir = filepath.Dir(inputPath)
	}
	f, err := os.CreateTemp(dir, "norm_*.wav")
	if err != nil {
		return "", err
	}
	out := f.Name()
	f.Close()

	args, err := Args(Options{Codec: "pcm_s16le", Channels: 1, SampleRate: sampleRate}, inputPath, out)
	if err != nil {
		os.Remove(out)
		return "", err
	}
	run := n.Run
	if run == nil {
		run = Exec
	}
	if err := run(ctx, args); err != nil {
		os.Remove(out)
		return "", err
	}
	return out, nil
}

func sampleFormat(depth int) string {
	switch depth {
	case 8:
		return "u8"
	case 24:
		return "s24"
	case 32:
		return "s32"
	case 16, 0:
		return "s16"
	}
	return ""
}

func codecFor(key string) (string, bool) {
	k := strings.ToLower(key)
	switch k {
	case "opus", "libopus":
		return "libopus", true
	case "wavpack":
		return "wavpack", false
	case "aac":
		return "aac", true
	case "ac3":
		return "ac3", true
	case "eac3":
		return "eac3", true
	case "mp3":
		return "libmp3lame", true
	case "mp2":
		return "mp2", true
	case "mp1":
		return "mp1", true
	case "flac":
		return "flac", false
	case "alac":
		return "alac", false
	case "pcm":
		return "pcm_s16le", false
	case "vorbis", "libvorbis", "vorb":
		return "libvorbis", true
	case "adpcm":
		return "adpcm_ms", false
	case "amr":
		return "libopencore_amrnb", true
	case "pcm_f32be", "pcm_f32le", "pcm_f64be", "pcm_f64le",
		"pcm_s16be", "pcm_s16le", "pcm_s24be", "pcm_s24le",
		"pcm_s32be", "pcm_s32le", "pcm_s64be", "pcm_s64le",
		"pcm_s8":
		return k, false
	default:
		return "", false
	}
}
