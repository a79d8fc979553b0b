// Package record captures microphone audio into temporary WAV files.
package record

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"

	"github.com/siddug/wave-sub000/internal/logging"
)

// TempPrefix names every recording file so stale ones can be swept.
const TempPrefix = "RecordTemp_"

const framesPerBuffer = 1024

var (
	ErrBusy         = errors.New("recorder is not idle")
	ErrNotRecording = errors.New("recorder is not recording")
	ErrCanceled     = errors.New("recording canceled")
)

// State is the recorder lifecycle.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateStopping
)

// Stream is a blocking input stream that fills the buffer it was opened with.
type Stream interface {
	Start() error
	Read() error
	Stop() error
	Close() error
}

// OpenFunc opens an input stream writing interleaved frames into buf.
type OpenFunc func(channels, sampleRate, frames int, buf []int16) (Stream, error)

// Options configures a Recorder. Open defaults to PortAudio.
type Options struct {
	Dir        string
	Channels   int
	SampleRate int
	Open       OpenFunc
}

// take is one Start..Stop run.
type take struct {
	path     string
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	canceled bool
	err      error
}

func (t *take) halt() { t.stopOnce.Do(func() { close(t.stop) }) }

// Recorder streams one recording at a time to disk.
type Recorder struct {
	opts Options
	log  logging.Logger

	mu    sync.Mutex
	state State
	cur   *take
}

// New creates a recorder.
func New(opts Options) *Recorder {
	if opts.Channels <= 0 {
		opts.Channels = 1
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if opts.Open == nil {
		opts.Open = OpenPortAudio
	}
	return &Recorder{opts: opts, log: logging.NewLogger(context.Background()).WithComponent("record")}
}

// Start opens the input device and begins writing. Device errors are
// returned here rather than surfacing later from Stop.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateIdle {
		return ErrBusy
	}

	ch := r.opts.Channels
	in := make([]int16, framesPerBuffer*ch)
	stream, err := r.opts.Open(ch, r.opts.SampleRate, framesPerBuffer, in)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	path := r.tempPath()
	file, err := os.Create(path)
	if err != nil {
		stream.Close()
		return fmt.Errorf("create wav: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		file.Close()
		os.Remove(path)
		return fmt.Errorf("start stream: %w", err)
	}

	t := &take{path: path, stop: make(chan struct{}), done: make(chan struct{})}
	r.cur = t
	r.state = StateRecording
	r.log.Debugf("recording to %s", path)
	go r.loop(ctx, t, stream, file, in)
	return nil
}

// Stop ends the current take and returns the finished WAV path.
func (r *Recorder) Stop(ctx context.Context) (string, error) {
	r.mu.Lock()
	t := r.cur
	if t == nil || r.state != StateRecording {
		r.mu.Unlock()
		return "", ErrNotRecording
	}
	r.state = StateStopping
	r.mu.Unlock()

	t.halt()
	select {
	case <-t.done:
		if t.err != nil {
			return "", t.err
		}
		return t.path, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Cancel discards the current take, if any, and waits for the device to be
// released. It is a no-op when idle.
func (r *Recorder) Cancel() error {
	r.mu.Lock()
	t := r.cur
	if t == nil {
		r.mu.Unlock()
		return nil
	}
	t.canceled = true
	r.state = StateStopping
	r.mu.Unlock()

	t.halt()
	<-t.done
	return nil
}

// State returns the current recorder state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Recorder) loop(ctx context.Context, t *take, stream Stream, file *os.File, in []int16) {
	enc := wav.NewEncoder(file, r.opts.SampleRate, 16, r.opts.Channels, 1)
	format := &audio.Format{NumChannels: r.opts.Channels, SampleRate: r.opts.SampleRate}
	data := make([]int, len(in))

	err := func() error {
		for {
			select {
			case <-t.stop:
				return nil
			case <-ctx.Done():
				return nil
			default:
			}
			if err := stream.Read(); err != nil {
				// overflow and similar are transient
				r.log.Debugf("stream read: %v", err)
				continue
			}
			for i, v := range in {
				data[i] = int(v)
			}
			if err := enc.Write(&audio.IntBuffer{Format: format, Data: data, SourceBitDepth: 16}); err != nil {
				return fmt.Errorf("wav write: %w", err)
			}
		}
	}()

	_ = stream.Stop()
	_ = stream.Close()
	if cerr := enc.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("wav close: %w", cerr)
	}
	_ = file.Close()

	r.mu.Lock()
	if t.canceled {
		err = ErrCanceled
	}
	if err != nil {
		os.Remove(t.path)
	}
	t.err = err
	if r.cur == t {
		r.cur = nil
		r.state = StateIdle
	}
	r.mu.Unlock()
	close(t.done)
}

func (r *Recorder) tempPath() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
	dir := r.opts.Dir
	if dir == "" {
		dir, _ = os.Getwd()
	}
	return filepath.Join(dir, fmt.Sprintf("%s%s.wav", TempPrefix, id))
}

// CleanupStale removes leftover recording and normalization temp files in
// dir last modified before cutoff. It returns how many were removed.
func CleanupStale(dir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	log := logging.NewLogger(context.Background()).WithComponent("cleanup")
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasPrefix(name, TempPrefix) || strings.HasPrefix(name, "norm_")) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil {
			log.Warnf("failed remove %s: %v", path, err)
			continue
		}
		log.Debugf("removed %s", path)
		removed++
	}
	return removed, nil
}
