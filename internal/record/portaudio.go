package record

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// paStream terminates PortAudio when the stream closes so every take
// initializes and releases the library once.
type paStream struct {
	*portaudio.Stream
}

func (s paStream) Close() error {
	err := s.Stream.Close()
	portaudio.Terminate()
	return err
}

// OpenPortAudio opens the default input device.
func OpenPortAudio(channels, sampleRate, frames int, buf []int16) (Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init failed: %w", err)
	}
	s, err := portaudio.OpenDefaultStream(channels, 0, float64(sampleRate), frames, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	return paStream{s}, nil
}
