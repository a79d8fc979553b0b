// Package session owns the dictation session lifecycle: at most one session
// records or transcribes at a time, and every session that starts reaches
// exactly one terminal status.
package session

import (
	"errors"
	"time"

	"github.com/siddug/wave-sub000/internal/shortcut"
)

var (
	ErrSessionActive = errors.New("a session is already active")
	ErrNotRecording  = errors.New("no session is recording")
	ErrWrongTrigger  = errors.New("session was started by a different shortcut")
)

// Status is the lifecycle state of a session.
type Status int

const (
	StatusIdle Status = iota
	StatusRecording
	StatusTranscribing
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusRecording:
		return "recording"
	case StatusTranscribing:
		return "transcribing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Active reports whether s occupies the session slot.
func (s Status) Active() bool {
	return s == StatusRecording || s == StatusTranscribing
}

// Session is one start-to-terminal recording attempt.
type Session struct {
	ID           string
	Status       Status
	StartedAt    time.Time
	Trigger      shortcut.Type
	AudioPath    string
	OriginalText string
	EnhancedText string
}

// Event is published on every transition. Recording and Transcribing are
// both false once the session is terminal. Stage is set when a pipeline
// stage begins; Reason carries the cause of a failure or cancellation.
type Event struct {
	Seq          uint64
	SessionID    string
	Status       Status
	Recording    bool
	Transcribing bool
	Stage        string
	Reason       string
	At           time.Time
}

func eventFor(s *Session, at time.Time) Event {
	return Event{
		SessionID:    s.ID,
		Status:       s.Status,
		Recording:    s.Status == StatusRecording,
		Transcribing: s.Status == StatusTranscribing,
		At:           at,
	}
}
