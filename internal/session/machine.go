package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/siddug/wave-sub000/internal/dispatch"
	"github.com/siddug/wave-sub000/internal/logging"
	"github.com/siddug/wave-sub000/internal/metrics"
	"github.com/siddug/wave-sub000/internal/pipeline"
	"github.com/siddug/wave-sub000/internal/shortcut"
)

// DefaultTick is how often Run evaluates the watchdog.
const DefaultTick = time.Second

// Capture records audio for one session at a time. Cancel must be safe to
// call in any state.
type Capture interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (string, error)
	Cancel() error
}

// Processor turns a finished recording into text.
type Processor interface {
	Process(ctx context.Context, audioPath string, progress func(pipeline.Stage)) pipeline.Result
}

// Dispatcher runs the side effects of a finished session.
type Dispatcher interface {
	Dispatch(ctx context.Context, text string, meta dispatch.Meta)
}

// Config wires a Machine. Clock, NewID, Timeout and Bus have defaults.
type Config struct {
	Capture    Capture
	Processor  Processor
	Dispatcher Dispatcher
	Bus        *Bus
	Timeout    time.Duration
	Clock      func() time.Time
	NewID      func() string

	// Discard removes audio whose session was cancelled before it arrived.
	Discard func(path string)
}

// Machine is the session state machine. All transitions happen under mu and
// publish their event before mu is released, so bus order is transition
// order.
type Machine struct {
	cfg Config
	wd  Watchdog
	log logging.Logger

	// opMu serializes capture Start, Stop and watchdog Cancel calls. It is
	// always taken before mu.
	opMu sync.Mutex

	mu        sync.Mutex
	cur       *Session
	last      Session
	armedAt   time.Time
	cancelRun context.CancelFunc

	running sync.WaitGroup
}

// NewMachine creates an idle machine.
func NewMachine(cfg Config) *Machine {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = newID
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	log := logging.NewLogger(context.Background()).WithComponent("session")
	if cfg.Bus == nil {
		cfg.Bus = NewBus(log)
	}
	return &Machine{cfg: cfg, wd: Watchdog{Timeout: cfg.Timeout}, log: log}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Bus returns the bus session events are published on.
func (m *Machine) Bus() *Bus { return m.cfg.Bus }

// HandleTrigger routes a matcher trigger. Rejections are logged and counted,
// never returned as failures of the key source.
func (m *Machine) HandleTrigger(ctx context.Context, t shortcut.Trigger) error {
	var err error
	switch t {
	case shortcut.None:
		return nil
	case shortcut.HoldStart, shortcut.ToggleStart:
		err = m.Start(ctx, t.Type())
	default:
		err = m.Stop(ctx, t.Type())
	}
	if err != nil {
		m.log.Debugf("%s rejected: %v", t, err)
		return err
	}
	metrics.TriggersTotal.WithLabelValues(t.String()).Inc()
	return nil
}

// Start opens a new session and begins capture. The slot check and the move
// to Recording happen in one critical section.
func (m *Machine) Start(ctx context.Context, trigger shortcut.Type) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.cur != nil {
		id := m.cur.ID
		m.mu.Unlock()
		metrics.TriggersRejected.Inc()
		m.log.Infof("start rejected, session %s still active", id)
		return ErrSessionActive
	}
	now := m.cfg.Clock()
	s := &Session{ID: m.cfg.NewID(), Status: StatusRecording, StartedAt: now, Trigger: trigger}
	m.cur = s
	m.armedAt = now
	metrics.SessionActive.Set(1)
	m.publish(s, now, "", "")
	m.mu.Unlock()

	m.log.WithField("session", s.ID).Infof("recording (%s)", trigger)
	if err := m.cfg.Capture.Start(ctx); err != nil {
		err = fmt.Errorf("capture start: %w", err)
		m.complete(ctx, s.ID, StatusRecording, "", pipeline.Result{Err: err})
		return err
	}
	return nil
}

// Stop ends capture and hands the audio to the processor in the background.
// Only the shortcut family that started the session may stop it.
func (m *Machine) Stop(ctx context.Context, trigger shortcut.Type) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	s := m.cur
	if s == nil || s.Status != StatusRecording {
		m.mu.Unlock()
		metrics.TriggersRejected.Inc()
		return ErrNotRecording
	}
	if s.Trigger != trigger {
		m.mu.Unlock()
		metrics.TriggersRejected.Inc()
		return ErrWrongTrigger
	}
	now := m.cfg.Clock()
	s.Status = StatusTranscribing
	m.armedAt = now
	m.publish(s, now, "", "")

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancelRun = cancel
	m.running.Add(1)
	m.mu.Unlock()

	go m.drain(runCtx, cancel, s.ID)
	return nil
}

func (m *Machine) drain(ctx context.Context, cancel context.CancelFunc, id string) {
	defer m.running.Done()
	defer cancel()

	var (
		res       pipeline.Result
		audioPath string
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				res = pipeline.Result{Err: fmt.Errorf("session %s panicked: %v", id, r)}
			}
		}()
		p, err := m.cfg.Capture.Stop(ctx)
		if err != nil {
			res = pipeline.Result{Err: fmt.Errorf("capture stop: %w", err)}
			return
		}
		audioPath = p
		res = m.cfg.Processor.Process(ctx, p, func(st pipeline.Stage) { m.Progress(id, st) })
	}()
	m.complete(ctx, id, StatusTranscribing, audioPath, res)
}

// Progress re-arms the watchdog when the current session enters a new stage.
func (m *Machine) Progress(id string, stage pipeline.Stage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil || m.cur.ID != id || m.cur.Status != StatusTranscribing {
		return
	}
	now := m.cfg.Clock()
	m.armedAt = now
	m.publish(m.cur, now, string(stage), "")
}

// complete applies a result to session id if it is still current and in
// the expected status. Otherwise the result is late and dropped.
func (m *Machine) complete(ctx context.Context, id string, from Status, audioPath string, res pipeline.Result) {
	log := m.log.WithField("session", id)

	m.mu.Lock()
	s := m.cur
	if s == nil || s.ID != id || s.Status != from {
		m.mu.Unlock()
		log.Infof("discarding late result")
		if audioPath != "" && m.cfg.Discard != nil {
			m.cfg.Discard(audioPath)
		}
		return
	}
	s.AudioPath = audioPath
	s.OriginalText = res.OriginalText
	s.EnhancedText = res.Text
	if res.Success {
		s.Status = StatusCompleted
	} else {
		s.Status = StatusFailed
	}
	// The slot stays taken until dispatch finishes.
	snapshot := *s
	m.cancelRun = nil
	m.mu.Unlock()

	if res.Err != nil {
		log.Errorf("session failed: %v", res.Err)
	}
	if m.cfg.Dispatcher != nil {
		m.cfg.Dispatcher.Dispatch(context.WithoutCancel(ctx), res.Text, dispatch.Meta{
			SessionID:    snapshot.ID,
			Status:       snapshot.Status.String(),
			Trigger:      string(snapshot.Trigger),
			StartedAt:    snapshot.StartedAt,
			OriginalText: snapshot.OriginalText,
			Processed:    res.Processed,
			AudioPath:    audioPath,
			Err:          res.Err,
		})
	}

	m.mu.Lock()
	m.cur = nil
	m.last = snapshot
	m.publish(&snapshot, m.cfg.Clock(), "", errString(res.Err))
	m.mu.Unlock()

	metrics.SessionActive.Set(0)
	metrics.SessionsTotal.WithLabelValues(snapshot.Status.String()).Inc()
	log.Infof("session %s", snapshot.Status)
}

// Tick evaluates the watchdog at now. An expired session is cancelled
// without side effects and any result it later produces is discarded. The
// capture is cancelled before opMu is released, so a following Start never
// overlaps the old take.
func (m *Machine) Tick(now time.Time) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	s := m.cur
	if s == nil || !s.Status.Active() || !m.wd.Expired(m.armedAt, now) {
		m.mu.Unlock()
		return
	}
	from := s.Status
	s.Status = StatusCancelled
	m.cur = nil
	m.last = *s
	cancel := m.cancelRun
	m.cancelRun = nil
	m.publish(s, now, "", "watchdog")
	m.mu.Unlock()

	m.log.WithField("session", s.ID).Warnf("watchdog expired after %s while %s, session cancelled", m.wd.Timeout, from)
	metrics.SessionActive.Set(0)
	metrics.SessionsTotal.WithLabelValues(StatusCancelled.String()).Inc()

	if cancel != nil {
		cancel()
	}
	if err := m.cfg.Capture.Cancel(); err != nil {
		m.log.Warnf("capture cancel: %v", err)
	}
}

// Run drives the watchdog until ctx is done.
func (m *Machine) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTick
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Tick(m.cfg.Clock())
		}
	}
}

// Wait blocks until every background pipeline run has returned.
func (m *Machine) Wait() {
	m.running.Wait()
}

// Phase reports the session phase for the shortcut matcher.
func (m *Machine) Phase() (shortcut.Phase, shortcut.Type) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.cur == nil:
		return shortcut.PhaseIdle, ""
	case m.cur.Status == StatusRecording:
		return shortcut.PhaseRecording, m.cur.Trigger
	default:
		return shortcut.PhaseBusy, m.cur.Trigger
	}
}

// Current returns a copy of the active session.
func (m *Machine) Current() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return Session{}, false
	}
	return *m.cur, true
}

// Last returns the most recent terminal session.
func (m *Machine) Last() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Remaining is the watchdog budget left for the active session.
func (m *Machine) Remaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return m.wd.Timeout
	}
	return m.wd.Remaining(m.armedAt, m.cfg.Clock())
}

// publish must be called with mu held.
func (m *Machine) publish(s *Session, at time.Time, stage, reason string) {
	ev := eventFor(s, at)
	ev.Stage = stage
	ev.Reason = reason
	m.cfg.Bus.Publish(ev)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
