package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siddug/wave-sub000/internal/dispatch"
	"github.com/siddug/wave-sub000/internal/history"
	"github.com/siddug/wave-sub000/internal/pipeline"
	"github.com/siddug/wave-sub000/internal/shortcut"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeCapture struct {
	mu       sync.Mutex
	startErr error
	starts   int
	cancels  int
	path     string
	onCancel func()
}

func (f *fakeCapture) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return f.startErr
}

func (f *fakeCapture) Stop(context.Context) (string, error) {
	return f.path, nil
}

func (f *fakeCapture) Cancel() error {
	f.mu.Lock()
	f.cancels++
	hook := f.onCancel
	f.onCancel = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (f *fakeCapture) counts() (starts, cancels int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.cancels
}

// processorFunc adapts a function to Processor.
type processorFunc func(ctx context.Context, path string, progress func(pipeline.Stage)) pipeline.Result

func (f processorFunc) Process(ctx context.Context, path string, progress func(pipeline.Stage)) pipeline.Result {
	return f(ctx, path, progress)
}

func ok(text string) processorFunc {
	return func(context.Context, string, func(pipeline.Stage)) pipeline.Result {
		return pipeline.Result{Success: true, OriginalText: text, Text: text}
	}
}

type memHistory struct {
	mu      sync.Mutex
	records []history.Record
}

func (h *memHistory) Append(_ context.Context, r history.Record) error {
	h.mu.Lock()
	h.records = append(h.records, r)
	h.mu.Unlock()
	return nil
}

func (h *memHistory) all() []history.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]history.Record(nil), h.records...)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) add(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, 0, len(r.events))
	for _, ev := range r.events {
		if ev.Stage == "" {
			out = append(out, ev.Status)
		}
	}
	return out
}

func (r *recorder) lastEvent() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type harness struct {
	m       *Machine
	clock   *fakeClock
	capture *fakeCapture
	hist    *memHistory
	events  *recorder
}

func newHarness(t *testing.T, proc Processor) *harness {
	t.Helper()
	h := &harness{
		clock:   &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		capture: &fakeCapture{path: "/tmp/RecordTemp_test.wav"},
		hist:    &memHistory{},
		events:  &recorder{},
	}
	var ids atomic.Int32
	h.m = NewMachine(Config{
		Capture:    h.capture,
		Processor:  proc,
		Dispatcher: dispatch.New(dispatch.Config{History: h.hist, Clock: h.clock.Now}),
		Clock:      h.clock.Now,
		NewID:      func() string { return fmt.Sprintf("s%d", ids.Add(1)) },
	})
	h.m.Bus().Subscribe(h.events.add)
	t.Cleanup(h.m.Bus().Close)
	return h
}

func (h *harness) settle() {
	h.m.Wait()
	h.m.Bus().Sync()
}

func TestHoldHappyPath(t *testing.T) {
	h := newHarness(t, ok("hello world"))
	ctx := context.Background()

	require.NoError(t, h.m.HandleTrigger(ctx, shortcut.HoldStart))
	cur, active := h.m.Current()
	require.True(t, active)
	assert.Equal(t, StatusRecording, cur.Status)
	assert.Equal(t, shortcut.TypeHold, cur.Trigger)

	h.clock.Advance(2 * time.Second)
	require.NoError(t, h.m.HandleTrigger(ctx, shortcut.HoldEnd))
	h.settle()

	_, active = h.m.Current()
	assert.False(t, active)
	assert.Equal(t, StatusCompleted, h.m.Last().Status)

	recs := h.hist.all()
	require.Len(t, recs, 1)
	assert.Equal(t, "hello world", recs[0].EnhancedText)
	assert.Equal(t, 2.0, recs[0].DurationSeconds)

	assert.Equal(t, []Status{StatusRecording, StatusTranscribing, StatusCompleted}, h.events.statuses())
	last := h.events.lastEvent()
	assert.False(t, last.Recording)
	assert.False(t, last.Transcribing)
}

func TestConcurrentStartsAdmitOneSession(t *testing.T) {
	h := newHarness(t, ok("x"))
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
		rejected atomic.Int32
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			typ := shortcut.TypeHold
			if i%2 == 0 {
				typ = shortcut.TypeToggle
			}
			switch err := h.m.Start(ctx, typ); {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, ErrSessionActive):
				rejected.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), accepted.Load())
	assert.Equal(t, int32(63), rejected.Load())
	assert.Equal(t, 1, h.capture.starts)
}

func TestStartWhileTranscribingIsRejected(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, processorFunc(func(context.Context, string, func(pipeline.Stage)) pipeline.Result {
		<-release
		return pipeline.Result{Success: true, Text: "done"}
	}))
	ctx := context.Background()

	require.NoError(t, h.m.Start(ctx, shortcut.TypeToggle))
	require.NoError(t, h.m.Stop(ctx, shortcut.TypeToggle))
	assert.ErrorIs(t, h.m.Start(ctx, shortcut.TypeToggle), ErrSessionActive)
	phase, _ := h.m.Phase()
	assert.Equal(t, shortcut.PhaseBusy, phase)

	close(release)
	h.settle()
	require.NoError(t, h.m.Start(ctx, shortcut.TypeToggle))
}

func TestStopRules(t *testing.T) {
	h := newHarness(t, ok("x"))
	ctx := context.Background()

	assert.ErrorIs(t, h.m.Stop(ctx, shortcut.TypeHold), ErrNotRecording)

	require.NoError(t, h.m.Start(ctx, shortcut.TypeToggle))
	assert.ErrorIs(t, h.m.Stop(ctx, shortcut.TypeHold), ErrWrongTrigger)
	cur, _ := h.m.Current()
	assert.Equal(t, StatusRecording, cur.Status)
}

func TestStuckTranscriptionIsCancelled(t *testing.T) {
	entered := make(chan struct{})
	h := newHarness(t, processorFunc(func(ctx context.Context, _ string, _ func(pipeline.Stage)) pipeline.Result {
		close(entered)
		<-ctx.Done()
		return pipeline.Result{Err: ctx.Err()}
	}))
	ctx := context.Background()

	require.NoError(t, h.m.HandleTrigger(ctx, shortcut.HoldStart))
	require.NoError(t, h.m.HandleTrigger(ctx, shortcut.HoldEnd))
	<-entered

	h.clock.Advance(DefaultTimeout - time.Second)
	h.m.Tick(h.clock.Now())
	_, active := h.m.Current()
	require.True(t, active, "not expired yet")

	h.clock.Advance(time.Second)
	h.m.Tick(h.clock.Now())
	h.settle()

	_, active = h.m.Current()
	assert.False(t, active)
	assert.Equal(t, StatusCancelled, h.m.Last().Status)
	assert.Empty(t, h.hist.all(), "cancelled sessions have no side effects")
	assert.Equal(t, 1, h.capture.cancels)

	last := h.events.lastEvent()
	assert.Equal(t, StatusCancelled, last.Status)
	assert.False(t, last.Recording || last.Transcribing)
	assert.Equal(t, "watchdog", last.Reason)
}

func TestRecordingWatchdog(t *testing.T) {
	h := newHarness(t, ok("x"))
	require.NoError(t, h.m.Start(context.Background(), shortcut.TypeToggle))

	h.clock.Advance(DefaultTimeout)
	h.m.Tick(h.clock.Now())
	h.settle()

	assert.Equal(t, StatusCancelled, h.m.Last().Status)
	assert.ErrorIs(t, h.m.Stop(context.Background(), shortcut.TypeToggle), ErrNotRecording)
}

func TestWatchdogCancelsCaptureBeforeNextStart(t *testing.T) {
	h := newHarness(t, ok("x"))
	ctx := context.Background()
	require.NoError(t, h.m.Start(ctx, shortcut.TypeToggle))

	entered := make(chan struct{})
	release := make(chan struct{})
	h.capture.mu.Lock()
	h.capture.onCancel = func() {
		close(entered)
		<-release
	}
	h.capture.mu.Unlock()

	h.clock.Advance(DefaultTimeout)
	ticked := make(chan struct{})
	go func() {
		h.m.Tick(h.clock.Now())
		close(ticked)
	}()
	<-entered

	started := make(chan error, 1)
	go func() { started <- h.m.Start(ctx, shortcut.TypeToggle) }()
	select {
	case err := <-started:
		t.Fatalf("start returned %v while the cancelled capture was still stopping", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-ticked
	require.NoError(t, <-started)

	starts, cancels := h.capture.counts()
	assert.Equal(t, 2, starts)
	assert.Equal(t, 1, cancels)
	cur, active := h.m.Current()
	require.True(t, active)
	assert.Equal(t, StatusRecording, cur.Status)
}

func TestProgressExtendsWatchdog(t *testing.T) {
	stage := make(chan func(pipeline.Stage))
	release := make(chan struct{})
	h := newHarness(t, processorFunc(func(_ context.Context, _ string, progress func(pipeline.Stage)) pipeline.Result {
		stage <- progress
		<-release
		return pipeline.Result{Success: true, Text: "late but fine"}
	}))
	ctx := context.Background()

	require.NoError(t, h.m.Start(ctx, shortcut.TypeHold))
	require.NoError(t, h.m.Stop(ctx, shortcut.TypeHold))
	progress := <-stage

	h.clock.Advance(DefaultTimeout - time.Second)
	progress(pipeline.StageEnhance)
	h.clock.Advance(2 * time.Second)
	h.m.Tick(h.clock.Now())

	_, active := h.m.Current()
	assert.True(t, active, "stage transition re-armed the watchdog")

	close(release)
	h.settle()
	assert.Equal(t, StatusCompleted, h.m.Last().Status)
}

func TestLateResultDoesNotTouchNewSession(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	var discarded []string
	h := newHarness(t, processorFunc(func(context.Context, string, func(pipeline.Stage)) pipeline.Result {
		if calls.Add(1) == 1 {
			<-release
			return pipeline.Result{Success: true, Text: "stale"}
		}
		return pipeline.Result{Success: true, Text: "fresh"}
	}))
	h.m.cfg.Discard = func(p string) { discarded = append(discarded, p) }
	ctx := context.Background()

	require.NoError(t, h.m.Start(ctx, shortcut.TypeHold))
	require.NoError(t, h.m.Stop(ctx, shortcut.TypeHold))
	h.clock.Advance(DefaultTimeout)
	h.m.Tick(h.clock.Now())

	require.NoError(t, h.m.Start(ctx, shortcut.TypeToggle))
	second, _ := h.m.Current()

	close(release)
	h.m.Wait()

	cur, active := h.m.Current()
	require.True(t, active)
	assert.Equal(t, second.ID, cur.ID)
	assert.Equal(t, StatusRecording, cur.Status)
	assert.Empty(t, h.hist.all())
	assert.Equal(t, []string{"/tmp/RecordTemp_test.wav"}, discarded)

	require.NoError(t, h.m.Stop(ctx, shortcut.TypeToggle))
	h.settle()
	recs := h.hist.all()
	require.Len(t, recs, 1)
	assert.Equal(t, "fresh", recs[0].EnhancedText)
}

func TestPipelineFailureStillDispatches(t *testing.T) {
	h := newHarness(t, processorFunc(func(context.Context, string, func(pipeline.Stage)) pipeline.Result {
		return pipeline.Result{Stage: pipeline.StageTranscribe, Err: errors.New("server down")}
	}))
	ctx := context.Background()

	require.NoError(t, h.m.Start(ctx, shortcut.TypeHold))
	require.NoError(t, h.m.Stop(ctx, shortcut.TypeHold))
	h.settle()

	assert.Equal(t, StatusFailed, h.m.Last().Status)
	recs := h.hist.all()
	require.Len(t, recs, 1)
	assert.Empty(t, recs[0].EnhancedText)
	assert.Equal(t, "server down", h.events.lastEvent().Reason)
}

func TestCaptureStartFailure(t *testing.T) {
	h := newHarness(t, ok("x"))
	h.capture.startErr = errors.New("no input device")

	err := h.m.Start(context.Background(), shortcut.TypeToggle)
	require.Error(t, err)
	h.settle()

	_, active := h.m.Current()
	assert.False(t, active)
	assert.Equal(t, StatusFailed, h.m.Last().Status)
	assert.Equal(t, []Status{StatusRecording, StatusFailed}, h.events.statuses())
}

func TestProcessorPanicFailsSession(t *testing.T) {
	h := newHarness(t, processorFunc(func(context.Context, string, func(pipeline.Stage)) pipeline.Result {
		panic("boom")
	}))
	ctx := context.Background()

	require.NoError(t, h.m.Start(ctx, shortcut.TypeHold))
	require.NoError(t, h.m.Stop(ctx, shortcut.TypeHold))
	h.settle()
	assert.Equal(t, StatusFailed, h.m.Last().Status)
}

func TestRapidDoubleToggleThroughMatcher(t *testing.T) {
	h := newHarness(t, ok("x"))
	def, err := shortcut.ToggleDefinition("alt+q")
	require.NoError(t, err)
	matcher := shortcut.NewMatcher(shortcut.Config{Toggle: &def}, h.m.Phase)

	ev := shortcut.KeyEvent{Kind: shortcut.KeyDown, KeyCode: def.Start.KeyCode, Modifiers: def.Start.Modifiers}
	t0 := h.clock.Now()
	ctx := context.Background()

	for _, at := range []time.Duration{0, 100 * time.Millisecond, 500 * time.Millisecond} {
		ev.Timestamp = t0.Add(at)
		_ = h.m.HandleTrigger(ctx, matcher.Feed(ev))
	}
	h.settle()

	assert.Equal(t, StatusCompleted, h.m.Last().Status)
	assert.Len(t, h.hist.all(), 1)
}
