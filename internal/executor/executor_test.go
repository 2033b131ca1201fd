// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/maccrin/meetbot/internal/clock"
	"github.com/maccrin/meetbot/internal/domain/meeting/lifecycle"
	"github.com/maccrin/meetbot/internal/domain/meeting/model"
	"github.com/maccrin/meetbot/internal/domain/meeting/ports"
	"github.com/maccrin/meetbot/internal/domain/meeting/store"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	clk      *clock.Fake
	store    *store.MemoryStore
	driver   *mockDriver
	recorder *mockRecorder
	exec     *Executor
	meeting  model.Meeting
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	cfg := DefaultConfig()
	cfg.AuthBackoff = 0
	cfg.StatusWriteBackoff = 0
	cfg.LaunchRate = 0
	cfg.Credentials = ports.Credentials{Email: "bot@example.com", Password: "pw"}
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		clk:      clock.NewFake(t0),
		store:    store.NewMemoryStore(),
		driver:   &mockDriver{},
		recorder: &mockRecorder{},
		meeting: model.Meeting{
			ID:        "m1",
			URL:       "https://meet.example.com/abc-defg-hij",
			StartTime: t0,
			EndTime:   t0.Add(time.Minute),
			Status:    model.StatusPending,
		},
	}
	h.store.Put(h.meeting)
	h.exec = New(cfg, h.store, h.driver, h.recorder, WithClock(h.clk))
	t.Cleanup(func() {
		h.driver.AssertExpectations(t)
		h.recorder.AssertExpectations(t)
	})
	return h
}

// start runs the executor in the background.
func (h *harness) start(ctx context.Context) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() { ch <- h.exec.Run(ctx, h.meeting) }()
	return ch
}

func wait(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case out := <-ch:
		return out
	case <-time.After(5 * time.Second):
		t.Fatal("executor did not finish")
		return Outcome{}
	}
}

func (h *harness) stored(t *testing.T) model.Meeting {
	t.Helper()
	m, err := h.store.Get(context.Background(), h.meeting.ID)
	require.NoError(t, err)
	return m
}

func (h *harness) healthyWorkspace() *mockWorkspace {
	ws := &mockWorkspace{}
	ws.On("Authenticate", mock.Anything, mock.Anything).Return(nil).Once()
	ws.On("Join", mock.Anything, h.meeting.URL).Return(nil).Once()
	ws.On("Close", mock.Anything).Return(nil).Once()
	return ws
}

func TestInvalidMeetingFailsWithoutCollaborators(t *testing.T) {
	h := newHarness(t, nil)
	h.meeting.EndTime = h.meeting.StartTime

	out := h.exec.Run(context.Background(), h.meeting)

	assert.Equal(t, model.StateFailed, out.State)
	assert.Equal(t, model.RInvalidMeeting, out.Reason)
	assert.ErrorIs(t, out.Err, lifecycle.ErrInvalidMeeting)
	assert.Empty(t, cmp.Diff([]model.SessionState{model.StateInit, model.StateFailed}, out.Path))
	h.driver.AssertNotCalled(t, "Open", mock.Anything)
	h.recorder.AssertNotCalled(t, "Start", mock.Anything, mock.Anything, mock.Anything)

	m := h.stored(t)
	assert.Equal(t, model.StatusCancelled, m.Status)
	assert.Contains(t, m.ErrorMessage, "R_INVALID_MEETING")
	assert.Contains(t, m.ErrorMessage, "is not after start time")
	assert.Equal(t, []model.Status{model.StatusCancelled}, h.store.History("m1"))
}

func TestSuccessfulSession(t *testing.T) {
	h := newHarness(t, nil)
	ws := h.healthyWorkspace()
	rec := newMockRecording("rec-m1.webm")
	rec.On("Stop", mock.Anything).Return("rec-m1.webm", nil).Once()
	h.driver.On("Open", mock.Anything).Return(ws, nil).Once()
	h.recorder.On("Start", mock.Anything, ws.Handle(), "m1").Return(rec, nil).Once()

	done := h.start(context.Background())
	// timeout guard + recording wait
	require.True(t, h.clk.WaitForTimers(2, 5*time.Second))
	h.clk.Advance(time.Minute)
	out := wait(t, done)

	require.NoError(t, out.Err)
	assert.Equal(t, model.StateCompleted, out.State)
	assert.Equal(t, model.RNone, out.Reason)
	assert.Equal(t, "rec-m1.webm", out.RecordingRef)
	assert.Empty(t, cmp.Diff([]model.SessionState{
		model.StateInit, model.StateAuthenticating, model.StateJoining,
		model.StateRecording, model.StateFinalizing, model.StateCompleted,
	}, out.Path))

	m := h.stored(t)
	assert.Equal(t, model.StatusCompleted, m.Status)
	assert.Equal(t, "rec-m1.webm", m.RecordingRef)
	assert.Equal(t, []model.Status{model.StatusOngoing, model.StatusCompleted}, h.store.History("m1"))
	ws.AssertExpectations(t)
	rec.AssertExpectations(t)
	assert.Equal(t, 0, h.clk.Pending(), "no timers left armed")
}

func TestAuthRetriesOnFreshWorkspace(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.AuthBackoff = 5 * time.Second })

	first := &mockWorkspace{}
	first.On("Authenticate", mock.Anything, mock.Anything).Return(errors.New("captcha")).Once()
	first.On("Close", mock.Anything).Return(nil).Once()
	second := &mockWorkspace{}
	second.On("Authenticate", mock.Anything, mock.Anything).Return(nil).Once()
	second.On("Join", mock.Anything, mock.Anything).Return(errors.New("lobby closed")).Once()
	second.On("Close", mock.Anything).Return(nil).Once()

	h.driver.On("Open", mock.Anything).Return(first, nil).Once()
	h.driver.On("Open", mock.Anything).Return(second, nil).Once()

	done := h.start(context.Background())
	// timeout guard + auth backoff
	require.True(t, h.clk.WaitForTimers(2, 5*time.Second))
	h.clk.Advance(5 * time.Second)
	out := wait(t, done)

	assert.Equal(t, model.RJoinFailed, out.Reason)
	first.AssertExpectations(t)
	second.AssertExpectations(t)
}

func TestAuthExhaustion(t *testing.T) {
	h := newHarness(t, nil)
	for i := 0; i < 2; i++ {
		ws := &mockWorkspace{}
		ws.On("Authenticate", mock.Anything, mock.Anything).Return(errors.New("wrong password")).Once()
		ws.On("Close", mock.Anything).Return(nil).Once()
		h.driver.On("Open", mock.Anything).Return(ws, nil).Once()
	}

	out := h.exec.Run(context.Background(), h.meeting)

	assert.Equal(t, model.StateFailed, out.State)
	assert.Equal(t, model.RAuthFailed, out.Reason)
	assert.ErrorIs(t, out.Err, lifecycle.ErrAuthentication)
	assert.Contains(t, h.stored(t).ErrorMessage, "after 2 attempts")
	assert.Contains(t, h.stored(t).ErrorMessage, "wrong password")
	h.recorder.AssertNotCalled(t, "Start", mock.Anything, mock.Anything, mock.Anything)
}

func TestDriverOpenFailureCountsAsAuthAttempt(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.AuthAttempts = 1 })
	h.driver.On("Open", mock.Anything).Return(nil, errors.New("chrome not found")).Once()

	out := h.exec.Run(context.Background(), h.meeting)
	assert.Equal(t, model.RAuthFailed, out.Reason)
	assert.Contains(t, out.Err.Error(), "chrome not found")
}

func TestJoinFailure(t *testing.T) {
	h := newHarness(t, nil)
	ws := &mockWorkspace{}
	ws.On("Authenticate", mock.Anything, mock.Anything).Return(nil).Once()
	ws.On("Join", mock.Anything, mock.Anything).Return(errors.New("host denied entry")).Once()
	ws.On("Close", mock.Anything).Return(nil).Once()
	h.driver.On("Open", mock.Anything).Return(ws, nil).Once()

	out := h.exec.Run(context.Background(), h.meeting)

	assert.Equal(t, model.StateFailed, out.State)
	assert.Equal(t, model.RJoinFailed, out.Reason)
	m := h.stored(t)
	assert.Equal(t, model.StatusCancelled, m.Status)
	assert.Contains(t, m.ErrorMessage, "host denied entry")
	h.recorder.AssertNotCalled(t, "Start", mock.Anything, mock.Anything, mock.Anything)
	ws.AssertExpectations(t)
}

func TestRecorderFailureEndsWaitEarly(t *testing.T) {
	h := newHarness(t, nil)
	ws := h.healthyWorkspace()
	rec := newMockRecording("meeting-m1.webm")
	rec.On("Stop", mock.Anything).Return("", errors.New("already exited")).Once()
	h.driver.On("Open", mock.Anything).Return(ws, nil).Once()
	h.recorder.On("Start", mock.Anything, mock.Anything, "m1").Return(rec, nil).Once()

	done := h.start(context.Background())
	require.True(t, h.clk.WaitForTimers(2, 5*time.Second))
	rec.failed <- errors.New("pulse: connection refused")
	out := wait(t, done)

	assert.Equal(t, model.RRecordingFailed, out.Reason)
	assert.Contains(t, h.stored(t).ErrorMessage, "pulse: connection refused")
	assert.NotContains(t, h.stored(t).ErrorMessage, "already exited", "release failure must not replace the cause")
	ws.AssertExpectations(t)
	rec.AssertExpectations(t)
}

func TestRecorderStartFailure(t *testing.T) {
	h := newHarness(t, nil)
	ws := h.healthyWorkspace()
	h.driver.On("Open", mock.Anything).Return(ws, nil).Once()
	h.recorder.On("Start", mock.Anything, mock.Anything, "m1").Return(nil, errors.New("ffmpeg missing")).Once()

	out := h.exec.Run(context.Background(), h.meeting)
	assert.Equal(t, model.RRecordingFailed, out.Reason)
	ws.AssertExpectations(t)
}

func TestCancelDuringRecording(t *testing.T) {
	h := newHarness(t, nil)
	ws := h.healthyWorkspace()
	rec := newMockRecording("rec-m1.webm")
	rec.On("Stop", mock.Anything).Return("rec-m1.webm", nil).Once()
	h.driver.On("Open", mock.Anything).Return(ws, nil).Once()
	h.recorder.On("Start", mock.Anything, mock.Anything, "m1").Return(rec, nil).Once()

	ctx, cancel := context.WithCancelCause(context.Background())
	done := h.start(ctx)
	require.True(t, h.clk.WaitForTimers(2, 5*time.Second))
	cancel(lifecycle.NewReasonError(model.RCancelled, "meeting removed from store", nil))
	out := wait(t, done)

	assert.Equal(t, model.StateFailed, out.State)
	assert.Equal(t, model.RCancelled, out.Reason)
	assert.ErrorIs(t, out.Err, lifecycle.ErrCancelled)
	assert.Empty(t, out.RecordingRef)

	m := h.stored(t)
	assert.Equal(t, model.StatusCancelled, m.Status, "terminal write survives cancellation")
	assert.Contains(t, m.ErrorMessage, "meeting removed from store")
	ws.AssertNumberOfCalls(t, "Close", 1)
	rec.AssertNumberOfCalls(t, "Stop", 1)
}

func TestCancelBeforeStartSkipsCollaborators(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := h.exec.Run(ctx, h.meeting)
	assert.Equal(t, model.RCancelled, out.Reason)
	assert.Empty(t, cmp.Diff([]model.SessionState{model.StateInit, model.StateFinalizing, model.StateFailed}, out.Path))
	h.driver.AssertNotCalled(t, "Open", mock.Anything)
	assert.Equal(t, model.StatusCancelled, h.stored(t).Status)
}

func TestTimeoutGuard(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.TimeoutMargin = time.Minute })
	ws := &mockWorkspace{}
	ws.On("Authenticate", mock.Anything, mock.Anything).Return(nil).Once()
	joining := make(chan struct{})
	ws.On("Join", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		close(joining)
		<-args.Get(0).(context.Context).Done()
	}).Return(context.Canceled).Once()
	ws.On("Close", mock.Anything).Return(nil).Once()
	h.driver.On("Open", mock.Anything).Return(ws, nil).Once()

	done := h.start(context.Background())
	<-joining
	h.clk.Advance(2 * time.Minute)
	out := wait(t, done)

	assert.Equal(t, model.RExecutorTimeout, out.Reason)
	assert.ErrorIs(t, out.Err, lifecycle.ErrExecutorTimeout)
	assert.Contains(t, h.stored(t).ErrorMessage, "R_EXECUTOR_TIMEOUT")
	ws.AssertExpectations(t)
}

func TestPanicIsContained(t *testing.T) {
	h := newHarness(t, nil)
	ws := &mockWorkspace{}
	ws.On("Authenticate", mock.Anything, mock.Anything).Return(nil).Once()
	ws.On("Join", mock.Anything, mock.Anything).Panic("selector engine crashed").Once()
	ws.On("Close", mock.Anything).Return(nil).Once()
	h.driver.On("Open", mock.Anything).Return(ws, nil).Once()

	out := h.exec.Run(context.Background(), h.meeting)

	assert.Equal(t, model.RInternal, out.Reason)
	assert.Contains(t, out.Err.Error(), "selector engine crashed")
	assert.Equal(t, model.StatusCancelled, h.stored(t).Status)
	ws.AssertExpectations(t)
}

func TestStopFailureOnSuccessPathFailsSession(t *testing.T) {
	h := newHarness(t, nil)
	ws := h.healthyWorkspace()
	rec := newMockRecording("meeting-m1.webm")
	rec.On("Stop", mock.Anything).Return("", errors.New("recording is empty")).Once()
	h.driver.On("Open", mock.Anything).Return(ws, nil).Once()
	h.recorder.On("Start", mock.Anything, mock.Anything, "m1").Return(rec, nil).Once()

	done := h.start(context.Background())
	require.True(t, h.clk.WaitForTimers(2, 5*time.Second))
	h.clk.Advance(time.Minute)
	out := wait(t, done)

	assert.Equal(t, model.StateFailed, out.State)
	assert.Equal(t, model.RRecordingFailed, out.Reason)
	ws.AssertExpectations(t)
}

func TestWorkspaceCloseFailureIsLoggedOnly(t *testing.T) {
	h := newHarness(t, nil)
	ws := &mockWorkspace{}
	ws.On("Authenticate", mock.Anything, mock.Anything).Return(nil).Once()
	ws.On("Join", mock.Anything, mock.Anything).Return(errors.New("no join button")).Once()
	ws.On("Close", mock.Anything).Return(errors.New("kill failed")).Once()
	h.driver.On("Open", mock.Anything).Return(ws, nil).Once()

	out := h.exec.Run(context.Background(), h.meeting)
	assert.Equal(t, model.RJoinFailed, out.Reason)
	assert.NotContains(t, out.Err.Error(), "kill failed")
}

// flakyStore fails the first n status writes.
type flakyStore struct {
	*store.MemoryStore
	failures atomic.Int32
}

func (f *flakyStore) UpdateStatus(ctx context.Context, id string, status model.Status, upd model.StatusUpdate) error {
	if status != model.StatusOngoing && f.failures.Add(-1) >= 0 {
		return errors.New("connection reset")
	}
	return f.MemoryStore.UpdateStatus(ctx, id, status, upd)
}

func TestTerminalStatusWriteRetries(t *testing.T) {
	h := newHarness(t, nil)
	fs := &flakyStore{MemoryStore: h.store}
	fs.failures.Store(2)
	h.exec.store = fs
	h.meeting.URL = ""

	out := h.exec.Run(context.Background(), h.meeting)
	assert.Equal(t, model.RInvalidMeeting, out.Reason)
	assert.Equal(t, []model.Status{model.StatusCancelled}, h.store.History("m1"))
}

func TestTerminalStatusWriteGivesUp(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.StatusWriteAttempts = 2 })
	fs := &flakyStore{MemoryStore: h.store}
	fs.failures.Store(5)
	h.exec.store = fs
	h.meeting.URL = ""

	out := h.exec.Run(context.Background(), h.meeting)
	assert.Equal(t, model.RInvalidMeeting, out.Reason)
	assert.Empty(t, h.store.History("m1"))
	assert.Equal(t, int32(3), fs.failures.Load())
}

func TestRunRecordsSpan(t *testing.T) {
	spans := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spans))

	h := newHarness(t, nil)
	h.meeting.URL = ""
	exec := New(DefaultConfig(), h.store, h.driver, h.recorder, WithClock(h.clk), WithTracer(tp.Tracer("test")))
	out := exec.Run(context.Background(), h.meeting)
	require.Equal(t, model.StateFailed, out.State)

	ended := spans.GetSpans()
	require.Len(t, ended, 1)
	assert.Equal(t, "executor.run", ended[0].Name)
	assert.Equal(t, codes.Error, ended[0].Status.Code)
	attrs := map[string]string{}
	for _, kv := range ended[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "m1", attrs["meeting.id"])
	assert.Equal(t, string(model.StateFailed), attrs["session.state"])
	assert.Equal(t, string(model.RInvalidMeeting), attrs["session.reason"])
}

// panicStore panics on writes of the listed statuses.
type panicStore struct {
	*store.MemoryStore
	on map[model.Status]bool
}

func (p *panicStore) UpdateStatus(ctx context.Context, id string, status model.Status, upd model.StatusUpdate) error {
	if p.on[status] {
		panic("store driver bug")
	}
	return p.MemoryStore.UpdateStatus(ctx, id, status, upd)
}

func TestPanickingTerminalWriteIsContained(t *testing.T) {
	h := newHarness(t, nil)
	h.exec.store = &panicStore{MemoryStore: h.store, on: map[model.Status]bool{model.StatusCancelled: true}}
	h.meeting.EndTime = h.meeting.StartTime

	var out Outcome
	require.NotPanics(t, func() { out = h.exec.Run(context.Background(), h.meeting) })
	assert.Equal(t, model.StateFailed, out.State)
	assert.Equal(t, model.RInvalidMeeting, out.Reason)
	assert.Empty(t, h.store.History("m1"))
}

func TestPanickingOngoingWriteIsContained(t *testing.T) {
	h := newHarness(t, nil)
	h.exec.store = &panicStore{MemoryStore: h.store, on: map[model.Status]bool{model.StatusOngoing: true}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out Outcome
	require.NotPanics(t, func() { out = h.exec.Run(ctx, h.meeting) })
	assert.Equal(t, model.StateFailed, out.State)
	assert.Equal(t, model.RCancelled, out.Reason)
	assert.Equal(t, []model.Status{model.StatusCancelled}, h.store.History("m1"))
}
