// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/maccrin/meetbot/internal/domain/meeting/lifecycle"
	"github.com/maccrin/meetbot/internal/domain/meeting/model"
	"github.com/maccrin/meetbot/internal/domain/meeting/ports"
	xlog "github.com/maccrin/meetbot/internal/log"
	"github.com/maccrin/meetbot/internal/metrics"
)

// session is the state of one Run. It is only touched by the Run goroutine.
type session struct {
	exec    *Executor
	meeting model.Meeting
	runID   string
	state   model.SessionState
	path    []model.SessionState
	started time.Time
	logger  zerolog.Logger

	workspace ports.Workspace
	recording ports.Recording
	ref       string
}

func (s *session) run(ctx context.Context) Outcome {
	e := s.exec

	if err := s.meeting.Validate(); err != nil {
		verr := lifecycle.NewReasonError(model.RInvalidMeeting, err.Error(), nil)
		s.to(ctx, model.StateFailed)
		s.writeTerminal(ctx, verr)
		return s.outcome(verr)
	}

	// The ceiling covers the whole run, not only the recording wait.
	ceiling := s.meeting.Duration() + e.cfg.TimeoutMargin
	runCtx, cancelRun := context.WithCancelCause(ctx)
	defer cancelRun(nil)
	guard := e.clock.AfterFunc(ceiling, func() {
		cancelRun(lifecycle.NewReasonError(model.RExecutorTimeout,
			fmt.Sprintf("session exceeded %s", ceiling), context.DeadlineExceeded))
	})
	defer guard.Stop()

	s.markOngoing(runCtx)

	err := s.drive(runCtx)

	s.to(ctx, model.StateFinalizing)
	if rerr := s.release(ctx, err == nil); err == nil && rerr != nil {
		err = rerr
	}

	if err == nil {
		s.to(ctx, model.StateCompleted)
	} else {
		s.to(ctx, model.StateFailed)
	}
	s.writeTerminal(ctx, err)
	return s.outcome(err)
}

// drive runs AUTHENTICATING through RECORDING. A panic becomes an internal
// error so finalize still runs.
func (s *session) drive(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str(xlog.FieldEvent, "executor.panic").
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("panic in session")
			metrics.RecordInvariantViolation("executor_panic")
			err = panicError(r)
		}
	}()

	steps := []struct {
		state model.SessionState
		fn    func(context.Context) error
	}{
		{model.StateAuthenticating, s.authenticate},
		{model.StateJoining, s.join},
		{model.StateRecording, s.record},
	}
	for _, st := range steps {
		if err := interruption(ctx); err != nil {
			return err
		}
		s.to(ctx, st.state)
		if err := st.fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// authenticate opens a fresh workspace per attempt; failed workspaces are
// closed before the next try.
func (s *session) authenticate(ctx context.Context) error {
	e := s.exec
	var last error
	for attempt := 1; attempt <= e.cfg.AuthAttempts; attempt++ {
		if attempt > 1 {
			if err := e.sleep(ctx, e.cfg.AuthBackoff); err != nil {
				return err
			}
		}
		if err := e.launches.Wait(ctx); err != nil {
			if ierr := interruption(ctx); ierr != nil {
				return ierr
			}
			return lifecycle.NewReasonError(model.RAuthFailed, "launch throttle", err)
		}

		ws, err := e.driver.Open(ctx)
		if err == nil {
			err = ws.Authenticate(ctx, e.cfg.Credentials)
			if err == nil {
				s.workspace = ws
				metrics.IncAuthAttempt("ok")
				s.logger.Info().Int(xlog.FieldAttempt, attempt).Str(xlog.FieldEvent, "executor.authenticated").
					Msg("authenticated")
				return nil
			}
			s.closeWorkspace(ctx, ws)
		}
		if ierr := interruption(ctx); ierr != nil {
			return ierr
		}

		last = err
		metrics.IncAuthAttempt("failed")
		s.logger.Warn().Err(err).
			Int(xlog.FieldAttempt, attempt).
			Int("max_attempts", e.cfg.AuthAttempts).
			Str(xlog.FieldEvent, "executor.auth_failed").
			Msg("authentication attempt failed")
	}
	return lifecycle.NewReasonError(model.RAuthFailed,
		fmt.Sprintf("authentication failed after %d attempts", e.cfg.AuthAttempts), last)
}

func (s *session) join(ctx context.Context) error {
	if err := s.workspace.Join(ctx, s.meeting.URL); err != nil {
		if ierr := interruption(ctx); ierr != nil {
			return ierr
		}
		return lifecycle.NewReasonError(model.RJoinFailed, "join failed", err)
	}
	return nil
}

// record starts the capture and waits out the meeting duration, computed
// once here.
func (s *session) record(ctx context.Context) error {
	e := s.exec
	rec, err := e.recorder.Start(ctx, s.workspace.Handle(), s.meeting.ID)
	if err != nil {
		if ierr := interruption(ctx); ierr != nil {
			return ierr
		}
		return lifecycle.NewReasonError(model.RRecordingFailed, "recording start failed", err)
	}
	s.recording = rec
	s.ref = rec.Ref()

	duration := s.meeting.Duration()
	s.logger.Info().
		Str(xlog.FieldEvent, "executor.recording").
		Str(xlog.FieldRecordingRef, s.ref).
		Dur("duration", duration).
		Msg("recording until meeting end")

	t := e.clock.NewTimer(duration)
	defer t.Stop()
	select {
	case <-t.C():
		return nil
	case ferr := <-rec.Failed():
		return lifecycle.NewReasonError(model.RRecordingFailed, "recording failed", ferr)
	case <-ctx.Done():
		return interruption(ctx)
	}
}

// to records a state change. Illegal edges are logged and counted but still
// applied so finalize always runs.
func (s *session) to(ctx context.Context, next model.SessionState) {
	prev := s.state
	if err := lifecycle.CheckTransition(prev, next); err != nil {
		metrics.RecordInvariantViolation("illegal_transition")
		s.logger.Error().Err(err).Str(xlog.FieldEvent, "executor.illegal_transition").Msg("illegal state transition")
	}
	s.state = next
	s.path = append(s.path, next)
	metrics.RecordTransition(string(prev), string(next))
	trace.SpanFromContext(ctx).AddEvent("state", trace.WithAttributes(
		attribute.String("from", string(prev)),
		attribute.String("to", string(next)),
	))
	s.logger.Info().
		Str(xlog.FieldEvent, "executor.state_transition").
		Str(xlog.FieldOldState, string(prev)).
		Str(xlog.FieldNewState, string(next)).
		Msg("state transition")
}

func (s *session) outcome(err error) Outcome {
	out := Outcome{
		MeetingID: s.meeting.ID,
		RunID:     s.runID,
		State:     s.state,
		Reason:    model.RNone,
		Err:       err,
		Path:      s.path,
	}
	if err != nil {
		out.Reason, _ = lifecycle.ClassifyReason(err)
	} else {
		out.RecordingRef = s.ref
	}
	return out
}

// detached returns a context for cleanup that survives the run's
// cancellation but keeps its values.
func (s *session) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.exec.cfg.ReleaseTimeout)
}

// release stops the recording and closes the workspace independently. On the
// success path a failed stop is returned because no artifact exists.
func (s *session) release(ctx context.Context, success bool) error {
	var stopErr error
	if s.recording != nil {
		rctx, cancel := s.detached(ctx)
		ref, err := s.stopRecording(rctx)
		cancel()
		if err != nil {
			metrics.IncReleaseFailure("recorder")
			s.logger.Error().Err(err).Str(xlog.FieldEvent, "executor.release_failed").Str("resource", "recorder").
				Msg("failed to stop recording")
			stopErr = lifecycle.NewReasonError(model.RRecordingFailed, "recording finalize failed", err)
		} else if ref != "" {
			s.ref = ref
		}
	}
	if s.workspace != nil {
		s.closeWorkspace(ctx, s.workspace)
	}
	if success {
		return stopErr
	}
	return nil
}

func (s *session) stopRecording(ctx context.Context) (ref string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return s.recording.Stop(ctx)
}

func (s *session) closeWorkspace(ctx context.Context, ws ports.Workspace) {
	cctx, cancel := s.detached(ctx)
	defer cancel()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
			}
		}()
		return ws.Close(cctx)
	}()
	if err != nil {
		metrics.IncReleaseFailure("workspace")
		s.logger.Error().Err(err).Str(xlog.FieldEvent, "executor.release_failed").Str("resource", "workspace").
			Msg("failed to close workspace")
	}
}

// updateStatus turns a panicking store into a failed write.
func (s *session) updateStatus(ctx context.Context, status model.Status, upd model.StatusUpdate) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str(xlog.FieldEvent, "executor.panic").
				Str(xlog.FieldStatus, string(status)).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("panic in status write")
			metrics.RecordInvariantViolation("store_panic")
			err = panicError(r)
		}
	}()
	return s.exec.store.UpdateStatus(ctx, s.meeting.ID, status, upd)
}

// markOngoing is best-effort; the terminal write is what matters.
func (s *session) markOngoing(ctx context.Context) {
	wctx, cancel := context.WithTimeout(ctx, s.exec.cfg.ReleaseTimeout)
	defer cancel()
	if err := s.updateStatus(wctx, model.StatusOngoing, model.StatusUpdate{}); err != nil {
		metrics.IncStatusWrite(string(model.StatusOngoing), "error")
		s.logger.Warn().Err(err).Str(xlog.FieldEvent, "executor.status_write_failed").
			Str(xlog.FieldStatus, string(model.StatusOngoing)).
			Msg("failed to mark meeting ongoing")
		return
	}
	metrics.IncStatusWrite(string(model.StatusOngoing), "ok")
}

// writeTerminal persists completed or cancelled, retrying on a context that
// ignores the run's cancellation.
func (s *session) writeTerminal(ctx context.Context, runErr error) {
	e := s.exec
	status := model.StatusCompleted
	upd := model.StatusUpdate{RecordingRef: s.ref}
	if runErr != nil {
		status = model.StatusCancelled
		upd = model.StatusUpdate{ErrorMessage: lifecycle.Message(runErr)}
	}

	base := context.WithoutCancel(ctx)
	var err error
	for attempt := 1; attempt <= e.cfg.StatusWriteAttempts; attempt++ {
		if attempt > 1 {
			_ = e.sleep(base, e.cfg.StatusWriteBackoff)
		}
		wctx, cancel := context.WithTimeout(base, e.cfg.ReleaseTimeout)
		err = s.updateStatus(wctx, status, upd)
		cancel()
		if err == nil || errors.Is(err, ports.ErrMeetingNotFound) {
			break
		}
		s.logger.Warn().Err(err).Int(xlog.FieldAttempt, attempt).
			Str(xlog.FieldEvent, "executor.status_write_retry").
			Str(xlog.FieldStatus, string(status)).
			Msg("terminal status write failed")
	}
	if err != nil {
		metrics.IncStatusWrite(string(status), "error")
		s.logger.Error().Err(err).Str(xlog.FieldEvent, "executor.status_write_failed").
			Str(xlog.FieldStatus, string(status)).
			Msg("giving up on terminal status write")
		return
	}
	metrics.IncStatusWrite(string(status), "ok")
	s.logger.Info().Str(xlog.FieldEvent, "executor.status_written").
		Str(xlog.FieldStatus, string(status)).
		Str(xlog.FieldRecordingRef, upd.RecordingRef).
		Msg("terminal status written")
}
