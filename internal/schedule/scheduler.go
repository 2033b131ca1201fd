// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

// Package schedule arms one timer per pending meeting and runs the session
// executor when it fires. At most one job exists per meeting id.
package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/maccrin/meetbot/internal/clock"
	"github.com/maccrin/meetbot/internal/domain/meeting/lifecycle"
	"github.com/maccrin/meetbot/internal/domain/meeting/model"
	"github.com/maccrin/meetbot/internal/executor"
	"github.com/maccrin/meetbot/internal/lease"
	xlog "github.com/maccrin/meetbot/internal/log"
	"github.com/maccrin/meetbot/internal/metrics"
)

// ErrClosed is the cancellation cause of jobs force-cancelled on shutdown.
var ErrClosed = errors.New("scheduler closed")

// Runner executes one session. *executor.Executor implements it.
type Runner interface {
	Run(ctx context.Context, m model.Meeting) executor.Outcome
}

type Scheduler struct {
	reg    *Registry
	runner Runner
	clock  clock.Clock
	logger zerolog.Logger

	locker     lease.Locker
	renewEvery time.Duration

	// root parents every run so shutdown can force-cancel all of them.
	root       context.Context
	cancelRoot context.CancelCauseFunc
}

type Option func(*Scheduler)

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithRegistry(r *Registry) Option {
	return func(s *Scheduler) { s.reg = r }
}

// WithLocker makes every job claim its meeting lease before running and
// renew it every renewEvery while the executor runs.
func WithLocker(l lease.Locker, renewEvery time.Duration) Option {
	return func(s *Scheduler) {
		s.locker = l
		s.renewEvery = renewEvery
	}
}

func New(runner Runner, opts ...Option) *Scheduler {
	root, cancel := context.WithCancelCause(context.Background())
	s := &Scheduler{
		reg:        NewRegistry(),
		runner:     runner,
		clock:      clock.Real{},
		logger:     xlog.WithComponent("scheduler"),
		renewEvery: 10 * time.Second,
		root:       root,
		cancelRoot: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Registry() *Registry { return s.reg }

// Schedule arms a job for m. An existing job for the id is returned
// unchanged. A meeting whose start is not strictly in the future, or a
// scheduler that is shutting down, yields nil.
func (s *Scheduler) Schedule(m model.Meeting) *Job {
	r := s.reg
	r.mu.Lock()
	defer r.mu.Unlock()
	return s.scheduleLocked(m)
}

// scheduleLocked is Schedule with r.mu held.
func (s *Scheduler) scheduleLocked(m model.Meeting) *Job {
	r := s.reg
	if j, ok := r.jobs[m.ID]; ok {
		return j
	}
	if r.closing {
		return nil
	}
	now := s.clock.Now()
	if !m.StartTime.After(now) {
		metrics.IncJobsSkipped("stale")
		s.logger.Info().
			Str(xlog.FieldEvent, "scheduler.skipped_stale").
			Str(xlog.FieldMeetingID, m.ID).
			Time("start_time", m.StartTime).
			Msg("meeting start already elapsed")
		return nil
	}

	j := newJob(m, now)
	delay := m.StartTime.Sub(now)
	j.timer = s.clock.AfterFunc(delay, func() { s.fire(j) })
	r.jobs[m.ID] = j
	r.publish()

	metrics.IncJobsScheduled()
	s.logger.Info().
		Str(xlog.FieldEvent, "scheduler.armed").
		Str(xlog.FieldMeetingID, m.ID).
		Dur("delay", delay).
		Msg("job armed")
	return j
}

// fire moves an armed job to running and starts its executor.
func (s *Scheduler) fire(j *Job) {
	r := s.reg
	r.mu.Lock()
	if r.jobs[j.meeting.ID] != j || j.state != model.JobArmed || r.closing {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancelCause(s.root)
	j.state = model.JobRunning
	j.cancel = cancel
	r.wg.Add(1)
	r.publish()
	r.mu.Unlock()

	s.logger.Info().
		Str(xlog.FieldEvent, "scheduler.fired").
		Str(xlog.FieldMeetingID, j.meeting.ID).
		Msg("job started")
	go s.run(ctx, j)
}

func (s *Scheduler) run(ctx context.Context, j *Job) {
	r := s.reg
	defer func() {
		j.cancel(nil)
		r.mu.Lock()
		if r.jobs[j.meeting.ID] == j {
			delete(r.jobs, j.meeting.ID)
		}
		r.publish()
		r.mu.Unlock()
		close(j.done)
		r.wg.Done()
	}()

	if s.locker == nil {
		j.outcome = s.runner.Run(ctx, j.meeting)
		return
	}

	l, ok, err := s.locker.TryAcquire(ctx, j.meeting.ID)
	switch {
	case err != nil:
		// Fail open: a duplicate recording beats a missed meeting.
		s.logger.Warn().Err(err).
			Str(xlog.FieldEvent, "scheduler.lease_error").
			Str(xlog.FieldMeetingID, j.meeting.ID).
			Msg("lease unavailable, running without claim")
		j.outcome = s.runner.Run(ctx, j.meeting)
		return
	case !ok:
		metrics.IncJobsSkipped("lease_held")
		s.logger.Info().
			Str(xlog.FieldEvent, "scheduler.lease_held").
			Str(xlog.FieldMeetingID, j.meeting.ID).
			Msg("meeting claimed by another instance")
		return
	}

	runCtx, stopRenew := context.WithCancel(ctx)
	renewDone := make(chan struct{})
	go func() {
		defer close(renewDone)
		if err := lease.KeepAlive(runCtx, l, s.renewEvery); err != nil {
			s.logger.Error().Err(err).
				Str(xlog.FieldEvent, "scheduler.lease_lost").
				Str(xlog.FieldMeetingID, j.meeting.ID).
				Msg("meeting lease lost, cancelling session")
			j.cancel(lifecycle.NewReasonError(model.RCancelled, "meeting lease lost", err))
		}
	}()

	j.outcome = s.runner.Run(runCtx, j.meeting)

	stopRenew()
	<-renewDone
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := l.Release(rctx); err != nil {
		s.logger.Warn().Err(err).
			Str(xlog.FieldEvent, "scheduler.lease_release_failed").
			Str(xlog.FieldMeetingID, j.meeting.ID).
			Msg("failed to release meeting lease")
	}
}

// Cancel removes an armed job immediately, or delivers a cancellation cause
// to a running one; the running job leaves the registry when its executor
// returns. It reports whether a job existed.
func (s *Scheduler) Cancel(meetingID string) bool {
	return s.cancel(meetingID, "meeting no longer pending")
}

func (s *Scheduler) cancel(meetingID, detail string) bool {
	r := s.reg
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[meetingID]
	if !ok {
		return false
	}
	state := j.state
	if state == model.JobArmed {
		s.disarmLocked(j)
	} else {
		j.cancel(lifecycle.NewReasonError(model.RCancelled, detail, nil))
	}
	s.logCancelled(meetingID, state)
	return true
}

// CancelArmed disarms the job for meetingID only if its timer has not fired
// yet; the state check and the disarm happen under one lock, so a job that
// starts concurrently is never cancelled. It reports whether a job was
// disarmed.
func (s *Scheduler) CancelArmed(meetingID string) bool {
	r := s.reg
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[meetingID]
	if !ok || j.state != model.JobArmed {
		return false
	}
	s.disarmLocked(j)
	s.logCancelled(meetingID, model.JobArmed)
	return true
}

// Reschedule replaces an armed job whose meeting changed. Running jobs are
// left alone and nil is returned for them.
func (s *Scheduler) Reschedule(m model.Meeting) *Job {
	r := s.reg
	r.mu.Lock()
	defer r.mu.Unlock()

	if j, ok := r.jobs[m.ID]; ok {
		if j.state != model.JobArmed {
			return nil
		}
		s.disarmLocked(j)
		s.logCancelled(m.ID, model.JobArmed)
	}
	return s.scheduleLocked(m)
}

// disarmLocked stops an armed job's timer and removes it. r.mu must be held.
func (s *Scheduler) disarmLocked(j *Job) {
	r := s.reg
	j.timer.Stop()
	delete(r.jobs, j.meeting.ID)
	close(j.done)
	r.publish()
}

func (s *Scheduler) logCancelled(meetingID string, state model.JobState) {
	metrics.IncJobsCancelled(string(state))
	s.logger.Info().
		Str(xlog.FieldEvent, "scheduler.cancelled").
		Str(xlog.FieldMeetingID, meetingID).
		Str(xlog.FieldJobState, string(state)).
		Msg("job cancelled")
}

// Drain stops accepting jobs, disarms every armed job and waits for running
// executors until ctx ends.
func (s *Scheduler) Drain(ctx context.Context) error {
	disarmed, running := s.stopAccepting()
	s.logger.Info().
		Str(xlog.FieldEvent, "scheduler.draining").
		Int("disarmed", disarmed).
		Int("running", running).
		Msg("draining jobs")
	return s.reg.wait(ctx)
}

// Abort force-cancels every running job with ErrClosed as cause and waits
// until ctx ends for them to finalize.
func (s *Scheduler) Abort(ctx context.Context) error {
	_, running := s.stopAccepting()
	s.cancelRoot(lifecycle.NewReasonError(model.RCancelled, "shutting down", ErrClosed))
	s.logger.Warn().
		Str(xlog.FieldEvent, "scheduler.aborted").
		Int("running", running).
		Msg("force-cancelled running jobs")
	return s.reg.wait(ctx)
}

func (s *Scheduler) stopAccepting() (disarmed, running int) {
	r := s.reg
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closing = true
	for id, j := range r.jobs {
		if j.state != model.JobArmed {
			continue
		}
		j.timer.Stop()
		delete(r.jobs, id)
		close(j.done)
		disarmed++
	}
	r.publish()
	return disarmed, len(r.jobs)
}

// Snapshot lists the live jobs ordered by start time.
func (s *Scheduler) Snapshot() []JobInfo { return s.reg.Snapshot() }
