// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

// Package executor drives one meeting through its session state machine:
// authenticate, join, record for the meeting's duration, then finalize.
// Every exit path releases the workspace and recording and writes a
// terminal status to the meeting store.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/maccrin/meetbot/internal/clock"
	"github.com/maccrin/meetbot/internal/domain/meeting/lifecycle"
	"github.com/maccrin/meetbot/internal/domain/meeting/model"
	"github.com/maccrin/meetbot/internal/domain/meeting/ports"
	xlog "github.com/maccrin/meetbot/internal/log"
	"github.com/maccrin/meetbot/internal/metrics"
	"github.com/maccrin/meetbot/internal/telemetry"
)

// Config bounds retries and timeouts of a session.
type Config struct {
	AuthAttempts  int
	AuthBackoff   time.Duration
	TimeoutMargin time.Duration

	StatusWriteAttempts int
	StatusWriteBackoff  time.Duration
	// ReleaseTimeout bounds each release step and each status write.
	ReleaseTimeout time.Duration

	// LaunchRate is workspace opens per second; 0 disables the throttle.
	LaunchRate  float64
	LaunchBurst int

	Credentials ports.Credentials
}

// DefaultConfig mirrors the configuration defaults.
func DefaultConfig() Config {
	return Config{
		AuthAttempts:        2,
		AuthBackoff:         5 * time.Second,
		TimeoutMargin:       5 * time.Minute,
		StatusWriteAttempts: 3,
		StatusWriteBackoff:  2 * time.Second,
		ReleaseTimeout:      30 * time.Second,
		LaunchRate:          1,
		LaunchBurst:         2,
	}
}

// Outcome is the result of one executor run.
type Outcome struct {
	MeetingID    string
	RunID        string
	State        model.SessionState
	Reason       model.ReasonCode
	Err          error
	RecordingRef string
	// Path lists every state the session entered, INIT first.
	Path []model.SessionState
}

// Executor runs sessions. It is safe for concurrent use; each Run owns its
// own workspace and recording.
type Executor struct {
	cfg      Config
	store    ports.MeetingStore
	driver   ports.Driver
	recorder ports.Recorder
	clock    clock.Clock
	launches *rate.Limiter
	tracer   trace.Tracer
	logger   zerolog.Logger
}

type Option func(*Executor)

func WithClock(c clock.Clock) Option {
	return func(e *Executor) { e.clock = c }
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) { e.tracer = t }
}

// New creates an executor around its collaborators.
func New(cfg Config, store ports.MeetingStore, driver ports.Driver, recorder ports.Recorder, opts ...Option) *Executor {
	if cfg.AuthAttempts < 1 {
		cfg.AuthAttempts = 1
	}
	if cfg.StatusWriteAttempts < 1 {
		cfg.StatusWriteAttempts = 1
	}
	if cfg.ReleaseTimeout <= 0 {
		cfg.ReleaseTimeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.LaunchRate > 0 {
		limit = rate.Limit(cfg.LaunchRate)
	}
	burst := cfg.LaunchBurst
	if burst < 1 {
		burst = 1
	}

	e := &Executor{
		cfg:      cfg,
		store:    store,
		driver:   driver,
		recorder: recorder,
		clock:    clock.Real{},
		launches: rate.NewLimiter(limit, burst),
		tracer:   telemetry.Tracer("meetbot/executor"),
		logger:   xlog.WithComponent("executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the full session for m and never returns an error: every
// failure ends up in the Outcome and in the meeting's stored status.
func (e *Executor) Run(ctx context.Context, m model.Meeting) Outcome {
	runID := uuid.NewString()
	ctx = xlog.ContextWithMeetingID(ctx, m.ID)
	ctx = xlog.ContextWithRunID(ctx, runID)
	ctx, span := e.tracer.Start(ctx, "executor.run", trace.WithAttributes(telemetry.MeetingAttributes(m.ID, m.Duration())...))
	defer span.End()

	s := &session{
		exec:    e,
		meeting: m,
		runID:   runID,
		state:   model.StateInit,
		path:    []model.SessionState{model.StateInit},
		started: e.clock.Now(),
		logger:  xlog.WithContext(ctx, e.logger),
	}
	s.logger.Info().Str(xlog.FieldEvent, "executor.started").
		Time("start_time", m.StartTime).Time("end_time", m.EndTime).
		Msg("session started")

	out := s.run(ctx)

	elapsed := e.clock.Now().Sub(s.started)
	telemetry.EmitSessionOutcome(ctx, string(out.State), string(out.Reason), out.RecordingRef, elapsed)
	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, string(out.Reason))
	}
	metrics.RecordSessionOutcome(string(out.State), string(out.Reason), elapsed.Seconds())

	ev := s.logger.Info()
	if out.Err != nil {
		ev = s.logger.Warn().Err(out.Err)
	}
	ev.Str(xlog.FieldEvent, "executor.finished").
		Str(xlog.FieldNewState, string(out.State)).
		Str(xlog.FieldReason, string(out.Reason)).
		Str(xlog.FieldRecordingRef, out.RecordingRef).
		Msg("session finished")
	return out
}

// interruption converts a done context into the session error it stands for.
func interruption(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	cause := context.Cause(ctx)
	var rerr *lifecycle.ReasonError
	if errors.As(cause, &rerr) {
		return cause
	}
	if errors.Is(cause, context.DeadlineExceeded) {
		return lifecycle.NewReasonError(model.RExecutorTimeout, "executor deadline exceeded", cause)
	}
	return lifecycle.NewReasonError(model.RCancelled, "session cancelled", cause)
}

// sleep waits d on the executor clock or until ctx ends.
func (e *Executor) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return interruption(ctx)
	}
	t := e.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return interruption(ctx)
	case <-t.C():
		return nil
	}
}

func panicError(r any) error {
	return lifecycle.NewReasonError(model.RInternal, fmt.Sprintf("panic: %v", r), nil)
}
