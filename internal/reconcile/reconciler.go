// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

// Package reconcile polls the meeting store and converges the scheduler's
// job set onto the pending meetings it finds.
package reconcile

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/maccrin/meetbot/internal/clock"
	"github.com/maccrin/meetbot/internal/domain/meeting/lifecycle"
	"github.com/maccrin/meetbot/internal/domain/meeting/model"
	"github.com/maccrin/meetbot/internal/domain/meeting/ports"
	xlog "github.com/maccrin/meetbot/internal/log"
	"github.com/maccrin/meetbot/internal/metrics"
	"github.com/maccrin/meetbot/internal/resilience"
	"github.com/maccrin/meetbot/internal/schedule"
)

// ErrTickInProgress is returned by Tick while another tick runs.
var ErrTickInProgress = errors.New("reconcile tick already in progress")

// Scheduler is the job set the reconciler drives.
type Scheduler interface {
	Schedule(m model.Meeting) *schedule.Job
	Reschedule(m model.Meeting) *schedule.Job
	CancelArmed(meetingID string) bool
	Snapshot() []schedule.JobInfo
}

type Config struct {
	Interval time.Duration
	// Grace widens the pending query into the past so meetings that just
	// started are still seen.
	Grace        time.Duration
	QueryTimeout time.Duration
}

// TickReport summarizes one tick.
type TickReport struct {
	Fetched     int           `json:"fetched"`
	Scheduled   int           `json:"scheduled"`
	Stale       int           `json:"stale"`
	Rescheduled int           `json:"rescheduled"`
	Cancelled   int           `json:"cancelled"`
	Tracked     int           `json:"tracked"`
	Duration    time.Duration `json:"duration"`
}

type Reconciler struct {
	cfg     Config
	store   ports.MeetingStore
	sched   Scheduler
	breaker *resilience.CircuitBreaker
	clock   clock.Clock
	logger  zerolog.Logger

	ticking  atomic.Bool
	interval atomic.Int64
	reset    chan struct{}
}

type Option func(*Reconciler)

func WithClock(c clock.Clock) Option {
	return func(r *Reconciler) { r.clock = c }
}

// WithBreaker pauses store polling after consecutive query failures.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(r *Reconciler) { r.breaker = cb }
}

func New(cfg Config, store ports.MeetingStore, sched Scheduler, opts ...Option) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 30 * time.Second
	}
	r := &Reconciler{
		cfg:    cfg,
		store:  store,
		sched:  sched,
		clock:  clock.Real{},
		logger: xlog.WithComponent("reconciler"),
		reset:  make(chan struct{}, 1),
	}
	r.interval.Store(int64(cfg.Interval))
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetInterval changes the tick period; a running loop re-arms immediately.
func (r *Reconciler) SetInterval(d time.Duration) {
	if d <= 0 || time.Duration(r.interval.Swap(int64(d))) == d {
		return
	}
	r.logger.Info().Str(xlog.FieldEvent, "reconcile.interval_changed").Dur("interval", d).Msg("reconcile interval changed")
	select {
	case r.reset <- struct{}{}:
	default:
	}
}

func (r *Reconciler) Interval() time.Duration { return time.Duration(r.interval.Load()) }

// Run ticks immediately and then every interval until ctx ends. Tick errors
// are logged and never stop the loop.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info().Str(xlog.FieldEvent, "reconcile.started").Dur("interval", r.Interval()).Msg("reconciler started")
	for {
		_, _ = r.Tick(ctx)

		t := r.clock.NewTimer(r.Interval())
		select {
		case <-ctx.Done():
			t.Stop()
			r.logger.Info().Str(xlog.FieldEvent, "reconcile.stopped").Msg("reconciler stopped")
			return nil
		case <-r.reset:
			t.Stop()
		case <-t.C():
		}
	}
}

// Tick runs one reconciliation pass. Concurrent calls return
// ErrTickInProgress without doing work; a store failure is returned as an
// R_STORE_QUERY reason error and leaves the job set untouched.
func (r *Reconciler) Tick(ctx context.Context) (TickReport, error) {
	if !r.ticking.CompareAndSwap(false, true) {
		metrics.RecordReconcileTick("busy", -1)
		return TickReport{}, ErrTickInProgress
	}
	defer r.ticking.Store(false)

	start := r.clock.Now()
	since := start.Add(-r.cfg.Grace)
	var rep TickReport

	pending, err := r.query(ctx, since)
	if err != nil {
		rep.Duration = r.clock.Now().Sub(start)
		metrics.RecordReconcileTick("error", rep.Duration.Seconds())
		qerr := lifecycle.NewReasonError(model.RStoreQuery, "query pending meetings", err)
		ev := r.logger.Error()
		if errors.Is(err, resilience.ErrCircuitOpen) {
			ev = r.logger.Warn().Dur("retry_after", r.breaker.RetryAfter())
		}
		ev.Err(qerr).Str(xlog.FieldEvent, "reconcile.tick_failed").Msg("store query failed, skipping tick")
		return rep, qerr
	}
	rep.Fetched = len(pending)

	fetched := make(map[string]model.Meeting, len(pending))
	for _, m := range pending {
		fetched[m.ID] = m
	}

	tracked := make(map[string]schedule.JobInfo)
	for _, info := range r.sched.Snapshot() {
		tracked[info.MeetingID] = info
		if _, ok := fetched[info.MeetingID]; ok {
			continue
		}
		// Running jobs left the pending set themselves by writing ongoing.
		if info.State == model.JobArmed && r.sched.CancelArmed(info.MeetingID) {
			rep.Cancelled++
		}
	}

	for _, m := range pending {
		if info, ok := tracked[m.ID]; ok {
			if info.State == model.JobArmed && changed(info, m) {
				if r.sched.Reschedule(m) != nil {
					rep.Rescheduled++
				} else {
					rep.Stale++
				}
			}
			continue
		}
		if r.sched.Schedule(m) == nil {
			rep.Stale++
			continue
		}
		rep.Scheduled++
	}

	rep.Tracked = len(r.sched.Snapshot())
	rep.Duration = r.clock.Now().Sub(start)
	metrics.RecordReconcileTick("ok", rep.Duration.Seconds())

	ev := r.logger.Debug()
	if rep.Scheduled+rep.Cancelled+rep.Rescheduled > 0 {
		ev = r.logger.Info()
	}
	ev.Str(xlog.FieldEvent, "reconcile.tick").
		Int("fetched", rep.Fetched).
		Int("scheduled", rep.Scheduled).
		Int("stale", rep.Stale).
		Int("rescheduled", rep.Rescheduled).
		Int("cancelled", rep.Cancelled).
		Int("tracked", rep.Tracked).
		Msg("reconcile tick")
	return rep, nil
}

func (r *Reconciler) query(ctx context.Context, since time.Time) ([]model.Meeting, error) {
	var pending []model.Meeting
	fn := func() error {
		qctx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout)
		defer cancel()
		var err error
		pending, err = r.store.QueryPending(qctx, since)
		return err
	}
	if r.breaker == nil {
		return pending, fn()
	}
	err := r.breaker.Execute(fn)
	return pending, err
}

func changed(info schedule.JobInfo, m model.Meeting) bool {
	return !info.StartTime.Equal(m.StartTime) || !info.EndTime.Equal(m.EndTime) || info.URL != m.URL
}
