// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

// Package metrics provides Prometheus metrics for the meeting orchestrator.
// Labels never carry meeting ids.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	// Reconciler

	ReconcileTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetbot_reconcile_ticks_total",
		Help: "Reconcile ticks, by result (ok, store_error, breaker_open, skipped).",
	}, []string{"result"})

	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "meetbot_reconcile_duration_seconds",
		Help:    "Duration of reconcile tick bookkeeping.",
		Buckets: prometheus.DefBuckets,
	})

	// Scheduler

	JobsScheduledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meetbot_jobs_scheduled_total",
		Help: "Jobs armed for a future meeting start.",
	})

	JobsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetbot_jobs_skipped_total",
		Help: "Meetings not scheduled, by reason (stale, lease_busy).",
	}, []string{"reason"})

	JobsCancelledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetbot_jobs_cancelled_total",
		Help: "Cancelled jobs, by job state at cancellation (armed, running).",
	}, []string{"state"})

	ActiveJobs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "meetbot_active_jobs",
		Help: "Jobs currently tracked, by state.",
	}, []string{"state"})

	// Executor

	SessionOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetbot_session_outcomes_total",
		Help: "Finished sessions, by terminal state and reason.",
	}, []string{"state", "reason"})

	SessionTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetbot_session_transitions_total",
		Help: "Session state transitions.",
	}, []string{"from", "to"})

	SessionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meetbot_session_duration_seconds",
		Help:    "Wall time of executor runs, by terminal state.",
		Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200, 14400},
	}, []string{"state"})

	AuthAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetbot_auth_attempts_total",
		Help: "Authentication attempts, by result.",
	}, []string{"result"})

	StatusWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetbot_status_writes_total",
		Help: "Meeting store status writes, by status and result.",
	}, []string{"status", "result"})

	ReleaseFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetbot_release_failures_total",
		Help: "Failed resource release steps, by resource (recorder, workspace).",
	}, []string{"resource"})

	InvariantViolationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetbot_invariant_violation_total",
		Help: "Invariant violations, by rule.",
	}, []string{"rule"})

	// Processes

	ProcTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetbot_proc_terminate_total",
		Help: "Signals sent to child process groups, by signal and result.",
	}, []string{"signal", "result"})

	ProcWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetbot_proc_wait_total",
		Help: "Child process exits observed during termination, by outcome.",
	}, []string{"outcome"})

	// Store breaker

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "meetbot_circuit_breaker_state",
		Help: "Breaker state (0=closed, 1=half-open, 2=open), by breaker name.",
	}, []string{"name"})

	CircuitBreakerTripsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetbot_circuit_breaker_trips_total",
		Help: "Breaker trips to open, by name and reason.",
	}, []string{"name", "reason"})

	// Lease

	LeaseOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetbot_lease_ops_total",
		Help: "Meeting lease operations, by op and result.",
	}, []string{"op", "result"})
)

func RecordReconcileTick(result string, seconds float64) {
	ReconcileTicksTotal.WithLabelValues(result).Inc()
	if seconds >= 0 {
		ReconcileDuration.Observe(seconds)
	}
}

func IncJobsScheduled() { JobsScheduledTotal.Inc() }

func IncJobsSkipped(reason string) { JobsSkippedTotal.WithLabelValues(reason).Inc() }

func IncJobsCancelled(state string) { JobsCancelledTotal.WithLabelValues(state).Inc() }

// SetActiveJobs publishes the scheduler registry counts.
func SetActiveJobs(armed, running int) {
	ActiveJobs.WithLabelValues("armed").Set(float64(armed))
	ActiveJobs.WithLabelValues("running").Set(float64(running))
}

// RecordSessionOutcome counts a finished executor run.
func RecordSessionOutcome(state, reason string, seconds float64) {
	SessionOutcomesTotal.WithLabelValues(state, reason).Inc()
	SessionDuration.WithLabelValues(state).Observe(seconds)
}

func RecordTransition(from, to string) {
	SessionTransitionsTotal.WithLabelValues(from, to).Inc()
}

func IncAuthAttempt(result string) { AuthAttemptsTotal.WithLabelValues(result).Inc() }

func IncStatusWrite(status, result string) { StatusWritesTotal.WithLabelValues(status, result).Inc() }

func IncReleaseFailure(resource string) { ReleaseFailuresTotal.WithLabelValues(resource).Inc() }

func RecordInvariantViolation(rule string) { InvariantViolationTotal.WithLabelValues(rule).Inc() }

func IncProcTerminate(signal, result string) {
	ProcTerminateTotal.WithLabelValues(signal, result).Inc()
}

func IncProcWait(outcome string) { ProcWaitTotal.WithLabelValues(outcome).Inc() }

func IncLeaseOp(op, result string) { LeaseOpsTotal.WithLabelValues(op, result).Inc() }

// SetCircuitBreakerState publishes a breaker state by name.
func SetCircuitBreakerState(name, state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	CircuitBreakerState.WithLabelValues(name).Set(v)
}

func RecordCircuitBreakerTrip(name, reason string) {
	CircuitBreakerTripsTotal.WithLabelValues(name, reason).Inc()
}

// CounterValue reads a counter child (for tests and diagnostics).
func CounterValue(c *prometheus.CounterVec, labels ...string) float64 {
	var m dto.Metric
	if err := c.WithLabelValues(labels...).Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// GaugeValue reads a gauge child.
func GaugeValue(g *prometheus.GaugeVec, labels ...string) float64 {
	var m dto.Metric
	if err := g.WithLabelValues(labels...).Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
