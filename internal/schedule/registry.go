// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/maccrin/meetbot/internal/clock"
	"github.com/maccrin/meetbot/internal/domain/meeting/model"
	"github.com/maccrin/meetbot/internal/executor"
	"github.com/maccrin/meetbot/internal/metrics"
)

// Job is one scheduled meeting. It is armed until its timer fires, then
// running until the executor returns.
type Job struct {
	meeting model.Meeting
	since   time.Time

	// guarded by Registry.mu
	state  model.JobState
	timer  clock.Timer
	cancel context.CancelCauseFunc

	done    chan struct{}
	outcome executor.Outcome
}

func newJob(m model.Meeting, now time.Time) *Job {
	return &Job{meeting: m, since: now, state: model.JobArmed, done: make(chan struct{})}
}

func (j *Job) MeetingID() string      { return j.meeting.ID }
func (j *Job) Meeting() model.Meeting { return j.meeting }

// Done is closed when the job leaves the registry, either cancelled while
// armed or after its executor returned.
func (j *Job) Done() <-chan struct{} { return j.done }

// Outcome is valid once Done is closed. A job cancelled while armed, or
// skipped because another instance holds its lease, has a zero Outcome.
func (j *Job) Outcome() executor.Outcome {
	<-j.done
	return j.outcome
}

// JobInfo is a point-in-time view of a job.
type JobInfo struct {
	MeetingID string         `json:"meeting_id"`
	URL       string         `json:"meeting_url"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`
	State     model.JobState `json:"state"`
	Since     time.Time      `json:"since"`
}

// Registry is the set of live jobs keyed by meeting id, plus a wait group
// over running executors for a bounded join on shutdown.
type Registry struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	closing bool
	wg      sync.WaitGroup

	idleOnce sync.Once
	idle     chan struct{}
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Snapshot lists the jobs ordered by start time.
func (r *Registry) Snapshot() []JobInfo {
	r.mu.Lock()
	out := make([]JobInfo, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, JobInfo{
			MeetingID: j.meeting.ID,
			URL:       j.meeting.URL,
			StartTime: j.meeting.StartTime,
			EndTime:   j.meeting.EndTime,
			State:     j.state,
			Since:     j.since,
		})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, k int) bool {
		if out[i].StartTime.Equal(out[k].StartTime) {
			return out[i].MeetingID < out[k].MeetingID
		}
		return out[i].StartTime.Before(out[k].StartTime)
	})
	return out
}

// Lookup returns the view of one job.
func (r *Registry) Lookup(meetingID string) (JobInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[meetingID]
	if !ok {
		return JobInfo{}, false
	}
	return JobInfo{
		MeetingID: j.meeting.ID,
		URL:       j.meeting.URL,
		StartTime: j.meeting.StartTime,
		EndTime:   j.meeting.EndTime,
		State:     j.state,
		Since:     j.since,
	}, true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// publish updates the job gauges. Caller holds mu.
func (r *Registry) publish() {
	var armed, running int
	for _, j := range r.jobs {
		if j.state == model.JobRunning {
			running++
		} else {
			armed++
		}
	}
	metrics.SetActiveJobs(armed, running)
}

// wait blocks until every running executor returned or ctx ends. It is
// only called once closing is set, so the wait group can no longer grow and
// one watcher goroutine serves every call.
func (r *Registry) wait(ctx context.Context) error {
	r.idleOnce.Do(func() {
		r.idle = make(chan struct{})
		go func() {
			r.wg.Wait()
			close(r.idle)
		}()
	})

	select {
	case <-r.idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("job drain timeout: %w", ctx.Err())
	}
}
