// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced Clock. Timers fire only from Advance or Set.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers map[*fakeTimer]struct{}
}

// NewFake returns a Fake clock starting at now.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now, timers: make(map[*fakeTimer]struct{})}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) NewTimer(d time.Duration) Timer {
	return f.arm(d, nil)
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	return f.arm(d, fn)
}

func (f *Fake) arm(d time.Duration, fn func()) *fakeTimer {
	t := &fakeTimer{clock: f, fn: fn}
	if fn == nil {
		t.ch = make(chan time.Time, 1)
	}
	f.mu.Lock()
	t.when = f.now.Add(d)
	f.timers[t] = struct{}{}
	f.mu.Unlock()
	if d <= 0 {
		f.Advance(0)
	}
	return t
}

// Advance moves the clock forward and fires every timer that became due, in
// deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	var due []*fakeTimer
	for t := range f.timers {
		if !t.when.After(now) {
			due = append(due, t)
			delete(f.timers, t)
		}
	}
	f.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].when.Before(due[j].when) })
	for _, t := range due {
		if t.fn != nil {
			go t.fn()
			continue
		}
		select {
		case t.ch <- now:
		default:
		}
	}
}

// Set jumps to an absolute time; moving backwards fires nothing.
func (f *Fake) Set(now time.Time) {
	f.mu.Lock()
	d := now.Sub(f.now)
	if d < 0 {
		f.now = now
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	f.Advance(d)
}

// Pending reports how many timers are armed.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

// WaitForTimers polls until at least n timers are armed or timeout elapses.
func (f *Fake) WaitForTimers(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if f.Pending() >= n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

type fakeTimer struct {
	clock *Fake
	when  time.Time
	ch    chan time.Time
	fn    func()
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	_, active := t.clock.timers[t]
	delete(t.clock.timers, t)
	return active
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	_, active := t.clock.timers[t]
	t.when = t.clock.now.Add(d)
	t.clock.timers[t] = struct{}{}
	t.clock.mu.Unlock()
	if d <= 0 {
		t.clock.Advance(0)
	}
	return active
}
