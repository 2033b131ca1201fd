// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

// Package resilience guards calls to flaky dependencies.
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/maccrin/meetbot/internal/clock"
	"github.com/maccrin/meetbot/internal/metrics"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops calling a dependency after threshold failures in a
// row. Once cooldown has passed since it opened, exactly one trial call is
// admitted; its result closes or reopens the breaker.
type CircuitBreaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	clk       clock.Clock
	panics    bool

	mu       sync.Mutex
	state    State
	streak   int
	openedAt time.Time
	trial    bool
}

type Option func(*CircuitBreaker)

func WithClock(c clock.Clock) Option {
	return func(cb *CircuitBreaker) { cb.clk = c }
}

// WithPanicRecovery counts a panic in the guarded call as a failure; the
// panic still propagates.
func WithPanicRecovery(enabled bool) Option {
	return func(cb *CircuitBreaker) { cb.panics = enabled }
}

// NewCircuitBreaker returns a closed breaker. Non-positive threshold and
// cooldown fall back to 3 and 30s.
func NewCircuitBreaker(name string, threshold int, cooldown time.Duration, opts ...Option) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		clk:       clock.Real{},
		state:     StateClosed,
	}
	if threshold <= 0 {
		cb.threshold = 3
	}
	if cooldown <= 0 {
		cb.cooldown = 30 * time.Second
	}
	for _, opt := range opts {
		opt(cb)
	}
	metrics.SetCircuitBreakerState(name, string(StateClosed))
	return cb
}

// Execute calls fn when the breaker admits it and feeds the result back.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.admit() {
		return ErrCircuitOpen
	}
	if cb.panics {
		defer func() {
			if r := recover(); r != nil {
				cb.settle(false)
				panic(r)
			}
		}()
	}
	err := fn()
	cb.settle(err == nil)
	return err
}

// RetryAfter is the time left before an open breaker admits its trial call.
func (cb *CircuitBreaker) RetryAfter() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return 0
	}
	return max(cb.openedAt.Add(cb.cooldown).Sub(cb.clk.Now()), 0)
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) admit() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateClosed {
		return true
	}
	if cb.trial {
		return false
	}
	if cb.state == StateOpen && cb.clk.Now().Before(cb.openedAt.Add(cb.cooldown)) {
		return false
	}
	cb.setState(StateHalfOpen)
	cb.trial = true
	return true
}

func (cb *CircuitBreaker) settle(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	wasTrial := cb.trial
	cb.trial = false
	if success {
		cb.streak = 0
		cb.setState(StateClosed)
		return
	}

	cb.streak++
	switch {
	case wasTrial:
		metrics.RecordCircuitBreakerTrip(cb.name, "half_open_failure")
		cb.setState(StateOpen)
	case cb.state == StateClosed && cb.streak >= cb.threshold:
		metrics.RecordCircuitBreakerTrip(cb.name, "threshold_exceeded")
		cb.setState(StateOpen)
	}
}

// setState requires cb.mu. Entering open restarts the cooldown.
func (cb *CircuitBreaker) setState(s State) {
	if s == StateOpen {
		cb.openedAt = cb.clk.Now()
	}
	if cb.state == s {
		return
	}
	cb.state = s
	metrics.SetCircuitBreakerState(cb.name, string(s))
}
