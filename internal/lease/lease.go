// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

// Package lease keeps two orchestrator instances from recording the same
// meeting. Without a Redis address every claim succeeds locally.
package lease

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotHeld is returned when renewing or releasing a lease that expired or
// was taken over.
var ErrNotHeld = errors.New("lease not held")

// Lease is an exclusive claim on one meeting.
type Lease interface {
	Key() string
	Renew(ctx context.Context) error
	Release(ctx context.Context) error
}

// Locker hands out leases.
type Locker interface {
	// TryAcquire claims the meeting. ok is false when another owner holds it.
	TryAcquire(ctx context.Context, meetingID string) (l Lease, ok bool, err error)
	Close() error
}

func keyFor(meetingID string) string { return "meetbot:lease:meeting:" + meetingID }

func newToken(owner string) string {
	if owner == "" {
		return uuid.NewString()
	}
	return owner + "/" + uuid.NewString()
}

// Local is an in-process Locker for single-instance deployments.
type Local struct {
	mu   sync.Mutex
	held map[string]string
}

func NewLocal() *Local { return &Local{held: make(map[string]string)} }

func (l *Local) TryAcquire(_ context.Context, meetingID string) (Lease, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := keyFor(meetingID)
	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	tok := newToken("")
	l.held[key] = tok
	return &localLease{owner: l, key: key, token: tok}, true, nil
}

func (l *Local) Close() error { return nil }

type localLease struct {
	owner *Local
	key   string
	token string
}

func (ll *localLease) Key() string { return ll.key }

func (ll *localLease) Renew(context.Context) error {
	ll.owner.mu.Lock()
	defer ll.owner.mu.Unlock()
	if ll.owner.held[ll.key] != ll.token {
		return ErrNotHeld
	}
	return nil
}

func (ll *localLease) Release(context.Context) error {
	ll.owner.mu.Lock()
	defer ll.owner.mu.Unlock()
	if ll.owner.held[ll.key] != ll.token {
		return ErrNotHeld
	}
	delete(ll.owner.held, ll.key)
	return nil
}

// KeepAlive renews l every interval until ctx is done. It returns the first
// renewal error, which means the claim is lost.
func KeepAlive(ctx context.Context, l Lease, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := l.Renew(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}
