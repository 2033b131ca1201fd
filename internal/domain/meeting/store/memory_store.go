// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/maccrin/meetbot/internal/domain/meeting/model"
	"github.com/maccrin/meetbot/internal/domain/meeting/ports"
)

// MemoryStore keeps meetings in process memory. It also records every status
// write so callers can assert on the sequence.
type MemoryStore struct {
	mu       sync.RWMutex
	meetings map[string]model.Meeting
	history  map[string][]model.Status
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		meetings: make(map[string]model.Meeting),
		history:  make(map[string][]model.Status),
	}
}

func (s *MemoryStore) Close() error               { return nil }
func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) QueryPending(ctx context.Context, since time.Time) ([]model.Meeting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []model.Meeting
	for _, m := range s.meetings {
		if m.Status == model.StatusPending && !m.StartTime.Before(since) {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status model.Status, upd model.StatusUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok {
		return fmt.Errorf("%w: %s", ports.ErrMeetingNotFound, id)
	}
	applyUpdate(&m, status, upd)
	s.meetings[id] = m
	s.history[id] = append(s.history[id], status)
	return nil
}

func (s *MemoryStore) Insert(_ context.Context, m model.Meeting) error {
	if m.Status == "" {
		m.Status = model.StatusPending
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.meetings[m.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateMeeting, m.ID)
	}
	s.meetings[m.ID] = m
	return nil
}

// Put inserts or replaces a meeting without touching its history.
func (s *MemoryStore) Put(m model.Meeting) {
	s.mu.Lock()
	s.meetings[m.ID] = m
	s.mu.Unlock()
}

func (s *MemoryStore) Get(_ context.Context, id string) (model.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meetings[id]
	if !ok {
		return model.Meeting{}, fmt.Errorf("%w: %s", ports.ErrMeetingNotFound, id)
	}
	return m, nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]model.Meeting, error) {
	s.mu.RLock()
	out := make([]model.Meeting, 0, len(s.meetings))
	for _, m := range s.meetings {
		out = append(out, m)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// History returns the statuses written for id, oldest first.
func (s *MemoryStore) History(id string) []model.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Status(nil), s.history[id]...)
}
