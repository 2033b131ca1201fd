// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

// Package store implements the Meeting Store backends.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/maccrin/meetbot/internal/domain/meeting/model"
	"github.com/maccrin/meetbot/internal/domain/meeting/ports"
)

// ErrDuplicateMeeting is returned by Insert for an id that already exists.
var ErrDuplicateMeeting = errors.New("meeting already exists")

// Store is a MeetingStore that can also be administered from the CLI.
type Store interface {
	ports.MeetingStore
	ports.Pinger
	io.Closer

	Insert(ctx context.Context, m model.Meeting) error
	Get(ctx context.Context, id string) (model.Meeting, error)
	// List returns up to limit meetings, most recent start first.
	List(ctx context.Context, limit int) ([]model.Meeting, error)
}

// Config selects and parameterizes a backend.
type Config struct {
	Backend string // sqlite (default), memory, postgrest
	Path    string
	URL     string
	APIKey  string
	Table   string
	Timeout time.Duration
}

// Open creates a Store based on the backend configuration.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "sqlite":
		return NewSqliteStore(ctx, cfg.Path)
	case "memory":
		return NewMemoryStore(), nil
	case "postgrest":
		return NewPostgrestStore(PostgrestConfig{
			BaseURL: cfg.URL,
			APIKey:  cfg.APIKey,
			Table:   cfg.Table,
			Timeout: cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}

func applyUpdate(m *model.Meeting, status model.Status, upd model.StatusUpdate) {
	m.Status = status
	if upd.ErrorMessage != "" {
		m.ErrorMessage = upd.ErrorMessage
	}
	if upd.RecordingRef != "" {
		m.RecordingRef = upd.RecordingRef
	}
}
