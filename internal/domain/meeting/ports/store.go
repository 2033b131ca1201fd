// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

// Package ports declares the external collaborators the orchestration core
// drives: the meeting store, the session driver and the recorder.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/maccrin/meetbot/internal/domain/meeting/model"
)

// ErrMeetingNotFound is returned by UpdateStatus for an unknown id.
var ErrMeetingNotFound = errors.New("meeting not found")

// MeetingStore is read/write access to meeting records.
type MeetingStore interface {
	// QueryPending returns meetings with status pending whose start time is
	// at or after since, ordered by start time.
	QueryPending(ctx context.Context, since time.Time) ([]model.Meeting, error)

	UpdateStatus(ctx context.Context, id string, status model.Status, upd model.StatusUpdate) error
}

// Pinger is implemented by stores that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}
