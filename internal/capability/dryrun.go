// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package capability

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/maccrin/meetbot/internal/domain/meeting/ports"
	xlog "github.com/maccrin/meetbot/internal/log"
)

// DryRunDriver opens workspaces that succeed without a browser. The error
// fields inject failures for smoke tests.
type DryRunDriver struct {
	AuthErr error
	JoinErr error

	Opened atomic.Int32
	Closed atomic.Int32
	Joined atomic.Int32
}

var _ ports.Driver = (*DryRunDriver)(nil)

func (d *DryRunDriver) Open(ctx context.Context) (ports.Workspace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.Opened.Add(1)
	return &dryRunWorkspace{driver: d, id: uuid.NewString()}, nil
}

type dryRunWorkspace struct {
	driver *DryRunDriver
	id     string
	once   sync.Once
}

func (w *dryRunWorkspace) Authenticate(ctx context.Context, _ ports.Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.driver.AuthErr
}

func (w *dryRunWorkspace) Join(ctx context.Context, meetingURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.driver.JoinErr != nil {
		return w.driver.JoinErr
	}
	w.driver.Joined.Add(1)
	xlog.FromContext(ctx).Debug().Str(xlog.FieldEvent, "dryrun.joined").Str("url", meetingURL).Msg("dry-run join")
	return nil
}

func (w *dryRunWorkspace) Handle() ports.SessionHandle {
	return ports.SessionHandle{WorkspaceID: w.id}
}

func (w *dryRunWorkspace) Close(context.Context) error {
	w.once.Do(func() { w.driver.Closed.Add(1) })
	return nil
}

// DryRunRecorder produces the reference rec-<id>.webm without capturing.
type DryRunRecorder struct {
	StartErr error

	Started atomic.Int32
	Stopped atomic.Int32
}

var _ ports.Recorder = (*DryRunRecorder)(nil)

func DryRunRef(meetingID string) string { return "rec-" + meetingID + ".webm" }

func (r *DryRunRecorder) Start(ctx context.Context, _ ports.SessionHandle, meetingID string) (ports.Recording, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.StartErr != nil {
		return nil, r.StartErr
	}
	r.Started.Add(1)
	return &dryRunRecording{rec: r, ref: DryRunRef(meetingID), failed: make(chan error, 1)}, nil
}

type dryRunRecording struct {
	rec    *DryRunRecorder
	ref    string
	failed chan error
	once   sync.Once
}

func (r *dryRunRecording) Ref() string           { return r.ref }
func (r *dryRunRecording) Failed() <-chan error { return r.failed }

func (r *dryRunRecording) Stop(context.Context) (string, error) {
	r.once.Do(func() { r.rec.Stopped.Add(1) })
	return r.ref, nil
}
