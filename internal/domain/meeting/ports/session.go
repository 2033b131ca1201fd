// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package ports

import "context"

// Credentials are the login details handed to the driver.
type Credentials struct {
	Email    string
	Password string
}

// SessionHandle identifies a joined session to the recorder.
type SessionHandle struct {
	WorkspaceID string
	// AudioSink names the audio device the workspace plays into; empty means
	// the system default.
	AudioSink  string
	ProfileDir string
}

// Driver opens isolated automation workspaces.
type Driver interface {
	// Open acquires a fresh workspace. The caller owns it and must Close it.
	Open(ctx context.Context) (Workspace, error)
}

// Workspace is one isolated browser session.
type Workspace interface {
	Authenticate(ctx context.Context, creds Credentials) error
	// Join navigates to the meeting and performs the pre-join steps. It
	// returns once the session is admitted.
	Join(ctx context.Context, meetingURL string) error
	Handle() SessionHandle
	// Close releases every resource of the workspace. Safe to call once per
	// workspace; it must honour ctx for the graceful part only.
	Close(ctx context.Context) error
}

// Recorder starts captures for joined sessions.
type Recorder interface {
	Start(ctx context.Context, h SessionHandle, meetingID string) (Recording, error)
}

// Recording is an in-progress capture.
type Recording interface {
	// Ref is the artifact reference the recording will produce.
	Ref() string
	// Failed delivers at most one error if the capture dies before Stop.
	Failed() <-chan error
	// Stop ends the capture and finalizes the artifact.
	Stop(ctx context.Context) (string, error)
}
