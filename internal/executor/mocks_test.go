// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package executor

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/maccrin/meetbot/internal/domain/meeting/ports"
)

type mockDriver struct{ mock.Mock }

func (m *mockDriver) Open(ctx context.Context) (ports.Workspace, error) {
	args := m.Called(ctx)
	ws, _ := args.Get(0).(ports.Workspace)
	return ws, args.Error(1)
}

type mockWorkspace struct{ mock.Mock }

func (m *mockWorkspace) Authenticate(ctx context.Context, creds ports.Credentials) error {
	return m.Called(ctx, creds).Error(0)
}

func (m *mockWorkspace) Join(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *mockWorkspace) Handle() ports.SessionHandle {
	return ports.SessionHandle{WorkspaceID: "ws-test", AudioSink: "meetbot_test"}
}

func (m *mockWorkspace) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockRecorder struct{ mock.Mock }

func (m *mockRecorder) Start(ctx context.Context, h ports.SessionHandle, meetingID string) (ports.Recording, error) {
	args := m.Called(ctx, h, meetingID)
	rec, _ := args.Get(0).(ports.Recording)
	return rec, args.Error(1)
}

type mockRecording struct {
	mock.Mock
	ref    string
	failed chan error
}

func newMockRecording(ref string) *mockRecording {
	return &mockRecording{ref: ref, failed: make(chan error, 1)}
}

func (m *mockRecording) Ref() string           { return m.ref }
func (m *mockRecording) Failed() <-chan error { return m.failed }

func (m *mockRecording) Stop(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
