// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMeetingValidate(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	valid := Meeting{ID: "m1", URL: "https://meet.example/abc", StartTime: start, EndTime: start.Add(time.Hour)}

	tests := []struct {
		name    string
		mutate  func(m *Meeting)
		wantErr string
	}{
		{name: "valid", mutate: func(*Meeting) {}},
		{name: "missing id", mutate: func(m *Meeting) { m.ID = " " }, wantErr: "missing id"},
		{name: "missing url", mutate: func(m *Meeting) { m.URL = "" }, wantErr: "missing meeting url"},
		{name: "zero start", mutate: func(m *Meeting) { m.StartTime = time.Time{} }, wantErr: "missing start time"},
		{name: "zero end", mutate: func(m *Meeting) { m.EndTime = time.Time{} }, wantErr: "missing end time"},
		{name: "end equals start", mutate: func(m *Meeting) { m.EndTime = m.StartTime }, wantErr: "is not after start time"},
		{name: "end before start", mutate: func(m *Meeting) { m.EndTime = m.StartTime.Add(-time.Minute) }, wantErr: "is not after start time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid
			tt.mutate(&m)
			err := m.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestStatesAndStatuses(t *testing.T) {
	assert.True(t, StateCompleted.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
	assert.False(t, StateRecording.IsTerminal())
	assert.True(t, StatusCancelled.Valid())
	assert.False(t, Status("archived").Valid())
	assert.Equal(t, time.Hour, Meeting{StartTime: time.Unix(0, 0), EndTime: time.Unix(3600, 0)}.Duration())
}
