// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

// Package model holds the meeting domain types shared by the store, executor
// and scheduler.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Meeting is one scheduled online meeting and its automation status.
type Meeting struct {
	ID           string    `json:"id"`
	URL          string    `json:"meeting_url"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Status       Status    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	RecordingRef string    `json:"recording_path,omitempty"`
}

// Duration is the scheduled length of the meeting.
func (m Meeting) Duration() time.Duration {
	return m.EndTime.Sub(m.StartTime)
}

// Validate checks the fields a session needs before touching any collaborator.
func (m Meeting) Validate() error {
	var problems []string
	if strings.TrimSpace(m.ID) == "" {
		problems = append(problems, "missing id")
	}
	if strings.TrimSpace(m.URL) == "" {
		problems = append(problems, "missing meeting url")
	}
	if m.StartTime.IsZero() {
		problems = append(problems, "missing start time")
	}
	if m.EndTime.IsZero() {
		problems = append(problems, "missing end time")
	}
	if len(problems) == 0 && !m.EndTime.After(m.StartTime) {
		problems = append(problems, fmt.Sprintf("end time %s is not after start time %s",
			m.EndTime.UTC().Format(time.RFC3339), m.StartTime.UTC().Format(time.RFC3339)))
	}
	if len(problems) > 0 {
		return errors.New("invalid meeting: " + strings.Join(problems, ", "))
	}
	return nil
}

// StatusUpdate carries the optional fields written alongside a status.
type StatusUpdate struct {
	ErrorMessage string
	RecordingRef string
}
