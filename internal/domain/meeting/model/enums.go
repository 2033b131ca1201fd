// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package model

// Status is the meeting status persisted in the Meeting Store.
type Status string

const (
	StatusPending   Status = "pending"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known store statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusOngoing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// SessionState is the executor's state-machine phase.
type SessionState string

const (
	StateInit           SessionState = "INIT"
	StateAuthenticating SessionState = "AUTHENTICATING"
	StateJoining        SessionState = "JOINING"
	StateRecording      SessionState = "RECORDING"
	StateFinalizing     SessionState = "FINALIZING"
	StateCompleted      SessionState = "COMPLETED"
	StateFailed         SessionState = "FAILED"
)

// IsTerminal returns true if the state is a final state.
func (s SessionState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// ReasonCode classifies why a session ended (or why a tick failed).
type ReasonCode string

const (
	RNone            ReasonCode = "R_NONE"
	RStoreQuery      ReasonCode = "R_STORE_QUERY"
	RInvalidMeeting  ReasonCode = "R_INVALID_MEETING"
	RAuthFailed      ReasonCode = "R_AUTH_FAILED"
	RJoinFailed      ReasonCode = "R_JOIN_FAILED"
	RRecordingFailed ReasonCode = "R_RECORDING_FAILED"
	RExecutorTimeout ReasonCode = "R_EXECUTOR_TIMEOUT"
	RCancelled       ReasonCode = "R_CANCELLED"
	RInternal        ReasonCode = "R_INTERNAL"
	RUnknown         ReasonCode = "R_UNKNOWN"
)

// JobState is the scheduler-side view of a job.
type JobState string

const (
	JobArmed   JobState = "armed"
	JobRunning JobState = "running"
)
