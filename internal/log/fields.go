// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldMeetingID = "meeting_id"
	FieldRunID     = "run_id"
	FieldJobState  = "job_state"

	FieldEvent     = "event"
	FieldComponent = "component"

	// State machine
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldReason   = "reason"
	FieldAttempt  = "attempt"

	FieldStatus       = "status"
	FieldPath         = "path"
	FieldRecordingRef = "recording_ref"
	FieldPID          = "pid"
)
