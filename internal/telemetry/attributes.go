// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package telemetry

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
)

const (
	MeetingIDKey       = "meeting.id"
	MeetingDurationKey = "meeting.duration_s"
	SessionStateKey    = "session.state"
	SessionReasonKey   = "session.reason"
	SessionAttemptKey  = "session.attempt"
	RecordingRefKey    = "recording.ref"
)

// MeetingAttributes describes the meeting a span works on.
func MeetingAttributes(id string, duration time.Duration) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(MeetingIDKey, id),
		attribute.Int64(MeetingDurationKey, int64(duration.Seconds())),
	}
}

// OutcomeAttributes describes how a session ended.
func OutcomeAttributes(state, reason, recordingRef string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(SessionStateKey, state),
		attribute.String(SessionReasonKey, reason),
	}
	if recordingRef != "" {
		attrs = append(attrs, attribute.String(RecordingRefKey, recordingRef))
	}
	return attrs
}
