// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	meetingIDKey ctxKey = "meeting_id"
	runIDKey     ctxKey = "run_id"
)

// ContextWithMeetingID stores the meeting id in the context.
func ContextWithMeetingID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, meetingIDKey, id)
}

// ContextWithRunID stores the executor run id in the context.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, runIDKey, id)
}

// MeetingIDFromContext extracts the meeting id from context if present.
func MeetingIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(meetingIDKey).(string); ok {
		return v
	}
	return ""
}

// RunIDFromContext extracts the run id from context if present.
func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(runIDKey).(string); ok {
		return v
	}
	return ""
}

// WithContext enriches the supplied logger with correlation fields from context.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	builder := logger.With()
	added := false
	if id := MeetingIDFromContext(ctx); id != "" {
		builder = builder.Str(FieldMeetingID, id)
		added = true
	}
	if id := RunIDFromContext(ctx); id != "" {
		builder = builder.Str(FieldRunID, id)
		added = true
	}
	if !added {
		return logger
	}
	return builder.Logger()
}

// FromContext returns the logger attached with zerolog's WithContext, or the
// base logger when none is present.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		return L()
	}
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		return L()
	}
	return l
}
