// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/maccrin/meetbot/internal/domain/meeting/model"
)

// ReasonError is an error tagged with a ReasonCode. errors.Is matches it
// against the class sentinel of its reason.
type ReasonError struct {
	Reason model.ReasonCode
	Detail string
	Err    error
}

func (e *ReasonError) Error() string {
	switch {
	case e.Detail != "" && e.Err != nil:
		return e.Detail + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Err.Error()
	case e.Detail != "":
		return e.Detail
	}
	return string(e.Reason)
}

func (e *ReasonError) Is(target error) bool {
	if target == nil {
		return false
	}
	class := ReasonErrorClass(e.Reason)
	return class != nil && target == class
}

func (e *ReasonError) Unwrap() error {
	return e.Err
}

// NewReasonError tags err (which may be nil) with reason.
func NewReasonError(reason model.ReasonCode, detail string, err error) error {
	return &ReasonError{Reason: reason, Detail: detail, Err: err}
}

// Wrap classifies err and tags it unless it already carries a reason.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var rerr *ReasonError
	if errors.As(err, &rerr) {
		return err
	}
	reason, detail := ClassifyReason(err)
	return &ReasonError{Reason: reason, Detail: detail, Err: err}
}

// ClassifyReason derives a reason code and a log-safe detail from err.
func ClassifyReason(err error) (model.ReasonCode, string) {
	if err == nil {
		return model.RNone, ""
	}
	var rerr *ReasonError
	if errors.As(err, &rerr) {
		return rerr.Reason, sanitizeDetail(rerr.Error())
	}

	for _, class := range []struct {
		sentinel error
		reason   model.ReasonCode
	}{
		{ErrExecutorTimeout, model.RExecutorTimeout},
		{ErrCancelled, model.RCancelled},
		{ErrStoreQuery, model.RStoreQuery},
		{ErrInvalidMeeting, model.RInvalidMeeting},
		{ErrAuthentication, model.RAuthFailed},
		{ErrJoin, model.RJoinFailed},
		{ErrRecording, model.RRecordingFailed},
	} {
		if errors.Is(err, class.sentinel) {
			return class.reason, sanitizeDetail(err.Error())
		}
	}

	if errors.Is(err, context.Canceled) {
		return model.RCancelled, ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.RExecutorTimeout, ""
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return model.RRecordingFailed, fmt.Sprintf("process exit code %d", exitErr.ExitCode())
	}
	return model.RUnknown, sanitizeDetail(err.Error())
}

// Message renders err for the store's error_message column.
func Message(err error) string {
	if err == nil {
		return ""
	}
	reason, detail := ClassifyReason(err)
	if detail == "" {
		if class := ReasonErrorClass(reason); class != nil {
			detail = class.Error()
		}
	}
	return fmt.Sprintf("%s: %s", reason, detail)
}

func sanitizeDetail(detail string) string {
	if detail == "" {
		return ""
	}
	const maxLen = 500
	clean := strings.ReplaceAll(detail, "\n", " ")
	if len(clean) > maxLen {
		return clean[:maxLen] + "..."
	}
	return clean
}
