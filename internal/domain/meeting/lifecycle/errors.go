// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

// Package lifecycle defines the session error taxonomy and the legal state
// transitions of a meeting session.
package lifecycle

import (
	"errors"

	"github.com/maccrin/meetbot/internal/domain/meeting/model"
)

var (
	ErrStoreQuery      = errors.New("store query failed")
	ErrInvalidMeeting  = errors.New("invalid meeting")
	ErrAuthentication  = errors.New("authentication failed")
	ErrJoin            = errors.New("join failed")
	ErrRecording       = errors.New("recording failed")
	ErrExecutorTimeout = errors.New("executor timeout")
	ErrCancelled       = errors.New("cancelled")
	ErrInternal        = errors.New("internal error")
	ErrUnknown         = errors.New("unknown session error")
)

// ReasonErrorClass maps a reason code to its sentinel class.
func ReasonErrorClass(reason model.ReasonCode) error {
	switch reason {
	case model.RStoreQuery:
		return ErrStoreQuery
	case model.RInvalidMeeting:
		return ErrInvalidMeeting
	case model.RAuthFailed:
		return ErrAuthentication
	case model.RJoinFailed:
		return ErrJoin
	case model.RRecordingFailed:
		return ErrRecording
	case model.RExecutorTimeout:
		return ErrExecutorTimeout
	case model.RCancelled:
		return ErrCancelled
	case model.RInternal:
		return ErrInternal
	case model.RNone:
		return nil
	default:
		return ErrUnknown
	}
}

// IsTerminalReason reports whether a reason ends a session. Store query
// failures only skip a reconcile tick.
func IsTerminalReason(reason model.ReasonCode) bool {
	return reason != model.RNone && reason != model.RStoreQuery
}
