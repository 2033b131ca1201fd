// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package lifecycle

import (
	"fmt"

	"github.com/maccrin/meetbot/internal/domain/meeting/model"
)

// Transition is a single allowed edge in the session state machine.
type Transition struct {
	From model.SessionState
	To   model.SessionState
}

var transitionsTable = []Transition{
	{From: model.StateInit, To: model.StateAuthenticating},
	{From: model.StateInit, To: model.StateFailed}, // validation failure
	{From: model.StateInit, To: model.StateFinalizing},

	{From: model.StateAuthenticating, To: model.StateJoining},
	{From: model.StateAuthenticating, To: model.StateFinalizing},

	{From: model.StateJoining, To: model.StateRecording},
	{From: model.StateJoining, To: model.StateFinalizing},

	{From: model.StateRecording, To: model.StateFinalizing},

	{From: model.StateFinalizing, To: model.StateCompleted},
	{From: model.StateFinalizing, To: model.StateFailed},
}

// Allowed reports whether from -> to is a legal edge.
func Allowed(from, to model.SessionState) bool {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.To == to {
			return true
		}
	}
	return false
}

// CheckTransition returns an invariant error for an illegal edge.
func CheckTransition(from, to model.SessionState) error {
	if Allowed(from, to) {
		return nil
	}
	return NewReasonError(model.RInternal, fmt.Sprintf("illegal transition: %s -> %s", from, to), nil)
}
