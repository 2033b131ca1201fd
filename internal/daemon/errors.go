// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package daemon

import "errors"

var (
	// ErrMissingScheduler is returned when an app is created without a scheduler.
	ErrMissingScheduler = errors.New("scheduler is required")

	// ErrMissingReconciler is returned when an app is created without a reconciler.
	ErrMissingReconciler = errors.New("reconciler is required")

	// ErrDrainTimeout is returned when running sessions outlived the drain
	// timeout and had to be force-cancelled.
	ErrDrainTimeout = errors.New("sessions did not drain in time")
)

// ExitCode maps the result of Run to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
