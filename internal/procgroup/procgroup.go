// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

// Package procgroup spawns helper processes (chrome, ffmpeg) in their own
// process group so the whole tree can be signalled and reaped together.
package procgroup

import (
	"errors"
	"time"
)

var ErrKillFailed = errors.New("kill operation failed")

// pollInterval is how often KillGroup probes the group while waiting.
const pollInterval = 20 * time.Millisecond
