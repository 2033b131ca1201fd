// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

//go:build unix

package browser

import "syscall"

func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
