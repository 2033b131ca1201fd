// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

//go:build unix

package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
	"time"

	"github.com/maccrin/meetbot/internal/log"
)

// Set configures the command to start in a new process group.
// Mandatory for Kill and KillGroup to reach the children.
func Set(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// Kill sends sig to the process group of cmd. A process that already exited
// is not an error.
func Kill(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return err
	}
	if err := syscall.Kill(-pgid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

// KillGroup terminates the group led by pid: SIGTERM, up to grace for the
// group to vanish, then SIGKILL and up to timeout more. It does not reap, so
// it is safe when another goroutine owns cmd.Wait.
func KillGroup(pid int, grace, timeout time.Duration) error {
	if pid <= 0 {
		return nil
	}
	logger := log.WithComponent("procgroup")

	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		_ = syscall.Kill(pid, syscall.SIGTERM)
	}
	if waitGone(pid, grace) {
		return nil
	}

	logger.Warn().Int(log.FieldPID, pid).Str(log.FieldEvent, "procgroup.sigkill").
		Msg("SIGTERM grace period exceeded, sending SIGKILL to process group")
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		_ = syscall.Kill(pid, syscall.SIGKILL)
	}
	if waitGone(pid, timeout) {
		return nil
	}
	return ErrKillFailed
}

func waitGone(pgid int, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if err := syscall.Kill(-pgid, 0); errors.Is(err, syscall.ESRCH) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}
