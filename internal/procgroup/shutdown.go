// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package procgroup

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/maccrin/meetbot/internal/metrics"
)

// Terminate stops a process group gracefully: it sends sig, waits on waitCh
// for up to grace, then sends SIGKILL and drains waitCh. It returns the
// process's Wait error. Safe on nil or unstarted commands.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, sig syscall.Signal, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	recordSignal(sig.String(), Kill(cmd, sig))

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case err := <-waitCh:
		if err == nil {
			metrics.IncProcWait("exit0")
		} else {
			metrics.IncProcWait("exit_nonzero")
		}
		return err
	case <-timer.C:
	}

	recordSignal("SIGKILL", Kill(cmd, syscall.SIGKILL))
	err := <-waitCh
	if err == nil {
		metrics.IncProcWait("forced_exit0")
	} else {
		metrics.IncProcWait("forced_error")
	}
	return err
}

func recordSignal(name string, err error) {
	switch {
	case err == nil:
		metrics.IncProcTerminate(name, "sent")
	case errors.Is(err, os.ErrProcessDone), errors.Is(err, syscall.ESRCH):
		metrics.IncProcTerminate(name, "esrch")
	default:
		metrics.IncProcTerminate(name, "error")
	}
}
