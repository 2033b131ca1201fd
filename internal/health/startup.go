// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/maccrin/meetbot/internal/config"
	xlog "github.com/maccrin/meetbot/internal/log"
)

var errNotDir = errors.New("not a directory")

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// PerformStartupChecks verifies the host before the chrome capability
// starts: the output directory and the external binaries it shells out to.
// The dry-run capability needs none of them.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	if cfg.Capability != "chrome" {
		return nil
	}
	logger := xlog.WithComponent("startup-check")

	var errs []error
	if err := os.MkdirAll(cfg.Recorder.OutputDir, 0o755); err != nil {
		errs = append(errs, fmt.Errorf("recorder.outputDir: %w", err))
	} else if err := checkWritableDir(cfg.Recorder.OutputDir); err != nil {
		errs = append(errs, fmt.Errorf("recorder.outputDir: not writable: %w", err))
	}

	bins := map[string]string{"recorder.ffmpegPath": cfg.Recorder.FFmpegPath}
	if cfg.Browser.ExecPath != "" {
		bins["browser.execPath"] = cfg.Browser.ExecPath
	}
	if cfg.Recorder.Pulse && cfg.Browser.PulseSink {
		bins["pactl"] = "pactl"
	}
	for key, bin := range bins {
		path, err := lookPath(bin)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		logger.Debug().Str(xlog.FieldEvent, "startup.binary_found").Str("binary", key).Str(xlog.FieldPath, path).Msg("binary found")
	}

	if err := errors.Join(errs...); err != nil {
		logger.Error().Err(err).Str(xlog.FieldEvent, "startup.checks_failed").Msg("startup checks failed")
		return err
	}
	logger.Info().Str(xlog.FieldEvent, "startup.checks_passed").Msg("startup checks passed")
	return nil
}
