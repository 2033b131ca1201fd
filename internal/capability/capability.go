// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

// Package capability picks the Driver/Recorder pair a deployment uses.
package capability

import (
	"fmt"

	"github.com/maccrin/meetbot/internal/browser"
	"github.com/maccrin/meetbot/internal/capture"
	"github.com/maccrin/meetbot/internal/config"
	"github.com/maccrin/meetbot/internal/domain/meeting/ports"
)

const (
	Chrome = "chrome"
	DryRun = "dryrun"
)

// Pair is a matched driver and recorder.
type Pair struct {
	Name     string
	Driver   ports.Driver
	Recorder ports.Recorder
}

// Select builds the pair named by cfg.Capability.
func Select(cfg config.AppConfig) (Pair, error) {
	switch cfg.Capability {
	case Chrome:
		b := cfg.Browser
		s := b.Selectors
		drv := browser.NewDriver(browser.Config{
			ExecPath:    b.ExecPath,
			Headless:    b.Headless,
			ProfileRoot: b.ProfileRoot,
			DisplayName: b.DisplayName,
			PulseSink:   b.PulseSink && cfg.Recorder.Pulse,
			StepTimeout: b.StepTimeout,
			JoinRetries: b.JoinRetries,
			JoinDelay:   b.JoinDelay,
			ExtraFlags:  b.ExtraFlags,
			Selectors: browser.Selectors{
				LoginURL:      s.LoginURL,
				Email:         s.Email,
				EmailNext:     s.EmailNext,
				Password:      s.Password,
				PasswordNext:  s.PasswordNext,
				NameInput:     s.NameInput,
				JoinButtons:   s.JoinButtons,
				JoinTexts:     s.JoinTexts,
				InMeeting:     s.InMeeting,
				MediaToggles:  s.MediaToggles,
				LoggedInProbe: s.LoggedInProbe,
			},
		})
		rec := capture.NewRecorder(capture.Config{
			BinPath:   cfg.Recorder.FFmpegPath,
			OutputDir: cfg.Recorder.OutputDir,
			Pulse:     cfg.Recorder.Pulse,
			StopGrace: cfg.Recorder.StopGrace,
			Bitrate:   cfg.Recorder.Bitrate,
		})
		return Pair{Name: Chrome, Driver: drv, Recorder: rec}, nil
	case DryRun:
		return Pair{Name: DryRun, Driver: &DryRunDriver{}, Recorder: &DryRunRecorder{}}, nil
	default:
		return Pair{}, fmt.Errorf("unknown capability %q", cfg.Capability)
	}
}
