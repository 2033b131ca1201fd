// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package browser

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// audioSink is a PulseAudio null sink dedicated to one workspace, so
// parallel sessions do not record each other.
type audioSink struct {
	name   string
	module string
	pactl  string
}

func sinkName(workspaceID string) string {
	id := strings.ReplaceAll(workspaceID, "-", "")
	if len(id) > 12 {
		id = id[:12]
	}
	return "meetbot_" + id
}

func loadNullSink(ctx context.Context, pactl, name string) (*audioSink, error) {
	// #nosec G204
	out, err := exec.CommandContext(ctx, pactl, "load-module", "module-null-sink",
		"sink_name="+name, "sink_properties=device.description="+name).Output()
	if err != nil {
		return nil, fmt.Errorf("pactl load-module: %w", exitDetail(err))
	}
	return &audioSink{name: name, module: strings.TrimSpace(string(out)), pactl: pactl}, nil
}

func (s *audioSink) unload(ctx context.Context) error {
	if s == nil || s.module == "" {
		return nil
	}
	// #nosec G204
	if err := exec.CommandContext(ctx, s.pactl, "unload-module", s.module).Run(); err != nil {
		return fmt.Errorf("pactl unload-module %s: %w", s.module, exitDetail(err))
	}
	return nil
}

func exitDetail(err error) error {
	if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(ee.Stderr)))
	}
	return err
}
