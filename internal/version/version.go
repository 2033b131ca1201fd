// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

// Package version holds build metadata set through -ldflags.
package version

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String renders the version line printed by the CLI.
func String() string {
	return Version + " (commit: " + Commit + ", built: " + Date + ")"
}
