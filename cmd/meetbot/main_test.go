// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maccrin/meetbot/internal/domain/meeting/model"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meetbot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func sqliteConfig(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "meetbot.db")
	return writeConfig(t, "capability: dryrun\nstore:\n  backend: sqlite\n  path: "+db+"\n")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "meetbot dev"))
}

func TestConfigValidate(t *testing.T) {
	out, err := execute(t, "config", "validate", "--config", sqliteConfig(t))
	require.NoError(t, err)
	assert.Contains(t, out, "configuration valid")

	bad := writeConfig(t, "capability: dryrun\nreconcile:\n  interval: 10ms\n")
	_, err = execute(t, "config", "validate", "-c", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reconcile.interval")
	assert.Equal(t, 2, exitCode(err))
}

func TestConfigDumpRedactsSecrets(t *testing.T) {
	path := writeConfig(t, "capability: chrome\ncredentials:\n  email: bot@example.com\n  password: hunter2\nstore:\n  backend: memory\n")
	out, err := execute(t, "config", "dump", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "bot@example.com")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "***")
}

func TestMeetingsAddAndList(t *testing.T) {
	cfg := sqliteConfig(t)

	out, err := execute(t, "meetings", "add", "-c", cfg, "--id", "m1",
		"--url", "https://meet.example.com/abc-defg-hij",
		"--start", "2026-03-01T09:00:00Z", "--duration", "45m")
	require.NoError(t, err)
	assert.Equal(t, "m1\n", out)

	_, err = execute(t, "meetings", "add", "-c", cfg, "--id", "m1",
		"--url", "https://meet.example.com/x", "--start", "2026-03-01T10:00:00Z", "--end", "2026-03-01T11:00:00Z")
	require.Error(t, err, "duplicate id")

	out, err = execute(t, "meetings", "list", "-c", cfg, "-o", "json")
	require.NoError(t, err)
	var got []model.Meeting
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, model.StatusPending, got[0].Status)
	assert.Equal(t, "2026-03-01T09:45:00Z", got[0].EndTime.UTC().Format("2006-01-02T15:04:05Z07:00"))

	out, err = execute(t, "meetings", "list", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "m1")
	assert.Contains(t, out, "pending")
}

func TestMeetingsAddValidation(t *testing.T) {
	cfg := sqliteConfig(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no end", []string{"--url", "https://meet.example.com/x", "--start", "2026-03-01T09:00:00Z"}, "--end or --duration"},
		{"both", []string{"--url", "https://meet.example.com/x", "--start", "2026-03-01T09:00:00Z", "--end", "2026-03-01T10:00:00Z", "--duration", "1h"}, "mutually exclusive"},
		{"bad start", []string{"--url", "https://meet.example.com/x", "--start", "tomorrow", "--duration", "1h"}, "--start"},
		{"end before start", []string{"--url", "https://meet.example.com/x", "--start", "2026-03-01T09:00:00Z", "--end", "2026-03-01T08:00:00Z"}, "is not after start time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"meetings", "add", "-c", cfg}, tt.args...)
			_, err := execute(t, args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestStoreVerify(t *testing.T) {
	cfg := sqliteConfig(t)
	out, err := execute(t, "store", "verify", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "store ok, 0 upcoming pending meetings")

	out, err = execute(t, "store", "verify", "--full", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "store ok")
}
