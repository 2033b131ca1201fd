// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestLoadDefaultsDryrun(t *testing.T) {
	t.Setenv("MEETBOT_CAPABILITY", "dryrun")
	cfg, err := NewLoader("", "v1.2.3").Load()
	require.NoError(t, err)

	assert.Equal(t, "v1.2.3", cfg.Version)
	assert.Equal(t, time.Minute, cfg.Reconcile.Interval)
	assert.Equal(t, 30*time.Second, cfg.Reconcile.Grace)
	assert.Equal(t, 2, cfg.Executor.AuthAttempts)
	assert.Equal(t, 5*time.Second, cfg.Executor.AuthBackoff)
	assert.Equal(t, 5*time.Minute, cfg.Executor.TimeoutMargin)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, 3*time.Second, cfg.Browser.JoinDelay)
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
log:
  level: debug
capability: dryrun
reconcile:
  interval: 2m
  grace: 45s
executor:
  authAttempts: 3
store:
  backend: memory
`)
	t.Setenv("MEETBOT_RECONCILE_INTERVAL", "90s")
	t.Setenv("MEETBOT_AUTH_ATTEMPTS", "not-a-number")

	l := NewLoader(path, "dev")
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 90*time.Second, cfg.Reconcile.Interval, "env beats file")
	assert.Equal(t, 45*time.Second, cfg.Reconcile.Grace, "file beats default")
	assert.Equal(t, 3, cfg.Executor.AuthAttempts, "invalid env keeps file value")
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Contains(t, l.ConsumedEnvKeys, "MEETBOT_RECONCILE_INTERVAL")
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "capability: dryrun\npollEvery: 5m\n")
	_, err := NewLoader(path, "dev").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pollEvery")
}

func TestValidate(t *testing.T) {
	base := Defaults()
	base.Capability = "dryrun"
	require.NoError(t, Validate(base))

	tests := []struct {
		name   string
		mutate func(c *AppConfig)
		want   string
	}{
		{"bad level", func(c *AppConfig) { c.Log.Level = "loud" }, "log.level"},
		{"unknown backend", func(c *AppConfig) { c.Store.Backend = "bolt" }, "store.backend"},
		{"postgrest without url", func(c *AppConfig) { c.Store.Backend = "postgrest" }, "store.url"},
		{"tiny interval", func(c *AppConfig) { c.Reconcile.Interval = time.Millisecond }, "reconcile.interval"},
		{"zero auth attempts", func(c *AppConfig) { c.Executor.AuthAttempts = 0 }, "executor.authAttempts"},
		{"chrome without credentials", func(c *AppConfig) { c.Capability = "chrome" }, "credentials"},
		{"unknown capability", func(c *AppConfig) { c.Capability = "firefox" }, "capability"},
		{"bad redis addr", func(c *AppConfig) { c.Lease.RedisAddr = "redis" }, "lease.redisAddr"},
		{"bad ops listen", func(c *AppConfig) { c.Ops.Listen = "8080" }, "ops.listen"},
		{"bad exporter", func(c *AppConfig) { c.Telemetry.Enabled = true; c.Telemetry.Exporter = "zipkin" }, "telemetry.exporter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseStringMasksSecrets(t *testing.T) {
	t.Setenv("MEETBOT_PASSWORD", "hunter2")
	assert.Equal(t, "hunter2", ParseString("MEETBOT_PASSWORD", ""))
	assert.True(t, isSensitive("MEETBOT_STORE_API_KEY"))
	assert.False(t, isSensitive("MEETBOT_STORE_PATH"))
}

func TestConfigHolderWatchReloads(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "capability: dryrun\nreconcile:\n  interval: 1m\n")
	loader := NewLoader(path, "dev")
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewConfigHolder(initial, loader, path)
	h.debounce = 10 * time.Millisecond
	updates := make(chan AppConfig, 1)
	h.Subscribe(updates)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Watch(ctx) }()

	select {
	case <-h.Watching():
	case <-time.After(5 * time.Second):
		t.Fatal("watcher not started")
	}
	writeFile(t, path, "capability: dryrun\nreconcile:\n  interval: 3m\n")

	select {
	case cfg := <-updates:
		assert.Equal(t, 3*time.Minute, cfg.Reconcile.Interval)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}
	assert.Equal(t, 3*time.Minute, h.Get().Reconcile.Interval)

	cancel()
	require.NoError(t, <-done)
}

func TestConfigHolderReloadKeepsOldOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "capability: dryrun\n")
	loader := NewLoader(path, "dev")
	initial, err := loader.Load()
	require.NoError(t, err)
	h := NewConfigHolder(initial, loader, path)

	writeFile(t, path, "capability: firefox\n")
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, "dryrun", h.Get().Capability)
}

func TestRestartRequired(t *testing.T) {
	a := Defaults()
	b := a
	b.Reconcile.Interval = time.Hour
	assert.Empty(t, RestartRequired(a, b))
	b.Ops.Listen = ":9090"
	assert.Equal(t, []string{"ops"}, RestartRequired(a, b))
}
