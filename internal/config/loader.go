// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

// Package config loads the daemon configuration with precedence
// defaults < YAML file < MEETBOT_* environment, then validates it.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment key the loader reads.
const EnvPrefix = "MEETBOT_"

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath string
	version    string
	// ConsumedEnvKeys records every key the loader looked up.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader. An empty path means env only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, current string) string {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseString(EnvPrefix+key, current)
}

func (l *Loader) envInt(key string, current int) int {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseInt(EnvPrefix+key, current)
}

func (l *Loader) envBool(key string, current bool) bool {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseBool(EnvPrefix+key, current)
}

func (l *Loader) envDuration(key string, current time.Duration) time.Duration {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseDuration(EnvPrefix+key, current)
}

func (l *Loader) envFloat(key string, current float64) float64 {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseFloat(EnvPrefix+key, current)
}

// Load parses the file strictly, applies the environment and validates.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()
	cfg.Version = l.version

	if l.configPath != "" {
		if err := l.loadFile(&cfg); err != nil {
			return AppConfig{}, err
		}
	}
	l.mergeEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (l *Loader) loadFile(cfg *AppConfig) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", l.configPath, err)
	}
	return nil
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		Log: LogConfig{Level: "info", Service: "meetbot"},
		Store: StoreConfig{
			Backend:          "sqlite",
			Path:             "meetbot.db",
			Table:            "meetings",
			Timeout:          10 * time.Second,
			BreakerThreshold: 5,
			BreakerCooldown:  2 * time.Minute,
		},
		Reconcile: ReconcileConfig{Interval: time.Minute, Grace: 30 * time.Second},
		Executor: ExecutorConfig{
			AuthAttempts:        2,
			AuthBackoff:         5 * time.Second,
			TimeoutMargin:       5 * time.Minute,
			StatusWriteAttempts: 3,
			StatusWriteBackoff:  2 * time.Second,
			LaunchRate:          1,
			LaunchBurst:         2,
		},
		Capability: "chrome",
		Browser: BrowserConfig{
			Headless:    true,
			DisplayName: "Recording Bot",
			PulseSink:   true,
			StepTimeout: 30 * time.Second,
			JoinRetries: 3,
			JoinDelay:   3 * time.Second,
			Selectors: SelectorsConfig{
				LoginURL:     "https://accounts.google.com/",
				Email:        `input[type="email"]`,
				EmailNext:    "#identifierNext",
				Password:     `input[type="password"]`,
				PasswordNext: "#passwordNext",
				NameInput:    `input[type="text"][aria-label="Your name"]`,
				JoinButtons: []string{
					`[jsname="Cuz2Ue"]`,
					`button[jsname="A5il2e"]`,
					`button[jsname="QgSmzd"]`,
				},
				JoinTexts:     []string{"Join now", "Ask to join"},
				InMeeting:     `[aria-label="Leave call"]`,
				MediaToggles:  []string{"camera", "microphone"},
				LoggedInProbe: `a[href^="https://accounts.google.com/SignOutOptions"]`,
			},
		},
		Recorder: RecorderConfig{
			OutputDir:  "recordings",
			FFmpegPath: "ffmpeg",
			Pulse:      true,
			StopGrace:  10 * time.Second,
			Bitrate:    "96k",
		},
		Lease:    LeaseConfig{TTL: 30 * time.Second},
		Shutdown: ShutdownConfig{DrainTimeout: 2 * time.Minute, FinalizeGrace: 30 * time.Second},
		Ops:      OpsConfig{ReconcileRateLimit: 10},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "production",
		},
	}
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.Log.Level = l.envString("LOG_LEVEL", cfg.Log.Level)

	cfg.Store.Backend = l.envString("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Path = l.envString("STORE_PATH", cfg.Store.Path)
	cfg.Store.URL = l.envString("STORE_URL", cfg.Store.URL)
	cfg.Store.APIKey = l.envString("STORE_API_KEY", cfg.Store.APIKey)
	cfg.Store.Table = l.envString("STORE_TABLE", cfg.Store.Table)

	cfg.Reconcile.Interval = l.envDuration("RECONCILE_INTERVAL", cfg.Reconcile.Interval)
	cfg.Reconcile.Grace = l.envDuration("RECONCILE_GRACE", cfg.Reconcile.Grace)

	cfg.Executor.AuthAttempts = l.envInt("AUTH_ATTEMPTS", cfg.Executor.AuthAttempts)
	cfg.Executor.AuthBackoff = l.envDuration("AUTH_BACKOFF", cfg.Executor.AuthBackoff)
	cfg.Executor.TimeoutMargin = l.envDuration("TIMEOUT_MARGIN", cfg.Executor.TimeoutMargin)
	cfg.Executor.LaunchRate = l.envFloat("LAUNCH_RATE", cfg.Executor.LaunchRate)

	cfg.Capability = l.envString("CAPABILITY", cfg.Capability)
	cfg.Browser.ExecPath = l.envString("CHROME_PATH", cfg.Browser.ExecPath)
	cfg.Browser.Headless = l.envBool("HEADLESS", cfg.Browser.Headless)
	cfg.Browser.ProfileRoot = l.envString("PROFILE_ROOT", cfg.Browser.ProfileRoot)

	cfg.Credentials.Email = l.envString("EMAIL", cfg.Credentials.Email)
	cfg.Credentials.Password = l.envString("PASSWORD", cfg.Credentials.Password)

	cfg.Recorder.OutputDir = l.envString("OUTPUT_DIR", cfg.Recorder.OutputDir)
	cfg.Recorder.FFmpegPath = l.envString("FFMPEG_PATH", cfg.Recorder.FFmpegPath)
	cfg.Recorder.Pulse = l.envBool("PULSE", cfg.Recorder.Pulse)

	cfg.Lease.RedisAddr = l.envString("REDIS_ADDR", cfg.Lease.RedisAddr)
	cfg.Lease.RedisPassword = l.envString("REDIS_PASSWORD", cfg.Lease.RedisPassword)
	cfg.Lease.Owner = l.envString("LEASE_OWNER", cfg.Lease.Owner)

	cfg.Shutdown.DrainTimeout = l.envDuration("DRAIN_TIMEOUT", cfg.Shutdown.DrainTimeout)

	cfg.Ops.Listen = l.envString("OPS_LISTEN", cfg.Ops.Listen)

	cfg.Telemetry.Enabled = l.envBool("OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("OTEL_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("OTEL_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("OTEL_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}
