// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Validate checks cross-field constraints. All problems are reported at once.
func Validate(cfg AppConfig) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		fail("log.level: %q is not a log level", cfg.Log.Level)
	}

	switch cfg.Store.Backend {
	case "sqlite":
		if cfg.Store.Path == "" {
			fail("store.path: required for sqlite backend")
		}
	case "memory":
	case "postgrest":
		u, err := url.Parse(cfg.Store.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			fail("store.url: %q is not an http(s) url", cfg.Store.URL)
		}
	default:
		fail("store.backend: unknown backend %q", cfg.Store.Backend)
	}

	if cfg.Reconcile.Interval < time.Second {
		fail("reconcile.interval: must be at least 1s, got %s", cfg.Reconcile.Interval)
	}
	if cfg.Reconcile.Grace < 0 {
		fail("reconcile.grace: must not be negative")
	}

	if cfg.Executor.AuthAttempts < 1 {
		fail("executor.authAttempts: must be at least 1")
	}
	if cfg.Executor.AuthBackoff < 0 {
		fail("executor.authBackoff: must not be negative")
	}
	if cfg.Executor.TimeoutMargin <= 0 {
		fail("executor.timeoutMargin: must be positive")
	}
	if cfg.Executor.StatusWriteAttempts < 1 {
		fail("executor.statusWriteAttempts: must be at least 1")
	}
	if cfg.Executor.LaunchRate < 0 || cfg.Executor.LaunchBurst < 0 {
		fail("executor.launchRate/launchBurst: must not be negative")
	}

	switch cfg.Capability {
	case "chrome":
		if cfg.Credentials.Email == "" || cfg.Credentials.Password == "" {
			fail("credentials: email and password are required for the chrome capability")
		}
		if cfg.Recorder.OutputDir == "" {
			fail("recorder.outputDir: required")
		}
	case "dryrun":
	default:
		fail("capability: unknown capability %q (supported: chrome, dryrun)", cfg.Capability)
	}

	if cfg.Lease.RedisAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.Lease.RedisAddr); err != nil {
			fail("lease.redisAddr: %v", err)
		}
		if cfg.Lease.TTL < time.Second {
			fail("lease.ttl: must be at least 1s")
		}
	}

	if cfg.Shutdown.DrainTimeout <= 0 {
		fail("shutdown.drainTimeout: must be positive")
	}
	if cfg.Shutdown.FinalizeGrace < 0 {
		fail("shutdown.finalizeGrace: must not be negative")
	}

	if cfg.Ops.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.Ops.Listen); err != nil {
			fail("ops.listen: %v", err)
		}
	}

	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.Exporter != "grpc" && cfg.Telemetry.Exporter != "http" {
			fail("telemetry.exporter: %q (supported: grpc, http)", cfg.Telemetry.Exporter)
		}
		if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
			fail("telemetry.samplingRate: must be within [0, 1]")
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
