// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"fmt"

	"github.com/maccrin/meetbot/internal/capability"
	"github.com/maccrin/meetbot/internal/config"
	"github.com/maccrin/meetbot/internal/domain/meeting/ports"
	"github.com/maccrin/meetbot/internal/domain/meeting/store"
	"github.com/maccrin/meetbot/internal/executor"
	"github.com/maccrin/meetbot/internal/health"
	"github.com/maccrin/meetbot/internal/lease"
	xlog "github.com/maccrin/meetbot/internal/log"
	"github.com/maccrin/meetbot/internal/ops"
	"github.com/maccrin/meetbot/internal/reconcile"
	"github.com/maccrin/meetbot/internal/resilience"
	"github.com/maccrin/meetbot/internal/schedule"
	"github.com/maccrin/meetbot/internal/telemetry"
)

// Runtime is the wired process, exposed for the CLI and tests.
type Runtime struct {
	App        *App
	Store      store.Store
	Scheduler  *schedule.Scheduler
	Reconciler *reconcile.Reconciler
	Capability string
	Health     *health.Manager
}

// StoreConfig maps the store section of cfg.
func StoreConfig(cfg config.AppConfig) store.Config {
	return store.Config{
		Backend: cfg.Store.Backend,
		Path:    cfg.Store.Path,
		URL:     cfg.Store.URL,
		APIKey:  cfg.Store.APIKey,
		Table:   cfg.Store.Table,
		Timeout: cfg.Store.Timeout,
	}
}

// ExecutorConfig maps the executor and credentials sections of cfg.
func ExecutorConfig(cfg config.AppConfig) executor.Config {
	ec := executor.DefaultConfig()
	e := cfg.Executor
	ec.AuthAttempts = e.AuthAttempts
	ec.AuthBackoff = e.AuthBackoff
	ec.TimeoutMargin = e.TimeoutMargin
	ec.StatusWriteAttempts = e.StatusWriteAttempts
	ec.StatusWriteBackoff = e.StatusWriteBackoff
	ec.LaunchRate = e.LaunchRate
	ec.LaunchBurst = e.LaunchBurst
	ec.Credentials = ports.Credentials{Email: cfg.Credentials.Email, Password: cfg.Credentials.Password}
	return ec
}

// Build wires every component from the holder's current config. On error
// the resources opened so far are released.
func Build(ctx context.Context, holder *config.ConfigHolder) (rt *Runtime, err error) {
	cfg := holder.Get()
	logger := xlog.WithComponent("daemon")

	var cleanup hooks
	defer func() {
		if err != nil {
			_ = cleanup.run(context.WithoutCancel(ctx), logger)
		}
	}()

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Log.Service,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	cleanup.add("telemetry", tp.Shutdown)

	st, err := store.Open(ctx, StoreConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	cleanup.add("store", func(context.Context) error { return st.Close() })

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		return nil, fmt.Errorf("startup checks: %w", err)
	}
	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewPingChecker("store", st.Ping))
	if cfg.Capability == "chrome" {
		hm.RegisterChecker(health.NewWritableDirChecker("recordings", cfg.Recorder.OutputDir))
	}

	pair, err := capability.Select(cfg)
	if err != nil {
		return nil, err
	}
	exec := executor.New(ExecutorConfig(cfg), st, pair.Driver, pair.Recorder)

	var schedOpts []schedule.Option
	if cfg.Lease.RedisAddr != "" {
		locker, lerr := lease.NewRedisLocker(ctx, lease.RedisConfig{
			Addr:     cfg.Lease.RedisAddr,
			Password: cfg.Lease.RedisPassword,
			DB:       cfg.Lease.RedisDB,
			TTL:      cfg.Lease.TTL,
			Owner:    cfg.Lease.Owner,
		})
		if lerr != nil {
			return nil, fmt.Errorf("lease: %w", lerr)
		}
		cleanup.add("lease", func(context.Context) error { return locker.Close() })
		// a lost lease backend degrades to running without claims
		hm.RegisterChecker(health.Informational(health.NewPingChecker("lease", locker.Ping)))
		schedOpts = append(schedOpts, schedule.WithLocker(locker, locker.TTL()/3))
	}
	sched := schedule.New(exec, schedOpts...)

	var recOpts []reconcile.Option
	if cfg.Store.BreakerThreshold > 0 {
		cb := resilience.NewCircuitBreaker("store", cfg.Store.BreakerThreshold, cfg.Store.BreakerCooldown,
			resilience.WithPanicRecovery(true))
		recOpts = append(recOpts, reconcile.WithBreaker(cb))
		hm.RegisterChecker(health.NewCheckFunc("store_breaker", func(context.Context) health.CheckResult {
			if state := cb.State(); state != resilience.StateClosed {
				return health.CheckResult{Status: health.StatusDegraded, Message: string(state)}
			}
			return health.CheckResult{Status: health.StatusHealthy}
		}))
	}
	rec := reconcile.New(reconcile.Config{
		Interval:     cfg.Reconcile.Interval,
		Grace:        cfg.Reconcile.Grace,
		QueryTimeout: cfg.Store.Timeout,
	}, st, sched, recOpts...)

	deps := Deps{
		Scheduler:     sched,
		Reconciler:    rec,
		Holder:        holder,
		DrainTimeout:  cfg.Shutdown.DrainTimeout,
		FinalizeGrace: cfg.Shutdown.FinalizeGrace,
	}
	if cfg.Ops.Listen != "" {
		deps.Ops = ops.New(ops.Config{
			Listen:             cfg.Ops.Listen,
			Version:            cfg.Version,
			ReconcileRateLimit: cfg.Ops.ReconcileRateLimit,
		}, sched, rec, hm)
	}

	app, err := NewApp(deps)
	if err != nil {
		return nil, err
	}
	// hand the opened resources to the app, oldest registered first
	for _, h := range cleanup.items {
		app.RegisterShutdownHook(h.name, h.hook)
	}

	logger.Info().
		Str(xlog.FieldEvent, "daemon.built").
		Str("capability", pair.Name).
		Str("store", cfg.Store.Backend).
		Bool("lease", cfg.Lease.RedisAddr != "").
		Bool("ops", cfg.Ops.Listen != "").
		Msg("runtime assembled")

	return &Runtime{App: app, Store: st, Scheduler: sched, Reconciler: rec, Capability: pair.Name, Health: hm}, nil
}
