// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

// Package daemon supervises the long-running process: the reconcile loop,
// the optional ops server, config reloads and the two-phase shutdown of
// in-flight sessions.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/maccrin/meetbot/internal/config"
	xlog "github.com/maccrin/meetbot/internal/log"
)

// Scheduler is the part of the job scheduler the daemon drives on shutdown.
type Scheduler interface {
	Drain(ctx context.Context) error
	Abort(ctx context.Context) error
}

type Reconciler interface {
	Run(ctx context.Context) error
	SetInterval(d time.Duration)
}

type Server interface {
	Run(ctx context.Context) error
}

// Deps are the components an App runs. Holder and Ops are optional.
type Deps struct {
	Scheduler  Scheduler
	Reconciler Reconciler
	Ops        Server
	Holder     *config.ConfigHolder

	DrainTimeout  time.Duration
	FinalizeGrace time.Duration
}

func (d Deps) Validate() error {
	if d.Scheduler == nil {
		return ErrMissingScheduler
	}
	if d.Reconciler == nil {
		return ErrMissingReconciler
	}
	return nil
}

type App struct {
	deps         Deps
	hooks        hooks
	logger       zerolog.Logger
	reloadSignal os.Signal
}

func NewApp(deps Deps) (*App, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	if deps.DrainTimeout <= 0 {
		deps.DrainTimeout = 2 * time.Minute
	}
	if deps.FinalizeGrace <= 0 {
		deps.FinalizeGrace = 30 * time.Second
	}
	return &App{
		deps:         deps,
		logger:       xlog.WithComponent("daemon"),
		reloadSignal: syscall.SIGHUP,
	}, nil
}

// RegisterShutdownHook adds cleanup that runs after sessions drained.
func (a *App) RegisterShutdownHook(name string, hook ShutdownHook) {
	a.hooks.add(name, hook)
}

// Run blocks until ctx ends or a component fails, then stops ticking,
// drains sessions and runs the shutdown hooks. A nil result means every
// session finished within the drain timeout.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info().Str(xlog.FieldEvent, "daemon.started").Msg("daemon started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.deps.Reconciler.Run(gctx) })

	if a.deps.Ops != nil {
		g.Go(func() error {
			if err := a.deps.Ops.Run(gctx); err != nil {
				return fmt.Errorf("ops server: %w", err)
			}
			return nil
		})
	}

	if h := a.deps.Holder; h != nil {
		g.Go(func() error {
			if err := h.Watch(gctx); err != nil {
				a.logger.Warn().Err(err).Str(xlog.FieldEvent, "config.watcher_failed").Msg("config watcher stopped")
			}
			return nil
		})
		g.Go(func() error { return a.applyReloads(gctx, h) })
		if a.reloadSignal != nil {
			g.Go(func() error { return a.reloadOnSignal(gctx, h) })
		}
	}

	runErr := g.Wait()
	if runErr != nil {
		a.logger.Error().Err(runErr).Str(xlog.FieldEvent, "daemon.component_failed").Msg("component failed, shutting down")
	} else {
		a.logger.Info().Str(xlog.FieldEvent, "daemon.stopping").Msg("shutdown requested")
	}

	drainErr := a.drain()

	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	hookErr := a.hooks.run(hctx, a.logger)

	err := errors.Join(runErr, drainErr, hookErr)
	if err != nil {
		a.logger.Error().Err(err).Str(xlog.FieldEvent, "daemon.stopped").Msg("daemon stopped with errors")
		return err
	}
	a.logger.Info().Str(xlog.FieldEvent, "daemon.stopped").Msg("daemon stopped cleanly")
	return nil
}

// drain waits for running sessions, then force-cancels the rest and gives
// them the finalize grace to record their cancelled status.
func (a *App) drain() error {
	sched := a.deps.Scheduler
	dctx, cancel := context.WithTimeout(context.Background(), a.deps.DrainTimeout)
	defer cancel()
	err := sched.Drain(dctx)
	if err == nil {
		a.logger.Info().Str(xlog.FieldEvent, "daemon.drained").Msg("all sessions finished")
		return nil
	}

	a.logger.Warn().Err(err).
		Str(xlog.FieldEvent, "daemon.drain_timeout").
		Dur("drain_timeout", a.deps.DrainTimeout).
		Msg("sessions still running, force-cancelling")
	gctx, gcancel := context.WithTimeout(context.Background(), a.deps.FinalizeGrace)
	defer gcancel()
	if aerr := sched.Abort(gctx); aerr != nil {
		a.logger.Error().Err(aerr).Str(xlog.FieldEvent, "daemon.finalize_timeout").
			Msg("sessions did not finalize after cancellation")
		return fmt.Errorf("%w: %w", ErrDrainTimeout, aerr)
	}
	return fmt.Errorf("%w: %w", ErrDrainTimeout, err)
}

// applyReloads pushes hot-reloadable settings into the running components.
func (a *App) applyReloads(ctx context.Context, h *config.ConfigHolder) error {
	ch := make(chan config.AppConfig, 1)
	h.Subscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg := <-ch:
			if err := xlog.SetLevel(cfg.Log.Level); err != nil {
				a.logger.Warn().Err(err).Str(xlog.FieldEvent, "config.apply_failed").Msg("invalid log level")
			}
			a.deps.Reconciler.SetInterval(cfg.Reconcile.Interval)
			a.logger.Info().Str(xlog.FieldEvent, "config.applied").
				Str("log_level", cfg.Log.Level).
				Dur("reconcile_interval", cfg.Reconcile.Interval).
				Msg("applied reloaded config")
		}
	}
}

func (a *App) reloadOnSignal(ctx context.Context, h *config.ConfigHolder) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, a.reloadSignal)
	defer signal.Stop(sig)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sig:
			a.logger.Info().Str(xlog.FieldEvent, "config.reload_signal").
				Str("signal", a.reloadSignal.String()).
				Msg("received reload signal")
			_ = h.Reload(ctx)
		}
	}
}
