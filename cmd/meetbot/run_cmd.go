// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maccrin/meetbot/internal/config"
	"github.com/maccrin/meetbot/internal/daemon"
	xlog "github.com/maccrin/meetbot/internal/log"
	"github.com/maccrin/meetbot/internal/version"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the reconciler and record scheduled meetings until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, loader, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger := xlog.WithComponent("main")
			logger.Info().
				Str(xlog.FieldEvent, "meetbot.starting").
				Str("version", version.Version).
				Str("commit", version.Commit).
				Str("config", opts.configPath).
				Msg("starting meetbot")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			holder := config.NewConfigHolder(cfg, loader, opts.configPath)
			rt, err := daemon.Build(ctx, holder)
			if err != nil {
				return err
			}
			if err := rt.App.Run(ctx); err != nil {
				return &exitError{code: daemon.ExitCode(err), err: err}
			}
			return nil
		},
	}
}
