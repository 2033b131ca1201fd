// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/maccrin/meetbot/internal/daemon"
	"github.com/maccrin/meetbot/internal/domain/meeting/store"
	"github.com/maccrin/meetbot/internal/persistence/sqlite"
)

func newStoreCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Meeting store maintenance",
	}
	var full bool
	verify := &cobra.Command{
		Use:   "verify",
		Short: "Open the store, apply migrations and run a pending query",
		Long: "Open the store, apply migrations and run a pending query. For the sqlite\n" +
			"backend the database file is also checked for corruption.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			st, err := store.Open(cmd.Context(), daemon.StoreConfig(cfg))
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			if err := st.Ping(ctx); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
			pending, err := st.QueryPending(ctx, time.Now())
			if err != nil {
				return fmt.Errorf("query pending: %w", err)
			}

			if cfg.Store.Backend == "sqlite" {
				mode := sqlite.CheckQuick
				if full {
					mode = sqlite.CheckFull
				}
				issues, err := sqlite.VerifyIntegrity(ctx, cfg.Store.Path, mode)
				if err != nil {
					return fmt.Errorf("integrity check: %w", err)
				}
				if len(issues) > 0 {
					for _, issue := range issues {
						fmt.Fprintln(cmd.ErrOrStderr(), issue)
					}
					return fmt.Errorf("integrity check found %d issue(s)", len(issues))
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "store ok, %d upcoming pending meetings\n", len(pending))
			return nil
		},
	}
	verify.Flags().BoolVar(&full, "full", false, "run a full integrity_check instead of quick_check (sqlite)")
	cmd.AddCommand(verify)
	return cmd
}
