// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/maccrin/meetbot/internal/daemon"
	"github.com/maccrin/meetbot/internal/domain/meeting/model"
	"github.com/maccrin/meetbot/internal/domain/meeting/store"
)

func newMeetingsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meetings",
		Short: "Administer meeting records in the configured store",
	}
	cmd.AddCommand(newMeetingsAddCmd(opts), newMeetingsListCmd(opts))
	return cmd
}

func openStore(cmd *cobra.Command, opts *rootOptions) (store.Store, error) {
	cfg, _, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	return store.Open(cmd.Context(), daemon.StoreConfig(cfg))
}

func newMeetingsAddCmd(opts *rootOptions) *cobra.Command {
	var (
		id       string
		url      string
		start    string
		end      string
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Insert a pending meeting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			startAt, err := time.Parse(time.RFC3339, start)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			var endAt time.Time
			switch {
			case end != "" && duration > 0:
				return errors.New("--end and --duration are mutually exclusive")
			case end != "":
				if endAt, err = time.Parse(time.RFC3339, end); err != nil {
					return fmt.Errorf("--end: %w", err)
				}
			case duration > 0:
				endAt = startAt.Add(duration)
			default:
				return errors.New("one of --end or --duration is required")
			}
			if id == "" {
				id = uuid.NewString()
			}

			m := model.Meeting{ID: id, URL: url, StartTime: startAt.UTC(), EndTime: endAt.UTC(), Status: model.StatusPending}
			if err := m.Validate(); err != nil {
				return err
			}

			st, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Insert(cmd.Context(), m); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), m.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&id, "id", "", "meeting id (default: random uuid)")
	f.StringVar(&url, "url", "", "meeting url")
	f.StringVar(&start, "start", "", "start time, RFC3339")
	f.StringVar(&end, "end", "", "end time, RFC3339")
	f.DurationVar(&duration, "duration", 0, "meeting length, alternative to --end")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func newMeetingsListCmd(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		output string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List meetings, most recent start first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output != "table" && output != "json" {
				return fmt.Errorf("unsupported output %q (use table or json)", output)
			}
			st, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer st.Close()

			meetings, err := st.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(meetings)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tSTART\tEND\tRECORDING\tERROR")
			for _, m := range meetings {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", m.ID, m.Status,
					m.StartTime.Format(time.RFC3339), m.EndTime.Format(time.RFC3339),
					dash(m.RecordingRef), dash(m.ErrorMessage))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table or json")
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
