// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

// Command meetbot joins scheduled online meetings with an automated browser
// and records their audio.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/maccrin/meetbot/internal/config"
	xlog "github.com/maccrin/meetbot/internal/log"
	"github.com/maccrin/meetbot/internal/version"
)

// exitError carries a specific process exit status.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "meetbot",
		Short:         "Meeting auto-join and recording orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.String(),
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv(config.EnvPrefix+"CONFIG"),
		"path to YAML config file")

	root.AddCommand(
		newRunCmd(opts),
		newVersionCmd(),
		newMeetingsCmd(opts),
		newConfigCmd(opts),
		newStoreCmd(opts),
	)
	return root
}

// loadConfig loads the config and configures logging from it.
func (o *rootOptions) loadConfig() (config.AppConfig, *config.Loader, error) {
	loader := config.NewLoader(o.configPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		return config.AppConfig{}, nil, &exitError{code: 2, err: err}
	}
	xlog.Configure(xlog.Config{Level: cfg.Log.Level, Service: cfg.Log.Service, Version: version.Version, Output: os.Stderr})
	return cfg, loader, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "meetbot "+version.String())
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}
