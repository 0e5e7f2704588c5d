// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"log/slog"
	"os"

	"github.com/openclaw-dev/openclaw-gate/internal/appconfig"
	gateerr "github.com/openclaw-dev/openclaw-gate/pkg/errors"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root openclaw-gate command with all subcommands
// registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "openclaw-gate",
		Short:         "openclaw-gate — provenance and taint-tracking policy gate for agent tool calls",
		Long:          "openclaw-gate sits between an autonomous agent harness and its tools, tracking data provenance across a session and denying or confirming tool calls a declarative policy flags as risky.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initLogging(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to appconfig file")

	root.AddCommand(
		newValidateCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)

	return root
}

// initLogging loads appconfig and configures the default slog logger from
// its log_level, so every subcommand logs at the operator's configured
// level without re-deriving it.
func initLogging(cmd *cobra.Command) error {
	cfgPath, _ := cmd.Flags().GetString("config")

	cfg, err := appconfig.Load(cfgPath)
	if err != nil {
		return gateerr.Wrap(err, gateerr.CodeCLISetupFailure, "loading appconfig")
	}

	levelInt, err := appconfig.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return gateerr.Wrap(err, gateerr.CodeCLISetupFailure, "parsing log level")
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(levelInt),
	})))

	return nil
}
