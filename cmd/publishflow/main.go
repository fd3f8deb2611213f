/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main is the publishflow command. It reviews store listing requests
// from a GitHub Actions workflow and checks submissions locally.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		clog.FatalContextf(ctx, "publishflow: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "publishflow",
		Short:         "Review store listing requests filed as GitHub issues",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := clog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			cmd.SetContext(clog.WithLogger(cmd.Context(), logger))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output")

	root.AddCommand(newHandleCmd(), newCheckCmd(), newSchemaCmd())
	return root
}
