/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"encoding/json"
	"fmt"

	"chainguard.dev/publishflow/publish"
	"chainguard.dev/publishflow/registry"
	"github.com/spf13/cobra"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "schema KIND",
		Short:     "Print the JSON Schema of a registry entry",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"Bot", "Adapter", "Plugin"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := publish.ParseKind(args[0])
			if !ok {
				return fmt.Errorf("unknown kind %q", args[0])
			}
			b, err := json.MarshalIndent(registry.Schema(kind), "", "  ")
			if err != nil {
				return fmt.Errorf("encoding schema: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		},
	}
}
