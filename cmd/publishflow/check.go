/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"chainguard.dev/publishflow/internal/report"
	"chainguard.dev/publishflow/plugintest"
	"chainguard.dev/publishflow/publish"
	"chainguard.dev/publishflow/publish/check"
	"chainguard.dev/publishflow/publish/extract"
	"chainguard.dev/publishflow/publish/validate"
	"chainguard.dev/publishflow/registry"
	"github.com/spf13/cobra"
)

// errInvalid makes the check command exit non-zero for a rejected submission.
var errInvalid = errors.New("submission is invalid")

type checkOptions struct {
	kind             string
	skipTest         bool
	output           string
	registryPath     string
	pluginTestPath   string
	author           string
	authorID         int64
	storeAdaptersURL string
	rateLimit        float64
}

func newCheckCmd() *cobra.Command {
	var opts checkOptions

	cmd := &cobra.Command{
		Use:   "check BODY_FILE",
		Short: "Validate an issue body locally",
		Long: `Validate an issue body the same way the workflow does, without touching
GitHub. Use "-" to read the body from stdin. Pass --registry to check for
duplicates against a local registry file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.kind, "kind", "k", "", "Listing kind: Bot, Adapter or Plugin")
	cmd.Flags().BoolVar(&opts.skipTest, "skip-test", false, "Read plugin metadata from the body instead of a test result")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "table", "Output format: table or yaml")
	cmd.Flags().StringVar(&opts.registryPath, "registry", "", "Registry file to check duplicates against")
	cmd.Flags().StringVar(&opts.pluginTestPath, "plugin-test", "", "Plugin test result JSON")
	cmd.Flags().StringVar(&opts.author, "author", "", "Submitter login")
	cmd.Flags().Int64Var(&opts.authorID, "author-id", 0, "Submitter account ID")
	cmd.Flags().StringVar(&opts.storeAdaptersURL, "store-adapters-url", "", "Override the published adapter list")
	cmd.Flags().Float64Var(&opts.rateLimit, "rate-limit", 0, "Maximum URL probes per second, 0 for unlimited")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func runCheck(cmd *cobra.Command, bodyPath string, opts checkOptions) error {
	ctx := cmd.Context()

	kind, ok := publish.ParseKind(opts.kind)
	if !ok {
		return fmt.Errorf("unknown kind %q", opts.kind)
	}
	write, err := writer(opts.output)
	if err != nil {
		return err
	}

	body, err := readBody(cmd.InOrStdin(), bodyPath)
	if err != nil {
		return err
	}
	if kind == publish.KindPlugin {
		// The registry loads this block as dotenv once the plugin is merged.
		if _, err := plugintest.ParseConfig(extract.Config(body)); err != nil {
			return err
		}
	}

	vctx := &publish.Context{
		PreviousData: []publish.Entry{},
		SkipTest:     opts.skipTest,
		Submitter:    publish.Submitter{Login: opts.author, ID: opts.authorID},
	}
	if opts.registryPath != "" {
		if vctx.PreviousData, err = readEntries(opts.registryPath); err != nil {
			return err
		}
	}
	if opts.pluginTestPath != "" {
		if vctx.Test, err = readPluginTest(opts.pluginTestPath); err != nil {
			return err
		}
	}

	if opts.rateLimit < 0 {
		return fmt.Errorf("--rate-limit must not be negative, got %v", opts.rateLimit)
	}
	checker := check.New(checkerOptions(opts.storeAdaptersURL, opts.rateLimit, 1)...)

	raw := extract.Extract(body, kind, extract.WithSkipTest(opts.skipTest))
	res := validate.Validate(ctx, kind, raw, vctx, checker)
	if err := write(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if !res.Valid {
		return errInvalid
	}
	return nil
}

func writer(format string) (func(io.Writer, publish.Result) error, error) {
	switch format {
	case "table":
		return report.Table, nil
	case "yaml":
		return report.YAML, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

func readBody(stdin io.Reader, path string) (string, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}
	return string(b), nil
}

func readEntries(path string) ([]publish.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening registry: %w", err)
	}
	defer f.Close()
	s, err := registry.Load(f)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return s.Entries()
}

func readPluginTest(path string) (*plugintest.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening plugin test result: %w", err)
	}
	defer f.Close()
	res, err := plugintest.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return res, nil
}
