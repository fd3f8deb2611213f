/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"chainguard.dev/publishflow/internal/lifecycle"
	"chainguard.dev/publishflow/internal/metrics"
	"chainguard.dev/publishflow/internal/poll"
	"chainguard.dev/publishflow/publish"
	"chainguard.dev/publishflow/publish/check"
	"chainguard.dev/publishflow/reconcilers/githubreconciler"
	"chainguard.dev/publishflow/reconcilers/githubreconciler/clonemanager"
	"chainguard.dev/publishflow/reconcilers/publishreconciler"
	"chainguard.dev/publishflow/reconcilers/removereconciler"
	"chainguard.dev/publishflow/registry"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

type config struct {
	EventName string `env:"GITHUB_EVENT_NAME,required"`
	EventPath string `env:"GITHUB_EVENT_PATH,required"`

	Repository string `env:"GITHUB_REPOSITORY"`
	ServerURL  string `env:"GITHUB_SERVER_URL,default=https://github.com"`
	APIURL     string `env:"GITHUB_API_URL,default=https://api.github.com"`
	RunID      string `env:"GITHUB_RUN_ID"`

	// Either a token or a GitHub App is needed. The App wins when both are
	// set so that pushes trigger other workflows.
	Token         string `env:"GITHUB_TOKEN"`
	AppID         int64  `env:"APP_ID"`
	AppPrivateKey string `env:"APP_PRIVATE_KEY"`

	Identity           string `env:"GIT_IDENTITY,default=publishflow[bot]"`
	BaseBranch         string `env:"BASE_BRANCH,default=master"`
	RegistryRepository string `env:"REGISTRY_REPOSITORY"`

	Paths registry.Paths

	PluginTestResultPath string        `env:"PLUGIN_TEST_RESULT_PATH"`
	StoreAdaptersURL     string        `env:"STORE_ADAPTERS_URL"`
	PushgatewayURL       string        `env:"PUSHGATEWAY_URL"`
	DispatchWait         time.Duration `env:"DISPATCH_WAIT,default=5s"`
	DispatchAttempts     int           `env:"DISPATCH_ATTEMPTS,default=5"`

	// ProbeRateLimit caps homepage and store probes per second. Zero means
	// unlimited.
	ProbeRateLimit float64 `env:"PROBE_RATE_LIMIT"`
	ProbeBurst     int     `env:"PROBE_BURST,default=1"`
}

// loadConfig reads the workflow environment.
func loadConfig(ctx context.Context, lookuper envconfig.Lookuper) (config, error) {
	var cfg config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return config{}, fmt.Errorf("processing config: %w", err)
	}
	if cfg.Token == "" && cfg.AppID == 0 {
		return config{}, errors.New("one of GITHUB_TOKEN or APP_ID must be set")
	}
	if cfg.AppID != 0 && cfg.AppPrivateKey == "" {
		return config{}, errors.New("APP_PRIVATE_KEY is required with APP_ID")
	}
	if cfg.ProbeRateLimit < 0 || cfg.ProbeBurst < 1 {
		return config{}, errors.New("PROBE_RATE_LIMIT must not be negative and PROBE_BURST must be positive")
	}
	return cfg, nil
}

// checkerOptions configures the probes shared by the handle and check
// commands.
func checkerOptions(storeAdaptersURL string, limit float64, burst int) []check.Option {
	var opts []check.Option
	if storeAdaptersURL != "" {
		opts = append(opts, check.WithStoreAdaptersURL(storeAdaptersURL))
	}
	if limit > 0 {
		opts = append(opts, check.WithRateLimit(rate.Limit(limit), burst))
	}
	return opts
}

// actionURL links the current workflow run, or is empty outside Actions.
func (c config) actionURL() string {
	if c.Repository == "" || c.RunID == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/actions/runs/%s", strings.TrimSuffix(c.ServerURL, "/"), c.Repository, c.RunID)
}

func (c config) tokenSource() githubreconciler.TokenSourceFunc {
	if c.AppID != 0 {
		return func(ctx context.Context, owner, repo string) (oauth2.TokenSource, error) {
			return githubreconciler.NewAppTokenSource(ctx, c.APIURL, c.AppID, []byte(c.AppPrivateKey), owner, repo)
		}
	}
	return func(context.Context, string, string) (oauth2.TokenSource, error) {
		return githubreconciler.NewStaticTokenSource(c.Token), nil
	}
}

type reconciler interface {
	Reconcile(ctx context.Context, ev *githubreconciler.Event, gh *github.Client) error
}

// wantsRemoval reports whether the event belongs to the remove flow. Reviews
// only matter for removals, which wait for a maintainer's approval.
func wantsRemoval(ev *githubreconciler.Event) bool {
	if ev.Name == githubreconciler.EventPullRequestReview {
		return true
	}
	return slices.Contains(ev.Labels(), publish.RemoveLabel)
}

func newHandleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "handle",
		Short: "Handle the GitHub event of the current workflow run",
		Long: `Handle reads the event GitHub Actions delivered (GITHUB_EVENT_NAME and
GITHUB_EVENT_PATH) and reviews, updates, merges or cleans up the listing
request it belongs to.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, envconfig.OsLookuper())
			if err != nil {
				return err
			}
			return handle(ctx, cfg)
		},
	}
}

func handle(ctx context.Context, cfg config) error {
	ev, err := githubreconciler.ReadEvent(cfg.EventName, cfg.EventPath)
	if err != nil {
		return err
	}
	ctx = clog.WithValues(ctx, "event", ev.Name, "action", ev.Action, "repo", ev.Owner+"/"+ev.Repo)

	clients := githubreconciler.NewClientCache(cfg.tokenSource(), githubreconciler.WithAPIURL(cfg.APIURL))
	gh, err := clients.Get(ctx, ev.Owner, ev.Repo)
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	r, err := newReconciler(ctx, cfg, clients, ev)
	if err != nil {
		return err
	}
	recErr := r.Reconcile(ctx, ev, gh)

	if cfg.PushgatewayURL != "" {
		if err := metrics.Push(ctx, cfg.PushgatewayURL); err != nil {
			clog.FromContext(ctx).With("error", err).Warn("Failed to push metrics")
		}
	}
	return recErr
}

func newReconciler(ctx context.Context, cfg config, clients *githubreconciler.ClientCache, ev *githubreconciler.Event) (reconciler, error) {
	cloneMeta := clonemanager.NewMeta(ctx, clients.TokenSource, cfg.Identity,
		clonemanager.WithRemoteURL(clonemanager.ServerRemoteURL(cfg.ServerURL)))
	cm, err := lifecycle.NewChangeManager(cfg.Identity)
	if err != nil {
		return nil, fmt.Errorf("creating change manager: %w", err)
	}

	if wantsRemoval(ev) {
		clog.FromContext(ctx).Info("Handling removal request")
		return removereconciler.New(cm, cloneMeta,
			removereconciler.WithBaseBranch(cfg.BaseBranch),
			removereconciler.WithPaths(cfg.Paths),
		)
	}

	checkOpts := checkerOptions(cfg.StoreAdaptersURL, cfg.ProbeRateLimit, cfg.ProbeBurst)
	opts := []publishreconciler.Option{
		publishreconciler.WithBaseBranch(cfg.BaseBranch),
		publishreconciler.WithPaths(cfg.Paths),
		publishreconciler.WithChecker(check.New(checkOpts...)),
		publishreconciler.WithActionURL(cfg.actionURL()),
		publishreconciler.WithRegistryRepository(cfg.RegistryRepository),
		publishreconciler.WithPollConfig(poll.Config{
			Attempts: cfg.DispatchAttempts,
			Interval: cfg.DispatchWait,
		}),
	}
	if cfg.PluginTestResultPath != "" {
		res, err := readPluginTest(cfg.PluginTestResultPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, publishreconciler.WithPluginTest(res))
	}
	return publishreconciler.New(cm, cloneMeta, opts...)
}
