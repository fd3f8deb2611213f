/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package publishreconciler

import (
	"context"
	"errors"
	"fmt"

	"chainguard.dev/publishflow/internal/lifecycle"
	"chainguard.dev/publishflow/internal/poll"
	"chainguard.dev/publishflow/plugintest"
	"chainguard.dev/publishflow/publish/check"
	"chainguard.dev/publishflow/reconcilers/githubreconciler"
	"chainguard.dev/publishflow/reconcilers/githubreconciler/changemanager"
	"chainguard.dev/publishflow/reconcilers/githubreconciler/clonemanager"
	"chainguard.dev/publishflow/registry"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
)

// DispatchEventType is the repository_dispatch event sent after a listing
// merges.
const DispatchEventType = "registry_update"

// Reconciler reviews publish requests and keeps their pull requests, issue
// comments and registry dispatches in sync.
type Reconciler struct {
	changeManager *changemanager.CM[lifecycle.PRData]
	cloneMeta     *clonemanager.Meta
	checker       *check.Checker

	base      string
	paths     registry.Paths
	test      *plugintest.Result
	actionURL string
	poll      poll.Config

	// registry receives the dispatch as "owner/repo". Empty means no
	// dispatch is sent.
	registry      string
	registryOwner string
	registryRepo  string
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithBaseBranch sets the branch pull requests target (default: master).
func WithBaseBranch(branch string) Option {
	return func(r *Reconciler) {
		r.base = branch
	}
}

// WithPaths sets where the registry files live.
func WithPaths(paths registry.Paths) Option {
	return func(r *Reconciler) {
		r.paths = paths
	}
}

// WithChecker sets the reachability checker shared by the run.
func WithChecker(c *check.Checker) Option {
	return func(r *Reconciler) {
		r.checker = c
	}
}

// WithPluginTest supplies the sandboxed load test outcome.
func WithPluginTest(res *plugintest.Result) Option {
	return func(r *Reconciler) {
		r.test = res
	}
}

// WithActionURL links the workflow run in comments.
func WithActionURL(u string) Option {
	return func(r *Reconciler) {
		r.actionURL = u
	}
}

// WithPollConfig bounds the wait for a merge to show on the base branch.
func WithPollConfig(cfg poll.Config) Option {
	return func(r *Reconciler) {
		r.poll = cfg
	}
}

// WithRegistryRepository sets the repository receiving registry_update
// dispatches, as "owner/repo".
func WithRegistryRepository(fullName string) Option {
	return func(r *Reconciler) {
		r.registry = fullName
	}
}

// New creates a publish reconciler.
func New(changeManager *changemanager.CM[lifecycle.PRData], cloneMeta *clonemanager.Meta, opts ...Option) (*Reconciler, error) {
	if changeManager == nil {
		return nil, errors.New("change manager cannot be nil")
	}
	if cloneMeta == nil {
		return nil, errors.New("clone meta cannot be nil")
	}

	r := &Reconciler{
		changeManager: changeManager,
		cloneMeta:     cloneMeta,
		base:          "master",
		paths:         registry.DefaultPaths(),
		poll:          poll.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.checker == nil {
		r.checker = check.New()
	}
	if r.registry != "" {
		var err error
		if r.registryOwner, r.registryRepo, err = githubreconciler.SplitRepository(r.registry); err != nil {
			return nil, fmt.Errorf("registry repository: %w", err)
		}
	}
	return r, nil
}

// Reconcile handles one event. Issue events review the submission; closed
// pull requests close the issue, clean up and, once merged, re-apply the
// other open submissions and notify the registry.
func (r *Reconciler) Reconcile(ctx context.Context, ev *githubreconciler.Event, gh *github.Client) error {
	ctx, span := lifecycle.FlowPublish.Start(ctx, ev)
	defer span.End()

	switch {
	case ev.PullRequest != nil:
		if ev.Name != githubreconciler.EventPullRequest || ev.Action != "closed" {
			clog.FromContext(ctx).With("action", ev.Action).Info("Ignoring pull request event")
			return nil
		}
		return r.reconcileClosed(ctx, ev, gh)
	case ev.Issue != nil:
		return r.reconcileIssue(ctx, ev, gh)
	default:
		clog.FromContext(ctx).With("event", ev.Name).Warn("Unexpected event")
		return nil
	}
}

func (r *Reconciler) lease(ctx context.Context, res *githubreconciler.Resource) (*clonemanager.Lease, error) {
	return r.cloneMeta.Lease(ctx, res, r.base)
}

func returnLease(ctx context.Context, lease *clonemanager.Lease) {
	if err := lease.Return(ctx); err != nil {
		clog.FromContext(ctx).With("error", err).Warn("Failed to return lease")
	}
}
