/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package removereconciler

import (
	"context"
	"errors"

	"chainguard.dev/publishflow/internal/lifecycle"
	"chainguard.dev/publishflow/reconcilers/githubreconciler"
	"chainguard.dev/publishflow/reconcilers/githubreconciler/changemanager"
	"chainguard.dev/publishflow/reconcilers/githubreconciler/clonemanager"
	"chainguard.dev/publishflow/registry"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
)

// MergeMethod is used when an approved removal is merged.
const MergeMethod = "rebase"

// Reconciler handles removal requests: it opens the pull request dropping a
// listing, merges it once a maintainer approves, and cleans up after it
// closes.
type Reconciler struct {
	changeManager *changemanager.CM[lifecycle.PRData]
	cloneMeta     *clonemanager.Meta

	base  string
	paths registry.Paths
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

// New creates a remove reconciler.
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
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Reconcile handles one event.
func (r *Reconciler) Reconcile(ctx context.Context, ev *githubreconciler.Event, gh *github.Client) error {
	ctx, span := lifecycle.FlowRemove.Start(ctx, ev)
	defer span.End()

	switch {
	case ev.Name == githubreconciler.EventPullRequestReview:
		return r.reconcileReview(ctx, ev, gh)
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
