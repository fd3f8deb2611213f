/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package removereconciler

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"chainguard.dev/publishflow/internal/lifecycle"
	"chainguard.dev/publishflow/publish"
	"chainguard.dev/publishflow/publish/extract"
	"chainguard.dev/publishflow/reconcilers/githubreconciler"
	"chainguard.dev/publishflow/reconcilers/githubreconciler/changemanager"
	"chainguard.dev/publishflow/reconcilers/githubreconciler/clonemanager"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
)

// reconcileClosed closes the issue of a removal pull request and deletes its
// branch. After a merge the other open removals are rebuilt on the new base.
func (r *Reconciler) reconcileClosed(ctx context.Context, ev *githubreconciler.Event, gh *github.Client) error {
	log := clog.FromContext(ctx)
	flow := lifecycle.FlowRemove
	flow.Enter(ctx, lifecycle.StateReceived)

	pr := ev.PullRequest
	if !slices.Contains(ev.Labels(), publish.RemoveLabel) {
		log.Info("Pull request is not a removal, skipping")
		flow.Enter(ctx, lifecycle.StateSkipped)
		return nil
	}

	res := ev.Resource()
	if _, ok, err := lifecycle.CloseLinkedIssue(ctx, gh, res, pr); err != nil {
		return fmt.Errorf("closing issue: %w", err)
	} else if !ok {
		log.With("branch", pr.GetHead().GetRef()).Info("Pull request has no linked issue, skipping")
		flow.Enter(ctx, lifecycle.StateSkipped)
		return nil
	}
	flow.Enter(ctx, lifecycle.StateResolved)

	lease, err := r.lease(ctx, res)
	if err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	defer returnLease(ctx, lease)

	lifecycle.DeleteBranch(ctx, lease, pr.GetHead().GetRef())

	if !pr.GetMerged() {
		log.Info("Pull request closed without merging")
		return nil
	}
	flow.Enter(ctx, lifecycle.StateMerged)

	prs, err := changemanager.NewRepository(gh, res.Owner, res.Repo).PullRequestsWithLabel(ctx, publish.RemoveLabel)
	if err != nil {
		return err
	}
	prs = slices.DeleteFunc(prs, func(p *github.PullRequest) bool {
		return p.GetNumber() == pr.GetNumber()
	})
	return lifecycle.ResolveConflicts(ctx, prs, r.reapply(gh, res, lease))
}

// reapply re-runs the removal requested by the issue of a pull request on top
// of the current base. Requests that no longer match a listing are left for
// a maintainer.
func (r *Reconciler) reapply(gh *github.Client, res *githubreconciler.Resource, lease *clonemanager.Lease) lifecycle.ApplyFunc {
	return func(ctx context.Context, c lifecycle.Candidate) (bool, error) {
		issue, err := changemanager.NewIssue(gh, &githubreconciler.Resource{
			Owner:  res.Owner,
			Repo:   res.Repo,
			Number: c.Issue,
			Type:   githubreconciler.ResourceTypeIssue,
		}).Get(ctx)
		if err != nil {
			return false, err
		}
		homepage, _ := extract.Field(issue.GetBody(), extract.LabelRemoveHomepage)

		pushed, err := r.push(ctx, lease, c.PullRequest.GetHead().GetRef(), issue.GetUser(), c.Kind, homepage, c.Issue)
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAuthorMismatch) {
			clog.FromContext(ctx).Warnf("Cannot re-apply PR #%d: %v", c.PullRequest.GetNumber(), err)
			return false, nil
		}
		return pushed, err
	}
}
