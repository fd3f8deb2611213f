/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package removereconciler

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"chainguard.dev/publishflow/internal/lifecycle"
	"chainguard.dev/publishflow/publish"
	"chainguard.dev/publishflow/reconcilers/githubreconciler"
	"chainguard.dev/publishflow/reconcilers/githubreconciler/changemanager"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
)

// maintainers are the author associations whose approval merges a removal.
var maintainers = []string{"OWNER", "MEMBER"}

// reconcileReview merges a removal pull request once a maintainer approves
// it, rebuilding the branch first when it no longer merges cleanly.
func (r *Reconciler) reconcileReview(ctx context.Context, ev *githubreconciler.Event, gh *github.Client) error {
	log := clog.FromContext(ctx)
	review := ev.Review

	switch {
	case ev.Action != "submitted":
		log.With("action", ev.Action).Info("Ignoring review action")
		return nil
	case !slices.Contains(ev.Labels(), publish.RemoveLabel):
		log.Info("Pull request is not a removal, skipping")
		return nil
	case !slices.Contains(maintainers, review.GetAuthorAssociation()):
		log.With("association", review.GetAuthorAssociation()).Info("Reviewer is not a maintainer, skipping")
		return nil
	case !strings.EqualFold(review.GetState(), "approved"):
		log.With("state", review.GetState()).Info("Review is not an approval, skipping")
		return nil
	}

	res := ev.Resource()
	repo := changemanager.NewRepository(gh, res.Owner, res.Repo)
	pr, err := repo.PullRequest(ctx, res.Number)
	if err != nil {
		return err
	}

	if !pr.GetMergeable() {
		log.Infof("PR #%d is not mergeable, re-applying it first", res.Number)
		lease, err := r.lease(ctx, res)
		if err != nil {
			return fmt.Errorf("acquire lease: %w", err)
		}
		defer returnLease(ctx, lease)
		if err := lifecycle.ResolveConflicts(ctx, []*github.PullRequest{pr}, r.reapply(gh, res, lease)); err != nil {
			return err
		}
	}

	if err := repo.Merge(ctx, res.Number, MergeMethod); err != nil {
		return err
	}
	lifecycle.FlowRemove.Enter(ctx, lifecycle.StateMerged)
	return nil
}
