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
	"chainguard.dev/publishflow/publish/render"
	"chainguard.dev/publishflow/reconcilers/githubreconciler"
	"chainguard.dev/publishflow/reconcilers/githubreconciler/changemanager"
	"chainguard.dev/publishflow/reconcilers/githubreconciler/clonemanager"
	"chainguard.dev/publishflow/registry"
	"github.com/chainguard-dev/clog"
	gogit "github.com/go-git/go-git/v5"
	"github.com/google/go-github/v84/github"
)

var issueActions = []string{"opened", "reopened", "edited", "created"}

func (r *Reconciler) reconcileIssue(ctx context.Context, ev *githubreconciler.Event, gh *github.Client) error {
	log := clog.FromContext(ctx)
	flow := lifecycle.FlowRemove
	flow.Enter(ctx, lifecycle.StateReceived)

	issue := ev.Issue
	labels := ev.Labels()
	kind, hasKind := publish.KindFromLabels(labels)

	switch {
	case ev.FromBot():
		log.Info("Ignoring event triggered by a bot")
		flow.Enter(ctx, lifecycle.StateSkipped)
		return nil
	case issue.IsPullRequest():
		log.Info("Ignoring comment on a pull request")
		flow.Enter(ctx, lifecycle.StateSkipped)
		return nil
	case !slices.Contains(issueActions, ev.Action):
		log.With("action", ev.Action).Info("Ignoring issue action")
		flow.Enter(ctx, lifecycle.StateSkipped)
		return nil
	case !slices.Contains(labels, publish.RemoveLabel):
		log.Info("Issue is not a removal request, skipping")
		flow.Enter(ctx, lifecycle.StateSkipped)
		return nil
	case issue.GetState() != "open":
		log.Info("Issue is not open, skipping")
		flow.Enter(ctx, lifecycle.StateSkipped)
		return nil
	case !hasKind:
		log.Info("Removal request has no kind label, skipping")
		flow.Enter(ctx, lifecycle.StateSkipped)
		return nil
	}

	res := ev.Resource()
	iss := changemanager.NewIssue(gh, res)
	homepage, _ := extract.Field(issue.GetBody(), extract.LabelRemoveHomepage)
	flow.Enter(ctx, lifecycle.StateExtracted)

	lease, err := r.lease(ctx, res)
	if err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	defer returnLease(ctx, lease)

	target, err := r.target(lease, kind, homepage, lifecycle.SubmitterOf(issue.GetUser()))
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAuthorMismatch) {
		log.With("homepage", homepage).Warnf("Refusing removal: %v", err)
		flow.Enter(ctx, lifecycle.StateInvalid)
		return r.comment(ctx, iss, render.RemoveError(err.Error()))
	} else if err != nil {
		return err
	}
	flow.Enter(ctx, lifecycle.StateValid)

	title := publish.RemoveTitle(kind, target.Name())
	session, err := r.changeManager.NewSession(ctx, gh, res, publish.RemoveBranchName(res.Number), r.base)
	if err != nil {
		return fmt.Errorf("create change session: %w", err)
	}
	pr, err := session.Upsert(ctx, &lifecycle.PRData{
		Title: title,
		Issue: res.Number,
	}, []string{publish.RemoveLabel, kind.String()}, func(ctx context.Context, branch string) error {
		pushed, err := r.push(ctx, lease, branch, issue.GetUser(), kind, homepage, res.Number)
		if err != nil {
			return err
		}
		if pushed {
			flow.Enter(ctx, lifecycle.StateCommitted)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert PR: %w", err)
	}
	if pr.Created {
		flow.Enter(ctx, lifecycle.StatePRCreated)
	} else {
		flow.Enter(ctx, lifecycle.StatePRUpdated)
	}

	if err := iss.SetTitle(ctx, issue.GetTitle(), title); err != nil {
		return err
	}
	return r.comment(ctx, iss, render.Remove(kind, target.Name(), pr.URL))
}

// target finds the listing on the leased base branch.
func (r *Reconciler) target(lease *clonemanager.Lease, kind publish.Kind, homepage string, submitter publish.Submitter) (Target, error) {
	files, err := lease.Files()
	if err != nil {
		return Target{}, err
	}
	s, err := registry.Read(files, r.paths, kind)
	if err != nil {
		return Target{}, err
	}
	return find(kind, s, homepage, submitter)
}

// push drops the listing with homepage on branch, fresh from the base. The
// ownership check runs again since the base may have moved.
func (r *Reconciler) push(
	ctx context.Context,
	lease *clonemanager.Lease,
	branch string,
	user *github.User,
	kind publish.Kind,
	homepage string,
	issue int,
) (bool, error) {
	return lease.MakeAndPushChanges(ctx, branch, clonemanager.NoReplyAuthor(user.GetLogin()),
		func(_ context.Context, wt *gogit.Worktree) (string, error) {
			files := clonemanager.WorktreeFiles(wt)
			s, err := registry.Read(files, r.paths, kind)
			if err != nil {
				return "", err
			}
			target, err := find(kind, s, homepage, lifecycle.SubmitterOf(user))
			if err != nil {
				return "", err
			}
			if _, err := drop(s, homepage); err != nil {
				return "", err
			}
			if err := registry.Write(files, r.paths, kind, s); err != nil {
				return "", err
			}
			return publish.RemoveCommitMessage(kind, target.Name(), issue), nil
		})
}

func (r *Reconciler) comment(ctx context.Context, iss *changemanager.Issue, body string) error {
	if err := lifecycle.Comment(ctx, iss, func(bool) string { return body }); err != nil {
		return err
	}
	lifecycle.FlowRemove.Enter(ctx, lifecycle.StateCommented)
	return nil
}
