/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package publishreconciler

import (
	"context"
	"fmt"
	"slices"

	"chainguard.dev/publishflow/internal/lifecycle"
	"chainguard.dev/publishflow/publish"
	"chainguard.dev/publishflow/publish/extract"
	"chainguard.dev/publishflow/publish/render"
	"chainguard.dev/publishflow/publish/validate"
	"chainguard.dev/publishflow/reconcilers/githubreconciler"
	"chainguard.dev/publishflow/reconcilers/githubreconciler/changemanager"
	"chainguard.dev/publishflow/reconcilers/githubreconciler/clonemanager"
	"chainguard.dev/publishflow/registry"
	"github.com/chainguard-dev/clog"
	gogit "github.com/go-git/go-git/v5"
	"github.com/google/go-github/v84/github"
)

// issueActions are the issue and comment actions that trigger a review.
var issueActions = []string{"opened", "reopened", "edited", "created"}

// reconcileIssue reviews the submission of an issue: it validates the
// record, pushes the registry change and upserts the pull request when the
// record is valid, and always leaves the result as a comment.
func (r *Reconciler) reconcileIssue(ctx context.Context, ev *githubreconciler.Event, gh *github.Client) error {
	log := clog.FromContext(ctx)
	flow := lifecycle.FlowPublish
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
	case issue.GetState() != "open":
		log.Info("Issue is not open, skipping")
		flow.Enter(ctx, lifecycle.StateSkipped)
		return nil
	case !hasKind:
		log.Info("Issue has no publish label, skipping")
		flow.Enter(ctx, lifecycle.StateSkipped)
		return nil
	case slices.Contains(labels, publish.RemoveLabel):
		log.Info("Issue is a removal request, skipping")
		flow.Enter(ctx, lifecycle.StateSkipped)
		return nil
	}

	res := ev.Resource()
	iss := changemanager.NewIssue(gh, res)

	skipTest, err := iss.MaintainerCommented(ctx, publish.SkipTestComment)
	if err != nil {
		return fmt.Errorf("checking for skip test: %w", err)
	}

	body := issue.GetBody()
	if kind == publish.KindPlugin && skipTest {
		if ensured, changed := extract.EnsureFields(body, extract.SkipTestLabels); changed {
			log.Info("Adding plugin metadata headings to the issue")
			if err := iss.SetBody(ctx, ensured); err != nil {
				return err
			}
			body = ensured
		}
	}

	raw := extract.Extract(body, kind, extract.WithSkipTest(skipTest))
	flow.Enter(ctx, lifecycle.StateExtracted)

	lease, err := r.lease(ctx, res)
	if err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	defer returnLease(ctx, lease)

	files, err := lease.Files()
	if err != nil {
		return err
	}
	vctx := &publish.Context{
		SkipTest:  skipTest,
		Test:      r.test,
		Submitter: lifecycle.SubmitterOf(issue.GetUser()),
	}
	snapshot, err := registry.Read(files, r.paths, kind)
	if err != nil {
		// Validation reports the missing snapshot to the submitter.
		log.Warnf("Failed to load registry: %v", err)
	} else if vctx.PreviousData, err = snapshot.Entries(); err != nil {
		log.Warnf("Failed to decode registry: %v", err)
	}

	r.checker.Cache().Reset()
	result := validate.Validate(ctx, kind, raw, vctx, r.checker)

	if result.Valid {
		flow.Enter(ctx, lifecycle.StateValid)
		if err := r.publish(ctx, gh, res, lease, iss, issue, result); err != nil {
			return err
		}
	} else {
		flow.Enter(ctx, lifecycle.StateInvalid)
	}

	if err := lifecycle.Comment(ctx, iss, func(reuse bool) string {
		return render.Comment(result, render.Options{
			Reuse:     reuse,
			ActionURL: r.actionURL,
			SkipTest:  skipTest,
		})
	}); err != nil {
		return err
	}
	flow.Enter(ctx, lifecycle.StateCommented)
	return nil
}

// publish appends the validated entry on the issue branch and opens or
// refreshes its pull request. The issue is retitled after the pull request.
func (r *Reconciler) publish(
	ctx context.Context,
	gh *github.Client,
	res *githubreconciler.Resource,
	lease *clonemanager.Lease,
	iss *changemanager.Issue,
	issue *github.Issue,
	result publish.Result,
) error {
	flow := lifecycle.FlowPublish
	kind := result.Kind
	title := publish.Title(kind, result.Name)

	session, err := r.changeManager.NewSession(ctx, gh, res, publish.BranchName(res.Number), r.base)
	if err != nil {
		return fmt.Errorf("create change session: %w", err)
	}

	pr, err := session.Upsert(ctx, &lifecycle.PRData{
		Title: title,
		Issue: res.Number,
	}, []string{kind.String()}, func(ctx context.Context, branch string) error {
		pushed, err := lease.MakeAndPushChanges(ctx, branch, clonemanager.NoReplyAuthor(issue.GetUser().GetLogin()),
			func(_ context.Context, wt *gogit.Worktree) (string, error) {
				files := clonemanager.WorktreeFiles(wt)
				s, err := registry.Read(files, r.paths, kind)
				if err != nil {
					return "", err
				}
				if err := s.Append(result.Entry()); err != nil {
					return "", err
				}
				if err := registry.Write(files, r.paths, kind, s); err != nil {
					return "", err
				}
				return publish.CommitMessage(kind, result.Name, res.Number), nil
			})
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
	clog.FromContext(ctx).With("pr_url", pr.URL).Info("PR created/updated")

	return iss.SetTitle(ctx, issue.GetTitle(), title)
}
