/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package lifecycle holds the pieces shared by the publish and remove
// reconcilers: the submission states, the pull request templates, comment
// reuse, closing the linked issue and re-applying open pull requests after a
// merge.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"text/template"

	"chainguard.dev/publishflow/internal/metrics"
	"chainguard.dev/publishflow/publish"
	"chainguard.dev/publishflow/reconcilers/githubreconciler"
	"chainguard.dev/publishflow/reconcilers/githubreconciler/changemanager"
	"chainguard.dev/publishflow/reconcilers/githubreconciler/clonemanager"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// State is a step of the submission state machine.
type State string

const (
	StateReceived  State = "received"
	StateSkipped   State = "skipped"
	StateExtracted State = "extracted"
	StateValid     State = "valid"
	StateInvalid   State = "invalid"
	StateCommitted State = "committed"
	StatePRCreated State = "pr_created"
	StatePRUpdated State = "pr_updated"
	StateCommented State = "commented"
	StateResolved  State = "resolved"
	StateMerged    State = "merged"
)

// Flow names a reconciler in logs and metrics.
type Flow string

const (
	FlowPublish Flow = "publish"
	FlowRemove  Flow = "remove"
)

// Enter records that flow reached state.
func (f Flow) Enter(ctx context.Context, state State) {
	metrics.RecordTransition(string(f), string(state))
	clog.FromContext(ctx).With("flow", string(f)).With("state", string(state)).Info("Entered state")
}

// Start opens the span covering one reconciliation.
func (f Flow) Start(ctx context.Context, ev *githubreconciler.Event) (context.Context, oteltrace.Span) {
	tr := otel.Tracer("chainguard.dev/publishflow/reconcilers",
		oteltrace.WithInstrumentationVersion("1.0.0"))
	res := ev.Resource()
	ctx, span := tr.Start(ctx, "reconcile."+string(f), oteltrace.WithAttributes(
		attribute.String("github.event", ev.Name),
		attribute.String("github.action", ev.Action),
		attribute.String("github.resource", res.String()),
	))
	return clog.WithValues(ctx, "flow", string(f), "resource", res.String()), span
}

// PRData feeds the pull request templates.
type PRData struct {
	Title string
	Issue int
}

var (
	titleTemplate = template.Must(template.New("title").Parse("{{.Title}}"))
	bodyTemplate  = template.Must(template.New("body").Parse("resolve #{{.Issue}}"))
)

// NewChangeManager returns the change manager opening "resolve #<n>" pull
// requests.
func NewChangeManager(identity string, opts ...changemanager.Option[PRData]) (*changemanager.CM[PRData], error) {
	return changemanager.New[PRData](identity, titleTemplate, bodyTemplate, opts...)
}

// SubmitterOf identifies the author of an issue.
func SubmitterOf(u *github.User) publish.Submitter {
	return publish.Submitter{Login: u.GetLogin(), ID: u.GetID()}
}

// Comment posts the rendered result on the issue, reusing the first earlier
// comment carrying the marker. render receives whether a comment is reused.
func Comment(ctx context.Context, issue *changemanager.Issue, render func(reuse bool) string) error {
	existing, err := issue.FindComment(ctx, publish.CommentMarker)
	if err != nil {
		return fmt.Errorf("finding previous comment: %w", err)
	}
	if _, err := issue.UpsertComment(ctx, existing, render(existing != nil)); err != nil {
		return err
	}
	return nil
}

// CloseLinkedIssue closes the issue a bot pull request was opened for, as
// completed when the pull request merged and as not planned otherwise. It
// returns the issue number, or false when the head branch names no issue.
func CloseLinkedIssue(ctx context.Context, gh *github.Client, res *githubreconciler.Resource, pr *github.PullRequest) (int, bool, error) {
	number, ok := publish.IssueNumberFromRef(pr.GetHead().GetRef())
	if !ok {
		return 0, false, nil
	}

	issue := changemanager.NewIssue(gh, &githubreconciler.Resource{
		Owner:  res.Owner,
		Repo:   res.Repo,
		Number: number,
		Type:   githubreconciler.ResourceTypeIssue,
	})
	current, err := issue.Get(ctx)
	if err != nil {
		return number, true, err
	}
	if current.GetState() != "open" {
		clog.FromContext(ctx).Infof("Issue #%d is already closed", number)
		return number, true, nil
	}

	reason := changemanager.ReasonNotPlanned
	if pr.GetMerged() {
		reason = changemanager.ReasonCompleted
	}
	return number, true, issue.Close(ctx, reason)
}

// DeleteBranch removes the head branch of a closed pull request. Failures are
// logged and otherwise ignored since the branch may already be gone.
func DeleteBranch(ctx context.Context, lease *clonemanager.Lease, branch string) {
	if err := lease.DeleteBranch(ctx, branch); err != nil {
		clog.FromContext(ctx).Warnf("Failed to delete branch %s: %v", branch, err)
	}
}

// Candidate is an open pull request selected for conflict resolution.
type Candidate struct {
	PullRequest *github.PullRequest
	Issue       int
	Kind        publish.Kind
}

// ApplyFunc re-applies the change of one pull request on top of the base
// branch and reports whether anything was pushed.
type ApplyFunc func(ctx context.Context, c Candidate) (bool, error)

// ResolveConflicts re-applies each pull request in order. Pull requests whose
// issue or kind cannot be derived, and drafts, are skipped. A pull request
// whose branch disappeared is skipped as well.
func ResolveConflicts(ctx context.Context, prs []*github.PullRequest, apply ApplyFunc) error {
	log := clog.FromContext(ctx)

	for _, pr := range prs {
		number, ok := publish.IssueNumberFromRef(pr.GetHead().GetRef())
		if !ok {
			log.Infof("Skipping PR #%d: no issue in branch %s", pr.GetNumber(), pr.GetHead().GetRef())
			continue
		}
		if pr.GetDraft() {
			log.Infof("Skipping draft PR #%d", pr.GetNumber())
			continue
		}
		kind, ok := publish.KindFromLabels(githubreconciler.LabelNames(pr.Labels))
		if !ok {
			log.Infof("Skipping PR #%d: no kind label", pr.GetNumber())
			continue
		}

		pushed, err := apply(ctx, Candidate{PullRequest: pr, Issue: number, Kind: kind})
		switch {
		case errors.Is(err, clonemanager.ErrBranchNotFound):
			log.Warnf("Skipping PR #%d: %v", pr.GetNumber(), err)
		case err != nil:
			return fmt.Errorf("resolving conflicts of #%d: %w", pr.GetNumber(), err)
		case pushed:
			log.Infof("Re-applied PR #%d", pr.GetNumber())
		default:
			log.Infof("PR #%d is up to date", pr.GetNumber())
		}
	}
	return nil
}
