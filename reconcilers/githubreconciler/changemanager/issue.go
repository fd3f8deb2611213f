/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package changemanager

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"chainguard.dev/publishflow/reconcilers/githubreconciler"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
)

// Close reasons accepted by the issues API.
const (
	ReasonCompleted  = "completed"
	ReasonNotPlanned = "not_planned"
)

// maintainerAssociations may trigger maintainer-only commands.
var maintainerAssociations = []string{"OWNER", "MEMBER"}

// Issue wraps the comment and state operations on one issue.
type Issue struct {
	client *github.Client
	owner  string
	repo   string
	number int
}

// NewIssue binds the issue of res.
func NewIssue(client *github.Client, res *githubreconciler.Resource) *Issue {
	return &Issue{client: client, owner: res.Owner, repo: res.Repo, number: res.Number}
}

// Comments lists every comment, oldest first.
func (i *Issue) Comments(ctx context.Context) ([]*github.IssueComment, error) {
	var all []*github.IssueComment
	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		comments, resp, err := i.client.Issues.ListComments(ctx, i.owner, i.repo, i.number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing comments: %w", err)
		}
		all = append(all, comments...)
		if resp == nil || resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}

// FindComment returns the first comment containing marker, or nil.
func (i *Issue) FindComment(ctx context.Context, marker string) (*github.IssueComment, error) {
	comments, err := i.Comments(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range comments {
		if strings.Contains(c.GetBody(), marker) {
			return c, nil
		}
	}
	return nil, nil
}

// UpsertComment updates existing when its body differs, or creates a new
// comment when existing is nil. It reports whether anything was written.
func (i *Issue) UpsertComment(ctx context.Context, existing *github.IssueComment, body string) (bool, error) {
	log := clog.FromContext(ctx)

	if existing == nil {
		c, _, err := i.client.Issues.CreateComment(ctx, i.owner, i.repo, i.number, &github.IssueComment{
			Body: github.Ptr(body),
		})
		if err != nil {
			return false, fmt.Errorf("creating comment: %w", err)
		}
		log.Infof("Created comment %d on #%d", c.GetID(), i.number)
		return true, nil
	}

	if existing.GetBody() == body {
		log.Infof("Comment %d is up to date", existing.GetID())
		return false, nil
	}

	if _, _, err := i.client.Issues.EditComment(ctx, i.owner, i.repo, existing.GetID(), &github.IssueComment{
		Body: github.Ptr(body),
	}); err != nil {
		return false, fmt.Errorf("updating comment %d: %w", existing.GetID(), err)
	}
	log.Infof("Updated comment %d on #%d", existing.GetID(), i.number)
	return true, nil
}

// MaintainerCommented reports whether an owner or member of the repository
// left a comment whose trimmed body is exactly command. The comments are read
// on every call.
func (i *Issue) MaintainerCommented(ctx context.Context, command string) (bool, error) {
	comments, err := i.Comments(ctx)
	if err != nil {
		return false, err
	}
	for _, c := range comments {
		if strings.TrimSpace(c.GetBody()) == command && slices.Contains(maintainerAssociations, c.GetAuthorAssociation()) {
			return true, nil
		}
	}
	return false, nil
}

// Close closes the issue with reason.
func (i *Issue) Close(ctx context.Context, reason string) error {
	if _, _, err := i.client.Issues.Edit(ctx, i.owner, i.repo, i.number, &github.IssueRequest{
		State:       github.Ptr("closed"),
		StateReason: github.Ptr(reason),
	}); err != nil {
		return fmt.Errorf("closing issue #%d: %w", i.number, err)
	}
	clog.FromContext(ctx).Infof("Closed issue #%d as %s", i.number, reason)
	return nil
}

// SetTitle renames the issue unless it already has title.
func (i *Issue) SetTitle(ctx context.Context, current, title string) error {
	if current == title {
		return nil
	}
	if _, _, err := i.client.Issues.Edit(ctx, i.owner, i.repo, i.number, &github.IssueRequest{
		Title: github.Ptr(title),
	}); err != nil {
		return fmt.Errorf("updating issue #%d title: %w", i.number, err)
	}
	clog.FromContext(ctx).Infof("Renamed issue #%d to %q", i.number, title)
	return nil
}

// Get fetches the issue.
func (i *Issue) Get(ctx context.Context) (*github.Issue, error) {
	issue, _, err := i.client.Issues.Get(ctx, i.owner, i.repo, i.number)
	if err != nil {
		return nil, fmt.Errorf("getting issue #%d: %w", i.number, err)
	}
	return issue, nil
}

// SetBody replaces the issue body.
func (i *Issue) SetBody(ctx context.Context, body string) error {
	if _, _, err := i.client.Issues.Edit(ctx, i.owner, i.repo, i.number, &github.IssueRequest{
		Body: github.Ptr(body),
	}); err != nil {
		return fmt.Errorf("updating issue #%d body: %w", i.number, err)
	}
	return nil
}
