/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package changemanager

import (
	"context"
	"encoding/json"
	"fmt"

	"chainguard.dev/publishflow/reconcilers/githubreconciler"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
)

// Repository wraps repository-wide pull request and dispatch operations.
type Repository struct {
	client *github.Client
	owner  string
	repo   string
}

// NewRepository binds owner/repo.
func NewRepository(client *github.Client, owner, repo string) *Repository {
	return &Repository{client: client, owner: owner, repo: repo}
}

// PullRequestsWithLabel lists the open pull requests carrying label, in the
// order the API returns them.
func (r *Repository) PullRequestsWithLabel(ctx context.Context, label string) ([]*github.PullRequest, error) {
	var out []*github.PullRequest
	opts := &github.PullRequestListOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		prs, resp, err := r.client.PullRequests.List(ctx, r.owner, r.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("listing pull requests: %w", err)
		}
		for _, pr := range prs {
			if githubreconciler.HasLabel(pr.Labels, label) {
				out = append(out, pr)
			}
		}
		if resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

// Dispatch sends a repository_dispatch event with payload as client_payload.
func (r *Repository) Dispatch(ctx context.Context, eventType string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding dispatch payload: %w", err)
	}
	raw := json.RawMessage(b)
	if _, _, err := r.client.Repositories.Dispatch(ctx, r.owner, r.repo, github.DispatchRequestOptions{
		EventType:     eventType,
		ClientPayload: &raw,
	}); err != nil {
		return fmt.Errorf("dispatching %s to %s/%s: %w", eventType, r.owner, r.repo, err)
	}
	clog.FromContext(ctx).With("event_type", eventType).Infof("Dispatched to %s/%s", r.owner, r.repo)
	return nil
}

// Merge merges a pull request with method ("merge", "squash" or "rebase").
func (r *Repository) Merge(ctx context.Context, number int, method string) error {
	res, _, err := r.client.PullRequests.Merge(ctx, r.owner, r.repo, number, "", &github.PullRequestOptions{
		MergeMethod: method,
	})
	if err != nil {
		return fmt.Errorf("merging #%d: %w", number, err)
	}
	clog.FromContext(ctx).Infof("Merged #%d at %s", number, res.GetSHA())
	return nil
}

// PullRequest fetches one pull request.
func (r *Repository) PullRequest(ctx context.Context, number int) (*github.PullRequest, error) {
	pr, _, err := r.client.PullRequests.Get(ctx, r.owner, r.repo, number)
	if err != nil {
		return nil, fmt.Errorf("getting pull request #%d: %w", number, err)
	}
	return pr, nil
}
