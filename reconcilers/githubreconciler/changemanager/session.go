/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package changemanager

import (
	"context"
	"fmt"

	"chainguard.dev/publishflow/reconcilers/githubreconciler"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"
)

// Session represents work on the pull request of a specific resource.
type Session[T any] struct {
	manager    *CM[T]
	client     *github.Client
	gql        *githubv4.Client
	resource   *githubreconciler.Resource
	owner      string
	repo       string
	branchName string
	ref        string // Base branch for the PR

	// Existing PR state (populated by NewSession if a PR exists)
	prNumber int // 0 if no existing PR
	prURL    string
	prTitle  string
	prNodeID string
	prDraft  bool
}

// PullRequest describes the pull request an Upsert left behind.
type PullRequest struct {
	Number  int
	URL     string
	Title   string
	Created bool
}

// Exists reports whether an open pull request was found for the branch.
func (s *Session[T]) Exists() bool {
	return s.prNumber != 0
}

// Number returns the existing pull request number, or 0.
func (s *Session[T]) Number() int {
	return s.prNumber
}

// BranchName returns the head branch of the session.
func (s *Session[T]) BranchName() string {
	return s.branchName
}

// Upsert pushes the branch through makeChanges and then creates the pull
// request, or brings the existing one up to date. When creation fails because
// a pull request already exists, the first open pull request listed for the
// head branch is adopted instead. An adopted pull request gets the new title
// if it differs, and is marked ready for review when it is a draft.
func (s *Session[T]) Upsert(
	ctx context.Context,
	data *T,
	labels []string,
	makeChanges func(ctx context.Context, branchName string) error,
) (*PullRequest, error) {
	log := clog.FromContext(ctx)

	if err := makeChanges(ctx, s.branchName); err != nil {
		return nil, fmt.Errorf("making changes: %w", err)
	}

	title, err := execute(s.manager.titleTemplate, data)
	if err != nil {
		return nil, fmt.Errorf("executing title template: %w", err)
	}

	body, err := execute(s.manager.bodyTemplate, data)
	if err != nil {
		return nil, fmt.Errorf("executing body template: %w", err)
	}

	if s.prNumber == 0 {
		log.Infof("Creating new PR with head %s and base %s", s.branchName, s.ref)

		pr, _, err := s.client.PullRequests.Create(ctx, s.owner, s.repo, &github.NewPullRequest{
			Title: github.Ptr(title),
			Body:  github.Ptr(body),
			Head:  github.Ptr(s.branchName),
			Base:  github.Ptr(s.ref),
		})
		if err == nil {
			if len(labels) > 0 {
				if _, _, err := s.client.Issues.AddLabelsToIssue(ctx, s.owner, s.repo, pr.GetNumber(), labels); err != nil {
					return nil, fmt.Errorf("adding labels: %w", err)
				}
			}
			log.Infof("Created PR #%d: %s", pr.GetNumber(), pr.GetHTMLURL())
			return &PullRequest{
				Number:  pr.GetNumber(),
				URL:     pr.GetHTMLURL(),
				Title:   title,
				Created: true,
			}, nil
		}

		log.Warnf("Creating PR failed, looking for an existing one: %v", err)
		found, ferr := s.findByHead(ctx)
		if ferr != nil {
			return nil, fmt.Errorf("finding pull request after create failed (%v): %w", err, ferr)
		}
		if !found {
			return nil, fmt.Errorf("creating pull request: %w", err)
		}
	}

	log.Infof("Updating existing PR #%d", s.prNumber)

	if s.prTitle != title {
		if _, _, err := s.client.PullRequests.Edit(ctx, s.owner, s.repo, s.prNumber, &github.PullRequest{
			Title: github.Ptr(title),
		}); err != nil {
			return nil, fmt.Errorf("updating pull request title: %w", err)
		}
		log.Infof("Retitled PR #%d from %q to %q", s.prNumber, s.prTitle, title)
		s.prTitle = title
	}

	if s.prDraft {
		if err := s.markReady(ctx); err != nil {
			return nil, err
		}
		s.prDraft = false
	}

	if len(labels) > 0 {
		if _, _, err := s.client.Issues.AddLabelsToIssue(ctx, s.owner, s.repo, s.prNumber, labels); err != nil {
			return nil, fmt.Errorf("adding labels: %w", err)
		}
	}

	return &PullRequest{
		Number: s.prNumber,
		URL:    s.prURL,
		Title:  title,
	}, nil
}

// findByHead adopts the first open pull request whose head is the session
// branch.
func (s *Session[T]) findByHead(ctx context.Context) (bool, error) {
	prs, _, err := s.client.PullRequests.List(ctx, s.owner, s.repo, &github.PullRequestListOptions{
		State: "open",
		Head:  s.owner + ":" + s.branchName,
	})
	if err != nil {
		return false, fmt.Errorf("listing pull requests: %w", err)
	}
	if len(prs) == 0 {
		return false, nil
	}

	pr := prs[0]
	s.prNumber = pr.GetNumber()
	s.prURL = pr.GetHTMLURL()
	s.prTitle = pr.GetTitle()
	s.prNodeID = pr.GetNodeID()
	s.prDraft = pr.GetDraft()
	return true, nil
}

func (s *Session[T]) markReady(ctx context.Context) error {
	var m struct {
		MarkPullRequestReadyForReview struct {
			PullRequest struct {
				Number int
			}
		} `graphql:"markPullRequestReadyForReview(input: $input)"`
	}
	input := githubv4.MarkPullRequestReadyForReviewInput{
		PullRequestID: githubv4.ID(s.prNodeID),
	}
	if err := s.gql.Mutate(ctx, &m, input, nil); err != nil {
		return fmt.Errorf("marking pull request ready: %w", err)
	}
	clog.FromContext(ctx).Infof("Marked draft PR #%d ready for review", s.prNumber)
	return nil
}
