/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package changemanager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"chainguard.dev/publishflow/reconcilers/githubreconciler"
	"github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"
)

// Option configures a CM (ChangeManager).
type Option[T any] func(*CM[T])

// WithOwner overrides the GitHub owner (org or user) from the resource.
// When set, all PR operations will use this owner instead of the resource's owner.
func WithOwner[T any](owner string) Option[T] {
	return func(cm *CM[T]) {
		cm.owner = owner
	}
}

// WithRepo overrides the GitHub repository from the resource.
// When set, all PR operations will use this repo instead of the resource's repo.
func WithRepo[T any](repo string) Option[T] {
	return func(cm *CM[T]) {
		cm.repo = repo
	}
}

// CM manages the lifecycle of the pull requests opened for issues.
// It uses Go templates to generate PR titles and bodies from generic data of type T.
type CM[T any] struct {
	identity      string
	titleTemplate *template.Template
	bodyTemplate  *template.Template
	owner         string
	repo          string
}

// New creates a new CM with the given identity and templates.
// The templates are executed with data of type T when creating or updating PRs.
// Returns an error if titleTemplate or bodyTemplate is nil.
func New[T any](identity string, titleTemplate *template.Template, bodyTemplate *template.Template, opts ...Option[T]) (*CM[T], error) {
	if titleTemplate == nil {
		return nil, errors.New("titleTemplate cannot be nil")
	}
	if bodyTemplate == nil {
		return nil, errors.New("bodyTemplate cannot be nil")
	}

	cm := &CM[T]{
		identity:      identity,
		titleTemplate: titleTemplate,
		bodyTemplate:  bodyTemplate,
	}

	for _, opt := range opts {
		opt(cm)
	}

	return cm, nil
}

// NewSession creates a Session for the pull request that carries branchName
// into base on behalf of the resource. An open pull request for that head is
// looked up with a single GraphQL query.
func (cm *CM[T]) NewSession(
	ctx context.Context,
	client *github.Client,
	res *githubreconciler.Resource,
	branchName, base string,
) (*Session[T], error) {
	if branchName == "" || base == "" {
		return nil, errors.New("branch and base cannot be empty")
	}

	owner := res.Owner
	repo := res.Repo
	if cm.owner != "" {
		owner = cm.owner
	}
	if cm.repo != "" {
		repo = cm.repo
	}

	gqlClient := githubreconciler.GraphQL(client)

	var query struct {
		Repository struct {
			PullRequests struct {
				Nodes []struct {
					Id      string
					Number  int
					Url     string
					Title   string
					IsDraft bool
				}
			} `graphql:"pullRequests(headRefName: $headRef, baseRefName: $baseRef, states: [OPEN], first: 1)"`
		} `graphql:"repository(owner: $owner, name: $repo)"`
	}

	variables := map[string]any{
		"owner":   githubv4.String(owner),
		"repo":    githubv4.String(repo),
		"headRef": githubv4.String(branchName),
		"baseRef": githubv4.String(base),
	}

	if err := gqlClient.Query(ctx, &query, variables); err != nil {
		return nil, fmt.Errorf("querying pull request: %w", err)
	}

	s := &Session[T]{
		manager:    cm,
		client:     client,
		gql:        gqlClient,
		resource:   res,
		owner:      owner,
		repo:       repo,
		branchName: branchName,
		ref:        base,
	}

	if nodes := query.Repository.PullRequests.Nodes; len(nodes) > 0 {
		pr := nodes[0]
		s.prNumber = pr.Number
		s.prURL = pr.Url
		s.prTitle = pr.Title
		s.prNodeID = pr.Id
		s.prDraft = pr.IsDraft
	}

	return s, nil
}

func execute[T any](tmpl *template.Template, data *T) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
