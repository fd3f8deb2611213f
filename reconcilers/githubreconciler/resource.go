/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package githubreconciler

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ResourceType distinguishes the GitHub objects a reconciler acts on.
type ResourceType string

const (
	ResourceTypeIssue       ResourceType = "issue"
	ResourceTypePullRequest ResourceType = "pull_request"
)

// Resource identifies one issue or pull request.
type Resource struct {
	Owner  string
	Repo   string
	Number int
	Type   ResourceType
	// URL is the html URL of the resource, when known.
	URL string
}

// String returns the canonical owner/repo#number form.
func (r *Resource) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

// FullName returns owner/repo.
func (r *Resource) FullName() string {
	return r.Owner + "/" + r.Repo
}

// ParseURL parses an issue or pull request html URL such as
// https://github.com/owner/repo/issues/12.
func ParseURL(raw string) (*Resource, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 4 {
		return nil, fmt.Errorf("unexpected resource url %q", raw)
	}
	var typ ResourceType
	switch parts[2] {
	case "issues":
		typ = ResourceTypeIssue
	case "pull":
		typ = ResourceTypePullRequest
	default:
		return nil, fmt.Errorf("unsupported resource kind %q in %q", parts[2], raw)
	}
	n, err := strconv.Atoi(parts[3])
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("invalid resource number in %q", raw)
	}
	return &Resource{
		Owner:  parts[0],
		Repo:   parts[1],
		Number: n,
		Type:   typ,
		URL:    raw,
	}, nil
}

// SplitRepository splits "owner/repo".
func SplitRepository(full string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(full, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("invalid repository %q, want owner/repo", full)
	}
	return owner, repo, nil
}
