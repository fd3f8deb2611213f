/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package githubreconciler

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/go-github/v84/github"
)

// Event names as delivered in GITHUB_EVENT_NAME.
const (
	EventIssues            = "issues"
	EventIssueComment      = "issue_comment"
	EventPullRequest       = "pull_request"
	EventPullRequestTarget = "pull_request_target"
	EventPullRequestReview = "pull_request_review"
)

// ErrUnsupportedEvent is returned for event names no reconciler handles.
var ErrUnsupportedEvent = errors.New("unsupported event")

// Event is the normalized form of the webhook payloads the reconcilers act
// on. Fields that do not apply to the event are nil.
type Event struct {
	Name   string
	Action string
	Owner  string
	Repo   string

	Issue       *github.Issue
	PullRequest *github.PullRequest
	Comment     *github.IssueComment
	Review      *github.PullRequestReview
	Sender      *github.User
}

// ReadEvent loads the payload GitHub Actions writes to GITHUB_EVENT_PATH.
func ReadEvent(name, path string) (*Event, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading event payload: %w", err)
	}
	return ParseEvent(name, payload)
}

// ParseEvent decodes a webhook payload of the named event.
func ParseEvent(name string, payload []byte) (*Event, error) {
	webhookName := name
	if name == EventPullRequestTarget {
		webhookName = EventPullRequest
	}
	raw, err := github.ParseWebHook(webhookName, payload)
	if err != nil {
		return nil, fmt.Errorf("parsing %s payload: %w", name, err)
	}

	ev := &Event{Name: webhookName}
	var repo *github.Repository
	switch e := raw.(type) {
	case *github.IssuesEvent:
		ev.Action = e.GetAction()
		ev.Issue = e.Issue
		ev.Sender = e.Sender
		repo = e.Repo
	case *github.IssueCommentEvent:
		ev.Action = e.GetAction()
		ev.Issue = e.Issue
		ev.Comment = e.Comment
		ev.Sender = e.Sender
		repo = e.Repo
	case *github.PullRequestEvent:
		ev.Action = e.GetAction()
		ev.PullRequest = e.PullRequest
		ev.Sender = e.Sender
		repo = e.Repo
	case *github.PullRequestReviewEvent:
		ev.Action = e.GetAction()
		ev.PullRequest = e.PullRequest
		ev.Review = e.Review
		ev.Sender = e.Sender
		repo = e.Repo
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, name)
	}
	if repo == nil {
		return nil, fmt.Errorf("%s payload has no repository", name)
	}
	ev.Owner = repo.GetOwner().GetLogin()
	ev.Repo = repo.GetName()
	return ev, nil
}

// Resource returns the issue or pull request the event is about.
func (e *Event) Resource() *Resource {
	switch {
	case e.PullRequest != nil:
		return &Resource{
			Owner:  e.Owner,
			Repo:   e.Repo,
			Number: e.PullRequest.GetNumber(),
			Type:   ResourceTypePullRequest,
			URL:    e.PullRequest.GetHTMLURL(),
		}
	case e.Issue != nil:
		typ := ResourceTypeIssue
		if e.Issue.IsPullRequest() {
			typ = ResourceTypePullRequest
		}
		return &Resource{
			Owner:  e.Owner,
			Repo:   e.Repo,
			Number: e.Issue.GetNumber(),
			Type:   typ,
			URL:    e.Issue.GetHTMLURL(),
		}
	default:
		return &Resource{Owner: e.Owner, Repo: e.Repo}
	}
}

// FromBot reports whether the event was triggered by a bot account.
func (e *Event) FromBot() bool {
	return e.Sender.GetType() == "Bot"
}

// Labels returns the label names of the issue or pull request.
func (e *Event) Labels() []string {
	switch {
	case e.PullRequest != nil:
		return LabelNames(e.PullRequest.Labels)
	case e.Issue != nil:
		return LabelNames(e.Issue.Labels)
	default:
		return []string{}
	}
}

// LabelNames returns the names of labels.
func LabelNames(labels []*github.Label) []string {
	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, l.GetName())
	}
	return names
}

// HasLabel reports whether labels contains name.
func HasLabel(labels []*github.Label, name string) bool {
	for _, l := range labels {
		if l.GetName() == name {
			return true
		}
	}
	return false
}
