/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package forgetest provides an in-memory GitHub and a local git remote for
// exercising the reconcilers end to end.
package forgetest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"chainguard.dev/publishflow/reconcilers/githubreconciler"
	"github.com/google/go-github/v84/github"
)

// Forge is a stateful fake of the GitHub REST and GraphQL endpoints the
// reconcilers use. Every repository shares one set of issues and pulls.
type Forge struct {
	t   *testing.T
	srv *httptest.Server

	mu         sync.Mutex
	nextID     int64
	issues     map[int]*github.Issue
	comments   map[int][]*github.IssueComment
	pulls      map[int]*github.PullRequest
	dispatches []Dispatch
	readied    []string
	merges     map[int]string
}

// Dispatch is a recorded repository_dispatch.
type Dispatch struct {
	Repository string
	EventType  string         `json:"event_type"`
	Payload    map[string]any `json:"client_payload"`
}

// New starts a Forge that is shut down with the test.
func New(t *testing.T) *Forge {
	t.Helper()
	f := &Forge{
		t:        t,
		nextID:   1000,
		issues:   map[int]*github.Issue{},
		comments: map[int][]*github.IssueComment{},
		pulls:    map[int]*github.PullRequest{},
		merges:   map[int]string{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /graphql", f.graphql)
	mux.HandleFunc("GET /repos/{owner}/{repo}/issues/{number}", f.getIssue)
	mux.HandleFunc("PATCH /repos/{owner}/{repo}/issues/{number}", f.editIssue)
	mux.HandleFunc("GET /repos/{owner}/{repo}/issues/{number}/comments", f.listComments)
	mux.HandleFunc("POST /repos/{owner}/{repo}/issues/{number}/comments", f.createComment)
	mux.HandleFunc("PATCH /repos/{owner}/{repo}/issues/comments/{id}", f.editComment)
	mux.HandleFunc("POST /repos/{owner}/{repo}/issues/{number}/labels", f.addLabels)
	mux.HandleFunc("GET /repos/{owner}/{repo}/pulls", f.listPulls)
	mux.HandleFunc("POST /repos/{owner}/{repo}/pulls", f.createPull)
	mux.HandleFunc("GET /repos/{owner}/{repo}/pulls/{number}", f.getPull)
	mux.HandleFunc("PATCH /repos/{owner}/{repo}/pulls/{number}", f.editPull)
	mux.HandleFunc("PUT /repos/{owner}/{repo}/pulls/{number}/merge", f.mergePull)
	mux.HandleFunc("POST /repos/{owner}/{repo}/dispatches", f.dispatch)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

// Client returns a go-github client talking to the Forge.
func (f *Forge) Client() *github.Client {
	f.t.Helper()
	gh, err := githubreconciler.NewClient(context.Background(), githubreconciler.NewStaticTokenSource("test"), f.srv.URL)
	if err != nil {
		f.t.Fatalf("NewClient: %v", err)
	}
	return gh
}

// AddIssue stores a copy of issue under its number.
func (f *Forge) AddIssue(issue *github.Issue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *issue
	f.issues[issue.GetNumber()] = &stored
}

// Issue returns the stored issue.
func (f *Forge) Issue(number int) *github.Issue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issues[number]
}

// AddComment stores a comment on an issue.
func (f *Forge) AddComment(number int, body, association string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.comments[number] = append(f.comments[number], &github.IssueComment{
		ID:                github.Ptr(f.nextID),
		Body:              github.Ptr(body),
		AuthorAssociation: github.Ptr(association),
	})
}

// Comments returns the comments on an issue.
func (f *Forge) Comments(number int) []*github.IssueComment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.comments[number])
}

// AddPull stores a copy of pr, open unless it has a state.
func (f *Forge) AddPull(pr *github.PullRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *pr
	if stored.State == nil {
		stored.State = github.Ptr("open")
	}
	f.pulls[pr.GetNumber()] = &stored
}

// Pull returns a stored pull request.
func (f *Forge) Pull(number int) *github.PullRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pulls[number]
}

// PullForHead returns the pull request whose head is branch.
func (f *Forge) PullForHead(branch string) *github.PullRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, pr := range f.pulls {
		if pr.GetHead().GetRef() == branch {
			return pr
		}
	}
	return nil
}

// Dispatches returns the recorded repository dispatches.
func (f *Forge) Dispatches() []Dispatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.dispatches)
}

// Readied returns the node ids marked ready for review.
func (f *Forge) Readied() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.readied)
}

// Merges returns the merge method used per pull request.
func (f *Forge) Merges() map[int]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int]string, len(f.merges))
	for k, v := range f.merges {
		out[k] = v
	}
	return out
}

func (f *Forge) number(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(r.PathValue(name))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

func (f *Forge) write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		f.t.Errorf("encoding response: %v", err)
	}
}

func (f *Forge) decode(r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		f.t.Errorf("decoding %s %s: %v", r.Method, r.URL.Path, err)
		return false
	}
	return true
}

func notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprint(w, `{"message": "Not Found"}`)
}

func (f *Forge) getIssue(w http.ResponseWriter, r *http.Request) {
	n, ok := f.number(w, r, "number")
	if !ok {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, ok := f.issues[n]
	if !ok {
		notFound(w)
		return
	}
	f.write(w, http.StatusOK, issue)
}

func (f *Forge) editIssue(w http.ResponseWriter, r *http.Request) {
	n, ok := f.number(w, r, "number")
	if !ok {
		return
	}
	var req github.IssueRequest
	if !f.decode(r, &req) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, ok := f.issues[n]
	if !ok {
		notFound(w)
		return
	}
	if req.Title != nil {
		issue.Title = req.Title
	}
	if req.Body != nil {
		issue.Body = req.Body
	}
	if req.State != nil {
		issue.State = req.State
	}
	if req.StateReason != nil {
		issue.StateReason = req.StateReason
	}
	f.write(w, http.StatusOK, issue)
}

func (f *Forge) listComments(w http.ResponseWriter, r *http.Request) {
	n, ok := f.number(w, r, "number")
	if !ok {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	comments := f.comments[n]
	if comments == nil {
		comments = []*github.IssueComment{}
	}
	f.write(w, http.StatusOK, comments)
}

func (f *Forge) createComment(w http.ResponseWriter, r *http.Request) {
	n, ok := f.number(w, r, "number")
	if !ok {
		return
	}
	var req github.IssueComment
	if !f.decode(r, &req) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c := &github.IssueComment{
		ID:                github.Ptr(f.nextID),
		Body:              req.Body,
		AuthorAssociation: github.Ptr("NONE"),
	}
	f.comments[n] = append(f.comments[n], c)
	f.write(w, http.StatusCreated, c)
}

func (f *Forge) editComment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req github.IssueComment
	if !f.decode(r, &req) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, comments := range f.comments {
		for _, c := range comments {
			if c.GetID() == id {
				c.Body = req.Body
				f.write(w, http.StatusOK, c)
				return
			}
		}
	}
	notFound(w)
}

func (f *Forge) addLabels(w http.ResponseWriter, r *http.Request) {
	n, ok := f.number(w, r, "number")
	if !ok {
		return
	}
	var names []string
	if !f.decode(r, &names) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	pr, ok := f.pulls[n]
	if !ok {
		notFound(w)
		return
	}
	for _, name := range names {
		if !githubreconciler.HasLabel(pr.Labels, name) {
			pr.Labels = append(pr.Labels, &github.Label{Name: github.Ptr(name)})
		}
	}
	f.write(w, http.StatusOK, pr.Labels)
}

// openPulls returns open pull requests ordered by number.
func (f *Forge) openPulls(head string) []*github.PullRequest {
	var out []*github.PullRequest
	for _, pr := range f.pulls {
		if pr.GetState() != "open" {
			continue
		}
		if head != "" && pr.GetHead().GetRef() != head {
			continue
		}
		out = append(out, pr)
	}
	slices.SortFunc(out, func(a, b *github.PullRequest) int { return a.GetNumber() - b.GetNumber() })
	return out
}

func (f *Forge) listPulls(w http.ResponseWriter, r *http.Request) {
	head := r.URL.Query().Get("head")
	if _, branch, ok := strings.Cut(head, ":"); ok {
		head = branch
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	pulls := f.openPulls(head)
	if pulls == nil {
		pulls = []*github.PullRequest{}
	}
	f.write(w, http.StatusOK, pulls)
}

func (f *Forge) createPull(w http.ResponseWriter, r *http.Request) {
	var req github.NewPullRequest
	if !f.decode(r, &req) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.openPulls(req.GetHead())) > 0 {
		f.write(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "Validation Failed",
			"errors":  []map[string]string{{"message": "A pull request already exists for " + req.GetHead() + "."}},
		})
		return
	}
	number := 100
	for f.pulls[number] != nil || f.issues[number] != nil {
		number++
	}
	pr := &github.PullRequest{
		Number:  github.Ptr(number),
		NodeID:  github.Ptr(fmt.Sprintf("PR_%d", number)),
		State:   github.Ptr("open"),
		Title:   req.Title,
		Body:    req.Body,
		HTMLURL: github.Ptr(fmt.Sprintf("%s/pull/%d", f.srv.URL, number)),
		Head:    &github.PullRequestBranch{Ref: req.Head},
		Base:    &github.PullRequestBranch{Ref: req.Base},
	}
	f.pulls[number] = pr
	f.write(w, http.StatusCreated, pr)
}

func (f *Forge) getPull(w http.ResponseWriter, r *http.Request) {
	n, ok := f.number(w, r, "number")
	if !ok {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	pr, ok := f.pulls[n]
	if !ok {
		notFound(w)
		return
	}
	f.write(w, http.StatusOK, pr)
}

func (f *Forge) editPull(w http.ResponseWriter, r *http.Request) {
	n, ok := f.number(w, r, "number")
	if !ok {
		return
	}
	var req github.PullRequest
	if !f.decode(r, &req) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	pr, ok := f.pulls[n]
	if !ok {
		notFound(w)
		return
	}
	if req.Title != nil {
		pr.Title = req.Title
	}
	f.write(w, http.StatusOK, pr)
}

func (f *Forge) mergePull(w http.ResponseWriter, r *http.Request) {
	n, ok := f.number(w, r, "number")
	if !ok {
		return
	}
	var req struct {
		MergeMethod string `json:"merge_method"`
	}
	if !f.decode(r, &req) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	pr, ok := f.pulls[n]
	if !ok {
		notFound(w)
		return
	}
	pr.Merged = github.Ptr(true)
	pr.State = github.Ptr("closed")
	f.merges[n] = req.MergeMethod
	f.write(w, http.StatusOK, map[string]any{"sha": "0123456789abcdef", "merged": true})
}

func (f *Forge) dispatch(w http.ResponseWriter, r *http.Request) {
	var d Dispatch
	if !f.decode(r, &d) {
		return
	}
	d.Repository = r.PathValue("owner") + "/" + r.PathValue("repo")
	f.mu.Lock()
	f.dispatches = append(f.dispatches, d)
	f.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (f *Forge) graphql(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	if !f.decode(r, &req) {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if strings.HasPrefix(req.Query, "mutation") {
		input, _ := req.Variables["input"].(map[string]any)
		id, _ := input["pullRequestId"].(string)
		for _, pr := range f.pulls {
			if pr.GetNodeID() == id {
				pr.Draft = github.Ptr(false)
			}
		}
		f.readied = append(f.readied, id)
		f.write(w, http.StatusOK, map[string]any{"data": map[string]any{
			"markPullRequestReadyForReview": map[string]any{"pullRequest": map[string]any{"number": 0}},
		}})
		return
	}

	head, _ := req.Variables["headRef"].(string)
	nodes := []map[string]any{}
	if pulls := f.openPulls(head); len(pulls) > 0 {
		pr := pulls[0]
		nodes = append(nodes, map[string]any{
			"id":      pr.GetNodeID(),
			"number":  pr.GetNumber(),
			"url":     pr.GetHTMLURL(),
			"title":   pr.GetTitle(),
			"isDraft": pr.GetDraft(),
		})
	}
	f.write(w, http.StatusOK, map[string]any{"data": map[string]any{
		"repository": map[string]any{"pullRequests": map[string]any{"nodes": nodes}},
	}})
}
