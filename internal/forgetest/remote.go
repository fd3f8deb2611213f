/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package forgetest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chainguard.dev/publishflow/reconcilers/githubreconciler"
	"chainguard.dev/publishflow/reconcilers/githubreconciler/clonemanager"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"golang.org/x/oauth2"
)

// Remote is a local repository standing in for the GitHub remote.
type Remote struct {
	t   *testing.T
	Dir string
}

// NewRemote initializes a repository whose master branch holds files.
func NewRemote(t *testing.T, files map[string]string) *Remote {
	t.Helper()
	dir := t.TempDir()
	if _, err := gogit.PlainInit(dir, false); err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	r := &Remote{t: t, Dir: dir}
	r.Commit("master", "initial", files)
	return r
}

// Commit writes files on branch of the remote and commits them. The branch
// must be master or not yet exist.
func (r *Remote) Commit(branch, message string, files map[string]string) string {
	r.t.Helper()
	repo, err := gogit.PlainOpen(r.Dir)
	if err != nil {
		r.t.Fatalf("PlainOpen: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		r.t.Fatalf("Worktree: %v", err)
	}

	ref := plumbing.NewBranchReferenceName(branch)
	if branch != "master" {
		if err := wt.Checkout(&gogit.CheckoutOptions{Branch: ref, Create: true}); err != nil {
			r.t.Fatalf("Checkout %s: %v", branch, err)
		}
		defer func() {
			if err := wt.Checkout(&gogit.CheckoutOptions{Branch: plumbing.Master, Force: true}); err != nil {
				r.t.Fatalf("Checkout master: %v", err)
			}
		}()
	}

	for path, content := range files {
		full := filepath.Join(r.Dir, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			r.t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			r.t.Fatalf("WriteFile: %v", err)
		}
		if _, err := wt.Add(path); err != nil {
			r.t.Fatalf("Add %s: %v", path, err)
		}
	}

	hash, err := wt.Commit(message, &gogit.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()},
	})
	if err != nil {
		r.t.Fatalf("Commit: %v", err)
	}
	return hash.String()
}

// Head returns the commit at the tip of branch, or nil when it does not exist.
func (r *Remote) Head(branch string) *object.Commit {
	r.t.Helper()
	// Reopen so objects pushed since the last read are visible.
	repo, err := gogit.PlainOpen(r.Dir)
	if err != nil {
		r.t.Fatalf("PlainOpen: %v", err)
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		return nil
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		r.t.Fatalf("CommitObject: %v", err)
	}
	return commit
}

// File returns the content of path at the tip of branch.
func (r *Remote) File(branch, path string) string {
	r.t.Helper()
	commit := r.Head(branch)
	if commit == nil {
		r.t.Fatalf("branch %s does not exist", branch)
	}
	f, err := commit.File(path)
	if err != nil {
		r.t.Fatalf("File %s at %s: %v", path, branch, err)
	}
	content, err := f.Contents()
	if err != nil {
		r.t.Fatalf("Contents: %v", err)
	}
	return content
}

// CloneMeta returns clone managers that clone from the remote regardless of
// the resource.
func (r *Remote) CloneMeta() *clonemanager.Meta {
	return clonemanager.NewMeta(context.Background(), func(context.Context, string, string) (oauth2.TokenSource, error) {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test"}), nil
	}, "publishflow[bot]", clonemanager.WithRemoteURL(func(*githubreconciler.Resource) string {
		return r.Dir
	}))
}
