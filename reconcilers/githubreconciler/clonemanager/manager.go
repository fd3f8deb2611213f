/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package clonemanager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"chainguard.dev/publishflow/reconcilers/githubreconciler"
	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"golang.org/x/oauth2"
)

const cloneDirPrefix = "clonemanager-clone-"

// repoURL resolves the remote git URL for a githubreconciler.Resource. Tests
// can override this to provide local filesystem paths by assigning a custom
// function to repoURL.
var repoURL = defaultRemoteURL

// ErrBranchNotFound is returned when a remote branch does not exist.
var ErrBranchNotFound = errors.New("remote branch not found")

// Manager owns a pool of git clones that can be leased to callers for a single
// reconciliation. Each lease checks out the head of a base branch and ensures
// the working tree is reset before being returned to the pool.
type Manager struct {
	tokenSource oauth2.TokenSource
	identity    string
	remoteURL   func(*githubreconciler.Resource) string

	mu        sync.Mutex
	available []*clone
}

type clone struct {
	path string
	repo *git.Repository
}

// Lease represents an acquired clone checked out at the head of a base
// branch. Changes are always made on a fresh branch started from that head.
type Lease struct {
	manager *Manager
	clone   *clone

	ref string
	sha string
}

// Author is the person a commit is attributed to.
type Author struct {
	Name  string
	Email string
}

// NoReplyAuthor attributes a commit to a GitHub user through their noreply
// address.
func NoReplyAuthor(login string) Author {
	return Author{Name: login, Email: login + "@users.noreply.github.com"}
}

// UpdateFunc receives the prepared working tree for a lease and returns the
// commit message that should be used when persisting staged changes.
type UpdateFunc func(context.Context, *git.Worktree) (string, error)

// Option configures a Manager.
type Option func(*Manager)

// WithRemoteURL overrides how the git remote of a resource is derived. The
// default points at github.com.
func WithRemoteURL(fn func(*githubreconciler.Resource) string) Option {
	return func(m *Manager) {
		m.remoteURL = fn
	}
}

// ServerRemoteURL derives remotes from a GitHub server URL such as
// GITHUB_SERVER_URL.
func ServerRemoteURL(serverURL string) func(*githubreconciler.Resource) string {
	serverURL = strings.TrimSuffix(serverURL, "/")
	return func(res *githubreconciler.Resource) string {
		return fmt.Sprintf("%s/%s/%s", serverURL, res.Owner, res.Repo)
	}
}

// New constructs a Manager. The provided OAuth2 token source must allow cloning
// and pushing to the targeted repository. Identity is the committer name, and
// is suffixed with @users.noreply.github.com when it lacks a domain.
func New(_ context.Context, tokenSource oauth2.TokenSource, identity string, opts ...Option) (*Manager, error) {
	if tokenSource == nil {
		return nil, errors.New("token source cannot be nil")
	}

	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, errors.New("identity cannot be empty")
	}

	m := &Manager{
		tokenSource: tokenSource,
		identity:    identity,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Lease hydrates a clone of the resource's repository at the head of ref and
// returns a Lease handle. Callers must invoke Return to release the clone back
// to the pool.
func (m *Manager) Lease(ctx context.Context, res *githubreconciler.Resource, ref string) (*Lease, error) {
	switch {
	case res == nil:
		return nil, errors.New("resource cannot be nil")
	case res.Owner == "":
		return nil, errors.New("resource owner cannot be empty")
	case res.Repo == "":
		return nil, errors.New("resource repo cannot be empty")
	case ref == "":
		return nil, errors.New("ref cannot be empty")
	}

	cl, err := m.acquireClone(ctx, res, ref)
	if err != nil {
		return nil, err
	}

	sha, err := m.prepareClone(ctx, cl, ref)
	if err != nil {
		clog.FromContext(ctx).Warnf("Discarding clone after prepare failure: %v", err)
		m.discardClone(cl)
		return nil, err
	}

	return &Lease{
		manager: m,
		clone:   cl,
		ref:     ref,
		sha:     sha,
	}, nil
}

// acquireClone returns a clone from the pool or creates a new one if the pool
// is empty. Clones are taken from the front of the pool while releaseClone
// appends to the back, so recently returned clones are not immediately reused.
func (m *Manager) acquireClone(ctx context.Context, res *githubreconciler.Resource, ref string) (*clone, error) {
	m.mu.Lock()
	if n := len(m.available); n > 0 {
		cl := m.available[0]
		m.available = m.available[1:]
		m.mu.Unlock()
		return cl, nil
	}
	m.mu.Unlock()

	return m.createClone(ctx, res, ref)
}

func (m *Manager) createClone(ctx context.Context, res *githubreconciler.Resource, ref string) (*clone, error) {
	dir, err := os.MkdirTemp("", cloneDirPrefix)
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}

	remote := repoURL(res)
	if m.remoteURL != nil {
		remote = m.remoteURL(res)
	}
	clog.FromContext(ctx).Infof("Cloning repository %s into %s", remote, dir)

	auth, err := m.authForRemote()
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("getting token: %w", err)
	}

	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:           remote,
		ReferenceName: plumbing.NewBranchReferenceName(ref),
		SingleBranch:  true,
		Auth:          auth,
	})
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("cloning repository: %w", err)
	}

	return &clone{path: dir, repo: repo}, nil
}

func (m *Manager) prepareClone(ctx context.Context, cl *clone, ref string) (string, error) {
	if err := m.resetClone(cl); err != nil {
		return "", err
	}

	hash, found, err := m.fetchBranch(ctx, cl.repo, ref)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%w: %s", ErrBranchNotFound, ref)
	}

	worktree, err := cl.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("getting worktree: %w", err)
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return "", fmt.Errorf("checking out ref %s: %w", ref, err)
	}

	status, err := worktree.Status()
	if err != nil {
		return "", fmt.Errorf("getting worktree status: %w", err)
	}
	if !status.IsClean() {
		return "", errors.New("worktree is not clean after checkout")
	}

	clog.FromContext(ctx).Debugf("Checked out %s at %s", ref, hash)
	return hash.String(), nil
}

// fetchBranch updates refs/remotes/origin/<branch> and returns its hash. It
// reports false when the branch does not exist on the remote.
func (m *Manager) fetchBranch(ctx context.Context, repo *git.Repository, branch string) (plumbing.Hash, bool, error) {
	auth, err := m.authForRemote()
	if err != nil {
		return plumbing.ZeroHash, false, fmt.Errorf("getting token: %w", err)
	}

	refSpec := gitconfig.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/origin/%s", branch, branch))
	clog.FromContext(ctx).Infof("Fetching ref %s", branch)
	err = repo.FetchContext(ctx, &git.FetchOptions{
		RefSpecs: []gitconfig.RefSpec{refSpec},
		Auth:     auth,
		Force:    true,
	})
	switch {
	case errors.Is(err, git.NoMatchingRefSpecError{}):
		return plumbing.ZeroHash, false, nil
	case err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate):
		return plumbing.ZeroHash, false, fmt.Errorf("fetching ref %s: %w", branch, err)
	}

	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", branch), true)
	if err != nil {
		return plumbing.ZeroHash, false, fmt.Errorf("getting remote ref %s: %w", branch, err)
	}
	return remoteRef.Hash(), true, nil
}

func (m *Manager) resetClone(cl *clone) error {
	worktree, err := cl.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}

	if err := worktree.Reset(&git.ResetOptions{Mode: git.HardReset}); err != nil {
		return fmt.Errorf("resetting worktree: %w", err)
	}

	if err := worktree.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return fmt.Errorf("cleaning worktree: %w", err)
	}

	return nil
}

// releaseClone returns a clone to the back of the pool. Combined with
// acquireClone taking from the front, this prevents churning.
func (m *Manager) releaseClone(cl *clone) {
	m.mu.Lock()
	m.available = append(m.available, cl)
	m.mu.Unlock()
}

func (m *Manager) discardClone(cl *clone) {
	os.RemoveAll(cl.path)
}

func (m *Manager) authForRemote() (*githttp.BasicAuth, error) {
	token, err := m.tokenSource.Token()
	if err != nil {
		return nil, err
	}

	return &githttp.BasicAuth{
		Username: "unused-when-using-access-tokens",
		Password: token.AccessToken,
	}, nil
}

func (m *Manager) committer() *object.Signature {
	email := m.identity
	if !strings.Contains(email, "@") {
		email = fmt.Sprintf("%s@users.noreply.github.com", email)
	}
	return &object.Signature{Name: m.identity, Email: email, When: time.Now()}
}

func defaultRemoteURL(res *githubreconciler.Resource) string {
	return fmt.Sprintf("https://github.com/%s/%s", res.Owner, res.Repo)
}

// MakeAndPushChanges creates a fresh branch at the leased SHA, delegates change
// application to updateFn and commits the staged changes as author. When the
// resulting tree equals the tree already on origin/<branch> nothing is pushed;
// otherwise the branch is force pushed. It reports whether a push happened.
//
// A failed commit is retried once after staging every change in the worktree.
func (l *Lease) MakeAndPushChanges(ctx context.Context, branchName string, author Author, updateFn UpdateFunc) (bool, error) {
	if updateFn == nil {
		return false, errors.New("update function cannot be nil")
	}

	ref, err := l.createFreshBranch(branchName)
	if err != nil {
		return false, fmt.Errorf("creating fresh branch: %w", err)
	}

	worktree, err := l.clone.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("getting worktree: %w", err)
	}

	commitMessage, err := updateFn(ctx, worktree)
	if err != nil {
		return false, fmt.Errorf("applying updates: %w", err)
	}

	if commitMessage == "" {
		return false, errors.New("commit message cannot be empty")
	}

	if err := l.manager.commitChanges(ctx, worktree, commitMessage, author); err != nil {
		return false, fmt.Errorf("committing changes: %w", err)
	}

	same, err := l.matchesRemote(ctx, branchName)
	if err != nil {
		return false, fmt.Errorf("comparing with remote: %w", err)
	}
	if same {
		clog.FromContext(ctx).Infof("Branch %s already matches origin, skipping push", branchName)
		return false, nil
	}

	if err := l.manager.forcePushBranch(ctx, l.clone.repo, ref); err != nil {
		return false, fmt.Errorf("force pushing branch: %w", err)
	}

	return true, nil
}

func (l *Lease) createFreshBranch(branchName string) (plumbing.ReferenceName, error) {
	if branchName == "" {
		return "", errors.New("branch name cannot be empty")
	}

	if err := l.manager.resetClone(l.clone); err != nil {
		return "", err
	}

	refName := plumbing.NewBranchReferenceName(branchName)
	newBranchRef := plumbing.NewHashReference(refName, plumbing.NewHash(l.sha))

	if err := l.clone.repo.Storer.SetReference(newBranchRef); err != nil {
		return "", fmt.Errorf("setting branch reference: %w", err)
	}

	worktree, err := l.clone.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("getting worktree: %w", err)
	}

	if err := worktree.Checkout(&git.CheckoutOptions{Branch: refName, Force: true}); err != nil {
		return "", fmt.Errorf("checking out branch: %w", err)
	}

	return refName, nil
}

func (m *Manager) commitChanges(ctx context.Context, worktree *git.Worktree, commitMessage string, author Author) error {
	opts := &git.CommitOptions{
		Author: &object.Signature{
			Name:  author.Name,
			Email: author.Email,
			When:  time.Now(),
		},
		Committer: m.committer(),
	}

	if _, err := worktree.Commit(commitMessage, opts); err != nil {
		clog.FromContext(ctx).Warnf("Commit failed, staging all changes and retrying: %v", err)
		if err := worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
			return fmt.Errorf("staging changes: %w", err)
		}
		if _, err := worktree.Commit(commitMessage, opts); err != nil {
			return fmt.Errorf("committing: %w", err)
		}
	}

	return nil
}

// matchesRemote reports whether HEAD has the same tree as origin/<branch>.
func (l *Lease) matchesRemote(ctx context.Context, branchName string) (bool, error) {
	repo := l.clone.repo

	remoteHash, found, err := l.manager.fetchBranch(ctx, repo, branchName)
	if err != nil || !found {
		return false, err
	}
	remoteCommit, err := repo.CommitObject(remoteHash)
	if err != nil {
		return false, fmt.Errorf("getting remote commit: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return false, fmt.Errorf("getting head: %w", err)
	}
	localCommit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return false, fmt.Errorf("getting local commit: %w", err)
	}

	return localCommit.TreeHash == remoteCommit.TreeHash, nil
}

func (m *Manager) forcePushBranch(ctx context.Context, repo *git.Repository, ref plumbing.ReferenceName) error {
	log := clog.FromContext(ctx)

	auth, err := m.authForRemote()
	if err != nil {
		return fmt.Errorf("getting token: %w", err)
	}

	refSpec := gitconfig.RefSpec(fmt.Sprintf("%s:%s", ref.String(), ref.String()))
	log.Infof("Force pushing to %s", refSpec)

	if err := repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		Auth:       auth,
		Force:      true,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
	}); err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			log.Infof("Branch already up to date")
			return nil
		}
		return fmt.Errorf("force pushing: %w", err)
	}

	return nil
}

// ReadFileAt fetches branch from origin and returns the content of path in its
// head commit. It wraps ErrBranchNotFound when the branch is gone.
func (l *Lease) ReadFileAt(ctx context.Context, branch, path string) ([]byte, error) {
	repo := l.clone.repo

	hash, found, err := l.manager.fetchBranch(ctx, repo, branch)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrBranchNotFound, branch)
	}

	commit, err := repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("getting commit %s: %w", hash, err)
	}
	file, err := commit.File(filepath.ToSlash(path))
	if err != nil {
		return nil, fmt.Errorf("finding %s at %s: %w", path, branch, err)
	}
	content, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("reading %s at %s: %w", path, branch, err)
	}
	return []byte(content), nil
}

// DeleteBranch removes branch from origin.
func (l *Lease) DeleteBranch(ctx context.Context, branch string) error {
	auth, err := l.manager.authForRemote()
	if err != nil {
		return fmt.Errorf("getting token: %w", err)
	}

	refSpec := gitconfig.RefSpec(":" + plumbing.NewBranchReferenceName(branch).String())
	clog.FromContext(ctx).Infof("Deleting remote branch %s", branch)

	if err := l.clone.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		Auth:       auth,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
	}); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("deleting branch %s: %w", branch, err)
	}
	return nil
}

// Files returns path-based access to the lease's worktree.
func (l *Lease) Files() (*Files, error) {
	worktree, err := l.clone.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("getting worktree: %w", err)
	}
	return WorktreeFiles(worktree), nil
}

// ID returns a clone ID based on the underlying working tree path.
func (l *Lease) ID() string {
	return filepath.Base(l.clone.path)
}

// Repo returns the underlying git repository for this lease.
func (l *Lease) Repo() *git.Repository {
	return l.clone.repo
}

// WorkingTree returns the absolute path to the lease's working directory.
func (l *Lease) WorkingTree() string {
	return l.clone.path
}

// Ref returns the base branch the lease was taken on.
func (l *Lease) Ref() string {
	return l.ref
}

// SHA returns the commit hash of the base branch head checked out by the lease.
func (l *Lease) SHA() string {
	return l.sha
}

// Return resets the working tree and places the clone back into the manager's
// pool. Once Return succeeds, the lease should be considered invalid.
func (l *Lease) Return(ctx context.Context) error {
	if err := l.manager.resetClone(l.clone); err != nil {
		l.manager.discardClone(l.clone)
		l.clone = nil
		return err
	}

	l.manager.releaseClone(l.clone)
	l.clone = nil
	l.manager = nil
	l.ref = ""
	l.sha = ""

	return nil
}
