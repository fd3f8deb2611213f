/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package clonemanager

import (
	"context"
	"fmt"
	"sync"

	"chainguard.dev/publishflow/reconcilers/githubreconciler"
	"golang.org/x/oauth2"
)

// TokenSourceForRepo resolves push credentials for owner/repo.
type TokenSourceForRepo func(ctx context.Context, owner, repo string) (oauth2.TokenSource, error)

// Meta hands out one Manager per repository. Managers are built on first use
// with the options given to NewMeta.
type Meta struct {
	ctx            context.Context
	tokenSourceFor TokenSourceForRepo
	identity       string
	opts           []Option

	mu       sync.Mutex
	managers map[string]*Manager
}

// NewMeta creates a Meta committing as identity.
func NewMeta(ctx context.Context, tokenSourceFor TokenSourceForRepo, identity string, opts ...Option) *Meta {
	return &Meta{
		ctx:            ctx,
		tokenSourceFor: tokenSourceFor,
		identity:       identity,
		opts:           opts,
		managers:       make(map[string]*Manager),
	}
}

// Get returns the Manager of owner/repo.
func (m *Meta) Get(owner, repo string) (*Manager, error) {
	key := owner + "/" + repo

	m.mu.Lock()
	defer m.mu.Unlock()
	if mgr, ok := m.managers[key]; ok {
		return mgr, nil
	}

	ts, err := m.tokenSourceFor(m.ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("token source for %s: %w", key, err)
	}
	mgr, err := New(m.ctx, ts, m.identity, m.opts...)
	if err != nil {
		return nil, fmt.Errorf("clone manager for %s: %w", key, err)
	}
	m.managers[key] = mgr
	return mgr, nil
}

// Lease checks out ref of the repository res belongs to.
func (m *Meta) Lease(ctx context.Context, res *githubreconciler.Resource, ref string) (*Lease, error) {
	mgr, err := m.Get(res.Owner, res.Repo)
	if err != nil {
		return nil, err
	}
	return mgr.Lease(ctx, res, ref)
}
