/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package githubreconciler holds the pieces shared by the GitHub-facing
// reconcilers: the Resource being reconciled, authenticated clients, and
// normalization of GitHub Actions event payloads.
//
// A reconciler receives a normalized Event, resolves a client for the
// event's repository from a ClientCache, and acts on the Resource:
//
//	cache := githubreconciler.NewClientCache(func(ctx context.Context, owner, repo string) (oauth2.TokenSource, error) {
//		return githubreconciler.NewAppTokenSource(ctx, appID, key, owner, repo)
//	})
//	ev, err := githubreconciler.ParseEvent(name, payload)
//	gh, err := cache.Get(ctx, ev.Owner, ev.Repo)
//	err = rec.Reconcile(ctx, ev, gh)
package githubreconciler
