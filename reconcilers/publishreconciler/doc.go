/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package publishreconciler reviews store listing requests filed as issues.
//
// An issue labeled with a listing kind (Bot, Adapter or Plugin) is parsed,
// validated against the current registry and, when valid, appended to the
// registry file on a publish/issue<n> branch with a pull request that
// resolves the issue. Every review leaves one result comment on the issue,
// which later reviews update in place.
//
// When a publish pull request closes, the issue is closed as completed or not
// planned and the branch is deleted. After a merge, the other open pull
// requests of the same kind are rebuilt on top of the new base, and the
// registry repository receives a registry_update dispatch.
//
// # Basic Usage
//
//	cm, err := lifecycle.NewChangeManager(identity)
//	rec, err := publishreconciler.New(cm, cloneMeta,
//	    publishreconciler.WithChecker(check.New()),
//	    publishreconciler.WithRegistryRepository("nonebot/registry"),
//	)
//	err = rec.Reconcile(ctx, ev, gh)
package publishreconciler
