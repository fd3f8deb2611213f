/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package removereconciler handles requests to drop a store listing.
//
// A removal request is an issue labeled Remove plus the listing kind whose
// "项目主页" section names the homepage of the listing. The listing is looked
// up in the registry by homepage and must belong to the submitter. A valid
// request gets a remove/issue<n> branch without the entry and a pull request
// labeled Remove and the kind.
//
// An approving review from a repository owner or member merges the pull
// request with a rebase, rebuilding the branch first when it conflicts. When
// a removal merges, the other open removals are rebuilt on the new base.
package removereconciler
