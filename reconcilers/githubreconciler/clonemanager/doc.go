/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package clonemanager provides pooled git clones for the publish and remove
// flows. A Manager is configured with the GitHub token source and committer
// identity of the automation, and exposes Lease handles that:
//   - Check out the head of a base branch into an isolated working tree.
//   - Offer MakeAndPushChanges, which starts a fresh branch from that head,
//     applies a callback, commits as the submitter and force-pushes unless
//     origin already holds the same tree.
//   - Read files from, and delete, other branches on origin.
//
// Callers acquire a lease per event, edit registry files through Files, and
// finally Return the lease to reset and reuse the clone.
package clonemanager
