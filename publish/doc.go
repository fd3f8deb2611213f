/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package publish holds the data model shared by the registry review flow:
// the listing kinds, raw submissions extracted from issues, the validation
// context and result, and the naming conventions for branches, commits and
// titles that the reconcilers rely on to find their own work again.
//
// The subpackages build on it:
//   - extract turns issue text into a Record.
//   - check answers duplicate and reachability questions.
//   - validate turns a Record into a Result.
//   - render turns a Result into the Markdown comment posted on the issue.
package publish
