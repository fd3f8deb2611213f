/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package publish

import (
	"fmt"
	"regexp"
	"strconv"
)

const (
	// CommentMarker is appended to every bot comment so it can be found again.
	CommentMarker = "<!-- NONEFLOW -->"

	// SkipTestComment is the maintainer comment that bypasses the plugin test.
	SkipTestComment = "/skip"

	CommitMessagePrefix = ":beers: publish"
	BranchPrefix        = "publish/issue"

	RemoveCommitMessagePrefix = ":hammer: remove"
	RemoveBranchPrefix        = "remove/issue"
	RemoveLabel               = "Remove"

	// TitleMaxLength bounds pull request and issue titles.
	TitleMaxLength = 50
)

var (
	issueRefPattern = regexp.MustCompile(`(\w{4,10})/issue(\d+)`)
)

// BranchName returns the publish branch for an issue.
func BranchName(issue int) string {
	return BranchPrefix + strconv.Itoa(issue)
}

// RemoveBranchName returns the removal branch for an issue.
func RemoveBranchName(issue int) string {
	return RemoveBranchPrefix + strconv.Itoa(issue)
}

// CommitMessage formats the commit that adds a listing.
func CommitMessage(kind Kind, name string, issue int) string {
	return fmt.Sprintf("%s %s %s (#%d)", CommitMessagePrefix, kind.Lower(), name, issue)
}

// RemoveCommitMessage formats the commit that drops a listing.
func RemoveCommitMessage(kind Kind, name string, issue int) string {
	return fmt.Sprintf("%s %s %s (#%d)", RemoveCommitMessagePrefix, kind.Lower(), name, issue)
}

// Title formats the pull request and issue title for a listing.
func Title(kind Kind, name string) string {
	return truncate(fmt.Sprintf("%s: %s", kind, name), TitleMaxLength)
}

// RemoveTitle formats the title for a removal request.
func RemoveTitle(kind Kind, name string) string {
	if name == "" {
		name = "Unknown"
	}
	return truncate(fmt.Sprintf("%s: Remove %s", kind, name), TitleMaxLength)
}

// IssueNumberFromRef extracts the issue number from a bot branch name such as
// "publish/issue12" or "remove/issue7".
func IssueNumberFromRef(ref string) (int, bool) {
	m := issueRefPattern.FindStringSubmatch(ref)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}
	return n, true
}

// NameFromTitle recovers the listing name from a pull request title.
func NameFromTitle(title string, kind Kind) (string, bool) {
	re := regexp.MustCompile(regexp.QuoteMeta(kind.String()) + `: (.+)`)
	m := re.FindStringSubmatch(title)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
