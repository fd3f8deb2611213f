/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package removereconciler

import (
	"errors"
	"strings"

	"chainguard.dev/publishflow/publish"
	"chainguard.dev/publishflow/publish/render"
	"chainguard.dev/publishflow/registry"
)

var (
	// ErrNotFound means no listing of the kind has the requested homepage.
	ErrNotFound = errors.New("没有包含对应主页链接的包")
	// ErrAuthorMismatch means the listing belongs to someone else.
	ErrAuthorMismatch = errors.New("作者信息不匹配")
)

// Target is the listing a removal request points at.
type Target struct {
	Kind     publish.Kind
	Homepage string
	Entry    publish.Entry
}

// Name is the listing name used in titles and commits. Plugin entries carry
// no name, so their PyPI project stands in.
func (t Target) Name() string {
	if name := t.Entry.String(publish.FieldName); name != "" {
		return name
	}
	return t.Entry.String(publish.FieldProjectLink)
}

// find returns the entry of s whose homepage is homepage and checks that
// submitter owns it.
func find(kind publish.Kind, s *registry.Snapshot, homepage string, submitter publish.Submitter) (Target, error) {
	if homepage == "" {
		return Target{}, ErrNotFound
	}
	entries, err := s.Entries()
	if err != nil {
		return Target{}, err
	}
	for _, e := range entries {
		if !homepageMatches(e, homepage) {
			continue
		}
		if !ownedBy(e, submitter) {
			return Target{}, ErrAuthorMismatch
		}
		return Target{Kind: kind, Homepage: homepage, Entry: e}, nil
	}
	return Target{}, ErrNotFound
}

// drop removes the entry matching homepage from s.
func drop(s *registry.Snapshot, homepage string) (bool, error) {
	_, ok, err := s.Remove(func(e publish.Entry) bool {
		return homepageMatches(e, homepage)
	})
	return ok, err
}

// homepageMatches compares links without their trailing slash. Entries
// without a homepage are reached through their PyPI project page.
func homepageMatches(e publish.Entry, homepage string) bool {
	want := strings.TrimSuffix(homepage, "/")
	if h := e.String(publish.FieldHomepage); h != "" {
		return strings.TrimSuffix(h, "/") == want
	}
	if p := e.String(publish.FieldProjectLink); p != "" {
		return strings.TrimSuffix(render.PyPIProjectURL(p), "/") == want
	}
	return false
}

// ownedBy compares author_id when the entry has one and the login otherwise.
func ownedBy(e publish.Entry, submitter publish.Submitter) bool {
	if id, ok := e[publish.FieldAuthorID].(float64); ok {
		return int64(id) == submitter.ID
	}
	return e.String(publish.FieldAuthor) == submitter.Login
}
