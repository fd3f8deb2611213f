/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package publish

import (
	"maps"

	"chainguard.dev/publishflow/plugintest"
)

// Field names shared by records, normalized data and registry entries.
const (
	FieldName              = "name"
	FieldDesc              = "desc"
	FieldAuthor            = "author"
	FieldAuthorID          = "author_id"
	FieldHomepage          = "homepage"
	FieldTags              = "tags"
	FieldIsOfficial        = "is_official"
	FieldModuleName        = "module_name"
	FieldProjectLink       = "project_link"
	FieldType              = "type"
	FieldSupportedAdapters = "supported_adapters"
	FieldPluginTest        = "plugin_test"
)

// Record is the raw submission as extracted from an issue. A missing key
// means the field was not provided; a present key holding nil means the
// submitter explicitly left it unset.
type Record map[string]any

// String returns the value of key when it is a string.
func (r Record) String(key string) (string, bool) {
	v, ok := r[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	return maps.Clone(r)
}

// Tag is a short colored label attached to a listing.
type Tag struct {
	Label string `json:"label" yaml:"label"`
	Color string `json:"color" yaml:"color"`
}

// Entry is a decoded registry record.
type Entry map[string]any

// String returns the value of key when it is a string.
func (e Entry) String(key string) string {
	s, _ := e[key].(string)
	return s
}

// Identity is the uniqueness key of a listing.
type Identity struct {
	Kind Kind
	A, B string
}

// IdentityOf derives the identity fields for kind from a record. It reports
// false when either component is missing or empty.
func IdentityOf(kind Kind, r Record) (Identity, bool) {
	ka, kb := identityKeys(kind)
	a, _ := r.String(ka)
	b, _ := r.String(kb)
	if a == "" || b == "" {
		return Identity{}, false
	}
	return Identity{Kind: kind, A: a, B: b}, true
}

// Matches reports whether the entry carries the same identity.
func (id Identity) Matches(e Entry) bool {
	ka, kb := identityKeys(id.Kind)
	return e.String(ka) == id.A && e.String(kb) == id.B
}

func identityKeys(kind Kind) (string, string) {
	switch kind {
	case KindBot:
		return FieldName, FieldHomepage
	case KindPlugin, KindAdapter:
		return FieldProjectLink, FieldModuleName
	default:
		panic("unknown kind " + kind.String())
	}
}

// Submitter identifies who opened the issue.
type Submitter struct {
	Login string
	ID    int64
}

// Context carries everything validation needs beyond the raw record. It is
// passed by value and never mutated.
type Context struct {
	// PreviousData is the current registry snapshot for the kind. Nil means
	// the snapshot was not loaded, which fails validation.
	PreviousData []Entry

	// SkipTest is set when a maintainer asked to bypass the plugin test. Plugin
	// metadata is then read from the issue body.
	SkipTest bool

	// Test is the sandboxed plugin test outcome, if one ran.
	Test *plugintest.Result

	Submitter Submitter
}
