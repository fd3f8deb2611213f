/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package publish

import (
	"fmt"
	"strings"
)

// Kind is the category of a registry listing. Its string form doubles as the
// label name applied to issues and pull requests.
type Kind int

const (
	KindBot Kind = iota + 1
	KindPlugin
	KindAdapter
)

// Kinds returns every Kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindBot, KindPlugin, KindAdapter}
}

// String returns the label name of the kind.
func (k Kind) String() string {
	switch k {
	case KindBot:
		return "Bot"
	case KindPlugin:
		return "Plugin"
	case KindAdapter:
		return "Adapter"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindBot, KindPlugin, KindAdapter:
		return true
	default:
		return false
	}
}

// Lower returns the lowercase name used in commit messages.
func (k Kind) Lower() string {
	return strings.ToLower(k.String())
}

// MarshalText encodes the kind as its label name.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unknown kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a label name.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, ok := ParseKind(string(b))
	if !ok {
		return fmt.Errorf("unknown kind %q", string(b))
	}
	*k = parsed
	return nil
}

// ParseKind maps a label name to its Kind.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds() {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// KindFromLabels returns the first label that names a kind.
func KindFromLabels(labels []string) (Kind, bool) {
	for _, l := range labels {
		if k, ok := ParseKind(l); ok {
			return k, true
		}
	}
	return 0, false
}
