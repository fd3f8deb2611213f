/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package publish

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

// Error types reported in FieldError.Type.
const (
	ErrRequired              = "required"
	ErrTooShort              = "too_short"
	ErrTooLong               = "too_long"
	ErrStringType            = "string_type"
	ErrStringPatternMismatch = "string_pattern_mismatch"
	ErrHomepage              = "homepage"
	ErrJSON                  = "json_type"
	ErrListType              = "list_type"
	ErrDictType              = "dict_type"
	ErrSetType               = "set_type"
	ErrColor                 = "color_error"
	ErrModuleName            = "module_name"
	ErrProjectLinkName       = "project_link.name"
	ErrProjectLinkNotFound   = "project_link.not_found"
	ErrPluginType            = "plugin.type"
	ErrMissingAdapters       = "missing"
	ErrStoreAdapters         = "store_adapters"
	ErrPluginTest            = "plugin_test"
	ErrDuplication           = "duplication"
	ErrPreviousData          = "previous_data"
)

// FieldError describes one failed rule.
type FieldError struct {
	Type  string         `json:"type"`
	Loc   []any          `json:"loc"`
	Msg   string         `json:"msg"`
	Input any            `json:"input,omitempty"`
	Ctx   map[string]any `json:"ctx,omitempty"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%v: %s", e.Loc, e.Msg)
}

// Field returns the top level field the error refers to, or "" for record
// level errors.
func (e FieldError) Field() string {
	if len(e.Loc) == 0 {
		return ""
	}
	s, _ := e.Loc[0].(string)
	return s
}

// TagIndex returns the tag index for errors located inside a tag.
func (e FieldError) TagIndex() (int, bool) {
	if len(e.Loc) < 2 || e.Field() != FieldTags {
		return 0, false
	}
	i, ok := e.Loc[1].(int)
	return i, ok
}

// Data is an insertion ordered set of normalized fields.
type Data struct {
	keys   []string
	values map[string]any
}

// NewData returns empty normalized data.
func NewData() *Data {
	return &Data{values: map[string]any{}}
}

// Set stores v under key, keeping the original position of existing keys.
func (d *Data) Set(key string, v any) {
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
}

// Get returns the value stored under key.
func (d *Data) Get(key string) (any, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d.values[key]
	return v, ok
}

// String returns the string stored under key.
func (d *Data) String(key string) string {
	v, _ := d.Get(key)
	s, _ := v.(string)
	return s
}

// Keys returns the keys in insertion order.
func (d *Data) Keys() []string {
	if d == nil {
		return nil
	}
	return slices.Clone(d.keys)
}

// Len returns the number of fields.
func (d *Data) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Pick returns a copy holding only the listed keys that are present, in the
// order given.
func (d *Data) Pick(keys ...string) *Data {
	out := NewData()
	for _, k := range keys {
		if v, ok := d.Get(k); ok {
			out.Set(k, v)
		}
	}
	return out
}

// MarshalJSON encodes the fields in insertion order without HTML escaping.
func (d *Data) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range d.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshalNoEscape(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := marshalNoEscape(d.values[k])
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalYAML keeps the insertion order, like MarshalJSON.
func (d *Data) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range d.Keys() {
		var v yaml.Node
		if err := v.Encode(d.values[k]); err != nil {
			return nil, fmt.Errorf("encoding %s: %w", k, err)
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, &v)
	}
	return node, nil
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Result is the outcome of one validation pass.
type Result struct {
	Valid    bool
	Kind     Kind
	Data     *Data
	Errors   []FieldError
	Name     string
	Author   string
	AuthorID int64
}

// Entry projects the normalized data onto the fields stored in the registry
// file for the result's kind.
func (r Result) Entry() *Data {
	return StoreEntry(r.Kind, r.Data)
}

// StoreEntry projects normalized data onto the registry fields of kind.
func StoreEntry(kind Kind, d *Data) *Data {
	switch kind {
	case KindBot:
		return d.Pick(FieldName, FieldDesc, FieldAuthor, FieldAuthorID, FieldHomepage, FieldTags, FieldIsOfficial)
	case KindAdapter:
		return d.Pick(FieldModuleName, FieldProjectLink, FieldName, FieldDesc, FieldAuthor, FieldAuthorID, FieldHomepage, FieldTags, FieldIsOfficial)
	case KindPlugin:
		return d.Pick(FieldModuleName, FieldProjectLink, FieldAuthor, FieldAuthorID, FieldTags, FieldIsOfficial)
	default:
		panic("unknown kind " + kind.String())
	}
}
