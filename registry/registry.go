/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package registry reads and writes the JSON files listing every accepted
// bot, plugin and adapter.
//
// Entries already in a file are kept as raw JSON so their key order and
// content survive a rewrite byte for byte; only appended entries are encoded
// by this package.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"chainguard.dev/publishflow/publish"
)

// Files reads and writes registry files by path relative to the repository
// root.
type Files interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
}

// Paths locates the registry file of each kind.
type Paths struct {
	Bot     string `env:"BOT_PATH, default=assets/bots.json"`
	Plugin  string `env:"PLUGIN_PATH, default=assets/plugins.json"`
	Adapter string `env:"ADAPTER_PATH, default=assets/adapters.json"`
}

// DefaultPaths returns the standard file layout.
func DefaultPaths() Paths {
	return Paths{
		Bot:     "assets/bots.json",
		Plugin:  "assets/plugins.json",
		Adapter: "assets/adapters.json",
	}
}

// For returns the file holding entries of kind.
func (p Paths) For(kind publish.Kind) string {
	switch kind {
	case publish.KindBot:
		return p.Bot
	case publish.KindPlugin:
		return p.Plugin
	case publish.KindAdapter:
		return p.Adapter
	default:
		panic("unknown kind " + kind.String())
	}
}

// Snapshot is the ordered content of one registry file.
type Snapshot struct {
	entries []json.RawMessage
}

// Load decodes a registry file. An empty input is an empty registry.
func Load(r io.Reader) (*Snapshot, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading registry: %w", err)
	}
	s := &Snapshot{entries: []json.RawMessage{}}
	if len(bytes.TrimSpace(b)) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(b, &s.entries); err != nil {
		return nil, fmt.Errorf("decoding registry: %w", err)
	}
	if s.entries == nil {
		s.entries = []json.RawMessage{}
	}
	return s, nil
}

// Len returns the number of entries.
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// Entries decodes every entry. The result is never nil.
func (s *Snapshot) Entries() ([]publish.Entry, error) {
	out := make([]publish.Entry, 0, len(s.entries))
	for i, raw := range s.entries {
		e, err := decodeEntry(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding entry %d: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// ErrEmpty is returned by Last on a registry without entries.
var ErrEmpty = errors.New("registry is empty")

// Last returns the most recently appended entry.
func (s *Snapshot) Last() (publish.Entry, error) {
	if len(s.entries) == 0 {
		return nil, ErrEmpty
	}
	return decodeEntry(s.entries[len(s.entries)-1])
}

// LastRaw returns the most recently appended entry exactly as stored.
func (s *Snapshot) LastRaw() (json.RawMessage, error) {
	if len(s.entries) == 0 {
		return nil, ErrEmpty
	}
	return slices.Clone(s.entries[len(s.entries)-1]), nil
}

// AppendRaw adds an already encoded entry at the end, keeping its key order.
func (s *Snapshot) AppendRaw(raw json.RawMessage) error {
	if _, err := decodeEntry(raw); err != nil {
		return fmt.Errorf("decoding entry: %w", err)
	}
	s.entries = append(s.entries, slices.Clone(raw))
	return nil
}

// Append adds an entry at the end, encoded in the data's field order.
func (s *Snapshot) Append(d *publish.Data) error {
	b, err := d.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding entry: %w", err)
	}
	s.entries = append(s.entries, json.RawMessage(b))
	return nil
}

// Remove drops the first entry for which match returns true and returns it.
// It reports false when nothing matched.
func (s *Snapshot) Remove(match func(publish.Entry) bool) (publish.Entry, bool, error) {
	for i, raw := range s.entries {
		e, err := decodeEntry(raw)
		if err != nil {
			return nil, false, fmt.Errorf("decoding entry %d: %w", i, err)
		}
		if match(e) {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return e, true, nil
		}
	}
	return nil, false, nil
}

// Encode writes the registry as an indented JSON array without escaping
// non-ASCII or HTML characters, followed by a newline.
func (s *Snapshot) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.entries); err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}
	return nil
}

// Bytes returns the encoded registry.
func (s *Snapshot) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEntry(raw json.RawMessage) (publish.Entry, error) {
	var e publish.Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return e, nil
}

// Read loads the registry file of kind.
func Read(files Files, paths Paths, kind publish.Kind) (*Snapshot, error) {
	path := paths.For(kind)
	b, err := files.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	s, err := Load(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return s, nil
}

// Write stores s as the registry file of kind.
func Write(files Files, paths Paths, kind publish.Kind, s *Snapshot) error {
	path := paths.For(kind)
	b, err := s.Bytes()
	if err != nil {
		return err
	}
	if err := files.WriteFile(path, b); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
