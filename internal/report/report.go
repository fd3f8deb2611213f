/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package report prints validation results for the check command, either as
// tables for a terminal or as YAML for scripts.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"chainguard.dev/publishflow/publish"
	"gopkg.in/yaml.v3"
)

// Summary is the printable form of a validation result.
type Summary struct {
	Kind   string        `yaml:"kind"`
	Name   string        `yaml:"name,omitempty"`
	Valid  bool          `yaml:"valid"`
	Data   *publish.Data `yaml:"data,omitempty"`
	Errors []Error       `yaml:"errors,omitempty"`
}

// Error is one field error.
type Error struct {
	Field   string `yaml:"field"`
	Type    string `yaml:"type"`
	Message string `yaml:"message"`
}

// Summarize flattens res.
func Summarize(res publish.Result) Summary {
	s := Summary{
		Kind:  res.Kind.String(),
		Name:  res.Name,
		Valid: res.Valid,
	}
	if res.Data != nil && res.Data.Len() > 0 {
		s.Data = res.Data
	}
	for _, e := range res.Errors {
		s.Errors = append(s.Errors, Error{
			Field:   location(e.Loc),
			Type:    e.Type,
			Message: e.Msg,
		})
	}
	return s
}

// Table writes the normalized fields and the errors of res as two tables.
func Table(w io.Writer, res publish.Result) error {
	s := Summarize(res)

	status := "valid"
	if !s.Valid {
		status = "invalid"
	}
	if _, err := fmt.Fprintf(w, "%s %s: %s\n\n", s.Kind, s.Name, status); err != nil {
		return err
	}

	if s.Data != nil {
		fields := newTable([]string{"Field", "Value"}, w)
		for _, k := range s.Data.Keys() {
			v, _ := s.Data.Get(k)
			if err := fields.Append([]string{k, value(v)}); err != nil {
				return fmt.Errorf("adding row %s: %w", k, err)
			}
		}
		if err := fields.Render(); err != nil {
			return fmt.Errorf("rendering fields: %w", err)
		}
	}

	if len(s.Errors) == 0 {
		return nil
	}
	if s.Data != nil {
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	errs := newTable([]string{"Field", "Type", "Message"}, w)
	for _, e := range s.Errors {
		if err := errs.Append([]string{e.Field, e.Type, e.Message}); err != nil {
			return fmt.Errorf("adding error row: %w", err)
		}
	}
	if err := errs.Render(); err != nil {
		return fmt.Errorf("rendering errors: %w", err)
	}
	return nil
}

// YAML writes res as a YAML document.
func YAML(w io.Writer, res publish.Result) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(Summarize(res)); err != nil {
		return fmt.Errorf("encoding yaml: %w", err)
	}
	return enc.Close()
}

// location joins an error location such as ["tags", 0, "label"] into
// "tags.0.label". Record level errors have no location.
func location(loc []any) string {
	parts := make([]string, 0, len(loc))
	for _, p := range loc {
		parts = append(parts, fmt.Sprint(p))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ".")
}

func value(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
