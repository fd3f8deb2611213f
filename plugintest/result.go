/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package plugintest

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Metadata is what the loaded plugin reports about itself.
type Metadata struct {
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Usage             string   `json:"usage"`
	Type              *string  `json:"type"`
	Homepage          *string  `json:"homepage"`
	SupportedAdapters []string `json:"supported_adapters"`
}

// Result is the outcome of one sandboxed plugin run.
type Result struct {
	// Load is true when the plugin imported and initialized.
	Load bool `json:"load"`
	// Run is true when the isolated project was created and installed.
	Run     bool    `json:"run"`
	Version *string `json:"version"`
	Config  *string `json:"config"`
	// Metadata is nil when the plugin exposes none.
	Metadata *Metadata `json:"metadata"`
	Outputs  []string  `json:"outputs"`
}

// Decode reads a Result as written by the sandbox. An empty metadata object
// decodes as nil.
func Decode(r io.Reader) (*Result, error) {
	var raw struct {
		Result
		Metadata json.RawMessage `json:"metadata"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding plugin test result: %w", err)
	}

	res := raw.Result
	res.Metadata = nil
	if m := strings.TrimSpace(string(raw.Metadata)); m != "" && m != "null" && m != "{}" {
		var md Metadata
		if err := json.Unmarshal(raw.Metadata, &md); err != nil {
			return nil, fmt.Errorf("decoding plugin metadata: %w", err)
		}
		res.Metadata = &md
	}
	return &res, nil
}

// Failed returns the result of a run that timed out or crashed before
// producing output of its own.
func Failed(reason string) *Result {
	return &Result{Outputs: []string{reason}}
}

// Output joins the captured lines with ANSI escapes removed.
func (r *Result) Output() string {
	if r == nil {
		return ""
	}
	return StripANSI(strings.Join(r.Outputs, "\n"))
}

// InstalledVersion returns the version the sandbox reported, or the one found
// in its output for projectLink. It is "" when neither is known.
func (r *Result) InstalledVersion(projectLink string) string {
	if r == nil {
		return ""
	}
	if r.Version != nil && *r.Version != "" {
		return *r.Version
	}
	if v := ExtractVersion(r.Output(), projectLink); v != nil {
		return v.String()
	}
	return ""
}
