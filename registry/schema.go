/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package registry

import (
	"chainguard.dev/publishflow/publish"
	"github.com/invopop/jsonschema"
)

// BotEntry is the stored form of a bot listing.
type BotEntry struct {
	Name       string        `json:"name" jsonschema:"required,minLength=1,maxLength=50"`
	Desc       string        `json:"desc" jsonschema:"required,minLength=1"`
	Author     string        `json:"author" jsonschema:"required"`
	AuthorID   int64         `json:"author_id" jsonschema:"required"`
	Homepage   string        `json:"homepage" jsonschema:"required,pattern=^https?://.*$"`
	Tags       []publish.Tag `json:"tags" jsonschema:"required,maxItems=3"`
	IsOfficial bool          `json:"is_official" jsonschema:"required"`
}

// AdapterEntry is the stored form of an adapter listing.
type AdapterEntry struct {
	ModuleName  string        `json:"module_name" jsonschema:"required"`
	ProjectLink string        `json:"project_link" jsonschema:"required"`
	Name        string        `json:"name" jsonschema:"required,minLength=1,maxLength=50"`
	Desc        string        `json:"desc" jsonschema:"required,minLength=1"`
	Author      string        `json:"author" jsonschema:"required"`
	AuthorID    int64         `json:"author_id" jsonschema:"required"`
	Homepage    string        `json:"homepage" jsonschema:"required,pattern=^https?://.*$"`
	Tags        []publish.Tag `json:"tags" jsonschema:"required,maxItems=3"`
	IsOfficial  bool          `json:"is_official" jsonschema:"required"`
}

// PluginEntry is the stored form of a plugin listing. The remaining plugin
// metadata is collected by the registry from the load test.
type PluginEntry struct {
	ModuleName  string        `json:"module_name" jsonschema:"required"`
	ProjectLink string        `json:"project_link" jsonschema:"required"`
	Author      string        `json:"author" jsonschema:"required"`
	AuthorID    int64         `json:"author_id" jsonschema:"required"`
	Tags        []publish.Tag `json:"tags" jsonschema:"required,maxItems=3"`
	IsOfficial  bool          `json:"is_official" jsonschema:"required"`
}

// Schema returns the JSON Schema of one entry of kind.
func Schema(kind publish.Kind) *jsonschema.Schema {
	r := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	switch kind {
	case publish.KindBot:
		return r.Reflect(&BotEntry{})
	case publish.KindAdapter:
		return r.Reflect(&AdapterEntry{})
	case publish.KindPlugin:
		return r.Reflect(&PluginEntry{})
	default:
		panic("unknown kind " + kind.String())
	}
}
