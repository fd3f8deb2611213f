/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package extract parses issue bodies written from the publish issue forms
// into raw records. Each field is introduced by a "### <label>" heading and
// runs until the next heading or the end of the text.
package extract

import (
	"regexp"
	"strings"

	"chainguard.dev/publishflow/publish"
)

// Labels of the issue form headings.
const (
	LabelProjectLink = "PyPI 项目名"
	LabelTags        = "标签"

	LabelBotName     = "机器人名称"
	LabelBotDesc     = "机器人功能"
	LabelBotHomepage = "机器人项目仓库/主页链接"

	LabelPluginName              = "插件名称"
	LabelPluginDesc              = "插件功能"
	LabelPluginModuleName        = "插件 import 包名"
	LabelPluginHomepage          = "插件项目仓库/主页链接"
	LabelPluginType              = "插件类型"
	LabelPluginSupportedAdapters = "插件支持的适配器"
	LabelPluginConfig            = "插件配置项"

	LabelAdapterName       = "协议名称"
	LabelAdapterDesc       = "协议功能"
	LabelAdapterModuleName = "协议 import 包名"
	LabelAdapterHomepage   = "协议项目仓库/主页链接"

	// LabelRemoveHomepage identifies the listing to drop in a removal request.
	LabelRemoveHomepage = "项目主页"
)

var configPattern = regexp.MustCompile("### " + regexp.QuoteMeta(LabelPluginConfig) + "\\s+```(?:\\w+)?\\s?([\\s\\S]*?)```")

// field binds a record key to its heading label.
type field struct {
	key   string
	label string
}

// fields returns the headings read for kind. With skipTest set, plugin
// fields that would otherwise come from test metadata are read as well.
func fields(kind publish.Kind, skipTest bool) []field {
	switch kind {
	case publish.KindBot:
		return []field{
			{publish.FieldName, LabelBotName},
			{publish.FieldDesc, LabelBotDesc},
			{publish.FieldHomepage, LabelBotHomepage},
			{publish.FieldTags, LabelTags},
		}
	case publish.KindAdapter:
		return []field{
			{publish.FieldModuleName, LabelAdapterModuleName},
			{publish.FieldProjectLink, LabelProjectLink},
			{publish.FieldName, LabelAdapterName},
			{publish.FieldDesc, LabelAdapterDesc},
			{publish.FieldHomepage, LabelAdapterHomepage},
			{publish.FieldTags, LabelTags},
		}
	case publish.KindPlugin:
		fs := []field{
			{publish.FieldModuleName, LabelPluginModuleName},
			{publish.FieldProjectLink, LabelProjectLink},
			{publish.FieldTags, LabelTags},
		}
		if skipTest {
			fs = append(fs,
				field{publish.FieldName, LabelPluginName},
				field{publish.FieldDesc, LabelPluginDesc},
				field{publish.FieldHomepage, LabelPluginHomepage},
				field{publish.FieldType, LabelPluginType},
				field{publish.FieldSupportedAdapters, LabelPluginSupportedAdapters},
			)
		}
		return fs
	default:
		panic("unknown kind " + kind.String())
	}
}

// SkipTestLabels are the plugin headings a submitter fills in when the load
// test is bypassed.
var SkipTestLabels = []string{
	LabelPluginName,
	LabelPluginDesc,
	LabelPluginHomepage,
	LabelPluginType,
	LabelPluginSupportedAdapters,
}

type options struct {
	skipTest bool
}

// Option configures Extract.
type Option func(*options)

// WithSkipTest reads plugin metadata fields from the body.
func WithSkipTest(skip bool) Option {
	return func(o *options) {
		o.skipTest = skip
	}
}

// Extract parses body into a record for kind. Fields without a heading or
// without content are absent from the record.
func Extract(body string, kind publish.Kind, opts ...Option) publish.Record {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	rec := publish.Record{}
	for _, f := range fields(kind, o.skipTest) {
		if v, ok := Field(body, f.label); ok {
			rec[f.key] = v
		}
	}
	return rec
}

// Field returns the content under the "### label" heading.
func Field(body, label string) (string, bool) {
	m := fieldPattern(label).FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

func fieldPattern(label string) *regexp.Regexp {
	return regexp.MustCompile(`### ` + regexp.QuoteMeta(label) + `\s+([^\s#][^\n]*?)(?:\s+###|\s*\z)`)
}

// Config returns the fenced configuration block of a plugin submission, or
// "" when there is none.
func Config(body string) string {
	m := configPattern.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return m[1]
}

// EnsureFields prepends an empty heading for every label missing from body
// and reports whether anything was added.
func EnsureFields(body string, labels []string) (string, bool) {
	var missing []string
	for _, label := range labels {
		if !headingPattern(label).MatchString(body) {
			missing = append(missing, "### "+label+"\n")
		}
	}
	if len(missing) == 0 {
		return body, false
	}
	return strings.Join(append(missing, body), "\n"), true
}

func headingPattern(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)^### ` + regexp.QuoteMeta(label) + `\s*$`)
}
