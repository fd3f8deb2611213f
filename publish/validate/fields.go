/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"chainguard.dev/publishflow/publish"
)

const (
	// MaxNameLength bounds listing names, in characters.
	MaxNameLength = 50
	// MaxTags bounds the number of tags on a listing.
	MaxTags = 3
	// MaxTagLabelLength bounds tag labels, in characters.
	MaxTagLabelLength = 10

	// HomepagePattern is the shape every homepage must have.
	HomepagePattern = `^https?://.*$`

	adapterPrefix = "nonebot.adapters."
)

// PluginTypes are the accepted plugin types.
var PluginTypes = []string{"application", "library"}

var (
	moduleNamePattern  = regexp.MustCompile(`(?i)^([A-Z]|[A-Z][A-Z0-9._-]*[A-Z0-9])$`)
	projectLinkPattern = regexp.MustCompile(`(?i)^([A-Z0-9]|[A-Z0-9][A-Z0-9._-]*[A-Z0-9])$`)
	homepagePattern    = regexp.MustCompile(HomepagePattern)
	colorPattern       = regexp.MustCompile(`^#?([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
)

// str reads a required string field, recording an error when it is absent
// or not a string.
func (v *validator) str(field string) (string, bool) {
	raw, ok := v.rec[field]
	if !ok {
		v.fail(field, publish.ErrRequired, "字段不能为空", nil)
		return "", false
	}
	s, ok := raw.(string)
	if !ok {
		v.fail(field, publish.ErrStringType, "输入应为有效的字符串", nil)
		return "", false
	}
	return s, true
}

func (v *validator) name() {
	s, ok := v.str(publish.FieldName)
	if !ok {
		return
	}
	switch n := utf8.RuneCountInString(s); {
	case n == 0:
		v.fail(publish.FieldName, publish.ErrTooShort, "字符串长度不能少于 1 个字符", map[string]any{"min_length": 1})
	case n > MaxNameLength:
		v.fail(publish.FieldName, publish.ErrTooLong, fmt.Sprintf("字符串长度不能超过 %d 个字符", MaxNameLength), map[string]any{"max_length": MaxNameLength})
	default:
		v.data.Set(publish.FieldName, s)
	}
}

func (v *validator) desc() {
	s, ok := v.str(publish.FieldDesc)
	if !ok {
		return
	}
	if s == "" {
		v.fail(publish.FieldDesc, publish.ErrTooShort, "字符串长度不能少于 1 个字符", map[string]any{"min_length": 1})
		return
	}
	v.data.Set(publish.FieldDesc, s)
}

// author always comes from the submitter, never from the issue text.
func (v *validator) author() {
	if v.vctx.Submitter.Login == "" {
		v.errs = append(v.errs, publish.FieldError{
			Type: publish.ErrRequired,
			Loc:  []any{publish.FieldAuthor},
			Msg:  "字段不能为空",
		})
		return
	}
	v.data.Set(publish.FieldAuthor, v.vctx.Submitter.Login)
	v.data.Set(publish.FieldAuthorID, v.vctx.Submitter.ID)
}

func (v *validator) homepage() {
	s, ok := v.str(publish.FieldHomepage)
	if !ok {
		return
	}
	if !homepagePattern.MatchString(s) {
		v.fail(publish.FieldHomepage, publish.ErrStringPatternMismatch,
			fmt.Sprintf("字符串应满足格式 '%s'", HomepagePattern),
			map[string]any{"pattern": HomepagePattern})
		return
	}
	if st := v.checker.URL(v.ctx, s); !st.OK() {
		v.fail(publish.FieldHomepage, publish.ErrHomepage, "项目主页无法访问",
			map[string]any{"status_code": st.Code, "msg": st.Msg})
		return
	}
	v.data.Set(publish.FieldHomepage, s)
}

func (v *validator) moduleName() {
	s, ok := v.str(publish.FieldModuleName)
	if !ok {
		return
	}
	if !moduleNamePattern.MatchString(s) {
		v.fail(publish.FieldModuleName, publish.ErrModuleName, "包名不符合规范", nil)
		return
	}
	v.data.Set(publish.FieldModuleName, s)
}

func (v *validator) projectLink() {
	s, ok := v.str(publish.FieldProjectLink)
	if !ok {
		return
	}
	if !projectLinkPattern.MatchString(s) {
		v.fail(publish.FieldProjectLink, publish.ErrProjectLinkName, "PyPI 项目名不符合规范", nil)
		return
	}
	if !v.checker.PyPI(v.ctx, s) {
		v.fail(publish.FieldProjectLink, publish.ErrProjectLinkNotFound, "PyPI 项目名不存在", nil)
		return
	}
	v.data.Set(publish.FieldProjectLink, s)
}

func (v *validator) pluginType() {
	raw, ok := v.rec[publish.FieldType]
	if !ok {
		v.fail(publish.FieldType, publish.ErrRequired, "字段不能为空", nil)
		return
	}
	s, _ := raw.(string)
	if !slices.Contains(PluginTypes, s) {
		v.fail(publish.FieldType, publish.ErrPluginType, "插件类型不符合规范", nil)
		return
	}
	v.data.Set(publish.FieldType, s)
}

func (v *validator) supportedAdapters() {
	const field = publish.FieldSupportedAdapters

	raw := v.rec[field]
	if s, ok := raw.(string); ok && v.vctx.SkipTest {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			v.fail(field, publish.ErrJSON, "JSON 格式不合法", nil)
			return
		}
		raw = decoded
	}

	// Nil supports every adapter.
	if raw == nil {
		v.data.Set(field, nil)
		return
	}

	names, ok := stringList(raw)
	if !ok {
		v.fail(field, publish.ErrSetType, "值应该是一个集合", nil)
		return
	}

	resolved := make([]string, 0, len(names))
	for _, n := range names {
		resolved = append(resolved, ResolveAdapter(n))
	}
	slices.Sort(resolved)
	resolved = slices.Compact(resolved)

	store, err := v.checker.StoreAdapters(v.ctx)
	if err != nil {
		v.fail(field, publish.ErrStoreAdapters, "无法获取商店适配器列表", map[string]any{"msg": err.Error()})
		return
	}

	var missing []string
	for _, a := range resolved {
		if !slices.Contains(store, a) {
			missing = append(missing, a)
		}
	}
	if len(missing) > 0 {
		joined := strings.Join(missing, ", ")
		v.fail(field, publish.ErrMissingAdapters, "适配器 "+joined+" 不存在", map[string]any{
			"missing_adapters":     missing,
			"missing_adapters_str": joined,
		})
		return
	}
	v.data.Set(field, resolved)
}

// ResolveAdapter expands the "~name" shorthand to a full adapter module.
func ResolveAdapter(name string) string {
	if rest, ok := strings.CutPrefix(name, "~"); ok {
		return adapterPrefix + rest
	}
	return name
}

func stringList(raw any) ([]string, bool) {
	switch l := raw.(type) {
	case []string:
		return l, true
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// pluginTest passes when the load test succeeded or was skipped.
func (v *validator) pluginTest() {
	if v.vctx.SkipTest {
		return
	}
	if t := v.vctx.Test; t != nil && t.Load {
		return
	}
	ctx := map[string]any{"output": v.vctx.Test.Output()}
	pl, _ := v.rec.String(publish.FieldProjectLink)
	if ver := v.vctx.Test.InstalledVersion(pl); ver != "" {
		ctx["version"] = ver
	}
	v.errs = append(v.errs, publish.FieldError{
		Type: publish.ErrPluginTest,
		Loc:  []any{publish.FieldPluginTest},
		Msg:  "插件无法正常加载",
		Ctx:  ctx,
	})
}

func (v *validator) tags() {
	const field = publish.FieldTags

	raw, ok := v.rec[field]
	if !ok {
		v.fail(field, publish.ErrRequired, "字段不能为空", nil)
		return
	}

	decoded := raw
	if s, ok := raw.(string); ok {
		var d any
		if err := json.Unmarshal([]byte(s), &d); err != nil {
			v.fail(field, publish.ErrJSON, "JSON 格式不合法", nil)
			return
		}
		decoded = d
	}

	items, ok := decoded.([]any)
	if !ok {
		v.fail(field, publish.ErrListType, "输入应为有效的列表", nil)
		return
	}
	if len(items) > MaxTags {
		v.fail(field, publish.ErrTooLong, fmt.Sprintf("列表长度不能超过 %d 个元素", MaxTags), map[string]any{"max_length": MaxTags})
		return
	}

	tags := make([]publish.Tag, 0, len(items))
	failed := false
	for i, item := range items {
		tag, ok := v.tag(i, item)
		if !ok {
			failed = true
			continue
		}
		tags = append(tags, tag)
	}
	if !failed {
		v.data.Set(field, tags)
	}
}

func (v *validator) tag(i int, item any) (publish.Tag, bool) {
	obj, ok := item.(map[string]any)
	if !ok {
		v.errs = append(v.errs, publish.FieldError{
			Type:  publish.ErrDictType,
			Loc:   []any{publish.FieldTags, i},
			Msg:   "输入应为有效的字典",
			Input: item,
		})
		return publish.Tag{}, false
	}

	label, labelErr := tagLabel(obj["label"], obj)
	if labelErr != nil {
		labelErr.Loc = []any{publish.FieldTags, i, "label"}
		v.errs = append(v.errs, *labelErr)
	}

	color, colorErr := tagColor(obj["color"], obj)
	if colorErr != nil {
		colorErr.Loc = []any{publish.FieldTags, i, "color"}
		v.errs = append(v.errs, *colorErr)
	}

	if labelErr != nil || colorErr != nil {
		return publish.Tag{}, false
	}
	return publish.Tag{Label: label, Color: color}, true
}

func tagLabel(raw any, obj map[string]any) (string, *publish.FieldError) {
	in, present := obj["label"]
	e := &publish.FieldError{}
	if present {
		e.Input = in
	}

	s, ok := raw.(string)
	switch n := utf8.RuneCountInString(s); {
	case !present:
		e.Type, e.Msg = publish.ErrRequired, "字段不能为空"
	case !ok:
		e.Type, e.Msg = publish.ErrStringType, "输入应为有效的字符串"
	case n == 0:
		e.Type, e.Msg, e.Ctx = publish.ErrTooShort, "字符串长度不能少于 1 个字符", map[string]any{"min_length": 1}
	case n > MaxTagLabelLength:
		e.Type, e.Msg, e.Ctx = publish.ErrTooLong, fmt.Sprintf("字符串长度不能超过 %d 个字符", MaxTagLabelLength), map[string]any{"max_length": MaxTagLabelLength}
	default:
		return s, nil
	}
	return "", e
}

func tagColor(raw any, obj map[string]any) (string, *publish.FieldError) {
	in, present := obj["color"]
	e := &publish.FieldError{}
	if present {
		e.Input = in
	}
	if !present {
		e.Type, e.Msg = publish.ErrRequired, "字段不能为空"
		return "", e
	}

	s, _ := raw.(string)
	c, err := NormalizeColor(s)
	if err != nil {
		e.Type, e.Msg = publish.ErrColor, "颜色格式不正确"
		return "", e
	}
	return c, nil
}

var errColor = errors.New("invalid color")

// NormalizeColor converts a 3 or 6 digit hex color, with or without a leading
// "#", to lowercase "#rrggbb".
func NormalizeColor(s string) (string, error) {
	m := colorPattern.FindStringSubmatch(s)
	if m == nil {
		return "", fmt.Errorf("%w: %q", errColor, s)
	}
	hex := strings.ToLower(m[1])
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	return "#" + hex, nil
}
