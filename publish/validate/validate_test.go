/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package validate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"chainguard.dev/publishflow/plugintest"
	"chainguard.dev/publishflow/publish"
	"chainguard.dev/publishflow/publish/check"
	"chainguard.dev/publishflow/publish/render"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var submitter = publish.Submitter{Login: "he0119", ID: 1}

type fakeWorld struct {
	srv  *httptest.Server
	hits atomic.Int32
}

// newWorld serves homepages under /ok and /missing, PyPI projects under
// /pypi and the store adapter list under /adapters.json.
func newWorld(t *testing.T) (*fakeWorld, *check.Checker) {
	t.Helper()
	w := &fakeWorld{}
	w.srv = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		w.hits.Add(1)
		switch {
		case r.URL.Path == "/ok":
			rw.WriteHeader(http.StatusOK)
		case r.URL.Path == "/adapters.json":
			_, _ = rw.Write([]byte(`[{"module_name":"nonebot.adapters.onebot.v11"},{"module_name":"nonebot.adapters.onebot.v12"}]`))
		case strings.HasPrefix(r.URL.Path, "/pypi/project_link/"):
			rw.WriteHeader(http.StatusOK)
		default:
			rw.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(w.srv.Close)

	c := check.New(
		check.WithHTTPClient(w.srv.Client()),
		check.WithPyPIURL(w.srv.URL+"/pypi/%s/json"),
		check.WithStoreAdaptersURL(w.srv.URL+"/adapters.json"),
	)
	return w, c
}

func (w *fakeWorld) url(path string) string {
	return w.srv.URL + path
}

func ptr[T any](v T) *T { return &v }

func errorTypes(errs []publish.FieldError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Type)
	}
	return out
}

func TestValidateBot(t *testing.T) {
	w, c := newWorld(t)

	raw := publish.Record{
		"name":     "CoolQBot",
		"desc":     "基于 NoneBot2 的聊天机器人",
		"homepage": w.url("/ok"),
		"tags":     `[{"label": "test", "color": "FFF"}]`,
	}
	vctx := &publish.Context{PreviousData: []publish.Entry{}, Submitter: submitter}

	res := Validate(context.Background(), publish.KindBot, raw, vctx, c)
	require.True(t, res.Valid, "errors: %v", res.Errors)

	if diff := cmp.Diff([]string{"name", "desc", "author", "author_id", "homepage", "tags", "is_official"}, res.Data.Keys()); diff != "" {
		t.Errorf("Data keys mismatch (-want +got):\n%s", diff)
	}
	tags, _ := res.Data.Get("tags")
	if diff := cmp.Diff([]publish.Tag{{Label: "test", Color: "#ffffff"}}, tags); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
	if res.Name != "CoolQBot" || res.Author != "he0119" || res.AuthorID != 1 {
		t.Errorf("got name=%q author=%q author_id=%d, want CoolQBot he0119 1", res.Name, res.Author, res.AuthorID)
	}
}

func TestValidateDuplication(t *testing.T) {
	w, c := newWorld(t)

	raw := publish.Record{
		"module_name":  "module_name1",
		"project_link": "project_link1",
		"name":         "name",
		"desc":         "desc",
		"homepage":     w.url("/ok"),
		"tags":         `[]`,
	}
	vctx := &publish.Context{
		PreviousData: []publish.Entry{{"module_name": "module_name1", "project_link": "project_link1"}},
		SkipTest:     true,
		Submitter:    submitter,
	}

	res := Validate(context.Background(), publish.KindPlugin, raw, vctx, c)
	want := []publish.FieldError{{
		Type: publish.ErrDuplication,
		Loc:  []any{},
		Msg:  "PyPI 项目名 project_link1 加包名 module_name1 的值与商店重复",
		Ctx:  map[string]any{"project_link": "project_link1", "module_name": "module_name1"},
	}}
	if diff := cmp.Diff(want, res.Errors); diff != "" {
		t.Errorf("Errors mismatch (-want +got):\n%s", diff)
	}
	if res.Valid {
		t.Error("Valid = true, want false")
	}
	if got := res.Data.Len(); got != 0 {
		t.Errorf("Data has %d fields, want 0", got)
	}
	if got := w.hits.Load(); got != 0 {
		t.Errorf("issued %d requests, want 0", got)
	}
}

func TestValidatePreconditionDerivesName(t *testing.T) {
	_, c := newWorld(t)

	// A plugin body without a test result carries no name of its own.
	raw := publish.Record{
		"module_name":  "module_name1",
		"project_link": "project_link1",
		"tags":         `[{"label": "test", "color": "#ffffff"}]`,
	}

	tests := []struct {
		name     string
		vctx     *publish.Context
		wantType string
	}{{
		name: "duplication",
		vctx: &publish.Context{
			PreviousData: []publish.Entry{{"module_name": "module_name1", "project_link": "project_link1"}},
			Submitter:    submitter,
		},
		wantType: publish.ErrDuplication,
	}, {
		name:     "no snapshot",
		vctx:     &publish.Context{Submitter: submitter},
		wantType: publish.ErrPreviousData,
	}, {
		name:     "no context",
		wantType: publish.ErrPreviousData,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(context.Background(), publish.KindPlugin, raw, tt.vctx, c)
			require.Len(t, res.Errors, 1)
			if res.Errors[0].Type != tt.wantType {
				t.Errorf("Type = %q, want %q", res.Errors[0].Type, tt.wantType)
			}
			if res.Name != "project_link1" {
				t.Errorf("Name = %q, want project_link1", res.Name)
			}
			if body := render.Body(res, render.Options{}); !strings.Contains(body, "> Plugin: project_link1\n") {
				t.Errorf("Body() = %q, want the derived name in the summary", body)
			}
		})
	}
}

func TestValidateBotDuplication(t *testing.T) {
	_, c := newWorld(t)

	raw := publish.Record{"name": "CoolQBot", "homepage": "https://github.com/he0119/CoolQBot"}
	vctx := &publish.Context{
		PreviousData: []publish.Entry{{"name": "CoolQBot", "homepage": "https://github.com/he0119/CoolQBot"}},
		Submitter:    submitter,
	}

	res := Validate(context.Background(), publish.KindBot, raw, vctx, c)
	require.Len(t, res.Errors, 1)
	if got, want := res.Errors[0].Msg, "名称 CoolQBot 加主页 https://github.com/he0119/CoolQBot 的值与商店重复"; got != want {
		t.Errorf("Msg = %q, want %q", got, want)
	}
	if res.Name != "CoolQBot" {
		t.Errorf("Name = %q, want CoolQBot", res.Name)
	}
}

func TestValidateWithoutSnapshot(t *testing.T) {
	w, c := newWorld(t)
	raw := publish.Record{"name": "CoolQBot"}

	for _, vctx := range []*publish.Context{nil, {Submitter: submitter}} {
		res := Validate(context.Background(), publish.KindBot, raw, vctx, c)
		if diff := cmp.Diff([]string{publish.ErrPreviousData}, errorTypes(res.Errors)); diff != "" {
			t.Errorf("error types mismatch (-want +got):\n%s", diff)
		}
		if res.Errors[0].Msg != "未获取到数据列表" {
			t.Errorf("Msg = %q, want 未获取到数据列表", res.Errors[0].Msg)
		}
	}
	if got := w.hits.Load(); got != 0 {
		t.Errorf("issued %d requests, want 0", got)
	}
}

func TestValidateHomepage(t *testing.T) {
	w, c := newWorld(t)
	vctx := &publish.Context{PreviousData: []publish.Entry{}, Submitter: submitter}

	t.Run("unreachable", func(t *testing.T) {
		raw := publish.Record{
			"module_name":  "module_name",
			"project_link": "project_link",
			"name":         "name",
			"desc":         "desc",
			"homepage":     w.url("/missing"),
			"tags":         `[{"label": "test", "color": "#ffffff"}]`,
		}
		res := Validate(context.Background(), publish.KindAdapter, raw, vctx, c)
		want := []publish.FieldError{{
			Type:  publish.ErrHomepage,
			Loc:   []any{"homepage"},
			Msg:   "项目主页无法访问",
			Input: w.url("/missing"),
			Ctx:   map[string]any{"status_code": 404, "msg": ""},
		}}
		if diff := cmp.Diff(want, res.Errors); diff != "" {
			t.Errorf("Errors mismatch (-want +got):\n%s", diff)
		}
		if _, ok := res.Data.Get("homepage"); ok {
			t.Error("failed homepage present in Data")
		}
		if _, ok := res.Data.Get("tags"); !ok {
			t.Error("passing tags missing from Data")
		}
	})

	t.Run("empty", func(t *testing.T) {
		before := w.hits.Load()
		raw := publish.Record{
			"name":     "name",
			"desc":     "desc",
			"homepage": "",
			"tags":     `[]`,
		}
		res := Validate(context.Background(), publish.KindBot, raw, vctx, c)
		want := []publish.FieldError{{
			Type:  publish.ErrStringPatternMismatch,
			Loc:   []any{"homepage"},
			Msg:   "字符串应满足格式 '^https?://.*$'",
			Input: "",
			Ctx:   map[string]any{"pattern": "^https?://.*$"},
		}}
		if diff := cmp.Diff(want, res.Errors); diff != "" {
			t.Errorf("Errors mismatch (-want +got):\n%s", diff)
		}
		if got := w.hits.Load() - before; got != 0 {
			t.Errorf("issued %d requests, want 0", got)
		}
	})
}

func TestValidateMissingAdapters(t *testing.T) {
	w, c := newWorld(t)

	raw := publish.Record{
		"module_name":        "module_name",
		"project_link":       "project_link",
		"name":               "name",
		"desc":               "desc",
		"homepage":           w.url("/ok"),
		"tags":               `[]`,
		"type":               "application",
		"supported_adapters": `["~onebot.v11", "~missing", "nonebot.adapters.another", "~missing"]`,
	}
	vctx := &publish.Context{PreviousData: []publish.Entry{}, SkipTest: true, Submitter: submitter}

	res := Validate(context.Background(), publish.KindPlugin, raw, vctx, c)
	require.Len(t, res.Errors, 1)

	got := res.Errors[0]
	if got.Type != publish.ErrMissingAdapters {
		t.Errorf("Type = %q, want %q", got.Type, publish.ErrMissingAdapters)
	}
	wantCtx := map[string]any{
		"missing_adapters":     []string{"nonebot.adapters.another", "nonebot.adapters.missing"},
		"missing_adapters_str": "nonebot.adapters.another, nonebot.adapters.missing",
	}
	if diff := cmp.Diff(wantCtx, got.Ctx); diff != "" {
		t.Errorf("Ctx mismatch (-want +got):\n%s", diff)
	}
	if want := "适配器 nonebot.adapters.another, nonebot.adapters.missing 不存在"; got.Msg != want {
		t.Errorf("Msg = %q, want %q", got.Msg, want)
	}
}

func TestValidateSupportedAdapters(t *testing.T) {
	w, c := newWorld(t)
	vctx := &publish.Context{PreviousData: []publish.Entry{}, SkipTest: true, Submitter: submitter}

	tests := []struct {
		name     string
		value    any
		present  bool
		want     any
		wantType string
	}{
		{name: "absent", want: nil},
		{name: "null", value: "null", present: true, want: nil},
		{name: "sorted and unique", value: `["~onebot.v12", "~onebot.v11", "nonebot.adapters.onebot.v12"]`, present: true,
			want: []string{"nonebot.adapters.onebot.v11", "nonebot.adapters.onebot.v12"}},
		{name: "bad json", value: "[", present: true, wantType: publish.ErrJSON},
		{name: "not a list", value: `{"a": 1}`, present: true, wantType: publish.ErrSetType},
		{name: "non string item", value: `[1]`, present: true, wantType: publish.ErrSetType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := publish.Record{
				"module_name":  "module_name",
				"project_link": "project_link",
				"name":         "name",
				"desc":         "desc",
				"homepage":     w.url("/ok"),
				"tags":         `[]`,
				"type":         "library",
			}
			if tt.present {
				raw["supported_adapters"] = tt.value
			}

			res := Validate(context.Background(), publish.KindPlugin, raw, vctx, c)
			if tt.wantType != "" {
				if diff := cmp.Diff([]string{tt.wantType}, errorTypes(res.Errors)); diff != "" {
					t.Errorf("error types mismatch (-want +got):\n%s", diff)
				}
				return
			}
			require.True(t, res.Valid, "errors: %v", res.Errors)
			got, ok := res.Data.Get("supported_adapters")
			require.True(t, ok)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("supported_adapters mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidateTags(t *testing.T) {
	w, c := newWorld(t)
	vctx := &publish.Context{PreviousData: []publish.Entry{}, Submitter: submitter}

	tests := []struct {
		name string
		tags string
		want []publish.FieldError
	}{{
		name: "label at the limit",
		tags: `[{"label": "0123456789", "color": "#ffffff"}]`,
	}, {
		name: "label over the limit",
		tags: `[{"label": "01234567890", "color": "#ffffff"}]`,
		want: []publish.FieldError{{
			Type:  publish.ErrTooLong,
			Loc:   []any{"tags", 0, "label"},
			Msg:   "字符串长度不能超过 10 个字符",
			Input: "01234567890",
			Ctx:   map[string]any{"max_length": 10},
		}},
	}, {
		name: "seven digit color",
		tags: `[{"label": "test", "color": "#fffffff"}]`,
		want: []publish.FieldError{{
			Type:  publish.ErrColor,
			Loc:   []any{"tags", 0, "color"},
			Msg:   "颜色格式不正确",
			Input: "#fffffff",
		}},
	}, {
		name: "label before color, index order",
		tags: `[{"label": "ok", "color": "#fff"}, {"label": "", "color": "nope"}]`,
		want: []publish.FieldError{{
			Type:  publish.ErrTooShort,
			Loc:   []any{"tags", 1, "label"},
			Msg:   "字符串长度不能少于 1 个字符",
			Input: "",
			Ctx:   map[string]any{"min_length": 1},
		}, {
			Type:  publish.ErrColor,
			Loc:   []any{"tags", 1, "color"},
			Msg:   "颜色格式不正确",
			Input: "nope",
		}},
	}, {
		name: "too many",
		tags: `[{"label": "a", "color": "#fff"}, {"label": "b", "color": "#fff"}, {"label": "c", "color": "#fff"}, {"label": "d", "color": "#fff"}]`,
		want: []publish.FieldError{{
			Type:  publish.ErrTooLong,
			Loc:   []any{"tags"},
			Msg:   "列表长度不能超过 3 个元素",
			Input: `[{"label": "a", "color": "#fff"}, {"label": "b", "color": "#fff"}, {"label": "c", "color": "#fff"}, {"label": "d", "color": "#fff"}]`,
			Ctx:   map[string]any{"max_length": 3},
		}},
	}, {
		name: "invalid json",
		tags: `[{"label": "a"`,
		want: []publish.FieldError{{
			Type:  publish.ErrJSON,
			Loc:   []any{"tags"},
			Msg:   "JSON 格式不合法",
			Input: `[{"label": "a"`,
		}},
	}, {
		name: "not a list",
		tags: `{"label": "a"}`,
		want: []publish.FieldError{{
			Type:  publish.ErrListType,
			Loc:   []any{"tags"},
			Msg:   "输入应为有效的列表",
			Input: `{"label": "a"}`,
		}},
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := publish.Record{
				"name":     "CoolQBot",
				"desc":     "desc",
				"homepage": w.url("/ok"),
				"tags":     tt.tags,
			}
			res := Validate(context.Background(), publish.KindBot, raw, vctx, c)
			if diff := cmp.Diff(tt.want, res.Errors); diff != "" {
				t.Errorf("Errors mismatch (-want +got):\n%s", diff)
			}
			if res.Valid != (len(tt.want) == 0) {
				t.Errorf("Valid = %v, want %v", res.Valid, len(tt.want) == 0)
			}
		})
	}
}

func TestValidateErrorOrder(t *testing.T) {
	_, c := newWorld(t)
	vctx := &publish.Context{PreviousData: []publish.Entry{}, Submitter: submitter}

	raw := publish.Record{
		"module_name":  "1module",
		"project_link": "-bad-",
		"name":         strings.Repeat("名", 51),
		"homepage":     "ftp://example.com",
		"tags":         `[{"label": "a", "color": "x"}, "tag"]`,
		"type":         "app",
	}
	vctx.SkipTest = true

	res := Validate(context.Background(), publish.KindPlugin, raw, vctx, c)
	want := []string{
		publish.ErrModuleName,
		publish.ErrProjectLinkName,
		publish.ErrTooLong,
		publish.ErrRequired,
		publish.ErrStringPatternMismatch,
		publish.ErrColor,
		publish.ErrDictType,
		publish.ErrPluginType,
	}
	if diff := cmp.Diff(want, errorTypes(res.Errors)); diff != "" {
		t.Errorf("error types mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"author", "author_id", "supported_adapters", "is_official"}, res.Data.Keys()); diff != "" {
		t.Errorf("Data keys mismatch (-want +got):\n%s", diff)
	}
	if got := res.Errors[6].Input; got != "tag" {
		t.Errorf("dict_type Input = %v, want tag", got)
	}
}

func TestValidateIdempotent(t *testing.T) {
	w, c := newWorld(t)
	vctx := &publish.Context{PreviousData: []publish.Entry{}, Submitter: submitter}

	raw := publish.Record{
		"module_name":  "module_name",
		"project_link": "project_link",
		"name":         "name",
		"desc":         "desc",
		"homepage":     w.url("/missing"),
		"tags":         `[{"label": "test", "color": "#ffffff"}]`,
	}

	first := Validate(context.Background(), publish.KindAdapter, raw, vctx, c)
	hits := w.hits.Load()
	second := Validate(context.Background(), publish.KindAdapter, raw, vctx, c)

	if got := w.hits.Load(); got != hits {
		t.Errorf("second pass issued %d requests, want 0", got-hits)
	}
	if diff := cmp.Diff(first.Errors, second.Errors); diff != "" {
		t.Errorf("Errors differ between passes (-first +second):\n%s", diff)
	}
	a, err := json.Marshal(first.Data)
	require.NoError(t, err)
	b, err := json.Marshal(second.Data)
	require.NoError(t, err)
	if string(a) != string(b) {
		t.Errorf("Data differs between passes: %s != %s", a, b)
	}

	opts := render.Options{Reuse: true, ActionURL: "https://github.com/nonebot/nonebot2/actions/runs/1"}
	if diff := cmp.Diff(render.Comment(first, opts), render.Comment(second, opts)); diff != "" {
		t.Errorf("Comment() differs between passes (-first +second):\n%s", diff)
	}
}

func TestValidatePluginSourcing(t *testing.T) {
	w, c := newWorld(t)

	base := publish.Record{
		"module_name":  "module_name",
		"project_link": "project_link",
		"name":         "ignored",
		"tags":         `[{"label": "test", "color": "#ffffff"}]`,
	}

	t.Run("from metadata", func(t *testing.T) {
		vctx := &publish.Context{
			PreviousData: []publish.Entry{},
			Submitter:    submitter,
			Test: &plugintest.Result{
				Load: true,
				Metadata: &plugintest.Metadata{
					Name:              "name",
					Description:       "desc",
					Homepage:          ptr(w.url("/ok")),
					Type:              ptr("application"),
					SupportedAdapters: []string{"~onebot.v11"},
				},
			},
		}
		res := Validate(context.Background(), publish.KindPlugin, base, vctx, c)
		require.True(t, res.Valid, "errors: %v", res.Errors)

		wantKeys := []string{
			"module_name", "project_link", "name", "desc", "author", "author_id",
			"homepage", "tags", "type", "supported_adapters", "is_official",
		}
		if diff := cmp.Diff(wantKeys, res.Data.Keys()); diff != "" {
			t.Errorf("Data keys mismatch (-want +got):\n%s", diff)
		}
		if res.Name != "name" {
			t.Errorf("Name = %q, want name", res.Name)
		}
		adapters, _ := res.Data.Get("supported_adapters")
		if diff := cmp.Diff([]string{"nonebot.adapters.onebot.v11"}, adapters); diff != "" {
			t.Errorf("supported_adapters mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("failed load without metadata", func(t *testing.T) {
		vctx := &publish.Context{
			PreviousData: []publish.Entry{},
			Submitter:    submitter,
			Test:         &plugintest.Result{Outputs: []string{"\x1b[31mModuleNotFoundError\x1b[0m"}},
		}
		res := Validate(context.Background(), publish.KindPlugin, base, vctx, c)

		want := []string{
			publish.ErrRequired, // desc
			publish.ErrRequired, // homepage
			publish.ErrRequired, // type
			publish.ErrPluginTest,
		}
		if diff := cmp.Diff(want, errorTypes(res.Errors)); diff != "" {
			t.Errorf("error types mismatch (-want +got):\n%s", diff)
		}
		if res.Name != "project_link" {
			t.Errorf("Name = %q, want project_link", res.Name)
		}
		last := res.Errors[len(res.Errors)-1]
		if diff := cmp.Diff(map[string]any{"output": "ModuleNotFoundError"}, last.Ctx); diff != "" {
			t.Errorf("plugin_test Ctx mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("failed load reports the installed version", func(t *testing.T) {
		vctx := &publish.Context{
			PreviousData: []publish.Entry{},
			Submitter:    submitter,
			Test: &plugintest.Result{Outputs: []string{
				" \x1b[34mversion\x1b[39m      : \x1b[1m0.7.1\x1b[0m",
				"ModuleNotFoundError",
			}},
		}
		res := Validate(context.Background(), publish.KindPlugin, base, vctx, c)

		last := res.Errors[len(res.Errors)-1]
		require.Equal(t, publish.ErrPluginTest, last.Type)
		if got := last.Ctx["version"]; got != "0.7.1" {
			t.Errorf("plugin_test version = %v, want 0.7.1", got)
		}
	})
}

func TestNormalizeColor(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "#ffffff", want: "#ffffff"},
		{in: "FFF", want: "#ffffff"},
		{in: "#1A2b3C", want: "#1a2b3c"},
		{in: "#fffffff", wantErr: true},
		{in: "#ggg", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeColor(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeColor() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
