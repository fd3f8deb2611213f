/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package render

import (
	"fmt"
	"testing"

	"chainguard.dev/publishflow/publish"
	"github.com/google/go-cmp/cmp"
)

const actionURL = "https://github.com/owner/repo/actions/runs/123456"

func pluginData(skip ...string) *publish.Data {
	d := publish.NewData()
	values := []struct {
		k string
		v any
	}{
		{"module_name", "module_name"},
		{"project_link", "project_link"},
		{"name", "name"},
		{"desc", "desc"},
		{"author", "author"},
		{"author_id", int64(1)},
		{"homepage", "https://v2.nonebot.dev"},
		{"tags", []publish.Tag{{Label: "test", Color: "#ffffff"}}},
		{"type", "application"},
		{"supported_adapters", nil},
		{"is_official", false},
	}
outer:
	for _, kv := range values {
		for _, s := range skip {
			if s == kv.k {
				continue outer
			}
		}
		d.Set(kv.k, kv.v)
	}
	return d
}

var (
	homepage404 = publish.FieldError{
		Type:  publish.ErrHomepage,
		Loc:   []any{"homepage"},
		Msg:   "项目主页无法访问",
		Input: "https://www.baidu.com",
		Ctx:   map[string]any{"status_code": 404, "msg": ""},
	}
	pluginTestFailed = publish.FieldError{
		Type: publish.ErrPluginTest,
		Loc:  []any{"plugin_test"},
		Msg:  "插件无法正常加载",
		Ctx:  map[string]any{"output": "test output"},
	}
)

func TestBody(t *testing.T) {
	tests := []struct {
		name string
		res  publish.Result
		opts Options
		want string
	}{{
		name: "valid",
		res:  publish.Result{Valid: true, Kind: publish.KindPlugin, Name: "name", Data: pluginData()},
		opts: Options{ActionURL: actionURL},
		want: "> Plugin: name\n\n**✅ 所有测试通过，一切准备就绪！**\n\n<details><summary>详情</summary><pre><code>" +
			"<li>✅ 标签: test-#ffffff。</li>" +
			`<li>✅ 项目 <a href="https://v2.nonebot.dev">主页</a> 返回状态码 200。</li>` +
			`<li>✅ 包 <a href="https://pypi.org/project/project_link/">project_link</a> 已发布至 PyPI。</li>` +
			`<li>✅ 插件 <a href="https://github.com/owner/repo/actions/runs/123456">加载测试</a> 通过。</li>` +
			"</code></pre></details>",
	}, {
		name: "everything failed",
		res: publish.Result{
			Kind: publish.KindPlugin,
			Name: "name",
			Data: pluginData("project_link", "homepage", "tags"),
			Errors: []publish.FieldError{{
				Type:  publish.ErrProjectLinkNotFound,
				Loc:   []any{"project_link"},
				Msg:   "PyPI 项目名不存在",
				Input: "project_link_failed",
			}, homepage404, {
				Type:  publish.ErrTooLong,
				Loc:   []any{"tags", 1, "label"},
				Input: "testtoolong",
				Ctx:   map[string]any{"max_length": 10},
			}, {
				Type:  publish.ErrColor,
				Loc:   []any{"tags", 1, "color"},
				Input: "#fffffff",
			}, pluginTestFailed},
		},
		opts: Options{ActionURL: actionURL},
		want: "> Plugin: name\n\n**⚠️ 在发布检查过程中，我们发现以下问题：**\n<pre><code>" +
			`<li>⚠️ 包 <a href="https://pypi.org/project/project_link_failed/">project_link_failed</a> 未发布至 PyPI。<dt>请将您的包发布至 PyPI。</dt></li>` +
			`<li>⚠️ 项目 <a href="https://www.baidu.com">主页</a> 返回状态码 404。<dt>请确保您的项目主页可访问。</dt></li>` +
			"<li>⚠️ 第 2 个标签名称过长<dt>请确保标签名称不超过 10 个字符。</dt></li>" +
			"<li>⚠️ 第 2 个标签颜色错误<dt>请确保标签颜色符合十六进制颜色码规则。</dt></li>" +
			"<li>⚠️ 插件加载测试未通过。<details><summary>测试输出</summary>test output</details></li>" +
			"</code></pre>",
	}, {
		name: "partially failed",
		res: publish.Result{
			Kind:   publish.KindPlugin,
			Name:   "name",
			Data:   pluginData("homepage"),
			Errors: []publish.FieldError{homepage404, pluginTestFailed},
		},
		opts: Options{ActionURL: actionURL},
		want: "> Plugin: name\n\n**⚠️ 在发布检查过程中，我们发现以下问题：**\n<pre><code>" +
			`<li>⚠️ 项目 <a href="https://www.baidu.com">主页</a> 返回状态码 404。<dt>请确保您的项目主页可访问。</dt></li>` +
			"<li>⚠️ 插件加载测试未通过。<details><summary>测试输出</summary>test output</details></li>" +
			"</code></pre>\n<details><summary>详情</summary><pre><code>" +
			"<li>✅ 标签: test-#ffffff。</li>" +
			`<li>✅ 包 <a href="https://pypi.org/project/project_link/">project_link</a> 已发布至 PyPI。</li>` +
			"</code></pre></details>",
	}, {
		name: "skipped test",
		res: publish.Result{
			Kind:   publish.KindPlugin,
			Name:   "name",
			Data:   pluginData("homepage"),
			Errors: []publish.FieldError{homepage404},
		},
		opts: Options{ActionURL: actionURL, SkipTest: true},
		want: "> Plugin: name\n\n**⚠️ 在发布检查过程中，我们发现以下问题：**\n<pre><code>" +
			`<li>⚠️ 项目 <a href="https://www.baidu.com">主页</a> 返回状态码 404。<dt>请确保您的项目主页可访问。</dt></li>` +
			"</code></pre>\n<details><summary>详情</summary><pre><code>" +
			"<li>✅ 标签: test-#ffffff。</li>" +
			`<li>✅ 包 <a href="https://pypi.org/project/project_link/">project_link</a> 已发布至 PyPI。</li>` +
			`<li>✅ 插件 <a href="https://github.com/owner/repo/actions/runs/123456">加载测试</a> 已跳过。</li>` +
			"</code></pre></details>",
	}, {
		name: "duplicate",
		res: publish.Result{
			Kind: publish.KindPlugin,
			Name: "name",
			Data: publish.NewData(),
			Errors: []publish.FieldError{{
				Type: publish.ErrDuplication,
				Loc:  []any{},
				Msg:  "PyPI 项目名 project_link1 加包名 module_name1 的值与商店重复",
			}},
		},
		want: "> Plugin: name\n\n**⚠️ 在发布检查过程中，我们发现以下问题：**\n<pre><code>" +
			"<li>⚠️ PyPI 项目名 project_link1 加包名 module_name1 的值与商店重复。<dt>请确保没有重复发布。</dt></li>" +
			"</code></pre>",
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Body(tt.res, tt.opts)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Body() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  publish.FieldError
		want string
	}{{
		name: "required",
		err:  publish.FieldError{Type: publish.ErrRequired, Loc: []any{"homepage"}},
		want: "⚠️ 项目仓库/主页链接: 无法匹配到数据。<dt>请确保填写该数据项。</dt>",
	}, {
		name: "name too long",
		err:  publish.FieldError{Type: publish.ErrTooLong, Loc: []any{"name"}, Ctx: map[string]any{"max_length": 50}},
		want: "⚠️ 名称过长<dt>请确保名称不超过 50 个字符。</dt>",
	}, {
		name: "too many tags",
		err:  publish.FieldError{Type: publish.ErrTooLong, Loc: []any{"tags"}, Ctx: map[string]any{"max_length": 3}},
		want: "⚠️ 标签数量过多<dt>请确保标签数量不超过 3 个。</dt>",
	}, {
		name: "missing adapters",
		err: publish.FieldError{Type: publish.ErrMissingAdapters, Loc: []any{"supported_adapters"},
			Ctx: map[string]any{"missing_adapters_str": "nonebot.adapters.a, nonebot.adapters.b"}},
		want: "⚠️ 适配器 nonebot.adapters.a, nonebot.adapters.b 不存在。<dt>请确保适配器模块名称正确。</dt>",
	}, {
		name: "plugin type",
		err:  publish.FieldError{Type: publish.ErrPluginType, Loc: []any{"type"}, Input: "app"},
		want: "⚠️ 插件类型 app 不符合规范。<dt>请确保插件类型正确，当前仅支持 application 与 library。</dt>",
	}, {
		name: "module name",
		err:  publish.FieldError{Type: publish.ErrModuleName, Loc: []any{"module_name"}, Input: "1module"},
		want: "⚠️ 包名 1module 不符合规范。<dt>请确保包名正确。</dt>",
	}, {
		name: "plugin test with version",
		err: publish.FieldError{Type: publish.ErrPluginTest, Loc: []any{"plugin_test"},
			Ctx: map[string]any{"output": "boom", "version": "0.7.1"}},
		want: "⚠️ 插件加载测试未通过（版本 0.7.1）。<details><summary>测试输出</summary>boom</details>",
	}, {
		name: "fallback",
		err:  publish.FieldError{Type: publish.ErrTooShort, Loc: []any{"desc"}, Msg: "字符串长度不能少于 1 个字符"},
		want: "⚠️ 功能: 字符串长度不能少于 1 个字符。",
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorMessage(tt.err); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestComment(t *testing.T) {
	res := publish.Result{Valid: true, Kind: publish.KindBot, Name: "CoolQBot", Data: publish.NewData()}

	fresh := Comment(res, Options{})
	want := "# 📃 商店发布检查结果\n\n> Bot: CoolQBot\n\n**✅ 所有测试通过，一切准备就绪！**\n\n---\n\n" +
		"💡 如需修改信息，请直接修改 issue，机器人会自动更新检查结果。\n" +
		"💡 当插件加载测试失败时，请发布新版本后在当前页面下评论任意内容以触发测试。\n\n" +
		"💪 Powered by [NoneFlow](https://github.com/nonebot/noneflow)\n<!-- NONEFLOW -->\n"
	if diff := cmp.Diff(want, fresh); diff != "" {
		t.Errorf("Comment() mismatch (-want +got):\n%s", diff)
	}

	reused := Comment(res, Options{Reuse: true})
	wantReused := "# 📃 商店发布检查结果\n\n> Bot: CoolQBot\n\n**✅ 所有测试通过，一切准备就绪！**\n\n---\n\n" +
		"💡 如需修改信息，请直接修改 issue，机器人会自动更新检查结果。\n" +
		"💡 当插件加载测试失败时，请发布新版本后在当前页面下评论任意内容以触发测试。\n\n" +
		"♻️ 评论已更新至最新检查结果\n\n" +
		"💪 Powered by [NoneFlow](https://github.com/nonebot/noneflow)\n<!-- NONEFLOW -->\n"
	if diff := cmp.Diff(wantReused, reused); diff != "" {
		t.Errorf("Comment(Reuse) mismatch (-want +got):\n%s", diff)
	}

	if again := Comment(res, Options{Reuse: true}); again != reused {
		t.Error("Comment() is not stable across calls")
	}
}

func TestRemove(t *testing.T) {
	got := Remove(publish.KindBot, "omg", "nonebot/nonebot2")
	want := `# 📃 商店下架检查

> Bot: remove omg

**✅ 所有检查通过，一切准备就绪！**

> 成功发起插件下架流程，对应的拉取请求 nonebot/nonebot2 已经创建。

---

💡 如需修改信息，请直接修改 issue，机器人会自动更新检查结果。

💪 Powered by [NoneFlow](https://github.com/nonebot/noneflow)
<!-- NONEFLOW -->
`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Remove() mismatch (-want +got):\n%s", diff)
	}
}

func TestRemoveError(t *testing.T) {
	for _, msg := range []string{"作者信息不匹配", "没有包含对应主页链接的包"} {
		t.Run(msg, func(t *testing.T) {
			got := RemoveError(msg)
			want := fmt.Sprintf(`# 📃 商店下架检查

> Error

**⚠️ 在下架检查过程中，我们发现以下问题：**

> ⚠️ %s

---

💡 如需修改信息，请直接修改 issue，机器人会自动更新检查结果。

💪 Powered by [NoneFlow](https://github.com/nonebot/noneflow)
<!-- NONEFLOW -->
`, msg)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("RemoveError() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func ExampleRemoveError() {
	fmt.Print(RemoveError("作者信息不匹配"))
	// Output:
	// # 📃 商店下架检查
	//
	// > Error
	//
	// **⚠️ 在下架检查过程中，我们发现以下问题：**
	//
	// > ⚠️ 作者信息不匹配
	//
	// ---
	//
	// 💡 如需修改信息，请直接修改 issue，机器人会自动更新检查结果。
	//
	// 💪 Powered by [NoneFlow](https://github.com/nonebot/noneflow)
	// <!-- NONEFLOW -->
}
