/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package render turns validation outcomes into the Markdown comments posted
// on submission issues. Every function is pure and byte stable, so an
// unchanged outcome renders to an identical comment.
package render

import (
	"bytes"
	"strings"
	"text/template"

	"chainguard.dev/publishflow/publish"
)

const (
	// Title heads every publish check comment.
	Title = "# 📃 商店发布检查结果"
	// RemoveTitle heads every remove check comment.
	RemoveTitle = "# 📃 商店下架检查"

	// Tips tell the submitter how to trigger a new check.
	Tips = "💡 如需修改信息，请直接修改 issue，机器人会自动更新检查结果。\n" +
		"💡 当插件加载测试失败时，请发布新版本后在当前页面下评论任意内容以触发测试。"
	// RemoveTips is the tips block of remove comments.
	RemoveTips = "💡 如需修改信息，请直接修改 issue，机器人会自动更新检查结果。"

	// Reuse is shown when an earlier comment was edited in place.
	Reuse = "♻️ 评论已更新至最新检查结果"

	// Footer closes every comment. It carries the marker used to find the
	// comment again.
	Footer = "💪 Powered by [NoneFlow](https://github.com/nonebot/noneflow)\n" + publish.CommentMarker

	bannerValid   = "✅ 所有测试通过，一切准备就绪！"
	bannerInvalid = "⚠️ 在发布检查过程中，我们发现以下问题："

	removeBannerValid   = "✅ 所有检查通过，一切准备就绪！"
	removeBannerInvalid = "⚠️ 在下架检查过程中，我们发现以下问题："
)

var (
	commentTmpl = template.Must(template.New("comment").Parse(
		"{{.Title}}\n\n{{.Body}}\n\n---\n\n{{.Tips}}\n\n{{if .Reuse}}" + Reuse + "\n\n{{end}}" + Footer + "\n"))

	bodyTmpl = template.Must(template.New("body").Parse(
		"> {{.Kind}}: {{.Name}}\n\n**{{.Banner}}**\n{{.Errors}}\n{{.Details}}\n"))

	removeBodyTmpl = template.Must(template.New("remove").Parse(
		"> {{.Summary}}\n\n**{{.Banner}}**\n\n> {{.Message}}"))
)

// Options carries what the result alone does not say.
type Options struct {
	// Reuse is set when the comment replaces an earlier one.
	Reuse bool
	// ActionURL links the plugin load test run.
	ActionURL string
	// SkipTest is set when the plugin load test was skipped.
	SkipTest bool
}

type comment struct {
	Title, Body, Tips string
	Reuse             bool
}

func execute(t *template.Template, data any) string {
	var buf bytes.Buffer
	// The templates are static and the data holds only strings.
	if err := t.Execute(&buf, data); err != nil {
		panic(err)
	}
	return buf.String()
}

// Comment renders the full publish check comment for res.
func Comment(res publish.Result, opts Options) string {
	return execute(commentTmpl, comment{
		Title: Title,
		Body:  Body(res, opts),
		Tips:  Tips,
		Reuse: opts.Reuse,
	})
}

// Body renders the summary, banner, failures and passed checks of res.
func Body(res publish.Result, opts Options) string {
	banner := bannerValid
	if !res.Valid {
		banner = bannerInvalid
	}

	var errs string
	if len(res.Errors) > 0 {
		var sb strings.Builder
		sb.WriteString("<pre><code>")
		for _, e := range res.Errors {
			sb.WriteString("<li>")
			sb.WriteString(errorMessage(e))
			sb.WriteString("</li>")
		}
		sb.WriteString("</code></pre>")
		errs = sb.String()
	}

	var details string
	if lines := passed(res, opts); len(lines) > 0 {
		details = "<details><summary>详情</summary><pre><code><li>" +
			strings.Join(lines, "</li><li>") +
			"</li></code></pre></details>"
	}

	return strings.TrimSpace(execute(bodyTmpl, struct {
		Kind, Name, Banner, Errors, Details string
	}{
		Kind:    res.Kind.String(),
		Name:    res.Name,
		Banner:  banner,
		Errors:  errs,
		Details: details,
	}))
}

// Remove renders the comment confirming that a removal pull request exists.
func Remove(kind publish.Kind, name, prURL string) string {
	return removeComment(execute(removeBodyTmpl, struct {
		Summary, Banner, Message string
	}{
		Summary: kind.String() + ": remove " + name,
		Banner:  removeBannerValid,
		Message: "成功发起插件下架流程，对应的拉取请求 " + prURL + " 已经创建。",
	}))
}

// RemoveError renders the comment explaining why a removal was refused.
func RemoveError(msg string) string {
	return removeComment(execute(removeBodyTmpl, struct {
		Summary, Banner, Message string
	}{
		Summary: "Error",
		Banner:  removeBannerInvalid,
		Message: "⚠️ " + msg,
	}))
}

func removeComment(body string) string {
	return execute(commentTmpl, comment{
		Title: RemoveTitle,
		Body:  body,
		Tips:  RemoveTips,
	})
}
