/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package render

import (
	"fmt"
	"strings"

	"chainguard.dev/publishflow/publish"
)

// PyPIProjectURL is the public page of a PyPI project.
func PyPIProjectURL(name string) string {
	return "https://pypi.org/project/" + name + "/"
}

var fieldNames = map[string]string{
	publish.FieldName:              "名称",
	publish.FieldDesc:              "功能",
	publish.FieldAuthor:            "作者",
	publish.FieldHomepage:          "项目仓库/主页链接",
	publish.FieldTags:              "标签",
	publish.FieldModuleName:        "import 包名",
	publish.FieldProjectLink:       "PyPI 项目名",
	publish.FieldType:              "插件类型",
	publish.FieldSupportedAdapters: "插件支持的适配器",
	publish.FieldPluginTest:        "插件测试结果",
}

func fieldName(field string) string {
	if n, ok := fieldNames[field]; ok {
		return n
	}
	return field
}

func hint(msg, h string) string {
	return "⚠️ " + msg + "<dt>" + h + "</dt>"
}

func errorMessage(e publish.FieldError) string {
	field := e.Field()

	if i, ok := e.TagIndex(); ok {
		return tagMessage(e, i+1)
	}

	switch e.Type {
	case publish.ErrPreviousData:
		return hint("未获取到数据列表。", "请检查商店数据文件。")
	case publish.ErrDuplication:
		return hint(e.Msg+"。", "请确保没有重复发布。")
	case publish.ErrRequired:
		return hint(fieldName(field)+": 无法匹配到数据。", "请确保填写该数据项。")
	case publish.ErrModuleName:
		return hint(fmt.Sprintf("包名 %v 不符合规范。", e.Input), "请确保包名正确。")
	case publish.ErrProjectLinkName:
		return hint(fmt.Sprintf("PyPI 项目名 %v 不符合规范。", e.Input), "请确保项目名正确。")
	case publish.ErrProjectLinkNotFound:
		name := fmt.Sprint(e.Input)
		return hint(fmt.Sprintf(`包 <a href="%s">%s</a> 未发布至 PyPI。`, PyPIProjectURL(name), name), "请将您的包发布至 PyPI。")
	case publish.ErrHomepage:
		return hint(fmt.Sprintf(`项目 <a href="%v">主页</a> 返回状态码 %v。`, e.Input, e.Ctx["status_code"]), "请确保您的项目主页可访问。")
	case publish.ErrStringPatternMismatch:
		if field == publish.FieldHomepage {
			return hint(fmt.Sprintf("项目主页 %v 不是有效的链接。", e.Input), "请确保项目主页以 http:// 或 https:// 开头。")
		}
	case publish.ErrTooLong:
		switch field {
		case publish.FieldName:
			return hint("名称过长", fmt.Sprintf("请确保名称不超过 %v 个字符。", e.Ctx["max_length"]))
		case publish.FieldTags:
			return hint("标签数量过多", fmt.Sprintf("请确保标签数量不超过 %v 个。", e.Ctx["max_length"]))
		}
	case publish.ErrJSON:
		switch field {
		case publish.FieldTags:
			return hint("标签解码失败。", "请确保标签为 JSON 格式。")
		case publish.FieldSupportedAdapters:
			return hint("适配器列表解码失败。", "请确保适配器列表为 JSON 格式。")
		}
	case publish.ErrListType:
		if field == publish.FieldTags {
			return hint("标签格式错误。", "请确保标签为 JSON 数组。")
		}
	case publish.ErrPluginType:
		in := e.Input
		if in == nil {
			in = ""
		}
		return hint(fmt.Sprintf("插件类型 %v 不符合规范。", in), "请确保插件类型正确，当前仅支持 application 与 library。")
	case publish.ErrMissingAdapters:
		return hint(fmt.Sprintf("适配器 %v 不存在。", e.Ctx["missing_adapters_str"]), "请确保适配器模块名称正确。")
	case publish.ErrSetType:
		return hint("适配器列表格式错误。", "请确保适配器列表为字符串数组。")
	case publish.ErrStoreAdapters:
		return hint("无法获取商店适配器列表。", "请稍后在当前页面下评论任意内容以重新检查。")
	case publish.ErrPluginTest:
		status := "插件加载测试未通过"
		if ver, ok := e.Ctx["version"]; ok {
			status += fmt.Sprintf("（版本 %v）", ver)
		}
		return fmt.Sprintf("⚠️ %s。<details><summary>测试输出</summary>%v</details>", status, e.Ctx["output"])
	}

	if field == "" {
		return "⚠️ " + e.Msg + "。"
	}
	return "⚠️ " + fieldName(field) + ": " + e.Msg + "。"
}

func tagMessage(e publish.FieldError, n int) string {
	sub := ""
	if len(e.Loc) > 2 {
		sub, _ = e.Loc[2].(string)
	}
	switch {
	case sub == "label" && e.Type == publish.ErrTooLong:
		return hint(fmt.Sprintf("第 %d 个标签名称过长", n), fmt.Sprintf("请确保标签名称不超过 %v 个字符。", e.Ctx["max_length"]))
	case sub == "label":
		return hint(fmt.Sprintf("第 %d 个标签名称错误", n), "请确保标签名称为非空字符串。")
	case sub == "color":
		return hint(fmt.Sprintf("第 %d 个标签颜色错误", n), "请确保标签颜色符合十六进制颜色码规则。")
	default:
		return hint(fmt.Sprintf("第 %d 个标签格式错误", n), "请确保标签包含 label 与 color 字段。")
	}
}

// passed lists the checks that succeeded, in a fixed order.
func passed(res publish.Result, opts Options) []string {
	var lines []string

	if v, ok := res.Data.Get(publish.FieldTags); ok {
		if tags, _ := v.([]publish.Tag); len(tags) > 0 {
			parts := make([]string, 0, len(tags))
			for _, t := range tags {
				parts = append(parts, t.Label+"-"+t.Color)
			}
			lines = append(lines, "✅ 标签: "+strings.Join(parts, ", ")+"。")
		}
	}
	if hp := res.Data.String(publish.FieldHomepage); hp != "" {
		lines = append(lines, fmt.Sprintf(`✅ 项目 <a href="%s">主页</a> 返回状态码 200。`, hp))
	}
	if pl := res.Data.String(publish.FieldProjectLink); pl != "" {
		lines = append(lines, fmt.Sprintf(`✅ 包 <a href="%s">%s</a> 已发布至 PyPI。`, PyPIProjectURL(pl), pl))
	}
	if res.Kind == publish.KindPlugin && res.Data.Len() > 0 && !hasError(res, publish.ErrPluginTest) {
		status := "通过。"
		if opts.SkipTest {
			status = "已跳过。"
		}
		lines = append(lines, fmt.Sprintf(`✅ 插件 <a href="%s">加载测试</a> %s`, opts.ActionURL, status))
	}
	return lines
}

func hasError(res publish.Result, typ string) bool {
	for _, e := range res.Errors {
		if e.Type == typ {
			return true
		}
	}
	return false
}
