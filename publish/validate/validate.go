/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package validate checks a raw submission against the registry rules and
// produces the normalized data stored for accepted listings.
//
// Record level preconditions (a loaded registry snapshot and a unique
// identity) run first; when one fails it is the only error reported. Field
// rules then run independently in declaration order, so a single pass
// reports every problem with a submission.
package validate

import (
	"context"

	"chainguard.dev/publishflow/internal/metrics"
	"chainguard.dev/publishflow/plugintest"
	"chainguard.dev/publishflow/publish"
	"chainguard.dev/publishflow/publish/check"
	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// declaration returns the fields checked for kind, in report order.
func declaration(kind publish.Kind) []string {
	switch kind {
	case publish.KindBot:
		return []string{
			publish.FieldName, publish.FieldDesc, publish.FieldAuthor,
			publish.FieldHomepage, publish.FieldTags,
		}
	case publish.KindAdapter:
		return []string{
			publish.FieldModuleName, publish.FieldProjectLink,
			publish.FieldName, publish.FieldDesc, publish.FieldAuthor,
			publish.FieldHomepage, publish.FieldTags,
		}
	case publish.KindPlugin:
		return []string{
			publish.FieldModuleName, publish.FieldProjectLink,
			publish.FieldName, publish.FieldDesc, publish.FieldAuthor,
			publish.FieldHomepage, publish.FieldTags,
			publish.FieldType, publish.FieldSupportedAdapters, publish.FieldPluginTest,
		}
	default:
		panic("unknown kind " + kind.String())
	}
}

// metadataFields are read from the plugin test unless the test is skipped.
var metadataFields = []string{
	publish.FieldName,
	publish.FieldDesc,
	publish.FieldHomepage,
	publish.FieldType,
	publish.FieldSupportedAdapters,
}

// Validate checks raw for kind. vctx supplies the registry snapshot, the
// submitter and the plugin test outcome; a nil vctx fails validation. The
// checker answers reachability questions and caches them, so validating the
// same record twice with one checker performs no new requests.
func Validate(ctx context.Context, kind publish.Kind, raw publish.Record, vctx *publish.Context, checker *check.Checker) publish.Result {
	tr := otel.Tracer("chainguard.dev/publishflow/validate",
		oteltrace.WithInstrumentationVersion("1.0.0"))
	ctx, span := tr.Start(ctx, "publish.validate", oteltrace.WithAttributes(
		attribute.String("publish.kind", kind.String()),
	))
	defer span.End()

	if checker == nil {
		checker = check.New()
	}

	res := validate(ctx, kind, raw, vctx, checker)

	types := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		types = append(types, e.Type)
	}
	metrics.RecordValidation(kind.String(), res.Valid, types)
	span.SetAttributes(
		attribute.Bool("publish.valid", res.Valid),
		attribute.Int("publish.errors", len(res.Errors)),
	)
	clog.FromContext(ctx).With("kind", kind).
		With("name", res.Name).
		With("valid", res.Valid).
		With("errors", len(res.Errors)).
		Info("Validated submission")

	return res
}

func validate(ctx context.Context, kind publish.Kind, raw publish.Record, vctx *publish.Context, checker *check.Checker) publish.Result {
	if err, failed := precondition(kind, raw, vctx); failed {
		sctx := vctx
		if sctx == nil {
			sctx = &publish.Context{}
		}
		name, _ := source(kind, raw, sctx).String(publish.FieldName)
		return publish.Result{
			Kind:   kind,
			Data:   publish.NewData(),
			Errors: []publish.FieldError{err},
			Name:   name,
		}
	}

	v := &validator{
		ctx:     ctx,
		kind:    kind,
		rec:     source(kind, raw, vctx),
		vctx:    vctx,
		checker: checker,
		data:    publish.NewData(),
	}
	v.prefetch()

	for _, field := range declaration(kind) {
		v.check(field)
	}
	v.data.Set(publish.FieldIsOfficial, false)

	name := v.data.String(publish.FieldName)
	if name == "" {
		name, _ = v.rec.String(publish.FieldName)
	}

	return publish.Result{
		Valid:    len(v.errs) == 0,
		Kind:     kind,
		Data:     v.data,
		Errors:   v.errs,
		Name:     name,
		Author:   v.data.String(publish.FieldAuthor),
		AuthorID: vctx.Submitter.ID,
	}
}

// precondition checks the record level rules.
func precondition(kind publish.Kind, raw publish.Record, vctx *publish.Context) (publish.FieldError, bool) {
	if vctx == nil || vctx.PreviousData == nil {
		return publish.FieldError{
			Type: publish.ErrPreviousData,
			Loc:  []any{},
			Msg:  "未获取到数据列表",
		}, true
	}

	if !check.Duplicate(kind, raw, vctx.PreviousData) {
		return publish.FieldError{}, false
	}

	id, _ := publish.IdentityOf(kind, raw)
	e := publish.FieldError{Type: publish.ErrDuplication, Loc: []any{}}
	switch kind {
	case publish.KindBot:
		e.Msg = "名称 " + id.A + " 加主页 " + id.B + " 的值与商店重复"
		e.Ctx = map[string]any{"name": id.A, "homepage": id.B}
	default:
		e.Msg = "PyPI 项目名 " + id.A + " 加包名 " + id.B + " 的值与商店重复"
		e.Ctx = map[string]any{"project_link": id.A, "module_name": id.B}
	}
	return e, true
}

// source returns the record the field rules run against. Plugin metadata
// comes from the load test unless the test was skipped; without metadata the
// project name stands in for the plugin name.
func source(kind publish.Kind, raw publish.Record, vctx *publish.Context) publish.Record {
	rec := raw.Clone()
	if rec == nil {
		rec = publish.Record{}
	}
	if kind != publish.KindPlugin || vctx.SkipTest {
		return rec
	}

	for _, f := range metadataFields {
		delete(rec, f)
	}

	var md *plugintest.Metadata
	if vctx.Test != nil {
		md = vctx.Test.Metadata
	}
	if md == nil {
		if pl, ok := rec[publish.FieldProjectLink]; ok {
			rec[publish.FieldName] = pl
		}
		return rec
	}

	rec[publish.FieldName] = md.Name
	rec[publish.FieldDesc] = md.Description
	if md.Homepage != nil {
		rec[publish.FieldHomepage] = *md.Homepage
	}
	if md.Type != nil {
		rec[publish.FieldType] = *md.Type
	}
	if md.SupportedAdapters != nil {
		adapters := make([]any, 0, len(md.SupportedAdapters))
		for _, a := range md.SupportedAdapters {
			adapters = append(adapters, a)
		}
		rec[publish.FieldSupportedAdapters] = adapters
	} else {
		rec[publish.FieldSupportedAdapters] = nil
	}
	return rec
}

type validator struct {
	ctx     context.Context
	kind    publish.Kind
	rec     publish.Record
	vctx    *publish.Context
	checker *check.Checker

	data *publish.Data
	errs []publish.FieldError
}

// prefetch probes the homepage and the PyPI project concurrently before the
// rules read them from the cache.
func (v *validator) prefetch() {
	var urls []string
	if hp, ok := v.rec.String(publish.FieldHomepage); ok && homepagePattern.MatchString(hp) {
		urls = append(urls, hp)
	}
	if v.kind != publish.KindBot {
		if pl, ok := v.rec.String(publish.FieldProjectLink); ok && projectLinkPattern.MatchString(pl) {
			urls = append(urls, v.checker.PyPIURL(pl))
		}
	}
	v.checker.Prefetch(v.ctx, urls...)
}

func (v *validator) check(field string) {
	switch field {
	case publish.FieldName:
		v.name()
	case publish.FieldDesc:
		v.desc()
	case publish.FieldAuthor:
		v.author()
	case publish.FieldHomepage:
		v.homepage()
	case publish.FieldTags:
		v.tags()
	case publish.FieldModuleName:
		v.moduleName()
	case publish.FieldProjectLink:
		v.projectLink()
	case publish.FieldType:
		v.pluginType()
	case publish.FieldSupportedAdapters:
		v.supportedAdapters()
	case publish.FieldPluginTest:
		v.pluginTest()
	default:
		panic("no rule for field " + field)
	}
}

// fail records an error located at a top level field, echoing its input.
func (v *validator) fail(field, typ, msg string, ctx map[string]any) {
	e := publish.FieldError{
		Type: typ,
		Loc:  []any{field},
		Msg:  msg,
		Ctx:  ctx,
	}
	if in, ok := v.rec[field]; ok {
		e.Input = in
	}
	v.errs = append(v.errs, e)
}
