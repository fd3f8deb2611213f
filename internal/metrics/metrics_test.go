/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordValidation(t *testing.T) {
	valid := validationCounter.WithLabelValues("Bot", "false")
	tooLong := fieldErrorCounter.WithLabelValues("Bot", "too_long")
	before, beforeErr := testutil.ToFloat64(valid), testutil.ToFloat64(tooLong)

	RecordValidation("Bot", false, []string{"too_long", "too_long", "homepage"})

	if got := testutil.ToFloat64(valid) - before; got != 1 {
		t.Errorf("validations delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(tooLong) - beforeErr; got != 2 {
		t.Errorf("too_long delta = %v, want 2", got)
	}
}

func TestRecordProbe(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{code: 200, want: "2xx"},
		{code: 404, want: "4xx"},
		{code: 503, want: "5xx"},
		{code: -1, want: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			c := probeCounter.WithLabelValues(tt.want)
			before := testutil.ToFloat64(c)
			RecordProbe(tt.code)
			if got := testutil.ToFloat64(c) - before; got != 1 {
				t.Errorf("RecordProbe(%d) delta = %v, want 1", tt.code, got)
			}
		})
	}
}

func TestRecordTransition(t *testing.T) {
	c := transitionCounter.WithLabelValues("publish", "Validated")
	before := testutil.ToFloat64(c)
	RecordTransition("publish", "Validated")
	if got := testutil.ToFloat64(c) - before; got != 1 {
		t.Errorf("transition delta = %v, want 1", got)
	}
}

func TestPush(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	RecordTransition("publish", "Received")
	require.NoError(t, Push(context.Background(), srv.URL))

	if want := "/metrics/job/" + JobName; gotPath != want {
		t.Errorf("path = %q, want %q", gotPath, want)
	}
	if !strings.Contains(gotBody, "publishflow_reconcile_transitions_total") {
		t.Errorf("pushed body does not contain the transition counter")
	}
}
