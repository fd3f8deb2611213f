/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package metrics holds the Prometheus counters recorded while reviewing
// submissions. The process is short lived, so counters are pushed to a
// Pushgateway at exit instead of being scraped.
package metrics

import (
	"context"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// JobName groups pushed series in the Pushgateway.
const JobName = "publishflow"

var (
	validationCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publishflow_validations_total",
			Help: "Total number of submission validations performed",
		},
		[]string{"kind", "valid"},
	)

	fieldErrorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publishflow_field_errors_total",
			Help: "Total number of field errors reported, by error type",
		},
		[]string{"kind", "type"},
	)

	transitionCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publishflow_reconcile_transitions_total",
			Help: "Total number of reconciler state transitions",
		},
		[]string{"flow", "state"},
	)

	probeCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publishflow_reachability_probes_total",
			Help: "Total number of outbound reachability probes, by outcome",
		},
		[]string{"result"},
	)
)

// RecordValidation counts one validation pass and its error types.
func RecordValidation(kind string, valid bool, errorTypes []string) {
	validationCounter.With(prometheus.Labels{
		"kind":  kind,
		"valid": strconv.FormatBool(valid),
	}).Inc()
	for _, typ := range errorTypes {
		fieldErrorCounter.With(prometheus.Labels{
			"kind": kind,
			"type": typ,
		}).Inc()
	}
}

// RecordTransition counts a reconciler entering state.
func RecordTransition(flow, state string) {
	transitionCounter.With(prometheus.Labels{
		"flow":  flow,
		"state": state,
	}).Inc()
}

// RecordProbe counts one reachability probe. Status codes are bucketed by
// class; transport failures are reported as "error".
func RecordProbe(statusCode int) {
	probeCounter.With(prometheus.Labels{"result": probeResult(statusCode)}).Inc()
}

func probeResult(statusCode int) string {
	if statusCode < 100 {
		return "error"
	}
	return fmt.Sprintf("%dxx", statusCode/100)
}

// Push sends every registered series to the Pushgateway at url.
func Push(ctx context.Context, url string) error {
	if err := push.New(url, JobName).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics: %w", err)
	}
	return nil
}
