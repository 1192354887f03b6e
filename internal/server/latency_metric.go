// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

// Package server holds small pieces shared by the binaries that serve HTTP.
package server

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// OpMetric counts operations and tracks their latencies. An operation is
// anything done on behalf of a caller, e.g. computing block locations or
// answering an HTTP request.
//
// Three metric vectors are registered under 'name':
//   - name{result,labels...}: a counter bumped with result="all" by Start and
//     with result="failed" (or anything passed to Result) afterwards.
//   - name_latency{labels...}: a summary of how long successful operations
//     took.
//   - name_pending{labels...}: a gauge of operations started but not ended.
//
// Usage:
//
//	op := ops.Start("locate", instance)
//	defer op.End()
//	if err != nil {
//		op.Failed()
//	}
//
// NewOpMetric registers with the default registry, so each name can only be
// used once per process; create OpMetrics at package level.
type OpMetric struct {
	name      string
	counters  *prometheus.CounterVec
	latencies *prometheus.SummaryVec
	pending   *prometheus.GaugeVec
}

// NewOpMetric returns a new op metric.
func NewOpMetric(name string, labels ...string) *OpMetric {
	withResult := append([]string{"result"}, labels...)
	return &OpMetric{
		name:      name,
		counters:  promauto.NewCounterVec(prometheus.CounterOpts{Name: name}, withResult),
		latencies: promauto.NewSummaryVec(prometheus.SummaryOpts{Name: name + "_latency"}, labels),
		pending:   promauto.NewGaugeVec(prometheus.GaugeOpts{Name: name + "_pending"}, labels),
	}
}

// Start marks that a new operation has started and begins measuring the
// latency.
func (m *OpMetric) Start(values ...string) *Op {
	op := &Op{m: m, values: values}
	op.Result("all")
	op.start = time.Now()
	m.pending.WithLabelValues(values...).Inc()
	return op
}

// Count returns the counter for 'result' and the given label values.
func (m *OpMetric) Count(result string, values ...string) uint64 {
	var value dto.Metric
	if m.counters.WithLabelValues(append([]string{result}, values...)...).Write(&value) != nil {
		return 0
	}
	return uint64(value.Counter.GetValue())
}

// Pending returns how many operations with the given label values are in
// flight.
func (m *OpMetric) Pending(values ...string) int64 {
	var value dto.Metric
	if m.pending.WithLabelValues(values...).Write(&value) != nil {
		return 0
	}
	return int64(value.Gauge.GetValue())
}

// String returns a one line summary of counts and latencies.
func (m *OpMetric) String(values ...string) string {
	out := SummaryString(m.latencies.WithLabelValues(values...))
	if out == "" {
		out = "no samples"
	}
	return out + fmt.Sprintf(" / %d total / %d failed / %d pending",
		m.Count("all", values...), m.Count("failed", values...), m.Pending(values...))
}

// Op is a single operation in progress.
type Op struct {
	start  time.Time
	m      *OpMetric
	values []string
}

// Failed records that the operation returned an error.
func (op *Op) Failed() {
	op.Result("failed")
}

// Result records an arbitrary result. The latency of the operation won't be
// recorded.
func (op *Op) Result(result string) {
	op.start = time.Time{}
	op.m.counters.WithLabelValues(append([]string{result}, op.values...)...).Inc()
}

// End records the elapsed time since Start.
func (op *Op) End() {
	if !op.start.IsZero() {
		op.m.latencies.WithLabelValues(op.values...).Observe(time.Since(op.start).Seconds())
	}
	op.m.pending.WithLabelValues(op.values...).Dec()
}

// SummaryString formats the sample count and quantiles of a summary.
func SummaryString(obs prometheus.Observer) string {
	sum, ok := obs.(prometheus.Summary)
	if !ok {
		return ""
	}
	var value dto.Metric
	if sum.Write(&value) != nil || value.Summary == nil {
		return ""
	}
	out := fmt.Sprintf("count=%d;", value.Summary.GetSampleCount())
	for _, q := range value.Summary.Quantile {
		out += fmt.Sprintf(" %gth=%.3fs;", q.GetQuantile()*100, q.GetValue())
	}
	return out[:len(out)-1]
}
