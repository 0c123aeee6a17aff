// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bst

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for index tree operations. Tree operations take
// no context (single-owner, non-blocking), so instruments are recorded
// against the background context; spans over these operations belong to
// the calling layers.
var meter = otel.Meter("civicledger.bst")

// Metrics for tree operations.
var (
	mutationLatency metric.Float64Histogram
	mutationTotal   metric.Int64Counter
	treeSize        metric.Int64Gauge
	traversalLength metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		mutationLatency, err = meter.Float64Histogram(
			"bst_mutation_duration_seconds",
			metric.WithDescription("Duration of tree mutations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		mutationTotal, err = meter.Int64Counter(
			"bst_mutation_total",
			metric.WithDescription("Total tree mutations by operation and effect"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		treeSize, err = meter.Int64Gauge(
			"bst_tree_size",
			metric.WithDescription("Current number of indexed keys"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		traversalLength, err = meter.Int64Histogram(
			"bst_traversal_length",
			metric.WithDescription("Records yielded per traversal"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordMutation records latency and count for a mutation. effective is
// false for silent no-ops (duplicate insert, absent-key remove).
func recordMutation(operation string, start time.Time, effective bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("effective", effective),
	)

	ctx := context.Background()
	mutationLatency.Record(ctx, time.Since(start).Seconds(), attrs)
	mutationTotal.Add(ctx, 1, attrs)
}

// recordTreeSize records the current key count.
func recordTreeSize(size int) {
	if err := initMetrics(); err != nil {
		return
	}
	treeSize.Record(context.Background(), int64(size))
}

// recordTraversal records the yield length of one traversal.
func recordTraversal(order Order, length int) {
	if err := initMetrics(); err != nil {
		return
	}
	traversalLength.Record(context.Background(), int64(length),
		metric.WithAttributes(attribute.String("order", order.String())),
	)
}
