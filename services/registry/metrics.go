// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for dataset lifecycle and record operations.
// Request latency is covered by the HTTP instrumentation layer.
var meter = otel.Meter("civicledger.registry")

// Metrics for the registry service.
var (
	datasetsActive  metric.Int64UpDownCounter
	recordsAppended metric.Int64Counter
	datasetsExpired metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		datasetsActive, err = meter.Int64UpDownCounter(
			"registry_datasets_active",
			metric.WithDescription("Number of live datasets"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		recordsAppended, err = meter.Int64Counter(
			"registry_records_appended_total",
			metric.WithDescription("Records appended and indexed, by backend"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		datasetsExpired, err = meter.Int64Counter(
			"registry_datasets_expired_total",
			metric.WithDescription("Datasets dropped after idling past the TTL"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordDatasetOpen adjusts the live dataset gauge by delta.
func recordDatasetOpen(ctx context.Context, delta int64) {
	if err := initMetrics(); err != nil {
		return
	}
	datasetsActive.Add(ctx, delta)
}

// recordAppend counts one indexed append.
func recordAppend(ctx context.Context, backend string) {
	if err := initMetrics(); err != nil {
		return
	}
	recordsAppended.Add(ctx, 1,
		metric.WithAttributes(attribute.String("backend", backend)),
	)
}

// recordDatasetExpired counts one TTL eviction.
func recordDatasetExpired(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	datasetsExpired.Add(ctx, 1)
}
