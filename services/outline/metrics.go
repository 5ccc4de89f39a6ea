// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package outline

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for the outline pipeline.
var (
	tracer = otel.Tracer("symview.outline")
	meter  = otel.Meter("symview.outline")
)

// Metrics for parse-and-collect cycles.
var (
	parseLatency     metric.Float64Histogram
	parseTotal       metric.Int64Counter
	symbolsExtracted metric.Int64Histogram
	staleResults     metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		parseLatency, err = meter.Float64Histogram(
			"outline_parse_duration_seconds",
			metric.WithDescription("Duration of parse-and-collect cycles"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseTotal, err = meter.Int64Counter(
			"outline_parse_total",
			metric.WithDescription("Total number of parse-and-collect cycles"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		symbolsExtracted, err = meter.Int64Histogram(
			"outline_symbols_extracted",
			metric.WithDescription("Number of top-level symbols extracted per cycle"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		staleResults, err = meter.Int64Counter(
			"outline_stale_results_total",
			metric.WithDescription("Reparse results discarded because the document changed"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordParseMetrics records metrics for one parse-and-collect cycle.
//
// Parameters:
//   - ctx: Context for metric recording
//   - language: Grammar used ("cpp" or "c")
//   - duration: How long the cycle took
//   - symbolCount: Number of top-level symbols extracted
//   - success: Whether the parse succeeded
func recordParseMetrics(ctx context.Context, language string, duration time.Duration, symbolCount int, success bool) {
	if err := initMetrics(); err != nil {
		return // Silently skip if metrics init failed
	}

	attrs := metric.WithAttributes(
		attribute.String("language", language),
		attribute.Bool("success", success),
	)

	parseLatency.Record(ctx, duration.Seconds(), attrs)
	parseTotal.Add(ctx, 1, attrs)

	if success {
		symbolsExtracted.Record(ctx, int64(symbolCount),
			metric.WithAttributes(attribute.String("language", language)),
		)
	}
}

// recordStaleResult counts a reparse result discarded after a document
// switch.
func recordStaleResult(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	staleResults.Add(ctx, 1)
}

// startParseSpan creates a span for one background reparse.
//
// Returns:
//   - ctx: Context with span
//   - span: The created span (caller must call span.End())
func startParseSpan(ctx context.Context, language string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Outline.Reparse",
		trace.WithAttributes(
			attribute.String("outline.language", language),
		),
	)
}
