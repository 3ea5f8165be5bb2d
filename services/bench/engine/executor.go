// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

var (
	tracer = otel.Tracer("ensemblebench.engine")
	meter  = otel.Meter("ensemblebench.engine")
)

// DefaultWorkers is the default number of folds processed concurrently.
const DefaultWorkers = 5

// Executor runs per-fold tasks on a bounded worker pool.
//
// Description:
//
//	Folds are independent, so pool generation and evaluation for one cell
//	run in parallel, at most Workers at a time. Results are written into
//	index-addressed slots and are therefore in fold order no matter which
//	fold finishes first.
//
// Thread Safety:
//
//	Executor is safe for concurrent use. Each Map call owns its own
//	errgroup.
type Executor struct {
	workers int
	logger  *slog.Logger

	// Metrics (initialized lazily)
	metricsOnce  sync.Once
	foldLatency  metric.Float64Histogram
	foldSuccess  metric.Int64Counter
	foldFailures metric.Int64Counter
	activeFolds  metric.Int64UpDownCounter
}

// NewExecutor creates an executor.
//
// Inputs:
//
//	workers - Maximum concurrent folds. Values below 1 use DefaultWorkers.
//	logger - Logger for task failures. If nil, uses slog.Default().
func NewExecutor(workers int, logger *slog.Logger) *Executor {
	if workers < 1 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{workers: workers, logger: logger}
}

// Workers returns the concurrency limit.
func (e *Executor) Workers() int { return e.workers }

// initMetrics lazily initializes metrics.
// Logs errors if metric creation fails but continues execution.
func (e *Executor) initMetrics() {
	e.metricsOnce.Do(func() {
		var initErrors []string

		var err error
		e.foldLatency, err = meter.Float64Histogram("bench_fold_duration_seconds",
			metric.WithDescription("Time spent on one fold task"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "fold_latency: "+err.Error())
		}

		e.foldSuccess, err = meter.Int64Counter("bench_fold_success_total",
			metric.WithDescription("Number of fold tasks that produced a result"),
		)
		if err != nil {
			initErrors = append(initErrors, "fold_success: "+err.Error())
		}

		e.foldFailures, err = meter.Int64Counter("bench_fold_failure_total",
			metric.WithDescription("Number of fold tasks that failed"),
		)
		if err != nil {
			initErrors = append(initErrors, "fold_failures: "+err.Error())
		}

		e.activeFolds, err = meter.Int64UpDownCounter("bench_active_folds",
			metric.WithDescription("Number of fold tasks currently running"),
		)
		if err != nil {
			initErrors = append(initErrors, "active_folds: "+err.Error())
		}

		if len(initErrors) > 0 {
			e.logger.Error("failed to initialize some engine metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// Map runs fn for every index in [0, n) on the executor.
//
// Description:
//
//	Per-fold errors are collected into errs[i] and do not stop the other
//	folds. A fatal error (configuration, aggregation, cancellation) cancels
//	the remaining folds and is returned as err.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	stage - Stage label for metrics, e.g. "generate" or "evaluate".
//	n - Number of folds.
//	fn - Per-fold task. Receives the group context.
//
// Outputs:
//
//	results - results[i] is fn(i)'s value, zero when it failed.
//	errs - errs[i] is fn(i)'s non-fatal error, nil on success.
//	err - The first fatal error, or nil.
func Map[T any](ctx context.Context, e *Executor, stage string, n int,
	fn func(ctx context.Context, i int) (T, error)) (results []T, errs []error, err error) {

	e.initMetrics()
	results = make([]T, n)
	errs = make([]error, n)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	attrs := metric.WithAttributes(attribute.String("stage", stage))
	for i := 0; i < n; i++ {
		if gCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			if e.activeFolds != nil {
				e.activeFolds.Add(gCtx, 1, attrs)
				defer e.activeFolds.Add(gCtx, -1, attrs)
			}

			start := time.Now()
			v, err := fn(gCtx, i)
			if e.foldLatency != nil {
				e.foldLatency.Record(gCtx, time.Since(start).Seconds(), attrs)
			}

			if err != nil {
				if e.foldFailures != nil {
					e.foldFailures.Add(gCtx, 1, attrs)
				}
				if isFatal(err) {
					return err
				}
				errs[i] = err
				return nil
			}
			if e.foldSuccess != nil {
				e.foldSuccess.Add(gCtx, 1, attrs)
			}
			results[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, errs, err
	}
	if err := ctx.Err(); err != nil {
		return results, errs, err
	}
	return results, errs, nil
}
