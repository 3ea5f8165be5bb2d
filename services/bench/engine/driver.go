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
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/google/uuid"

	"github.com/AleutianAI/EnsembleBench/services/bench/dataset"
	"github.com/AleutianAI/EnsembleBench/services/bench/learn"
	"github.com/AleutianAI/EnsembleBench/services/bench/registry"
)

// DefaultNoiseLevels are the label-noise levels of the reference grid.
var DefaultNoiseLevels = []int{0, 1, 2, 3, 4, 5}

// Sink receives every finished Result Set.
type Sink interface {
	Save(ctx context.Context, rs *ResultSet) error
}

// DriverConfig is the experiment grid.
type DriverConfig struct {
	Datasets    []string
	NoiseLevels []int
	Imbalance   registry.ID
	Generations []registry.ID
	Selections  []registry.ID
	PoolSize    int
	Workers     int
	Seed        uint64

	// BaselineParams maps dataset name to fold name to the number of trees
	// of the fixed baseline.
	BaselineParams map[string]map[string]int

	// NewTemplate overrides the base learner. Nil uses the perceptron.
	NewTemplate func() learn.Template

	// RunID tags the run. Empty generates one.
	RunID string
}

// Driver iterates the experiment grid.
//
// Description:
//
//	Cells run one after another in the order dataset, noise level,
//	generation method, selection method. Within a cell the folds run on the
//	Executor. FoldData is built once per (dataset, noise) pair and pools
//	once per generation method, then shared by every selection method.
//
// Thread Safety:
//
//	A Driver runs one grid at a time. Run must not be called concurrently
//	on the same Driver.
type Driver struct {
	cfg    DriverConfig
	store  dataset.Store
	reg    *registry.Registry
	sinks  []Sink
	logger *slog.Logger

	exec *Executor
	gen  *PoolGenerator
	eval *FoldEvaluator

	// Metrics (initialized lazily)
	metricsOnce sync.Once
	cellsTotal  metric.Int64Counter
	cellLatency metric.Float64Histogram
}

// NewDriver creates a driver.
//
// Inputs:
//
//	cfg - The grid. Slices and maps are copied.
//	store - Source of datasets. Must not be nil.
//	reg - Strategy registry. Must not be nil.
//	sinks - Destinations for Result Sets. May be empty.
//	logger - If nil, uses slog.Default().
//
// Outputs:
//
//	*Driver - The configured driver.
//	error - ErrConfiguration if a dependency is missing.
func NewDriver(cfg DriverConfig, store dataset.Store, reg *registry.Registry,
	sinks []Sink, logger *slog.Logger) (*Driver, error) {

	if store == nil {
		return nil, configErr("dataset store is required")
	}
	if reg == nil {
		return nil, configErr("strategy registry is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg = copyConfig(cfg)
	return &Driver{
		cfg:    cfg,
		store:  store,
		reg:    reg,
		sinks:  append([]Sink(nil), sinks...),
		logger: logger,
		exec:   NewExecutor(cfg.Workers, logger),
		gen: &PoolGenerator{
			NewTemplate: cfg.NewTemplate,
			PoolSize:    cfg.PoolSize,
			Seed:        cfg.Seed,
			Logger:      logger,
		},
		eval: &FoldEvaluator{Seed: cfg.Seed, Logger: logger},
	}, nil
}

// NewRunID returns a short random run identifier.
func NewRunID() string {
	return uuid.NewString()[:12]
}

func copyConfig(cfg DriverConfig) DriverConfig {
	out := cfg
	out.Datasets = append([]string(nil), cfg.Datasets...)
	out.NoiseLevels = append([]int(nil), cfg.NoiseLevels...)
	out.Generations = append([]registry.ID(nil), cfg.Generations...)
	out.Selections = append([]registry.ID(nil), cfg.Selections...)
	if len(out.NoiseLevels) == 0 {
		out.NoiseLevels = append([]int(nil), DefaultNoiseLevels...)
	}
	if len(out.Generations) == 0 {
		out.Generations = registry.DefaultGenerations()
	}
	if len(out.Selections) == 0 {
		out.Selections = registry.DefaultSelections()
	}
	out.BaselineParams = make(map[string]map[string]int, len(cfg.BaselineParams))
	for ds, folds := range cfg.BaselineParams {
		m := make(map[string]int, len(folds))
		for f, p := range folds {
			m[f] = p
		}
		out.BaselineParams[ds] = m
	}
	return out
}

// initMetrics lazily initializes metrics.
func (d *Driver) initMetrics() {
	d.metricsOnce.Do(func() {
		var initErrors []string

		var err error
		d.cellsTotal, err = meter.Int64Counter("bench_cells_total",
			metric.WithDescription("Number of grid cells by outcome status"),
		)
		if err != nil {
			initErrors = append(initErrors, "cells_total: "+err.Error())
		}

		d.cellLatency, err = meter.Float64Histogram("bench_cell_duration_seconds",
			metric.WithDescription("Time spent on one grid cell"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "cell_latency: "+err.Error())
		}

		if len(initErrors) > 0 {
			d.logger.Error("failed to initialize some driver metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// plan holds the registry entries of a run.
type plan struct {
	imbalance   *registry.Entry
	generations []registry.Entry
	selections  []registry.Entry
	needsPools  bool
}

func (d *Driver) resolve() (*plan, error) {
	p := &plan{}
	if id := d.cfg.Imbalance; id != "" && id != registry.NoImbalance {
		e, err := d.reg.Lookup(registry.FamilyImbalance, id)
		if err != nil {
			return nil, err
		}
		p.imbalance = &e
	}
	for _, id := range d.cfg.Generations {
		e, err := d.reg.Lookup(registry.FamilyGeneration, id)
		if err != nil {
			return nil, err
		}
		p.generations = append(p.generations, e)
	}
	for _, id := range d.cfg.Selections {
		e, err := d.reg.Lookup(registry.FamilySelection, id)
		if err != nil {
			return nil, err
		}
		p.selections = append(p.selections, e)
		if e.Category.PoolBased() {
			p.needsPools = true
		}
	}
	return p, nil
}

// Run evaluates the whole grid.
//
// Description:
//
//	Unknown strategy ids abort the run before any work. Inside the grid a
//	configuration or aggregation error skips its cell, a fold-local error
//	drops its fold, and a persistence failure is logged and counted. All
//	three are reported in the summary and the run continues.
//
// Outputs:
//
//	*RunSummary - Outcome of every cell reached. Non-nil even on error.
//	error - ErrConfiguration for unknown ids, or the context error.
func (d *Driver) Run(ctx context.Context) (*RunSummary, error) {
	d.initMetrics()

	runID := d.cfg.RunID
	if runID == "" {
		runID = NewRunID()
	}
	summary := &RunSummary{RunID: runID}
	logger := d.logger.With(slog.String("run_id", summary.RunID))

	p, err := d.resolve()
	if err != nil {
		return summary, err
	}

	start := time.Now()
	logger.Info("grid starting",
		slog.Int("datasets", len(d.cfg.Datasets)),
		slog.Int("noise_levels", len(d.cfg.NoiseLevels)),
		slog.Int("generations", len(p.generations)),
		slog.Int("selections", len(p.selections)),
		slog.Int("workers", d.exec.Workers()),
	)

	for _, name := range d.cfg.Datasets {
		ds, err := d.store.Load(ctx, name)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return summary, ctxErr
			}
			logger.Error("dataset unavailable",
				slog.String("dataset", name),
				slog.String("error", err.Error()),
			)
			for _, noise := range d.cfg.NoiseLevels {
				for _, gen := range p.generations {
					for _, sel := range p.selections {
						d.skip(ctx, summary, d.cell(name, noise, p, gen, sel), err)
					}
				}
			}
			continue
		}

		for _, noise := range d.cfg.NoiseLevels {
			fds, prepared := BuildFoldData(ds, noise)
			for _, f := range prepared {
				logger.Warn("fold unavailable",
					slog.String("dataset", name),
					slog.Int("noise", noise),
					slog.String("fold", f.Fold),
					slog.String("reason", f.Reason),
				)
			}

			for _, gen := range p.generations {
				var pools []*Pool
				var poolErrs []error
				if p.needsPools {
					pools, poolErrs, err = d.generatePools(ctx, d.cell(name, noise, p, gen, registry.Entry{}), fds, gen, p.imbalance)
					if err != nil {
						if ctxErr := ctx.Err(); ctxErr != nil {
							return summary, ctxErr
						}
						for _, sel := range p.selections {
							d.skip(ctx, summary, d.cell(name, noise, p, gen, sel), err)
						}
						continue
					}
				}

				for _, sel := range p.selections {
					cell := d.cell(name, noise, p, gen, sel)
					in := cellInput{ds: ds, fds: fds, prepared: prepared, pools: pools, poolErrs: poolErrs}
					d.runCell(ctx, logger, summary, cell, in, gen, sel)
					if ctxErr := ctx.Err(); ctxErr != nil {
						return summary, ctxErr
					}
				}
			}
		}
	}

	logger.Info("grid completed",
		slog.Int("completed", summary.Count(StatusCompleted)),
		slog.Int("degraded", summary.Count(StatusDegraded)),
		slog.Int("skipped", summary.Count(StatusSkipped)),
		slog.Int("persist_failures", summary.PersistFailures),
		slog.Duration("duration", time.Since(start)),
	)
	return summary, nil
}

func (d *Driver) cell(name string, noise int, p *plan, gen, sel registry.Entry) Cell {
	c := Cell{Dataset: name, Noise: noise, Generation: gen.ID, Selection: sel.ID, Imbalance: registry.NoImbalance}
	if p.imbalance != nil {
		c.Imbalance = p.imbalance.ID
	}
	return c
}

// generatePools builds every fold's pool for one generation method.
func (d *Driver) generatePools(ctx context.Context, cell Cell, fds []FoldData,
	gen registry.Entry, imb *registry.Entry) ([]*Pool, []error, error) {

	return Map(ctx, d.exec, "generate", len(fds), func(ctx context.Context, i int) (*Pool, error) {
		return d.gen.Generate(ctx, cell, fds[i], gen, imb)
	})
}

type cellInput struct {
	ds       *dataset.Dataset
	fds      []FoldData
	prepared []FoldFailure
	pools    []*Pool
	poolErrs []error
}

func (d *Driver) runCell(ctx context.Context, logger *slog.Logger, summary *RunSummary,
	cell Cell, in cellInput, gen, sel registry.Entry) {

	ctx, span := tracer.Start(ctx, "bench.Cell",
		trace.WithAttributes(
			attribute.String("bench.dataset", cell.Dataset),
			attribute.Int("bench.noise", cell.Noise),
			attribute.String("bench.imbalance", string(cell.Imbalance)),
			attribute.String("bench.generation", string(cell.Generation)),
			attribute.String("bench.selection", string(cell.Selection)),
		),
	)
	defer span.End()
	start := time.Now()

	rs, err := d.evaluateCell(ctx, cell, in, gen, sel)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctx.Err() == nil {
			d.skip(ctx, summary, cell, err)
			logger.Error("cell skipped",
				slog.String("dataset", cell.Dataset),
				slog.Int("noise", cell.Noise),
				slog.String("generation", string(cell.Generation)),
				slog.String("selection", string(cell.Selection)),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	for _, s := range d.sinks {
		if err := s.Save(ctx, rs); err != nil {
			summary.PersistFailures++
			logger.Error("failed to persist result set",
				slog.String("key", cell.Key()),
				slog.String("error", err.Error()),
			)
		}
	}

	status := StatusCompleted
	if rs.Degraded {
		status = StatusDegraded
		for _, f := range rs.Failures {
			logger.Warn("fold failed",
				slog.String("key", cell.Key()),
				slog.String("fold", f.Fold),
				slog.String("stage", f.Stage),
				slog.String("reason", f.Reason),
			)
		}
	}
	d.record(ctx, summary, CellOutcome{Cell: cell, Status: status, Folds: len(rs.Folds), Failures: len(rs.Failures)})
	if d.cellLatency != nil {
		d.cellLatency.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("selection", string(cell.Selection))),
		)
	}
	span.SetAttributes(attribute.Bool("bench.degraded", rs.Degraded))
	span.SetStatus(codes.Ok, "")

	logger.Info("cell completed",
		slog.String("key", cell.Key()),
		slog.String("status", status),
		slog.Int("folds", len(rs.Folds)),
		slog.Float64("mean_accuracy", meanOf(rs.Table, "Accuracy")),
		slog.Duration("duration", time.Since(start)),
	)
}

func (d *Driver) evaluateCell(ctx context.Context, cell Cell, in cellInput,
	gen, sel registry.Entry) (*ResultSet, error) {

	params := make([]int, len(in.fds))
	if sel.Category == registry.CategoryFixedBaseline {
		for i, fd := range in.fds {
			p, ok := d.cfg.BaselineParams[cell.Dataset][fd.Fold]
			if !ok {
				return nil, configErr("no %s parameter for %s %s", sel.ID, cell.Dataset, fd.Fold)
			}
			params[i] = p
		}
	}

	results, errs, err := Map(ctx, d.exec, "evaluate", len(in.fds), func(ctx context.Context, i int) (*FoldResult, error) {
		var pool *Pool
		if sel.Category.PoolBased() {
			pool = in.pools[i]
			if pool == nil && in.poolErrs[i] != nil {
				return nil, in.poolErrs[i]
			}
		}
		return d.eval.Evaluate(ctx, cell, in.fds[i], pool, sel, gen.Descriptor, params[i])
	})
	if err != nil {
		return nil, err
	}

	failures := append([]FoldFailure(nil), in.prepared...)
	var ok []FoldResult
	for i, r := range results {
		if errs[i] != nil {
			failures = append(failures, failureOf(in.fds[i].Fold, errs[i]))
			continue
		}
		if r != nil {
			ok = append(ok, *r)
		}
	}
	sortFailures(failures, in.ds.FoldNames())

	rs, err := Aggregate(cell, ok, failures, len(in.ds.Folds), in.ds.Classes())
	if err != nil {
		return nil, err
	}
	rs.Deployable = sel.Deployable
	return rs, nil
}

func (d *Driver) skip(ctx context.Context, summary *RunSummary, cell Cell, err error) {
	d.record(ctx, summary, CellOutcome{Cell: cell, Status: StatusSkipped, Reason: reason(err)})
}

func (d *Driver) record(ctx context.Context, summary *RunSummary, o CellOutcome) {
	summary.Cells = append(summary.Cells, o)
	if d.cellsTotal != nil {
		d.cellsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", o.Status)))
	}
}

func reason(err error) string {
	var fe *FoldError
	if errors.As(err, &fe) {
		return fmt.Sprintf("%s: %v", fe.Stage, fe.Err)
	}
	return err.Error()
}

func sortFailures(failures []FoldFailure, order []string) {
	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	sort.SliceStable(failures, func(i, j int) bool {
		return pos[failures[i].Fold] < pos[failures[j].Fold]
	})
}

func meanOf(t MetricsTable, column string) float64 {
	for j, c := range t.Columns {
		if c == column && j < len(t.Mean) {
			return t.Mean[j]
		}
	}
	return 0
}
