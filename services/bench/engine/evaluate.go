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
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/EnsembleBench/services/bench/learn"
	"github.com/AleutianAI/EnsembleBench/services/bench/metrics"
	"github.com/AleutianAI/EnsembleBench/services/bench/registry"
	"github.com/AleutianAI/EnsembleBench/services/bench/selection"
)

// FoldEvaluator applies a selection strategy to one fold.
//
// Thread Safety: Safe for concurrent use. Pools are only read.
type FoldEvaluator struct {
	Seed   uint64
	Logger *slog.Logger
}

func (ev *FoldEvaluator) logger() *slog.Logger {
	if ev.Logger == nil {
		return slog.Default()
	}
	return ev.Logger
}

// Evaluate runs one selection strategy on one fold.
//
// Description:
//
//	Dispatch follows the selection's registry category. The fixed baseline
//	ignores the pool and trains on the fold's training data. Pool-based
//	strategies are fitted on the training data and the pool's members,
//	after calibration when the strategy needs probabilities the generation
//	method does not provide. The oracle alone receives the test labels.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	cell - The grid cell.
//	fd - The fold.
//	pool - The fold's pool. Ignored by the fixed baseline.
//	sel - Selection entry from the registry.
//	gen - Descriptor of the generation method that built pool.
//	baselineParam - Per-fold hyperparameter of the fixed baseline.
//
// Outputs:
//
//	*FoldResult - Confusion matrix, metrics and aligned predictions.
//	error - ErrConfiguration before any prediction when the setup is
//	invalid, ErrFoldData (as *FoldError) for fold-local failures.
func (ev *FoldEvaluator) Evaluate(ctx context.Context, cell Cell, fd FoldData, pool *Pool,
	sel registry.Entry, gen registry.Descriptor, baselineParam int) (*FoldResult, error) {

	ctx, span := tracer.Start(ctx, "bench.EvaluateFold",
		trace.WithAttributes(
			attribute.String("bench.dataset", cell.Dataset),
			attribute.Int("bench.noise", cell.Noise),
			attribute.String("bench.generation", string(cell.Generation)),
			attribute.String("bench.selection", string(sel.ID)),
			attribute.String("bench.category", sel.Category.String()),
			attribute.String("bench.fold", fd.Fold),
		),
	)
	defer span.End()

	start := time.Now()
	res, err := ev.evaluate(ctx, cell, fd, pool, sel, gen, baselineParam)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Float64("bench.accuracy", res.Metrics.Accuracy))
	span.SetStatus(codes.Ok, "")

	ev.logger().Debug("fold evaluated",
		slog.String("dataset", cell.Dataset),
		slog.Int("noise", cell.Noise),
		slog.String("generation", string(cell.Generation)),
		slog.String("selection", string(sel.ID)),
		slog.String("fold", fd.Fold),
		slog.Float64("accuracy", res.Metrics.Accuracy),
		slog.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func (ev *FoldEvaluator) evaluate(ctx context.Context, cell Cell, fd FoldData, pool *Pool,
	sel registry.Entry, gen registry.Descriptor, baselineParam int) (*FoldResult, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var pred []int
	switch sel.Category {
	case registry.CategoryFixedBaseline:
		if sel.Baseline == nil {
			return nil, configErr("%s has no baseline constructor", sel.ID)
		}
		if baselineParam < 1 {
			return nil, configErr("%s needs a positive parameter for %s %s, got %d",
				sel.ID, cell.Dataset, fd.Fold, baselineParam)
		}
		rng := learn.NewRand(DeriveSeed(ev.Seed, cell.Dataset, fd.Fold, string(sel.ID)))
		fitted, err := sel.Baseline.FitBaseline(fd.XTrain, fd.YTrain, baselineParam, rng)
		if err != nil {
			return nil, foldErr(StageFit, fmt.Errorf("%s: %w", sel.ID, err))
		}
		pred = fitted.Predict(fd.XTest)

	case registry.CategoryDCS, registry.CategoryDES, registry.CategoryOracle:
		if sel.Selection == nil {
			return nil, configErr("%s has no selection constructor", sel.ID)
		}
		if pool == nil {
			return nil, foldErr(StageGenerate, fmt.Errorf("no pool for %s", fd.Fold))
		}
		if pool.Size() < sel.MinPoolSize {
			return nil, configErr("%s needs at least %d pool members, %s built %d",
				sel.ID, sel.MinPoolSize, pool.Generation, pool.Size())
		}

		if sel.NeedsProbabilities && !gen.NativeProbabilities {
			var err error
			pool, err = Calibrate(pool)
			if err != nil {
				return nil, err
			}
		}

		fitted, err := sel.Selection.Fit(fd.XTrain, fd.YTrain, pool.Members)
		if err != nil {
			if errors.Is(err, selection.ErrNeedsProbabilities) {
				return nil, configErr("%s on %s: %v", sel.ID, pool.Generation, err)
			}
			return nil, foldErr(StageFit, fmt.Errorf("%s: %w", sel.ID, err))
		}

		if sel.Category == registry.CategoryOracle {
			of, ok := fitted.(selection.OracleFitted)
			if !ok {
				return nil, configErr("%s is declared an oracle but cannot read labels", sel.ID)
			}
			pred = of.PredictWithLabels(fd.XTest, fd.YTest)
		} else {
			pred = fitted.Predict(fd.XTest)
		}

	default:
		return nil, configErr("%s has no evaluation path for category %s", sel.ID, sel.Category)
	}

	return score(fd, pred)
}

// score builds the fold result from aligned predictions.
func score(fd FoldData, pred []int) (*FoldResult, error) {
	if len(pred) != len(fd.YTest) {
		return nil, foldErr(StagePredict, fmt.Errorf("%d predictions for %d test rows", len(pred), len(fd.YTest)))
	}
	labels, cm, err := metrics.ConfusionMatrix(fd.YTest, pred)
	if err != nil {
		return nil, foldErr(StageScore, err)
	}
	vec := metrics.FromConfusion(labels, cm)

	truth := make([]int, len(fd.YTest))
	copy(truth, fd.YTest)
	return &FoldResult{
		Fold:        fd.Fold,
		Labels:      labels,
		Confusion:   cm,
		Metrics:     vec,
		Predictions: pred,
		Truth:       truth,
	}, nil
}

// Calibrate returns a copy of pool whose members are sigmoid-calibrated on
// the data the pool was trained on, which is the resampled set when an
// imbalance corrector ran. Members already calibrated on the same data are
// reused, so calibrating twice is a no-op.
//
// Outputs:
//
//	*Pool - A new pool with Calibrated set. The input pool is untouched.
//	error - ErrFoldData (as *FoldError) when the training set is degenerate.
func Calibrate(pool *Pool) (*Pool, error) {
	if len(pool.TrainY) == 0 {
		return nil, foldErr(StageCalibrate, fmt.Errorf("pool for %s carries no training data", pool.Fold))
	}
	members := make([]learn.Classifier, len(pool.Members))
	for i, m := range pool.Members {
		c, err := learn.CalibratePrefit(m, pool.TrainX, pool.TrainY, pool.Fingerprint)
		if err != nil {
			return nil, foldErr(StageCalibrate, fmt.Errorf("member %d: %w", i, err))
		}
		members[i] = c
	}
	return &Pool{
		Generation:  pool.Generation,
		Fold:        pool.Fold,
		Members:     members,
		Calibrated:  true,
		TrainX:      pool.TrainX,
		TrainY:      pool.TrainY,
		Fingerprint: pool.Fingerprint,
	}, nil
}
