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

	"github.com/AleutianAI/EnsembleBench/services/bench/generation"
	"github.com/AleutianAI/EnsembleBench/services/bench/learn"
	"github.com/AleutianAI/EnsembleBench/services/bench/registry"
)

// DefaultPoolSize is the number of members requested from a generation method.
const DefaultPoolSize = 100

// PoolGenerator builds the classifier pool of one fold.
//
// Thread Safety: Safe for concurrent use. Every call builds a fresh
// base-learner template and random source.
type PoolGenerator struct {
	// NewTemplate returns the base learner for one fold. Defaults to the
	// perceptron with 1000 epochs.
	NewTemplate func() learn.Template
	PoolSize    int
	Seed        uint64
	Logger      *slog.Logger
}

func (g *PoolGenerator) logger() *slog.Logger {
	if g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}

func (g *PoolGenerator) template() learn.Template {
	if g.NewTemplate == nil {
		return learn.DefaultPerceptron()
	}
	return g.NewTemplate()
}

func (g *PoolGenerator) poolSize() int {
	if g.PoolSize <= 0 {
		return DefaultPoolSize
	}
	return g.PoolSize
}

// Generate trains the pool of one fold.
//
// Description:
//
//	If imb is set, the training data are resampled first. The generation
//	method then receives a fresh template and a random source derived from
//	(seed, dataset, fold, generation id).
//
// Inputs:
//
//	ctx - Context for cancellation.
//	cell - The grid cell, for seeding and telemetry.
//	fd - The fold.
//	gen - Generation entry from the registry.
//	imb - Imbalance entry, nil for none.
//
// Outputs:
//
//	*Pool - Non-empty pool.
//	error - ErrFoldData (as *FoldError) for infeasible resampling or a
//	failed fit, ErrConfiguration for an invalid pool size.
func (g *PoolGenerator) Generate(ctx context.Context, cell Cell, fd FoldData,
	gen registry.Entry, imb *registry.Entry) (*Pool, error) {

	ctx, span := tracer.Start(ctx, "bench.GeneratePool",
		trace.WithAttributes(
			attribute.String("bench.dataset", cell.Dataset),
			attribute.Int("bench.noise", cell.Noise),
			attribute.String("bench.generation", string(gen.ID)),
			attribute.String("bench.fold", fd.Fold),
		),
	)
	defer span.End()

	pool, err := g.generate(ctx, cell, fd, gen, imb)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("bench.pool_size", pool.Size()))
	span.SetStatus(codes.Ok, "")
	return pool, nil
}

func (g *PoolGenerator) generate(ctx context.Context, cell Cell, fd FoldData,
	gen registry.Entry, imb *registry.Entry) (*Pool, error) {

	if gen.Generation == nil {
		return nil, configErr("%s is not a generation method", gen.ID)
	}

	x, y, fp := fd.XTrain, fd.YTrain, fd.Fingerprint
	if imb != nil && imb.Imbalance != nil {
		rng := learn.NewRand(DeriveSeed(g.Seed, cell.Dataset, fd.Fold, string(imb.ID)))
		var err error
		x, y, err = imb.Imbalance.Resample(x, y, rng)
		if err != nil {
			return nil, foldErr(StageResample, fmt.Errorf("%s: %w", imb.ID, err))
		}
		fp = learn.FingerprintOf(x, y)
	}

	start := time.Now()
	rng := learn.NewRand(DeriveSeed(g.Seed, cell.Dataset, fd.Fold, string(gen.ID)))
	members, err := gen.Generation.Fit(ctx, x, y, g.template(), g.poolSize(), rng)
	if err != nil {
		if errors.Is(err, generation.ErrInvalidPoolSize) {
			return nil, configErr("%s: %v", gen.ID, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, foldErr(StageGenerate, fmt.Errorf("%s: %w", gen.ID, err))
	}
	if len(members) == 0 {
		return nil, foldErr(StageGenerate, fmt.Errorf("%s produced an empty pool", gen.ID))
	}

	g.logger().Debug("pool generated",
		slog.String("dataset", cell.Dataset),
		slog.Int("noise", cell.Noise),
		slog.String("generation", string(gen.ID)),
		slog.String("fold", fd.Fold),
		slog.Int("members", len(members)),
		slog.Duration("duration", time.Since(start)),
	)

	return &Pool{
		Generation:  gen.ID,
		Fold:        fd.Fold,
		Members:     members,
		TrainX:      x,
		TrainY:      y,
		Fingerprint: fp,
	}, nil
}
