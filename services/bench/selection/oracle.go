// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package selection

import (
	"fmt"
	"math/rand/v2"

	"github.com/AleutianAI/EnsembleBench/services/bench/learn"
)

// =============================================================================
// Oracle
// =============================================================================

// Oracle is the theoretical upper bound of any selector over a pool: a
// sample counts as correct when at least one member gets it right.
type Oracle struct{}

type oracle struct {
	pool []learn.Classifier
}

// Fit implements Strategy. Only the pool is retained.
func (Oracle) Fit(_ [][]float64, _ []int, pool []learn.Classifier) (Fitted, error) {
	if len(pool) == 0 {
		return nil, ErrEmptyPool
	}
	return &oracle{pool: pool}, nil
}

// Predict returns the pool's majority vote. Without labels the oracle has
// no advantage.
func (o *oracle) Predict(x [][]float64) []int {
	out := make([]int, len(x))
	all := allMembers(len(o.pool))
	for i, q := range x {
		out[i] = vote(o.predsOf(q), all, nil)
	}
	return out
}

// PredictWithLabels returns y[i] when some member predicts it and the
// majority vote otherwise.
func (o *oracle) PredictWithLabels(x [][]float64, y []int) []int {
	out := make([]int, len(x))
	all := allMembers(len(o.pool))
	for i, q := range x {
		preds := o.predsOf(q)
		out[i] = vote(preds, all, nil)
		for _, p := range preds {
			if p == y[i] {
				out[i] = p
				break
			}
		}
	}
	return out
}

func (o *oracle) predsOf(q []float64) []int {
	preds := make([]int, len(o.pool))
	for m, c := range o.pool {
		preds[m] = c.Predict(q)
	}
	return preds
}

// =============================================================================
// Random forest baseline
// =============================================================================

// RandomForest is the fixed baseline: a forest trained directly on the
// fold, with the number of trees supplied per fold.
type RandomForest struct {
	// MaxDepth limits every tree. Zero means unlimited.
	MaxDepth int
}

type fixed struct {
	c learn.Classifier
}

func (f fixed) Predict(x [][]float64) []int { return learn.PredictAll(f.c, x) }

// FitBaseline implements Baseline. param is the number of trees.
func (b RandomForest) FitBaseline(x [][]float64, y []int, param int, rng *rand.Rand) (Fitted, error) {
	if param < 1 {
		return nil, fmt.Errorf("random forest needs at least one tree, got %d", param)
	}
	c, err := learn.ForestTemplate{NEstimators: param, MaxDepth: b.MaxDepth}.Fit(x, y, nil, rng)
	if err != nil {
		return nil, err
	}
	return fixed{c: c}, nil
}

var (
	_ OracleFitted = (*oracle)(nil)
	_ Baseline     = RandomForest{}
)
