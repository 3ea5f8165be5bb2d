// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generation

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"github.com/AleutianAI/EnsembleBench/services/bench/learn"
)

// AdaBoost trains members sequentially with multi-class SAMME reweighting.
//
// Description:
//
//	Each round fits the template on the current sample weights, measures
//	the weighted error e, and boosts misclassified samples by
//	exp(log((1-e)/e) + log(K-1)). Boosting stops early on a perfect member
//	(kept) or on a member no better than chance, 1-1/K (discarded). A
//	first member no better than chance fails the fit.
type AdaBoost struct {
	// LearningRate shrinks every member's boost. Zero means 1.
	LearningRate float64
}

// Fit implements Strategy.
func (a AdaBoost) Fit(ctx context.Context, x [][]float64, y []int, template learn.Template, poolSize int, rng *rand.Rand) ([]learn.Classifier, error) {
	if err := checkInput(x, y, poolSize); err != nil {
		return nil, err
	}
	lr := a.LearningRate
	if lr <= 0 {
		lr = 1
	}
	k := float64(len(learn.UniqueLabels(y)))
	w := make([]float64, len(x))
	for i := range w {
		w[i] = 1 / float64(len(x))
	}
	miss := make([]bool, len(x))

	pool := make([]learn.Classifier, 0, poolSize)
	for m := 0; m < poolSize; m++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := template.Fit(x, y, w, child(rng))
		if err != nil {
			return nil, fmt.Errorf("adaboost member %d: %w", m, err)
		}

		errW := 0.0
		for i, row := range x {
			miss[i] = c.Predict(row) != y[i]
			if miss[i] {
				errW += w[i]
			}
		}
		errW /= floats.Sum(w)

		if errW <= 0 {
			pool = append(pool, c)
			break
		}
		if k > 1 && errW >= 1-1/k {
			if len(pool) == 0 {
				return nil, fmt.Errorf("%w: weighted error %.3f", ErrWorseThanRandom, errW)
			}
			break
		}
		pool = append(pool, c)

		alpha := lr * (math.Log((1-errW)/errW) + math.Log(math.Max(k-1, 1)))
		boost := math.Exp(alpha)
		for i := range w {
			if miss[i] {
				w[i] *= boost
			}
		}
		floats.Scale(1/floats.Sum(w), w)
	}
	return pool, nil
}
