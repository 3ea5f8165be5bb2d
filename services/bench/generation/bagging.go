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
	"math/rand/v2"

	"github.com/AleutianAI/EnsembleBench/services/bench/learn"
)

// Bagging trains every member on a bootstrap replica of the training set.
type Bagging struct {
	// MaxSamples is the replica size as a share of the training set.
	// Zero means 1.0.
	MaxSamples float64
}

// Fit implements Strategy.
func (b Bagging) Fit(ctx context.Context, x [][]float64, y []int, template learn.Template, poolSize int, rng *rand.Rand) ([]learn.Classifier, error) {
	if err := checkInput(x, y, poolSize); err != nil {
		return nil, err
	}
	share := b.MaxSamples
	if share <= 0 {
		share = 1
	}
	size := int(share * float64(len(x)))
	if size < 1 {
		size = 1
	}

	pool := make([]learn.Classifier, 0, poolSize)
	for m := 0; m < poolSize; m++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r := child(rng)
		bx := make([][]float64, size)
		by := make([]int, size)
		for i := range bx {
			j := r.IntN(len(x))
			bx[i], by[i] = x[j], y[j]
		}
		c, err := template.Fit(bx, by, nil, r)
		if err != nil {
			return nil, fmt.Errorf("bagging member %d: %w", m, err)
		}
		pool = append(pool, c)
	}
	return pool, nil
}
