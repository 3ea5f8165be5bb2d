// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package imbalance

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"github.com/AleutianAI/EnsembleBench/services/bench/learn"
)

// SMOTE synthesises minority samples by interpolating between a sample and
// one of its K nearest same-class neighbours.
type SMOTE struct {
	// K is the neighbourhood size. Default 5.
	K int
}

// Resample implements Sampler. A class that needs oversampling but has no
// more than K samples fails with ErrTooFewSamples.
func (s SMOTE) Resample(x [][]float64, y []int, rng *rand.Rand) ([][]float64, []int, error) {
	if err := checkInput(x, y); err != nil {
		return nil, nil, err
	}
	k := s.K
	if k <= 0 {
		k = 5
	}
	labels, rows := classRows(y)
	_, maxN := extremes(labels, rows)

	extra := 0
	for _, l := range labels {
		need := maxN - len(rows[l])
		if need > 0 && len(rows[l]) <= k {
			return nil, nil, fmt.Errorf("%w: class %d has %d samples, SMOTE needs more than %d",
				ErrTooFewSamples, l, len(rows[l]), k)
		}
		extra += need
	}

	ox, oy := copySet(x, y, extra)
	for _, l := range labels {
		need := maxN - len(rows[l])
		if need == 0 {
			continue
		}
		members := make([][]float64, len(rows[l]))
		for i, r := range rows[l] {
			members[i] = x[r]
		}
		nn := learn.NewNeighbors(members)
		for j := 0; j < need; j++ {
			i := rng.IntN(len(members))
			neigh := nn.QueryExcluding(members[i], k, i)
			pick := members[neigh[rng.IntN(len(neigh))]]
			gap := rng.Float64()
			sample := make([]float64, len(members[i]))
			floats.SubTo(sample, pick, members[i])
			floats.Scale(gap, sample)
			floats.Add(sample, members[i])
			ox = append(ox, sample)
			oy = append(oy, l)
		}
	}
	return ox, oy, nil
}

// RandomOverSampler duplicates random minority samples until every class
// matches the majority class.
type RandomOverSampler struct{}

// Resample implements Sampler.
func (RandomOverSampler) Resample(x [][]float64, y []int, rng *rand.Rand) ([][]float64, []int, error) {
	if err := checkInput(x, y); err != nil {
		return nil, nil, err
	}
	labels, rows := classRows(y)
	_, maxN := extremes(labels, rows)
	ox, oy := copySet(x, y, maxN*len(labels)-len(x))
	for _, l := range labels {
		members := rows[l]
		for j := len(members); j < maxN; j++ {
			r := members[rng.IntN(len(members))]
			ox = append(ox, x[r])
			oy = append(oy, l)
		}
	}
	return ox, oy, nil
}
