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
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/AleutianAI/EnsembleBench/services/bench/learn"
)

// RandomUnderSampler drops random samples until every class matches the
// minority class. Kept samples retain their original order.
type RandomUnderSampler struct{}

// Resample implements Sampler.
func (RandomUnderSampler) Resample(x [][]float64, y []int, rng *rand.Rand) ([][]float64, []int, error) {
	if err := checkInput(x, y); err != nil {
		return nil, nil, err
	}
	labels, rows := classRows(y)
	minN, _ := extremes(labels, rows)
	keep := make([]int, 0, minN*len(labels))
	for _, l := range labels {
		members := append([]int(nil), rows[l]...)
		rng.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
		keep = append(keep, members[:minN]...)
	}
	ox, oy := subset(x, y, keep)
	return ox, oy, nil
}

// InstanceHardnessThreshold removes the hardest samples of every
// non-minority class.
//
// Description:
//
//	Hardness is one minus the cross-validated probability a classifier
//	assigns to a sample's own label. Probabilities come from CV stratified
//	folds of Estimator. For each class above minority size the kept
//	samples are those at or above the percentile threshold that leaves
//	roughly the minority count. The minority class is kept whole.
type InstanceHardnessThreshold struct {
	// Estimator must produce probabilistic classifiers. Default is a
	// 100-tree random forest.
	Estimator learn.Template

	// CV is the number of folds. Default 5.
	CV int
}

// Resample implements Sampler.
func (t InstanceHardnessThreshold) Resample(x [][]float64, y []int, rng *rand.Rand) ([][]float64, []int, error) {
	if err := checkInput(x, y); err != nil {
		return nil, nil, err
	}
	labels, rows := classRows(y)
	if len(labels) < 2 {
		return x, y, nil
	}
	est := t.Estimator
	if est == nil {
		est = learn.ForestTemplate{NEstimators: 100}
	}
	cv := t.CV
	if cv < 2 {
		cv = 5
	}

	proba, err := crossValProba(x, y, labels, rows, est, cv, rng)
	if err != nil {
		return nil, nil, err
	}

	minN, _ := extremes(labels, rows)
	keep := make([]int, 0, len(x))
	for _, l := range labels {
		members := rows[l]
		if len(members) == minN {
			keep = append(keep, members...)
			continue
		}
		p := make([]float64, len(members))
		for i, r := range members {
			p[i] = proba[r]
		}
		sorted := append([]float64(nil), p...)
		sort.Float64s(sorted)
		q := 1 - float64(minN)/float64(len(members))
		threshold := stat.Quantile(q, stat.LinInterp, sorted, nil)
		for i, r := range members {
			if p[i] >= threshold {
				keep = append(keep, r)
			}
		}
	}
	ox, oy := subset(x, y, keep)
	return ox, oy, nil
}

// crossValProba returns, for every sample, the probability of its own label
// predicted by a model that never saw it.
func crossValProba(x [][]float64, y []int, labels []int, rows map[int][]int, est learn.Template, cv int, rng *rand.Rand) ([]float64, error) {
	fold := make([]int, len(x))
	for _, l := range labels {
		members := append([]int(nil), rows[l]...)
		rng.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
		for i, r := range members {
			fold[r] = i % cv
		}
	}
	nClasses := labels[len(labels)-1] + 1
	proba := make([]float64, len(x))
	for f := 0; f < cv; f++ {
		var tx [][]float64
		var ty []int
		var test []int
		for i := range x {
			if fold[i] == f {
				test = append(test, i)
			} else {
				tx = append(tx, x[i])
				ty = append(ty, y[i])
			}
		}
		if len(test) == 0 || len(tx) == 0 {
			continue
		}
		c, err := est.Fit(tx, ty, nil, learn.NewRand(rng.Uint64()))
		if err != nil {
			return nil, fmt.Errorf("instance hardness fold %d: %w", f, err)
		}
		pc, ok := c.(learn.ProbabilisticClassifier)
		if !ok {
			return nil, fmt.Errorf("instance hardness estimator %s: %w", est.Name(), learn.ErrNotProbabilistic)
		}
		for _, i := range test {
			proba[i] = learn.ProbaFull(pc, x[i], nClasses)[y[i]]
		}
	}
	return proba, nil
}
