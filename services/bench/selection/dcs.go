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

import "github.com/AleutianAI/EnsembleBench/services/bench/learn"

// =============================================================================
// Dynamic Classifier Selection
// =============================================================================

// single wraps a competence function into a chooser that picks the single
// most competent member.
func single(competence func(region []int, preds []int) []float64, d *dsel) chooser {
	return func(q []float64, preds []int) ([]int, []float64) {
		return []int{best(competence(d.region(q), preds))}, nil
	}
}

// OLA (Overall Local Accuracy) picks the member with the highest accuracy
// over the region of competence.
type OLA struct {
	K int
}

// Fit implements Strategy.
func (s OLA) Fit(x [][]float64, y []int, pool []learn.Classifier) (Fitted, error) {
	d, err := newDSEL(x, y, pool, s.K)
	if err != nil {
		return nil, err
	}
	return &dynamic{d: d, choose: single(func(region, _ []int) []float64 {
		return d.localAccuracy(region)
	}, d)}, nil
}

// LCA (Local Class Accuracy) picks the member most accurate on the region
// samples whose true label equals the member's prediction for the query.
type LCA struct {
	K int
}

// Fit implements Strategy.
func (s LCA) Fit(x [][]float64, y []int, pool []learn.Classifier) (Fitted, error) {
	d, err := newDSEL(x, y, pool, s.K)
	if err != nil {
		return nil, err
	}
	return &dynamic{d: d, choose: single(func(region, preds []int) []float64 {
		comp := make([]float64, len(d.pool))
		for m, p := range preds {
			n, hit := 0, 0
			for _, r := range region {
				if d.y[r] != p {
					continue
				}
				n++
				if d.hits[r][m] {
					hit++
				}
			}
			if n > 0 {
				comp[m] = float64(hit) / float64(n)
			}
		}
		return comp
	}, d)}, nil
}

// MCB (Multiple Classifier Behaviour) filters the region down to samples
// whose output profile is similar to the query's, then picks the most
// locally accurate member.
type MCB struct {
	K int

	// Similarity is the minimum share of members that must agree between
	// the query's and a neighbour's output profile. Default 0.7.
	Similarity float64
}

// Fit implements Strategy.
func (s MCB) Fit(x [][]float64, y []int, pool []learn.Classifier) (Fitted, error) {
	d, err := newDSEL(x, y, pool, s.K)
	if err != nil {
		return nil, err
	}
	threshold := s.Similarity
	if threshold <= 0 {
		threshold = 0.7
	}
	return &dynamic{d: d, choose: single(func(region, preds []int) []float64 {
		var filtered []int
		for _, r := range region {
			same := 0
			for m, p := range preds {
				if d.preds[r][m] == p {
					same++
				}
			}
			if float64(same)/float64(len(preds)) > threshold {
				filtered = append(filtered, r)
			}
		}
		if len(filtered) == 0 {
			filtered = region
		}
		return d.localAccuracy(filtered)
	}, d)}, nil
}

// Rank (modified classifier rank) picks the member that correctly
// classifies the longest run of nearest neighbours, nearest first.
type Rank struct {
	K int
}

// Fit implements Strategy.
func (s Rank) Fit(x [][]float64, y []int, pool []learn.Classifier) (Fitted, error) {
	d, err := newDSEL(x, y, pool, s.K)
	if err != nil {
		return nil, err
	}
	return &dynamic{d: d, choose: single(func(region, _ []int) []float64 {
		rank := make([]float64, len(d.pool))
		for m := range d.pool {
			for _, r := range region {
				if !d.hits[r][m] {
					break
				}
				rank[m]++
			}
		}
		return rank
	}, d)}, nil
}
