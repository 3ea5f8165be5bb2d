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
	"github.com/AleutianAI/EnsembleBench/services/bench/learn"
)

// =============================================================================
// Dynamic Ensemble Selection
// =============================================================================

// KNORAU (k-nearest oracles union) gives every member one vote per region
// sample it classifies correctly.
type KNORAU struct {
	K int
}

// Fit implements Strategy.
func (s KNORAU) Fit(x [][]float64, y []int, pool []learn.Classifier) (Fitted, error) {
	d, err := newDSEL(x, y, pool, s.K)
	if err != nil {
		return nil, err
	}
	return &dynamic{d: d, choose: func(q []float64, _ []int) ([]int, []float64) {
		return unionVotes(d, d.region(q))
	}}, nil
}

// unionVotes returns the members with at least one hit in rows, weighted by
// their hit count.
func unionVotes(d *dsel, rows []int) ([]int, []float64) {
	var members []int
	var weights []float64
	for m := range d.pool {
		hits := 0
		for _, r := range rows {
			if d.hits[r][m] {
				hits++
			}
		}
		if hits > 0 {
			members = append(members, m)
			weights = append(weights, float64(hits))
		}
	}
	return members, weights
}

// KNORAE (k-nearest oracles eliminate) selects the members that classify
// the whole region correctly, shrinking the region until some member does.
// If none does even for the nearest neighbour, the members with the most
// hits over the full region are selected.
type KNORAE struct {
	K int
}

// Fit implements Strategy.
func (s KNORAE) Fit(x [][]float64, y []int, pool []learn.Classifier) (Fitted, error) {
	d, err := newDSEL(x, y, pool, s.K)
	if err != nil {
		return nil, err
	}
	return &dynamic{d: d, choose: func(q []float64, _ []int) ([]int, []float64) {
		region := d.region(q)
		for k := len(region); k > 0; k-- {
			var oracles []int
			for m := range d.pool {
				all := true
				for _, r := range region[:k] {
					if !d.hits[r][m] {
						all = false
						break
					}
				}
				if all {
					oracles = append(oracles, m)
				}
			}
			if len(oracles) > 0 {
				return oracles, nil
			}
		}
		acc := d.localAccuracy(region)
		var bestMembers []int
		most := acc[best(acc)]
		for m, a := range acc {
			if a == most {
				bestMembers = append(bestMembers, m)
			}
		}
		return bestMembers, nil
	}}, nil
}

// DESKNN ranks members by local accuracy, keeps the top PctAccuracy share,
// then keeps the PctDiversity share of those that are most diverse by
// double fault.
type DESKNN struct {
	K int

	// PctAccuracy is the share of the pool kept by accuracy. Default 0.5.
	PctAccuracy float64

	// PctDiversity is the share of the pool kept by diversity. Default 0.3.
	PctDiversity float64
}

// Fit implements Strategy.
func (s DESKNN) Fit(x [][]float64, y []int, pool []learn.Classifier) (Fitted, error) {
	d, err := newDSEL(x, y, pool, s.K)
	if err != nil {
		return nil, err
	}
	pa, pd := s.PctAccuracy, s.PctDiversity
	if pa <= 0 {
		pa = 0.5
	}
	if pd <= 0 {
		pd = 0.3
	}
	n := share(pa, len(pool))
	j := share(pd, len(pool))
	if j > n {
		j = n
	}
	return &dynamic{d: d, choose: func(q []float64, _ []int) ([]int, []float64) {
		region := d.region(q)
		return accuracyThenDiversity(d, region, allMembers(len(d.pool)), n, j), nil
	}}, nil
}

func accuracyThenDiversity(d *dsel, rows, candidates []int, n, j int) []int {
	acc := d.localAccuracy(rows)
	accurate := top(acc, candidates, n)
	div := d.negDoubleFault(rows, accurate)
	return top(div, accurate, j)
}

// DESP (DES performance) selects every member whose local accuracy beats
// a random classifier, 1/number of classes.
type DESP struct {
	K int
}

// Fit implements Strategy.
func (s DESP) Fit(x [][]float64, y []int, pool []learn.Classifier) (Fitted, error) {
	d, err := newDSEL(x, y, pool, s.K)
	if err != nil {
		return nil, err
	}
	random := 1 / float64(max(d.nClasses, 1))
	return &dynamic{d: d, choose: func(q []float64, _ []int) ([]int, []float64) {
		acc := d.localAccuracy(d.region(q))
		var members []int
		for m, a := range acc {
			if a-random > 0 {
				members = append(members, m)
			}
		}
		return members, nil
	}}, nil
}

// DESMI (DES for multi-class imbalance) weights each region sample by the
// rarity of its class, scores members by weighted hits and keeps the top
// PctAccuracy share.
type DESMI struct {
	K int

	// PctAccuracy is the share of the pool kept. Default 0.4.
	PctAccuracy float64
}

// Fit implements Strategy.
func (s DESMI) Fit(x [][]float64, y []int, pool []learn.Classifier) (Fitted, error) {
	d, err := newDSEL(x, y, pool, s.K)
	if err != nil {
		return nil, err
	}
	pa := s.PctAccuracy
	if pa <= 0 {
		pa = 0.4
	}
	n := share(pa, len(pool))

	counts := make([]float64, d.nClasses)
	for _, v := range y {
		counts[v]++
	}
	minCount := 0.0
	for _, c := range counts {
		if c > 0 && (minCount == 0 || c < minCount) {
			minCount = c
		}
	}
	weight := make([]float64, d.nClasses)
	for c, cnt := range counts {
		if cnt > 0 {
			weight[c] = minCount / cnt
		}
	}
	return &dynamic{d: d, choose: func(q []float64, _ []int) ([]int, []float64) {
		comp := make([]float64, len(d.pool))
		for _, r := range d.region(q) {
			w := weight[d.y[r]]
			for m, hit := range d.hits[r] {
				if hit {
					comp[m] += w
				}
			}
		}
		return top(comp, allMembers(len(d.pool)), n), nil
	}}, nil
}

// DESClustering partitions the selection data with k-means and
// pre-selects, per cluster, the most accurate then most diverse members.
// A query is answered by the ensemble of its nearest cluster.
type DESClustering struct {
	// Clusters is the number of k-means clusters. Default 5.
	Clusters int

	// PctAccuracy is the share of the pool kept by accuracy. Default 0.35.
	PctAccuracy float64

	// PctDiversity is the share of the pool kept by diversity. Default 0.2.
	PctDiversity float64

	// Seed drives the k-means initialisation.
	Seed uint64
}

// Fit implements Strategy.
func (s DESClustering) Fit(x [][]float64, y []int, pool []learn.Classifier) (Fitted, error) {
	d, err := newDSEL(x, y, pool, 0)
	if err != nil {
		return nil, err
	}
	k := s.Clusters
	if k <= 0 {
		k = 5
	}
	pa, pd := s.PctAccuracy, s.PctDiversity
	if pa <= 0 {
		pa = 0.35
	}
	if pd <= 0 {
		pd = 0.2
	}
	n := share(pa, len(pool))
	j := share(pd, len(pool))
	if j > n {
		j = n
	}

	km := learn.FitKMeans(x, k, 300, learn.NewRand(s.Seed))
	members := make([][]int, len(km.Centroids))
	rows := make([][]int, len(km.Centroids))
	for i, c := range km.Assignments {
		rows[c] = append(rows[c], i)
	}
	for c := range members {
		members[c] = accuracyThenDiversity(d, rows[c], allMembers(len(pool)), n, j)
	}
	return &dynamic{d: d, choose: func(q []float64, _ []int) ([]int, []float64) {
		return members[km.Nearest(q)], nil
	}}, nil
}
