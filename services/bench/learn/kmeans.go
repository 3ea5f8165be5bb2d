// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package learn

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// KMeans is a fitted k-means partition.
type KMeans struct {
	Centroids   [][]float64
	Assignments []int
}

// FitKMeans clusters data into k groups with Lloyd's algorithm.
//
// Description:
//
//	Centroids start from a Forgy initialisation drawn from rng. Iteration
//	stops when no assignment changes or after maxIter rounds. An emptied
//	cluster keeps its previous centroid. k is clamped to len(data).
//
// Outputs:
//   - *KMeans: Nil when data is empty or k < 1.
func FitKMeans(data [][]float64, k, maxIter int, rng *rand.Rand) *KMeans {
	if len(data) == 0 || k < 1 {
		return nil
	}
	if k > len(data) {
		k = len(data)
	}
	if maxIter <= 0 {
		maxIter = 300
	}
	dim := len(data[0])
	km := &KMeans{
		Centroids:   make([][]float64, k),
		Assignments: make([]int, len(data)),
	}
	perm := rng.Perm(len(data))
	for c := 0; c < k; c++ {
		km.Centroids[c] = append([]float64(nil), data[perm[c]]...)
	}
	for i := range km.Assignments {
		km.Assignments[i] = -1
	}

	sums := make([][]float64, k)
	for c := range sums {
		sums[c] = make([]float64, dim)
	}
	counts := make([]int, k)
	for iter := 0; iter < maxIter; iter++ {
		changes := 0
		for i, p := range data {
			best := km.Nearest(p)
			if km.Assignments[i] != best {
				km.Assignments[i] = best
				changes++
			}
		}
		if changes == 0 {
			break
		}
		for c := range sums {
			for j := range sums[c] {
				sums[c][j] = 0
			}
			counts[c] = 0
		}
		for i, p := range data {
			c := km.Assignments[i]
			floats.Add(sums[c], p)
			counts[c]++
		}
		for c := range km.Centroids {
			if counts[c] == 0 {
				continue
			}
			floats.ScaleTo(km.Centroids[c], 1/float64(counts[c]), sums[c])
		}
	}
	return km
}

// Nearest returns the index of the centroid closest to x.
func (km *KMeans) Nearest(x []float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range km.Centroids {
		if d := floats.Distance(x, centroid, 2); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
