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
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Neighbors is a brute-force Euclidean nearest-neighbour index.
//
// Thread Safety: Safe for concurrent queries. The index never copies or
// mutates the points it was built from.
type Neighbors struct {
	points [][]float64
}

// NewNeighbors indexes points.
func NewNeighbors(points [][]float64) *Neighbors {
	return &Neighbors{points: points}
}

// Len returns the number of indexed points.
func (n *Neighbors) Len() int { return len(n.points) }

// Point returns the i-th indexed point.
func (n *Neighbors) Point(i int) []float64 { return n.points[i] }

// Query returns the indices of the k points closest to x, nearest first.
// Equal distances are ordered by index. k is clamped to Len().
func (n *Neighbors) Query(x []float64, k int) []int {
	idx, _ := n.QueryDist(x, k)
	return idx
}

// QueryDist is Query that also returns the distances.
func (n *Neighbors) QueryDist(x []float64, k int) ([]int, []float64) {
	return n.query(x, k, -1)
}

// QueryExcluding is Query with point skip left out, used for leave-one-out
// neighbourhoods over the indexed set itself.
func (n *Neighbors) QueryExcluding(x []float64, k, skip int) []int {
	idx, _ := n.query(x, k, skip)
	return idx
}

func (n *Neighbors) query(x []float64, k, skip int) ([]int, []float64) {
	type cand struct {
		i int
		d float64
	}
	cands := make([]cand, 0, len(n.points))
	for i, p := range n.points {
		if i == skip {
			continue
		}
		cands = append(cands, cand{i: i, d: floats.Distance(x, p, 2)})
	}
	sort.Slice(cands, func(a, b int) bool {
		if cands[a].d != cands[b].d {
			return cands[a].d < cands[b].d
		}
		return cands[a].i < cands[b].i
	})
	if k > len(cands) {
		k = len(cands)
	}
	if k < 0 {
		k = 0
	}
	idx := make([]int, k)
	dist := make([]float64, k)
	for j := 0; j < k; j++ {
		idx[j], dist[j] = cands[j].i, cands[j].d
	}
	return idx, dist
}
