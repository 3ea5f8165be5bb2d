// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package selection implements dynamic classifier and ensemble selection.
//
// A selection strategy is fit on a trained pool plus a dynamic selection
// dataset (DSEL, here the pool's own training set). At prediction time it
// estimates each member's competence in the region of the query and either
// picks the single most competent member (DCS) or combines a competent
// subset (DES). When every member agrees on a query their shared label is
// returned without estimating competence. When a strategy selects nobody
// the whole pool votes.
//
// Votes are plain majority (or competence-weighted for KNORA-U and KNOP)
// with ties broken toward the smallest label.
//
// The Oracle is not a deployable selector: it reads the true test labels.
// The RandomForest baseline ignores the pool and trains its own forest.
package selection

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/AleutianAI/EnsembleBench/services/bench/learn"
)

// DefaultK is the region of competence size.
const DefaultK = 7

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrEmptyPool is returned when Fit receives no members.
	ErrEmptyPool = errors.New("empty classifier pool")

	// ErrEmptyDSEL is returned when Fit receives no selection data.
	ErrEmptyDSEL = errors.New("empty dynamic selection dataset")

	// ErrNeedsProbabilities is returned when a probability-based selector
	// gets a member that cannot estimate probabilities.
	ErrNeedsProbabilities = errors.New("selector requires probabilistic pool members")
)

// -----------------------------------------------------------------------------
// Contracts
// -----------------------------------------------------------------------------

// Strategy is a selection method before fitting.
type Strategy interface {
	// Fit prepares the selector for one fold.
	//
	// Inputs:
	//   - x, y: The dynamic selection dataset.
	//   - pool: Trained members. Not modified.
	//
	// Outputs:
	//   - Fitted: The fitted selector.
	//   - error: ErrEmptyPool, ErrEmptyDSEL, ErrNeedsProbabilities.
	Fit(x [][]float64, y []int, pool []learn.Classifier) (Fitted, error)
}

// Fitted predicts labels for a test matrix.
type Fitted interface {
	// Predict returns one label per row of x, in row order.
	Predict(x [][]float64) []int
}

// OracleFitted additionally predicts with access to the true labels.
type OracleFitted interface {
	Fitted

	// PredictWithLabels returns one label per row of x, in row order.
	PredictWithLabels(x [][]float64, y []int) []int
}

// Baseline trains a fixed model that ignores the pool.
type Baseline interface {
	// FitBaseline trains on x, y with a per-fold hyperparameter.
	FitBaseline(x [][]float64, y []int, param int, rng *rand.Rand) (Fitted, error)
}

// -----------------------------------------------------------------------------
// Dynamic selection dataset
// -----------------------------------------------------------------------------

// dsel caches everything the selectors need about the selection data.
type dsel struct {
	x        [][]float64
	y        []int
	pool     []learn.Classifier
	nn       *learn.Neighbors
	k        int
	nClasses int

	// preds[s][m] is member m's label for DSEL sample s.
	preds [][]int
	// hits[s][m] reports whether member m is correct on DSEL sample s.
	hits [][]bool
}

func newDSEL(x [][]float64, y []int, pool []learn.Classifier, k int) (*dsel, error) {
	if len(pool) == 0 {
		return nil, ErrEmptyPool
	}
	if len(x) == 0 {
		return nil, ErrEmptyDSEL
	}
	if len(x) != len(y) {
		return nil, learn.ErrLengthMismatch
	}
	if k <= 0 {
		k = DefaultK
	}
	d := &dsel{
		x:        x,
		y:        y,
		pool:     pool,
		nn:       learn.NewNeighbors(x),
		k:        k,
		nClasses: learn.NumClasses(y),
		preds:    make([][]int, len(x)),
		hits:     make([][]bool, len(x)),
	}
	for s, row := range x {
		d.preds[s] = d.memberPreds(row)
		d.hits[s] = make([]bool, len(pool))
		for m, p := range d.preds[s] {
			d.hits[s][m] = p == y[s]
			if p+1 > d.nClasses {
				d.nClasses = p + 1
			}
		}
	}
	return d, nil
}

func (d *dsel) memberPreds(q []float64) []int {
	out := make([]int, len(d.pool))
	for m, c := range d.pool {
		out[m] = c.Predict(q)
	}
	return out
}

// region returns the k nearest DSEL samples of q.
func (d *dsel) region(q []float64) []int {
	return d.nn.Query(q, d.k)
}

// localAccuracy returns each member's hit count over rows.
func (d *dsel) localAccuracy(rows []int) []float64 {
	acc := make([]float64, len(d.pool))
	for _, s := range rows {
		for m, hit := range d.hits[s] {
			if hit {
				acc[m]++
			}
		}
	}
	if len(rows) > 0 {
		for m := range acc {
			acc[m] /= float64(len(rows))
		}
	}
	return acc
}

// negDoubleFault returns, per member, minus the summed double-fault rate
// against every other member over rows. Larger means more diverse.
func (d *dsel) negDoubleFault(rows []int, members []int) []float64 {
	div := make([]float64, len(d.pool))
	if len(rows) == 0 {
		return div
	}
	for _, i := range members {
		for _, j := range members {
			if i == j {
				continue
			}
			both := 0
			for _, s := range rows {
				if !d.hits[s][i] && !d.hits[s][j] {
					both++
				}
			}
			div[i] -= float64(both) / float64(len(rows))
		}
	}
	return div
}

func probabilistic(pool []learn.Classifier) ([]learn.ProbabilisticClassifier, error) {
	out := make([]learn.ProbabilisticClassifier, len(pool))
	for m, c := range pool {
		pc, ok := c.(learn.ProbabilisticClassifier)
		if !ok {
			return nil, fmt.Errorf("%w: member %d is %T", ErrNeedsProbabilities, m, c)
		}
		out[m] = pc
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Prediction
// -----------------------------------------------------------------------------

// chooser selects members for one query. A nil weights slice means equal
// weights.
type chooser func(q []float64, preds []int) (members []int, weights []float64)

// dynamic is the Fitted value shared by every DCS and DES method.
type dynamic struct {
	d      *dsel
	choose chooser
}

func (f *dynamic) Predict(x [][]float64) []int {
	out := make([]int, len(x))
	for i, q := range x {
		preds := f.d.memberPreds(q)
		if label, ok := unanimous(preds); ok {
			out[i] = label
			continue
		}
		members, weights := f.choose(q, preds)
		if len(members) == 0 {
			members, weights = allMembers(len(preds)), nil
		}
		out[i] = vote(preds, members, weights)
	}
	return out
}

func unanimous(preds []int) (int, bool) {
	for _, p := range preds[1:] {
		if p != preds[0] {
			return 0, false
		}
	}
	return preds[0], true
}

func allMembers(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// vote returns the label with the largest total weight among members.
// Ties go to the smallest label.
func vote(preds []int, members []int, weights []float64) int {
	tally := make(map[int]float64)
	for i, m := range members {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		tally[preds[m]] += w
	}
	best, bestW := 0, -1.0
	for label, w := range tally {
		if w > bestW || (w == bestW && label < best) {
			best, bestW = label, w
		}
	}
	return best
}

// best returns the index of the largest score, ties to the lowest index.
func best(scores []float64) int {
	b := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[b] {
			b = i
		}
	}
	return b
}

// top returns the n members with the largest scores among candidates,
// ties to the lowest index.
func top(scores []float64, candidates []int, n int) []int {
	c := append([]int(nil), candidates...)
	sort.SliceStable(c, func(a, b int) bool {
		if scores[c[a]] != scores[c[b]] {
			return scores[c[a]] > scores[c[b]]
		}
		return c[a] < c[b]
	})
	if n > len(c) {
		n = len(c)
	}
	if n < 1 {
		n = 1
	}
	return c[:n]
}

// share returns int(pct*n) clamped to [1, n].
func share(pct float64, n int) int {
	v := int(pct * float64(n))
	if v < 1 {
		v = 1
	}
	if v > n {
		v = n
	}
	return v
}
