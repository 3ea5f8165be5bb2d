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
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/AleutianAI/EnsembleBench/services/bench/learn"
)

// =============================================================================
// Self-Generating Hyperplanes
// =============================================================================

// SGH generates hyperplanes until every training sample is recognised by
// at least one member.
//
// Description:
//
//	Each round takes the samples no member recognises yet and computes
//	one centroid per class among them. The most populous class is the
//	reference; a hyperplane bisecting the segment between the reference
//	centroid and every other class centroid becomes a new member. When
//	just one class is left unrecognised its centroid is cut against the
//	centroid of the most frequent other training class. Recognised samples
//	leave the working set. Generation stops when the working set is empty,
//	no sample was recognised in a round, or poolSize members exist.
//
//	Members are Hyperplane values. They have decision scores but no
//	probability estimates, so probability-based selectors need them
//	calibrated first. The base template is not used.
type SGH struct{}

// Fit implements Strategy.
func (SGH) Fit(ctx context.Context, x [][]float64, y []int, _ learn.Template, poolSize int, _ *rand.Rand) ([]learn.Classifier, error) {
	if err := checkInput(x, y, poolSize); err != nil {
		return nil, err
	}
	dim := len(x[0])
	remaining := make([]int, len(x))
	for i := range remaining {
		remaining[i] = i
	}

	var pool []learn.Classifier
	for len(remaining) > 0 && len(pool) < poolSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		centroids, counts := classCentroids(x, y, remaining, dim)
		labels := make([]int, 0, len(centroids))
		for label := range centroids {
			labels = append(labels, label)
		}
		sort.Ints(labels)
		ref := labels[0]
		for _, label := range labels[1:] {
			if counts[label] > counts[ref] {
				ref = label
			}
		}

		var added []*Hyperplane
		if len(labels) == 1 {
			rival, rc, ok := rivalCentroid(x, y, ref, dim)
			if !ok {
				// Single-class training set: a constant member recognises all.
				pool = append(pool, &Hyperplane{pos: ref, neg: ref, w: make([]float64, dim)})
				break
			}
			added = append(added, newHyperplane(ref, centroids[ref], rival, rc))
		} else {
			for _, label := range labels {
				if label == ref || len(pool)+len(added) >= poolSize {
					continue
				}
				added = append(added, newHyperplane(ref, centroids[ref], label, centroids[label]))
			}
		}

		next := remaining[:0:0]
		for _, i := range remaining {
			hit := false
			for _, h := range added {
				if h.Predict(x[i]) == y[i] {
					hit = true
					break
				}
			}
			if !hit {
				next = append(next, i)
			}
		}
		for _, h := range added {
			pool = append(pool, h)
		}
		if len(next) == len(remaining) {
			break
		}
		remaining = next
	}
	return pool, nil
}

func classCentroids(x [][]float64, y []int, rows []int, dim int) (map[int][]float64, map[int]int) {
	sums := make(map[int][]float64)
	counts := make(map[int]int)
	for _, i := range rows {
		s, ok := sums[y[i]]
		if !ok {
			s = make([]float64, dim)
			sums[y[i]] = s
		}
		floats.Add(s, x[i])
		counts[y[i]]++
	}
	for label, s := range sums {
		floats.Scale(1/float64(counts[label]), s)
	}
	return sums, counts
}

// rivalCentroid returns the most frequent training label other than label,
// with the centroid of its samples. ok is false when no other label exists.
func rivalCentroid(x [][]float64, y []int, label, dim int) (int, []float64, bool) {
	all := make([]int, len(x))
	for i := range all {
		all[i] = i
	}
	centroids, counts := classCentroids(x, y, all, dim)
	rival, best := -1, 0
	for l, n := range counts {
		if l == label {
			continue
		}
		if n > best || (n == best && l < rival) {
			rival, best = l, n
		}
	}
	if rival < 0 {
		return 0, nil, false
	}
	return rival, centroids[rival], true
}

// Hyperplane is a two-sided linear cut. Points strictly on the positive side
// are assigned pos, all others neg. When pos equals neg the member is
// constant.
type Hyperplane struct {
	pos, neg int
	w        []float64
	b        float64
}

func newHyperplane(pos int, cp []float64, neg int, cn []float64) *Hyperplane {
	w := make([]float64, len(cp))
	floats.SubTo(w, cp, cn)
	mid := make([]float64, len(cp))
	floats.AddTo(mid, cp, cn)
	floats.Scale(0.5, mid)
	return &Hyperplane{pos: pos, neg: neg, w: w, b: -floats.Dot(w, mid)}
}

// Decision returns the signed distance-like value w·x+b.
func (h *Hyperplane) Decision(x []float64) float64 {
	return floats.Dot(h.w, x) + h.b
}

// Classes implements learn.Classifier.
func (h *Hyperplane) Classes() []int {
	if h.neg == h.pos {
		return []int{h.pos}
	}
	if h.pos < h.neg {
		return []int{h.pos, h.neg}
	}
	return []int{h.neg, h.pos}
}

// Scores implements learn.Classifier.
func (h *Hyperplane) Scores(x []float64) []float64 {
	if h.neg == h.pos {
		return []float64{h.Decision(x)}
	}
	d := h.Decision(x)
	if h.pos < h.neg {
		return []float64{d, -d}
	}
	return []float64{-d, d}
}

// Predict implements learn.Classifier.
func (h *Hyperplane) Predict(x []float64) int {
	if h.neg == h.pos || h.Decision(x) > 0 {
		return h.pos
	}
	return h.neg
}

var _ learn.Classifier = (*Hyperplane)(nil)
