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
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/AleutianAI/EnsembleBench/services/bench/learn"
)

// =============================================================================
// Probability-based selectors
// =============================================================================

// profiles holds the output profile of every selection sample: the
// concatenated class probabilities of all members.
type profiles struct {
	members  []learn.ProbabilisticClassifier
	nClasses int
	rows     [][]float64
	nn       *learn.Neighbors
}

func newProfiles(d *dsel) (*profiles, error) {
	members, err := probabilistic(d.pool)
	if err != nil {
		return nil, err
	}
	p := &profiles{members: members, nClasses: d.nClasses, rows: make([][]float64, len(d.x))}
	for s, row := range d.x {
		p.rows[s] = p.of(row)
	}
	p.nn = learn.NewNeighbors(p.rows)
	return p, nil
}

func (p *profiles) of(q []float64) []float64 {
	out := make([]float64, 0, len(p.members)*p.nClasses)
	for _, m := range p.members {
		out = append(out, learn.ProbaFull(m, q, p.nClasses)...)
	}
	return out
}

// KNOP (k-nearest output profiles) finds the region of competence in the
// space of output profiles and then votes like KNORA-U.
type KNOP struct {
	K int
}

// Fit implements Strategy. Every member must be a
// learn.ProbabilisticClassifier.
func (s KNOP) Fit(x [][]float64, y []int, pool []learn.Classifier) (Fitted, error) {
	d, err := newDSEL(x, y, pool, s.K)
	if err != nil {
		return nil, err
	}
	op, err := newProfiles(d)
	if err != nil {
		return nil, err
	}
	return &dynamic{d: d, choose: func(q []float64, _ []int) ([]int, []float64) {
		return unionVotes(d, op.nn.Query(op.of(q), d.k))
	}}, nil
}

// METADES learns competence with a meta-classifier.
//
// Description:
//
//	For every (sample, member) pair five groups of meta-features are
//	extracted: hits over the K feature-space neighbours, the member's
//	probability of each neighbour's true label, its local accuracy, hits
//	over the Kp output-profile neighbours, and the member's confidence
//	(maximum class probability) on the sample itself. A Gaussian naive
//	Bayes meta-classifier is trained on the selection set, with the target
//	being whether the member classified the sample correctly, using
//	leave-one-out neighbourhoods. At prediction time every member whose
//	estimated competence exceeds Threshold is selected.
type METADES struct {
	K int

	// Kp is the output-profile neighbourhood size. Default 5.
	Kp int

	// Threshold is the minimum competence for selection. Default 0.5.
	Threshold float64
}

type metaDES struct {
	d         *dsel
	op        *profiles
	kp        int
	truthProb [][]float64 // [sample][member] probability of the true label
	meta      learn.ProbabilisticClassifier
}

// Fit implements Strategy. Every member must be a
// learn.ProbabilisticClassifier.
func (s METADES) Fit(x [][]float64, y []int, pool []learn.Classifier) (Fitted, error) {
	d, err := newDSEL(x, y, pool, s.K)
	if err != nil {
		return nil, err
	}
	op, err := newProfiles(d)
	if err != nil {
		return nil, err
	}
	kp := s.Kp
	if kp <= 0 {
		kp = 5
	}
	threshold := s.Threshold
	if threshold <= 0 {
		threshold = 0.5
	}

	md := &metaDES{d: d, op: op, kp: kp, truthProb: make([][]float64, len(x))}
	for i, row := range x {
		md.truthProb[i] = make([]float64, len(pool))
		for m, c := range op.members {
			md.truthProb[i][m] = learn.ProbaFull(c, row, op.nClasses)[y[i]]
		}
	}

	var mx [][]float64
	var my []int
	for i, row := range x {
		region := d.nn.QueryExcluding(row, d.k, i)
		opRegion := op.nn.QueryExcluding(op.rows[i], kp, i)
		for m := range pool {
			mx = append(mx, md.features(m, row, region, opRegion))
			if d.hits[i][m] {
				my = append(my, 1)
			} else {
				my = append(my, 0)
			}
		}
	}
	nb, err := learn.GaussianNBTemplate{}.Fit(mx, my, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("meta-classifier: %w", err)
	}
	md.meta = nb.(learn.ProbabilisticClassifier)

	return &dynamic{d: d, choose: func(q []float64, _ []int) ([]int, []float64) {
		region := d.region(q)
		opRegion := op.nn.Query(op.of(q), kp)
		var members []int
		for m := range pool {
			f := md.features(m, q, region, opRegion)
			if learn.ProbaFull(md.meta, f, 2)[1] > threshold {
				members = append(members, m)
			}
		}
		return members, nil
	}}, nil
}

// features builds the meta-feature vector of member m for query q. Short
// neighbourhoods are zero padded.
func (md *metaDES) features(m int, q []float64, region, opRegion []int) []float64 {
	k := md.d.k
	f := make([]float64, 2*k+1+md.kp+1)
	for j, r := range region {
		if md.d.hits[r][m] {
			f[j] = 1
		}
		f[k+j] = md.truthProb[r][m]
	}
	if len(region) > 0 {
		f[2*k] = floats.Sum(f[:k]) / float64(len(region))
	}
	for j, r := range opRegion {
		if md.d.hits[r][m] {
			f[2*k+1+j] = 1
		}
	}
	f[len(f)-1] = floats.Max(md.op.members[m].PredictProba(q))
	return f
}
