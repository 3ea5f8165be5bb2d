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
	"sort"
)

// =============================================================================
// Decision Tree (CART, Gini)
// =============================================================================

// TreeTemplate trains CART classification trees with Gini impurity.
type TreeTemplate struct {
	// MaxDepth limits tree depth. Zero means unlimited.
	MaxDepth int

	// MinSamplesSplit is the smallest node that may be split. Default 2.
	MinSamplesSplit int

	// MaxFeatures is the number of features tried per split. Zero means all.
	MaxFeatures int
}

// Name implements Template.
func (t TreeTemplate) Name() string { return "decision_tree" }

type treeNode struct {
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
	// dist is the class distribution at a leaf, aligned with Tree.classes.
	dist []float64
}

// Tree is a trained decision tree.
type Tree struct {
	classes []int
	root    *treeNode
}

type treeBuilder struct {
	t       TreeTemplate
	x       [][]float64
	y       []int // dense class positions
	w       []float64
	nClass  int
	rng     *rand.Rand
	feature []int
}

// Fit implements Template.
func (t TreeTemplate) Fit(x [][]float64, y []int, w []float64, rng *rand.Rand) (Classifier, error) {
	if err := checkFitInput(x, y, w); err != nil {
		return nil, err
	}
	if t.MinSamplesSplit < 2 {
		t.MinSamplesSplit = 2
	}
	classes := UniqueLabels(y)
	idx := labelIndex(classes)
	pos := make([]int, len(y))
	for i, v := range y {
		pos[i] = idx[v]
	}
	if w == nil {
		w = make([]float64, len(x))
		for i := range w {
			w[i] = 1
		}
	}
	dim := len(x[0])
	b := &treeBuilder{
		t:       t,
		x:       x,
		y:       pos,
		w:       w,
		nClass:  len(classes),
		rng:     rng,
		feature: make([]int, dim),
	}
	for i := range b.feature {
		b.feature[i] = i
	}
	rows := make([]int, len(x))
	for i := range rows {
		rows[i] = i
	}
	return &Tree{classes: classes, root: b.build(rows, 0)}, nil
}

func (b *treeBuilder) distribution(rows []int) []float64 {
	dist := make([]float64, b.nClass)
	for _, r := range rows {
		dist[b.y[r]] += b.w[r]
	}
	return dist
}

func gini(dist []float64) float64 {
	total := 0.0
	for _, v := range dist {
		total += v
	}
	if total == 0 {
		return 0
	}
	g := 1.0
	for _, v := range dist {
		p := v / total
		g -= p * p
	}
	return g
}

func normalize(dist []float64) []float64 {
	out := make([]float64, len(dist))
	total := 0.0
	for _, v := range dist {
		total += v
	}
	if total == 0 {
		for i := range out {
			out[i] = 1 / float64(len(out))
		}
		return out
	}
	for i, v := range dist {
		out[i] = v / total
	}
	return out
}

func (b *treeBuilder) build(rows []int, depth int) *treeNode {
	dist := b.distribution(rows)
	leaf := &treeNode{dist: normalize(dist)}
	if len(rows) < b.t.MinSamplesSplit || gini(dist) == 0 {
		return leaf
	}
	if b.t.MaxDepth > 0 && depth >= b.t.MaxDepth {
		return leaf
	}

	features := b.feature
	if b.t.MaxFeatures > 0 && b.t.MaxFeatures < len(features) {
		perm := b.rng.Perm(len(features))[:b.t.MaxFeatures]
		features = make([]int, len(perm))
		for i, p := range perm {
			features[i] = b.feature[p]
		}
	}

	bestFeature, bestThreshold, bestScore := -1, 0.0, math.Inf(1)
	parentImpurity := gini(dist)
	sorted := make([]int, len(rows))
	for _, f := range features {
		copy(sorted, rows)
		sort.Slice(sorted, func(i, j int) bool { return b.x[sorted[i]][f] < b.x[sorted[j]][f] })
		left := make([]float64, b.nClass)
		right := append([]float64(nil), dist...)
		leftW, rightW := 0.0, 0.0
		for _, v := range dist {
			rightW += v
		}
		for i := 0; i < len(sorted)-1; i++ {
			r := sorted[i]
			left[b.y[r]] += b.w[r]
			right[b.y[r]] -= b.w[r]
			leftW += b.w[r]
			rightW -= b.w[r]
			cur, next := b.x[r][f], b.x[sorted[i+1]][f]
			if cur == next {
				continue
			}
			total := leftW + rightW
			if total == 0 {
				continue
			}
			score := (leftW*gini(left) + rightW*gini(right)) / total
			if score < bestScore {
				bestScore = score
				bestFeature = f
				bestThreshold = (cur + next) / 2
			}
		}
	}
	if bestFeature < 0 || bestScore >= parentImpurity {
		return leaf
	}

	var leftRows, rightRows []int
	for _, r := range rows {
		if b.x[r][bestFeature] <= bestThreshold {
			leftRows = append(leftRows, r)
		} else {
			rightRows = append(rightRows, r)
		}
	}
	if len(leftRows) == 0 || len(rightRows) == 0 {
		return leaf
	}
	return &treeNode{
		feature:   bestFeature,
		threshold: bestThreshold,
		left:      b.build(leftRows, depth+1),
		right:     b.build(rightRows, depth+1),
	}
}

func (t *Tree) leaf(x []float64) []float64 {
	n := t.root
	for n.dist == nil {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.dist
}

// Classes implements Classifier.
func (t *Tree) Classes() []int { return t.classes }

// PredictProba implements ProbabilisticClassifier.
func (t *Tree) PredictProba(x []float64) []float64 {
	return append([]float64(nil), t.leaf(x)...)
}

// Scores implements Classifier.
func (t *Tree) Scores(x []float64) []float64 { return t.PredictProba(x) }

// Predict implements Classifier.
func (t *Tree) Predict(x []float64) int {
	return t.classes[argmax(t.leaf(x))]
}

// =============================================================================
// Random Forest
// =============================================================================

// ForestTemplate trains bootstrap-aggregated randomized trees.
type ForestTemplate struct {
	// NEstimators is the number of trees. Default 100.
	NEstimators int

	// MaxDepth limits each tree. Zero means unlimited.
	MaxDepth int
}

// Name implements Template.
func (t ForestTemplate) Name() string { return "random_forest" }

// Forest is a trained random forest. Probabilities are the mean of the
// trees' leaf distributions.
type Forest struct {
	classes []int
	trees   []*Tree
}

// Fit implements Template.
func (t ForestTemplate) Fit(x [][]float64, y []int, w []float64, rng *rand.Rand) (Classifier, error) {
	if err := checkFitInput(x, y, w); err != nil {
		return nil, err
	}
	n := t.NEstimators
	if n <= 0 {
		n = 100
	}
	maxFeatures := int(math.Sqrt(float64(len(x[0]))))
	if maxFeatures < 1 {
		maxFeatures = 1
	}
	tree := TreeTemplate{MaxDepth: t.MaxDepth, MaxFeatures: maxFeatures}
	f := &Forest{classes: UniqueLabels(y), trees: make([]*Tree, 0, n)}
	bx := make([][]float64, len(x))
	by := make([]int, len(y))
	var bw []float64
	if w != nil {
		bw = make([]float64, len(w))
	}
	for i := 0; i < n; i++ {
		for j := range bx {
			r := rng.IntN(len(x))
			bx[j], by[j] = x[r], y[r]
			if w != nil {
				bw[j] = w[r]
			}
		}
		c, err := tree.Fit(bx, by, bw, rng)
		if err != nil {
			return nil, err
		}
		f.trees = append(f.trees, c.(*Tree))
	}
	return f, nil
}

// Classes implements Classifier.
func (f *Forest) Classes() []int { return f.classes }

// PredictProba implements ProbabilisticClassifier.
func (f *Forest) PredictProba(x []float64) []float64 {
	idx := labelIndex(f.classes)
	out := make([]float64, len(f.classes))
	for _, t := range f.trees {
		p := t.leaf(x)
		for i, label := range t.classes {
			out[idx[label]] += p[i]
		}
	}
	for i := range out {
		out[i] /= float64(len(f.trees))
	}
	return out
}

// Scores implements Classifier.
func (f *Forest) Scores(x []float64) []float64 { return f.PredictProba(x) }

// Predict implements Classifier.
func (f *Forest) Predict(x []float64) int {
	return f.classes[argmax(f.PredictProba(x))]
}

var (
	_ ProbabilisticClassifier = (*Tree)(nil)
	_ ProbabilisticClassifier = (*Forest)(nil)
)
