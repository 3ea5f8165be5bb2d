// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metrics computes classification metrics from label vectors.
//
// Every function is pure and takes (truth, pred) aligned by sample. The
// label set of a computation is the sorted union of the labels in truth and
// pred, the same set the confusion matrix is built over.
package metrics

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrLengthMismatch is returned when truth and pred differ in length.
	ErrLengthMismatch = errors.New("truth and predictions differ in length")

	// ErrEmpty is returned when there is nothing to score.
	ErrEmpty = errors.New("no samples to score")
)

// Names are the column names of the per-fold metrics table, in Values order.
var Names = []string{"MultiLabel-Fmeasure", "Gmean", "Accuracy", "Precision", "Recall", "F1"}

// Vector is the metric record of one fold.
type Vector struct {
	MFM       float64 `json:"mfm"`
	GMean     float64 `json:"gmean"`
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`

	// ByClass maps label to per-class accuracy. Labels absent from truth
	// map to NaN.
	ByClass map[int]float64 `json:"-"`
}

// Values returns the scalar metrics in Names order.
func (v Vector) Values() []float64 {
	return []float64{v.MFM, v.GMean, v.Accuracy, v.Precision, v.Recall, v.F1}
}

// Labels returns the sorted union of labels in truth and pred.
func Labels(truth, pred []int) []int {
	seen := make(map[int]struct{})
	for _, v := range truth {
		seen[v] = struct{}{}
	}
	for _, v := range pred {
		seen[v] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// ConfusionMatrix counts (truth, pred) pairs.
//
// Outputs:
//   - []int: Row and column labels, the sorted union of truth and pred.
//   - *mat.Dense: Entry (i, j) counts samples of labels[i] predicted as
//     labels[j].
//   - error: ErrLengthMismatch or ErrEmpty.
func ConfusionMatrix(truth, pred []int) ([]int, *mat.Dense, error) {
	if len(truth) != len(pred) {
		return nil, nil, ErrLengthMismatch
	}
	if len(truth) == 0 {
		return nil, nil, ErrEmpty
	}
	labels := Labels(truth, pred)
	idx := make(map[int]int, len(labels))
	for i, l := range labels {
		idx[l] = i
	}
	cm := mat.NewDense(len(labels), len(labels), nil)
	for i := range truth {
		r, c := idx[truth[i]], idx[pred[i]]
		cm.Set(r, c, cm.At(r, c)+1)
	}
	return labels, cm, nil
}

// Compute derives the full metric vector.
func Compute(truth, pred []int) (Vector, error) {
	labels, cm, err := ConfusionMatrix(truth, pred)
	if err != nil {
		return Vector{}, err
	}
	return FromConfusion(labels, cm), nil
}

// FromConfusion derives the metric vector from a confusion matrix.
//
// Description:
//
//	Precision, Recall and F1 are macro averages over labels, with 0 for an
//	undefined per-class ratio. MFM is the F-measure of macro precision and
//	macro recall. GMean is the geometric mean of per-class recalls and is 0
//	when any recall is 0.
func FromConfusion(labels []int, cm *mat.Dense) Vector {
	k := len(labels)
	var total, correct float64
	precision := make([]float64, k)
	recall := make([]float64, k)
	f1 := make([]float64, k)
	byClass := make(map[int]float64, k)
	for i := 0; i < k; i++ {
		tp := cm.At(i, i)
		support := mat.Sum(cm.RowView(i))
		predicted := mat.Sum(cm.ColView(i))
		total += support
		correct += tp
		precision[i] = ratio(tp, predicted)
		recall[i] = ratio(tp, support)
		f1[i] = harmonic(precision[i], recall[i])
		if support == 0 {
			byClass[labels[i]] = math.NaN()
		} else {
			byClass[labels[i]] = tp / support
		}
	}
	v := Vector{
		Accuracy:  ratio(correct, total),
		Precision: stat.Mean(precision, nil),
		Recall:    stat.Mean(recall, nil),
		F1:        stat.Mean(f1, nil),
		GMean:     geometricMean(recall),
		ByClass:   byClass,
	}
	v.MFM = harmonic(v.Precision, v.Recall)
	return v
}

// MultiLabelFMeasure is the F-measure of macro precision and macro recall.
func MultiLabelFMeasure(truth, pred []int) (float64, error) {
	v, err := Compute(truth, pred)
	return v.MFM, err
}

// GeometricMean is the geometric mean of per-class recalls.
func GeometricMean(truth, pred []int) (float64, error) {
	v, err := Compute(truth, pred)
	return v.GMean, err
}

// AccuracyByClass returns per-class accuracy (TP / support).
func AccuracyByClass(truth, pred []int) (map[int]float64, error) {
	v, err := Compute(truth, pred)
	return v.ByClass, err
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func harmonic(p, r float64) float64 {
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func geometricMean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	for _, x := range v {
		if x <= 0 {
			return 0
		}
	}
	return stat.GeometricMean(v, nil)
}
