// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package learn provides the base learners used by the benchmark.
//
// Everything here is a plain implementation of a well-known algorithm
// (perceptron, CART, random forest, Gaussian naive Bayes, Platt scaling,
// k-nearest neighbours, k-means). The experiment engine only sees the
// Classifier and Template contracts, so any learner satisfying them can be
// swapped in.
//
// Labels are dense non-negative integers produced by a dataset label
// encoding. A trained classifier reports the labels it saw in training via
// Classes(); score and probability vectors are aligned with that slice.
package learn

import (
	"errors"
	"math"
	"math/rand/v2"
	"sort"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrEmptyTrainingSet is returned when Fit receives no samples.
	ErrEmptyTrainingSet = errors.New("empty training set")

	// ErrLengthMismatch is returned when features and labels differ in length.
	ErrLengthMismatch = errors.New("features and labels differ in length")

	// ErrDegenerateCalibration is returned when calibration data holds fewer
	// than two classes.
	ErrDegenerateCalibration = errors.New("calibration requires at least two classes")

	// ErrNotProbabilistic is returned when a classifier cannot estimate
	// class probabilities.
	ErrNotProbabilistic = errors.New("classifier does not estimate probabilities")
)

// -----------------------------------------------------------------------------
// Contracts
// -----------------------------------------------------------------------------

// Classifier is a trained model.
//
// Thread Safety: Implementations must be safe for concurrent prediction.
type Classifier interface {
	// Predict returns the predicted label of x.
	Predict(x []float64) int

	// Scores returns per-class decision values aligned with Classes().
	// Higher is more confident.
	Scores(x []float64) []float64

	// Classes returns the labels seen during training in ascending order.
	Classes() []int
}

// ProbabilisticClassifier can estimate class membership probabilities.
type ProbabilisticClassifier interface {
	Classifier

	// PredictProba returns probabilities aligned with Classes(). They sum to 1.
	PredictProba(x []float64) []float64
}

// Template creates and trains fresh, independent classifier instances.
//
// Description:
//
//	A template carries hyperparameters only. Every Fit call returns a new
//	model, so the same template can be shared across folds without any
//	parameter leakage between them.
type Template interface {
	// Name identifies the learner, e.g. "perceptron".
	Name() string

	// Fit trains a new classifier.
	//
	// Inputs:
	//   - x: Training features.
	//   - y: Training labels aligned with x.
	//   - w: Optional sample weights aligned with x. Nil means uniform.
	//   - rng: Source of randomness. Must not be nil.
	//
	// Outputs:
	//   - Classifier: The trained model.
	//   - error: ErrEmptyTrainingSet or ErrLengthMismatch on bad input.
	Fit(x [][]float64, y []int, w []float64, rng *rand.Rand) (Classifier, error)
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// PredictAll predicts every row of x.
func PredictAll(c Classifier, x [][]float64) []int {
	out := make([]int, len(x))
	for i, row := range x {
		out[i] = c.Predict(row)
	}
	return out
}

// ProbaFull expands a classifier's probabilities to a dense vector over
// labels 0..nClasses-1. Labels the classifier never saw get zero.
func ProbaFull(c ProbabilisticClassifier, x []float64, nClasses int) []float64 {
	full := make([]float64, nClasses)
	p := c.PredictProba(x)
	for i, label := range c.Classes() {
		if label >= 0 && label < nClasses {
			full[label] = p[i]
		}
	}
	return full
}

// NumClasses returns max(y)+1, the dense label space size of y.
func NumClasses(y []int) int {
	n := 0
	for _, v := range y {
		if v+1 > n {
			n = v + 1
		}
	}
	return n
}

// UniqueLabels returns the distinct labels of y in ascending order.
func UniqueLabels(y []int) []int {
	seen := make(map[int]struct{}, 8)
	for _, v := range y {
		seen[v] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// NewRand returns a PCG-backed generator for a seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0xda942042e4dd58b5))
}

func checkFitInput(x [][]float64, y []int, w []float64) error {
	if len(x) == 0 {
		return ErrEmptyTrainingSet
	}
	if len(x) != len(y) || (w != nil && len(w) != len(x)) {
		return ErrLengthMismatch
	}
	return nil
}

func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// softmax converts raw scores to probabilities without overflow.
func softmax(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	maxScore := scores[argmax(scores)]
	sum := 0.0
	for i, s := range scores {
		out[i] = math.Exp(s - maxScore)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func labelIndex(classes []int) map[int]int {
	idx := make(map[int]int, len(classes))
	for i, c := range classes {
		idx[c] = i
	}
	return idx
}
