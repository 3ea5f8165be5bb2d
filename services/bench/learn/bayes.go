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

	"gonum.org/v1/gonum/stat"
)

// GaussianNBTemplate trains Gaussian naive Bayes models.
type GaussianNBTemplate struct {
	// VarSmoothing is added to every variance, as a share of the largest
	// feature variance. Default 1e-9.
	VarSmoothing float64
}

// Name implements Template.
func (t GaussianNBTemplate) Name() string { return "gaussian_nb" }

// GaussianNB is a trained Gaussian naive Bayes model.
type GaussianNB struct {
	classes  []int
	logPrior []float64
	mean     [][]float64
	variance [][]float64
}

// Fit implements Template.
func (t GaussianNBTemplate) Fit(x [][]float64, y []int, w []float64, _ *rand.Rand) (Classifier, error) {
	if err := checkFitInput(x, y, w); err != nil {
		return nil, err
	}
	smoothing := t.VarSmoothing
	if smoothing <= 0 {
		smoothing = 1e-9
	}
	dim := len(x[0])
	classes := UniqueLabels(y)
	idx := labelIndex(classes)

	// Largest per-feature variance over all samples sets the epsilon scale.
	col := make([]float64, len(x))
	maxVar := 0.0
	for j := 0; j < dim; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		if v := stat.Variance(col, w); v > maxVar && !math.IsNaN(v) {
			maxVar = v
		}
	}
	eps := smoothing * math.Max(maxVar, 1e-12)

	nb := &GaussianNB{
		classes:  classes,
		logPrior: make([]float64, len(classes)),
		mean:     make([][]float64, len(classes)),
		variance: make([][]float64, len(classes)),
	}
	groups := make([][]int, len(classes))
	for i, v := range y {
		groups[idx[v]] = append(groups[idx[v]], i)
	}
	totalW := 0.0
	classW := make([]float64, len(classes))
	for k, rows := range groups {
		for _, r := range rows {
			if w != nil {
				classW[k] += w[r]
			} else {
				classW[k]++
			}
		}
		totalW += classW[k]
	}
	for k, rows := range groups {
		nb.mean[k] = make([]float64, dim)
		nb.variance[k] = make([]float64, dim)
		vals := make([]float64, len(rows))
		var weights []float64
		if w != nil {
			weights = make([]float64, len(rows))
			for i, r := range rows {
				weights[i] = w[r]
			}
		}
		for j := 0; j < dim; j++ {
			for i, r := range rows {
				vals[i] = x[r][j]
			}
			mean, std := stat.PopMeanStdDev(vals, weights)
			nb.mean[k][j] = mean
			if math.IsNaN(std) {
				std = 0
			}
			nb.variance[k][j] = std*std + eps
		}
		nb.logPrior[k] = math.Log(classW[k] / totalW)
	}
	return nb, nil
}

// Classes implements Classifier.
func (nb *GaussianNB) Classes() []int { return nb.classes }

// Scores returns the joint log-likelihood per class.
func (nb *GaussianNB) Scores(x []float64) []float64 {
	s := make([]float64, len(nb.classes))
	for k := range nb.classes {
		ll := nb.logPrior[k]
		for j, v := range x {
			d := v - nb.mean[k][j]
			ll -= 0.5*math.Log(2*math.Pi*nb.variance[k][j]) + d*d/(2*nb.variance[k][j])
		}
		s[k] = ll
	}
	return s
}

// PredictProba implements ProbabilisticClassifier.
func (nb *GaussianNB) PredictProba(x []float64) []float64 {
	return softmax(nb.Scores(x))
}

// Predict implements Classifier.
func (nb *GaussianNB) Predict(x []float64) int {
	return nb.classes[argmax(nb.Scores(x))]
}

var _ ProbabilisticClassifier = (*GaussianNB)(nil)
