// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package imbalance resamples training sets to correct class imbalance.
//
// Oversamplers (SMOTE, RandomOverSampler) grow every class to the size of the
// majority class. Undersamplers (RandomUnderSampler,
// InstanceHardnessThreshold) shrink every class to the size of the minority
// class. Neither ever touches test data.
package imbalance

import (
	"errors"
	"math/rand/v2"
	"sort"
)

var (
	// ErrTooFewSamples is returned when a class is too small for the
	// neighbourhood a sampler needs.
	ErrTooFewSamples = errors.New("too few samples in class")

	// ErrEmptyInput is returned for an empty or misaligned training set.
	ErrEmptyInput = errors.New("empty or misaligned training set")
)

// Sampler rebalances one training set.
//
// Thread Safety: Implementations hold no mutable state.
type Sampler interface {
	// Resample returns a new training set. The inputs are not modified;
	// returned rows may alias input rows.
	Resample(x [][]float64, y []int, rng *rand.Rand) ([][]float64, []int, error)
}

// classRows groups row indices by label, labels ascending.
func classRows(y []int) ([]int, map[int][]int) {
	rows := make(map[int][]int)
	for i, v := range y {
		rows[v] = append(rows[v], i)
	}
	labels := make([]int, 0, len(rows))
	for l := range rows {
		labels = append(labels, l)
	}
	sort.Ints(labels)
	return labels, rows
}

func extremes(labels []int, rows map[int][]int) (minN, maxN int) {
	minN = -1
	for _, l := range labels {
		n := len(rows[l])
		if minN < 0 || n < minN {
			minN = n
		}
		if n > maxN {
			maxN = n
		}
	}
	return minN, maxN
}

func checkInput(x [][]float64, y []int) error {
	if len(x) == 0 || len(x) != len(y) {
		return ErrEmptyInput
	}
	return nil
}

func copySet(x [][]float64, y []int, extra int) ([][]float64, []int) {
	ox := make([][]float64, len(x), len(x)+extra)
	oy := make([]int, len(y), len(y)+extra)
	copy(ox, x)
	copy(oy, y)
	return ox, oy
}

func subset(x [][]float64, y []int, keep []int) ([][]float64, []int) {
	sort.Ints(keep)
	ox := make([][]float64, len(keep))
	oy := make([]int, len(keep))
	for i, r := range keep {
		ox[i], oy[i] = x[r], y[r]
	}
	return ox, oy
}
