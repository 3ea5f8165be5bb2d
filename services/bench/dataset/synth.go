// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dataset

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// SynthConfig configures a synthetic activity-style dataset.
type SynthConfig struct {
	// Name of the generated dataset.
	Name string

	// Folds is the number of pre-defined splits.
	Folds int

	// Classes is the number of activities.
	Classes int

	// Features is the feature dimensionality.
	Features int

	// TrainPerFold and TestPerFold are the split sizes.
	TrainPerFold int
	TestPerFold  int

	// NoiseLevels are the label-corruption levels to generate. Level l
	// flips l*10% of the training labels to a different class.
	NoiseLevels []int

	// Imbalance skews class priors geometrically. Class i has weight
	// Imbalance^i, so 1.0 means balanced and smaller values make the
	// later classes rarer.
	Imbalance float64

	// Spread is the per-feature standard deviation around class centers.
	Spread float64

	// Seed makes generation reproducible.
	Seed uint64
}

// DefaultSynthConfig returns a small six-fold, five-activity configuration.
func DefaultSynthConfig(name string) SynthConfig {
	return SynthConfig{
		Name:         name,
		Folds:        6,
		Classes:      5,
		Features:     8,
		TrainPerFold: 240,
		TestPerFold:  60,
		NoiseLevels:  []int{0, 1, 2, 3, 4, 5},
		Imbalance:    0.7,
		Spread:       1.0,
		Seed:         1,
	}
}

// Synthesize generates a dataset of Gaussian class clusters.
//
// Description:
//
//	Class centers are drawn once. Each fold samples training and test
//	rows independently from the class priors. Training label variants
//	are derived from the clean labels by flipping a noise-level
//	dependent share of them.
//
// Outputs:
//   - *Dataset: The validated dataset.
//   - error: Non-nil if the configuration is unusable.
func Synthesize(cfg SynthConfig) (*Dataset, error) {
	if cfg.Folds <= 0 || cfg.Classes < 2 || cfg.Features <= 0 || cfg.TrainPerFold <= 0 || cfg.TestPerFold <= 0 {
		return nil, errors.New("synth: folds, features and split sizes must be positive, classes >= 2")
	}
	if cfg.Imbalance <= 0 {
		cfg.Imbalance = 1
	}
	if cfg.Spread <= 0 {
		cfg.Spread = 1
	}
	if len(cfg.NoiseLevels) == 0 {
		cfg.NoiseLevels = []int{0}
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	names := make([]string, cfg.Classes)
	centers := make([][]float64, cfg.Classes)
	weights := make([]float64, cfg.Classes)
	total := 0.0
	w := 1.0
	for c := range names {
		names[c] = fmt.Sprintf("activity_%02d", c)
		centers[c] = make([]float64, cfg.Features)
		for j := range centers[c] {
			centers[c][j] = rng.NormFloat64() * 3
		}
		weights[c] = w
		total += w
		w *= cfg.Imbalance
	}

	sampleClass := func() int {
		u := rng.Float64() * total
		for c, wc := range weights {
			if u < wc {
				return c
			}
			u -= wc
		}
		return cfg.Classes - 1
	}
	sample := func(n int) ([][]float64, []string) {
		x := make([][]float64, n)
		y := make([]string, n)
		for i := 0; i < n; i++ {
			c := sampleClass()
			row := make([]float64, cfg.Features)
			for j := range row {
				row[j] = centers[c][j] + rng.NormFloat64()*cfg.Spread
			}
			x[i] = row
			y[i] = names[c]
		}
		return x, y
	}

	folds := make([]Fold, cfg.Folds)
	for f := range folds {
		xTrain, yTrain := sample(cfg.TrainPerFold)
		xTest, yTest := sample(cfg.TestPerFold)
		variants := make(map[int][]string, len(cfg.NoiseLevels))
		for _, level := range cfg.NoiseLevels {
			variants[level] = corrupt(yTrain, names, float64(level)/10, rng)
		}
		folds[f] = Fold{
			Name:           fmt.Sprintf("Fold_%d", f+1),
			XTrain:         xTrain,
			XTest:          xTest,
			YTest:          yTest,
			YTrainVariants: variants,
		}
	}
	return NewDataset(cfg.Name, folds)
}

// corrupt returns a copy of labels with the given share reassigned to a
// different class chosen uniformly.
func corrupt(labels, classes []string, share float64, rng *rand.Rand) []string {
	out := append([]string(nil), labels...)
	if share <= 0 || len(classes) < 2 {
		return out
	}
	n := int(share * float64(len(out)))
	for _, i := range rng.Perm(len(out))[:n] {
		for {
			c := classes[rng.IntN(len(classes))]
			if c != out[i] {
				out[i] = c
				break
			}
		}
	}
	return out
}
