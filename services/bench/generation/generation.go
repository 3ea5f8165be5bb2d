// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package generation builds classifier pools from one training set.
//
// Three strategies are provided: Bagging (bootstrap replicas), AdaBoost
// (SAMME reweighting) and SGH (self-generating hyperplanes, a
// centroid-driven generator whose members are linear cuts without
// probability estimates).
package generation

import (
	"context"
	"errors"
	"math/rand/v2"

	"github.com/AleutianAI/EnsembleBench/services/bench/learn"
)

var (
	// ErrInvalidPoolSize is returned when a pool size below one is requested.
	ErrInvalidPoolSize = errors.New("pool size must be at least 1")

	// ErrWorseThanRandom is returned by AdaBoost when its first member is
	// no better than chance, so no ensemble can be fit.
	ErrWorseThanRandom = errors.New("base classifier is worse than random")
)

// Strategy produces an ordered pool of trained classifiers.
//
// Thread Safety: Implementations hold no mutable state. One strategy value
// may be used for many folds concurrently.
type Strategy interface {
	// Fit trains a pool.
	//
	// Inputs:
	//   - ctx: Cancellation is checked between members.
	//   - x, y: The (possibly resampled) training set.
	//   - template: Base learner. Each member is a fresh Fit of it.
	//   - poolSize: Target number of members. Strategies may stop early.
	//   - rng: Source of randomness for this fold.
	//
	// Outputs:
	//   - []learn.Classifier: Non-empty on success.
	//   - error: Non-nil on invalid input or cancellation.
	Fit(ctx context.Context, x [][]float64, y []int, template learn.Template, poolSize int, rng *rand.Rand) ([]learn.Classifier, error)
}

func checkInput(x [][]float64, y []int, poolSize int) error {
	if poolSize < 1 {
		return ErrInvalidPoolSize
	}
	if len(x) == 0 {
		return learn.ErrEmptyTrainingSet
	}
	if len(x) != len(y) {
		return learn.ErrLengthMismatch
	}
	return nil
}

// child derives an independent generator for one pool member.
func child(rng *rand.Rand) *rand.Rand {
	return learn.NewRand(rng.Uint64())
}
