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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLabelEncoding_OrdersByFrequency(t *testing.T) {
	enc := NewLabelEncoding(map[string]int{"Sleep": 3, "Cook": 10, "Eat": 3, "Wash": 1})

	assert.Equal(t, []string{"Cook", "Eat", "Sleep", "Wash"}, enc.Classes())

	idx, ok := enc.Index("Wash")
	require.True(t, ok)
	assert.Equal(t, 3, idx)

	name, ok := enc.Name(0)
	require.True(t, ok)
	assert.Equal(t, "Cook", name)

	_, ok = enc.Name(4)
	assert.False(t, ok)
}

func TestLabelEncoding_Encode(t *testing.T) {
	enc := NewOrderedEncoding([]string{"A", "B", "C"})

	got, err := enc.Encode([]string{"C", "A", "B", "A"})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0, 1, 0}, got)

	_, err = enc.Encode([]string{"A", "Z"})
	assert.ErrorIs(t, err, ErrUnknownClass)
}

func TestFold_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		f := Fold{
			Name:           "Fold_1",
			XTrain:         [][]float64{{1}, {2}},
			XTest:          [][]float64{{3}},
			YTest:          []string{"A"},
			YTrainVariants: map[int][]string{0: {"A", "B"}, 1: {"B", "B"}},
		}
		assert.NoError(t, f.Validate())
		assert.Equal(t, []int{0, 1}, f.NoiseLevels())
	})

	t.Run("train variant length mismatch", func(t *testing.T) {
		f := Fold{
			Name:           "Fold_1",
			XTrain:         [][]float64{{1}, {2}},
			YTrainVariants: map[int][]string{3: {"A"}},
		}
		assert.ErrorIs(t, f.Validate(), ErrInvalidFold)
	})

	t.Run("test length mismatch", func(t *testing.T) {
		f := Fold{Name: "Fold_1", XTest: [][]float64{{1}}, YTest: nil}
		assert.ErrorIs(t, f.Validate(), ErrInvalidFold)
	})

	t.Run("missing noise level", func(t *testing.T) {
		f := Fold{Name: "Fold_1", YTrainVariants: map[int][]string{0: {}}}
		_, err := f.TrainLabels(4)
		assert.ErrorIs(t, err, ErrMissingNoiseLevel)
	})
}

func TestMemoryStore_Load(t *testing.T) {
	d, err := Synthesize(DefaultSynthConfig("HH103"))
	require.NoError(t, err)
	store := NewMemoryStore(d)

	got, err := store.Load(context.Background(), "HH103")
	require.NoError(t, err)
	assert.Same(t, d, got)

	_, err = store.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestSynthesize(t *testing.T) {
	cfg := DefaultSynthConfig("synthetic")
	d, err := Synthesize(cfg)
	require.NoError(t, err)

	require.Len(t, d.Folds, cfg.Folds)
	assert.Equal(t, cfg.Classes, d.Encoding.Len())
	for _, f := range d.Folds {
		assert.Len(t, f.XTrain, cfg.TrainPerFold)
		assert.Len(t, f.XTest, cfg.TestPerFold)
		assert.Equal(t, cfg.NoiseLevels, f.NoiseLevels())

		clean := f.YTrainVariants[0]
		noisy := f.YTrainVariants[5]
		flipped := 0
		for i := range clean {
			if clean[i] != noisy[i] {
				flipped++
			}
		}
		assert.Equal(t, cfg.TrainPerFold/2, flipped, "noise level 5 flips half of the labels")
	}

	again, err := Synthesize(cfg)
	require.NoError(t, err)
	assert.Equal(t, d.Folds[0].XTrain[0], again.Folds[0].XTrain[0], "same seed, same data")
}

func TestDirStore_RoundTrip(t *testing.T) {
	cfg := DefaultSynthConfig("Kyoto2008")
	cfg.Folds = 3
	cfg.TrainPerFold = 30
	cfg.TestPerFold = 10
	d, err := Synthesize(cfg)
	require.NoError(t, err)

	root := t.TempDir()
	require.NoError(t, WriteDir(root, d))

	store := NewDirStore(root)
	got, err := store.Load(context.Background(), "Kyoto2008")
	require.NoError(t, err)

	assert.Equal(t, d.FoldNames(), got.FoldNames())
	assert.Equal(t, d.Classes(), got.Classes())
	for i := range d.Folds {
		assert.Equal(t, d.Folds[i].XTrain, got.Folds[i].XTrain)
		assert.Equal(t, d.Folds[i].YTest, got.Folds[i].YTest)
		assert.Equal(t, d.Folds[i].YTrainVariants, got.Folds[i].YTrainVariants)
	}

	_, err = store.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}
