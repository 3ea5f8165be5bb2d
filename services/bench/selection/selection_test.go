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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/EnsembleBench/services/bench/learn"
)

// constModel always predicts label out of classes {0, 1}.
type constModel struct{ label int }

func (c constModel) Predict([]float64) int { return c.label }
func (c constModel) Classes() []int { return []int{0, 1} }
func (c constModel) Scores(x []float64) []float64 {
	return c.PredictProba(x)
}
func (c constModel) PredictProba([]float64) []float64 {
	p := []float64{0, 0}
	p[c.label] = 1
	return p
}

// hardModel predicts without probability estimates.
type hardModel struct{}

func (hardModel) Predict([]float64) int { return 0 }
func (hardModel) Classes() []int { return []int{0} }
func (hardModel) Scores([]float64) []float64 { return []float64{0} }

// line returns DSEL points 0..9 labelled 0 below 5 and 1 from 5 on.
func line() ([][]float64, []int) {
	var x [][]float64
	var y []int
	for i := 0; i < 10; i++ {
		x = append(x, []float64{float64(i)})
		if i < 5 {
			y = append(y, 0)
		} else {
			y = append(y, 1)
		}
	}
	return x, y
}

func constPool() []learn.Classifier {
	return []learn.Classifier{constModel{label: 0}, constModel{label: 1}}
}

func allStrategies() map[string]Strategy {
	return map[string]Strategy{
		"ola":            OLA{},
		"lca":            LCA{},
		"mcb":            MCB{},
		"rank":           Rank{},
		"knora_u":        KNORAU{},
		"knora_e":        KNORAE{},
		"des_knn":        DESKNN{},
		"des_p":          DESP{},
		"des_mi":         DESMI{},
		"des_clustering": DESClustering{Seed: 3},
		"meta_des":       METADES{},
		"knop":           KNOP{},
	}
}

func TestStrategies_PickLocallyCompetentMember(t *testing.T) {
	x, y := line()
	strategies := map[string]Strategy{
		"ola":     OLA{K: 3},
		"lca":     LCA{K: 3},
		"mcb":     MCB{K: 3},
		"rank":    Rank{K: 3},
		"knora_u": KNORAU{K: 3},
		"knora_e": KNORAE{K: 3},
		"des_knn": DESKNN{K: 3},
		"des_p":   DESP{K: 3},
		"des_mi":  DESMI{K: 3},
	}
	for name, s := range strategies {
		t.Run(name, func(t *testing.T) {
			f, err := s.Fit(x, y, constPool())
			require.NoError(t, err)
			assert.Equal(t, []int{0, 1, 0}, f.Predict([][]float64{{1}, {8}, {0.5}}))
		})
	}
}

func TestDESClustering_UsesNearestCluster(t *testing.T) {
	var x [][]float64
	var y []int
	for i := 0; i < 5; i++ {
		x = append(x, []float64{float64(i)}, []float64{100 + float64(i)})
		y = append(y, 0, 1)
	}
	f, err := DESClustering{Clusters: 2, Seed: 1}.Fit(x, y, constPool())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, f.Predict([][]float64{{2}, {103}}))
}

func TestStrategies_FitErrors(t *testing.T) {
	x, y := line()
	for name, s := range allStrategies() {
		t.Run(name, func(t *testing.T) {
			_, err := s.Fit(x, y, nil)
			assert.True(t, errors.Is(err, ErrEmptyPool))

			_, err = s.Fit(nil, nil, constPool())
			assert.True(t, errors.Is(err, ErrEmptyDSEL))
		})
	}

	for _, s := range []Strategy{METADES{}, KNOP{}} {
		_, err := s.Fit(x, y, []learn.Classifier{constModel{label: 0}, hardModel{}})
		assert.True(t, errors.Is(err, ErrNeedsProbabilities))
	}
}

func TestDynamic_UnanimousPoolSkipsSelection(t *testing.T) {
	x, y := line()
	pool := []learn.Classifier{constModel{label: 1}, constModel{label: 1}}
	for name, s := range allStrategies() {
		t.Run(name, func(t *testing.T) {
			f, err := s.Fit(x, y, pool)
			require.NoError(t, err)
			assert.Equal(t, []int{1, 1}, f.Predict([][]float64{{0}, {9}}))
		})
	}
}

func TestVote_TiesGoToSmallestLabel(t *testing.T) {
	assert.Equal(t, 2, vote([]int{5, 2, 5, 2}, []int{0, 1, 2, 3}, nil))
	assert.Equal(t, 5, vote([]int{5, 2}, []int{0, 1}, []float64{2, 1}))
	assert.Equal(t, 7, vote([]int{7, 2}, []int{0}, nil))
}

func TestTopAndShare(t *testing.T) {
	assert.Equal(t, []int{2, 0}, top([]float64{0.5, 0.1, 0.9, 0.5}, []int{0, 1, 2, 3}, 2))
	assert.Equal(t, []int{3}, top([]float64{0, 0, 0, 1}, []int{1, 3}, 0))
	assert.Equal(t, 50, share(0.5, 100))
	assert.Equal(t, 1, share(0.01, 10))
	assert.Equal(t, 4, share(2, 4))
}

func TestOracle(t *testing.T) {
	x, y := line()
	f, err := Oracle{}.Fit(x, y, constPool())
	require.NoError(t, err)

	of, ok := f.(OracleFitted)
	require.True(t, ok)
	assert.Equal(t, []int{0, 1, 0}, of.PredictWithLabels([][]float64{{0}, {1}, {2}}, []int{0, 1, 2}))
	assert.Equal(t, []int{0}, of.Predict([][]float64{{9}}))

	_, err = Oracle{}.Fit(x, y, nil)
	assert.ErrorIs(t, err, ErrEmptyPool)
}

func TestOracle_IsUpperBound(t *testing.T) {
	rng := learn.NewRand(21)
	sample := func(n int) ([][]float64, []int) {
		centers := [][]float64{{0, 0}, {2, 0}, {1, 2}}
		var x [][]float64
		var y []int
		for i := 0; i < n; i++ {
			label := i % 3
			c := centers[label]
			x = append(x, []float64{c[0] + rng.NormFloat64(), c[1] + rng.NormFloat64()})
			y = append(y, label)
		}
		return x, y
	}
	xTrain, yTrain := sample(90)
	xTest, yTest := sample(45)

	var pool []learn.Classifier
	for m := 0; m < 8; m++ {
		bx := make([][]float64, len(xTrain))
		by := make([]int, len(yTrain))
		for i := range bx {
			j := rng.IntN(len(xTrain))
			bx[i], by[i] = xTrain[j], yTrain[j]
		}
		c, err := learn.TreeTemplate{MaxDepth: 2}.Fit(bx, by, nil, rng)
		require.NoError(t, err)
		pool = append(pool, c)
	}

	of, err := Oracle{}.Fit(xTrain, yTrain, pool)
	require.NoError(t, err)
	oraclePred := of.(OracleFitted).PredictWithLabels(xTest, yTest)

	oracleHits := 0
	for i := range yTest {
		if oraclePred[i] == yTest[i] {
			oracleHits++
		}
	}

	for name, s := range allStrategies() {
		t.Run(name, func(t *testing.T) {
			f, err := s.Fit(xTrain, yTrain, pool)
			require.NoError(t, err)
			pred := f.Predict(xTest)
			require.Len(t, pred, len(xTest))
			hits := 0
			for i := range yTest {
				if pred[i] == yTest[i] {
					hits++
					assert.Equal(t, yTest[i], oraclePred[i], "sample %d beaten only by %s", i, name)
				}
			}
			assert.LessOrEqual(t, hits, oracleHits)
		})
	}
}

func TestRandomForest_Baseline(t *testing.T) {
	x, y := line()
	f, err := RandomForest{}.FitBaseline(x, y, 20, learn.NewRand(4))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, f.Predict([][]float64{{0}, {9}}))

	_, err = RandomForest{}.FitBaseline(x, y, 0, learn.NewRand(4))
	assert.Error(t, err)
}
