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
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blobs returns two well separated 2-d clusters: label 0 near (-5,-5),
// label 1 near (5,5).
func blobs() ([][]float64, []int) {
	var x [][]float64
	var y []int
	for i := 0; i < 20; i++ {
		d := float64(i%5) * 0.1
		x = append(x, []float64{-5 + d, -5 - d})
		y = append(y, 0)
		x = append(x, []float64{5 - d, 5 + d})
		y = append(y, 1)
	}
	return x, y
}

func accuracy(c Classifier, x [][]float64, y []int) float64 {
	pred := PredictAll(c, x)
	ok := 0
	for i := range pred {
		if pred[i] == y[i] {
			ok++
		}
	}
	return float64(ok) / float64(len(y))
}

func TestTemplates_FitSeparableData(t *testing.T) {
	x, y := blobs()
	templates := []Template{
		DefaultPerceptron(),
		TreeTemplate{},
		ForestTemplate{NEstimators: 15},
		GaussianNBTemplate{},
	}
	for _, tmpl := range templates {
		t.Run(tmpl.Name(), func(t *testing.T) {
			c, err := tmpl.Fit(x, y, nil, NewRand(7))
			require.NoError(t, err)
			assert.Equal(t, []int{0, 1}, c.Classes())
			assert.Equal(t, 1.0, accuracy(c, x, y))

			p, ok := c.(ProbabilisticClassifier)
			require.True(t, ok)
			proba := p.PredictProba(x[0])
			require.Len(t, proba, 2)
			assert.InDelta(t, 1.0, proba[0]+proba[1], 1e-9)
		})
	}
}

func TestTemplates_RejectBadInput(t *testing.T) {
	tmpl := DefaultPerceptron()

	_, err := tmpl.Fit(nil, nil, nil, NewRand(1))
	assert.True(t, errors.Is(err, ErrEmptyTrainingSet))

	_, err = tmpl.Fit([][]float64{{1}}, []int{0, 1}, nil, NewRand(1))
	assert.True(t, errors.Is(err, ErrLengthMismatch))
}

func TestPerceptron_SingleClass(t *testing.T) {
	c, err := DefaultPerceptron().Fit([][]float64{{1}, {2}}, []int{3, 3}, nil, NewRand(1))
	require.NoError(t, err)
	assert.Equal(t, 3, c.Predict([]float64{100}))
}

func TestPerceptron_ZeroWeightIgnored(t *testing.T) {
	x := [][]float64{{-1}, {1}, {0.9}}
	y := []int{0, 1, 0}
	c, err := DefaultPerceptron().Fit(x, y, []float64{1, 1, 0}, NewRand(3))
	require.NoError(t, err)
	assert.Equal(t, 0, c.Predict([]float64{-1}))
	assert.Equal(t, 1, c.Predict([]float64{1}))
}

func TestProbaFull_PadsUnseenLabels(t *testing.T) {
	x := [][]float64{{0}, {1}, {10}, {11}}
	y := []int{1, 1, 3, 3}
	c, err := TreeTemplate{}.Fit(x, y, nil, NewRand(1))
	require.NoError(t, err)
	full := ProbaFull(c.(ProbabilisticClassifier), []float64{0}, 4)
	assert.Equal(t, []float64{0, 1, 0, 0}, full)
}

func TestCalibratePrefit(t *testing.T) {
	x, y := blobs()
	base, err := DefaultPerceptron().Fit(x, y, nil, NewRand(5))
	require.NoError(t, err)
	fp := FingerprintOf(x, y)

	cal, err := CalibratePrefit(base, x, y, fp)
	require.NoError(t, err)
	assert.Equal(t, base.Classes(), cal.Classes())
	assert.Equal(t, 1.0, accuracy(cal, x, y))

	for _, row := range x {
		p := cal.PredictProba(row)
		assert.InDelta(t, 1.0, p[0]+p[1], 1e-9)
		assert.False(t, math.IsNaN(p[0]))
	}

	t.Run("idempotent on same data", func(t *testing.T) {
		again, err := CalibratePrefit(cal, x, y, fp)
		require.NoError(t, err)
		assert.Same(t, cal, again)
	})

	t.Run("recalibrates on different data", func(t *testing.T) {
		y2 := append([]int(nil), y...)
		y2[0] = 1 - y2[0]
		fp2 := FingerprintOf(x, y2)
		require.NotEqual(t, fp, fp2)
		other, err := CalibratePrefit(cal, x, y2, fp2)
		require.NoError(t, err)
		assert.NotSame(t, cal, other)
		assert.Same(t, cal, other.Base())
	})

	t.Run("degenerate single class", func(t *testing.T) {
		ones := make([]int, len(y))
		_, err := CalibratePrefit(base, x, ones, FingerprintOf(x, ones))
		assert.True(t, errors.Is(err, ErrDegenerateCalibration))
	})
}

func TestFingerprintOf_Deterministic(t *testing.T) {
	x, y := blobs()
	assert.Equal(t, FingerprintOf(x, y), FingerprintOf(x, y))

	x2 := [][]float64{append([]float64(nil), x[0]...)}
	x2[0][0] += 1e-12
	assert.NotEqual(t, FingerprintOf(x[:1], y[:1]), FingerprintOf(x2, y[:1]))
}

func TestNeighbors_Query(t *testing.T) {
	nn := NewNeighbors([][]float64{{0}, {3}, {1}, {-1}, {10}})

	assert.Equal(t, []int{0, 2, 3}, nn.Query([]float64{0}, 3))
	assert.Equal(t, []int{2, 0, 1}, nn.QueryExcluding([]float64{1}, 3, -1))
	assert.Equal(t, []int{0, 1, 3}, nn.QueryExcluding([]float64{1}, 3, 2))
	assert.Len(t, nn.Query([]float64{0}, 99), 5)

	idx, dist := nn.QueryDist([]float64{9}, 1)
	assert.Equal(t, []int{4}, idx)
	assert.InDelta(t, 1.0, dist[0], 1e-12)
}

func TestFitKMeans_SeparatesBlobs(t *testing.T) {
	data := [][]float64{{0}, {0.1}, {0.2}, {100}, {100.1}, {100.2}}
	km := FitKMeans(data, 2, 50, NewRand(11))
	require.NotNil(t, km)
	require.Len(t, km.Centroids, 2)

	a := km.Assignments
	assert.Equal(t, a[0], a[1])
	assert.Equal(t, a[0], a[2])
	assert.Equal(t, a[3], a[4])
	assert.Equal(t, a[3], a[5])
	assert.NotEqual(t, a[0], a[3])
	assert.Equal(t, a[3], km.Nearest([]float64{99}))

	assert.Nil(t, FitKMeans(nil, 2, 10, NewRand(1)))
	assert.Len(t, FitKMeans(data[:1], 4, 10, NewRand(1)).Centroids, 1)
}
