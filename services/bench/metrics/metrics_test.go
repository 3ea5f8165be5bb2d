// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestConfusionMatrix(t *testing.T) {
	labels, cm, err := ConfusionMatrix([]int{0, 0, 1, 1, 2}, []int{0, 1, 1, 1, 0})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, labels)
	want := mat.NewDense(3, 3, []float64{
		1, 1, 0,
		0, 2, 0,
		1, 0, 0,
	})
	assert.True(t, mat.Equal(want, cm))
}

func TestConfusionMatrix_UnionOfLabels(t *testing.T) {
	labels, cm, err := ConfusionMatrix([]int{2, 2}, []int{2, 5})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5}, labels)
	r, c := cm.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 2.0, mat.Sum(cm))
}

func TestConfusionMatrix_Errors(t *testing.T) {
	_, _, err := ConfusionMatrix([]int{1}, nil)
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, _, err = ConfusionMatrix(nil, nil)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestCompute(t *testing.T) {
	v, err := Compute([]int{0, 0, 1, 1, 2}, []int{0, 1, 1, 1, 0})
	require.NoError(t, err)

	assert.InDelta(t, 0.6, v.Accuracy, 1e-9)
	assert.InDelta(t, (0.5+2.0/3.0)/3, v.Precision, 1e-9)
	assert.InDelta(t, 0.5, v.Recall, 1e-9)
	assert.InDelta(t, (0.5+0.8)/3, v.F1, 1e-9)
	assert.InDelta(t, 0.4375, v.MFM, 1e-9)
	assert.Equal(t, 0.0, v.GMean)
	assert.Equal(t, map[int]float64{0: 0.5, 1: 1, 2: 0}, v.ByClass)
	assert.Len(t, v.Values(), len(Names))
}

func TestGeometricMean(t *testing.T) {
	g, err := GeometricMean([]int{0, 0, 1, 1}, []int{0, 1, 1, 1})
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(0.5), g, 1e-9)
}

func TestAccuracyByClass_AbsentClassIsNaN(t *testing.T) {
	acc, err := AccuracyByClass([]int{0, 0}, []int{0, 3})
	require.NoError(t, err)
	assert.Equal(t, 0.5, acc[0])
	assert.True(t, math.IsNaN(acc[3]))
}

func TestPerfectPrediction(t *testing.T) {
	y := []int{0, 1, 2, 1}
	v, err := Compute(y, y)
	require.NoError(t, err)
	for i, x := range v.Values() {
		assert.InDelta(t, 1.0, x, 1e-12, Names[i])
	}
	mfm, err := MultiLabelFMeasure(y, y)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, mfm, 1e-12)
}
