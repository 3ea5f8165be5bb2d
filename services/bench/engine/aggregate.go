// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/AleutianAI/EnsembleBench/services/bench/metrics"
)

// Aggregate merges the fold results of one cell.
//
// Description:
//
//	Each fold matrix must cover the labels 0..k-1 for some k. Labels are
//	encoded by descending frequency, so a fold that misses classes usually
//	misses the highest indices, and its matrix is embedded at the top-left
//	of the n×n canonical matrix. A fold with a gap in its labels, such as
//	[0 1 2 4], is rejected with ErrAggregation. The embedded matrices are
//	summed.
//
// Inputs:
//
//	cell - The grid cell.
//	results - Successful fold results in fold order.
//	failures - Folds that produced no result.
//	expected - Number of folds in the dataset.
//	classes - Canonical class list, n = len(classes).
//
// Outputs:
//
//	*ResultSet - The cell's results.
//	error - ErrAggregation when a fold's labels are not a prefix of the
//	canonical list.
func Aggregate(cell Cell, results []FoldResult, failures []FoldFailure,
	expected int, classes []string) (*ResultSet, error) {

	n := len(classes)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty class list", ErrAggregation)
	}

	rs := &ResultSet{
		Cell:          cell,
		Classes:       append([]string(nil), classes...),
		Folds:         results,
		Failures:      failures,
		ExpectedFolds: expected,
		Degraded:      len(results) < expected,
		Confusion:     mat.NewDense(n, n, nil),
	}

	for _, r := range results {
		if err := checkPrefix(r, n); err != nil {
			return nil, err
		}
		k := len(r.Labels)
		if k > 0 {
			window := rs.Confusion.Slice(0, k, 0, k).(*mat.Dense)
			window.Add(window, r.Confusion)
		}
		rs.Predictions = append(rs.Predictions, r.Predictions...)
		rs.Truth = append(rs.Truth, r.Truth...)
	}

	rs.Table = metricsTable(results)
	rs.ByClass = classTable(results, classes)
	return rs, nil
}

// Embed returns the fold matrix cm placed at the top-left of an n×n zero
// matrix.
func Embed(cm *mat.Dense, n int) *mat.Dense {
	out := mat.NewDense(n, n, nil)
	k, _ := cm.Dims()
	window := out.Slice(0, k, 0, k).(*mat.Dense)
	window.Copy(cm)
	return out
}

func checkPrefix(r FoldResult, n int) error {
	k := len(r.Labels)
	if k > n {
		return fmt.Errorf("%w: %s has %d labels, only %d classes", ErrAggregation, r.Fold, k, n)
	}
	for i, l := range r.Labels {
		if l != i {
			return fmt.Errorf("%w: %s labels %v are not 0..%d", ErrAggregation, r.Fold, r.Labels, k-1)
		}
	}
	if r.Confusion == nil {
		if k == 0 {
			return nil
		}
		return fmt.Errorf("%w: %s has no confusion matrix", ErrAggregation, r.Fold)
	}
	rows, cols := r.Confusion.Dims()
	if rows != k || cols != k {
		return fmt.Errorf("%w: %s matrix is %dx%d for %d labels", ErrAggregation, r.Fold, rows, cols, k)
	}
	return nil
}

func metricsTable(results []FoldResult) MetricsTable {
	t := MetricsTable{
		Columns: append([]string(nil), metrics.Names...),
		Folds:   make([]string, len(results)),
		Rows:    make([][]float64, len(results)),
		Mean:    make([]float64, len(metrics.Names)),
		Std:     make([]float64, len(metrics.Names)),
	}
	for i, r := range results {
		t.Folds[i] = r.Fold
		t.Rows[i] = r.Metrics.Values()
	}

	col := make([]float64, len(results))
	for j := range t.Columns {
		for i := range t.Rows {
			col[i] = t.Rows[i][j]
		}
		switch len(col) {
		case 0:
			t.Mean[j], t.Std[j] = math.NaN(), math.NaN()
		case 1:
			t.Mean[j], t.Std[j] = col[0], 0
		default:
			t.Mean[j], t.Std[j] = stat.MeanStdDev(col, nil)
		}
	}
	return t
}

func classTable(results []FoldResult, classes []string) ClassAccuracyTable {
	t := ClassAccuracyTable{
		Classes: append([]string(nil), classes...),
		Folds:   make([]string, len(results)),
		Rows:    make([][]float64, len(results)),
	}
	for i, r := range results {
		t.Folds[i] = r.Fold
		row := make([]float64, len(classes))
		for c := range row {
			acc, ok := r.Metrics.ByClass[c]
			if !ok {
				acc = math.NaN()
			}
			row[c] = acc
		}
		t.Rows[i] = row
	}
	return t
}
