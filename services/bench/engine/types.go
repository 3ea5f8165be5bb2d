// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine is the experiment-grid evaluation engine.
//
// It turns one grid cell (dataset, noise level, generation method,
// selection method) into per-fold classifier pools, applies the selection
// strategy to every fold under the input contract its registry category
// declares, and merges the per-fold confusion matrices into a single
// canonically shaped matrix.
//
// Folds are independent and run on a bounded worker pool. Results are
// always gathered in fold order, so a cell's Result Set is identical
// whatever the degree of parallelism.
package engine

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/EnsembleBench/services/bench/learn"
	"github.com/AleutianAI/EnsembleBench/services/bench/metrics"
	"github.com/AleutianAI/EnsembleBench/services/bench/registry"
)

// Cell identifies one grid cell.
type Cell struct {
	Dataset    string      `json:"dataset"`
	Noise      int         `json:"noise"`
	Imbalance  registry.ID `json:"imbalance"`
	Generation registry.ID `json:"generation"`
	Selection  registry.ID `json:"selection"`
}

// Key returns "{dataset}/{imbalance}/{generation}/{noise}/{selection}".
func (c Cell) Key() string {
	return fmt.Sprintf("%s/%s/%s/%d/%s", c.Dataset, c.imbalanceName(), c.Generation, c.Noise, c.Selection)
}

// imbalanceName returns the imbalance id, or "None" when unset.
func (c Cell) imbalanceName() registry.ID {
	if c.Imbalance == "" {
		return registry.NoImbalance
	}
	return c.Imbalance
}

// ImbalanceName returns the imbalance id used in result paths.
func (c Cell) ImbalanceName() string { return string(c.imbalanceName()) }

// FoldData is the numeric form of one fold for one noise level. It is built
// once per (dataset, noise) pair and shared read-only by every cell of that
// pair.
type FoldData struct {
	Index  int
	Fold   string
	XTrain [][]float64
	YTrain []int
	XTest  [][]float64
	YTest  []int

	// Fingerprint identifies (XTrain, YTrain) for calibration reuse.
	Fingerprint learn.Fingerprint
}

// Pool is a trained classifier pool of one fold. It is never mutated after
// generation; calibration produces a new Pool.
type Pool struct {
	Generation registry.ID
	Fold       string
	Members    []learn.Classifier
	Calibrated bool

	// TrainX and TrainY are the rows the members were trained on: the
	// resampled set when an imbalance corrector ran, otherwise the fold's
	// training data. Calibration fits on them.
	TrainX      [][]float64
	TrainY      []int
	Fingerprint learn.Fingerprint
}

// Size returns the number of members.
func (p *Pool) Size() int { return len(p.Members) }

// FoldResult is the outcome of evaluating one fold.
type FoldResult struct {
	Fold string

	// Labels are the row and column labels of Confusion: the sorted union
	// of the fold's true and predicted labels.
	Labels    []int
	Confusion *mat.Dense
	Metrics   metrics.Vector

	// Predictions and Truth are aligned with the fold's test rows.
	Predictions []int
	Truth       []int
}

// MetricsTable is the per-fold metrics table with summary rows.
type MetricsTable struct {
	Columns []string    `json:"columns"`
	Folds   []string    `json:"folds"`
	Rows    [][]float64 `json:"rows"`
	Mean    []float64   `json:"mean"`
	Std     []float64   `json:"std"`
}

// ClassAccuracyTable holds per-class accuracy per fold over the canonical
// class list. Classes absent from a fold's test labels are NaN.
type ClassAccuracyTable struct {
	Classes []string
	Folds   []string
	Rows    [][]float64
}

// ResultSet is the aggregated outcome of one grid cell.
type ResultSet struct {
	Cell     Cell
	Classes  []string
	Folds    []FoldResult
	Failures []FoldFailure

	// ExpectedFolds is the number of folds in the dataset.
	ExpectedFolds int
	// Degraded is set when fewer folds succeeded than expected.
	Degraded bool
	// Deployable is false when the selector reads test labels.
	Deployable bool

	// Predictions and Truth concatenate the successful folds in order.
	Predictions []int
	Truth       []int

	// Confusion is n×n over Classes, the sum of the embedded fold matrices.
	Confusion *mat.Dense

	Table   MetricsTable
	ByClass ClassAccuracyTable
}

// Outcome statuses of a grid cell.
const (
	StatusCompleted = "completed"
	StatusDegraded  = "degraded"
	StatusSkipped   = "skipped"
)

// CellOutcome is one line of a RunSummary.
type CellOutcome struct {
	Cell     Cell   `json:"cell"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Folds    int    `json:"folds"`
	Failures int    `json:"failures"`
}

// RunSummary reports every cell of a run.
type RunSummary struct {
	RunID           string        `json:"run_id"`
	Cells           []CellOutcome `json:"cells"`
	PersistFailures int           `json:"persist_failures"`
}

// Count returns the number of cells with status.
func (s *RunSummary) Count(status string) int {
	n := 0
	for _, c := range s.Cells {
		if c.Status == status {
			n++
		}
	}
	return n
}
