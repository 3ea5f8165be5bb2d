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
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/EnsembleBench/services/bench/registry"
)

// =============================================================================
// Error classes
// =============================================================================

var (
	// ErrConfiguration marks an invalid experiment setup: an unknown
	// strategy, a pool too small for the selector, a missing baseline
	// parameter. Fatal to the grid cell, raised before any prediction.
	ErrConfiguration = registry.ErrConfiguration

	// ErrFoldData marks a problem local to one fold: infeasible
	// resampling, degenerate calibration, a selector that cannot fit the
	// fold. The fold is recorded as failed and the cell continues.
	ErrFoldData = errors.New("fold data error")

	// ErrAggregation marks fold results that cannot be merged into the
	// canonical shape. Fatal to the grid cell.
	ErrAggregation = errors.New("aggregation error")
)

// Stages of per-fold work, used in FoldFailure.
const (
	StagePrepare   = "prepare"
	StageResample  = "resample"
	StageGenerate  = "generate"
	StageCalibrate = "calibrate"
	StageFit       = "fit"
	StagePredict   = "predict"
	StageScore     = "score"
)

// FoldFailure records a fold that produced no result.
type FoldFailure struct {
	Fold   string `json:"fold"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// FoldError is a per-fold error tagged with the stage that raised it.
type FoldError struct {
	Stage string
	Err   error
}

// Error implements error.
func (e *FoldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *FoldError) Unwrap() error {
	return e.Err
}

// foldErr wraps err as fold-local unless it already carries a fatal class.
func foldErr(stage string, err error) error {
	if isFatal(err) {
		return err
	}
	if !errors.Is(err, ErrFoldData) {
		err = fmt.Errorf("%w: %w", ErrFoldData, err)
	}
	return &FoldError{Stage: stage, Err: err}
}

// configErr wraps err as a configuration error.
func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// isFatal reports whether err aborts the whole cell.
func isFatal(err error) bool {
	return errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrAggregation) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// failureOf converts a per-fold error into a FoldFailure.
func failureOf(fold string, err error) FoldFailure {
	f := FoldFailure{Fold: fold, Stage: StageFit, Reason: err.Error()}
	var fe *FoldError
	if errors.As(err, &fe) {
		f.Stage = fe.Stage
		f.Reason = fe.Err.Error()
	}
	return f
}
