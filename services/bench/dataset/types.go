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
	"sort"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrDatasetNotFound is returned when a store has no dataset under a name.
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrInvalidFold is returned when a fold violates its length invariants.
	ErrInvalidFold = errors.New("invalid fold")

	// ErrUnknownClass is returned when a label is not part of the encoding.
	ErrUnknownClass = errors.New("unknown class label")

	// ErrMissingNoiseLevel is returned when a fold lacks a requested label variant.
	ErrMissingNoiseLevel = errors.New("noise level not available")
)

// -----------------------------------------------------------------------------
// Fold
// -----------------------------------------------------------------------------

// Fold is one pre-defined cross-validation split.
//
// Description:
//
//	XTrain and XTest are row-major feature matrices. YTrainVariants holds one
//	training label sequence per noise level, because label corruption is
//	injected upstream for each level independently. YTest is always clean.
//
// Thread Safety: Immutable once loaded. Safe for concurrent reads.
type Fold struct {
	// Name is the fold identifier, e.g. "Fold_1".
	Name string

	// XTrain holds the training feature vectors.
	XTrain [][]float64

	// XTest holds the test feature vectors.
	XTest [][]float64

	// YTest holds the true test labels aligned with XTest.
	YTest []string

	// YTrainVariants maps a noise level to labels aligned with XTrain.
	YTrainVariants map[int][]string
}

// Validate checks the fold's length invariants.
//
// Outputs:
//   - error: nil if valid, ErrInvalidFold with details otherwise.
func (f *Fold) Validate() error {
	if len(f.XTest) != len(f.YTest) {
		return fmt.Errorf("%w: %s has %d test rows and %d test labels",
			ErrInvalidFold, f.Name, len(f.XTest), len(f.YTest))
	}
	for level, labels := range f.YTrainVariants {
		if len(labels) != len(f.XTrain) {
			return fmt.Errorf("%w: %s noise level %d has %d labels for %d training rows",
				ErrInvalidFold, f.Name, level, len(labels), len(f.XTrain))
		}
	}
	return nil
}

// TrainLabels returns the training labels for a noise level.
//
// Outputs:
//   - []string: The label variant. Shared with the fold, do not modify.
//   - error: ErrMissingNoiseLevel if the fold has no such variant.
func (f *Fold) TrainLabels(noise int) ([]string, error) {
	labels, ok := f.YTrainVariants[noise]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no level %d", ErrMissingNoiseLevel, f.Name, noise)
	}
	return labels, nil
}

// NoiseLevels returns the noise levels present in the fold in ascending order.
func (f *Fold) NoiseLevels() []int {
	levels := make([]int, 0, len(f.YTrainVariants))
	for level := range f.YTrainVariants {
		levels = append(levels, level)
	}
	sort.Ints(levels)
	return levels
}

// -----------------------------------------------------------------------------
// Label Encoding
// -----------------------------------------------------------------------------

// LabelEncoding is a bijection between raw class names and dense indices.
//
// Description:
//
//	Classes is the canonical ordered class list. Index i is the numeric
//	label of Classes[i]. Encodings built by NewLabelEncoding order classes by
//	descending example count so that the classes a fold is most likely to
//	lack always carry the highest indices. Confusion-matrix aggregation
//	depends on that prefix property.
//
// Thread Safety: Immutable. Safe for concurrent use.
type LabelEncoding struct {
	classes []string
	index   map[string]int
}

// NewLabelEncoding builds an encoding from per-class example counts.
//
// Inputs:
//   - counts: Number of examples observed per class name.
//
// Outputs:
//   - *LabelEncoding: Classes sorted by count descending, then name ascending.
func NewLabelEncoding(counts map[string]int) *LabelEncoding {
	classes := make([]string, 0, len(counts))
	for name := range counts {
		classes = append(classes, name)
	}
	sort.Slice(classes, func(i, j int) bool {
		if counts[classes[i]] != counts[classes[j]] {
			return counts[classes[i]] > counts[classes[j]]
		}
		return classes[i] < classes[j]
	})
	return NewOrderedEncoding(classes)
}

// NewOrderedEncoding builds an encoding that keeps the given class order.
func NewOrderedEncoding(classes []string) *LabelEncoding {
	e := &LabelEncoding{
		classes: append([]string(nil), classes...),
		index:   make(map[string]int, len(classes)),
	}
	for i, name := range e.classes {
		e.index[name] = i
	}
	return e
}

// Classes returns a copy of the canonical class list.
func (e *LabelEncoding) Classes() []string {
	return append([]string(nil), e.classes...)
}

// Len returns the number of classes.
func (e *LabelEncoding) Len() int {
	return len(e.classes)
}

// Index returns the numeric label of a class name.
func (e *LabelEncoding) Index(name string) (int, bool) {
	i, ok := e.index[name]
	return i, ok
}

// Name returns the class name of a numeric label.
func (e *LabelEncoding) Name(label int) (string, bool) {
	if label < 0 || label >= len(e.classes) {
		return "", false
	}
	return e.classes[label], true
}

// Encode converts raw labels into numeric labels.
//
// Outputs:
//   - []int: Numeric labels aligned with the input.
//   - error: ErrUnknownClass for the first label outside the encoding.
func (e *LabelEncoding) Encode(labels []string) ([]int, error) {
	out := make([]int, len(labels))
	for i, name := range labels {
		idx, ok := e.index[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownClass, name)
		}
		out[i] = idx
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Dataset
// -----------------------------------------------------------------------------

// Dataset bundles a dataset's folds with its label encoding.
type Dataset struct {
	// Name identifies the dataset, e.g. "HH103".
	Name string

	// Folds are the pre-defined splits in fold order.
	Folds []Fold

	// Encoding maps class names to numeric labels.
	Encoding *LabelEncoding
}

// Classes returns the canonical class list (activities list).
func (d *Dataset) Classes() []string {
	return d.Encoding.Classes()
}

// FoldNames returns the fold names in fold order.
func (d *Dataset) FoldNames() []string {
	names := make([]string, len(d.Folds))
	for i := range d.Folds {
		names[i] = d.Folds[i].Name
	}
	return names
}

// Validate checks every fold and ensures all labels are encodable.
func (d *Dataset) Validate() error {
	if d.Encoding == nil {
		return fmt.Errorf("dataset %s: missing label encoding", d.Name)
	}
	for i := range d.Folds {
		f := &d.Folds[i]
		if err := f.Validate(); err != nil {
			return fmt.Errorf("dataset %s: %w", d.Name, err)
		}
		if _, err := d.Encoding.Encode(f.YTest); err != nil {
			return fmt.Errorf("dataset %s %s test labels: %w", d.Name, f.Name, err)
		}
		for _, level := range f.NoiseLevels() {
			if _, err := d.Encoding.Encode(f.YTrainVariants[level]); err != nil {
				return fmt.Errorf("dataset %s %s noise %d: %w", d.Name, f.Name, level, err)
			}
		}
	}
	return nil
}

// countClasses tallies clean labels across all folds: test labels plus the
// level-0 training labels (or the lowest level present).
func countClasses(folds []Fold) map[string]int {
	counts := make(map[string]int)
	for i := range folds {
		for _, y := range folds[i].YTest {
			counts[y]++
		}
		levels := folds[i].NoiseLevels()
		if len(levels) == 0 {
			continue
		}
		for _, y := range folds[i].YTrainVariants[levels[0]] {
			counts[y]++
		}
	}
	// Labels that only appear in noisy variants still need an index.
	for i := range folds {
		for _, labels := range folds[i].YTrainVariants {
			for _, y := range labels {
				if _, ok := counts[y]; !ok {
					counts[y] = 0
				}
			}
		}
	}
	return counts
}

// NewDataset assembles and validates a dataset, deriving its encoding from
// the folds' label frequencies.
func NewDataset(name string, folds []Fold) (*Dataset, error) {
	d := &Dataset{
		Name:     name,
		Folds:    folds,
		Encoding: NewLabelEncoding(countClasses(folds)),
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}
