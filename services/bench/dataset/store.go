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
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Store supplies datasets split into pre-defined folds.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the dataset registered under name.
	//
	// Inputs:
	//   - ctx: Context for cancellation. Must not be nil.
	//   - name: Dataset identifier.
	//
	// Outputs:
	//   - *Dataset: Folds, canonical class list and label encoding.
	//   - error: ErrDatasetNotFound if unknown, or a parse error.
	Load(ctx context.Context, name string) (*Dataset, error)
}

// =============================================================================
// MemoryStore
// =============================================================================

// MemoryStore keeps datasets in memory. Used by tests and by synth runs.
type MemoryStore struct {
	mu       sync.RWMutex
	datasets map[string]*Dataset
}

// NewMemoryStore creates a store holding the given datasets.
func NewMemoryStore(datasets ...*Dataset) *MemoryStore {
	s := &MemoryStore{datasets: make(map[string]*Dataset, len(datasets))}
	for _, d := range datasets {
		s.datasets[d.Name] = d
	}
	return s
}

// Put adds or replaces a dataset.
func (s *MemoryStore) Put(d *Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[d.Name] = d
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context, name string) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.datasets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, name)
	}
	return d, nil
}

// =============================================================================
// DirStore
// =============================================================================

const (
	trainFile        = "train.csv"
	testFile         = "test.csv"
	foldDirPrefix    = "fold_"
	noiseColumnStart = "noise_"
	labelColumn      = "label"
)

// DirStore reads datasets from a directory tree of CSV files.
//
// Description:
//
//	Layout: {root}/{dataset}/fold_{i}/train.csv and test.csv. The training
//	file carries feature columns followed by one noise_{level} column per
//	label variant. The test file carries feature columns followed by a
//	"label" column. Folds are named Fold_{i} and ordered numerically.
type DirStore struct {
	root string
}

// NewDirStore creates a store rooted at dir.
func NewDirStore(dir string) *DirStore {
	return &DirStore{root: dir}
}

// Root returns the store's root directory.
func (s *DirStore) Root() string {
	return s.root
}

// Load implements Store.
func (s *DirStore) Load(ctx context.Context, name string) (*Dataset, error) {
	dir := filepath.Join(s.root, name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, name)
		}
		return nil, fmt.Errorf("read dataset directory %s: %w", dir, err)
	}

	type foldDir struct {
		index int
		path  string
	}
	var dirs []foldDir
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), foldDirPrefix) {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(entry.Name(), foldDirPrefix))
		if err != nil {
			continue
		}
		dirs = append(dirs, foldDir{index: idx, path: filepath.Join(dir, entry.Name())})
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("%w: %s has no fold directories", ErrDatasetNotFound, name)
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].index < dirs[j].index })

	folds := make([]Fold, 0, len(dirs))
	for _, fd := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fold, err := readFold(fd.path, fmt.Sprintf("Fold_%d", fd.index))
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", name, err)
		}
		folds = append(folds, fold)
	}
	return NewDataset(name, folds)
}

func readFold(dir, name string) (Fold, error) {
	fold := Fold{Name: name, YTrainVariants: make(map[int][]string)}

	header, rows, err := readCSV(filepath.Join(dir, trainFile))
	if err != nil {
		return fold, err
	}
	featureCols, noiseCols := splitTrainHeader(header)
	if featureCols == 0 || len(noiseCols) == 0 {
		return fold, fmt.Errorf("%w: %s/%s needs feature and noise_* columns", ErrInvalidFold, name, trainFile)
	}
	fold.XTrain = make([][]float64, len(rows))
	for i, row := range rows {
		vec, err := parseFeatures(row[:featureCols])
		if err != nil {
			return fold, fmt.Errorf("%s/%s row %d: %w", name, trainFile, i+1, err)
		}
		fold.XTrain[i] = vec
		for j, level := range noiseCols {
			fold.YTrainVariants[level] = append(fold.YTrainVariants[level], row[featureCols+j])
		}
	}

	header, rows, err = readCSV(filepath.Join(dir, testFile))
	if err != nil {
		return fold, err
	}
	if len(header) < 2 || header[len(header)-1] != labelColumn {
		return fold, fmt.Errorf("%w: %s/%s must end with a %q column", ErrInvalidFold, name, testFile, labelColumn)
	}
	if len(header)-1 != featureCols {
		return fold, fmt.Errorf("%w: %s feature count differs between train (%d) and test (%d)",
			ErrInvalidFold, name, featureCols, len(header)-1)
	}
	fold.XTest = make([][]float64, len(rows))
	fold.YTest = make([]string, len(rows))
	for i, row := range rows {
		vec, err := parseFeatures(row[:featureCols])
		if err != nil {
			return fold, fmt.Errorf("%s/%s row %d: %w", name, testFile, i+1, err)
		}
		fold.XTest[i] = vec
		fold.YTest[i] = row[featureCols]
	}
	return fold, fold.Validate()
}

// splitTrainHeader returns the number of leading feature columns and the
// noise levels of the trailing label columns.
func splitTrainHeader(header []string) (int, []int) {
	featureCols := 0
	var levels []int
	for _, col := range header {
		if strings.HasPrefix(col, noiseColumnStart) {
			level, err := strconv.Atoi(strings.TrimPrefix(col, noiseColumnStart))
			if err == nil {
				levels = append(levels, level)
				continue
			}
		}
		if len(levels) > 0 {
			// Feature columns after label columns are malformed.
			return 0, nil
		}
		featureCols++
	}
	return featureCols, levels
}

func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = false
	header, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header %s: %w", path, err)
	}
	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", path, err)
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

func parseFeatures(cols []string) ([]float64, error) {
	vec := make([]float64, len(cols))
	for i, c := range cols {
		v, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		vec[i] = v
	}
	return vec, nil
}

// WriteDir writes a dataset in the DirStore layout under root.
//
// Description:
//
//	Used by the synth command so generated datasets can be loaded back
//	with DirStore. Existing files are overwritten.
func WriteDir(root string, d *Dataset) error {
	for i := range d.Folds {
		f := &d.Folds[i]
		dir := filepath.Join(root, d.Name, fmt.Sprintf("%s%d", foldDirPrefix, i+1))
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("create fold directory %s: %w", dir, err)
		}
		if err := writeTrain(filepath.Join(dir, trainFile), f); err != nil {
			return err
		}
		if err := writeTest(filepath.Join(dir, testFile), f); err != nil {
			return err
		}
	}
	return nil
}

func featureHeader(dim int) []string {
	header := make([]string, dim)
	for i := range header {
		header[i] = "f" + strconv.Itoa(i)
	}
	return header
}

func formatRow(x []float64) []string {
	row := make([]string, len(x))
	for i, v := range x {
		row[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return row
}

func writeTrain(path string, f *Fold) error {
	dim := 0
	if len(f.XTrain) > 0 {
		dim = len(f.XTrain[0])
	}
	levels := f.NoiseLevels()
	header := featureHeader(dim)
	for _, level := range levels {
		header = append(header, noiseColumnStart+strconv.Itoa(level))
	}
	rows := make([][]string, len(f.XTrain))
	for i, x := range f.XTrain {
		row := formatRow(x)
		for _, level := range levels {
			row = append(row, f.YTrainVariants[level][i])
		}
		rows[i] = row
	}
	return writeCSV(path, header, rows)
}

func writeTest(path string, f *Fold) error {
	dim := 0
	if len(f.XTest) > 0 {
		dim = len(f.XTest[0])
	}
	header := append(featureHeader(dim), labelColumn)
	rows := make([][]string, len(f.XTest))
	for i, x := range f.XTest {
		rows[i] = append(formatRow(x), f.YTest[i])
	}
	return writeCSV(path, header, rows)
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write header %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write rows %s: %w", path, err)
	}
	return f.Close()
}
