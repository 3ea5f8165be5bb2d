// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package results

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/AleutianAI/EnsembleBench/services/bench/engine"
)

// CSVSink writes the tables of every Result Set below Root.
//
// Thread Safety: Safe for concurrent use. Each cell writes its own files.
type CSVSink struct {
	Root   string
	Logger *slog.Logger
}

// NewCSVSink creates a sink writing below root.
func NewCSVSink(root string, logger *slog.Logger) *CSVSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVSink{Root: root, Logger: logger}
}

// Save writes {selection}.csv, {selection}_by_class.csv and
// {selection}_confusion.csv into the cell's directory.
func (s *CSVSink) Save(ctx context.Context, rs *engine.ResultSet) error {
	for _, t := range Tables(rs) {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := filepath.Join(s.Root, filepath.FromSlash(t.Name))
		if err := writeFile(p, t.Rows); err != nil {
			return err
		}
	}
	s.Logger.Debug("result tables written",
		slog.String("dir", filepath.Join(s.Root, filepath.FromSlash(NamesOf(rs.Cell).Dir()))),
		slog.String("selection", string(rs.Cell.Selection)),
	)
	return nil
}

func writeFile(p string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil {
		return fmt.Errorf("create result directory: %w", err)
	}
	f, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("create %s: %w", p, err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", p, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", p, err)
	}
	return nil
}
