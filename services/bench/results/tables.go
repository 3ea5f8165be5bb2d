// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package results persists the Result Sets of the experiment grid.
//
// Every sink receives the same three tables per cell: the per-fold
// metrics table with Mean and Std rows, the per-class accuracy table and
// the merged confusion matrix. CSVSink and GCSSink write them as files,
// BadgerStore keeps a JSON summary for the HTTP API and InfluxSink emits
// one point per fold.
package results

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"path"
	"strconv"

	"github.com/AleutianAI/EnsembleBench/services/bench/engine"
)

// Sink receives every finished Result Set.
type Sink = engine.Sink

// Names are the identifying parts of a result location.
type Names struct {
	Dataset    string
	Imbalance  string
	Generation string
	Noise      int
	Selection  string
}

// NamesOf returns the names of a cell.
func NamesOf(c engine.Cell) Names {
	return Names{
		Dataset:    c.Dataset,
		Imbalance:  c.ImbalanceName(),
		Generation: string(c.Generation),
		Noise:      c.Noise,
		Selection:  string(c.Selection),
	}
}

// Dir returns "{dataset}/{imbalance}/{generation}/noise_{n}".
func (n Names) Dir() string {
	return path.Join(n.Dataset, n.Imbalance, n.Generation, fmt.Sprintf("noise_%d", n.Noise))
}

// Table suffixes appended to the selection name.
const (
	SuffixMetrics   = ""
	SuffixByClass   = "_by_class"
	SuffixConfusion = "_confusion"
)

// Table is one rendered CSV table.
type Table struct {
	// Name is the slash-separated path relative to the output root.
	Name string
	Rows [][]string
}

// Tables renders the three tables of a Result Set.
func Tables(rs *engine.ResultSet) []Table {
	n := NamesOf(rs.Cell)
	base := path.Join(n.Dir(), n.Selection)
	return []Table{
		{Name: base + SuffixMetrics + ".csv", Rows: metricsRows(rs.Table)},
		{Name: base + SuffixByClass + ".csv", Rows: byClassRows(rs.ByClass)},
		{Name: base + SuffixConfusion + ".csv", Rows: confusionRows(rs)},
	}
}

func metricsRows(t engine.MetricsTable) [][]string {
	rows := [][]string{append([]string{"Fold"}, t.Columns...)}
	for i, fold := range t.Folds {
		rows = append(rows, append([]string{fold}, formatAll(t.Rows[i])...))
	}
	rows = append(rows, append([]string{"Mean"}, formatAll(t.Mean)...))
	rows = append(rows, append([]string{"Std"}, formatAll(t.Std)...))
	return rows
}

func byClassRows(t engine.ClassAccuracyTable) [][]string {
	rows := [][]string{append([]string{"Fold"}, t.Classes...)}
	for i, fold := range t.Folds {
		rows = append(rows, append([]string{fold}, formatAll(t.Rows[i])...))
	}
	return rows
}

// confusionRows writes the raw matrix and its row-normalized variant.
func confusionRows(rs *engine.ResultSet) [][]string {
	rows := [][]string{append([]string{"kind", "true"}, rs.Classes...)}
	if rs.Confusion == nil {
		return rows
	}
	for i, class := range rs.Classes {
		raw := make([]float64, len(rs.Classes))
		for j := range raw {
			raw[j] = rs.Confusion.At(i, j)
		}
		rows = append(rows, append([]string{"count", class}, formatAll(raw)...))
	}
	for i, class := range rs.Classes {
		var total float64
		for j := range rs.Classes {
			total += rs.Confusion.At(i, j)
		}
		norm := make([]float64, len(rs.Classes))
		for j := range norm {
			if total > 0 {
				norm[j] = rs.Confusion.At(i, j) / total
			}
		}
		rows = append(rows, append([]string{"normalized", class}, formatAll(norm)...))
	}
	return rows
}

// formatFloat renders NaN as an empty cell.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatAll(v []float64) []string {
	out := make([]string, len(v))
	for i, x := range v {
		out[i] = formatFloat(x)
	}
	return out
}

// EncodeCSV renders rows as CSV.
func EncodeCSV(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	return buf.Bytes(), nil
}
