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
	"bytes"
	"encoding/json"
	"math"
	"time"

	"github.com/AleutianAI/EnsembleBench/services/bench/engine"
)

// Float is a float64 that encodes NaN as JSON null.
type Float float64

// MarshalJSON implements json.Marshaler.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Float) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = Float(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

func floats(v []float64) []Float {
	out := make([]Float, len(v))
	for i, x := range v {
		out[i] = Float(x)
	}
	return out
}

func floatRows(rows [][]float64) [][]Float {
	out := make([][]Float, len(rows))
	for i, r := range rows {
		out[i] = floats(r)
	}
	return out
}

// Summary is the stored form of a Result Set. Per-sample predictions are
// left out.
type Summary struct {
	Key           string               `json:"key"`
	Cell          engine.Cell          `json:"cell"`
	Classes       []string             `json:"classes"`
	ExpectedFolds int                  `json:"expected_folds"`
	Degraded      bool                 `json:"degraded"`
	Deployable    bool                 `json:"deployable"`
	Failures      []engine.FoldFailure `json:"failures,omitempty"`

	Columns []string  `json:"columns"`
	Folds   []string  `json:"folds"`
	Rows    [][]Float `json:"rows"`
	Mean    []Float   `json:"mean"`
	Std     []Float   `json:"std"`

	ByClass   [][]Float   `json:"by_class"`
	Confusion [][]float64 `json:"confusion"`

	SavedAt time.Time `json:"saved_at"`
}

// Summarize converts a Result Set.
func Summarize(rs *engine.ResultSet, now time.Time) Summary {
	s := Summary{
		Key:           rs.Cell.Key(),
		Cell:          rs.Cell,
		Classes:       rs.Classes,
		ExpectedFolds: rs.ExpectedFolds,
		Degraded:      rs.Degraded,
		Deployable:    rs.Deployable,
		Failures:      rs.Failures,
		Columns:       rs.Table.Columns,
		Folds:         rs.Table.Folds,
		Rows:          floatRows(rs.Table.Rows),
		Mean:          floats(rs.Table.Mean),
		Std:           floats(rs.Table.Std),
		ByClass:       floatRows(rs.ByClass.Rows),
		SavedAt:       now.UTC(),
	}
	if rs.Confusion != nil {
		r, c := rs.Confusion.Dims()
		s.Confusion = make([][]float64, r)
		for i := 0; i < r; i++ {
			s.Confusion[i] = make([]float64, c)
			for j := 0; j < c; j++ {
				s.Confusion[i][j] = rs.Confusion.At(i, j)
			}
		}
	}
	return s
}

// MeanOf returns the mean of a metric column, NaN if absent.
func (s Summary) MeanOf(column string) float64 {
	for j, c := range s.Columns {
		if c == column && j < len(s.Mean) {
			return float64(s.Mean[j])
		}
	}
	return math.NaN()
}
