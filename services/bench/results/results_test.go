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
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/EnsembleBench/services/bench/engine"
	"github.com/AleutianAI/EnsembleBench/services/bench/metrics"
	"github.com/AleutianAI/EnsembleBench/services/bench/registry"
)

func resultSet(selection string) *engine.ResultSet {
	nan := math.NaN()
	return &engine.ResultSet{
		Cell:          engine.Cell{Dataset: "HH103", Noise: 1, Generation: "SGH", Selection: registry.ID(selection)},
		Classes:       []string{"A", "B"},
		ExpectedFolds: 2,
		Deployable:    true,
		Confusion:     mat.NewDense(2, 2, []float64{3, 1, 0, 4}),
		Table: engine.MetricsTable{
			Columns: metrics.Names,
			Folds:   []string{"Fold_1", "Fold_2"},
			Rows:    [][]float64{{0.5, 0.4, 0.9, 0.6, 0.7, 0.65}, {0.6, 0.5, 0.8, 0.7, 0.6, 0.64}},
			Mean:    []float64{0.55, 0.45, 0.85, 0.65, 0.65, 0.645},
			Std:     []float64{0.07, 0.07, 0.07, 0.07, 0.07, 0.007},
		},
		ByClass: engine.ClassAccuracyTable{
			Classes: []string{"A", "B"},
			Folds:   []string{"Fold_1", "Fold_2"},
			Rows:    [][]float64{{1, nan}, {0.5, 1}},
		},
	}
}

func readCSV(t *testing.T, p string) [][]string {
	t.Helper()
	f, err := os.Open(p)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestNames(t *testing.T) {
	n := NamesOf(engine.Cell{Dataset: "HH103", Noise: 3, Generation: "SGH", Selection: "KNOP"})
	assert.Equal(t, "None", n.Imbalance)
	assert.Equal(t, "HH103/None/SGH/noise_3", n.Dir())
}

func TestCSVSink_Save(t *testing.T) {
	root := t.TempDir()
	sink := NewCSVSink(root, nil)
	require.NoError(t, sink.Save(context.Background(), resultSet("OLA")))

	dir := filepath.Join(root, "HH103", "None", "SGH", "noise_1")

	table := readCSV(t, filepath.Join(dir, "OLA.csv"))
	require.Len(t, table, 5)
	assert.Equal(t, append([]string{"Fold"}, metrics.Names...), table[0])
	assert.Equal(t, "Fold_1", table[1][0])
	assert.Equal(t, "0.9", table[1][3])
	assert.Equal(t, "Mean", table[3][0])
	assert.Equal(t, "Std", table[4][0])

	byClass := readCSV(t, filepath.Join(dir, "OLA_by_class.csv"))
	assert.Equal(t, []string{"Fold", "A", "B"}, byClass[0])
	assert.Equal(t, []string{"Fold_1", "1", ""}, byClass[1])

	cm := readCSV(t, filepath.Join(dir, "OLA_confusion.csv"))
	require.Len(t, cm, 5)
	assert.Equal(t, []string{"count", "A", "3", "1"}, cm[1])
	assert.Equal(t, []string{"normalized", "A", "0.75", "0.25"}, cm[3])
	assert.Equal(t, []string{"normalized", "B", "0", "1"}, cm[4])
}

func TestSummary_JSONHandlesNaN(t *testing.T) {
	s := Summarize(resultSet("OLA"), time.Unix(0, 0))
	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(b), "null")

	var back Summary
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, math.IsNaN(float64(back.ByClass[0][1])))
	assert.Equal(t, 0.5, float64(back.ByClass[1][0]))
	assert.InDelta(t, 0.85, back.MeanOf("Accuracy"), 1e-12)
	assert.True(t, math.IsNaN(back.MeanOf("nope")))
	assert.Equal(t, [][]float64{{3, 1}, {0, 4}}, back.Confusion)
}

func TestBadgerStore(t *testing.T) {
	ctx := context.Background()

	t.Run("save get list", func(t *testing.T) {
		store, err := OpenBadgerStore(InMemoryBadgerConfig())
		require.NoError(t, err)
		defer store.Close()

		require.NoError(t, store.Save(ctx, resultSet("OLA")))
		require.NoError(t, store.Save(ctx, resultSet("KNOP")))

		got, err := store.Get(ctx, "HH103/None/SGH/1/OLA")
		require.NoError(t, err)
		assert.Equal(t, "OLA", string(got.Cell.Selection))
		assert.Equal(t, []string{"Fold_1", "Fold_2"}, got.Folds)

		_, err = store.Get(ctx, "HH103/None/SGH/1/LCA")
		assert.True(t, errors.Is(err, ErrNotFound))

		all, err := store.List(ctx, "HH103/")
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "HH103/None/SGH/1/KNOP", all[0].Key)

		none, err := store.List(ctx, "HH124/")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("persists across reopen", func(t *testing.T) {
		cfg := DefaultBadgerConfig(filepath.Join(t.TempDir(), "db"))
		cfg.GCInterval = 10 * time.Millisecond
		store, err := OpenBadgerStore(cfg)
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, resultSet("MCB")))
		time.Sleep(30 * time.Millisecond)
		require.NoError(t, store.Close())

		store, err = OpenBadgerStore(cfg)
		require.NoError(t, err)
		defer store.Close()
		got, err := store.Get(ctx, "HH103/None/SGH/1/MCB")
		require.NoError(t, err)
		assert.True(t, got.Deployable)
	})

	t.Run("requires a path", func(t *testing.T) {
		_, err := OpenBadgerStore(BadgerConfig{})
		assert.Error(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		store, err := OpenBadgerStore(InMemoryBadgerConfig())
		require.NoError(t, err)
		defer store.Close()
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, store.Save(cctx, resultSet("OLA")), context.Canceled)
	})
}

type capturingWriter struct {
	mu     sync.Mutex
	points []*write.Point
	err    error
}

func (w *capturingWriter) WritePoint(_ context.Context, p ...*write.Point) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, p...)
	return w.err
}

func TestInfluxSink(t *testing.T) {
	w := &capturingWriter{}
	sink := NewInfluxSinkWithWriter(w, "run1")
	require.NoError(t, sink.Save(context.Background(), resultSet("OLA")))
	require.Len(t, w.points, 2)

	line := write.PointToLineProtocol(w.points[0], time.Nanosecond)
	assert.True(t, strings.HasPrefix(line, Measurement+","))
	assert.Contains(t, line, "fold=Fold_1")
	assert.Contains(t, line, "selection=OLA")
	assert.Contains(t, line, "run_id=run1")
	assert.Contains(t, line, "accuracy=0.9")

	w.err = errors.New("unavailable")
	assert.Error(t, sink.Save(context.Background(), resultSet("OLA")))

	_, err := NewInfluxSink(InfluxConfig{}, "")
	assert.Error(t, err)
}

type memUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (u *memUploader) Upload(_ context.Context, object string, data []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.objects == nil {
		u.objects = make(map[string][]byte)
	}
	u.objects[object] = data
	return nil
}

func TestGCSSink(t *testing.T) {
	u := &memUploader{}
	sink := NewGCSSinkWithUploader(u, "bench")
	require.NoError(t, sink.Save(context.Background(), resultSet("OLA")))

	assert.Len(t, u.objects, 3)
	data, ok := u.objects["bench/HH103/None/SGH/noise_1/OLA_by_class.csv"]
	require.True(t, ok)
	assert.Equal(t, "Fold,A,B\nFold_1,1,\nFold_2,0.5,1\n", string(data))
}

type failingSink struct{}

func (failingSink) Save(context.Context, *engine.ResultSet) error { return errors.New("boom") }

func TestMultiSink(t *testing.T) {
	u := &memUploader{}
	m := MultiSink{failingSink{}, NewGCSSinkWithUploader(u, "")}
	err := m.Save(context.Background(), resultSet("OLA"))
	assert.ErrorContains(t, err, "sink 0: boom")
	assert.Len(t, u.objects, 3, "later sinks still run")

	assert.NoError(t, MultiSink{}.Save(context.Background(), resultSet("OLA")))
}
