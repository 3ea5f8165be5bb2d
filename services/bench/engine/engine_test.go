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
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/EnsembleBench/services/bench/dataset"
	"github.com/AleutianAI/EnsembleBench/services/bench/learn"
	"github.com/AleutianAI/EnsembleBench/services/bench/metrics"
	"github.com/AleutianAI/EnsembleBench/services/bench/registry"
)

// =============================================================================
// Fixtures
// =============================================================================

const marker = 1e9

func smallDataset(t *testing.T, folds int) *dataset.Dataset {
	t.Helper()
	cfg := dataset.SynthConfig{
		Name:         "tiny",
		Folds:        folds,
		Classes:      3,
		Features:     4,
		TrainPerFold: 60,
		TestPerFold:  30,
		NoiseLevels:  []int{0},
		Imbalance:    1.0,
		Spread:       0.5,
		Seed:         7,
	}
	ds, err := dataset.Synthesize(cfg)
	require.NoError(t, err)
	return ds
}

func baselineParams(ds *dataset.Dataset, trees int) map[string]map[string]int {
	m := make(map[string]int)
	for _, name := range ds.FoldNames() {
		m[name] = trees
	}
	return map[string]map[string]int{ds.Name: m}
}

// markedSampler fails on training sets whose first value is the marker.
type markedSampler struct{}

func (markedSampler) Resample(x [][]float64, y []int, _ *rand.Rand) ([][]float64, []int, error) {
	if len(x) > 0 && x[0][0] == marker {
		return nil, nil, errors.New("not enough neighbours")
	}
	return x, y, nil
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.Default()
	require.NoError(t, r.Register(registry.Entry{
		Descriptor: registry.Descriptor{ID: "Marked", Family: registry.FamilyImbalance},
		Imbalance:  markedSampler{},
	}))
	return r
}

// memorySink keeps saved result sets.
type memorySink struct {
	mu   sync.Mutex
	sets []*ResultSet
	fail bool
}

func (s *memorySink) Save(_ context.Context, rs *ResultSet) error {
	if s.fail {
		return errors.New("disk full")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets = append(s.sets, rs)
	return nil
}

func (s *memorySink) bySelection(id registry.ID) *ResultSet {
	for _, rs := range s.sets {
		if rs.Cell.Selection == id {
			return rs
		}
	}
	return nil
}

func foldResult(fold string, labels []int, data []float64) FoldResult {
	k := len(labels)
	return FoldResult{Fold: fold, Labels: labels, Confusion: mat.NewDense(k, k, data)}
}

// =============================================================================
// Aggregation
// =============================================================================

func TestEmbed_PrefixRoundTrip(t *testing.T) {
	cm := mat.NewDense(2, 2, []float64{3, 1, 0, 4})
	out := Embed(cm, 4)

	r, c := out.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 4, c)
	assert.True(t, mat.Equal(cm, out.Slice(0, 2, 0, 2)))
	assert.Equal(t, mat.Sum(cm), mat.Sum(out))
	for i := 2; i < 4; i++ {
		for j := 0; j < 4; j++ {
			assert.Zero(t, out.At(i, j))
			assert.Zero(t, out.At(j, i))
		}
	}
}

func TestAggregate_ThreeFoldScenario(t *testing.T) {
	classes := []string{"A", "B", "C"}
	results := []FoldResult{
		foldResult("Fold_1", []int{0, 1}, []float64{2, 1, 0, 3}),
		foldResult("Fold_2", []int{0, 1, 2}, []float64{1, 0, 0, 0, 2, 1, 0, 0, 1}),
		foldResult("Fold_3", []int{0}, []float64{4}),
	}
	for i := range results {
		labels := results[i].Labels
		results[i].Metrics = metrics.FromConfusion(labels, results[i].Confusion)
	}

	rs, err := Aggregate(Cell{Dataset: "d"}, results, nil, 3, classes)
	require.NoError(t, err)

	want := mat.NewDense(3, 3, []float64{
		7, 1, 0,
		0, 5, 1,
		0, 0, 1,
	})
	assert.True(t, mat.Equal(want, rs.Confusion))
	assert.Equal(t, 15.0, mat.Sum(rs.Confusion))
	assert.False(t, rs.Degraded)

	var sum float64
	for _, r := range results {
		sum += mat.Sum(r.Confusion)
	}
	assert.Equal(t, sum, mat.Sum(rs.Confusion))

	require.Len(t, rs.ByClass.Rows, 3)
	assert.True(t, math.IsNaN(rs.ByClass.Rows[0][2]), "C is absent from Fold_1")
	assert.True(t, math.IsNaN(rs.ByClass.Rows[2][1]))
	assert.InDelta(t, 2.0/3, rs.ByClass.Rows[1][1], 1e-12)
}

func TestAggregate_Rejects(t *testing.T) {
	classes := []string{"A", "B", "C"}
	tests := []struct {
		name   string
		result FoldResult
	}{
		{"gap in labels", foldResult("f", []int{0, 2}, []float64{1, 0, 0, 1})},
		{"too many labels", foldResult("f", []int{0, 1, 2, 3}, make([]float64, 16))},
		{"shape mismatch", FoldResult{Fold: "f", Labels: []int{0, 1}, Confusion: mat.NewDense(1, 1, []float64{1})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Aggregate(Cell{}, []FoldResult{tt.result}, nil, 1, classes)
			assert.True(t, errors.Is(err, ErrAggregation))
		})
	}

	_, err := Aggregate(Cell{}, nil, nil, 1, nil)
	assert.True(t, errors.Is(err, ErrAggregation))

	// A fold missing a middle class is rejected even when k < n.
	gap := foldResult("f", []int{0, 1, 2, 4}, make([]float64, 16))
	_, err = Aggregate(Cell{}, []FoldResult{gap}, nil, 1, []string{"A", "B", "C", "D", "E"})
	assert.True(t, errors.Is(err, ErrAggregation))
}

func TestAggregate_MetricsTable(t *testing.T) {
	results := []FoldResult{
		{Fold: "Fold_1", Metrics: metrics.Vector{Accuracy: 0.5}},
		{Fold: "Fold_2", Metrics: metrics.Vector{Accuracy: 0.7}},
	}
	rs, err := Aggregate(Cell{}, results, []FoldFailure{{Fold: "Fold_3"}}, 3, []string{"A"})
	require.NoError(t, err)

	assert.Equal(t, metrics.Names, rs.Table.Columns)
	assert.Equal(t, []string{"Fold_1", "Fold_2"}, rs.Table.Folds)
	assert.InDelta(t, 0.6, rs.Table.Mean[2], 1e-12)
	assert.InDelta(t, math.Sqrt(0.02), rs.Table.Std[2], 1e-12)
	assert.True(t, rs.Degraded)
}

// =============================================================================
// Executor
// =============================================================================

func TestMap_PreservesOrder(t *testing.T) {
	ex := NewExecutor(4, nil)
	out, errs, err := Map(context.Background(), ex, "test", 20, func(_ context.Context, i int) (int, error) {
		time.Sleep(time.Duration(20-i) * time.Millisecond / 4)
		return i * i, nil
	})
	require.NoError(t, err)
	for i := range out {
		assert.Equal(t, i*i, out[i])
		assert.NoError(t, errs[i])
	}
}

func TestMap_RunsInParallel(t *testing.T) {
	const workers = 3
	ex := NewExecutor(workers, nil)

	var started atomic.Int32
	all := make(chan struct{})
	var peak atomic.Int32
	var active atomic.Int32

	_, errs, err := Map(context.Background(), ex, "test", workers*2, func(ctx context.Context, i int) (int, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if i < workers {
			if started.Add(1) == workers {
				close(all)
			}
			select {
			case <-all:
			case <-time.After(5 * time.Second):
				return 0, errors.New("folds did not overlap")
			}
		}
		return i, nil
	})
	require.NoError(t, err)
	for _, e := range errs {
		assert.NoError(t, e)
	}
	assert.LessOrEqual(t, peak.Load(), int32(workers))
	assert.Equal(t, int32(workers), peak.Load())
}

func TestMap_Errors(t *testing.T) {
	ex := NewExecutor(2, nil)

	t.Run("fold errors are collected", func(t *testing.T) {
		out, errs, err := Map(context.Background(), ex, "test", 5, func(_ context.Context, i int) (int, error) {
			if i == 2 {
				return 0, foldErr(StageFit, errors.New("bad fold"))
			}
			return i + 1, nil
		})
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 0, 4, 5}, out)
		assert.True(t, errors.Is(errs[2], ErrFoldData))
	})

	t.Run("configuration errors abort", func(t *testing.T) {
		_, _, err := Map(context.Background(), ex, "test", 5, func(_ context.Context, i int) (int, error) {
			if i == 0 {
				return 0, configErr("broken")
			}
			return i, nil
		})
		assert.True(t, errors.Is(err, ErrConfiguration))
	})

	t.Run("cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, _, err := Map(ctx, ex, "test", 5, func(_ context.Context, i int) (int, error) { return i, nil })
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

// =============================================================================
// Pool generation and evaluation
// =============================================================================

func entry(t *testing.T, r *registry.Registry, id registry.ID) registry.Entry {
	t.Helper()
	e, err := r.Get(id)
	require.NoError(t, err)
	return e
}

func TestEvaluate_PredictionAlignment(t *testing.T) {
	ds := smallDataset(t, 2)
	fds, failed := BuildFoldData(ds, 0)
	require.Empty(t, failed)
	require.Len(t, fds, 2)

	r := registry.Default()
	cell := Cell{Dataset: ds.Name, Generation: registry.Bagging}
	gen := &PoolGenerator{PoolSize: 5, Seed: 1}
	pool, err := gen.Generate(context.Background(), cell, fds[0], entry(t, r, registry.Bagging), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, pool.Size())

	ev := &FoldEvaluator{Seed: 1}
	bag := entry(t, r, registry.Bagging).Descriptor
	for _, id := range []registry.ID{registry.OLA, registry.KNORAE, registry.METADES, registry.Oracle} {
		res, err := ev.Evaluate(context.Background(), cell, fds[0], pool, entry(t, r, id), bag, 0)
		require.NoError(t, err, id)
		assert.Len(t, res.Predictions, len(fds[0].XTest), id)
		assert.Equal(t, fds[0].YTest, res.Truth, id)
		assert.Equal(t, float64(len(fds[0].XTest)), mat.Sum(res.Confusion), id)
	}

	res, err := ev.Evaluate(context.Background(), cell, fds[0], nil, entry(t, r, registry.RandomForest), bag, 10)
	require.NoError(t, err)
	assert.Len(t, res.Predictions, len(fds[0].XTest))
}

func TestEvaluate_PoolTooSmall(t *testing.T) {
	ds := smallDataset(t, 1)
	fds, _ := BuildFoldData(ds, 0)
	r := registry.Default()

	gen := &PoolGenerator{PoolSize: 1, Seed: 1}
	cell := Cell{Dataset: ds.Name, Generation: registry.Bagging}
	pool, err := gen.Generate(context.Background(), cell, fds[0], entry(t, r, registry.Bagging), nil)
	require.NoError(t, err)

	ev := &FoldEvaluator{}
	_, err = ev.Evaluate(context.Background(), cell, fds[0], pool, entry(t, r, registry.OLA), registry.Descriptor{}, 0)
	assert.True(t, errors.Is(err, ErrConfiguration))

	_, err = ev.Evaluate(context.Background(), cell, fds[0], pool, entry(t, r, registry.Oracle), registry.Descriptor{}, 0)
	assert.NoError(t, err, "the oracle accepts a single member")

	_, err = ev.Evaluate(context.Background(), cell, fds[0], nil, entry(t, r, registry.RandomForest), registry.Descriptor{}, 0)
	assert.True(t, errors.Is(err, ErrConfiguration), "baseline needs a parameter")
}

func TestCalibrate_Idempotent(t *testing.T) {
	ds := smallDataset(t, 1)
	fds, _ := BuildFoldData(ds, 0)
	r := registry.Default()

	gen := &PoolGenerator{PoolSize: 10}
	pool, err := gen.Generate(context.Background(), Cell{Dataset: ds.Name}, fds[0], entry(t, r, registry.SGH), nil)
	require.NoError(t, err)

	once, err := Calibrate(pool)
	require.NoError(t, err)
	twice, err := Calibrate(once)
	require.NoError(t, err)

	assert.False(t, pool.Calibrated)
	assert.True(t, once.Calibrated)
	require.Len(t, twice.Members, len(once.Members))
	for i := range once.Members {
		assert.Same(t, once.Members[i], twice.Members[i])
		_, isCal := pool.Members[i].(*learn.Calibrated)
		assert.False(t, isCal, "original pool is untouched")
	}
}

func TestCalibrate_DegenerateFold(t *testing.T) {
	ds := smallDataset(t, 1)
	fds, _ := BuildFoldData(ds, 0)
	fd := fds[0]
	fd.YTrain = make([]int, len(fd.YTrain))
	fd.Fingerprint = learn.FingerprintOf(fd.XTrain, fd.YTrain)

	gen := &PoolGenerator{PoolSize: 3}
	r := registry.Default()
	pool, err := gen.Generate(context.Background(), Cell{}, fd, entry(t, r, registry.SGH), nil)
	require.NoError(t, err)

	_, err = Calibrate(pool)
	assert.True(t, errors.Is(err, ErrFoldData))
	var fe *FoldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, StageCalibrate, fe.Stage)
}

func TestCalibrate_UsesResampledTrainingSet(t *testing.T) {
	ds, err := dataset.Synthesize(dataset.SynthConfig{
		Name:         "skewed",
		Folds:        1,
		Classes:      3,
		Features:     4,
		TrainPerFold: 60,
		TestPerFold:  30,
		NoiseLevels:  []int{0},
		Imbalance:    0.5,
		Spread:       0.5,
		Seed:         11,
	})
	require.NoError(t, err)
	fds, failed := BuildFoldData(ds, 0)
	require.Empty(t, failed)
	fd := fds[0]

	r := registry.Default()
	cell := Cell{Dataset: ds.Name, Generation: registry.SGH, Imbalance: registry.RandomUnderSampler}
	under := entry(t, r, registry.RandomUnderSampler)
	gen := &PoolGenerator{PoolSize: 10, Seed: 3}
	pool, err := gen.Generate(context.Background(), cell, fd, entry(t, r, registry.SGH), &under)
	require.NoError(t, err)
	require.Less(t, len(pool.TrainY), len(fd.YTrain), "undersampling drops rows")
	assert.Equal(t, learn.FingerprintOf(pool.TrainX, pool.TrainY), pool.Fingerprint)
	assert.NotEqual(t, fd.Fingerprint, pool.Fingerprint)

	calibrated, err := Calibrate(pool)
	require.NoError(t, err)
	for i, m := range calibrated.Members {
		c, ok := m.(*learn.Calibrated)
		require.True(t, ok, "member %d", i)
		assert.Equal(t, pool.Fingerprint, c.Fingerprint(), "member %d", i)
	}

	ev := &FoldEvaluator{Seed: 3}
	res, err := ev.Evaluate(context.Background(), cell, fd, pool, entry(t, r, registry.METADES),
		entry(t, r, registry.SGH).Descriptor, 0)
	require.NoError(t, err)
	assert.Len(t, res.Predictions, len(fd.XTest))

	_, err = Calibrate(&Pool{Fold: fd.Fold, Members: pool.Members})
	assert.True(t, errors.Is(err, ErrFoldData), "a pool without training data cannot be calibrated")
}

func TestBuildFoldData_MissingNoise(t *testing.T) {
	ds := smallDataset(t, 2)
	fds, failed := BuildFoldData(ds, 3)
	assert.Empty(t, fds)
	require.Len(t, failed, 2)
	assert.Equal(t, StagePrepare, failed[0].Stage)
}

func TestDeriveSeed(t *testing.T) {
	assert.Equal(t, DeriveSeed(1, "a", "b"), DeriveSeed(1, "a", "b"))
	assert.NotEqual(t, DeriveSeed(1, "a", "b"), DeriveSeed(2, "a", "b"))
	assert.NotEqual(t, DeriveSeed(1, "ab"), DeriveSeed(1, "a", "b"))
}

// =============================================================================
// Driver
// =============================================================================

func TestDriver_ResamplingFailureDegradesCell(t *testing.T) {
	ds := smallDataset(t, 5)
	ds.Folds[2].XTrain[0][0] = marker
	sink := &memorySink{}

	d, err := NewDriver(DriverConfig{
		Datasets:       []string{ds.Name},
		NoiseLevels:    []int{0},
		Imbalance:      "Marked",
		Generations:    []registry.ID{registry.Bagging},
		Selections:     []registry.ID{registry.RandomForest, registry.KNORAU},
		PoolSize:       4,
		Workers:        3,
		BaselineParams: baselineParams(ds, 5),
	}, dataset.NewMemoryStore(ds), testRegistry(t), []Sink{sink}, nil)
	require.NoError(t, err)

	summary, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, summary.RunID, 12)
	require.Len(t, summary.Cells, 2)

	knora := sink.bySelection(registry.KNORAU)
	require.NotNil(t, knora)
	assert.Len(t, knora.Folds, 4)
	assert.True(t, knora.Degraded)
	require.Len(t, knora.Failures, 1)
	assert.Equal(t, "Fold_3", knora.Failures[0].Fold)
	assert.Equal(t, StageResample, knora.Failures[0].Stage)
	assert.Equal(t, []string{"Fold_1", "Fold_2", "Fold_4", "Fold_5"}, knora.Table.Folds)
	assert.Equal(t, float64(len(knora.Truth)), mat.Sum(knora.Confusion))

	rf := sink.bySelection(registry.RandomForest)
	require.NotNil(t, rf)
	assert.Len(t, rf.Folds, 5, "the baseline does not use the pool")
	assert.False(t, rf.Degraded)

	assert.Equal(t, 1, summary.Count(StatusDegraded))
	assert.Equal(t, 1, summary.Count(StatusCompleted))
}

func TestDriver_PoolSizeOneSkipsCell(t *testing.T) {
	ds := smallDataset(t, 2)
	sink := &memorySink{}
	d, err := NewDriver(DriverConfig{
		Datasets:       []string{ds.Name},
		NoiseLevels:    []int{0},
		Generations:    []registry.ID{registry.Bagging},
		Selections:     []registry.ID{registry.OLA, registry.RandomForest},
		PoolSize:       1,
		BaselineParams: baselineParams(ds, 5),
	}, dataset.NewMemoryStore(ds), registry.Default(), []Sink{sink}, nil)
	require.NoError(t, err)

	summary, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Cells, 2)
	assert.Equal(t, StatusSkipped, summary.Cells[0].Status)
	assert.Contains(t, summary.Cells[0].Reason, "configuration")
	assert.Equal(t, StatusCompleted, summary.Cells[1].Status)
	assert.Len(t, sink.sets, 1)
}

func TestDriver_DeterministicAcrossWorkers(t *testing.T) {
	ds := smallDataset(t, 4)
	run := func(workers int) *ResultSet {
		sink := &memorySink{}
		d, err := NewDriver(DriverConfig{
			Datasets:    []string{ds.Name},
			NoiseLevels: []int{0},
			Generations: []registry.ID{registry.Bagging},
			Selections:  []registry.ID{registry.KNORAE},
			PoolSize:    5,
			Workers:     workers,
			Seed:        42,
		}, dataset.NewMemoryStore(ds), registry.Default(), []Sink{sink}, nil)
		require.NoError(t, err)
		_, err = d.Run(context.Background())
		require.NoError(t, err)
		require.Len(t, sink.sets, 1)
		return sink.sets[0]
	}

	serial, parallel := run(1), run(4)
	assert.Equal(t, serial.Predictions, parallel.Predictions)
	assert.Equal(t, serial.Table.Folds, parallel.Table.Folds)
	assert.Equal(t, ds.FoldNames(), parallel.Table.Folds)
	assert.True(t, mat.Equal(serial.Confusion, parallel.Confusion))
}

func TestDriver_ConfigurationAndPersistence(t *testing.T) {
	ds := smallDataset(t, 2)
	store := dataset.NewMemoryStore(ds)

	t.Run("unknown strategy aborts the run", func(t *testing.T) {
		d, err := NewDriver(DriverConfig{Datasets: []string{ds.Name}, Selections: []registry.ID{"Nope"}},
			store, registry.Default(), nil, nil)
		require.NoError(t, err)
		_, err = d.Run(context.Background())
		assert.True(t, errors.Is(err, ErrConfiguration))
	})

	t.Run("missing dependencies", func(t *testing.T) {
		_, err := NewDriver(DriverConfig{}, nil, registry.Default(), nil, nil)
		assert.True(t, errors.Is(err, ErrConfiguration))
	})

	t.Run("missing dataset skips its cells", func(t *testing.T) {
		d, err := NewDriver(DriverConfig{
			Datasets:    []string{"absent"},
			NoiseLevels: []int{0, 1},
			Generations: []registry.ID{registry.Bagging},
			Selections:  []registry.ID{registry.OLA},
		}, store, registry.Default(), nil, nil)
		require.NoError(t, err)
		summary, err := d.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Count(StatusSkipped))
	})

	t.Run("persistence failures are counted", func(t *testing.T) {
		d, err := NewDriver(DriverConfig{
			Datasets:       []string{ds.Name},
			NoiseLevels:    []int{0},
			Generations:    []registry.ID{registry.Bagging},
			Selections:     []registry.ID{registry.RandomForest},
			BaselineParams: baselineParams(ds, 3),
			RunID:          "run-fixed",
		}, store, registry.Default(), []Sink{&memorySink{fail: true}}, nil)
		require.NoError(t, err)
		summary, err := d.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "run-fixed", summary.RunID)
		assert.Equal(t, 1, summary.PersistFailures)
		assert.Equal(t, 1, summary.Count(StatusCompleted))
	})

	t.Run("missing baseline parameter skips the cell", func(t *testing.T) {
		d, err := NewDriver(DriverConfig{
			Datasets:    []string{ds.Name},
			NoiseLevels: []int{0},
			Generations: []registry.ID{registry.Bagging},
			Selections:  []registry.ID{registry.RandomForest},
		}, store, registry.Default(), nil, nil)
		require.NoError(t, err)
		summary, err := d.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Count(StatusSkipped))
	})
}

func TestCell_Key(t *testing.T) {
	c := Cell{Dataset: "HH103", Noise: 2, Generation: "SGH", Selection: "OLA"}
	assert.Equal(t, "HH103/None/SGH/2/OLA", c.Key())
	c.Imbalance = "SMOTE"
	assert.Equal(t, "HH103/SMOTE/SGH/2/OLA", c.Key())
}
