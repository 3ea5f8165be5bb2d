// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/EnsembleBench/services/bench/engine"
	"github.com/AleutianAI/EnsembleBench/services/bench/metrics"
	"github.com/AleutianAI/EnsembleBench/services/bench/registry"
	"github.com/AleutianAI/EnsembleBench/services/bench/results"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func seededStore(t *testing.T) *results.BadgerStore {
	t.Helper()
	store, err := results.OpenBadgerStore(results.InMemoryBadgerConfig())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	for _, sel := range []registry.ID{registry.OLA, registry.Oracle} {
		rs := &engine.ResultSet{
			Cell:       engine.Cell{Dataset: "HH103", Generation: registry.SGH, Selection: sel},
			Classes:    []string{"A"},
			Deployable: sel != registry.Oracle,
			Table: engine.MetricsTable{
				Columns: metrics.Names,
				Folds:   []string{"Fold_1"},
				Rows:    [][]float64{{0.5, 0.5, 0.75, 0.5, 0.5, 0.5}},
				Mean:    []float64{0.5, 0.5, 0.75, 0.5, 0.5, 0.5},
				Std:     []float64{0, 0, 0, 0, 0, 0},
			},
			ByClass: engine.ClassAccuracyTable{Rows: [][]float64{{math.NaN()}}},
		}
		require.NoError(t, store.Save(context.Background(), rs))
	}
	return store
}

func get(t *testing.T, router http.Handler, url string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	return rec
}

func TestRoutes(t *testing.T) {
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("bench_cells_total 1\n"))
	})
	router := NewRouter(seededStore(t), registry.Default(), metricsHandler, nil)

	t.Run("health", func(t *testing.T) {
		rec := get(t, router, "/health")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("list", func(t *testing.T) {
		rec := get(t, router, "/v1/results?prefix=HH103/")
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Count   int         `json:"count"`
			Results []resultRow `json:"results"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 2, body.Count)
		assert.Equal(t, "HH103/None/SGH/0/OLA", body.Results[0].Key)
		assert.Equal(t, 0.75, body.Results[0].MeanAccuracy)

		rec = get(t, router, "/v1/results?deployable=true")
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 1, body.Count)
	})

	t.Run("get", func(t *testing.T) {
		rec := get(t, router, "/v1/results/HH103/None/SGH/0/Oracle")
		require.Equal(t, http.StatusOK, rec.Code)
		var sum results.Summary
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
		assert.False(t, sum.Deployable)
		assert.True(t, math.IsNaN(float64(sum.ByClass[0][0])))

		rec = get(t, router, "/v1/results/HH103/None/SGH/0/LCA")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("strategies", func(t *testing.T) {
		rec := get(t, router, "/v1/strategies?family=generation")
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Strategies []registry.Descriptor `json:"strategies"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Len(t, body.Strategies, 3)
	})

	t.Run("rate limit", func(t *testing.T) {
		limited := gin.New()
		limited.Use(rateLimit(rate.NewLimiter(0, 1)))
		SetupRoutes(limited, seededStore(t), registry.Default(), nil)

		assert.Equal(t, http.StatusOK, get(t, limited, "/v1/strategies").Code)
		rec := get(t, limited, "/v1/strategies")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
		assert.Equal(t, http.StatusOK, get(t, limited, "/health").Code)
	})

	t.Run("metrics", func(t *testing.T) {
		rec := get(t, router, "/metrics")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "bench_cells_total")
	})
}
