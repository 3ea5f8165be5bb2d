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
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/EnsembleBench/services/bench/registry"
	"github.com/AleutianAI/EnsembleBench/services/bench/results"
)

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// resultRow is one line of the result listing.
type resultRow struct {
	Key          string  `json:"key"`
	Degraded     bool    `json:"degraded"`
	Deployable   bool    `json:"deployable"`
	Folds        int     `json:"folds"`
	MeanAccuracy float64 `json:"mean_accuracy"`
	MeanMFM      float64 `json:"mean_mfm"`
}

// ListResults lists stored summaries under the optional ?prefix=.
// ?deployable=true drops strategies that read test labels.
func ListResults(store ResultReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		prefix := c.Query("prefix")
		onlyDeployable := c.Query("deployable") == "true"

		sums, err := store.List(c.Request.Context(), prefix)
		if err != nil {
			slog.Error("failed to list results", "prefix", prefix, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list results"})
			return
		}

		rows := make([]resultRow, 0, len(sums))
		for _, s := range sums {
			if onlyDeployable && !s.Deployable {
				continue
			}
			rows = append(rows, resultRow{
				Key:          s.Key,
				Degraded:     s.Degraded,
				Deployable:   s.Deployable,
				Folds:        len(s.Folds),
				MeanAccuracy: finite(s.MeanOf("Accuracy")),
				MeanMFM:      finite(s.MeanOf("MultiLabel-Fmeasure")),
			})
		}
		c.JSON(http.StatusOK, gin.H{"count": len(rows), "results": rows})
	}
}

// GetResult returns one stored summary.
func GetResult(store ResultReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimPrefix(c.Param("key"), "/")
		if key == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "result key is required"})
			return
		}

		sum, err := store.Get(c.Request.Context(), key)
		if errors.Is(err, results.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "result not found", "key": key})
			return
		}
		if err != nil {
			slog.Error("failed to read result", "key", key, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read result"})
			return
		}
		c.JSON(http.StatusOK, sum)
	}
}

// ListStrategies returns the registry, optionally filtered by ?family=.
func ListStrategies(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		if reg == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no registry configured"})
			return
		}
		family := registry.Family(c.Query("family"))
		c.JSON(http.StatusOK, gin.H{"strategies": reg.List(family)})
	}
}

// finite maps NaN to 0 so the listing stays valid JSON.
func finite(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
