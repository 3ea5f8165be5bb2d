// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"

	"github.com/AleutianAI/EnsembleBench/services/bench/engine"
	"github.com/AleutianAI/EnsembleBench/services/bench/registry"
	"github.com/AleutianAI/EnsembleBench/services/bench/telemetry"
)

// referenceTrees is the per-fold tree count of the random forest baseline
// on the five smart-home datasets, in fold order.
var referenceTrees = map[string][]int{
	"HH103":           {70, 80, 80, 80, 50, 90},
	"HH124":           {60, 60, 30, 40, 60, 50},
	"HH129":           {90, 80, 80, 90, 80, 90},
	"Kyoto2008":       {50, 60, 20, 20, 20, 60},
	"Kyoto2009Spring": {100, 80, 90, 90, 90, 80},
}

// ReferenceDatasets lists the datasets of the reference grid.
func ReferenceDatasets() []string {
	return []string{"HH103", "HH124", "HH129", "Kyoto2008", "Kyoto2009Spring"}
}

// DefaultConfig reproduces the reference grid.
func DefaultConfig() GridConfig {
	return GridConfig{
		Datasets:       ReferenceDatasets(),
		NoiseLevels:    append([]int(nil), engine.DefaultNoiseLevels...),
		Generations:    names(registry.DefaultGenerations()),
		Selections:     names(registry.DefaultSelections()),
		PoolSize:       engine.DefaultPoolSize,
		Workers:        engine.DefaultWorkers,
		Seed:           42,
		DataDir:        "data",
		OutputDir:      "results",
		BaselineParams: ReferenceBaselineParams(),
		Sinks: SinksConfig{
			CSV:    CSVConfig{Enabled: true},
			Badger: BadgerConfig{Enabled: true, Path: "results/db"},
			Influx: InfluxConfig{URL: "http://localhost:8086", Org: "aleutian", Bucket: "ensemblebench", TokenEnv: "INFLUX_TOKEN"},
		},
		Telemetry: telemetry.DefaultConfig(),
		Logging:   LoggingConfig{Level: "info"},
	}
}

// ReferenceBaselineParams keys the reference tree table by dataset and
// fold name (Fold_1 upwards).
func ReferenceBaselineParams() map[string]map[string]int {
	out := make(map[string]map[string]int, len(referenceTrees))
	for ds, trees := range referenceTrees {
		folds := make(map[string]int, len(trees))
		for i, n := range trees {
			folds[fmt.Sprintf("Fold_%d", i+1)] = n
		}
		out[ds] = folds
	}
	return out
}

// applyDefaults fills unset scalar fields.
func (c *GridConfig) applyDefaults() {
	if len(c.NoiseLevels) == 0 {
		c.NoiseLevels = append([]int(nil), engine.DefaultNoiseLevels...)
	}
	if c.PoolSize == 0 {
		c.PoolSize = engine.DefaultPoolSize
	}
	if c.Workers == 0 {
		c.Workers = engine.DefaultWorkers
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.OutputDir == "" {
		c.OutputDir = "results"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "ensemblebench"
	}
}

func names(in []registry.ID) []string {
	out := make([]string, len(in))
	for i, id := range in {
		out[i] = string(id)
	}
	return out
}
