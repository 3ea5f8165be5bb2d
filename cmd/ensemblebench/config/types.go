// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the experiment grid configuration.
package config

import (
	"github.com/AleutianAI/EnsembleBench/services/bench/engine"
	"github.com/AleutianAI/EnsembleBench/services/bench/registry"
	"github.com/AleutianAI/EnsembleBench/services/bench/telemetry"
)

// GridConfig is the YAML experiment grid.
type GridConfig struct {
	// Datasets are loaded from DataDir/{name}.
	Datasets []string `yaml:"datasets" validate:"required,min=1,dive,required,pathsafe"`

	NoiseLevels []int `yaml:"noise_levels" validate:"required,min=1,dive,min=0"`

	// Imbalance is an imbalance-correction id. Empty or "None" disables it.
	Imbalance string `yaml:"imbalance,omitempty" validate:"omitempty,pathsafe"`

	Generations []string `yaml:"generation" validate:"required,min=1,dive,required"`
	Selections  []string `yaml:"selection" validate:"required,min=1,dive,required"`

	PoolSize int    `yaml:"pool_size" validate:"min=1"`
	Workers  int    `yaml:"workers" validate:"min=1,max=256"`
	Seed     uint64 `yaml:"seed"`

	DataDir   string `yaml:"data_dir" validate:"required"`
	OutputDir string `yaml:"output_dir" validate:"required"`

	// BaselineParams maps dataset to fold name to the number of trees of
	// the fixed baseline.
	BaselineParams map[string]map[string]int `yaml:"baseline_params" validate:"dive,dive,min=1"`

	Sinks     SinksConfig      `yaml:"sinks"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// SinksConfig enables the result sinks. CSV tables go to OutputDir.
type SinksConfig struct {
	CSV    CSVConfig    `yaml:"csv"`
	Badger BadgerConfig `yaml:"badger"`
	Influx InfluxConfig `yaml:"influx"`
	GCS    GCSConfig    `yaml:"gcs"`
}

type CSVConfig struct {
	Enabled bool `yaml:"enabled"`
}

type BadgerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"required_if=Enabled true"`
}

type InfluxConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url" validate:"required_if=Enabled true,omitempty,url"`
	Org     string `yaml:"org" validate:"required_if=Enabled true"`
	Bucket  string `yaml:"bucket" validate:"required_if=Enabled true"`

	// TokenEnv names the environment variable holding the API token.
	TokenEnv string `yaml:"token_env,omitempty"`
}

type GCSConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket" validate:"required_if=Enabled true"`
	Prefix          string `yaml:"prefix,omitempty"`
	CredentialsFile string `yaml:"credentials_file,omitempty"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Dir   string `yaml:"dir,omitempty"`
	JSON  bool   `yaml:"json"`
}

// Overrides are command-line replacements for grid axes. Empty fields keep
// the configured value.
type Overrides struct {
	Datasets    []string
	Generations []string
	Selections  []string
	Workers     int
}

// Apply replaces the configured axes with the non-empty overrides.
func (c *GridConfig) Apply(o Overrides) {
	if len(o.Datasets) > 0 {
		c.Datasets = append([]string(nil), o.Datasets...)
	}
	if len(o.Generations) > 0 {
		c.Generations = append([]string(nil), o.Generations...)
	}
	if len(o.Selections) > 0 {
		c.Selections = append([]string(nil), o.Selections...)
	}
	if o.Workers > 0 {
		c.Workers = o.Workers
	}
}

// DriverConfig converts the grid into engine form. Slices and maps are
// copied so later edits to c do not reach a running Driver.
func (c *GridConfig) DriverConfig() engine.DriverConfig {
	params := make(map[string]map[string]int, len(c.BaselineParams))
	for ds, folds := range c.BaselineParams {
		m := make(map[string]int, len(folds))
		for f, n := range folds {
			m[f] = n
		}
		params[ds] = m
	}

	imb := registry.ID(c.Imbalance)
	if imb == registry.NoImbalance {
		imb = ""
	}

	return engine.DriverConfig{
		Datasets:       append([]string(nil), c.Datasets...),
		NoiseLevels:    append([]int(nil), c.NoiseLevels...),
		Imbalance:      imb,
		Generations:    ids(c.Generations),
		Selections:     ids(c.Selections),
		PoolSize:       c.PoolSize,
		Workers:        c.Workers,
		Seed:           c.Seed,
		BaselineParams: params,
	}
}

func ids(names []string) []registry.ID {
	out := make([]registry.ID, len(names))
	for i, n := range names {
		out[i] = registry.ID(n)
	}
	return out
}
