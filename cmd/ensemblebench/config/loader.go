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
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/EnsembleBench/services/bench/registry"
)

var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = fmt.Errorf("%w: invalid grid config", registry.ErrConfiguration)

	// ErrExists is returned by Write when the target exists and force is off.
	ErrExists = errors.New("config file already exists")
)

var gridValidate *validator.Validate

func init() {
	gridValidate = validator.New()

	// Dataset and strategy names become path segments of the result tree.
	_ = gridValidate.RegisterValidation("pathsafe", validatePathSafe)
}

func validatePathSafe(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

// Load reads and validates the grid at path. Unknown YAML keys are errors.
func Load(path string, reg *registry.Registry) (*GridConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the config file: %w", err)
	}
	return Parse(data, reg)
}

// Parse decodes and validates a YAML grid. Unset scalars take defaults.
func Parse(data []byte, reg *registry.Registry) (*GridConfig, error) {
	var cfg GridConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(reg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Write marshals cfg to path, creating parent directories.
func Write(path string, cfg GridConfig, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%w: %s", ErrExists, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks field constraints, then the cross-field rules: every id
// is registered in its family, and every dataset has baseline parameters
// when a fixed baseline is selected.
func (c *GridConfig) Validate(reg *registry.Registry) error {
	if err := gridValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, describe(err))
	}
	if reg == nil {
		return nil
	}

	var problems []string
	for _, id := range c.Generations {
		if _, err := reg.Lookup(registry.FamilyGeneration, registry.ID(id)); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if c.Imbalance != "" && registry.ID(c.Imbalance) != registry.NoImbalance {
		if _, err := reg.Lookup(registry.FamilyImbalance, registry.ID(c.Imbalance)); err != nil {
			problems = append(problems, err.Error())
		}
	}

	needsBaseline := false
	for _, id := range c.Selections {
		e, err := reg.Lookup(registry.FamilySelection, registry.ID(id))
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if e.Category == registry.CategoryFixedBaseline {
			needsBaseline = true
		}
	}
	if needsBaseline {
		for _, ds := range c.Datasets {
			if len(c.BaselineParams[ds]) == 0 {
				problems = append(problems, fmt.Sprintf("baseline_params has no folds for dataset %s", ds))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// describe flattens validator errors into "field: rule" pairs.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, len(verrs))
	for i, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "GridConfig.")
		if fe.Param() != "" {
			parts[i] = fmt.Sprintf("%s: %s=%s", field, fe.Tag(), fe.Param())
		} else {
			parts[i] = fmt.Sprintf("%s: %s", field, fe.Tag())
		}
	}
	return strings.Join(parts, "; ")
}
