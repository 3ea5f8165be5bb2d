// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry enumerates the generation, selection and imbalance
// strategies of the benchmark.
//
// Every strategy is registered with a Descriptor that declares its identity
// and capabilities explicitly. The experiment engine dispatches on those
// declarations (category, probability needs, minimum pool size) and never
// on runtime type probing or error recovery.
package registry

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/EnsembleBench/services/bench/generation"
	"github.com/AleutianAI/EnsembleBench/services/bench/imbalance"
	"github.com/AleutianAI/EnsembleBench/services/bench/selection"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrConfiguration marks errors caused by an invalid experiment setup.
	// They are fatal to a grid cell.
	ErrConfiguration = errors.New("configuration error")

	// ErrUnknownStrategy is returned for an id that is not registered.
	ErrUnknownStrategy = fmt.Errorf("%w: unknown strategy", ErrConfiguration)

	// ErrAlreadyRegistered is returned when an id is registered twice.
	ErrAlreadyRegistered = fmt.Errorf("%w: strategy already registered", ErrConfiguration)

	// ErrInvalidDescriptor is returned when a descriptor does not match
	// the strategy registered with it.
	ErrInvalidDescriptor = fmt.Errorf("%w: invalid strategy descriptor", ErrConfiguration)
)

// -----------------------------------------------------------------------------
// Identity
// -----------------------------------------------------------------------------

// ID identifies a strategy. It is also the name used in result paths.
type ID string

// NoImbalance is the imbalance id used in result paths when no corrector
// is applied.
const NoImbalance ID = "None"

// Family groups strategies by role.
type Family string

const (
	FamilyGeneration Family = "generation"
	FamilySelection  Family = "selection"
	FamilyImbalance  Family = "imbalance"
)

// Category is the input contract of a selection strategy.
type Category int

const (
	// CategoryNone is used by generation and imbalance strategies.
	CategoryNone Category = iota

	// CategoryFixedBaseline ignores the pool and trains its own model.
	CategoryFixedBaseline

	// CategoryDCS selects a single member per query.
	CategoryDCS

	// CategoryDES selects and combines several members per query.
	CategoryDES

	// CategoryOracle needs the true test labels at prediction time.
	CategoryOracle
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryFixedBaseline:
		return "baseline"
	case CategoryDCS:
		return "dcs"
	case CategoryDES:
		return "des"
	case CategoryOracle:
		return "oracle"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(b []byte) error {
	v, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseCategory is the inverse of Category.String.
func ParseCategory(s string) (Category, error) {
	for c := CategoryNone; c <= CategoryOracle; c++ {
		if c.String() == s {
			return c, nil
		}
	}
	return CategoryNone, fmt.Errorf("%w: unknown category %q", ErrInvalidDescriptor, s)
}

// PoolBased reports whether the category consumes a classifier pool.
func (c Category) PoolBased() bool {
	return c == CategoryDCS || c == CategoryDES || c == CategoryOracle
}

// Descriptor declares a strategy's identity and capabilities.
type Descriptor struct {
	ID       ID       `json:"id"`
	Family   Family   `json:"family"`
	Category Category `json:"category"`
	Name     string   `json:"name"`

	// NativeProbabilities is set on generation strategies whose members
	// estimate class probabilities without calibration.
	NativeProbabilities bool `json:"native_probabilities"`

	// NeedsProbabilities is set on selection strategies that read member
	// probabilities.
	NeedsProbabilities bool `json:"needs_probabilities"`

	// MinPoolSize is the smallest pool a selection strategy accepts.
	MinPoolSize int `json:"min_pool_size"`

	// Deployable is false for strategies that read test labels.
	Deployable bool `json:"deployable"`
}

// Entry is a registered strategy. Exactly one of the strategy fields is set,
// chosen by Family and Category.
type Entry struct {
	Descriptor

	Generation generation.Strategy
	Selection  selection.Strategy
	Baseline   selection.Baseline
	Imbalance  imbalance.Sampler
}

func (e *Entry) validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidDescriptor)
	}
	var ok bool
	switch e.Family {
	case FamilyGeneration:
		ok = e.Generation != nil && e.Category == CategoryNone
	case FamilyImbalance:
		ok = e.Imbalance != nil && e.Category == CategoryNone
	case FamilySelection:
		switch e.Category {
		case CategoryFixedBaseline:
			ok = e.Baseline != nil
		case CategoryDCS, CategoryDES, CategoryOracle:
			ok = e.Selection != nil
		}
	}
	if !ok {
		return fmt.Errorf("%w: %s (%s/%s)", ErrInvalidDescriptor, e.ID, e.Family, e.Category)
	}
	return nil
}
