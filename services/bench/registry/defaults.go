// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"github.com/AleutianAI/EnsembleBench/services/bench/generation"
	"github.com/AleutianAI/EnsembleBench/services/bench/imbalance"
	"github.com/AleutianAI/EnsembleBench/services/bench/selection"
)

// Built-in strategy ids.
const (
	Bagging  ID = "BaggingClassifier"
	AdaBoost ID = "AdaBoostClassifier"
	SGH      ID = "SGH"

	RandomForest  ID = "RandomForestClassifier"
	OLA           ID = "OLA"
	LCA           ID = "LCA"
	MCB           ID = "MCB"
	Rank          ID = "Rank"
	KNORAU        ID = "KNORAU"
	KNORAE        ID = "KNORAE"
	DESKNN        ID = "DESKNN"
	DESP          ID = "DESP"
	DESMI         ID = "DESMI"
	DESClustering ID = "DESClustering"
	METADES       ID = "METADES"
	KNOP          ID = "KNOP"
	Oracle        ID = "Oracle"

	SMOTE                     ID = "SMOTE"
	RandomOverSampler         ID = "RandomOverSampler"
	RandomUnderSampler        ID = "RandomUnderSampler"
	InstanceHardnessThreshold ID = "InstanceHardnessThreshold"
)

// DefaultGenerations lists the generation ids in reference grid order.
func DefaultGenerations() []ID {
	return []ID{Bagging, AdaBoost, SGH}
}

// DefaultSelections lists the selection ids in reference grid order:
// baseline, DCS, DES, oracle.
func DefaultSelections() []ID {
	return []ID{
		RandomForest,
		OLA, LCA, MCB, Rank,
		KNORAU, KNORAE, DESKNN, DESP, DESMI, DESClustering, METADES, KNOP,
		Oracle,
	}
}

// Default returns a registry holding every built-in strategy.
func Default() *Registry {
	r := NewRegistry()

	gen := func(id ID, name string, native bool, s generation.Strategy) {
		r.MustRegister(Entry{
			Descriptor: Descriptor{ID: id, Family: FamilyGeneration, Name: name, NativeProbabilities: native, Deployable: true},
			Generation: s,
		})
	}
	gen(Bagging, "Bagging", true, generation.Bagging{})
	gen(AdaBoost, "AdaBoost (SAMME)", true, generation.AdaBoost{})
	gen(SGH, "Self-Generating Hyperplanes", false, generation.SGH{})

	r.MustRegister(Entry{
		Descriptor: Descriptor{ID: RandomForest, Family: FamilySelection, Category: CategoryFixedBaseline,
			Name: "Random Forest", Deployable: true},
		Baseline: selection.RandomForest{},
	})

	sel := func(id ID, cat Category, name string, needsProba bool, s selection.Strategy) {
		r.MustRegister(Entry{
			Descriptor: Descriptor{ID: id, Family: FamilySelection, Category: cat, Name: name,
				NeedsProbabilities: needsProba, MinPoolSize: 2, Deployable: true},
			Selection: s,
		})
	}
	sel(OLA, CategoryDCS, "Overall Local Accuracy", false, selection.OLA{})
	sel(LCA, CategoryDCS, "Local Class Accuracy", false, selection.LCA{})
	sel(MCB, CategoryDCS, "Multiple Classifier Behaviour", false, selection.MCB{})
	sel(Rank, CategoryDCS, "Modified Classifier Rank", false, selection.Rank{})
	sel(KNORAU, CategoryDES, "KNORA-Union", false, selection.KNORAU{})
	sel(KNORAE, CategoryDES, "KNORA-Eliminate", false, selection.KNORAE{})
	sel(DESKNN, CategoryDES, "DES-KNN", false, selection.DESKNN{})
	sel(DESP, CategoryDES, "DES-Performance", false, selection.DESP{})
	sel(DESMI, CategoryDES, "DES-MI", false, selection.DESMI{})
	sel(DESClustering, CategoryDES, "DES-Clustering", false, selection.DESClustering{})
	sel(METADES, CategoryDES, "META-DES", true, selection.METADES{})
	sel(KNOP, CategoryDES, "K-Nearest Output Profiles", true, selection.KNOP{})

	r.MustRegister(Entry{
		Descriptor: Descriptor{ID: Oracle, Family: FamilySelection, Category: CategoryOracle,
			Name: "Oracle", MinPoolSize: 1, Deployable: false},
		Selection: selection.Oracle{},
	})

	imb := func(id ID, name string, s imbalance.Sampler) {
		r.MustRegister(Entry{
			Descriptor: Descriptor{ID: id, Family: FamilyImbalance, Name: name, Deployable: true},
			Imbalance:  s,
		})
	}
	imb(SMOTE, "SMOTE", imbalance.SMOTE{})
	imb(RandomOverSampler, "Random Over-Sampling", imbalance.RandomOverSampler{})
	imb(RandomUnderSampler, "Random Under-Sampling", imbalance.RandomUnderSampler{})
	imb(InstanceHardnessThreshold, "Instance Hardness Threshold", imbalance.InstanceHardnessThreshold{})

	return r
}
