// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/EnsembleBench/cmd/ensemblebench/config"
	"github.com/AleutianAI/EnsembleBench/services/bench/dataset"
)

// synthNames names generated datasets after the reference grid so the
// default config runs on them unchanged. Extra datasets are Synth_{i}.
func synthNames(n int) []string {
	ref := config.ReferenceDatasets()
	names := make([]string, n)
	for i := range names {
		if i < len(ref) {
			names[i] = ref[i]
		} else {
			names[i] = fmt.Sprintf("Synth_%d", i+1)
		}
	}
	return names
}

func runSynth(cmd *cobra.Command, _ []string) error {
	if synthDatasets < 1 {
		return fmt.Errorf("--datasets must be at least 1")
	}

	for i, name := range synthNames(synthDatasets) {
		sc := dataset.DefaultSynthConfig(name)
		sc.Folds = synthFolds
		sc.Classes = synthClasses
		sc.Features = synthFeatures
		sc.Seed = synthSeed + uint64(i)

		ds, err := dataset.Synthesize(sc)
		if err != nil {
			out.Error(fmt.Sprintf("%s: %v", name, err))
			return err
		}
		if err := dataset.WriteDir(synthOut, ds); err != nil {
			out.Error(fmt.Sprintf("%s: %v", name, err))
			return err
		}
		out.Success(fmt.Sprintf("%s: %d folds, %d classes", name, len(ds.Folds), len(ds.Classes())))
	}
	out.Info(fmt.Sprintf("datasets written to %s", synthOut))
	return nil
}
