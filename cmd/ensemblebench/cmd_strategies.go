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
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/EnsembleBench/services/bench/registry"
)

func runStrategies(cmd *cobra.Command, _ []string) error {
	family := registry.Family(strategiesFamily)
	switch family {
	case "", registry.FamilyGeneration, registry.FamilySelection, registry.FamilyImbalance:
	default:
		return fmt.Errorf("unknown family %q", strategiesFamily)
	}

	descs := registry.Default().List(family)
	rows := make([][]string, 0, len(descs))
	for _, d := range descs {
		rows = append(rows, []string{
			string(d.ID),
			string(d.Family),
			d.Category.String(),
			capabilities(d),
			strconv.FormatBool(d.Deployable),
		})
	}
	out.Table([]string{"ID", "Family", "Category", "Capabilities", "Deployable"}, rows)
	return nil
}

func capabilities(d registry.Descriptor) string {
	var caps []string
	if d.NativeProbabilities {
		caps = append(caps, "native-proba")
	}
	if d.NeedsProbabilities {
		caps = append(caps, "needs-proba")
	}
	if d.MinPoolSize > 0 {
		caps = append(caps, fmt.Sprintf("min-pool=%d", d.MinPoolSize))
	}
	if len(caps) == 0 {
		return "-"
	}
	return strings.Join(caps, ",")
}
