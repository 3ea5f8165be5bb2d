// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package results

import (
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/EnsembleBench/services/bench/engine"
)

// MultiSink fans a Result Set out to several sinks. Every sink is tried;
// their errors are joined.
type MultiSink []Sink

// Save implements Sink.
func (m MultiSink) Save(ctx context.Context, rs *engine.ResultSet) error {
	var errs []error
	for i, s := range m {
		if err := s.Save(ctx, rs); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
