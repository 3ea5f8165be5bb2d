// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/AleutianAI/EnsembleBench/services/bench/dataset"
	"github.com/AleutianAI/EnsembleBench/services/bench/learn"
)

// BuildFoldData encodes every fold of ds for one noise level.
//
// Description:
//
//	Folds whose labels cannot be prepared (a missing noise variant, a label
//	outside the encoding) are returned as failures instead of data, so the
//	rest of the dataset can still be evaluated.
//
// Outputs:
//   - []FoldData: The prepared folds in fold order. Index is the position
//     in ds.Folds.
//   - []FoldFailure: One entry per fold that could not be prepared.
func BuildFoldData(ds *dataset.Dataset, noise int) ([]FoldData, []FoldFailure) {
	out := make([]FoldData, 0, len(ds.Folds))
	var failures []FoldFailure
	for i := range ds.Folds {
		f := &ds.Folds[i]
		fd, err := encodeFold(ds.Encoding, f, i, noise)
		if err != nil {
			failures = append(failures, failureOf(f.Name, foldErr(StagePrepare, err)))
			continue
		}
		out = append(out, fd)
	}
	return out, failures
}

func encodeFold(enc *dataset.LabelEncoding, f *dataset.Fold, index, noise int) (FoldData, error) {
	if err := f.Validate(); err != nil {
		return FoldData{}, err
	}
	raw, err := f.TrainLabels(noise)
	if err != nil {
		return FoldData{}, err
	}
	yTrain, err := enc.Encode(raw)
	if err != nil {
		return FoldData{}, err
	}
	yTest, err := enc.Encode(f.YTest)
	if err != nil {
		return FoldData{}, err
	}
	return FoldData{
		Index:       index,
		Fold:        f.Name,
		XTrain:      f.XTrain,
		YTrain:      yTrain,
		XTest:       f.XTest,
		YTest:       yTest,
		Fingerprint: learn.FingerprintOf(f.XTrain, yTrain),
	}, nil
}

// DeriveSeed mixes a base seed with identifying parts into a new seed.
// Equal inputs always give equal seeds.
func DeriveSeed(base uint64, parts ...string) uint64 {
	d := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], base)
	_, _ = d.Write(buf[:])
	for _, p := range parts {
		_, _ = d.Write([]byte{0})
		_, _ = d.WriteString(p)
	}
	return d.Sum64()
}
