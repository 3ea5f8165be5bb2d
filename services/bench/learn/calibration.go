// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package learn

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint identifies a training set by content.
type Fingerprint uint64

// FingerprintOf hashes features and labels with xxhash.
func FingerprintOf(x [][]float64, y []int) Fingerprint {
	h := xxhash.New()
	var buf [8]byte
	for _, row := range x {
		for _, v := range row {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			_, _ = h.Write(buf[:])
		}
	}
	for _, v := range y {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
		_, _ = h.Write(buf[:])
	}
	return Fingerprint(h.Sum64())
}

// Calibrated wraps a trained classifier with per-class sigmoid (Platt)
// probability maps learned in prefit mode: the base model is trusted as is
// and only the score-to-probability mapping is fit.
type Calibrated struct {
	base        Classifier
	a           []float64
	b           []float64
	fingerprint Fingerprint
}

// CalibratePrefit fits a sigmoid calibration layer on top of base.
//
// Description:
//
//	One sigmoid per base class maps that class's decision score to a
//	one-vs-rest probability; the vector is then normalised. Calibration is
//	idempotent for a given training set: if base is already a Calibrated
//	model fit on data with the same fingerprint it is returned unchanged.
//
// Inputs:
//   - base: The trained model. It is never modified.
//   - x, y: The calibration data (the same data the pool was trained on).
//   - fp: FingerprintOf(x, y), computed once by the caller per fold.
//
// Outputs:
//   - *Calibrated: The calibrated model.
//   - error: ErrDegenerateCalibration when y holds fewer than two classes.
func CalibratePrefit(base Classifier, x [][]float64, y []int, fp Fingerprint) (*Calibrated, error) {
	if c, ok := base.(*Calibrated); ok && c.fingerprint == fp {
		return c, nil
	}
	if err := checkFitInput(x, y, nil); err != nil {
		return nil, err
	}
	if len(UniqueLabels(y)) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrDegenerateCalibration, len(UniqueLabels(y)))
	}
	classes := base.Classes()
	if len(classes) < 2 {
		return nil, fmt.Errorf("%w: base model knows %d class", ErrDegenerateCalibration, len(classes))
	}

	scores := make([][]float64, len(x))
	for i, row := range x {
		scores[i] = base.Scores(row)
	}
	c := &Calibrated{
		base:        base,
		a:           make([]float64, len(classes)),
		b:           make([]float64, len(classes)),
		fingerprint: fp,
	}
	col := make([]float64, len(x))
	pos := make([]bool, len(x))
	for k, label := range classes {
		for i := range x {
			col[i] = scores[i][k]
			pos[i] = y[i] == label
		}
		c.a[k], c.b[k] = fitSigmoid(col, pos)
	}
	return c, nil
}

// fitSigmoid runs Platt's Newton method with backtracking line search
// (Lin, Lin & Weng, 2007) on smoothed targets.
func fitSigmoid(s []float64, pos []bool) (float64, float64) {
	prior1, prior0 := 0.0, 0.0
	for _, p := range pos {
		if p {
			prior1++
		} else {
			prior0++
		}
	}
	hi := (prior1 + 1) / (prior1 + 2)
	lo := 1 / (prior0 + 2)
	t := make([]float64, len(s))
	for i, p := range pos {
		if p {
			t[i] = hi
		} else {
			t[i] = lo
		}
	}

	const (
		maxIter = 100
		minStep = 1e-10
		sigma   = 1e-12
	)
	objective := func(a, b float64) float64 {
		f := 0.0
		for i := range s {
			fApB := s[i]*a + b
			if fApB >= 0 {
				f += t[i]*fApB + math.Log1p(math.Exp(-fApB))
			} else {
				f += (t[i]-1)*fApB + math.Log1p(math.Exp(fApB))
			}
		}
		return f
	}

	a, b := 0.0, math.Log((prior0+1)/(prior1+1))
	fval := objective(a, b)
	for iter := 0; iter < maxIter; iter++ {
		h11, h22, h21, g1, g2 := sigma, sigma, 0.0, 0.0, 0.0
		for i := range s {
			fApB := s[i]*a + b
			var p, q float64
			if fApB >= 0 {
				e := math.Exp(-fApB)
				p, q = e/(1+e), 1/(1+e)
			} else {
				e := math.Exp(fApB)
				p, q = 1/(1+e), e/(1+e)
			}
			d2 := p * q
			h11 += s[i] * s[i] * d2
			h22 += d2
			h21 += s[i] * d2
			d1 := t[i] - p
			g1 += s[i] * d1
			g2 += d1
		}
		if math.Abs(g1) < 1e-5 && math.Abs(g2) < 1e-5 {
			break
		}
		det := h11*h22 - h21*h21
		dA := -(h22*g1 - h21*g2) / det
		dB := -(-h21*g1 + h11*g2) / det
		gd := g1*dA + g2*dB

		step := 1.0
		for step >= minStep {
			na, nb := a+step*dA, b+step*dB
			nf := objective(na, nb)
			if nf < fval+0.0001*step*gd {
				a, b, fval = na, nb, nf
				break
			}
			step /= 2
		}
		if step < minStep {
			break
		}
	}
	return a, b
}

// Base returns the wrapped model.
func (c *Calibrated) Base() Classifier { return c.base }

// Fingerprint returns the fingerprint of the calibration data.
func (c *Calibrated) Fingerprint() Fingerprint { return c.fingerprint }

// Classes implements Classifier.
func (c *Calibrated) Classes() []int { return c.base.Classes() }

// PredictProba implements ProbabilisticClassifier.
func (c *Calibrated) PredictProba(x []float64) []float64 {
	s := c.base.Scores(x)
	p := make([]float64, len(s))
	total := 0.0
	for k := range s {
		p[k] = 1 / (1 + math.Exp(c.a[k]*s[k]+c.b[k]))
		total += p[k]
	}
	if total == 0 || math.IsNaN(total) {
		for k := range p {
			p[k] = 1 / float64(len(p))
		}
		return p
	}
	for k := range p {
		p[k] /= total
	}
	return p
}

// Scores implements Classifier. Calibrated scores are the probabilities.
func (c *Calibrated) Scores(x []float64) []float64 { return c.PredictProba(x) }

// Predict implements Classifier.
func (c *Calibrated) Predict(x []float64) int {
	return c.base.Classes()[argmax(c.PredictProba(x))]
}

var _ ProbabilisticClassifier = (*Calibrated)(nil)
