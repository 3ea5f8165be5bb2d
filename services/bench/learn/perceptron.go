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
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// PerceptronTemplate trains one-vs-rest linear perceptrons.
//
// Description:
//
//	Each class gets its own hyperplane. Training runs shuffled epochs of the
//	classic mistake-driven update until an epoch makes no mistakes, the
//	mistake count has not improved for NoImprovement epochs, or MaxIter
//	epochs have run. Sample weights scale the update step.
type PerceptronTemplate struct {
	// MaxIter bounds the number of epochs. Default 1000.
	MaxIter int

	// NoImprovement is the patience before early stopping. Default 5.
	NoImprovement int

	// Eta is the learning rate. Default 1.
	Eta float64
}

// DefaultPerceptron returns the reference base learner (max_iter=1000).
func DefaultPerceptron() PerceptronTemplate {
	return PerceptronTemplate{MaxIter: 1000, NoImprovement: 5, Eta: 1}
}

// Name implements Template.
func (t PerceptronTemplate) Name() string { return "perceptron" }

// Fit implements Template.
func (t PerceptronTemplate) Fit(x [][]float64, y []int, w []float64, rng *rand.Rand) (Classifier, error) {
	if err := checkFitInput(x, y, w); err != nil {
		return nil, err
	}
	if t.MaxIter <= 0 {
		t.MaxIter = 1000
	}
	if t.NoImprovement <= 0 {
		t.NoImprovement = 5
	}
	if t.Eta <= 0 {
		t.Eta = 1
	}

	classes := UniqueLabels(y)
	dim := len(x[0])
	p := &Perceptron{
		classes: classes,
		weights: make([][]float64, len(classes)),
		bias:    make([]float64, len(classes)),
	}
	for k := range p.weights {
		p.weights[k] = make([]float64, dim)
	}
	if len(classes) == 1 {
		return p, nil
	}

	// Normalise weights to mean 1 so the step size is scale free.
	scale := make([]float64, len(x))
	if w == nil {
		for i := range scale {
			scale[i] = 1
		}
	} else {
		total := floats.Sum(w)
		for i := range scale {
			if total > 0 {
				scale[i] = w[i] * float64(len(w)) / total
			}
		}
	}

	idx := labelIndex(classes)
	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}
	best := len(x) + 1
	stale := 0
	for epoch := 0; epoch < t.MaxIter; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		mistakes := 0
		for _, i := range order {
			if scale[i] == 0 {
				continue
			}
			truth := idx[y[i]]
			wrong := false
			for k := range classes {
				target := -1.0
				if k == truth {
					target = 1
				}
				s := floats.Dot(p.weights[k], x[i]) + p.bias[k]
				if target*s <= 0 {
					step := t.Eta * target * scale[i]
					floats.AddScaled(p.weights[k], step, x[i])
					p.bias[k] += step
					wrong = true
				}
			}
			if wrong {
				mistakes++
			}
		}
		if mistakes == 0 {
			break
		}
		if mistakes < best {
			best = mistakes
			stale = 0
		} else {
			stale++
			if stale >= t.NoImprovement {
				break
			}
		}
	}
	return p, nil
}

// Perceptron is a trained one-vs-rest linear model.
//
// PredictProba is a softmax over the raw decision values. It is an
// uncalibrated estimate; wrap the model with CalibratePrefit when
// calibrated probabilities are required.
type Perceptron struct {
	classes []int
	weights [][]float64
	bias    []float64
}

// Classes implements Classifier.
func (p *Perceptron) Classes() []int { return p.classes }

// Scores implements Classifier.
func (p *Perceptron) Scores(x []float64) []float64 {
	s := make([]float64, len(p.classes))
	for k := range p.classes {
		s[k] = floats.Dot(p.weights[k], x) + p.bias[k]
	}
	return s
}

// Predict implements Classifier.
func (p *Perceptron) Predict(x []float64) int {
	if len(p.classes) == 1 {
		return p.classes[0]
	}
	return p.classes[argmax(p.Scores(x))]
}

// PredictProba implements ProbabilisticClassifier.
func (p *Perceptron) PredictProba(x []float64) []float64 {
	if len(p.classes) == 1 {
		return []float64{1}
	}
	return softmax(p.Scores(x))
}

var _ ProbabilisticClassifier = (*Perceptron)(nil)
