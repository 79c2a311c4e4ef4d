// Copyright 2026 MNIST ML Project Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package analyzer reports per-class accuracy and confusion matrices for
// pipeline predictions.
package analyzer

import (
	"gonum.org/v1/gonum/mat"

	"github.com/lhermann/mnist-ml-project/internal/analyzer"
	"github.com/lhermann/mnist-ml-project/internal/pipeline"
	"github.com/lhermann/mnist-ml-project/internal/report"
)

// ClassNames are the display names of the digit classes.
var ClassNames = analyzer.ClassNames

// ClassAccuracy is the accuracy over the examples of one true class.
type ClassAccuracy = report.ClassAccuracy

// Predictor is the part of a pipeline the analyzer needs.
type Predictor = analyzer.Predictor

// ErrInvalidPredictionResult is returned for malformed prediction results.
var ErrInvalidPredictionResult = analyzer.ErrInvalidPredictionResult

// PerClassAccuracy computes the accuracy of every class.
func PerClassAccuracy(res pipeline.PredictionResult) ([]ClassAccuracy, error) {
	return analyzer.ClassAccuracy(res)
}

// ConfusionMatrix counts (true class, predicted class) pairs.
func ConfusionMatrix(res pipeline.PredictionResult) (*mat.Dense, error) {
	return analyzer.ConfusionMatrix(res)
}

// ShowAccuracy computes per-class accuracy and reports it.
func ShowAccuracy(r report.Reporter, res pipeline.PredictionResult) error {
	return analyzer.ShowAccuracy(r, res)
}

// ShowConfusion computes the confusion matrix and reports it.
func ShowConfusion(r report.Reporter, res pipeline.PredictionResult) error {
	return analyzer.ShowConfusion(r, res)
}

// Evaluate predicts n test examples and reports both views.
func Evaluate(p Predictor, r report.Reporter, n int) (pipeline.PredictionResult, error) {
	return analyzer.Evaluate(p, r, n)
}
