// Package analyzer turns prediction results into per-class accuracy and a
// confusion matrix and hands them to a reporter.
package analyzer

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/lhermann/mnist-ml-project/internal/architecture"
	"github.com/lhermann/mnist-ml-project/internal/pipeline"
	"github.com/lhermann/mnist-ml-project/internal/report"
)

// ClassNames are the display names of the ten digit classes, by index.
var ClassNames = []string{"Zero", "One", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine"}

// Reporting surfaces.
var (
	AccuracySurface  = report.Surface{Name: "Accuracy", Tab: "Evaluation"}
	ConfusionSurface = report.Surface{Name: "Confusion Matrix", Tab: "Evaluation"}
)

// ErrInvalidPredictionResult is returned for mismatched lengths or class
// indices outside [0, 10).
var ErrInvalidPredictionResult = pipeline.ErrInvalidPredictionResult

// Predictor is the part of a pipeline the analyzer needs.
type Predictor interface {
	Predict(n int) (pipeline.PredictionResult, error)
}

// ClassAccuracy computes, for every class, the fraction of examples of that
// true class that were predicted correctly. Classes without examples report
// zero accuracy and zero count.
func ClassAccuracy(res pipeline.PredictionResult) ([]report.ClassAccuracy, error) {
	if err := res.Validate(); err != nil {
		return nil, err
	}
	correct := make([]int, architecture.NumClasses)
	out := make([]report.ClassAccuracy, architecture.NumClasses)
	for i, label := range res.Labels {
		out[label].Count++
		if res.Predictions[i] == label {
			correct[label]++
		}
	}
	for c := range out {
		if out[c].Count > 0 {
			out[c].Accuracy = float64(correct[c]) / float64(out[c].Count)
		}
	}
	return out, nil
}

// ConfusionMatrix counts examples per (true class, predicted class) pair.
// Rows are true classes, columns predicted classes.
func ConfusionMatrix(res pipeline.PredictionResult) (*mat.Dense, error) {
	if err := res.Validate(); err != nil {
		return nil, err
	}
	m := mat.NewDense(architecture.NumClasses, architecture.NumClasses, nil)
	for i, label := range res.Labels {
		p := res.Predictions[i]
		m.Set(label, p, m.At(label, p)+1)
	}
	return m, nil
}

// Overall returns the fraction of correct predictions, or 0 for an empty result.
func Overall(res pipeline.PredictionResult) (float64, error) {
	if err := res.Validate(); err != nil {
		return 0, err
	}
	if res.Len() == 0 {
		return 0, nil
	}
	correct := 0
	for i := range res.Labels {
		if res.Predictions[i] == res.Labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(res.Len()), nil
}

// ShowAccuracy computes per-class accuracy and reports it.
func ShowAccuracy(r report.Reporter, res pipeline.PredictionResult) error {
	table, err := ClassAccuracy(res)
	if err != nil {
		return fmt.Errorf("class accuracy: %w", err)
	}
	r.ShowPerClassAccuracy(AccuracySurface, table, ClassNames)
	return nil
}

// ShowConfusion computes the confusion matrix and reports it.
func ShowConfusion(r report.Reporter, res pipeline.PredictionResult) error {
	m, err := ConfusionMatrix(res)
	if err != nil {
		return fmt.Errorf("confusion matrix: %w", err)
	}
	r.ShowConfusionMatrix(ConfusionSurface, m, ClassNames)
	return nil
}

// Evaluate runs one prediction of n examples and reports both the accuracy
// table and the confusion matrix for it.
func Evaluate(p Predictor, r report.Reporter, n int) (pipeline.PredictionResult, error) {
	if r == nil {
		r = report.Discard
	}
	res, err := p.Predict(n)
	if err != nil {
		return pipeline.PredictionResult{}, err
	}
	if err := errors.Join(ShowAccuracy(r, res), ShowConfusion(r, res)); err != nil {
		return pipeline.PredictionResult{}, err
	}
	return res, nil
}
