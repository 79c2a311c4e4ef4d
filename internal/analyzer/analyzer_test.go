package analyzer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/lhermann/mnist-ml-project/internal/pipeline"
	"github.com/lhermann/mnist-ml-project/internal/report"
)

func TestClassNames(t *testing.T) {
	require.Len(t, ClassNames, 10)
	assert.Equal(t, "Zero", ClassNames[0])
	assert.Equal(t, "Nine", ClassNames[9])
}

func TestClassAccuracy(t *testing.T) {
	res := pipeline.PredictionResult{
		Predictions: []int{0, 1, 2, 2},
		Labels:      []int{0, 1, 1, 2},
	}
	table, err := ClassAccuracy(res)
	require.NoError(t, err)
	require.Len(t, table, 10)

	assert.Equal(t, report.ClassAccuracy{Accuracy: 1, Count: 1}, table[0])
	assert.Equal(t, report.ClassAccuracy{Accuracy: 0.5, Count: 2}, table[1])
	assert.Equal(t, report.ClassAccuracy{Accuracy: 1, Count: 1}, table[2])
	for c := 3; c < 10; c++ {
		assert.Equal(t, report.ClassAccuracy{}, table[c], "class %d", c)
	}
}

func TestConfusionMatrix(t *testing.T) {
	res := pipeline.PredictionResult{
		Predictions: []int{0, 1, 2, 2},
		Labels:      []int{0, 1, 1, 2},
	}
	m, err := ConfusionMatrix(res)
	require.NoError(t, err)

	r, c := m.Dims()
	assert.Equal(t, 10, r)
	assert.Equal(t, 10, c)
	assert.Equal(t, 1.0, m.At(0, 0))
	assert.Equal(t, 1.0, m.At(1, 1))
	assert.Equal(t, 1.0, m.At(1, 2))
	assert.Equal(t, 1.0, m.At(2, 2))
	assert.Equal(t, 0.0, m.At(2, 1))
	assert.Equal(t, 4.0, mat.Sum(m))
}

func TestEmptyResult(t *testing.T) {
	table, err := ClassAccuracy(pipeline.PredictionResult{})
	require.NoError(t, err)
	for _, row := range table {
		assert.Zero(t, row.Count)
		assert.Zero(t, row.Accuracy)
	}

	m, err := ConfusionMatrix(pipeline.PredictionResult{})
	require.NoError(t, err)
	assert.Zero(t, mat.Sum(m))

	acc, err := Overall(pipeline.PredictionResult{})
	require.NoError(t, err)
	assert.Zero(t, acc)
}

func TestInvalidResult(t *testing.T) {
	bad := []pipeline.PredictionResult{
		{Predictions: []int{1, 2}, Labels: []int{1}},
		{Predictions: []int{10}, Labels: []int{1}},
		{Predictions: []int{1}, Labels: []int{-1}},
	}
	for _, res := range bad {
		_, err := ClassAccuracy(res)
		assert.ErrorIs(t, err, ErrInvalidPredictionResult)
		_, err = ConfusionMatrix(res)
		assert.ErrorIs(t, err, ErrInvalidPredictionResult)
		assert.ErrorIs(t, ShowAccuracy(report.Discard, res), ErrInvalidPredictionResult)
		assert.ErrorIs(t, ShowConfusion(report.Discard, res), ErrInvalidPredictionResult)
	}
}

func TestOverall(t *testing.T) {
	acc, err := Overall(pipeline.PredictionResult{
		Predictions: []int{3, 3, 4, 5},
		Labels:      []int{3, 3, 3, 5},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, acc, 1e-12)
}

type stubPredictor struct {
	res pipeline.PredictionResult
	err error
	n   int
}

func (s *stubPredictor) Predict(n int) (pipeline.PredictionResult, error) {
	s.n = n
	return s.res, s.err
}

type captureReporter struct {
	report.Reporter
	accuracy  []report.ClassAccuracy
	confusion *mat.Dense
	surfaces  []report.Surface
}

func (c *captureReporter) ShowPerClassAccuracy(s report.Surface, table []report.ClassAccuracy, names []string) {
	c.surfaces = append(c.surfaces, s)
	c.accuracy = table
}

func (c *captureReporter) ShowConfusionMatrix(s report.Surface, m *mat.Dense, names []string) {
	c.surfaces = append(c.surfaces, s)
	c.confusion = m
}

func TestEvaluate(t *testing.T) {
	p := &stubPredictor{res: pipeline.PredictionResult{
		Predictions: []int{7, 8},
		Labels:      []int{7, 9},
	}}
	r := &captureReporter{Reporter: report.Discard}

	res, err := Evaluate(p, r, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, p.n)
	assert.Equal(t, p.res, res)
	assert.Equal(t, []report.Surface{AccuracySurface, ConfusionSurface}, r.surfaces)
	assert.Equal(t, 1.0, r.accuracy[7].Accuracy)
	assert.Equal(t, 0.0, r.accuracy[9].Accuracy)
	assert.Equal(t, 1.0, r.confusion.At(9, 8))
}

func TestEvaluatePredictError(t *testing.T) {
	p := &stubPredictor{err: pipeline.ErrNotCompiled}
	r := &captureReporter{Reporter: report.Discard}

	_, err := Evaluate(p, r, 10)
	assert.True(t, errors.Is(err, pipeline.ErrNotCompiled))
	assert.Empty(t, r.surfaces)
}
