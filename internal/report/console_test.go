package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestConsoleSummary(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	c.ShowModelSummary(Surface{Name: "Model Architecture", Tab: "Architecture"}, []string{"line one", "line two"})

	out := buf.String()
	assert.Contains(t, out, "== Architecture / Model Architecture ==")
	assert.Contains(t, out, "line one\nline two\n")
}

func TestConsoleFitProgress(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	c.BatchEvery = 2

	sink := c.ShowFitProgress(Surface{Name: "Model Training"}, FitMetrics)
	sink.OnBatchEnd(0, 0, Logs{MetricLoss: 1})
	sink.OnBatchEnd(0, 1, Logs{MetricLoss: 0.5, MetricAcc: 0.25})
	sink.OnEpochEnd(0, Logs{MetricLoss: 0.5, MetricValLoss: 0.75, MetricAcc: 0.5, MetricValAcc: 0.4})

	out := buf.String()
	assert.NotContains(t, out, "batch 1 ")
	assert.Contains(t, out, "epoch 1 batch 2 loss=0.5000 acc=25.00%")
	assert.Contains(t, out, "epoch 1 loss=0.5000 val_loss=0.7500 acc=50.00% val_acc=40.00%")
}

func TestConsoleHistory(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	h := NewHistory("run-1")
	h.Append(0, Logs{MetricLoss: 2, MetricAcc: 0.1})
	h.Append(1, Logs{MetricLoss: 1, MetricAcc: 0.6})

	c.ShowHistory(Surface{Name: "Model Training", Tab: "Training"}, h, []string{MetricLoss, MetricAcc, MetricValAcc})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "run run-1", lines[1])
	assert.Contains(t, lines[3], "2.0000")
	assert.Contains(t, lines[4], "60.00%")
	assert.True(t, strings.HasSuffix(lines[4], "-"))
}

func TestConsoleAccuracyAndConfusion(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	c.ShowPerClassAccuracy(Surface{Name: "Accuracy"}, []ClassAccuracy{{Accuracy: 1, Count: 3}, {Accuracy: 0.5, Count: 2}}, []string{"Zero", "One"})
	c.ShowConfusionMatrix(Surface{Name: "Confusion Matrix"}, mat.NewDense(2, 2, []float64{3, 0, 1, 1}), []string{"Zero", "One"})

	out := buf.String()
	assert.Contains(t, out, "Zero")
	assert.Contains(t, out, "1.0000")
	assert.Contains(t, out, "0.5000")
	assert.Contains(t, out, "rows: true class")
}

func TestHistoryLast(t *testing.T) {
	h := NewHistory("")
	_, ok := h.Last(MetricLoss)
	assert.False(t, ok)

	h.Append(0, Logs{MetricLoss: 3})
	h.Append(1, Logs{MetricLoss: 2})
	v, ok := h.Last(MetricLoss)
	assert.True(t, ok)
	assert.Equal(t, 2.0, v)
	assert.Equal(t, []int{0, 1}, h.Epochs)
}

func TestDiscard(t *testing.T) {
	sink := Discard.ShowFitProgress(Surface{}, nil)
	assert.NotPanics(t, func() {
		sink.OnBatchEnd(0, 0, nil)
		sink.OnEpochEnd(0, nil)
		Discard.ShowHistory(Surface{}, nil, nil)
	})
}
