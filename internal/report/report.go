// Package report defines the reporting surface the pipeline talks to and a
// console implementation of it.
//
// The surface only receives finished summaries: layer tables, metric logs,
// training history, per-class accuracy and confusion matrices. It never
// reaches back into the model.
package report

import "gonum.org/v1/gonum/mat"

// Surface names where a report is rendered.
type Surface struct {
	Name   string
	Tab    string
	Height int // preferred height in rows, 0 for auto
}

// Well-known metric names.
const (
	MetricLoss     = "loss"
	MetricAcc      = "acc"
	MetricValLoss  = "val_loss"
	MetricValAcc   = "val_acc"
	MetricAccuracy = "accuracy"
)

// FitMetrics is the metric set shown while training.
var FitMetrics = []string{MetricLoss, MetricValLoss, MetricAcc, MetricValAcc}

// Logs holds metric values for one batch or epoch.
type Logs map[string]float64

// History is the per-epoch record of a fit.
type History struct {
	RunID   string
	Epochs  []int
	Metrics map[string][]float64
}

// NewHistory returns an empty history for the given run.
func NewHistory(runID string) *History {
	return &History{RunID: runID, Metrics: make(map[string][]float64)}
}

// Append records the logs of one finished epoch.
func (h *History) Append(epoch int, logs Logs) {
	h.Epochs = append(h.Epochs, epoch)
	for k, v := range logs {
		h.Metrics[k] = append(h.Metrics[k], v)
	}
}

// Last returns the most recent value of a metric.
func (h *History) Last(metric string) (float64, bool) {
	values := h.Metrics[metric]
	if len(values) == 0 {
		return 0, false
	}
	return values[len(values)-1], true
}

// ClassAccuracy is the accuracy over the examples of one true class.
type ClassAccuracy struct {
	Accuracy float64
	Count    int
}

// ProgressSink receives incremental fit progress.
type ProgressSink interface {
	OnBatchEnd(epoch, batch int, logs Logs)
	OnEpochEnd(epoch int, logs Logs)
}

// Reporter is the visualization/reporting surface.
type Reporter interface {
	ShowModelSummary(s Surface, lines []string)
	ShowFitProgress(s Surface, metrics []string) ProgressSink
	ShowHistory(s Surface, h *History, metrics []string)
	ShowPerClassAccuracy(s Surface, table []ClassAccuracy, classNames []string)
	ShowConfusionMatrix(s Surface, m *mat.Dense, classNames []string)
}

// Discard is a Reporter that drops everything.
var Discard Reporter = discard{}

type discard struct{}

func (discard) ShowModelSummary(Surface, []string)                      {}
func (discard) ShowFitProgress(Surface, []string) ProgressSink          { return discardSink{} }
func (discard) ShowHistory(Surface, *History, []string)                 {}
func (discard) ShowPerClassAccuracy(Surface, []ClassAccuracy, []string) {}
func (discard) ShowConfusionMatrix(Surface, *mat.Dense, []string)       {}

type discardSink struct{}

func (discardSink) OnBatchEnd(int, int, Logs) {}
func (discardSink) OnEpochEnd(int, Logs)      {}
