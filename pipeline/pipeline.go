// Copyright 2026 MNIST ML Project Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"io"

	"github.com/lhermann/mnist-ml-project/internal/dataset"
	"github.com/lhermann/mnist-ml-project/internal/engine"
	"github.com/lhermann/mnist-ml-project/internal/pipeline"
	"github.com/lhermann/mnist-ml-project/internal/report"
)

// Pipeline is the model lifecycle around one tensor engine.
type Pipeline = pipeline.Pipeline

// State is the pipeline lifecycle state.
type State = pipeline.State

// Lifecycle states.
const (
	Empty    = pipeline.Empty
	Built    = pipeline.Built
	Compiled = pipeline.Compiled
	Trained  = pipeline.Trained
)

// Contracts.
type (
	Tensor     = pipeline.Tensor
	Engine     = pipeline.Engine
	Model      = pipeline.Model
	DataSource = pipeline.DataSource
	Batch      = pipeline.Batch
	Reporter   = report.Reporter
	History    = report.History
)

// TrainConfig configures Pipeline.Train.
type TrainConfig = pipeline.TrainConfig

// PredictionResult pairs predicted and true class indices.
type PredictionResult = pipeline.PredictionResult

// Option configures a Pipeline.
type Option = pipeline.Option

// Runtime is an engine that can also create tensors from host data.
type Runtime = engine.Runtime

// Errors.
var (
	ErrNotCompiled             = pipeline.ErrNotCompiled
	ErrNotBuilt                = pipeline.ErrNotBuilt
	ErrShapeMismatch           = pipeline.ErrShapeMismatch
	ErrInvalidPredictionResult = pipeline.ErrInvalidPredictionResult
	ErrPipelineBusy            = pipeline.ErrPipelineBusy
	ErrUnknownArchitecture     = pipeline.ErrUnknownArchitecture
)

// New creates an empty pipeline.
func New(e Engine, data DataSource, r Reporter, opts ...Option) *Pipeline {
	return pipeline.New(e, data, r, opts...)
}

// WithLogger sets the pipeline logger.
var WithLogger = pipeline.WithLogger

// DefaultTrainConfig returns batch size 512, 10 epochs, 5500 training and
// 1000 test examples, foreground progress.
func DefaultTrainConfig() TrainConfig {
	return pipeline.DefaultTrainConfig()
}

// OpenEngine opens a Born engine on the named backend ("cpu" or "webgpu").
// One engine may back several pipelines; their models take turns on it.
func OpenEngine(backend string, seed int64) (Runtime, error) {
	return engine.Open(backend, engine.WithSeed(seed))
}

// MNISTSource serves batches from the IDX files in dir.
func MNISTSource(rt Runtime, dir string, seed int64) (DataSource, error) {
	train, test, err := dataset.LoadIDX(dir)
	if err != nil {
		return nil, err
	}
	return dataset.NewSource(rt, train, test, seed)
}

// SyntheticSource serves generated digit patterns.
func SyntheticSource(rt Runtime, trainSize, testSize int, seed int64) (DataSource, error) {
	return dataset.NewSource(rt, dataset.Synthetic(trainSize, seed), dataset.Synthetic(testSize, seed+1), seed)
}

// ConsoleReporter renders reports as text on w.
func ConsoleReporter(w io.Writer) Reporter {
	return report.NewConsole(w)
}
