package pipeline

import (
	"github.com/lhermann/mnist-ml-project/internal/architecture"
	"github.com/lhermann/mnist-ml-project/internal/report"
)

// Tensor is an engine-owned value with an explicit lifetime.
//
// Release frees the underlying storage. It must be safe to call more than
// once; only the first call has an effect.
type Tensor interface {
	Shape() []int
	Release()
}

// Engine is the tensor computation engine.
//
// Every tensor an Engine method returns is a new handle owned by the caller,
// independent of the arguments' lifetimes.
type Engine interface {
	// NewModel returns an empty sequential model.
	NewModel() Model

	// Reshape returns t viewed with a new shape of the same element count.
	Reshape(t Tensor, shape ...int) (Tensor, error)

	// ArgMax returns, for each row along the last axis, the index of the
	// largest value.
	ArgMax(t Tensor) ([]int, error)

	// Values copies the tensor contents out in row-major order.
	Values(t Tensor) ([]float32, error)
}

// CompileConfig selects optimizer, loss and metrics.
type CompileConfig struct {
	Optimizer string
	Loss      string
	Metrics   []string
}

// Compile settings used by every model the pipeline builds.
const (
	OptimizerAdam               = "adam"
	LossCategoricalCrossentropy = "categoricalCrossentropy"
	MetricAccuracy              = report.MetricAccuracy
)

// DefaultCompileConfig returns Adam with default hyperparameters,
// categorical cross-entropy and accuracy.
func DefaultCompileConfig() CompileConfig {
	return CompileConfig{
		Optimizer: OptimizerAdam,
		Loss:      LossCategoricalCrossentropy,
		Metrics:   []string{MetricAccuracy},
	}
}

// FitConfig configures one Model.Fit call.
type FitConfig struct {
	BatchSize int
	Epochs    int
	Shuffle   bool

	// ValidationX and ValidationY are evaluated after every epoch when set.
	ValidationX Tensor
	ValidationY Tensor

	// Progress receives per-batch and per-epoch logs when non-nil.
	Progress report.ProgressSink

	RunID string
}

// Model is a sequential model under construction or training.
type Model interface {
	// Add appends a layer. Layers are materialized in call order.
	Add(layer architecture.Layer) error
	Compile(cfg CompileConfig) error
	Fit(x, y Tensor, cfg FitConfig) (*report.History, error)
	// Predict returns the output-layer activations for x.
	Predict(x Tensor) (Tensor, error)
	// Summary returns a line-oriented description of the layer stack.
	Summary() ([]string, error)
	// Release frees all model resources.
	Release()
}

// Batch pairs images [N,784] or [N,28,28,1] with one-hot labels [N,10].
type Batch struct {
	Images Tensor
	Labels Tensor
}

// Release releases both tensors.
func (b Batch) Release() {
	if b.Images != nil {
		b.Images.Release()
	}
	if b.Labels != nil {
		b.Labels.Release()
	}
}

// DataSource produces training and test batches on demand. Sampling policy
// belongs to the source.
type DataSource interface {
	NextTrainBatch(n int) (Batch, error)
	NextTestBatch(n int) (Batch, error)
}

// Catalog resolves an architecture name.
type Catalog func(name string) (architecture.Spec, error)

// FixedCatalog returns a catalog with a single entry.
func FixedCatalog(name string, spec architecture.Spec) Catalog {
	return func(n string) (architecture.Spec, error) {
		if n != name {
			return nil, fmtUnknown(n, name)
		}
		return spec.Clone(), nil
	}
}
