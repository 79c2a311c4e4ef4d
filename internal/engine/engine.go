// Package engine runs pipeline models on the Born tensor framework.
//
// Every tensor handed out by an Engine is a host-initialized float32 tensor
// on the engine's autodiff backend. Handles count themselves while alive so
// leaks show up in Live.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"

	"github.com/lhermann/mnist-ml-project/internal/pipeline"
)

// Engine errors.
var (
	ErrForeignTensor      = errors.New("tensor was not created by this engine")
	ErrReleased           = errors.New("tensor already released")
	ErrUnsupported        = errors.New("unsupported model configuration")
	ErrUnknownBackend     = errors.New("unknown backend")
	ErrBackendUnavailable = errors.New("backend not available on this platform")
	ErrEngine             = errors.New("engine failure")
)

// Runtime is a pipeline engine that can also create tensors from host data.
type Runtime interface {
	pipeline.Engine

	// FromSlice copies data into a new tensor of the given shape.
	FromSlice(data []float32, shape ...int) (pipeline.Tensor, error)

	// Name returns the backend name.
	Name() string

	// Live returns the number of tensors handed out and not yet released.
	Live() int

	// Close releases backend resources.
	Close() error
}

// Default Adam hyperparameters.
const (
	DefaultLearningRate = 0.001
	DefaultBeta1        = 0.9
	DefaultBeta2        = 0.999
	DefaultEpsilon      = 1e-7
)

type options struct {
	seed   int64
	lr     float32
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*options)

// WithSeed seeds weight initialization and shuffling.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithLearningRate overrides the Adam learning rate.
func WithLearningRate(lr float32) Option {
	return func(o *options) {
		if lr > 0 {
			o.lr = lr
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Engine adapts a Born backend, wrapped in autodiff, to pipeline.Engine.
//
// All models of an engine share its gradient tape. Their training steps,
// evaluations and predictions run one at a time, so several pipelines may
// share one engine.
type Engine[B tensor.Backend] struct {
	backend *autodiff.Backend[B]
	opts    options
	release func() error

	// tapeMu guards every use of the backend tape.
	tapeMu sync.Mutex

	mu  sync.Mutex
	rng *rand.Rand

	live atomic.Int64
}

var _ Runtime = (*Engine[*cpu.Backend])(nil)

// New wraps backend with autodiff and returns an engine on top of it.
func New[B tensor.Backend](backend B, opts ...Option) *Engine[B] {
	o := options{
		seed:   1,
		lr:     DefaultLearningRate,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine[B]{
		backend: autodiff.New(backend),
		opts:    o,
		rng:     rand.New(rand.NewSource(o.seed)),
	}
}

// Name returns the backend name.
func (e *Engine[B]) Name() string {
	return e.backend.Inner().Name()
}

// Live returns the number of tensors handed out and not yet released.
func (e *Engine[B]) Live() int {
	return int(e.live.Load())
}

// Close releases backend resources. Tensors and models must not be used
// afterwards.
func (e *Engine[B]) Close() error {
	if e.release == nil {
		return nil
	}
	err := e.release()
	e.release = nil
	return err
}

// NewModel returns an empty sequential model.
func (e *Engine[B]) NewModel() pipeline.Model {
	return newModel(e)
}

// FromSlice copies data into a new tensor.
func (e *Engine[B]) FromSlice(data []float32, shape ...int) (pipeline.Tensor, error) {
	t, err := tensor.FromSlice(data, tensor.Shape(shape), e.backend)
	if err != nil {
		return nil, err
	}
	return e.wrap(t), nil
}

// Reshape copies t into a new tensor with the given shape.
func (e *Engine[B]) Reshape(t pipeline.Tensor, shape ...int) (pipeline.Tensor, error) {
	h, err := e.unwrap(t)
	if err != nil {
		return nil, err
	}
	if want := tensor.Shape(shape).NumElements(); want != len(h.data()) {
		return nil, fmt.Errorf("reshape %v to %v: element count %d != %d", h.Shape(), shape, len(h.data()), want)
	}
	return e.FromSlice(h.data(), shape...)
}

// ArgMax returns the index of the largest value in each row along the last axis.
func (e *Engine[B]) ArgMax(t pipeline.Tensor) ([]int, error) {
	h, err := e.unwrap(t)
	if err != nil {
		return nil, err
	}
	shape := h.Shape()
	if len(shape) == 0 || shape[len(shape)-1] == 0 {
		return nil, fmt.Errorf("argmax: invalid shape %v", shape)
	}
	return argmaxRows(h.data(), shape[len(shape)-1]), nil
}

// Values copies the tensor contents out in row-major order.
func (e *Engine[B]) Values(t pipeline.Tensor) ([]float32, error) {
	h, err := e.unwrap(t)
	if err != nil {
		return nil, err
	}
	return append([]float32(nil), h.data()...), nil
}

func (e *Engine[B]) wrap(t *tensor.Tensor[float32, *autodiff.Backend[B]]) *handle[B] {
	e.live.Add(1)
	return &handle[B]{e: e, t: t}
}

func (e *Engine[B]) unwrap(t pipeline.Tensor) (*handle[B], error) {
	h, ok := t.(*handle[B])
	if !ok || h.e != e {
		return nil, ErrForeignTensor
	}
	if h.released.Load() {
		return nil, ErrReleased
	}
	return h, nil
}

// shuffle returns a permutation of [0, n).
func (e *Engine[B]) shuffle(n int) []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Perm(n)
}

func (e *Engine[B]) normal() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.NormFloat64()
}

// handle is the pipeline.Tensor implementation.
type handle[B tensor.Backend] struct {
	e        *Engine[B]
	t        *tensor.Tensor[float32, *autodiff.Backend[B]]
	released atomic.Bool
}

func (h *handle[B]) Shape() []int {
	return append([]int(nil), h.t.Shape()...)
}

func (h *handle[B]) Release() {
	if h.released.Swap(true) {
		return
	}
	h.t.Raw().Release()
	h.e.live.Add(-1)
}

func (h *handle[B]) data() []float32 {
	return h.t.Data()
}

func argmaxRows(data []float32, cols int) []int {
	rows := len(data) / cols
	out := make([]int, rows)
	for r := 0; r < rows; r++ {
		row := data[r*cols : (r+1)*cols]
		best := 0
		for c := 1; c < cols; c++ {
			if row[c] > row[best] {
				best = c
			}
		}
		out[r] = best
	}
	return out
}

// recoverError turns a panic raised inside the tensor framework into an error.
func recoverError(op string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %s: %v", ErrEngine, op, r)
	}
}
