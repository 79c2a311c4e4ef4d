// Package pipeline builds, trains and evaluates digit classifiers.
//
// A Pipeline owns exactly one model at a time. InitModel replaces it
// wholesale; Train, Predict and PredictSingle use it. The tensor engine, the
// data source and the reporting surface are supplied by the caller.
//
// Lifecycle calls on one Pipeline never interleave: a call made while another
// is running fails with ErrPipelineBusy instead of waiting.
package pipeline

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lhermann/mnist-ml-project/internal/architecture"
	"github.com/lhermann/mnist-ml-project/internal/report"
)

// State is the pipeline lifecycle state.
type State int32

// Lifecycle states. Built is only held by a model under construction inside
// InitModel; a pipeline observed from outside is Empty, Compiled or Trained.
const (
	Empty State = iota
	Built
	Compiled
	Trained
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Built:
		return "built"
	case Compiled:
		return "compiled"
	case Trained:
		return "trained"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Default sizes.
const (
	DefaultBatchSize     = 512
	DefaultEpochs        = 10
	DefaultTrainDataSize = 5500
	DefaultTestDataSize  = 1000
	DefaultPredictSize   = 500
)

// Reporting surfaces.
var (
	ArchitectureSurface = report.Surface{Name: "Model Architecture", Tab: "Architecture"}
	TrainingSurface     = report.Surface{Name: "Model Training", Tab: "Training", Height: 1000}
)

// TrainConfig configures Train.
type TrainConfig struct {
	BatchSize     int
	Epochs        int
	TrainDataSize int

	// TestDataSize is accepted for compatibility but the validation batch
	// is fetched with TrainDataSize examples.
	TestDataSize int

	// Background fits without incremental progress and reports the whole
	// history once the fit has finished.
	Background bool
}

// DefaultTrainConfig returns the default training configuration.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		BatchSize:     DefaultBatchSize,
		Epochs:        DefaultEpochs,
		TrainDataSize: DefaultTrainDataSize,
		TestDataSize:  DefaultTestDataSize,
		Background:    false,
	}
}

func (c TrainConfig) withDefaults() TrainConfig {
	d := DefaultTrainConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.Epochs <= 0 {
		c.Epochs = d.Epochs
	}
	if c.TrainDataSize <= 0 {
		c.TrainDataSize = d.TrainDataSize
	}
	if c.TestDataSize <= 0 {
		c.TestDataSize = d.TestDataSize
	}
	return c
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithCatalog replaces the architecture catalog.
func WithCatalog(c Catalog) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.catalog = c
		}
	}
}

// Pipeline is the model lifecycle around one tensor engine.
type Pipeline struct {
	engine   Engine
	data     DataSource
	reporter report.Reporter
	catalog  Catalog
	logger   *slog.Logger

	// mu is held for the whole duration of a lifecycle call.
	mu    sync.Mutex
	model Model
	arch  atomic.Pointer[string]
	state atomic.Int32
}

// New creates an empty pipeline. A nil reporter is replaced by report.Discard.
func New(engine Engine, data DataSource, reporter report.Reporter, opts ...Option) *Pipeline {
	if reporter == nil {
		reporter = report.Discard
	}
	p := &Pipeline{
		engine:   engine,
		data:     data,
		reporter: reporter,
		catalog:  architecture.Build,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current lifecycle state without waiting for a running call.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Architecture returns the name of the current architecture, or "" when empty.
// Like State it never waits for a running call.
func (p *Pipeline) Architecture() string {
	if name := p.arch.Load(); name != nil {
		return *name
	}
	return ""
}

func (p *Pipeline) acquire(op string) error {
	if !p.mu.TryLock() {
		return fmt.Errorf("%s: %w", op, ErrPipelineBusy)
	}
	return nil
}

func (p *Pipeline) setState(s State) {
	p.state.Store(int32(s))
}

func (p *Pipeline) requireCompiled(op string) error {
	switch p.State() {
	case Compiled, Trained:
		return nil
	default:
		return fmt.Errorf("%s: %w", op, ErrNotCompiled)
	}
}

// InitModel builds and compiles the named architecture followed by the
// output layer, then replaces the current model with it.
//
// On any failure the previous model and state are left untouched.
func (p *Pipeline) InitModel(name string) error {
	if err := p.acquire("init model"); err != nil {
		return err
	}
	defer p.mu.Unlock()

	spec, err := p.catalog(name)
	if err != nil {
		return fmt.Errorf("init model: %w", err)
	}

	model, lines, err := p.build(spec.WithOutput())
	if err != nil {
		return fmt.Errorf("init model %q: %w", name, err)
	}

	if p.model != nil {
		p.model.Release()
	}
	p.model = model
	p.arch.Store(&name)
	p.setState(Compiled)

	p.logger.Info("model initialized", "architecture", name, "layers", len(spec)+1)
	p.reporter.ShowModelSummary(ArchitectureSurface, lines)
	return nil
}

// build materializes and compiles a model. The returned model is owned by
// the caller; on error nothing is leaked.
func (p *Pipeline) build(spec architecture.Spec) (model Model, lines []string, err error) {
	model = p.engine.NewModel()
	defer func() {
		if err != nil {
			model.Release()
			model = nil
		}
	}()

	for i, layer := range spec {
		if err := model.Add(layer); err != nil {
			return nil, nil, fmt.Errorf("add layer %d (%s): %w", i, layer.Kind(), err)
		}
	}
	// Built.
	if err := model.Compile(DefaultCompileConfig()); err != nil {
		return nil, nil, fmt.Errorf("compile: %w", err)
	}
	lines, err = model.Summary()
	if err != nil {
		return nil, nil, fmt.Errorf("summary: %w", err)
	}
	return model, lines, nil
}

// Summary returns the compiled layer stack, one layer table line per line.
func (p *Pipeline) Summary() (string, error) {
	if err := p.acquire("summary"); err != nil {
		return "", err
	}
	defer p.mu.Unlock()

	if p.State() == Empty || p.model == nil {
		return "", fmt.Errorf("summary: %w", ErrNotBuilt)
	}
	lines, err := p.model.Summary()
	if err != nil {
		return "", fmt.Errorf("summary: %w", err)
	}
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// Train fits the current model on one training batch of cfg.TrainDataSize
// examples, validating every epoch against a test batch of the same size.
//
// In foreground mode progress is streamed to the reporter while fitting; in
// background mode the full history is reported once at the end. Every batch
// tensor is released before Train returns.
func (p *Pipeline) Train(cfg TrainConfig) (*report.History, error) {
	if err := p.acquire("train"); err != nil {
		return nil, err
	}
	defer p.mu.Unlock()

	if err := p.requireCompiled("train"); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	runID := uuid.NewString()
	log := p.logger.With("run_id", runID, "architecture", p.Architecture())

	log.Info("training started",
		"epochs", cfg.Epochs,
		"batch_size", cfg.BatchSize,
		"train_data_size", cfg.TrainDataSize,
		"test_data_size", cfg.TestDataSize,
		"background", cfg.Background,
	)
	start := time.Now()

	var history *report.History
	err := Tidy(func(s *Scope) error {
		trainX, trainY, err := p.fetch(s, p.data.NextTrainBatch, cfg.TrainDataSize)
		if err != nil {
			return fmt.Errorf("training batch: %w", err)
		}
		testX, testY, err := p.fetch(s, p.data.NextTestBatch, cfg.TrainDataSize)
		if err != nil {
			return fmt.Errorf("validation batch: %w", err)
		}

		fit := FitConfig{
			BatchSize:   cfg.BatchSize,
			Epochs:      cfg.Epochs,
			Shuffle:     true,
			ValidationX: testX,
			ValidationY: testY,
			RunID:       runID,
		}
		if !cfg.Background {
			fit.Progress = p.reporter.ShowFitProgress(TrainingSurface, report.FitMetrics)
		}

		history, err = p.model.Fit(trainX, trainY, fit)
		if err != nil {
			return fmt.Errorf("fit: %w", err)
		}
		if history == nil {
			history = report.NewHistory(runID)
		}
		if history.RunID == "" {
			history.RunID = runID
		}
		if cfg.Background {
			p.reporter.ShowHistory(TrainingSurface, history, report.FitMetrics)
		}
		return nil
	})
	if err != nil {
		log.Error("training failed", "err", err)
		return nil, fmt.Errorf("train: %w", err)
	}

	p.setState(Trained)
	log.Info("training finished", "duration", time.Since(start))
	return history, nil
}

// PredictionResult pairs predicted and true class indices, index-aligned.
type PredictionResult struct {
	Predictions []int
	Labels      []int
}

// Len returns the number of examples.
func (r PredictionResult) Len() int {
	return len(r.Predictions)
}

// Validate checks that both sequences have the same length and contain
// class indices in [0, NumClasses).
func (r PredictionResult) Validate() error {
	if len(r.Predictions) != len(r.Labels) {
		return fmt.Errorf("%w: %d predictions for %d labels",
			ErrInvalidPredictionResult, len(r.Predictions), len(r.Labels))
	}
	for i := range r.Predictions {
		if !validClass(r.Predictions[i]) || !validClass(r.Labels[i]) {
			return fmt.Errorf("%w: class out of range at %d (prediction %d, label %d)",
				ErrInvalidPredictionResult, i, r.Predictions[i], r.Labels[i])
		}
	}
	return nil
}

func validClass(c int) bool {
	return c >= 0 && c < architecture.NumClasses
}

// Predict classifies one test batch of n examples (DefaultPredictSize when
// n <= 0) and returns predicted and true classes.
func (p *Pipeline) Predict(n int) (PredictionResult, error) {
	if err := p.acquire("predict"); err != nil {
		return PredictionResult{}, err
	}
	defer p.mu.Unlock()

	if err := p.requireCompiled("predict"); err != nil {
		return PredictionResult{}, err
	}
	if n <= 0 {
		n = DefaultPredictSize
	}

	var result PredictionResult
	err := Tidy(func(s *Scope) error {
		x, y, err := p.fetch(s, p.data.NextTestBatch, n)
		if err != nil {
			return fmt.Errorf("test batch: %w", err)
		}
		out, err := p.model.Predict(x)
		if err != nil {
			return err
		}
		s.Track(out)

		preds, err := p.engine.ArgMax(out)
		if err != nil {
			return fmt.Errorf("argmax predictions: %w", err)
		}
		labels, err := p.engine.ArgMax(y)
		if err != nil {
			return fmt.Errorf("argmax labels: %w", err)
		}
		result = PredictionResult{Predictions: preds, Labels: labels}
		if result.Len() != n {
			return fmt.Errorf("%w: got %d predictions, want %d", ErrInvalidPredictionResult, result.Len(), n)
		}
		return result.Validate()
	})
	if err != nil {
		return PredictionResult{}, fmt.Errorf("predict: %w", err)
	}

	p.logger.Debug("prediction finished", "examples", n)
	return result, nil
}

// PredictSingle runs one image through the model and returns the full class
// probability vector. The sample must hold exactly 28*28*1 values; it stays
// owned by the caller.
func (p *Pipeline) PredictSingle(sample Tensor) ([]float32, error) {
	if err := p.acquire("predict single"); err != nil {
		return nil, err
	}
	defer p.mu.Unlock()

	if err := p.requireCompiled("predict single"); err != nil {
		return nil, err
	}
	if sample == nil {
		return nil, fmt.Errorf("predict single: %w: nil sample", ErrShapeMismatch)
	}
	if got := architecture.Shape(sample.Shape()); got.Size() != architecture.InputShape().Size() {
		return nil, fmt.Errorf("predict single: %w: sample shape %v is not reshapeable to %v",
			ErrShapeMismatch, []int(got), []int(architecture.InputShape()))
	}

	var probs []float32
	err := Tidy(func(s *Scope) error {
		x, err := p.engine.Reshape(sample, 1, architecture.ImageHeight, architecture.ImageWidth, architecture.ImageChannels)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrShapeMismatch, err)
		}
		s.Track(x)

		out, err := p.model.Predict(x)
		if err != nil {
			return err
		}
		s.Track(out)

		values, err := p.engine.Values(out)
		if err != nil {
			return err
		}
		if len(values) != architecture.NumClasses {
			return fmt.Errorf("%w: model produced %d values, want %d", ErrShapeMismatch, len(values), architecture.NumClasses)
		}
		probs = values
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("predict single: %w", err)
	}
	return probs, nil
}

// Close releases the model and returns the pipeline to Empty.
func (p *Pipeline) Close() error {
	if err := p.acquire("close"); err != nil {
		return err
	}
	defer p.mu.Unlock()

	if p.model != nil {
		p.model.Release()
		p.model = nil
	}
	p.arch.Store(nil)
	p.setState(Empty)
	return nil
}

// fetch requests a batch of n examples, checks its label shape and reshapes
// the images to [n,28,28,1]. All three tensors are tracked by s.
func (p *Pipeline) fetch(s *Scope, next func(int) (Batch, error), n int) (Tensor, Tensor, error) {
	batch, err := next(n)
	if err != nil {
		batch.Release()
		return nil, nil, err
	}
	s.Track(batch.Images)
	s.Track(batch.Labels)

	if batch.Images == nil || batch.Labels == nil {
		return nil, nil, fmt.Errorf("%w: incomplete batch", ErrShapeMismatch)
	}
	if got := batch.Labels.Shape(); len(got) != 2 || got[0] != n || got[1] != architecture.NumClasses {
		return nil, nil, fmt.Errorf("%w: labels %v, want [%d %d]", ErrShapeMismatch, got, n, architecture.NumClasses)
	}

	x, err := p.engine.Reshape(batch.Images, n, architecture.ImageHeight, architecture.ImageWidth, architecture.ImageChannels)
	if err != nil {
		return nil, nil, fmt.Errorf("reshape images: %w: %w", ErrShapeMismatch, err)
	}
	s.Track(x)
	return x, batch.Labels, nil
}

func fmtUnknown(name, known string) error {
	return fmt.Errorf("%w: %q (known: %s)", ErrUnknownArchitecture, name, known)
}
