package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/lhermann/mnist-ml-project/internal/architecture"
	"github.com/lhermann/mnist-ml-project/internal/report"
)

// fakeEngine is an in-memory Engine that counts live tensors.
type fakeEngine struct {
	mu   sync.Mutex
	live int

	models []*fakeModel

	// fitGate, when set, blocks every Fit until it is closed.
	fitGate chan struct{}
	// fitStarted is signalled once per Fit when non-nil.
	fitStarted chan struct{}

	failCompile bool
	// failFit and failPredict, when set, are returned by every Fit and
	// Predict of the engine's models.
	failFit     error
	failPredict error
}

type fakeTensor struct {
	e        *fakeEngine
	shape    []int
	data     []float32
	released bool
}

func (t *fakeTensor) Shape() []int { return append([]int(nil), t.shape...) }

func (t *fakeTensor) Release() {
	t.e.mu.Lock()
	defer t.e.mu.Unlock()
	if t.released {
		return
	}
	t.released = true
	t.e.live--
}

func (e *fakeEngine) tensor(data []float32, shape ...int) *fakeTensor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.live++
	return &fakeTensor{e: e, shape: shape, data: data}
}

func (e *fakeEngine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.live
}

func (e *fakeEngine) NewModel() Model {
	m := &fakeModel{e: e}
	e.models = append(e.models, m)
	return m
}

func (e *fakeEngine) Reshape(t Tensor, shape ...int) (Tensor, error) {
	ft := t.(*fakeTensor)
	if architecture.Shape(shape).Size() != len(ft.data) {
		return nil, fmt.Errorf("cannot reshape %v to %v", ft.shape, shape)
	}
	return e.tensor(append([]float32(nil), ft.data...), shape...), nil
}

func (e *fakeEngine) ArgMax(t Tensor) ([]int, error) {
	ft := t.(*fakeTensor)
	cols := ft.shape[len(ft.shape)-1]
	rows := len(ft.data) / cols
	out := make([]int, rows)
	for r := 0; r < rows; r++ {
		row := ft.data[r*cols : (r+1)*cols]
		best := 0
		for c := range row {
			if row[c] > row[best] {
				best = c
			}
		}
		out[r] = best
	}
	return out, nil
}

func (e *fakeEngine) Values(t Tensor) ([]float32, error) {
	return append([]float32(nil), t.(*fakeTensor).data...), nil
}

type fakeModel struct {
	e        *fakeEngine
	layers   architecture.Spec
	compiled bool
	released bool
	fits     int
}

func (m *fakeModel) Add(l architecture.Layer) error {
	m.layers = append(m.layers, l)
	return nil
}

func (m *fakeModel) Compile(CompileConfig) error {
	if m.e.failCompile {
		return errors.New("compile failed")
	}
	if _, err := architecture.InferShapes(m.layers); err != nil {
		return err
	}
	m.compiled = true
	return nil
}

func (m *fakeModel) Fit(x, y Tensor, cfg FitConfig) (*report.History, error) {
	m.fits++
	if m.e.failFit != nil {
		return nil, m.e.failFit
	}
	if m.e.fitStarted != nil {
		m.e.fitStarted <- struct{}{}
	}
	if m.e.fitGate != nil {
		<-m.e.fitGate
	}
	h := report.NewHistory(cfg.RunID)
	n := x.Shape()[0]
	batches := (n + cfg.BatchSize - 1) / cfg.BatchSize
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		for b := 0; b < batches; b++ {
			if cfg.Progress != nil {
				cfg.Progress.OnBatchEnd(epoch, b, report.Logs{report.MetricLoss: 1, report.MetricAcc: 0.5})
			}
		}
		logs := report.Logs{
			report.MetricLoss:    1 / float64(epoch+1),
			report.MetricAcc:     0.5,
			report.MetricValLoss: 1 / float64(epoch+1),
			report.MetricValAcc:  0.5,
		}
		if cfg.Progress != nil {
			cfg.Progress.OnEpochEnd(epoch, logs)
		}
		h.Append(epoch, logs)
	}
	return h, nil
}

// Predict puts most of the probability mass on row%10.
func (m *fakeModel) Predict(x Tensor) (Tensor, error) {
	if m.e.failPredict != nil {
		return nil, m.e.failPredict
	}
	n := x.Shape()[0]
	data := make([]float32, n*architecture.NumClasses)
	for r := 0; r < n; r++ {
		for c := 0; c < architecture.NumClasses; c++ {
			data[r*architecture.NumClasses+c] = 0.05
		}
		data[r*architecture.NumClasses+r%architecture.NumClasses] = 0.55
	}
	return m.e.tensor(data, n, architecture.NumClasses), nil
}

func (m *fakeModel) Summary() ([]string, error) {
	return architecture.Summarize(m.layers)
}

func (m *fakeModel) Release() { m.released = true }

// fakeData produces images of zeros and labels cycling through the classes.
type fakeData struct {
	e *fakeEngine

	mu         sync.Mutex
	trainSizes []int
	testSizes  []int

	failTestBatch error
}

func (d *fakeData) batch(n int) Batch {
	labels := make([]float32, n*architecture.NumClasses)
	for i := 0; i < n; i++ {
		labels[i*architecture.NumClasses+i%architecture.NumClasses] = 1
	}
	return Batch{
		Images: d.e.tensor(make([]float32, n*architecture.InputShape().Size()), n, architecture.InputShape().Size()),
		Labels: d.e.tensor(labels, n, architecture.NumClasses),
	}
}

func (d *fakeData) NextTrainBatch(n int) (Batch, error) {
	d.mu.Lock()
	d.trainSizes = append(d.trainSizes, n)
	d.mu.Unlock()
	return d.batch(n), nil
}

func (d *fakeData) NextTestBatch(n int) (Batch, error) {
	d.mu.Lock()
	d.testSizes = append(d.testSizes, n)
	d.mu.Unlock()
	if d.failTestBatch != nil {
		return Batch{}, d.failTestBatch
	}
	return d.batch(n), nil
}

// recordingReporter remembers which surfaces were used.
type recordingReporter struct {
	mu        sync.Mutex
	summaries [][]string
	surfaces  []report.Surface
	batches   int
	epochs    int
	histories []*report.History
}

func (r *recordingReporter) record(s report.Surface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surfaces = append(r.surfaces, s)
}

func (r *recordingReporter) ShowModelSummary(s report.Surface, lines []string) {
	r.record(s)
	r.mu.Lock()
	r.summaries = append(r.summaries, lines)
	r.mu.Unlock()
}

func (r *recordingReporter) ShowFitProgress(s report.Surface, _ []string) report.ProgressSink {
	r.record(s)
	return r
}

func (r *recordingReporter) ShowHistory(s report.Surface, h *report.History, _ []string) {
	r.record(s)
	r.mu.Lock()
	r.histories = append(r.histories, h)
	r.mu.Unlock()
}

func (r *recordingReporter) ShowPerClassAccuracy(s report.Surface, _ []report.ClassAccuracy, _ []string) {
	r.record(s)
}

func (r *recordingReporter) ShowConfusionMatrix(s report.Surface, _ *mat.Dense, _ []string) {
	r.record(s)
}

func (r *recordingReporter) OnBatchEnd(int, int, report.Logs) {
	r.mu.Lock()
	r.batches++
	r.mu.Unlock()
}

func (r *recordingReporter) OnEpochEnd(int, report.Logs) {
	r.mu.Lock()
	r.epochs++
	r.mu.Unlock()
}

func newFixture() (*Pipeline, *fakeEngine, *fakeData, *recordingReporter) {
	e := &fakeEngine{}
	d := &fakeData{e: e}
	r := &recordingReporter{}
	return New(e, d, r), e, d, r
}
