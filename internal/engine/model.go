package engine

import (
	"fmt"
	"math"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"

	"github.com/lhermann/mnist-ml-project/internal/architecture"
	"github.com/lhermann/mnist-ml-project/internal/pipeline"
	"github.com/lhermann/mnist-ml-project/internal/report"
)

// module is one materialized layer. Born layers satisfy it directly.
type module[B tensor.Backend] interface {
	Forward(x *tensor.Tensor[float32, *autodiff.Backend[B]]) *tensor.Tensor[float32, *autodiff.Backend[B]]
	Parameters() []*nn.Parameter[*autodiff.Backend[B]]
}

// flatten collapses everything but the batch dimension.
type flatten[B tensor.Backend] struct{}

func (flatten[B]) Forward(x *tensor.Tensor[float32, *autodiff.Backend[B]]) *tensor.Tensor[float32, *autodiff.Backend[B]] {
	shape := x.Shape()
	return x.Reshape(shape[0], shape[1:].NumElements())
}

func (flatten[B]) Parameters() []*nn.Parameter[*autodiff.Backend[B]] { return nil }

// Model is a sequential Born network built from architecture layers.
//
// Images enter as [N,28,28,1]. With a single channel that buffer is already
// a valid [N,1,28,28] tensor, which is the layout Born convolutions expect.
type Model[B tensor.Backend] struct {
	e *Engine[B]

	layers  architecture.Spec
	infos   []architecture.LayerInfo
	modules []module[B]
	params  []*nn.Parameter[*autodiff.Backend[B]]
	adam    *optim.Adam[*autodiff.Backend[B]]

	compiled bool
	released bool
}

func newModel[B tensor.Backend](e *Engine[B]) *Model[B] {
	return &Model[B]{e: e}
}

// Add appends a layer descriptor. Layers are materialized by Compile.
func (m *Model[B]) Add(l architecture.Layer) error {
	if m.compiled {
		return fmt.Errorf("%w: cannot add layers after compile", ErrUnsupported)
	}
	m.layers = append(m.layers, l)
	return nil
}

// Compile materializes the layers with variance-scaling weights and sets up
// Adam. Only categorical cross-entropy on softmax outputs is supported.
func (m *Model[B]) Compile(cfg pipeline.CompileConfig) (err error) {
	defer recoverError("compile", &err)

	if m.compiled {
		return fmt.Errorf("%w: already compiled", ErrUnsupported)
	}
	if cfg.Optimizer != pipeline.OptimizerAdam {
		return fmt.Errorf("%w: optimizer %q", ErrUnsupported, cfg.Optimizer)
	}
	if cfg.Loss != pipeline.LossCategoricalCrossentropy {
		return fmt.Errorf("%w: loss %q", ErrUnsupported, cfg.Loss)
	}

	infos, err := architecture.InferShapes(m.layers)
	if err != nil {
		return err
	}
	last := infos[len(infos)-1]
	if out, ok := last.Layer.(architecture.Dense); !ok || out.Activation != architecture.Softmax {
		return fmt.Errorf("%w: last layer must be a softmax dense layer, got %v", ErrUnsupported, last.Layer)
	}
	if !last.Output.Equal(architecture.Shape{architecture.NumClasses}) {
		return fmt.Errorf("%w: output shape %v", ErrUnsupported, last.Output)
	}

	backend := m.e.backend
	var modules []module[B]
	for i, info := range infos {
		switch l := info.Layer.(type) {
		case architecture.Conv2D:
			conv := nn.NewConv2D(info.Input[2], l.Filters, l.KernelSize, l.KernelSize, l.Strides, 0, true, backend)
			m.initWeights(conv.Parameters(), l.KernelInitializer, l.KernelSize*l.KernelSize*info.Input[2])
			modules = append(modules, conv)
			if err := appendActivation(&modules, l.Activation, false); err != nil {
				return fmt.Errorf("layer %d: %w", i, err)
			}
		case architecture.MaxPool2D:
			modules = append(modules, nn.NewMaxPool2D(l.PoolSize, l.Strides, backend))
		case architecture.Flatten:
			modules = append(modules, flatten[B]{})
		case architecture.Dense:
			linear := nn.NewLinear(info.Input[0], l.Units, backend)
			m.initWeights(linear.Parameters(), l.KernelInitializer, info.Input[0])
			modules = append(modules, linear)
			if err := appendActivation(&modules, l.Activation, i == len(infos)-1); err != nil {
				return fmt.Errorf("layer %d: %w", i, err)
			}
		default:
			return fmt.Errorf("%w: layer %T", ErrUnsupported, l)
		}
	}

	var params []*nn.Parameter[*autodiff.Backend[B]]
	for _, mod := range modules {
		params = append(params, mod.Parameters()...)
	}

	m.infos = infos
	m.modules = modules
	m.params = params
	m.adam = optim.NewAdam(params, optim.AdamConfig{
		LR:    m.e.opts.lr,
		Betas: [2]float32{DefaultBeta1, DefaultBeta2},
		Eps:   DefaultEpsilon,
	}, backend)
	m.compiled = true

	m.e.opts.logger.Debug("model compiled",
		"backend", m.e.Name(),
		"layers", len(infos),
		"params", architecture.TotalParams(infos),
	)
	return nil
}

// appendActivation adds a ReLU module. The output softmax is left to Predict
// and to the cross-entropy loss, which both work on logits.
func appendActivation[B tensor.Backend](modules *[]module[B], act architecture.Activation, output bool) error {
	switch {
	case act == "":
		return nil
	case act == architecture.ReLU:
		*modules = append(*modules, nn.NewReLU[*autodiff.Backend[B]]())
		return nil
	case act == architecture.Softmax && output:
		return nil
	default:
		return fmt.Errorf("%w: activation %q", ErrUnsupported, act)
	}
}

// initWeights overwrites the weight of a layer with a truncated normal of
// variance 1/fanIn and zeroes its bias.
func (m *Model[B]) initWeights(params []*nn.Parameter[*autodiff.Backend[B]], init architecture.Initializer, fanIn int) {
	if init != architecture.VarianceScaling || len(params) == 0 || fanIn <= 0 {
		return
	}
	// 0.87962566 is the stddev of a unit normal truncated at two sigma.
	std := math.Sqrt(1/float64(fanIn)) / 0.87962566103423978
	w := params[0].Tensor().Data()
	for i := range w {
		v := m.e.normal()
		for math.Abs(v) > 2 {
			v = m.e.normal()
		}
		w[i] = float32(v * std)
	}
	for _, p := range params[1:] {
		clear(p.Tensor().Data())
	}
}

func (m *Model[B]) forward(x *tensor.Tensor[float32, *autodiff.Backend[B]]) *tensor.Tensor[float32, *autodiff.Backend[B]] {
	for _, mod := range m.modules {
		x = mod.Forward(x)
	}
	return x
}

// input copies rows of the flat image data into a [len(rows),1,28,28] tensor.
func (m *Model[B]) input(data []float32, rows []int) (*tensor.Tensor[float32, *autodiff.Backend[B]], error) {
	size := architecture.InputShape().Size()
	buf := make([]float32, len(rows)*size)
	for i, r := range rows {
		copy(buf[i*size:(i+1)*size], data[r*size:(r+1)*size])
	}
	return tensor.FromSlice(buf, tensor.Shape{len(rows), architecture.ImageChannels, architecture.ImageHeight, architecture.ImageWidth}, m.e.backend)
}

func (m *Model[B]) targets(labels []int32, rows []int) (*tensor.Tensor[int32, *autodiff.Backend[B]], error) {
	buf := make([]int32, len(rows))
	for i, r := range rows {
		buf[i] = labels[r]
	}
	return tensor.FromSlice(buf, tensor.Shape{len(rows)}, m.e.backend)
}

func (m *Model[B]) ready() error {
	if m.released {
		return fmt.Errorf("%w: model released", ErrUnsupported)
	}
	if !m.compiled {
		return pipeline.ErrNotCompiled
	}
	return nil
}

// examples validates x and y and returns the flat image data and class
// indices of the labels.
func (m *Model[B]) examples(x, y pipeline.Tensor) ([]float32, []int32, error) {
	xh, err := m.e.unwrap(x)
	if err != nil {
		return nil, nil, err
	}
	yh, err := m.e.unwrap(y)
	if err != nil {
		return nil, nil, err
	}
	xs, ys := xh.Shape(), yh.Shape()
	if len(xs) == 0 || len(ys) != 2 || xs[0] != ys[0] || ys[1] != architecture.NumClasses {
		return nil, nil, fmt.Errorf("%w: x %v, y %v", pipeline.ErrShapeMismatch, xs, ys)
	}
	if architecture.Shape(xs[1:]).Size() != architecture.InputShape().Size() {
		return nil, nil, fmt.Errorf("%w: x %v", pipeline.ErrShapeMismatch, xs)
	}
	classes := argmaxRows(yh.data(), architecture.NumClasses)
	labels := make([]int32, len(classes))
	for i, c := range classes {
		labels[i] = int32(c)
	}
	return xh.data(), labels, nil
}

// Fit trains with mini-batch Adam and, when validation data is set,
// evaluates it after every epoch.
func (m *Model[B]) Fit(x, y pipeline.Tensor, cfg pipeline.FitConfig) (history *report.History, err error) {
	defer recoverError("fit", &err)

	if err := m.ready(); err != nil {
		return nil, err
	}
	data, labels, err := m.examples(x, y)
	if err != nil {
		return nil, err
	}
	var valData []float32
	var valLabels []int32
	if cfg.ValidationX != nil && cfg.ValidationY != nil {
		if valData, valLabels, err = m.examples(cfg.ValidationX, cfg.ValidationY); err != nil {
			return nil, fmt.Errorf("validation: %w", err)
		}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = pipeline.DefaultBatchSize
	}

	log := m.e.opts.logger.With("run_id", cfg.RunID)
	history = report.NewHistory(cfg.RunID)
	n := len(labels)

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		order := identity(n)
		if cfg.Shuffle {
			order = m.e.shuffle(n)
		}

		var lossSum, correct float64
		batch := 0
		for start := 0; start < n; start += cfg.BatchSize {
			rows := order[start:min(start+cfg.BatchSize, n)]
			loss, acc, err := m.step(data, labels, rows)
			if err != nil {
				return nil, fmt.Errorf("epoch %d batch %d: %w", epoch, batch, err)
			}
			lossSum += loss * float64(len(rows))
			correct += acc * float64(len(rows))
			if cfg.Progress != nil {
				cfg.Progress.OnBatchEnd(epoch, batch, report.Logs{report.MetricLoss: loss, report.MetricAcc: acc})
			}
			batch++
		}

		logs := report.Logs{}
		if n > 0 {
			logs[report.MetricLoss] = lossSum / float64(n)
			logs[report.MetricAcc] = correct / float64(n)
		}
		if valLabels != nil {
			valLoss, valAcc, err := m.evaluate(valData, valLabels, cfg.BatchSize)
			if err != nil {
				return nil, fmt.Errorf("epoch %d validation: %w", epoch, err)
			}
			logs[report.MetricValLoss] = valLoss
			logs[report.MetricValAcc] = valAcc
		}

		log.Debug("epoch finished", "epoch", epoch, "loss", logs[report.MetricLoss], "acc", logs[report.MetricAcc])
		if cfg.Progress != nil {
			cfg.Progress.OnEpochEnd(epoch, logs)
		}
		history.Append(epoch, logs)
	}
	return history, nil
}

// step runs one optimization step and returns the batch loss and accuracy.
func (m *Model[B]) step(data []float32, labels []int32, rows []int) (float64, float64, error) {
	m.e.tapeMu.Lock()
	defer m.e.tapeMu.Unlock()

	backend := m.e.backend
	tape := backend.Tape()

	images, err := m.input(data, rows)
	if err != nil {
		return 0, 0, err
	}
	defer images.Raw().Release()
	targets, err := m.targets(labels, rows)
	if err != nil {
		return 0, 0, err
	}
	defer targets.Raw().Release()

	m.adam.ZeroGrad()
	tape.Clear()
	tape.StartRecording()
	defer func() {
		tape.StopRecording()
		tape.Clear()
	}()

	logits := m.forward(images)
	lossRaw := backend.CrossEntropy(logits.Raw(), targets.Raw())
	loss := float64(lossRaw.AsFloat32()[0])

	outputGrad, err := tensor.NewRaw(lossRaw.Shape(), tensor.Float32, backend.Device())
	if err != nil {
		return 0, 0, err
	}
	outputGrad.AsFloat32()[0] = 1
	m.adam.Step(tape.Backward(outputGrad, backend))

	acc := float64(nn.Accuracy(logits, targets))
	return loss, acc, nil
}

// evaluate computes mean loss and accuracy without recording gradients.
func (m *Model[B]) evaluate(data []float32, labels []int32, batchSize int) (float64, float64, error) {
	backend := m.e.backend
	n := len(labels)
	if n == 0 {
		return 0, 0, nil
	}
	order := identity(n)

	m.e.tapeMu.Lock()
	defer m.e.tapeMu.Unlock()
	backend.Tape().StopRecording()

	var lossSum, correct float64
	for start := 0; start < n; start += batchSize {
		rows := order[start:min(start+batchSize, n)]
		images, err := m.input(data, rows)
		if err != nil {
			return 0, 0, err
		}
		targets, err := m.targets(labels, rows)
		if err != nil {
			images.Raw().Release()
			return 0, 0, err
		}

		logits := m.forward(images)
		lossRaw := backend.CrossEntropy(logits.Raw(), targets.Raw())
		lossSum += float64(lossRaw.AsFloat32()[0]) * float64(len(rows))
		correct += float64(nn.Accuracy(logits, targets)) * float64(len(rows))

		images.Raw().Release()
		targets.Raw().Release()
	}
	return lossSum / float64(n), correct / float64(n), nil
}

// Predict returns class probabilities [N,10] for x.
func (m *Model[B]) Predict(x pipeline.Tensor) (out pipeline.Tensor, err error) {
	defer recoverError("predict", &err)

	if err := m.ready(); err != nil {
		return nil, err
	}
	xh, err := m.e.unwrap(x)
	if err != nil {
		return nil, err
	}
	shape := xh.Shape()
	if len(shape) == 0 || architecture.Shape(shape[1:]).Size() != architecture.InputShape().Size() {
		return nil, fmt.Errorf("%w: input %v", pipeline.ErrShapeMismatch, shape)
	}

	logits, err := m.infer(xh.data(), shape[0])
	if err != nil {
		return nil, err
	}
	return m.e.FromSlice(softmaxRows(logits, architecture.NumClasses), shape[0], architecture.NumClasses)
}

// infer runs the network on n examples without recording gradients and
// returns the logits.
func (m *Model[B]) infer(data []float32, n int) ([]float32, error) {
	m.e.tapeMu.Lock()
	defer m.e.tapeMu.Unlock()

	m.e.backend.Tape().StopRecording()
	images, err := m.input(data, identity(n))
	if err != nil {
		return nil, err
	}
	defer images.Raw().Release()

	return m.forward(images).Data(), nil
}

// Summary returns the layer table of the compiled network.
func (m *Model[B]) Summary() ([]string, error) {
	if len(m.layers) == 0 {
		return nil, pipeline.ErrNotBuilt
	}
	return architecture.Summarize(m.layers)
}

// Release drops the network. Parameters are freed once nothing references them.
func (m *Model[B]) Release() {
	if m.released {
		return
	}
	m.released = true
	m.modules = nil
	m.params = nil
	m.adam = nil

	m.e.tapeMu.Lock()
	m.e.backend.Tape().Clear()
	m.e.tapeMu.Unlock()
}

func identity(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

// softmaxRows applies a numerically stable softmax to each row.
func softmaxRows(logits []float32, cols int) []float32 {
	out := make([]float32, len(logits))
	for r := 0; r+cols <= len(logits); r += cols {
		row := logits[r : r+cols]
		maxv := row[0]
		for _, v := range row[1:] {
			maxv = max(maxv, v)
		}
		var sum float64
		for i, v := range row {
			e := math.Exp(float64(v - maxv))
			out[r+i] = float32(e)
			sum += e
		}
		for i := range row {
			out[r+i] = float32(float64(out[r+i]) / sum)
		}
	}
	return out
}
