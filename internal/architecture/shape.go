package architecture

import (
	"fmt"
	"strings"
)

// LayerInfo is a layer together with its inferred output shape and
// trainable parameter count.
type LayerInfo struct {
	Layer  Layer
	Name   string
	Input  Shape
	Output Shape
	Params int
}

// InferShapes walks the architecture from the first layer's declared input shape and
// computes each layer's output shape and parameter count.
//
// Convolutions and pooling use valid padding:
//
//	out = (in - window) / stride + 1
func InferShapes(spec Spec) ([]LayerInfo, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	infos := make([]LayerInfo, 0, len(spec))
	counts := map[Kind]int{}
	cur := spec[0].Input().clone()

	for i, l := range spec {
		out, params, err := infer(l, cur)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, l.Kind(), err)
		}
		counts[l.Kind()]++
		infos = append(infos, LayerInfo{
			Layer:  l,
			Name:   fmt.Sprintf("%s_%d", strings.ToLower(l.Kind().String()), counts[l.Kind()]),
			Input:  cur,
			Output: out,
			Params: params,
		})
		cur = out
	}
	return infos, nil
}

func infer(l Layer, in Shape) (Shape, int, error) {
	switch l := l.(type) {
	case Conv2D:
		if len(in) != 3 {
			return nil, 0, fmt.Errorf("%w: conv2d needs [h,w,c] input, got %v", ErrInvalidLayer, in)
		}
		if l.KernelSize <= 0 || l.Filters <= 0 || l.Strides <= 0 {
			return nil, 0, fmt.Errorf("%w: %v", ErrInvalidLayer, l)
		}
		h, w, err := window(in, l.KernelSize, l.Strides)
		if err != nil {
			return nil, 0, err
		}
		params := l.KernelSize*l.KernelSize*in[2]*l.Filters + l.Filters
		return Shape{h, w, l.Filters}, params, nil

	case MaxPool2D:
		if len(in) != 3 {
			return nil, 0, fmt.Errorf("%w: maxpool2d needs [h,w,c] input, got %v", ErrInvalidLayer, in)
		}
		if l.PoolSize <= 0 || l.Strides <= 0 {
			return nil, 0, fmt.Errorf("%w: %v", ErrInvalidLayer, l)
		}
		h, w, err := window(in, l.PoolSize, l.Strides)
		if err != nil {
			return nil, 0, err
		}
		return Shape{h, w, in[2]}, 0, nil

	case Flatten:
		return Shape{in.Size()}, 0, nil

	case Dense:
		if len(in) != 1 {
			return nil, 0, fmt.Errorf("%w: dense needs flat input, got %v", ErrInvalidLayer, in)
		}
		if l.Units <= 0 {
			return nil, 0, fmt.Errorf("%w: %v", ErrInvalidLayer, l)
		}
		return Shape{l.Units}, in[0]*l.Units + l.Units, nil
	}
	return nil, 0, fmt.Errorf("%w: unsupported layer %T", ErrInvalidLayer, l)
}

func window(in Shape, size, stride int) (int, int, error) {
	if in[0] < size || in[1] < size {
		return 0, 0, fmt.Errorf("%w: window %d larger than input %v", ErrInvalidLayer, size, in)
	}
	return (in[0]-size)/stride + 1, (in[1]-size)/stride + 1, nil
}

// TotalParams sums the parameter counts.
func TotalParams(infos []LayerInfo) int {
	total := 0
	for _, info := range infos {
		total += info.Params
	}
	return total
}

const (
	ruleThin  = "_________________________________________________________________"
	ruleThick = "================================================================="
)

// Summarize renders a layer table for the architecture, one line per slice element:
//
//	Layer (type)                 Output shape              Param #
//	conv2d_1 (Conv2D)            [null,24,24,8]            208
//
// The output layer is not appended; pass spec.WithOutput() for a full network.
func Summarize(spec Spec) ([]string, error) {
	infos, err := InferShapes(spec)
	if err != nil {
		return nil, err
	}

	lines := []string{
		ruleThin,
		row("Layer (type)", "Output shape", "Param #"),
		ruleThick,
	}
	for i, info := range infos {
		lines = append(lines, row(
			fmt.Sprintf("%s (%s)", info.Name, info.Layer.Kind()),
			info.Output.String(),
			fmt.Sprintf("%d", info.Params),
		))
		if i < len(infos)-1 {
			lines = append(lines, ruleThin)
		}
	}
	total := TotalParams(infos)
	lines = append(lines,
		ruleThick,
		fmt.Sprintf("Total params: %d", total),
		fmt.Sprintf("Trainable params: %d", total),
		"Non-trainable params: 0",
		ruleThin,
	)
	return lines, nil
}

func row(name, shape, params string) string {
	return fmt.Sprintf("%-29s%-26s%s", name, shape, params)
}
