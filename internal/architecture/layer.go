// Package architecture holds the catalog of named digit-classifier topologies.
//
// An architecture is an ordered list of layer descriptors. Descriptors are
// plain data: they say what a layer is, never how it is computed. The tensor
// engine turns them into real layers.
//
// Every built network ends with the same output layer (see OutputLayer),
// which is appended by the pipeline and never stored in the catalog.
package architecture

import "fmt"

// Image geometry shared by every architecture.
const (
	ImageHeight   = 28
	ImageWidth    = 28
	ImageChannels = 1
	NumClasses    = 10
)

// Shape is a tensor shape without the batch dimension.
type Shape []int

// InputShape returns the fixed per-example input shape [28, 28, 1].
func InputShape() Shape {
	return Shape{ImageHeight, ImageWidth, ImageChannels}
}

// Size returns the number of elements described by the shape.
func (s Shape) Size() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Equal reports whether two shapes have the same dimensions.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s Shape) String() string {
	out := "[null"
	for _, d := range s {
		out += fmt.Sprintf(",%d", d)
	}
	return out + "]"
}

func (s Shape) clone() Shape {
	if s == nil {
		return nil
	}
	return append(Shape(nil), s...)
}

// Activation names an element-wise activation applied after a layer.
type Activation string

// Supported activations.
const (
	ReLU    Activation = "relu"
	Softmax Activation = "softmax"
)

// Initializer names a kernel initialization scheme.
type Initializer string

// VarianceScaling draws weights with variance 1/fanIn.
const VarianceScaling Initializer = "varianceScaling"

// Kind identifies a layer variant.
type Kind int

// Layer kinds.
const (
	KindConv2D Kind = iota
	KindMaxPool2D
	KindFlatten
	KindDense
)

func (k Kind) String() string {
	switch k {
	case KindConv2D:
		return "Conv2D"
	case KindMaxPool2D:
		return "MaxPooling2D"
	case KindFlatten:
		return "Flatten"
	case KindDense:
		return "Dense"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Layer is a declarative layer descriptor. The set of implementations is
// closed: Conv2D, MaxPool2D, Flatten and Dense.
type Layer interface {
	Kind() Kind
	// Input returns the declared input shape, or nil when the layer takes
	// its input from the previous layer.
	Input() Shape

	withInput(s Shape) Layer
	isLayer()
}

// Conv2D is a 2D convolution with square kernel and valid padding.
type Conv2D struct {
	KernelSize        int
	Filters           int
	Strides           int
	Activation        Activation
	KernelInitializer Initializer
	InputShape        Shape
}

// MaxPool2D is a 2D max pooling with square window.
type MaxPool2D struct {
	PoolSize   int
	Strides    int
	InputShape Shape
}

// Flatten collapses all non-batch dimensions into one.
type Flatten struct {
	InputShape Shape
}

// Dense is a fully connected layer.
type Dense struct {
	Units             int
	Activation        Activation
	KernelInitializer Initializer
}

func (Conv2D) Kind() Kind    { return KindConv2D }
func (MaxPool2D) Kind() Kind { return KindMaxPool2D }
func (Flatten) Kind() Kind   { return KindFlatten }
func (Dense) Kind() Kind     { return KindDense }

func (l Conv2D) Input() Shape    { return l.InputShape }
func (l MaxPool2D) Input() Shape { return l.InputShape }
func (l Flatten) Input() Shape   { return l.InputShape }

// Input always returns nil: a dense layer is never the first layer of a
// catalog architecture.
func (Dense) Input() Shape { return nil }

func (l Conv2D) withInput(s Shape) Layer    { l.InputShape = s.clone(); return l }
func (l MaxPool2D) withInput(s Shape) Layer { l.InputShape = s.clone(); return l }
func (l Flatten) withInput(s Shape) Layer   { l.InputShape = s.clone(); return l }
func (l Dense) withInput(Shape) Layer       { return l }

func (Conv2D) isLayer()    {}
func (MaxPool2D) isLayer() {}
func (Flatten) isLayer()   {}
func (Dense) isLayer()     {}

func (l Conv2D) String() string {
	return fmt.Sprintf("Conv2D(kernel=%d, filters=%d, strides=%d, activation=%s)",
		l.KernelSize, l.Filters, l.Strides, l.Activation)
}

func (l MaxPool2D) String() string {
	return fmt.Sprintf("MaxPool2D(pool=%d, strides=%d)", l.PoolSize, l.Strides)
}

func (Flatten) String() string { return "Flatten()" }

func (l Dense) String() string {
	return fmt.Sprintf("Dense(units=%d, activation=%s)", l.Units, l.Activation)
}

// OutputLayer returns the classification head appended to every network.
func OutputLayer() Dense {
	return Dense{Units: NumClasses, Activation: Softmax, KernelInitializer: VarianceScaling}
}
