package architecture

import (
	"fmt"
	"strings"
)

// Spec is an ordered list of layer descriptors. It never includes the
// output layer.
type Spec []Layer

// Default is the architecture used when none is chosen.
const Default = "tutorial"

// names keeps catalog order stable for listings.
var names = []string{
	"tutorial",
	"direct",
	"complex",
	"simple",
	"huge",
	"large",
	"modest",
	"small",
	"tiny",
}

var catalog = map[string]Spec{
	// Two conv/pool blocks, as in the TensorFlow.js digit tutorial.
	"tutorial": first(
		conv(5, 8, 1),
		pool(2),
		conv(5, 16, 1),
		pool(2),
		Flatten{},
	),
	"direct": first(
		conv(5, 8, 1),
		pool(3),
		Flatten{},
	),
	"complex": first(
		conv(5, 8, 1),
		conv(4, 16, 2),
		conv(4, 16, 2),
		Flatten{},
	),
	// Downsample to 7x7 before the only convolution.
	"simple": first(
		pool(2),
		pool(2),
		conv(5, 8, 1),
		Flatten{},
	),
	"huge": first(
		Flatten{},
		dense(128),
		dense(64),
	),
	"large": first(
		pool(2),
		Flatten{},
		dense(128),
		dense(64),
	),
	"modest": first(
		Flatten{},
		dense(64),
	),
	"small": first(
		pool(2),
		Flatten{},
		dense(64),
	),
	"tiny": first(
		pool(2),
		pool(2),
		Flatten{},
		dense(32),
	),
}

// Names returns the catalog names in declaration order.
func Names() []string {
	return append([]string(nil), names...)
}

// Has reports whether name is in the catalog.
func Has(name string) bool {
	_, ok := catalog[name]
	return ok
}

// Build returns a copy of the named architecture.
//
// Unknown names fail with ErrUnknownArchitecture; there is no fallback to an
// empty or default topology.
func Build(name string) (Spec, error) {
	spec, ok := catalog[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownArchitecture, name, strings.Join(names, ", "))
	}
	return spec.Clone(), nil
}

// Clone returns a deep copy of s.
func (s Spec) Clone() Spec {
	out := make(Spec, len(s))
	for i, l := range s {
		out[i] = l.withInput(l.Input())
	}
	return out
}

// WithOutput returns a copy of s with OutputLayer appended.
func (s Spec) WithOutput() Spec {
	return append(s.Clone(), OutputLayer())
}

// Validate checks that s is non-empty and that exactly the first
// layer declares the input shape.
func (s Spec) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: empty architecture", ErrInvalidLayer)
	}
	if !s[0].Input().Equal(InputShape()) {
		return fmt.Errorf("%w: first layer %s must declare input shape %v", ErrInvalidLayer, s[0].Kind(), InputShape())
	}
	for i, l := range s[1:] {
		if l.Input() != nil {
			return fmt.Errorf("%w: layer %d (%s) declares an input shape", ErrInvalidLayer, i+1, l.Kind())
		}
	}
	return nil
}

func first(layers ...Layer) Spec {
	layers[0] = layers[0].withInput(InputShape())
	return layers
}

// conv and dense apply the fixed hidden-layer policy: relu activation and
// variance-scaling initialization.
func conv(kernel, filters, strides int) Conv2D {
	return Conv2D{
		KernelSize:        kernel,
		Filters:           filters,
		Strides:           strides,
		Activation:        ReLU,
		KernelInitializer: VarianceScaling,
	}
}

func pool(size int) MaxPool2D {
	return MaxPool2D{PoolSize: size, Strides: size}
}

func dense(units int) Dense {
	return Dense{Units: units, Activation: ReLU, KernelInitializer: VarianceScaling}
}
