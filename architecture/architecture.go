// Copyright 2026 MNIST ML Project Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package architecture

import "github.com/lhermann/mnist-ml-project/internal/architecture"

// Spec is an ordered list of layer descriptors.
type Spec = architecture.Spec

// Layer is a layer descriptor.
type Layer = architecture.Layer

// Layer descriptors.
type (
	Conv2D    = architecture.Conv2D
	MaxPool2D = architecture.MaxPool2D
	Flatten   = architecture.Flatten
	Dense     = architecture.Dense
)

// Shape is a per-example tensor shape.
type Shape = architecture.Shape

// LayerInfo is a layer with its inferred shapes and parameter count.
type LayerInfo = architecture.LayerInfo

// Default is the architecture used when none is chosen.
const Default = architecture.Default

// ErrUnknownArchitecture is returned by Build for names not in the catalog.
var ErrUnknownArchitecture = architecture.ErrUnknownArchitecture

// Names returns the catalog names in a stable order.
func Names() []string {
	return architecture.Names()
}

// Build returns a copy of the named architecture.
func Build(name string) (Spec, error) {
	return architecture.Build(name)
}

// OutputLayer returns the 10-unit softmax layer every network ends with.
func OutputLayer() Dense {
	return architecture.OutputLayer()
}

// InferShapes computes the output shape and parameter count of each layer.
func InferShapes(spec Spec) ([]LayerInfo, error) {
	return architecture.InferShapes(spec)
}

// Summarize renders a layer table for spec.
func Summarize(spec Spec) ([]string, error) {
	return architecture.Summarize(spec)
}
