// Copyright 2026 MNIST ML Project Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package architecture exposes the catalog of digit-classifier topologies.
//
// # Overview
//
// Nine named architectures are available: tutorial, direct, complex, simple,
// huge, large, modest, small and tiny. Each is an ordered list of layer
// descriptors taking 28x28x1 images. The shared 10-unit softmax output layer
// is not part of a catalog entry; use Spec.WithOutput for a full network.
//
// # Basic Usage
//
//	import "github.com/lhermann/mnist-ml-project/architecture"
//
//	spec, err := architecture.Build("tutorial")
//	if err != nil {
//	    return err
//	}
//	lines, _ := architecture.Summarize(spec.WithOutput())
//	for _, l := range lines {
//	    fmt.Println(l)
//	}
package architecture
