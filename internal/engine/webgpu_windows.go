//go:build windows

package engine

import (
	"fmt"

	"github.com/born-ml/born/backend/webgpu"
)

func openWebGPU(opts ...Option) (Runtime, error) {
	if !webgpu.IsAvailable() {
		return nil, ErrBackendUnavailable
	}
	backend, err := webgpu.New()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	e := New(backend, opts...)
	e.release = func() error {
		backend.Release()
		return nil
	}
	return e, nil
}
