package engine

import (
	"fmt"
	"strings"

	"github.com/born-ml/born/backend/cpu"
)

// Backend names accepted by Open.
const (
	BackendCPU    = "cpu"
	BackendWebGPU = "webgpu"
)

// Backends lists the backend names accepted by Open.
func Backends() []string {
	return []string{BackendCPU, BackendWebGPU}
}

// Open creates an engine on the named backend.
func Open(name string, opts ...Option) (Runtime, error) {
	switch strings.ToLower(name) {
	case "", BackendCPU:
		return New(cpu.New(), opts...), nil
	case BackendWebGPU:
		return openWebGPU(opts...)
	default:
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownBackend, name, strings.Join(Backends(), ", "))
	}
}
