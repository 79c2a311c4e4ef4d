//go:build !windows

package engine

func openWebGPU(...Option) (Runtime, error) {
	return nil, ErrBackendUnavailable
}
