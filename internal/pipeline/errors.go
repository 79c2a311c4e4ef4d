package pipeline

import (
	"errors"

	"github.com/lhermann/mnist-ml-project/internal/architecture"
)

// Common errors.
//
// None of them are transient; retrying the same call without changing the
// input or the pipeline state fails the same way.
var (
	ErrNotCompiled             = errors.New("model not compiled: call InitModel first")
	ErrNotBuilt                = errors.New("model not built: call InitModel first")
	ErrShapeMismatch           = errors.New("shape mismatch")
	ErrInvalidPredictionResult = errors.New("invalid prediction result")
	ErrPipelineBusy            = errors.New("pipeline busy: another lifecycle call is in progress")

	// ErrUnknownArchitecture is returned by InitModel for names the catalog
	// does not know.
	ErrUnknownArchitecture = architecture.ErrUnknownArchitecture
)
