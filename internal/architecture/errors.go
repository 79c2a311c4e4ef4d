package architecture

import "errors"

// Common errors.
var (
	ErrUnknownArchitecture = errors.New("unknown architecture")
	ErrInvalidLayer        = errors.New("invalid layer")
)
