package video

import "errors"

// Error values returned by video modules and the pipeline. Callers match with
// errors.Is; wrapped messages carry the failing module and detail.
var (
	// ErrInvalidInput indicates a malformed frame, configuration, or argument.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInitialization indicates a module or pipeline failed to initialize.
	ErrInitialization = errors.New("initialization failed")

	// ErrNotInitialized indicates an operation that requires Initialize first.
	ErrNotInitialized = errors.New("not initialized")

	// ErrDestroyed indicates an operation on a destroyed component.
	ErrDestroyed = errors.New("destroyed")

	// ErrProcessing indicates a failure while transforming a frame.
	ErrProcessing = errors.New("processing failed")
)
