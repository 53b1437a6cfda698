package streamfx

import "errors"

// Error values returned by the Processor. Pipeline and module failures wrap
// these roots; callers match with errors.Is.
var (
	// ErrInvalidInput indicates a malformed stream, configuration, or argument.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInitialization indicates the processor or a pipeline failed to start.
	ErrInitialization = errors.New("initialization failed")

	// ErrDestroyed indicates an operation on a destroyed processor.
	ErrDestroyed = errors.New("destroyed")

	// ErrProcessing indicates a failure while enhancing a stream.
	ErrProcessing = errors.New("processing failed")
)
