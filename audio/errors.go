package audio

import "errors"

// Sentinel errors for audio module and pipeline operations.
// These errors enable reliable error classification using errors.Is().

var (
	// ErrInvalidInput indicates the input is not a usable stream or buffer.
	ErrInvalidInput = errors.New("invalid audio input")

	// ErrInitialization indicates the processing backend failed to construct.
	// The component remains uninitialized, so retrying is safe.
	ErrInitialization = errors.New("audio initialization failed")

	// ErrNotInitialized indicates Process or Connect was called before
	// Initialize completed.
	ErrNotInitialized = errors.New("audio component not initialized")

	// ErrDestroyed indicates an operation was attempted after Destroy.
	ErrDestroyed = errors.New("audio component destroyed")

	// ErrProcessing indicates a failure during a per-buffer transform.
	ErrProcessing = errors.New("audio processing failed")
)
