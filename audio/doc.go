// Package audio implements the audio enhancement modules and pipeline for
// streamfx.
//
// Three module kinds are provided: noise suppression (spectral subtraction
// against a sliding-window noise floor), automatic gain control (attack/
// release smoothed makeup gain toward a dB target), and voice focus (band
// energy detection with confidence-weighted enhancement). Modules implement a
// common contract — Initialize, Process, UpdateConfig, Stats, Destroy — and
// chain source-to-sink in a fixed order:
//
//	noiseSuppression → agc → voiceFocus
//
// The Pipeline owns the chain, feeds it from a stream's audio tracks in a
// continuous buffer loop, and monitors aggregate signal level and noise floor
// while processing. The chain is only ever rebuilt wholesale on feature
// toggles, never spliced, so no connection can dangle.
package audio
