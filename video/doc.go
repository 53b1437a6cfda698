// Package video implements the frame enhancement pipeline: low-light
// compensation, color correction, and background blur applied per frame in a
// fixed invocation order.
//
// Unlike the audio chain, video modules are not linked to each other. The
// pipeline invokes each enabled module in sequence on every frame, and a
// single module failure skips that frame rather than stopping the stream.
//
// Frames arrive either from a sequential source or, on surfaces that only
// expose their latest rendering, from a scheduler-driven snapshot loop.
package video
