// Package media defines the stream, track, and unit model shared by the
// streamfx pipelines, together with the capability-provider interfaces the
// pipelines depend on instead of any concrete platform API.
//
// A Stream carries zero or more audio tracks and zero or more video tracks;
// the core never assumes both are present. Audio flows as fixed-size PCM
// buffers, video as decoded RGBA frames. Sources supply units, sinks accept
// them, and pipes stitch a processed unit sequence back into an output track.
//
// The Scheduler interface abstracts continuous render-loop scheduling so that
// production code binds it to a timer primitive while tests drive loops with
// a manually-stepped fake.
package media
