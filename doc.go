// Package streamfx enhances live audio and video streams in real time.
//
// A Processor owns up to two pipelines, one per media domain. The audio
// pipeline chains noise suppression, automatic gain control, and voice focus
// over PCM buffers; the video pipeline applies low-light compensation, color
// correction, and background blur to decoded frames. Each enhancement is an
// independently toggleable module with its own configuration, statistics,
// and event channel.
//
// Basic usage:
//
//	options := streamfx.NewOptions()
//	options.Config = config.Config{
//		"audio": config.Config{
//			"noiseSuppression": config.Config{"enabled": true, "intensity": "high"},
//		},
//	}
//
//	processor, err := streamfx.New(options)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer processor.Destroy()
//
//	enhanced, err := processor.Process(stream)
//
// Processing applies the audio pipeline before the video pipeline. Streams
// missing a track kind, and domains with no enabled module, pass through
// unchanged. Configuration merges are forward-compatible: unknown keys
// survive, nested maps merge field-by-field, and primitives replace
// wholesale.
package streamfx
