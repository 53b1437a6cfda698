package media

import "time"

// AudioBuffer is one processing callback's worth of PCM samples.
//
// Samples are interleaved int16 PCM. Enhancement modules transform sample
// values but never change the sample count, rate, or channel layout.
type AudioBuffer struct {
	PCM        []int16
	SampleRate uint32
	Channels   uint8
}

// NewAudioBuffer allocates a silent buffer of the given shape.
func NewAudioBuffer(sampleCount int, sampleRate uint32, channels uint8) *AudioBuffer {
	return &AudioBuffer{
		PCM:        make([]int16, sampleCount),
		SampleRate: sampleRate,
		Channels:   channels,
	}
}

// Clone returns a deep copy of the buffer.
func (b *AudioBuffer) Clone() *AudioBuffer {
	if b == nil {
		return nil
	}
	return &AudioBuffer{
		PCM:        append([]int16(nil), b.PCM...),
		SampleRate: b.SampleRate,
		Channels:   b.Channels,
	}
}

// SampleCount returns the number of samples in the buffer.
func (b *AudioBuffer) SampleCount() int {
	return len(b.PCM)
}

// Duration returns the playback duration the buffer represents.
func (b *AudioBuffer) Duration() time.Duration {
	if b.SampleRate == 0 || b.Channels == 0 {
		return 0
	}
	frames := len(b.PCM) / int(b.Channels)
	return time.Duration(frames) * time.Second / time.Duration(b.SampleRate)
}
