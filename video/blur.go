package video

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamfx/config"
	"github.com/opd-ai/streamfx/event"
	"github.com/opd-ai/streamfx/media"
)

// maxBlurIntensity caps the blur radius; larger values cost quadratically
// more cache misses for no visible gain at conferencing resolutions.
const maxBlurIntensity = 25

// BackgroundBlur softens the frame with a separable box blur whose radius is
// the configured intensity. The blur currently covers the whole frame; the
// "model" parameter selects the kernel and only "uniform" is implemented.
//
// Alpha passes through untouched so composited overlays keep their edges.
type BackgroundBlur struct {
	baseModule

	intensity int
	model     string

	// Scratch for the horizontal pass, resized when frame dimensions change.
	scratch []byte

	framesProcessed uint64
}

// NewBackgroundBlur creates a background blur module from its sub-config.
func NewBackgroundBlur(cfg config.Config) *BackgroundBlur {
	b := &BackgroundBlur{
		baseModule: newBaseModule(KindBackgroundBlur, cfg),
	}
	b.applyConfigLocked()

	logrus.WithFields(logrus.Fields{
		"function":  "NewBackgroundBlur",
		"intensity": b.intensity,
		"model":     b.model,
	}).Info("Background blur module created")

	return b
}

// applyConfigLocked reads the tunable parameters from the live config.
// Caller holds b.mu.
func (b *BackgroundBlur) applyConfigLocked() {
	b.intensity = b.cfg.Int("intensity", 3)
	b.model = b.cfg.String("model", "uniform")

	if b.intensity < 0 {
		b.intensity = 0
	}
	if b.intensity > maxBlurIntensity {
		b.intensity = maxBlurIntensity
	}
}

// Initialize marks the module ready.
func (b *BackgroundBlur) Initialize() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return fmt.Errorf("%w: %s", ErrDestroyed, b.kind)
	}
	b.initialized = true

	logrus.WithFields(logrus.Fields{
		"function": "BackgroundBlur.Initialize",
	}).Info("Background blur initialized")

	return nil
}

// Process blurs the frame with two box passes, horizontal then vertical.
// A zero intensity returns a plain copy.
func (b *BackgroundBlur) Process(frame *media.VideoFrame) (*media.VideoFrame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkProcessable(frame); err != nil {
		return nil, err
	}

	out := frame.Clone()
	if b.intensity == 0 {
		b.framesProcessed++
		return out, nil
	}

	if len(b.scratch) != len(out.Pixels) {
		b.scratch = make([]byte, len(out.Pixels))
	}

	boxPassHorizontal(out.Pixels, b.scratch, out.Width, out.Height, b.intensity)
	boxPassVertical(b.scratch, out.Pixels, out.Width, out.Height, b.intensity)

	b.framesProcessed++
	return out, nil
}

// boxPassHorizontal averages each pixel's RGB with its row neighbors within
// radius, writing into dst. Alpha copies through.
func boxPassHorizontal(src, dst []byte, width, height, radius int) {
	for y := 0; y < height; y++ {
		row := y * width * 4
		for x := 0; x < width; x++ {
			var sumR, sumG, sumB, count int
			for dx := -radius; dx <= radius; dx++ {
				nx := x + dx
				if nx < 0 || nx >= width {
					continue
				}
				idx := row + nx*4
				sumR += int(src[idx])
				sumG += int(src[idx+1])
				sumB += int(src[idx+2])
				count++
			}
			idx := row + x*4
			dst[idx] = uint8(sumR / count)
			dst[idx+1] = uint8(sumG / count)
			dst[idx+2] = uint8(sumB / count)
			dst[idx+3] = src[idx+3]
		}
	}
}

// boxPassVertical is the column counterpart of boxPassHorizontal.
func boxPassVertical(src, dst []byte, width, height, radius int) {
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			var sumR, sumG, sumB, count int
			for dy := -radius; dy <= radius; dy++ {
				ny := y + dy
				if ny < 0 || ny >= height {
					continue
				}
				idx := (ny*width + x) * 4
				sumR += int(src[idx])
				sumG += int(src[idx+1])
				sumB += int(src[idx+2])
				count++
			}
			idx := (y*width + x) * 4
			dst[idx] = uint8(sumR / count)
			dst[idx+1] = uint8(sumG / count)
			dst[idx+2] = uint8(sumB / count)
			dst[idx+3] = src[idx+3]
		}
	}
}

// UpdateConfig merges new parameters into the live config.
func (b *BackgroundBlur) UpdateConfig(cfg config.Config) error {
	b.mu.Lock()

	if b.destroyed {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDestroyed, b.kind)
	}

	prev := b.intensity
	b.cfg = b.cfg.Merge(cfg)
	b.applyConfigLocked()
	intensity := b.intensity
	b.mu.Unlock()

	if intensity != prev {
		b.emitter.Emit("intensity:changed", intensity)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "BackgroundBlur.UpdateConfig",
		"intensity": intensity,
	}).Debug("Background blur configuration updated")

	return nil
}

// Stats returns a snapshot of the current parameters and frame count.
func (b *BackgroundBlur) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Stats{
		"intensity":       b.intensity,
		"model":           b.model,
		"framesProcessed": b.framesProcessed,
	}
}

// Destroy releases the scratch buffer. Idempotent.
func (b *BackgroundBlur) Destroy() error {
	if !b.markDestroyed() {
		return nil
	}

	b.mu.Lock()
	b.scratch = nil
	b.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "BackgroundBlur.Destroy",
	}).Info("Background blur destroyed")

	b.emitter.Emit(event.Destroyed)
	return nil
}
