package video

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamfx/config"
	"github.com/opd-ai/streamfx/event"
	"github.com/opd-ai/streamfx/media"
)

// ColorCorrection adjusts brightness, contrast, saturation, and gamma per
// frame. All four parameters default to 1.0, the identity transform, so an
// enabled module with default configuration leaves frames unchanged within
// rounding.
//
// Channel math runs in normalized [0, 1] floats in a fixed order: brightness
// scaling, contrast expansion around mid-gray, saturation interpolation
// toward per-pixel luminance, then gamma. Results clip to the byte range.
type ColorCorrection struct {
	baseModule

	brightness float64
	contrast   float64
	saturation float64
	gamma      float64

	framesProcessed uint64
}

// NewColorCorrection creates a color correction module from its sub-config.
func NewColorCorrection(cfg config.Config) *ColorCorrection {
	c := &ColorCorrection{
		baseModule: newBaseModule(KindColorCorrection, cfg),
	}
	c.applyConfigLocked()

	logrus.WithFields(logrus.Fields{
		"function":   "NewColorCorrection",
		"brightness": c.brightness,
		"contrast":   c.contrast,
		"saturation": c.saturation,
		"gamma":      c.gamma,
	}).Info("Color correction module created")

	return c
}

// applyConfigLocked reads the tunable parameters from the live config.
// Caller holds c.mu.
func (c *ColorCorrection) applyConfigLocked() {
	c.brightness = c.cfg.Float("brightness", 1.0)
	c.contrast = c.cfg.Float("contrast", 1.0)
	c.saturation = c.cfg.Float("saturation", 1.0)
	c.gamma = c.cfg.Float("gamma", 1.0)
	if c.gamma <= 0 {
		c.gamma = 1.0
	}
}

// Initialize marks the module ready. Color correction holds no buffers, so
// initialization cannot fail after construction.
func (c *ColorCorrection) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return fmt.Errorf("%w: %s", ErrDestroyed, c.kind)
	}
	c.initialized = true

	logrus.WithFields(logrus.Fields{
		"function": "ColorCorrection.Initialize",
	}).Info("Color correction initialized")

	return nil
}

// Process applies the four corrections to every pixel of the frame.
func (c *ColorCorrection) Process(frame *media.VideoFrame) (*media.VideoFrame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkProcessable(frame); err != nil {
		return nil, err
	}

	out := frame.Clone()
	invGamma := 1.0 / c.gamma

	for i := 0; i+3 < len(out.Pixels); i += 4 {
		r := float64(out.Pixels[i]) / 255.0
		g := float64(out.Pixels[i+1]) / 255.0
		b := float64(out.Pixels[i+2]) / 255.0

		r *= c.brightness
		g *= c.brightness
		b *= c.brightness

		r = (r-0.5)*c.contrast + 0.5
		g = (g-0.5)*c.contrast + 0.5
		b = (b-0.5)*c.contrast + 0.5

		if c.saturation != 1.0 {
			l := luma(r*255, g*255, b*255) / 255.0
			r = l + (r-l)*c.saturation
			g = l + (g-l)*c.saturation
			b = l + (b-l)*c.saturation
		}

		if c.gamma != 1.0 {
			r = gammaCurve(r, invGamma)
			g = gammaCurve(g, invGamma)
			b = gammaCurve(b, invGamma)
		}

		out.Pixels[i] = clampByte(r * 255.0)
		out.Pixels[i+1] = clampByte(g * 255.0)
		out.Pixels[i+2] = clampByte(b * 255.0)
	}

	c.framesProcessed++
	return out, nil
}

// gammaCurve applies the power curve to one normalized channel, clamping the
// input first so negative post-contrast values cannot produce NaN.
func gammaCurve(v, invGamma float64) float64 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 1
	}
	return math.Pow(v, invGamma)
}

// UpdateConfig merges new parameters and emits a changed event for each
// parameter whose value moved.
func (c *ColorCorrection) UpdateConfig(cfg config.Config) error {
	c.mu.Lock()

	if c.destroyed {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDestroyed, c.kind)
	}

	prev := [4]float64{c.brightness, c.contrast, c.saturation, c.gamma}
	c.cfg = c.cfg.Merge(cfg)
	c.applyConfigLocked()
	next := [4]float64{c.brightness, c.contrast, c.saturation, c.gamma}
	c.mu.Unlock()

	names := [4]string{"brightness", "contrast", "saturation", "gamma"}
	for i, name := range names {
		if prev[i] != next[i] {
			c.emitter.Emit(name+":changed", next[i])
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":   "ColorCorrection.UpdateConfig",
		"brightness": next[0],
		"contrast":   next[1],
		"saturation": next[2],
		"gamma":      next[3],
	}).Debug("Color correction configuration updated")

	return nil
}

// Stats returns a snapshot of the current parameters and frame count.
func (c *ColorCorrection) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		"brightness":      c.brightness,
		"contrast":        c.contrast,
		"saturation":      c.saturation,
		"gamma":           c.gamma,
		"framesProcessed": c.framesProcessed,
	}
}

// Destroy releases the module. Idempotent.
func (c *ColorCorrection) Destroy() error {
	if !c.markDestroyed() {
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "ColorCorrection.Destroy",
	}).Info("Color correction destroyed")

	c.emitter.Emit(event.Destroyed)
	return nil
}
