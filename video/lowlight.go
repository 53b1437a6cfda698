package video

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamfx/config"
	"github.com/opd-ai/streamfx/event"
	"github.com/opd-ai/streamfx/media"
)

// LowLight brightens underexposed regions of a frame. Pixels whose luminance
// falls strictly below the threshold get a boost that grows as the pixel gets
// darker, up to the configured maximum for black pixels. Pixels at or above
// the threshold pass through untouched, so well-lit regions never wash out.
//
// With preserveColors set, all three channels scale by the same factor and
// hue is retained. Without it, boosted pixels collapse to brightened
// grayscale, which reads better on very noisy sensors.
type LowLight struct {
	baseModule

	threshold      float64
	boost          float64
	preserveColors bool

	framesProcessed uint64
	lastBoostRatio  float64
}

// NewLowLight creates a low-light compensation module from its sub-config.
func NewLowLight(cfg config.Config) *LowLight {
	l := &LowLight{
		baseModule: newBaseModule(KindLowLight, cfg),
	}
	l.applyConfigLocked()

	logrus.WithFields(logrus.Fields{
		"function":        "NewLowLight",
		"threshold":       l.threshold,
		"boost":           l.boost,
		"preserve_colors": l.preserveColors,
	}).Info("Low-light compensation module created")

	return l
}

// applyConfigLocked reads the tunable parameters from the live config.
// Caller holds l.mu.
func (l *LowLight) applyConfigLocked() {
	l.threshold = l.cfg.Float("threshold", 0.3)
	l.boost = l.cfg.Float("boost", 1.5)
	l.preserveColors = l.cfg.Bool("preserveColors", true)

	if l.threshold <= 0 {
		l.threshold = 0.3
	}
	if l.boost < 1 {
		l.boost = 1
	}
}

// Initialize marks the module ready.
func (l *LowLight) Initialize() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.destroyed {
		return fmt.Errorf("%w: %s", ErrDestroyed, l.kind)
	}
	l.initialized = true

	logrus.WithFields(logrus.Fields{
		"function": "LowLight.Initialize",
	}).Info("Low-light compensation initialized")

	return nil
}

// Process boosts every pixel darker than the luminance threshold.
func (l *LowLight) Process(frame *media.VideoFrame) (*media.VideoFrame, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkProcessable(frame); err != nil {
		return nil, err
	}

	out := frame.Clone()
	cutoff := l.threshold * 255.0
	boosted := 0
	total := len(out.Pixels) / 4

	for i := 0; i+3 < len(out.Pixels); i += 4 {
		r := float64(out.Pixels[i])
		g := float64(out.Pixels[i+1])
		b := float64(out.Pixels[i+2])

		lum := luma(r, g, b)
		if lum >= cutoff {
			continue
		}

		// The darker the pixel, the closer the factor gets to the full boost.
		factor := 1.0 + (l.boost-1.0)*(1.0-lum/cutoff)
		boosted++

		if l.preserveColors {
			out.Pixels[i] = clampByte(r * factor)
			out.Pixels[i+1] = clampByte(g * factor)
			out.Pixels[i+2] = clampByte(b * factor)
		} else {
			gray := clampByte(lum * factor)
			out.Pixels[i] = gray
			out.Pixels[i+1] = gray
			out.Pixels[i+2] = gray
		}
	}

	l.framesProcessed++
	if total > 0 {
		l.lastBoostRatio = float64(boosted) / float64(total)
	}
	return out, nil
}

// UpdateConfig merges new parameters into the live config.
func (l *LowLight) UpdateConfig(cfg config.Config) error {
	l.mu.Lock()

	if l.destroyed {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDestroyed, l.kind)
	}

	prevThreshold, prevBoost := l.threshold, l.boost
	l.cfg = l.cfg.Merge(cfg)
	l.applyConfigLocked()
	threshold, boost := l.threshold, l.boost
	l.mu.Unlock()

	if threshold != prevThreshold {
		l.emitter.Emit("threshold:changed", threshold)
	}
	if boost != prevBoost {
		l.emitter.Emit("boost:changed", boost)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "LowLight.UpdateConfig",
		"threshold": threshold,
		"boost":     boost,
	}).Debug("Low-light configuration updated")

	return nil
}

// Stats returns a snapshot of the current parameters and metrics.
func (l *LowLight) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Stats{
		"threshold":       l.threshold,
		"boost":           l.boost,
		"preserveColors":  l.preserveColors,
		"framesProcessed": l.framesProcessed,
		"lastBoostRatio":  l.lastBoostRatio,
	}
}

// Destroy releases the module. Idempotent.
func (l *LowLight) Destroy() error {
	if !l.markDestroyed() {
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "LowLight.Destroy",
	}).Info("Low-light compensation destroyed")

	l.emitter.Emit(event.Destroyed)
	return nil
}
