package audio

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamfx/config"
	"github.com/opd-ai/streamfx/event"
	"github.com/opd-ai/streamfx/media"
)

// noiseFFTSize is the analysis window for the suppressor's spectrum.
const noiseFFTSize = 512

// noiseFloorWindow is the half-width, in bins, of the sliding-window minimum
// used to estimate the local noise floor.
const noiseFloorWindow = 5

// profileSampleInterval approximates the render cadence used while learning a
// noise profile.
const profileSampleInterval = 16 * time.Millisecond

// intensityPreset maps an intensity name to the suppressor's threshold and
// reduction parameters.
type intensityPreset struct {
	threshold float64
	reduction float64
}

var intensityPresets = map[string]intensityPreset{
	"low":    {threshold: 0.3, reduction: 0.5},
	"medium": {threshold: 0.2, reduction: 0.7},
	"high":   {threshold: 0.1, reduction: 0.9},
}

// NoiseSuppressor reduces stationary background noise with a spectral
// subtraction heuristic.
//
// Per buffer it estimates a frequency-domain magnitude spectrum, derives a
// local noise floor per bin from a sliding-window minimum, subtracts
// reduction×floor from each bin, zeroes bins below the intensity threshold,
// and applies one scalar gain derived from the processed spectrum's energy to
// every time-domain sample.
//
// The learned noise profile (LearnNoiseProfile) is stored for inspection but
// deliberately not consulted by the suppression path.
type NoiseSuppressor struct {
	baseModule

	threshold float64
	reduction float64
	intensity string

	// Scratch buffers reused across Process calls.
	floatSamples []float64
	spectrum     []complex128
	magnitude    []float64
	floor        []float64
	processed    []float64

	lastGain      float64
	lastMagnitude []float64 // most recent spectrum, sampled by profile learning
	profile       []float64 // captured noise profile, inert
}

// NewNoiseSuppressor creates a suppressor from its sub-config. The module
// must be initialized before processing.
func NewNoiseSuppressor(cfg config.Config) *NoiseSuppressor {
	ns := &NoiseSuppressor{
		baseModule: newBaseModule(KindNoiseSuppression, cfg),
		lastGain:   1.0,
	}
	ns.applyIntensity(cfg.String("intensity", "medium"))

	logrus.WithFields(logrus.Fields{
		"function":  "NewNoiseSuppressor",
		"intensity": ns.intensity,
		"threshold": ns.threshold,
		"reduction": ns.reduction,
	}).Info("Noise suppressor created")

	return ns
}

// applyIntensity resolves an intensity name to preset parameters, falling
// back to medium for unknown names. Caller holds the lock or is single-owner.
func (ns *NoiseSuppressor) applyIntensity(name string) {
	preset, ok := intensityPresets[name]
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function":  "NoiseSuppressor.applyIntensity",
			"intensity": name,
		}).Warn("Unknown intensity, falling back to medium")
		name = "medium"
		preset = intensityPresets[name]
	}
	ns.intensity = name
	ns.threshold = preset.threshold
	ns.reduction = preset.reduction
}

// Initialize allocates the analysis buffers.
func (ns *NoiseSuppressor) Initialize() error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if ns.destroyed {
		return fmt.Errorf("%w: noise suppressor", ErrDestroyed)
	}
	if ns.initialized {
		return nil
	}

	bins := noiseFFTSize/2 + 1
	ns.floatSamples = make([]float64, noiseFFTSize)
	ns.spectrum = make([]complex128, noiseFFTSize)
	ns.magnitude = make([]float64, bins)
	ns.floor = make([]float64, bins)
	ns.processed = make([]float64, bins)
	ns.lastMagnitude = make([]float64, bins)
	ns.initialized = true

	logrus.WithFields(logrus.Fields{
		"function": "NoiseSuppressor.Initialize",
		"fft_size": noiseFFTSize,
		"bins":     bins,
	}).Info("Noise suppressor initialized")

	ns.emitter.Emit(event.Initialized)
	return nil
}

// Process applies spectral subtraction to one buffer.
func (ns *NoiseSuppressor) Process(buf *media.AudioBuffer) (*media.AudioBuffer, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if err := ns.checkProcessable(buf); err != nil {
		return nil, err
	}
	if len(buf.PCM) == 0 {
		return buf, nil
	}

	// Normalize the analysis window.
	for i := range ns.floatSamples {
		if i < len(buf.PCM) {
			ns.floatSamples[i] = float64(buf.PCM[i]) / 32768.0
		} else {
			ns.floatSamples[i] = 0
		}
	}

	analysisWindow(ns.floatSamples, ns.spectrum, ns.magnitude)

	// Local noise floor per bin: sliding-window minimum over ±noiseFloorWindow.
	bins := len(ns.magnitude)
	for i := 0; i < bins; i++ {
		minVal := ns.magnitude[i]
		for d := -noiseFloorWindow; d <= noiseFloorWindow; d++ {
			j := i + d
			if j < 0 || j >= bins {
				continue
			}
			if ns.magnitude[j] < minVal {
				minVal = ns.magnitude[j]
			}
		}
		ns.floor[i] = minVal
	}

	// Spectral subtraction with an intensity-dependent gate.
	var energy float64
	for i := 0; i < bins; i++ {
		subtracted := ns.magnitude[i] - ns.reduction*ns.floor[i]
		if subtracted < ns.threshold {
			subtracted = 0
		}
		ns.processed[i] = subtracted
		energy += subtracted * subtracted
	}

	// One scalar gain per buffer from the processed spectrum's energy ratio.
	gain := energy / float64(bins)
	if gain < 0.1 {
		gain = 0.1
	} else if gain > 1.0 {
		gain = 1.0
	}
	ns.lastGain = gain
	copy(ns.lastMagnitude, ns.magnitude)

	out := buf.Clone()
	for i, sample := range out.PCM {
		scaled := float64(sample) * gain
		if scaled > 32767.0 {
			out.PCM[i] = 32767
		} else if scaled < -32768.0 {
			out.PCM[i] = -32768
		} else {
			out.PCM[i] = int16(scaled)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":     "NoiseSuppressor.Process",
		"sample_count": len(buf.PCM),
		"gain":         gain,
	}).Debug("Noise suppression applied")

	return out, nil
}

// LearnNoiseProfile samples the live spectrum at the render cadence for the
// given duration and returns the bin-wise average as the captured profile.
//
// The profile is stored for inspection via NoiseProfile but is not fed back
// into the suppression path. The call blocks for the sampling duration; run
// it from its own goroutine when the caller must not stall.
func (ns *NoiseSuppressor) LearnNoiseProfile(duration time.Duration) ([]float64, error) {
	ns.mu.RLock()
	if ns.destroyed {
		ns.mu.RUnlock()
		return nil, fmt.Errorf("%w: noise suppressor", ErrDestroyed)
	}
	if !ns.initialized {
		ns.mu.RUnlock()
		return nil, fmt.Errorf("%w: noise suppressor", ErrNotInitialized)
	}
	bins := len(ns.lastMagnitude)
	ns.mu.RUnlock()

	logrus.WithFields(logrus.Fields{
		"function": "NoiseSuppressor.LearnNoiseProfile",
		"duration": duration,
	}).Info("Learning noise profile")

	sum := make([]float64, bins)
	samples := 0

	ticker := time.NewTicker(profileSampleInterval)
	defer ticker.Stop()
	deadline := time.Now().Add(duration)

	for time.Now().Before(deadline) {
		<-ticker.C
		ns.mu.RLock()
		if ns.destroyed {
			ns.mu.RUnlock()
			return nil, fmt.Errorf("%w: noise suppressor destroyed while learning", ErrDestroyed)
		}
		for i, m := range ns.lastMagnitude {
			sum[i] += m
		}
		ns.mu.RUnlock()
		samples++
	}

	if samples == 0 {
		samples = 1
	}
	profile := make([]float64, bins)
	for i := range sum {
		profile[i] = sum[i] / float64(samples)
	}

	ns.mu.Lock()
	ns.profile = append([]float64(nil), profile...)
	ns.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "NoiseSuppressor.LearnNoiseProfile",
		"samples":  samples,
		"bins":     bins,
	}).Info("Noise profile captured")

	return profile, nil
}

// NoiseProfile returns a copy of the last captured profile, or nil when none
// has been learned.
func (ns *NoiseSuppressor) NoiseProfile() []float64 {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	if ns.profile == nil {
		return nil
	}
	return append([]float64(nil), ns.profile...)
}

// UpdateConfig shallow-merges new parameters; an intensity change re-resolves
// the preset and emits intensity:changed. Takes effect on the next Process.
func (ns *NoiseSuppressor) UpdateConfig(cfg config.Config) error {
	ns.mu.Lock()

	if ns.destroyed {
		ns.mu.Unlock()
		return fmt.Errorf("%w: noise suppressor", ErrDestroyed)
	}

	ns.cfg = ns.cfg.Merge(cfg)
	oldIntensity := ns.intensity
	newIntensity := ns.cfg.String("intensity", oldIntensity)
	changed := newIntensity != oldIntensity
	if changed {
		ns.applyIntensity(newIntensity)
	}
	ns.mu.Unlock()

	if changed {
		logrus.WithFields(logrus.Fields{
			"function":      "NoiseSuppressor.UpdateConfig",
			"old_intensity": oldIntensity,
			"new_intensity": newIntensity,
		}).Info("Noise suppression intensity changed")
		ns.emitter.Emit("intensity:changed", newIntensity)
	}
	return nil
}

// Stats returns a snapshot of the suppressor's parameters and last gain.
func (ns *NoiseSuppressor) Stats() Stats {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return Stats{
		"intensity":       ns.intensity,
		"threshold":       ns.threshold,
		"reduction":       ns.reduction,
		"lastGain":        ns.lastGain,
		"profileCaptured": ns.profile != nil,
	}
}

// Destroy releases the analysis buffers. Idempotent.
func (ns *NoiseSuppressor) Destroy() error {
	if !ns.markDestroyed() {
		return nil
	}

	ns.mu.Lock()
	ns.floatSamples = nil
	ns.spectrum = nil
	ns.magnitude = nil
	ns.floor = nil
	ns.processed = nil
	ns.lastMagnitude = nil
	ns.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "NoiseSuppressor.Destroy",
	}).Info("Noise suppressor destroyed")

	ns.emitter.Emit(event.Destroyed)
	return nil
}
