package audio

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamfx/config"
	"github.com/opd-ai/streamfx/event"
	"github.com/opd-ai/streamfx/media"
)

// AGC gain limits. Makeup gain never exceeds maxAGCGain regardless of how
// quiet the input is.
const (
	minAGCGain = 0.1
	maxAGCGain = 10.0
)

// silenceFloorDb stands in for the dB level of a buffer whose RMS is too
// small to take a logarithm of.
const silenceFloorDb = -100.0

// AGC implements automatic gain control.
//
// Per buffer it measures input RMS in dB, derives a target linear gain —
// full makeup gain below the target level, compressed by compressionRatio
// above it — and smooths the applied gain toward that target with one-pole
// coefficients derived from the attack and release time constants:
//
//	coeff = exp(-bufferSize / (sampleRate × timeConstant))
//
// The attack coefficient is used while gain is rising, release while falling.
type AGC struct {
	baseModule

	targetLevel      float64 // dB
	compressionRatio float64
	attackTime       float64 // seconds
	releaseTime      float64 // seconds

	currentGain float64
	lastInputDb float64
}

// NewAGC creates an automatic gain control module from its sub-config.
func NewAGC(cfg config.Config) *AGC {
	a := &AGC{
		baseModule:       newBaseModule(KindAGC, cfg),
		targetLevel:      cfg.Float("targetLevel", -20.0),
		compressionRatio: cfg.Float("compressionRatio", 3.0),
		attackTime:       cfg.Float("attackTime", 0.01),
		releaseTime:      cfg.Float("releaseTime", 0.1),
		currentGain:      1.0,
		lastInputDb:      silenceFloorDb,
	}

	logrus.WithFields(logrus.Fields{
		"function":          "NewAGC",
		"target_level":      a.targetLevel,
		"compression_ratio": a.compressionRatio,
		"attack_time":       a.attackTime,
		"release_time":      a.releaseTime,
	}).Info("AGC module created")

	return a
}

// Initialize marks the module ready. The AGC needs no buffers beyond its
// smoothing state.
func (a *AGC) Initialize() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return fmt.Errorf("%w: agc", ErrDestroyed)
	}
	if a.initialized {
		return nil
	}
	a.initialized = true
	a.currentGain = 1.0

	logrus.WithFields(logrus.Fields{
		"function": "AGC.Initialize",
	}).Info("AGC module initialized")

	a.emitter.Emit(event.Initialized)
	return nil
}

// Process applies smoothed makeup gain to one buffer.
func (a *AGC) Process(buf *media.AudioBuffer) (*media.AudioBuffer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.checkProcessable(buf); err != nil {
		return nil, err
	}
	if len(buf.PCM) == 0 {
		return buf, nil
	}

	// Input level in dB from buffer RMS.
	var sumSquares float64
	for _, sample := range buf.PCM {
		normalized := float64(sample) / 32768.0
		sumSquares += normalized * normalized
	}
	rms := math.Sqrt(sumSquares / float64(len(buf.PCM)))

	inputDb := silenceFloorDb
	if rms > 1e-10 {
		inputDb = 20 * math.Log10(rms)
	}
	a.lastInputDb = inputDb

	// Full makeup gain below target, compressed above it.
	diffDb := a.targetLevel - inputDb
	gainDb := diffDb
	if inputDb > a.targetLevel && a.compressionRatio > 0 {
		gainDb = diffDb / a.compressionRatio
	}
	targetGain := math.Pow(10, gainDb/20)
	if targetGain < minAGCGain {
		targetGain = minAGCGain
	} else if targetGain > maxAGCGain {
		targetGain = maxAGCGain
	}

	// One-pole smoothing: attack while rising, release while falling.
	timeConstant := a.releaseTime
	if targetGain > a.currentGain {
		timeConstant = a.attackTime
	}
	coeff := 0.0
	if timeConstant > 0 && buf.SampleRate > 0 {
		coeff = math.Exp(-float64(len(buf.PCM)) / (float64(buf.SampleRate) * timeConstant))
	}
	a.currentGain = a.currentGain*coeff + targetGain*(1-coeff)

	out := buf.Clone()
	for i, sample := range out.PCM {
		scaled := float64(sample) * a.currentGain
		if scaled > 32767.0 {
			out.PCM[i] = 32767
		} else if scaled < -32768.0 {
			out.PCM[i] = -32768
		} else {
			out.PCM[i] = int16(scaled)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":     "AGC.Process",
		"input_db":     inputDb,
		"target_gain":  targetGain,
		"applied_gain": a.currentGain,
	}).Debug("AGC applied")

	return out, nil
}

// UpdateConfig shallow-merges new parameters, effective on the next Process.
func (a *AGC) UpdateConfig(cfg config.Config) error {
	a.mu.Lock()

	if a.destroyed {
		a.mu.Unlock()
		return fmt.Errorf("%w: agc", ErrDestroyed)
	}

	a.cfg = a.cfg.Merge(cfg)
	oldTarget := a.targetLevel
	a.targetLevel = a.cfg.Float("targetLevel", a.targetLevel)
	a.compressionRatio = a.cfg.Float("compressionRatio", a.compressionRatio)
	a.attackTime = a.cfg.Float("attackTime", a.attackTime)
	a.releaseTime = a.cfg.Float("releaseTime", a.releaseTime)
	changed := a.targetLevel != oldTarget
	newTarget := a.targetLevel
	a.mu.Unlock()

	if changed {
		a.emitter.Emit("targetLevel:changed", newTarget)
	}
	return nil
}

// Stats returns a snapshot of the AGC's parameters and smoothing state.
func (a *AGC) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Stats{
		"targetLevel":      a.targetLevel,
		"compressionRatio": a.compressionRatio,
		"attackTime":       a.attackTime,
		"releaseTime":      a.releaseTime,
		"currentGain":      a.currentGain,
		"lastInputDb":      a.lastInputDb,
	}
}

// CurrentGain returns the gain applied to the most recent buffer.
func (a *AGC) CurrentGain() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.currentGain
}

// Destroy releases the module. Idempotent.
func (a *AGC) Destroy() error {
	if !a.markDestroyed() {
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "AGC.Destroy",
	}).Info("AGC module destroyed")

	a.emitter.Emit(event.Destroyed)
	return nil
}
