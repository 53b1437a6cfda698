package audio

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamfx/config"
	"github.com/opd-ai/streamfx/event"
	"github.com/opd-ai/streamfx/media"
)

// State tracks a pipeline through its lifecycle. Destroyed is terminal.
type State int

const (
	// StateUninitialized is the initial state before Initialize.
	StateUninitialized State = iota
	// StateInitializing is transient while modules are constructed.
	StateInitializing
	// StateReady means the chain is wired and Process may be called.
	StateReady
	// StateProcessing means at least one buffer loop is running.
	StateProcessing
	// StateDestroyed is terminal; no further operations succeed.
	StateDestroyed
)

// String returns a readable state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateProcessing:
		return "processing"
	case StateDestroyed:
		return "destroyed"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// monitorInterval is the cadence of the aggregate level/noise-floor sampler.
const monitorInterval = 100 * time.Millisecond

// PipelineStats is the pipeline's aggregate signal measurement snapshot.
type PipelineStats struct {
	// SignalLevel is the RMS level of the most recent output buffer,
	// normalized to [0, 1].
	SignalLevel float64

	// NoiseFloor approximates the background level as the 10th percentile of
	// per-bin spectral energy of the most recent output buffer.
	NoiseFloor float64

	// SNR is the signal-to-noise ratio in dB derived from the two above.
	SNR float64

	// BuffersProcessed counts buffers that completed the chain.
	BuffersProcessed uint64
}

// Pipeline owns an ordered chain of audio modules and wires them into a
// continuous buffer-processing loop bound to a stream's audio tracks.
//
// The module list is only ever rebuilt wholesale on feature toggles, never
// spliced, so no connection can dangle. Loops check pipeline liveness before
// every iteration and stop on Destroy.
type Pipeline struct {
	emitter *event.Emitter

	mu      sync.RWMutex
	cfg     config.Config // the audio namespace tree
	state   State
	modules map[Kind]Module
	head    Module
	tail    Module

	stats      PipelineStats
	lastOutput *media.AudioBuffer

	openPipes   []*media.AudioPipe
	activeLoops int

	monitorRunning bool
	monitorStop    chan struct{}

	// Monitor scratch, owned by the monitor goroutine.
	monSpectrum  []complex128
	monMagnitude []float64
}

// NewPipeline creates a pipeline over the audio namespace of a merged
// configuration. Call Initialize before Process.
func NewPipeline(cfg config.Config) *Pipeline {
	p := &Pipeline{
		emitter:     event.NewEmitter(),
		cfg:         cfg.Clone(),
		state:       StateUninitialized,
		modules:     make(map[Kind]Module),
		monitorStop: make(chan struct{}),
	}

	logrus.WithFields(logrus.Fields{
		"function": "audio.NewPipeline",
	}).Info("Audio pipeline created")

	return p
}

// Events returns the pipeline's event channel.
func (p *Pipeline) Events() *event.Emitter { return p.emitter }

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Initialize instantiates every enabled module in the fixed chain order,
// initializes each, and wires them into a single connected chain. A pipeline
// with zero enabled modules still reaches Ready and passes audio through
// unchanged.
func (p *Pipeline) Initialize() error {
	p.mu.Lock()

	if p.state == StateDestroyed {
		p.mu.Unlock()
		return fmt.Errorf("%w: audio pipeline", ErrDestroyed)
	}
	if p.state != StateUninitialized {
		p.mu.Unlock()
		return nil
	}
	p.state = StateInitializing

	logrus.WithFields(logrus.Fields{
		"function": "Pipeline.Initialize",
	}).Info("Initializing audio pipeline")

	for _, kind := range ChainOrder {
		sub := p.cfg.Sub(kind.String())
		if !sub.Bool("enabled", false) {
			continue
		}

		mod, err := New(kind, sub)
		if err == nil {
			err = mod.Initialize()
		}
		if err != nil {
			// Roll back everything created so far; the pipeline stays
			// retry-safe in Uninitialized.
			for _, created := range p.modules {
				created.Destroy()
			}
			p.modules = make(map[Kind]Module)
			p.state = StateUninitialized
			p.mu.Unlock()

			wrapped := fmt.Errorf("%w: module %s: %v", ErrInitialization, kind, err)
			logrus.WithFields(logrus.Fields{
				"function": "Pipeline.Initialize",
				"module":   kind.String(),
				"error":    err.Error(),
			}).Error("Audio module initialization failed")
			p.emitter.Emit(event.Error, wrapped.Error())
			return wrapped
		}

		p.modules[kind] = mod
		logrus.WithFields(logrus.Fields{
			"function": "Pipeline.Initialize",
			"module":   kind.String(),
		}).Debug("Audio module initialized")
	}

	p.rebuildChainLocked()
	p.state = StateReady
	moduleCount := len(p.modules)
	p.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":     "Pipeline.Initialize",
		"module_count": moduleCount,
	}).Info("Audio pipeline initialized")

	p.emitter.Emit(event.Initialized)
	return nil
}

// rebuildChainLocked rewires every connection from scratch in the fixed
// order. Never patches links in place. Caller holds p.mu.
func (p *Pipeline) rebuildChainLocked() {
	for _, mod := range p.modules {
		mod.Disconnect()
	}

	p.head = nil
	p.tail = nil
	var prev Module
	for _, kind := range ChainOrder {
		mod, ok := p.modules[kind]
		if !ok {
			continue
		}
		if prev == nil {
			p.head = mod
		} else {
			prev.Connect(mod)
		}
		prev = mod
	}
	p.tail = prev

	logrus.WithFields(logrus.Fields{
		"function":     "Pipeline.rebuildChainLocked",
		"module_count": len(p.modules),
	}).Debug("Audio chain rebuilt")
}

// Process splices the chain between a stream's audio sources and fresh
// output tracks, returning a new stream that combines the processed audio
// with the input's video tracks.
//
// A stream with no audio track is returned unchanged — passthrough, never an
// error. Buffer loops run until their source is exhausted or the pipeline is
// destroyed.
func (p *Pipeline) Process(stream *media.Stream) (*media.Stream, error) {
	p.mu.Lock()

	if p.state == StateDestroyed {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: audio pipeline", ErrDestroyed)
	}
	if p.state != StateReady && p.state != StateProcessing {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: audio pipeline", ErrNotInitialized)
	}
	if stream == nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: nil stream", ErrInvalidInput)
	}

	if !stream.HasAudio() {
		p.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function":  "Pipeline.Process",
			"stream_id": stream.ID(),
		}).Debug("Stream carries no audio track, passing through unchanged")
		return stream, nil
	}

	p.state = StateProcessing
	p.startMonitorLocked()

	out := media.NewStream()
	for _, track := range stream.AudioTracks() {
		pipe := media.NewAudioPipe(8)
		p.openPipes = append(p.openPipes, pipe)
		p.activeLoops++
		out.AddAudioTrack(media.NewAudioTrack(pipe, track.SampleRate(), track.Channels()))
		go p.runBufferLoop(track.Source(), pipe)
	}
	p.mu.Unlock()

	for _, track := range stream.VideoTracks() {
		out.AddVideoTrack(track)
	}

	logrus.WithFields(logrus.Fields{
		"function":     "Pipeline.Process",
		"stream_id":    stream.ID(),
		"out_stream":   out.ID(),
		"audio_tracks": len(stream.AudioTracks()),
	}).Info("Audio processing started")

	return out, nil
}

// alive reports whether loops may schedule another iteration.
func (p *Pipeline) alive() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state == StateReady || p.state == StateProcessing
}

// runBufferLoop pulls buffers from src, drives them through the chain in
// strict arrival order, and writes results to the output pipe.
func (p *Pipeline) runBufferLoop(src media.AudioSource, pipe *media.AudioPipe) {
	defer func() {
		pipe.Close()
		p.loopDone(pipe)
	}()

	for p.alive() {
		buf, err := src.ReadBuffer()
		if err == io.EOF {
			return
		}
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Pipeline.runBufferLoop",
				"error":    err.Error(),
			}).Error("Audio source read failed")
			p.emitter.Emit(event.Error, fmt.Sprintf("audio source read failed: %v", err))
			return
		}

		// Hold the read lock across the chain walk so a feature toggle can
		// never destroy a module mid-walk.
		p.mu.RLock()
		processed, err := processChain(p.head, buf)
		p.mu.RUnlock()
		if err != nil {
			wrapped := fmt.Errorf("%w: %v", ErrProcessing, err)
			logrus.WithFields(logrus.Fields{
				"function": "Pipeline.runBufferLoop",
				"error":    err.Error(),
			}).Error("Audio chain processing failed")
			p.emitter.Emit(event.Error, wrapped.Error())
			return
		}

		p.recordOutput(processed)

		if err := pipe.WriteBuffer(processed); err != nil {
			return
		}
	}
}

// loopDone retires a finished buffer loop: its pipe leaves the open set and
// the pipeline returns to Ready once the last loop exits.
func (p *Pipeline) loopDone(pipe *media.AudioPipe) {
	p.mu.Lock()
	for i, open := range p.openPipes {
		if open == pipe {
			p.openPipes = append(p.openPipes[:i], p.openPipes[i+1:]...)
			break
		}
	}
	p.activeLoops--
	if p.activeLoops == 0 && p.state == StateProcessing {
		p.state = StateReady
	}
	p.mu.Unlock()
}

// recordOutput updates the running stats with one processed buffer.
func (p *Pipeline) recordOutput(buf *media.AudioBuffer) {
	var sumSquares float64
	for _, sample := range buf.PCM {
		normalized := float64(sample) / 32768.0
		sumSquares += normalized * normalized
	}
	level := 0.0
	if len(buf.PCM) > 0 {
		level = math.Sqrt(sumSquares / float64(len(buf.PCM)))
	}

	p.mu.Lock()
	p.lastOutput = buf.Clone()
	p.stats.SignalLevel = level
	p.stats.BuffersProcessed++
	p.mu.Unlock()
}

// startMonitorLocked launches the level/noise-floor sampler once.
// Caller holds p.mu.
func (p *Pipeline) startMonitorLocked() {
	if p.monitorRunning {
		return
	}
	p.monitorRunning = true
	p.monSpectrum = make([]complex128, noiseFFTSize)
	p.monMagnitude = make([]float64, noiseFFTSize/2+1)
	go p.runMonitor()

	logrus.WithFields(logrus.Fields{
		"function": "Pipeline.startMonitorLocked",
		"interval": monitorInterval,
	}).Debug("Audio monitor started")
}

// runMonitor periodically derives the noise floor and SNR from the latest
// output buffer while the pipeline is live.
func (p *Pipeline) runMonitor() {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.monitorStop:
			return
		case <-ticker.C:
		}
		if !p.alive() {
			return
		}

		p.mu.RLock()
		last := p.lastOutput
		p.mu.RUnlock()
		if last == nil || len(last.PCM) == 0 {
			continue
		}

		samples := make([]float64, len(last.PCM))
		for i, s := range last.PCM {
			samples[i] = float64(s) / 32768.0
		}
		analysisWindow(samples, p.monSpectrum, p.monMagnitude)

		energies := make([]float64, len(p.monMagnitude))
		for i, m := range p.monMagnitude {
			energies[i] = m * m
		}
		sort.Float64s(energies)
		floor := math.Sqrt(energies[len(energies)/10])

		p.mu.Lock()
		p.stats.NoiseFloor = floor
		signal := p.stats.SignalLevel
		if floor > 1e-12 && signal > 1e-12 {
			p.stats.SNR = 20 * math.Log10(signal/floor)
		} else {
			p.stats.SNR = 0
		}
		snapshot := p.stats
		p.mu.Unlock()

		p.emitter.Emit(event.StatsUpdated, snapshot)
	}
}

// SetFeature enables or disables one module at runtime. The affected module
// is created or destroyed, then the entire chain's connections are rebuilt
// from scratch.
func (p *Pipeline) SetFeature(kind Kind, enabled bool) error {
	p.mu.Lock()

	if p.state == StateDestroyed {
		p.mu.Unlock()
		return fmt.Errorf("%w: audio pipeline", ErrDestroyed)
	}
	if p.state == StateUninitialized || p.state == StateInitializing {
		p.mu.Unlock()
		return fmt.Errorf("%w: audio pipeline", ErrNotInitialized)
	}

	sub := p.cfg.Sub(kind.String())
	if sub == nil {
		sub = config.Config{}
	}
	sub["enabled"] = enabled
	p.cfg[kind.String()] = sub

	_, present := p.modules[kind]
	switch {
	case enabled && !present:
		mod, err := New(kind, sub)
		if err == nil {
			err = mod.Initialize()
		}
		if err != nil {
			p.mu.Unlock()
			wrapped := fmt.Errorf("%w: module %s: %v", ErrInitialization, kind, err)
			p.emitter.Emit(event.Error, wrapped.Error())
			return wrapped
		}
		p.modules[kind] = mod

	case !enabled && present:
		p.modules[kind].Destroy()
		delete(p.modules, kind)
	}

	p.rebuildChainLocked()
	p.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Pipeline.SetFeature",
		"module":   kind.String(),
		"enabled":  enabled,
	}).Info("Audio feature toggled")

	p.emitter.Emit("feature:changed", kind.String(), enabled)
	return nil
}

// Module returns the live module of the given kind, or nil when disabled.
func (p *Pipeline) Module(kind Kind) Module {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.modules[kind]
}

// Modules returns the active modules in chain order.
func (p *Pipeline) Modules() []Module {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Module, 0, len(p.modules))
	for _, kind := range ChainOrder {
		if mod, ok := p.modules[kind]; ok {
			out = append(out, mod)
		}
	}
	return out
}

// GetStats returns a snapshot copy of the aggregate statistics.
func (p *Pipeline) GetStats() PipelineStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

// Destroy stops loops, closes any open output pipes so blocked writers
// unblock, destroys every module, and clears subscriptions. Idempotent and
// terminal.
func (p *Pipeline) Destroy() error {
	p.mu.Lock()
	if p.state == StateDestroyed {
		p.mu.Unlock()
		return nil
	}
	p.state = StateDestroyed

	if p.monitorRunning {
		close(p.monitorStop)
		p.monitorRunning = false
	}

	pipes := p.openPipes
	p.openPipes = nil

	modules := make([]Module, 0, len(p.modules))
	for _, mod := range p.modules {
		modules = append(modules, mod)
	}
	p.modules = make(map[Kind]Module)
	p.head = nil
	p.tail = nil
	p.mu.Unlock()

	for _, pipe := range pipes {
		pipe.Close()
	}
	for _, mod := range modules {
		if err := mod.Destroy(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Pipeline.Destroy",
				"module":   mod.Name(),
				"error":    err.Error(),
			}).Error("Audio module destroy failed")
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "Pipeline.Destroy",
	}).Info("Audio pipeline destroyed")

	p.emitter.Emit(event.Destroyed)
	p.emitter.RemoveAllListeners("")
	return nil
}
