package video

import (
	"fmt"
	"io"
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
	// StateReady means the modules are built and Process may be called.
	StateReady
	// StateProcessing means at least one frame loop is running.
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

// statsInterval is the cadence of the FPS sampler.
const statsInterval = time.Second

// defaultCaptureInterval paces the snapshot fallback loop at roughly 30
// frames per second.
const defaultCaptureInterval = 33 * time.Millisecond

// PipelineStats is the pipeline's aggregate measurement snapshot.
type PipelineStats struct {
	// FramesProcessed counts frames that completed every enabled module.
	FramesProcessed uint64

	// FramesDropped counts frames skipped after a module failure.
	FramesDropped uint64

	// FPS is the processed-frame rate over the last sampling window.
	FPS float64

	// LastProcessTime is the wall time the most recent frame spent in the
	// module sequence.
	LastProcessTime time.Duration
}

// Pipeline owns the enabled video modules and invokes them sequentially on
// every frame of a stream's video tracks.
//
// Frame loops survive individual module failures: a failing frame is dropped
// and reported on the error event, and the loop continues with the next one.
// The module list is rebuilt wholesale on feature toggles.
type Pipeline struct {
	emitter   *event.Emitter
	scheduler media.Scheduler

	mu      sync.RWMutex
	cfg     config.Config // the video namespace tree
	state   State
	modules map[Kind]Module
	active  []Module // enabled modules in invocation order

	stats         PipelineStats
	windowStart   time.Time
	windowFrames  uint64
	statsRunning  bool
	statsStop     chan struct{}
	openPipes     []*media.VideoPipe
	activeLoops   int
	captureCancel []media.Handle
}

// NewPipeline creates a pipeline over the video namespace of a merged
// configuration. A nil scheduler falls back to a ~30fps timer for the
// snapshot capture path. Call Initialize before Process.
func NewPipeline(cfg config.Config, scheduler media.Scheduler) *Pipeline {
	if scheduler == nil {
		scheduler = media.NewTickerScheduler(defaultCaptureInterval)
	}

	p := &Pipeline{
		emitter:   event.NewEmitter(),
		scheduler: scheduler,
		cfg:       cfg.Clone(),
		state:     StateUninitialized,
		modules:   make(map[Kind]Module),
		statsStop: make(chan struct{}),
	}

	logrus.WithFields(logrus.Fields{
		"function": "video.NewPipeline",
	}).Info("Video pipeline created")

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

// Initialize instantiates every enabled module in the fixed invocation order.
// A pipeline with zero enabled modules still reaches Ready and passes frames
// through unchanged.
func (p *Pipeline) Initialize() error {
	p.mu.Lock()

	if p.state == StateDestroyed {
		p.mu.Unlock()
		return fmt.Errorf("%w: video pipeline", ErrDestroyed)
	}
	if p.state != StateUninitialized {
		p.mu.Unlock()
		return nil
	}
	p.state = StateInitializing

	logrus.WithFields(logrus.Fields{
		"function": "Pipeline.Initialize",
	}).Info("Initializing video pipeline")

	for _, kind := range InvokeOrder {
		sub := p.cfg.Sub(kind.String())
		if !sub.Bool("enabled", false) {
			continue
		}

		mod, err := New(kind, sub)
		if err == nil {
			err = mod.Initialize()
		}
		if err != nil {
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
			}).Error("Video module initialization failed")
			p.emitter.Emit(event.Error, wrapped.Error())
			return wrapped
		}

		p.modules[kind] = mod
		logrus.WithFields(logrus.Fields{
			"function": "Pipeline.Initialize",
			"module":   kind.String(),
		}).Debug("Video module initialized")
	}

	p.rebuildActiveLocked()
	p.state = StateReady
	moduleCount := len(p.modules)
	p.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":     "Pipeline.Initialize",
		"module_count": moduleCount,
	}).Info("Video pipeline initialized")

	p.emitter.Emit(event.Initialized)
	return nil
}

// rebuildActiveLocked rebuilds the invocation list from scratch in the fixed
// order. Caller holds p.mu.
func (p *Pipeline) rebuildActiveLocked() {
	p.active = p.active[:0]
	for _, kind := range InvokeOrder {
		if mod, ok := p.modules[kind]; ok {
			p.active = append(p.active, mod)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":     "Pipeline.rebuildActiveLocked",
		"module_count": len(p.active),
	}).Debug("Video invocation list rebuilt")
}

// Process splices the module sequence between a stream's video sources and
// fresh output tracks, returning a new stream that combines the processed
// video with the input's audio tracks.
//
// A stream with no video track is returned unchanged. Tracks with a
// sequential source get a pull loop; tracks exposing only a live surface get
// a scheduler-paced snapshot loop instead.
func (p *Pipeline) Process(stream *media.Stream) (*media.Stream, error) {
	p.mu.Lock()

	if p.state == StateDestroyed {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: video pipeline", ErrDestroyed)
	}
	if p.state != StateReady && p.state != StateProcessing {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: video pipeline", ErrNotInitialized)
	}
	if stream == nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: nil stream", ErrInvalidInput)
	}

	if !stream.HasVideo() {
		p.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function":  "Pipeline.Process",
			"stream_id": stream.ID(),
		}).Debug("Stream carries no video track, passing through unchanged")
		return stream, nil
	}

	p.state = StateProcessing
	p.startStatsLocked()

	out := media.NewStream()
	for _, track := range stream.VideoTracks() {
		pipe := media.NewVideoPipe(4)
		out.AddVideoTrack(media.NewVideoTrack(pipe))

		switch {
		case track.Source() != nil:
			p.openPipes = append(p.openPipes, pipe)
			p.activeLoops++
			go p.runFrameLoop(track.Source(), pipe)
		case track.Live() != nil:
			p.openPipes = append(p.openPipes, pipe)
			p.activeLoops++
			p.scheduleCaptureLocked(track.Live(), pipe)
		default:
			pipe.Close()
		}
	}
	p.mu.Unlock()

	for _, track := range stream.AudioTracks() {
		out.AddAudioTrack(track)
	}

	logrus.WithFields(logrus.Fields{
		"function":     "Pipeline.Process",
		"stream_id":    stream.ID(),
		"out_stream":   out.ID(),
		"video_tracks": len(stream.VideoTracks()),
	}).Info("Video processing started")

	return out, nil
}

// alive reports whether loops may schedule another iteration.
func (p *Pipeline) alive() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state == StateReady || p.state == StateProcessing
}

// processFrame runs one frame through the active modules in order.
func (p *Pipeline) processFrame(frame *media.VideoFrame) (*media.VideoFrame, error) {
	p.mu.RLock()
	active := p.active
	p.mu.RUnlock()

	start := time.Now()
	current := frame
	for _, mod := range active {
		out, err := mod.Process(current)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", mod.Name(), err)
		}
		current = out
	}
	p.recordFrame(time.Since(start))
	return current, nil
}

// runFrameLoop pulls frames from src until exhaustion, dropping frames whose
// processing fails rather than stopping the stream.
func (p *Pipeline) runFrameLoop(src media.VideoSource, pipe *media.VideoPipe) {
	defer func() {
		pipe.Close()
		p.loopDone(pipe)
	}()

	for p.alive() {
		frame, err := src.ReadFrame()
		if err == io.EOF {
			return
		}
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Pipeline.runFrameLoop",
				"error":    err.Error(),
			}).Error("Video source read failed")
			p.emitter.Emit(event.Error, fmt.Sprintf("video source read failed: %v", err))
			return
		}

		processed, err := p.processFrame(frame)
		if err != nil {
			p.recordDrop(err)
			continue
		}

		if err := pipe.WriteFrame(processed); err != nil {
			return
		}
	}
}

// scheduleCaptureLocked starts the snapshot fallback loop for a live surface.
// Each tick samples the latest frame, processes it, and schedules the next
// tick. Caller holds p.mu.
func (p *Pipeline) scheduleCaptureLocked(live media.LiveSource, pipe *media.VideoPipe) {
	// One pending-handle slot per capture loop, overwritten each tick so
	// Destroy can cancel whatever is outstanding.
	slot := len(p.captureCancel)
	p.captureCancel = append(p.captureCancel, 0)

	var tick func()
	tick = func() {
		if !p.alive() {
			pipe.Close()
			p.loopDone(pipe)
			return
		}

		frame, err := live.Snapshot()
		if err == io.EOF {
			pipe.Close()
			p.loopDone(pipe)
			return
		}
		if err == nil {
			if processed, perr := p.processFrame(frame); perr != nil {
				p.recordDrop(perr)
			} else if werr := pipe.WriteFrame(processed); werr != nil {
				pipe.Close()
				p.loopDone(pipe)
				return
			}
		}

		p.mu.Lock()
		if p.state == StateProcessing {
			p.captureCancel[slot] = p.scheduler.ScheduleNext(tick)
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
		pipe.Close()
		p.loopDone(pipe)
	}

	p.captureCancel[slot] = p.scheduler.ScheduleNext(tick)

	logrus.WithFields(logrus.Fields{
		"function": "Pipeline.scheduleCaptureLocked",
	}).Debug("Snapshot capture loop scheduled")
}

// loopDone retires a finished frame or capture loop: its pipe leaves the open
// set and the pipeline returns to Ready once the last loop exits.
func (p *Pipeline) loopDone(pipe *media.VideoPipe) {
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

// recordFrame updates the running stats with one processed frame.
func (p *Pipeline) recordFrame(elapsed time.Duration) {
	p.mu.Lock()
	p.stats.FramesProcessed++
	p.stats.LastProcessTime = elapsed
	p.windowFrames++
	p.mu.Unlock()
}

// recordDrop counts a dropped frame and reports the cause.
func (p *Pipeline) recordDrop(err error) {
	p.mu.Lock()
	p.stats.FramesDropped++
	p.mu.Unlock()

	wrapped := fmt.Errorf("%w: %v", ErrProcessing, err)
	logrus.WithFields(logrus.Fields{
		"function": "Pipeline.recordDrop",
		"error":    err.Error(),
	}).Warn("Video frame dropped")
	p.emitter.Emit(event.Error, wrapped.Error())
}

// startStatsLocked launches the FPS sampler once. Caller holds p.mu.
func (p *Pipeline) startStatsLocked() {
	if p.statsRunning {
		return
	}
	p.statsRunning = true
	p.windowStart = time.Now()
	p.windowFrames = 0
	go p.runStats()

	logrus.WithFields(logrus.Fields{
		"function": "Pipeline.startStatsLocked",
		"interval": statsInterval,
	}).Debug("Video stats sampler started")
}

// runStats periodically derives FPS from the frame count delta while the
// pipeline is live.
func (p *Pipeline) runStats() {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.statsStop:
			return
		case <-ticker.C:
		}
		if !p.alive() {
			return
		}

		p.mu.Lock()
		elapsed := time.Since(p.windowStart).Seconds()
		if elapsed > 0 {
			p.stats.FPS = float64(p.windowFrames) / elapsed
		}
		p.windowStart = time.Now()
		p.windowFrames = 0
		snapshot := p.stats
		p.mu.Unlock()

		p.emitter.Emit(event.StatsUpdated, snapshot)
	}
}

// SetFeature enables or disables one module at runtime. The affected module
// is created or destroyed, then the invocation list is rebuilt from scratch.
func (p *Pipeline) SetFeature(kind Kind, enabled bool) error {
	p.mu.Lock()

	if p.state == StateDestroyed {
		p.mu.Unlock()
		return fmt.Errorf("%w: video pipeline", ErrDestroyed)
	}
	if p.state == StateUninitialized || p.state == StateInitializing {
		p.mu.Unlock()
		return fmt.Errorf("%w: video pipeline", ErrNotInitialized)
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

	p.rebuildActiveLocked()
	p.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Pipeline.SetFeature",
		"module":   kind.String(),
		"enabled":  enabled,
	}).Info("Video feature toggled")

	p.emitter.Emit("feature:changed", kind.String(), enabled)
	return nil
}

// Module returns the live module of the given kind, or nil when disabled.
func (p *Pipeline) Module(kind Kind) Module {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.modules[kind]
}

// Modules returns the active modules in invocation order.
func (p *Pipeline) Modules() []Module {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Module(nil), p.active...)
}

// GetStats returns a snapshot copy of the aggregate statistics.
func (p *Pipeline) GetStats() PipelineStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

// Destroy stops loops, cancels pending capture ticks, destroys every module,
// and clears subscriptions. Idempotent and terminal.
func (p *Pipeline) Destroy() error {
	p.mu.Lock()
	if p.state == StateDestroyed {
		p.mu.Unlock()
		return nil
	}
	p.state = StateDestroyed

	if p.statsRunning {
		close(p.statsStop)
		p.statsRunning = false
	}

	for _, handle := range p.captureCancel {
		p.scheduler.Cancel(handle)
	}
	p.captureCancel = nil

	pipes := p.openPipes
	p.openPipes = nil

	modules := make([]Module, 0, len(p.modules))
	for _, mod := range p.modules {
		modules = append(modules, mod)
	}
	p.modules = make(map[Kind]Module)
	p.active = nil
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
			}).Error("Video module destroy failed")
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "Pipeline.Destroy",
	}).Info("Video pipeline destroyed")

	p.emitter.Emit(event.Destroyed)
	p.emitter.RemoveAllListeners("")
	return nil
}
