package streamfx

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamfx/audio"
	"github.com/opd-ai/streamfx/config"
	"github.com/opd-ai/streamfx/event"
	"github.com/opd-ai/streamfx/media"
	"github.com/opd-ai/streamfx/video"
)

// Options configures a Processor.
type Options struct {
	// Config overlays the documented defaults. A nil or empty overlay yields
	// a processor with every enhancement disabled.
	Config config.Config

	// Scheduler paces the video snapshot capture fallback. Nil selects a
	// ~30fps timer.
	Scheduler media.Scheduler
}

// NewOptions returns the default options.
func NewOptions() *Options {
	return &Options{}
}

// Processor is the stream enhancement orchestrator. It owns at most one audio
// and one video pipeline, activated per domain by the merged configuration,
// and applies them to streams in a fixed order: audio first, then video.
//
// All methods are safe for concurrent use. Destroy is terminal.
type Processor struct {
	emitter   *event.Emitter
	scheduler media.Scheduler

	mu         sync.RWMutex
	cfg        config.Config
	audio      *audio.Pipeline
	video      *video.Pipeline
	processing bool
	destroyed  bool
}

// New creates a processor from opts. Pipelines are built and initialized only
// for namespaces with at least one enabled module; a configuration with
// everything disabled still yields a working passthrough processor.
func New(opts *Options) (*Processor, error) {
	if opts == nil {
		opts = NewOptions()
	}

	p := &Processor{
		emitter:   event.NewEmitter(),
		scheduler: opts.Scheduler,
		cfg:       config.Default().Merge(opts.Config),
	}

	if err := p.buildPipelines(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":  "New",
		"has_audio": p.audio != nil,
		"has_video": p.video != nil,
	}).Info("Stream processor created")

	p.emitter.Emit(event.Initialized)
	return p, nil
}

// Events returns the processor's event channel.
func (p *Processor) Events() *event.Emitter { return p.emitter }

// buildPipelines constructs and initializes the per-domain pipelines the
// current configuration calls for, tearing down on partial failure.
func (p *Processor) buildPipelines() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buildPipelinesLocked()
}

func (p *Processor) buildPipelinesLocked() error {
	if p.cfg.HasEnabled(config.NamespaceAudio) {
		ap := audio.NewPipeline(p.cfg.Sub(config.NamespaceAudio))
		if err := ap.Initialize(); err != nil {
			ap.Destroy()
			return fmt.Errorf("%w: audio pipeline: %v", ErrInitialization, err)
		}
		p.audio = ap
		p.forwardErrors(ap.Events())
	}

	if p.cfg.HasEnabled(config.NamespaceVideo) {
		vp := video.NewPipeline(p.cfg.Sub(config.NamespaceVideo), p.scheduler)
		if err := vp.Initialize(); err != nil {
			vp.Destroy()
			if p.audio != nil {
				p.audio.Destroy()
				p.audio = nil
			}
			return fmt.Errorf("%w: video pipeline: %v", ErrInitialization, err)
		}
		p.video = vp
		p.forwardErrors(vp.Events())
	}

	return nil
}

// forwardErrors re-emits a pipeline's error events on the processor channel.
func (p *Processor) forwardErrors(src *event.Emitter) {
	src.On(event.Error, func(args ...interface{}) {
		p.emitter.Emit(event.Error, args...)
	})
}

// Process enhances a stream, applying the audio pipeline before the video
// pipeline, and returns the combined output stream. Domains without an active
// pipeline, and streams without the matching track kind, pass through
// unchanged. A stream with no tracks at all is returned as-is and still
// completes successfully.
func (p *Processor) Process(stream *media.Stream) (*media.Stream, error) {
	p.mu.RLock()
	if p.destroyed {
		p.mu.RUnlock()
		return nil, fmt.Errorf("%w: processor", ErrDestroyed)
	}
	ap, vp := p.audio, p.video
	p.mu.RUnlock()

	if stream == nil {
		return nil, fmt.Errorf("%w: nil stream", ErrInvalidInput)
	}

	p.setProcessing(true)
	p.emitter.Emit(event.ProcessingStart, stream)

	logrus.WithFields(logrus.Fields{
		"function":  "Processor.Process",
		"stream_id": stream.ID(),
		"audio":     stream.HasAudio(),
		"video":     stream.HasVideo(),
	}).Info("Stream processing started")

	current := stream
	if ap != nil && current.HasAudio() {
		out, err := ap.Process(current)
		if err != nil {
			return nil, p.failProcessing("audio", err)
		}
		current = out
	}
	if vp != nil && current.HasVideo() {
		out, err := vp.Process(current)
		if err != nil {
			return nil, p.failProcessing("video", err)
		}
		current = out
	}

	p.setProcessing(false)
	p.emitter.Emit(event.ProcessingComplete, current)
	return current, nil
}

// failProcessing clears the processing flag, reports the stage failure, and
// returns the wrapped error.
func (p *Processor) failProcessing(stage string, err error) error {
	p.setProcessing(false)

	wrapped := fmt.Errorf("%w: %s stage: %v", ErrProcessing, stage, err)
	logrus.WithFields(logrus.Fields{
		"function": "Processor.failProcessing",
		"stage":    stage,
		"error":    err.Error(),
	}).Error("Stream processing failed")
	p.emitter.Emit(event.Error, wrapped.Error())
	return wrapped
}

func (p *Processor) setProcessing(v bool) {
	p.mu.Lock()
	p.processing = v
	p.mu.Unlock()
}

// IsProcessing reports whether a Process call is currently in flight.
func (p *Processor) IsProcessing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.processing
}

// UpdateConfig merges an overlay onto the live configuration. When the merge
// changes nothing the call is a no-op. Otherwise the pipelines are torn down
// and rebuilt from the merged tree, and config:updated fires with a clone of
// the new configuration.
func (p *Processor) UpdateConfig(overlay config.Config) error {
	p.mu.Lock()

	if p.destroyed {
		p.mu.Unlock()
		return fmt.Errorf("%w: processor", ErrDestroyed)
	}

	merged := p.cfg.Merge(overlay)
	if merged.Equal(p.cfg) {
		p.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "Processor.UpdateConfig",
		}).Debug("Configuration unchanged, skipping rebuild")
		return nil
	}

	if p.audio != nil {
		p.audio.Destroy()
		p.audio = nil
	}
	if p.video != nil {
		p.video.Destroy()
		p.video = nil
	}

	p.cfg = merged
	err := p.buildPipelinesLocked()
	snapshot := p.cfg.Clone()
	p.mu.Unlock()

	if err != nil {
		p.emitter.Emit(event.Error, err.Error())
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function": "Processor.UpdateConfig",
	}).Info("Configuration updated, pipelines rebuilt")

	p.emitter.Emit(event.ConfigUpdated, snapshot)
	return nil
}

// SetAudioFeature toggles one audio module at runtime, creating the audio
// pipeline on first enable.
func (p *Processor) SetAudioFeature(kind audio.Kind, enabled bool) error {
	p.mu.Lock()

	if p.destroyed {
		p.mu.Unlock()
		return fmt.Errorf("%w: processor", ErrDestroyed)
	}

	ns := p.cfg.Sub(config.NamespaceAudio)
	if sub := ns.Sub(kind.String()); sub != nil {
		sub["enabled"] = enabled
	} else {
		ns[kind.String()] = config.Config{"enabled": enabled}
	}

	if p.audio == nil {
		if !enabled {
			p.mu.Unlock()
			return nil
		}
		ap := audio.NewPipeline(ns)
		if err := ap.Initialize(); err != nil {
			ap.Destroy()
			p.mu.Unlock()
			return fmt.Errorf("%w: audio pipeline: %v", ErrInitialization, err)
		}
		p.audio = ap
		p.forwardErrors(ap.Events())
		p.mu.Unlock()
		return nil
	}

	ap := p.audio
	p.mu.Unlock()
	return ap.SetFeature(kind, enabled)
}

// SetVideoFeature toggles one video module at runtime, creating the video
// pipeline on first enable.
func (p *Processor) SetVideoFeature(kind video.Kind, enabled bool) error {
	p.mu.Lock()

	if p.destroyed {
		p.mu.Unlock()
		return fmt.Errorf("%w: processor", ErrDestroyed)
	}

	ns := p.cfg.Sub(config.NamespaceVideo)
	if sub := ns.Sub(kind.String()); sub != nil {
		sub["enabled"] = enabled
	} else {
		ns[kind.String()] = config.Config{"enabled": enabled}
	}

	if p.video == nil {
		if !enabled {
			p.mu.Unlock()
			return nil
		}
		vp := video.NewPipeline(ns, p.scheduler)
		if err := vp.Initialize(); err != nil {
			vp.Destroy()
			p.mu.Unlock()
			return fmt.Errorf("%w: video pipeline: %v", ErrInitialization, err)
		}
		p.video = vp
		p.forwardErrors(vp.Events())
		p.mu.Unlock()
		return nil
	}

	vp := p.video
	p.mu.Unlock()
	return vp.SetFeature(kind, enabled)
}

// AudioPipeline returns the live audio pipeline, or nil when no audio module
// is enabled.
func (p *Processor) AudioPipeline() *audio.Pipeline {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.audio
}

// VideoPipeline returns the live video pipeline, or nil when no video module
// is enabled.
func (p *Processor) VideoPipeline() *video.Pipeline {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.video
}

// GetConfig returns a deep copy of the live configuration. Mutating the
// returned tree never affects the processor.
func (p *Processor) GetConfig() config.Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg.Clone()
}

// Stats aggregates the per-domain pipeline statistics. A nil field means the
// domain has no active pipeline.
type Stats struct {
	Audio *audio.PipelineStats
	Video *video.PipelineStats
}

// GetStats returns a snapshot of the aggregate statistics.
func (p *Processor) GetStats() Stats {
	p.mu.RLock()
	ap, vp := p.audio, p.video
	p.mu.RUnlock()

	var stats Stats
	if ap != nil {
		s := ap.GetStats()
		stats.Audio = &s
	}
	if vp != nil {
		s := vp.GetStats()
		stats.Video = &s
	}
	return stats
}

// Destroy tears down both pipelines and clears all subscriptions. Idempotent
// and terminal.
func (p *Processor) Destroy() error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return nil
	}
	p.destroyed = true
	p.processing = false

	ap, vp := p.audio, p.video
	p.audio = nil
	p.video = nil
	p.mu.Unlock()

	if ap != nil {
		ap.Destroy()
	}
	if vp != nil {
		vp.Destroy()
	}

	logrus.WithFields(logrus.Fields{
		"function": "Processor.Destroy",
	}).Info("Stream processor destroyed")

	p.emitter.Emit(event.Destroyed)
	p.emitter.RemoveAllListeners("")
	return nil
}
