package video

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/opd-ai/streamfx/config"
	"github.com/opd-ai/streamfx/media"
)

func videoConfig(enabled ...string) config.Config {
	cfg := config.Default().Sub(config.NamespaceVideo)
	for _, key := range enabled {
		cfg.Sub(key)["enabled"] = true
	}
	return cfg
}

// drainTrack collects every frame an output track delivers until io.EOF.
func drainTrack(t *testing.T, track *media.VideoTrack) []*media.VideoFrame {
	t.Helper()
	var out []*media.VideoFrame
	for {
		frame, err := track.Source().ReadFrame()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("ReadFrame() error: %v", err)
		}
		out = append(out, frame)
	}
}

func TestVideoPipeline_ProcessBeforeInitialize(t *testing.T) {
	p := NewPipeline(videoConfig(), nil)
	defer p.Destroy()

	if _, err := p.Process(media.NewStream()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Process() before Initialize = %v, want ErrNotInitialized", err)
	}
}

func TestVideoPipeline_EmptyListPassesThrough(t *testing.T) {
	p := NewPipeline(videoConfig(), nil)
	defer p.Destroy()
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	if len(p.Modules()) != 0 {
		t.Fatalf("modules = %d with everything disabled, want 0", len(p.Modules()))
	}

	first := media.NewVideoFrame(2, 2)
	first.Pixels[0] = 9
	second := media.NewVideoFrame(2, 2)
	second.Pixels[0] = 17

	in := media.NewStream()
	in.AddVideoTrack(media.NewVideoTrack(media.NewFrameSliceSource(first, second)))

	out, err := p.Process(in)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	frames := drainTrack(t, out.VideoTracks()[0])
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if frames[0].Pixels[0] != 9 || frames[1].Pixels[0] != 17 {
		t.Error("frame order or content changed through an empty module list")
	}
}

func TestVideoPipeline_NoVideoPassthrough(t *testing.T) {
	p := NewPipeline(videoConfig("colorCorrection"), nil)
	defer p.Destroy()
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	in := media.NewStream()
	in.AddAudioTrack(media.NewAudioTrack(media.NewBufferSliceSource(), 48000, 1))

	out, err := p.Process(in)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if out != in {
		t.Error("stream without video was not returned unchanged")
	}
}

func TestVideoPipeline_ModulesInFixedOrder(t *testing.T) {
	p := NewPipeline(videoConfig("backgroundBlur", "colorCorrection", "lowLightCompensation"), nil)
	defer p.Destroy()
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	mods := p.Modules()
	want := []Kind{KindLowLight, KindColorCorrection, KindBackgroundBlur}
	if len(mods) != len(want) {
		t.Fatalf("got %d modules, want %d", len(mods), len(want))
	}
	for i, kind := range want {
		if mods[i].Kind() != kind {
			t.Errorf("position %d holds %s, want %s", i, mods[i].Name(), kind)
		}
	}
}

func TestVideoPipeline_DropsFailingFrameAndContinues(t *testing.T) {
	p := NewPipeline(videoConfig("colorCorrection"), nil)
	defer p.Destroy()
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	errorEvents := 0
	p.Events().On("error", func(args ...interface{}) { errorEvents++ })

	good := media.NewVideoFrame(2, 2)
	bad := &media.VideoFrame{Width: 2, Height: 2, Pixels: make([]byte, 3)}
	trailing := media.NewVideoFrame(2, 2)

	in := media.NewStream()
	in.AddVideoTrack(media.NewVideoTrack(media.NewFrameSliceSource(good, bad, trailing)))

	out, err := p.Process(in)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	frames := drainTrack(t, out.VideoTracks()[0])
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2 with the malformed one dropped", len(frames))
	}

	stats := p.GetStats()
	if stats.FramesProcessed != 2 {
		t.Errorf("FramesProcessed = %d, want 2", stats.FramesProcessed)
	}
	if stats.FramesDropped != 1 {
		t.Errorf("FramesDropped = %d, want 1", stats.FramesDropped)
	}
	if errorEvents != 1 {
		t.Errorf("error event fired %d times, want 1", errorEvents)
	}
}

func TestVideoPipeline_SnapshotCaptureFallback(t *testing.T) {
	scheduler := media.NewManualScheduler()
	p := NewPipeline(videoConfig(), scheduler)
	defer p.Destroy()
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	surface := media.NewVideoFrame(2, 2)
	surface.Pixels[0] = 42
	live := media.NewStaticLiveSource(surface)

	in := media.NewStream()
	in.AddVideoTrack(media.NewLiveVideoTrack(live))

	out, err := p.Process(in)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if scheduler.PendingCount() != 1 {
		t.Fatalf("pending callbacks = %d after Process, want 1", scheduler.PendingCount())
	}

	// Each step samples one snapshot and schedules the next tick.
	scheduler.Step()
	scheduler.Step()

	src := out.VideoTracks()[0].Source()
	for i := 0; i < 2; i++ {
		frame, err := src.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() %d error: %v", i, err)
		}
		if frame.Pixels[0] != 42 {
			t.Errorf("captured frame %d carries %d, want 42", i, frame.Pixels[0])
		}
	}

	if p.GetStats().FramesProcessed != 2 {
		t.Errorf("FramesProcessed = %d after two ticks, want 2", p.GetStats().FramesProcessed)
	}
}

func TestVideoPipeline_ReturnsToReadyWhenLoopsFinish(t *testing.T) {
	p := NewPipeline(videoConfig(), nil)
	defer p.Destroy()
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	in := media.NewStream()
	in.AddVideoTrack(media.NewVideoTrack(
		media.NewFrameSliceSource(media.NewVideoFrame(2, 2), media.NewVideoFrame(2, 2))))

	out, err := p.Process(in)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	drainTrack(t, out.VideoTracks()[0])

	deadline := time.Now().Add(2 * time.Second)
	for p.State() != StateReady && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.State() != StateReady {
		t.Errorf("state = %v after all loops finished, want ready", p.State())
	}
}

func TestVideoPipeline_SetFeatureToggles(t *testing.T) {
	p := NewPipeline(videoConfig("lowLightCompensation", "backgroundBlur"), nil)
	defer p.Destroy()
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	if err := p.SetFeature(KindBackgroundBlur, false); err != nil {
		t.Fatalf("SetFeature(blur, false) error: %v", err)
	}
	if p.Module(KindBackgroundBlur) != nil {
		t.Error("blur module still present after disable")
	}

	if err := p.SetFeature(KindColorCorrection, true); err != nil {
		t.Fatalf("SetFeature(colorCorrection, true) error: %v", err)
	}
	mods := p.Modules()
	if len(mods) != 2 || mods[0].Kind() != KindLowLight || mods[1].Kind() != KindColorCorrection {
		t.Errorf("invocation list = %d modules, want [lowLightCompensation, colorCorrection]", len(mods))
	}
}

func TestVideoPipeline_DestroyIsTerminal(t *testing.T) {
	p := NewPipeline(videoConfig("colorCorrection"), nil)
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	mod := p.Module(KindColorCorrection)

	if err := p.Destroy(); err != nil {
		t.Errorf("first Destroy() error: %v", err)
	}
	if err := p.Destroy(); err != nil {
		t.Errorf("second Destroy() error: %v", err)
	}
	if p.State() != StateDestroyed {
		t.Errorf("state = %v after Destroy, want destroyed", p.State())
	}

	if _, err := mod.Process(media.NewVideoFrame(2, 2)); !errors.Is(err, ErrDestroyed) {
		t.Errorf("owned module Process after pipeline Destroy = %v, want ErrDestroyed", err)
	}
	if _, err := p.Process(media.NewStream()); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Process() after Destroy = %v, want ErrDestroyed", err)
	}
	if err := p.SetFeature(KindBackgroundBlur, true); !errors.Is(err, ErrDestroyed) {
		t.Errorf("SetFeature() after Destroy = %v, want ErrDestroyed", err)
	}
}
