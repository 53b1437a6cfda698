package audio

import (
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opd-ai/streamfx/config"
	"github.com/opd-ai/streamfx/event"
	"github.com/opd-ai/streamfx/media"
)

func pipelineConfig(enabled ...string) config.Config {
	cfg := config.Default().Sub(config.NamespaceAudio)
	for _, key := range enabled {
		cfg.Sub(key)["enabled"] = true
	}
	return cfg
}

// drainTrack collects every buffer an output track delivers until io.EOF.
func drainTrack(t *testing.T, track *media.AudioTrack) []*media.AudioBuffer {
	t.Helper()
	var out []*media.AudioBuffer
	for {
		buf, err := track.Source().ReadBuffer()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("ReadBuffer() error: %v", err)
		}
		out = append(out, buf)
	}
}

func numberedBuffer(marker int16) *media.AudioBuffer {
	buf := media.NewAudioBuffer(480, 48000, 1)
	buf.PCM[0] = marker
	return buf
}

func TestPipeline_ProcessBeforeInitialize(t *testing.T) {
	p := NewPipeline(pipelineConfig())
	defer p.Destroy()

	if _, err := p.Process(media.NewStream()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Process() before Initialize = %v, want ErrNotInitialized", err)
	}
}

func TestPipeline_NilStreamRejected(t *testing.T) {
	p := NewPipeline(pipelineConfig())
	defer p.Destroy()
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	if _, err := p.Process(nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Process(nil) = %v, want ErrInvalidInput", err)
	}
}

func TestPipeline_EmptyChainPassesThroughInOrder(t *testing.T) {
	p := NewPipeline(pipelineConfig())
	defer p.Destroy()
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	if p.State() != StateReady {
		t.Fatalf("state = %v after Initialize, want ready", p.State())
	}
	if len(p.Modules()) != 0 {
		t.Fatalf("modules = %d with everything disabled, want 0", len(p.Modules()))
	}

	source := media.NewBufferSliceSource(
		numberedBuffer(1), numberedBuffer(2), numberedBuffer(3),
	)
	in := media.NewStream()
	in.AddAudioTrack(media.NewAudioTrack(source, 48000, 1))

	out, err := p.Process(in)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	tracks := out.AudioTracks()
	if len(tracks) != 1 {
		t.Fatalf("output has %d audio tracks, want 1", len(tracks))
	}

	buffers := drainTrack(t, tracks[0])
	if len(buffers) != 3 {
		t.Fatalf("got %d buffers, want 3", len(buffers))
	}
	for i, buf := range buffers {
		if buf.PCM[0] != int16(i+1) {
			t.Errorf("buffer %d carries marker %d, want %d", i, buf.PCM[0], i+1)
		}
	}

	if got := p.GetStats().BuffersProcessed; got != 3 {
		t.Errorf("BuffersProcessed = %d, want 3", got)
	}
}

func TestPipeline_NoAudioPassthrough(t *testing.T) {
	p := NewPipeline(pipelineConfig("noiseSuppression"))
	defer p.Destroy()
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	in := media.NewStream()
	in.AddVideoTrack(media.NewVideoTrack(media.NewFrameSliceSource()))

	out, err := p.Process(in)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if out != in {
		t.Error("stream without audio was not returned unchanged")
	}
}

func TestPipeline_EnabledModulesChainInFixedOrder(t *testing.T) {
	p := NewPipeline(pipelineConfig("voiceFocus", "noiseSuppression", "agc"))
	defer p.Destroy()
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	mods := p.Modules()
	want := []Kind{KindNoiseSuppression, KindAGC, KindVoiceFocus}
	if len(mods) != len(want) {
		t.Fatalf("got %d modules, want %d", len(mods), len(want))
	}
	for i, kind := range want {
		if mods[i].Kind() != kind {
			t.Errorf("position %d holds %s, want %s", i, mods[i].Name(), kind)
		}
	}

	// Connect links must mirror the list order.
	if mods[0].Next() != mods[1] || mods[1].Next() != mods[2] || mods[2].Next() != nil {
		t.Error("chain links do not follow the fixed order")
	}
}

func TestPipeline_ProcessWithActiveChain(t *testing.T) {
	p := NewPipeline(pipelineConfig("noiseSuppression", "agc"))
	defer p.Destroy()
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	in := media.NewStream()
	in.AddAudioTrack(media.NewAudioTrack(
		media.NewBufferSliceSource(numberedBuffer(100), numberedBuffer(200)),
		48000, 1,
	))

	out, err := p.Process(in)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	buffers := drainTrack(t, out.AudioTracks()[0])
	if len(buffers) != 2 {
		t.Fatalf("got %d buffers through the chain, want 2", len(buffers))
	}
	for i, buf := range buffers {
		if len(buf.PCM) != 480 {
			t.Errorf("buffer %d has %d samples, want 480", i, len(buf.PCM))
		}
	}
}

func TestPipeline_SetFeatureToggles(t *testing.T) {
	p := NewPipeline(pipelineConfig("noiseSuppression", "agc"))
	defer p.Destroy()
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	toggles := 0
	p.Events().On("feature:changed", func(args ...interface{}) { toggles++ })

	if err := p.SetFeature(KindAGC, false); err != nil {
		t.Fatalf("SetFeature(agc, false) error: %v", err)
	}
	if p.Module(KindAGC) != nil {
		t.Error("agc module still present after disable")
	}
	mods := p.Modules()
	if len(mods) != 1 || mods[0].Kind() != KindNoiseSuppression {
		t.Fatalf("modules after disable = %d, want only noiseSuppression", len(mods))
	}
	if mods[0].Next() != nil {
		t.Error("lone module still links to a removed neighbor")
	}

	// Re-enabling restores the original order, not append order.
	if err := p.SetFeature(KindAGC, true); err != nil {
		t.Fatalf("SetFeature(agc, true) error: %v", err)
	}
	mods = p.Modules()
	if len(mods) != 2 {
		t.Fatalf("modules after re-enable = %d, want 2", len(mods))
	}
	if mods[0].Kind() != KindNoiseSuppression || mods[1].Kind() != KindAGC {
		t.Errorf("order after re-enable = [%s, %s], want [noiseSuppression, agc]",
			mods[0].Name(), mods[1].Name())
	}
	if mods[0].Next() != mods[1] {
		t.Error("chain links not rebuilt after re-enable")
	}

	if toggles != 2 {
		t.Errorf("feature:changed fired %d times, want 2", toggles)
	}
}

func TestPipeline_DestroyUnblocksPendingWriter(t *testing.T) {
	p := NewPipeline(pipelineConfig())
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	buffers := make([]*media.AudioBuffer, 20)
	for i := range buffers {
		buffers[i] = numberedBuffer(int16(i + 1))
	}
	in := media.NewStream()
	in.AddAudioTrack(media.NewAudioTrack(media.NewBufferSliceSource(buffers...), 48000, 1))

	out, err := p.Process(in)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	// Nobody reads the output, so the loop fills the pipe and parks on the
	// ninth write.
	deadline := time.Now().Add(2 * time.Second)
	for p.GetStats().BuffersProcessed < 9 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := p.GetStats().BuffersProcessed; got < 9 {
		t.Fatalf("BuffersProcessed = %d before Destroy, want at least 9", got)
	}

	if err := p.Destroy(); err != nil {
		t.Fatalf("Destroy() error: %v", err)
	}

	// The closed pipe unblocks the parked writer, so the reader drains what
	// was queued and then sees EOF instead of blocking forever.
	drained := drainTrack(t, out.AudioTracks()[0])
	if n := len(drained); n < 8 || n > 9 {
		t.Errorf("drained %d buffers after Destroy, want the 8 queued (9 if the parked write raced the drain)", n)
	}
}

func TestPipeline_ToggleDuringProcessing(t *testing.T) {
	p := NewPipeline(pipelineConfig("agc"))
	defer p.Destroy()
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	var chainErrs int32
	p.Events().On(event.Error, func(args ...interface{}) { atomic.AddInt32(&chainErrs, 1) })

	const total = 64
	buffers := make([]*media.AudioBuffer, total)
	for i := range buffers {
		buffers[i] = numberedBuffer(int16(i + 1))
	}
	in := media.NewStream()
	in.AddAudioTrack(media.NewAudioTrack(media.NewBufferSliceSource(buffers...), 48000, 1))

	out, err := p.Process(in)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 40; i++ {
			p.SetFeature(KindAGC, i%2 == 1)
		}
	}()

	drained := drainTrack(t, out.AudioTracks()[0])
	<-done

	// A toggle can swap the chain between buffers but must never destroy a
	// module mid-walk, so every buffer survives and no error event fires.
	if got := atomic.LoadInt32(&chainErrs); got != 0 {
		t.Errorf("error event fired %d times while toggling, want 0", got)
	}
	if len(drained) != total {
		t.Errorf("got %d buffers through the chain, want %d", len(drained), total)
	}
}

func TestPipeline_ReturnsToReadyWhenLoopsFinish(t *testing.T) {
	p := NewPipeline(pipelineConfig())
	defer p.Destroy()
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	in := media.NewStream()
	in.AddAudioTrack(media.NewAudioTrack(
		media.NewBufferSliceSource(numberedBuffer(1), numberedBuffer(2)), 48000, 1))

	out, err := p.Process(in)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	drainTrack(t, out.AudioTracks()[0])

	deadline := time.Now().Add(2 * time.Second)
	for p.State() != StateReady && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.State() != StateReady {
		t.Errorf("state = %v after all loops finished, want ready", p.State())
	}
}

func TestPipeline_SetFeatureSameStateIsNoop(t *testing.T) {
	p := NewPipeline(pipelineConfig("agc"))
	defer p.Destroy()
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	before := p.Module(KindAGC)
	if err := p.SetFeature(KindAGC, true); err != nil {
		t.Fatalf("SetFeature() error: %v", err)
	}
	if p.Module(KindAGC) != before {
		t.Error("enabling an already-enabled feature replaced the module")
	}
}

func TestPipeline_DestroyIsTerminal(t *testing.T) {
	p := NewPipeline(pipelineConfig("noiseSuppression"))
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	mod := p.Module(KindNoiseSuppression)

	if err := p.Destroy(); err != nil {
		t.Errorf("first Destroy() error: %v", err)
	}
	if err := p.Destroy(); err != nil {
		t.Errorf("second Destroy() error: %v", err)
	}
	if p.State() != StateDestroyed {
		t.Errorf("state = %v after Destroy, want destroyed", p.State())
	}

	if _, err := mod.Process(media.NewAudioBuffer(4, 48000, 1)); !errors.Is(err, ErrDestroyed) {
		t.Errorf("owned module Process after pipeline Destroy = %v, want ErrDestroyed", err)
	}
	if _, err := p.Process(media.NewStream()); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Process() after Destroy = %v, want ErrDestroyed", err)
	}
	if err := p.Initialize(); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Initialize() after Destroy = %v, want ErrDestroyed", err)
	}
	if err := p.SetFeature(KindAGC, true); !errors.Is(err, ErrDestroyed) {
		t.Errorf("SetFeature() after Destroy = %v, want ErrDestroyed", err)
	}
}
