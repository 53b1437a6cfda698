package media

import (
	"io"
	"testing"
	"time"
)

func TestAudioBuffer_Clone(t *testing.T) {
	buf := NewAudioBuffer(4, 48000, 1)
	buf.PCM[0] = 100

	clone := buf.Clone()
	clone.PCM[0] = 200

	if buf.PCM[0] != 100 {
		t.Error("mutating a clone leaked into the original buffer")
	}
	if clone.SampleRate != 48000 || clone.Channels != 1 {
		t.Error("clone lost buffer shape")
	}
}

func TestAudioBuffer_Duration(t *testing.T) {
	buf := NewAudioBuffer(480, 48000, 1)
	if got := buf.Duration(); got != 10*time.Millisecond {
		t.Errorf("Duration() = %v, want 10ms", got)
	}

	empty := &AudioBuffer{}
	if got := empty.Duration(); got != 0 {
		t.Errorf("Duration() on zero buffer = %v, want 0", got)
	}
}

func TestVideoFrame_Validate(t *testing.T) {
	frame := NewVideoFrame(4, 3)
	if err := frame.Validate(); err != nil {
		t.Errorf("Validate() on well-formed frame: %v", err)
	}

	frame.Pixels = frame.Pixels[:10]
	if err := frame.Validate(); err == nil {
		t.Error("Validate() accepted a truncated pixel buffer")
	}

	var nilFrame *VideoFrame
	if err := nilFrame.Validate(); err == nil {
		t.Error("Validate() accepted a nil frame")
	}
}

func TestVideoFrame_SetAt(t *testing.T) {
	frame := NewVideoFrame(2, 2)
	frame.Set(1, 1, 10, 20, 30, 40)

	r, g, b, a := frame.At(1, 1)
	if r != 10 || g != 20 || b != 30 || a != 40 {
		t.Errorf("At(1,1) = %d,%d,%d,%d, want 10,20,30,40", r, g, b, a)
	}
}

func TestStream_Tracks(t *testing.T) {
	s := NewStream()
	if s.HasAudio() || s.HasVideo() {
		t.Error("fresh stream reports tracks")
	}
	if s.ID() == "" {
		t.Error("stream has empty ID")
	}

	s.AddAudioTrack(NewAudioTrack(NewBufferSliceSource(), 48000, 1))
	s.AddVideoTrack(NewVideoTrack(NewFrameSliceSource()))

	if !s.HasAudio() || !s.HasVideo() {
		t.Error("stream does not report added tracks")
	}

	// Returned slices are copies.
	tracks := s.AudioTracks()
	tracks[0] = nil
	if s.AudioTracks()[0] == nil {
		t.Error("mutating the returned track slice leaked into the stream")
	}
}

func TestAudioPipe_OrderAndEOF(t *testing.T) {
	pipe := NewAudioPipe(4)

	for i := 0; i < 3; i++ {
		buf := NewAudioBuffer(1, 48000, 1)
		buf.PCM[0] = int16(i)
		if err := pipe.WriteBuffer(buf); err != nil {
			t.Fatalf("WriteBuffer() error: %v", err)
		}
	}
	pipe.Close()
	pipe.Close() // idempotent

	for i := 0; i < 3; i++ {
		buf, err := pipe.ReadBuffer()
		if err != nil {
			t.Fatalf("ReadBuffer() error: %v", err)
		}
		if buf.PCM[0] != int16(i) {
			t.Errorf("buffer %d out of order: got %d", i, buf.PCM[0])
		}
	}

	if _, err := pipe.ReadBuffer(); err != io.EOF {
		t.Errorf("ReadBuffer() after drain = %v, want io.EOF", err)
	}
	if err := pipe.WriteBuffer(NewAudioBuffer(1, 48000, 1)); err != ErrPipeClosed {
		t.Errorf("WriteBuffer() after close = %v, want ErrPipeClosed", err)
	}
}

func TestVideoPipe_OrderAndEOF(t *testing.T) {
	pipe := NewVideoPipe(2)

	if err := pipe.WriteFrame(NewVideoFrame(2, 2)); err != nil {
		t.Fatalf("WriteFrame() error: %v", err)
	}
	pipe.Close()

	if _, err := pipe.ReadFrame(); err != nil {
		t.Fatalf("ReadFrame() error: %v", err)
	}
	if _, err := pipe.ReadFrame(); err != io.EOF {
		t.Errorf("ReadFrame() after drain = %v, want io.EOF", err)
	}
	if err := pipe.WriteFrame(NewVideoFrame(2, 2)); err != ErrPipeClosed {
		t.Errorf("WriteFrame() after close = %v, want ErrPipeClosed", err)
	}
}

func TestBufferSliceSource(t *testing.T) {
	src := NewBufferSliceSource(NewAudioBuffer(1, 48000, 1))
	if _, err := src.ReadBuffer(); err != nil {
		t.Fatalf("ReadBuffer() error: %v", err)
	}
	if _, err := src.ReadBuffer(); err != io.EOF {
		t.Errorf("ReadBuffer() on exhausted source = %v, want io.EOF", err)
	}
}

func TestStaticLiveSource(t *testing.T) {
	frame := NewVideoFrame(2, 2)
	frame.Set(0, 0, 1, 2, 3, 4)
	src := NewStaticLiveSource(frame)

	snap, err := src.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}

	// Snapshot is a copy; mutating it must not affect the surface.
	snap.Set(0, 0, 9, 9, 9, 9)
	again, _ := src.Snapshot()
	r, _, _, _ := again.At(0, 0)
	if r != 1 {
		t.Error("mutating a snapshot leaked into the live surface")
	}
}

func TestManualScheduler(t *testing.T) {
	s := NewManualScheduler()

	ran := 0
	s.ScheduleNext(func() { ran++ })
	h := s.ScheduleNext(func() { ran += 10 })
	s.Cancel(h)

	if got := s.Step(); got != 1 {
		t.Errorf("Step() ran %d callbacks, want 1", got)
	}
	if ran != 1 {
		t.Errorf("ran = %d, want 1 (cancelled callback must not run)", ran)
	}

	// Callbacks scheduled during Step wait for the next Step.
	s.ScheduleNext(func() {
		ran++
		s.ScheduleNext(func() { ran += 100 })
	})
	s.Step()
	if ran != 2 {
		t.Errorf("ran = %d after second step, want 2", ran)
	}
	if s.PendingCount() != 1 {
		t.Errorf("PendingCount() = %d, want 1", s.PendingCount())
	}
}

func TestTickerScheduler(t *testing.T) {
	s := NewTickerScheduler(time.Millisecond)

	done := make(chan struct{})
	s.ScheduleNext(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduled callback never fired")
	}

	// Cancel before firing.
	h := s.ScheduleNext(func() { t.Error("cancelled callback fired") })
	s.Cancel(h)
	time.Sleep(5 * time.Millisecond)
}
