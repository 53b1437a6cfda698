package media

import (
	"errors"
	"io"
	"sync"
)

// ErrPipeClosed is returned when writing to a closed pipe.
var ErrPipeClosed = errors.New("media pipe is closed")

// AudioSource supplies sequential PCM buffers. ReadBuffer blocks until a
// buffer is available and returns io.EOF when the source is exhausted.
type AudioSource interface {
	ReadBuffer() (*AudioBuffer, error)
}

// AudioSink accepts sequential PCM buffers.
type AudioSink interface {
	WriteBuffer(buf *AudioBuffer) error
}

// VideoSource supplies sequential decoded frames. ReadFrame blocks until a
// frame is available and returns io.EOF when the source is exhausted.
type VideoSource interface {
	ReadFrame() (*VideoFrame, error)
}

// VideoSink accepts sequential frames.
type VideoSink interface {
	WriteFrame(frame *VideoFrame) error
}

// LiveSource exposes the latest frame of a live rendering surface. It is the
// capture fallback for platforms without sequential frame delivery: a
// scheduled loop samples Snapshot at a fixed rate instead of pulling every
// decoded frame.
type LiveSource interface {
	Snapshot() (*VideoFrame, error)
}

// AudioPipe is an in-memory AudioSource/AudioSink pair used to stitch a
// processed buffer sequence back into an output track. Buffers are delivered
// strictly in write order.
//
// Close uses a separate done channel instead of closing the data channel, so
// a writer blocked on a full pipe unblocks with ErrPipeClosed rather than
// panicking when the reader side shuts the pipe down.
type AudioPipe struct {
	ch        chan *AudioBuffer
	done      chan struct{}
	closeOnce sync.Once
}

// NewAudioPipe creates a pipe with the given buffering depth.
func NewAudioPipe(depth int) *AudioPipe {
	if depth < 1 {
		depth = 1
	}
	return &AudioPipe{
		ch:   make(chan *AudioBuffer, depth),
		done: make(chan struct{}),
	}
}

// WriteBuffer enqueues one buffer. It fails once the pipe is closed.
func (p *AudioPipe) WriteBuffer(buf *AudioBuffer) error {
	select {
	case <-p.done:
		return ErrPipeClosed
	default:
	}
	select {
	case p.ch <- buf:
		return nil
	case <-p.done:
		return ErrPipeClosed
	}
}

// ReadBuffer dequeues the next buffer, returning io.EOF after Close once the
// pipe drains.
func (p *AudioPipe) ReadBuffer() (*AudioBuffer, error) {
	select {
	case buf := <-p.ch:
		return buf, nil
	case <-p.done:
		select {
		case buf := <-p.ch:
			return buf, nil
		default:
			return nil, io.EOF
		}
	}
}

// Close marks the pipe finished. Readers drain remaining buffers then
// observe io.EOF. Close is idempotent.
func (p *AudioPipe) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

// VideoPipe is the frame counterpart of AudioPipe.
type VideoPipe struct {
	ch        chan *VideoFrame
	done      chan struct{}
	closeOnce sync.Once
}

// NewVideoPipe creates a pipe with the given buffering depth.
func NewVideoPipe(depth int) *VideoPipe {
	if depth < 1 {
		depth = 1
	}
	return &VideoPipe{
		ch:   make(chan *VideoFrame, depth),
		done: make(chan struct{}),
	}
}

// WriteFrame enqueues one frame. It fails once the pipe is closed.
func (p *VideoPipe) WriteFrame(frame *VideoFrame) error {
	select {
	case <-p.done:
		return ErrPipeClosed
	default:
	}
	select {
	case p.ch <- frame:
		return nil
	case <-p.done:
		return ErrPipeClosed
	}
}

// ReadFrame dequeues the next frame, returning io.EOF after Close once the
// pipe drains.
func (p *VideoPipe) ReadFrame() (*VideoFrame, error) {
	select {
	case frame := <-p.ch:
		return frame, nil
	case <-p.done:
		select {
		case frame := <-p.ch:
			return frame, nil
		default:
			return nil, io.EOF
		}
	}
}

// Close marks the pipe finished. Close is idempotent.
func (p *VideoPipe) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

// BufferSliceSource serves a fixed sequence of audio buffers, then io.EOF.
// It is the standard test double for audio track sources.
type BufferSliceSource struct {
	mu      sync.Mutex
	buffers []*AudioBuffer
}

// NewBufferSliceSource creates a source over the given buffers.
func NewBufferSliceSource(buffers ...*AudioBuffer) *BufferSliceSource {
	return &BufferSliceSource{buffers: buffers}
}

// ReadBuffer returns the next queued buffer or io.EOF.
func (s *BufferSliceSource) ReadBuffer() (*AudioBuffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buffers) == 0 {
		return nil, io.EOF
	}
	buf := s.buffers[0]
	s.buffers = s.buffers[1:]
	return buf, nil
}

// FrameSliceSource serves a fixed sequence of frames, then io.EOF.
type FrameSliceSource struct {
	mu     sync.Mutex
	frames []*VideoFrame
}

// NewFrameSliceSource creates a source over the given frames.
func NewFrameSliceSource(frames ...*VideoFrame) *FrameSliceSource {
	return &FrameSliceSource{frames: frames}
}

// ReadFrame returns the next queued frame or io.EOF.
func (s *FrameSliceSource) ReadFrame() (*VideoFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return nil, io.EOF
	}
	frame := s.frames[0]
	s.frames = s.frames[1:]
	return frame, nil
}

// StaticLiveSource snapshots a fixed frame, the simplest live surface.
type StaticLiveSource struct {
	mu    sync.Mutex
	frame *VideoFrame
}

// NewStaticLiveSource creates a live source always serving frame.
func NewStaticLiveSource(frame *VideoFrame) *StaticLiveSource {
	return &StaticLiveSource{frame: frame}
}

// SetFrame replaces the frame served by subsequent snapshots.
func (s *StaticLiveSource) SetFrame(frame *VideoFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = frame
}

// Snapshot returns a copy of the current frame.
func (s *StaticLiveSource) Snapshot() (*VideoFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return nil, io.EOF
	}
	return s.frame.Clone(), nil
}
