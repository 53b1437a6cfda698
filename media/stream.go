package media

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AudioTrack binds an identifier to a source of PCM buffers.
type AudioTrack struct {
	id         string
	source     AudioSource
	sampleRate uint32
	channels   uint8
}

// NewAudioTrack creates an audio track over the given source.
func NewAudioTrack(source AudioSource, sampleRate uint32, channels uint8) *AudioTrack {
	return &AudioTrack{
		id:         uuid.New().String(),
		source:     source,
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// ID returns the track identifier.
func (t *AudioTrack) ID() string { return t.id }

// Source returns the track's buffer source.
func (t *AudioTrack) Source() AudioSource { return t.source }

// SampleRate returns the track's sample rate in Hz.
func (t *AudioTrack) SampleRate() uint32 { return t.sampleRate }

// Channels returns the track's channel count.
func (t *AudioTrack) Channels() uint8 { return t.channels }

// VideoTrack binds an identifier to a frame source. A track supplies either a
// pull source (sequential decoded frames) or a live source (latest-frame
// snapshots), or both; the pipeline picks its delivery strategy from what is
// available.
type VideoTrack struct {
	id     string
	source VideoSource
	live   LiveSource
}

// NewVideoTrack creates a video track over a sequential frame source.
func NewVideoTrack(source VideoSource) *VideoTrack {
	return &VideoTrack{id: uuid.New().String(), source: source}
}

// NewLiveVideoTrack creates a video track over a snapshot-only source, the
// fallback for platforms without sequential frame delivery.
func NewLiveVideoTrack(live LiveSource) *VideoTrack {
	return &VideoTrack{id: uuid.New().String(), live: live}
}

// ID returns the track identifier.
func (t *VideoTrack) ID() string { return t.id }

// Source returns the sequential frame source, or nil.
func (t *VideoTrack) Source() VideoSource { return t.source }

// Live returns the snapshot source, or nil.
func (t *VideoTrack) Live() LiveSource { return t.live }

// Stream is a collection of audio and video tracks, the unit the orchestrator
// accepts and returns. Zero tracks of either kind is valid; the core never
// assumes both are present.
type Stream struct {
	id          string
	audioTracks []*AudioTrack
	videoTracks []*VideoTrack
	mu          sync.RWMutex
}

// NewStream creates an empty stream with a fresh identifier.
func NewStream() *Stream {
	s := &Stream{id: uuid.New().String()}
	logrus.WithFields(logrus.Fields{
		"function":  "NewStream",
		"stream_id": s.id,
	}).Debug("Media stream created")
	return s
}

// ID returns the stream identifier.
func (s *Stream) ID() string {
	return s.id
}

// AddAudioTrack appends an audio track to the stream.
func (s *Stream) AddAudioTrack(track *AudioTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioTracks = append(s.audioTracks, track)
}

// AddVideoTrack appends a video track to the stream.
func (s *Stream) AddVideoTrack(track *VideoTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videoTracks = append(s.videoTracks, track)
}

// AudioTracks returns a copy of the stream's audio track list.
func (s *Stream) AudioTracks() []*AudioTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*AudioTrack(nil), s.audioTracks...)
}

// VideoTracks returns a copy of the stream's video track list.
func (s *Stream) VideoTracks() []*VideoTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*VideoTrack(nil), s.videoTracks...)
}

// HasAudio reports whether the stream carries at least one audio track.
func (s *Stream) HasAudio() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.audioTracks) > 0
}

// HasVideo reports whether the stream carries at least one video track.
func (s *Stream) HasVideo() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.videoTracks) > 0
}
