package audio

import (
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/streamfx/media"
)

// PacketSource supplies sequential encoded audio packets. ReadPacket returns
// io.EOF when the source is exhausted.
type PacketSource interface {
	ReadPacket() ([]byte, error)
}

// maxOpusFrameSamples bounds the decode buffer: 40ms at 48kHz.
const maxOpusFrameSamples = 1920

// OpusSource adapts a source of Opus-encoded packets into a PCM
// media.AudioSource, so compressed tracks can feed the enhancement chain.
//
// Decoding uses pion/opus (pure Go). The sample rate of each emitted buffer
// comes from the decoded bandwidth.
type OpusSource struct {
	packets PacketSource
	decoder opus.Decoder
	scratch []byte
}

// NewOpusSource creates a decoding source over packets.
func NewOpusSource(packets PacketSource) (*OpusSource, error) {
	if packets == nil {
		return nil, fmt.Errorf("%w: packet source cannot be nil", ErrInvalidInput)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewOpusSource",
	}).Info("Creating opus decoding source")

	return &OpusSource{
		packets: packets,
		decoder: opus.NewDecoder(),
		scratch: make([]byte, maxOpusFrameSamples*2),
	}, nil
}

// ReadBuffer decodes the next packet into a PCM buffer. io.EOF propagates
// from the packet source when it is exhausted.
func (s *OpusSource) ReadBuffer() (*media.AudioBuffer, error) {
	data, err := s.packets.ReadPacket()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty audio packet", ErrInvalidInput)
	}

	// Clear the scratch so a short frame never re-emits the previous
	// packet's tail.
	for i := range s.scratch {
		s.scratch[i] = 0
	}

	bandwidth, isStereo, err := s.decoder.Decode(data, s.scratch)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "OpusSource.ReadBuffer",
			"data_size": len(data),
			"error":     err.Error(),
		}).Error("Opus decode failed")
		return nil, fmt.Errorf("%w: opus decode failed: %v", ErrProcessing, err)
	}

	channels := uint8(1)
	if isStereo {
		channels = 2
	}

	sampleCount := len(s.scratch) / 2
	if isStereo {
		sampleCount /= 2
	}
	pcm := make([]int16, sampleCount)
	for i := 0; i < sampleCount; i++ {
		pcm[i] = int16(s.scratch[i*2]) | int16(s.scratch[i*2+1])<<8
	}

	buf := &media.AudioBuffer{
		PCM:        pcm,
		SampleRate: uint32(bandwidth.SampleRate()),
		Channels:   channels,
	}

	logrus.WithFields(logrus.Fields{
		"function":    "OpusSource.ReadBuffer",
		"input_size":  len(data),
		"pcm_samples": len(pcm),
		"sample_rate": buf.SampleRate,
		"is_stereo":   isStereo,
	}).Debug("Opus packet decoded")

	return buf, nil
}
