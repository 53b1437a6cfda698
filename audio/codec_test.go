package audio

import (
	"errors"
	"io"
	"testing"
)

// packetQueue is a PacketSource over a fixed packet list.
type packetQueue struct {
	packets [][]byte
}

func (q *packetQueue) ReadPacket() ([]byte, error) {
	if len(q.packets) == 0 {
		return nil, io.EOF
	}
	p := q.packets[0]
	q.packets = q.packets[1:]
	return p, nil
}

func TestNewOpusSource_NilPacketSource(t *testing.T) {
	if _, err := NewOpusSource(nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("NewOpusSource(nil) = %v, want ErrInvalidInput", err)
	}
}

func TestOpusSource_EOFPropagates(t *testing.T) {
	src, err := NewOpusSource(&packetQueue{})
	if err != nil {
		t.Fatalf("NewOpusSource() error: %v", err)
	}

	if _, err := src.ReadBuffer(); err != io.EOF {
		t.Errorf("ReadBuffer() on exhausted source = %v, want io.EOF", err)
	}
}

func TestOpusSource_EmptyPacketRejected(t *testing.T) {
	src, err := NewOpusSource(&packetQueue{packets: [][]byte{{}}})
	if err != nil {
		t.Fatalf("NewOpusSource() error: %v", err)
	}

	if _, err := src.ReadBuffer(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("ReadBuffer() on empty packet = %v, want ErrInvalidInput", err)
	}
}
