package media

import (
	"fmt"
	"time"
)

// VideoFrame is one decoded image in RGBA order, 4 bytes per pixel.
//
// Enhancement modules transform pixel values but never change the frame's
// dimensions.
type VideoFrame struct {
	Width     int
	Height    int
	Pixels    []byte // RGBA, Width*Height*4 bytes
	Timestamp time.Time
}

// NewVideoFrame allocates a black, fully opaque frame.
func NewVideoFrame(width, height int) *VideoFrame {
	f := &VideoFrame{
		Width:  width,
		Height: height,
		Pixels: make([]byte, width*height*4),
	}
	for i := 3; i < len(f.Pixels); i += 4 {
		f.Pixels[i] = 255
	}
	return f
}

// Clone returns a deep copy of the frame.
func (f *VideoFrame) Clone() *VideoFrame {
	if f == nil {
		return nil
	}
	return &VideoFrame{
		Width:     f.Width,
		Height:    f.Height,
		Pixels:    append([]byte(nil), f.Pixels...),
		Timestamp: f.Timestamp,
	}
}

// Validate checks that the pixel buffer matches the declared dimensions.
func (f *VideoFrame) Validate() error {
	if f == nil {
		return fmt.Errorf("frame cannot be nil")
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame dimensions %dx%d", f.Width, f.Height)
	}
	if expected := f.Width * f.Height * 4; len(f.Pixels) != expected {
		return fmt.Errorf("pixel buffer size %d does not match %dx%d RGBA (%d bytes)",
			len(f.Pixels), f.Width, f.Height, expected)
	}
	return nil
}

// At returns the RGBA components of the pixel at (x, y).
func (f *VideoFrame) At(x, y int) (r, g, b, a byte) {
	idx := (y*f.Width + x) * 4
	return f.Pixels[idx], f.Pixels[idx+1], f.Pixels[idx+2], f.Pixels[idx+3]
}

// Set writes the RGBA components of the pixel at (x, y).
func (f *VideoFrame) Set(x, y int, r, g, b, a byte) {
	idx := (y*f.Width + x) * 4
	f.Pixels[idx] = r
	f.Pixels[idx+1] = g
	f.Pixels[idx+2] = b
	f.Pixels[idx+3] = a
}
