// Package pixel provides the host-memory pixel buffer shared by the decoder,
// the image lifecycle and the GPU boundary.
package pixel

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidShape is returned when dimensions, channel count and storage length disagree.
	ErrInvalidShape = errors.New("pixel: invalid buffer shape")

	// ErrFormatMismatch is returned when an accessor does not match the buffer's format tag.
	ErrFormatMismatch = errors.New("pixel: format mismatch")
)

// Format tags the channel representation of a Buffer.
type Format uint8

const (
	// Integer8 is interleaved 8-bit unsigned channels.
	Integer8 Format = iota

	// FloatHDR is interleaved 32-bit float channels.
	FloatHDR
)

// String returns a human-readable name for the format.
func (f Format) String() string {
	switch f {
	case Integer8:
		return "int8"
	case FloatHDR:
		return "hdr"
	default:
		return fmt.Sprintf("Unknown(%d)", f)
	}
}

// BytesPerChannel returns the storage size of one channel value.
func (f Format) BytesPerChannel() int {
	if f == FloatHDR {
		return 4
	}
	return 1
}

// Buffer is a format-tagged block of interleaved pixels.
//
// The shape of a Buffer never changes after construction. A Buffer is
// either empty (no storage, zero dimensions) or fully populated.
// Bytes and Floats return views, so callers may edit pixels in place.
type Buffer struct {
	width    int
	height   int
	channels int
	format   Format
	u8       []byte
	f32      []float32
}

func checkShape(width, height, channels, n int) error {
	if width < 0 || height < 0 {
		return fmt.Errorf("%w: negative size %dx%d", ErrInvalidShape, width, height)
	}
	if channels < 1 || channels > 4 {
		return fmt.Errorf("%w: %d channels", ErrInvalidShape, channels)
	}
	if want := width * height * channels; n != want {
		return fmt.Errorf("%w: %dx%dx%d needs %d values, got %d", ErrInvalidShape, width, height, channels, want, n)
	}
	return nil
}

// New wraps 8-bit data of the given shape. The slice is owned by the buffer afterwards.
func New(width, height, channels int, data []byte) (*Buffer, error) {
	if err := checkShape(width, height, channels, len(data)); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return &Buffer{channels: channels, format: Integer8}, nil
	}
	return &Buffer{width: width, height: height, channels: channels, format: Integer8, u8: data}, nil
}

// NewHDR wraps float data of the given shape. The slice is owned by the buffer afterwards.
func NewHDR(width, height, channels int, data []float32) (*Buffer, error) {
	if err := checkShape(width, height, channels, len(data)); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return &Buffer{channels: channels, format: FloatHDR}, nil
	}
	return &Buffer{width: width, height: height, channels: channels, format: FloatHDR, f32: data}, nil
}

// Alloc returns a zeroed buffer of the given shape and format.
func Alloc(width, height, channels int, format Format) (*Buffer, error) {
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("%w: negative size %dx%d", ErrInvalidShape, width, height)
	}
	n := width * height * channels
	if format == FloatHDR {
		return NewHDR(width, height, channels, make([]float32, n))
	}
	return New(width, height, channels, make([]byte, n))
}

func (b *Buffer) Width() int     { return b.width }
func (b *Buffer) Height() int    { return b.height }
func (b *Buffer) Channels() int  { return b.channels }
func (b *Buffer) Format() Format { return b.format }

// Empty reports whether the buffer holds no pixels.
func (b *Buffer) Empty() bool {
	return b == nil || b.width == 0 || b.height == 0
}

// Len returns the number of channel values.
func (b *Buffer) Len() int {
	return b.width * b.height * b.channels
}

// Stride returns the number of channel values per row.
func (b *Buffer) Stride() int {
	return b.width * b.channels
}

// SizeBytes returns the storage size in bytes.
func (b *Buffer) SizeBytes() int {
	return b.Len() * b.format.BytesPerChannel()
}

// Bytes returns the 8-bit storage view.
func (b *Buffer) Bytes() ([]byte, error) {
	if b.format != Integer8 {
		return nil, fmt.Errorf("%w: buffer is %s, requested %s", ErrFormatMismatch, b.format, Integer8)
	}
	return b.u8, nil
}

// Floats returns the float storage view.
func (b *Buffer) Floats() ([]float32, error) {
	if b.format != FloatHDR {
		return nil, fmt.Errorf("%w: buffer is %s, requested %s", ErrFormatMismatch, b.format, FloatHDR)
	}
	return b.f32, nil
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	c := *b
	if b.u8 != nil {
		c.u8 = append([]byte(nil), b.u8...)
	}
	if b.f32 != nil {
		c.f32 = append([]float32(nil), b.f32...)
	}
	return &c
}

// ExpandRGBA returns a 4-channel copy of the buffer. Gray channels are
// replicated into RGB and missing alpha is filled opaque. A buffer that
// already has 4 channels is returned as is.
func (b *Buffer) ExpandRGBA() *Buffer {
	if b.channels == 4 {
		return b
	}
	pixels := b.width * b.height
	out := &Buffer{width: b.width, height: b.height, channels: 4, format: b.format}

	if b.format == FloatHDR {
		out.f32 = make([]float32, pixels*4)
		for i := 0; i < pixels; i++ {
			expandPixel(b.f32[i*b.channels:(i+1)*b.channels], out.f32[i*4:(i+1)*4], 1)
		}
		return out
	}

	out.u8 = make([]byte, pixels*4)
	for i := 0; i < pixels; i++ {
		expandPixel(b.u8[i*b.channels:(i+1)*b.channels], out.u8[i*4:(i+1)*4], 255)
	}
	return out
}

func expandPixel[T byte | float32](src, dst []T, opaque T) {
	switch len(src) {
	case 1:
		dst[0], dst[1], dst[2], dst[3] = src[0], src[0], src[0], opaque
	case 2: // gray + alpha
		dst[0], dst[1], dst[2], dst[3] = src[0], src[0], src[0], src[1]
	case 3:
		dst[0], dst[1], dst[2], dst[3] = src[0], src[1], src[2], opaque
	}
}
