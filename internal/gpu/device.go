// Package gpu is the boundary between host pixel buffers and GPU textures.
//
// Textures are referred to by opaque IDs. Every Device call must be made
// from the Thread that owns the graphics context.
package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/muraty261/GlistEngine/internal/pixel"
)

// TextureID is an opaque handle to a GPU texture.
type TextureID uint64

// InvalidTexture is the zero value, representing no texture.
const InvalidTexture TextureID = 0

// Valid reports whether id names a texture.
func (id TextureID) Valid() bool { return id != InvalidTexture }

var (
	// ErrNotGraphicsThread is returned when a Device is used off its Thread.
	ErrNotGraphicsThread = errors.New("gpu: call made outside the graphics thread")

	// ErrUnknownTexture is returned for IDs the device did not create or has destroyed.
	ErrUnknownTexture = errors.New("gpu: unknown texture")

	// ErrEmptyBuffer is returned when uploading a buffer with no pixels.
	ErrEmptyBuffer = errors.New("gpu: empty pixel buffer")

	// ErrOutOfMemory is returned when a texture would exceed the device budget.
	ErrOutOfMemory = errors.New("gpu: texture memory exhausted")

	// ErrNoAlpha is returned when masking a texture that has no alpha channel.
	ErrNoAlpha = errors.New("gpu: texture has no alpha channel")
)

// Device creates and destroys textures.
type Device interface {
	// CreateTexture uploads buf and returns the new texture.
	CreateTexture(buf *pixel.Buffer) (TextureID, error)
	// DestroyTexture releases id. Destroying InvalidTexture is a no-op.
	DestroyTexture(id TextureID) error
	// ApplyMask multiplies the texture's alpha by a 1-channel mask,
	// resampled to the texture size.
	ApplyMask(id TextureID, mask *pixel.Buffer) error
}

// FormatFor returns the texture format used for buf and the channel count
// the upload will carry. 3-channel data has no matching format and is
// uploaded as 4 channels with opaque alpha.
func FormatFor(buf *pixel.Buffer) (gputypes.TextureFormat, int, error) {
	n := buf.Channels()
	if buf.Format() == pixel.FloatHDR {
		switch n {
		case 1:
			return gputypes.TextureFormatR32Float, 1, nil
		case 2:
			return gputypes.TextureFormatRG32Float, 2, nil
		case 3, 4:
			return gputypes.TextureFormatRGBA32Float, 4, nil
		}
	} else {
		switch n {
		case 1:
			return gputypes.TextureFormatR8Unorm, 1, nil
		case 2:
			return gputypes.TextureFormatRG8Unorm, 2, nil
		case 3, 4:
			return gputypes.TextureFormatRGBA8Unorm, 4, nil
		}
	}
	return gputypes.TextureFormatUndefined, 0, fmt.Errorf("gpu: no texture format for %d %s channels", n, buf.Format())
}

// alphaIndex returns the alpha channel offset for an uploaded channel
// count, or -1 when there is none.
func alphaIndex(channels int) int {
	switch channels {
	case 2:
		return 1
	case 4:
		return 3
	}
	return -1
}
