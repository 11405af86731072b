// Package codec decodes image files into pixel buffers and encodes them back.
//
// PNG, JPEG and GIF come from the standard library, BMP, TIFF and WebP from
// golang.org/x/image, and Radiance RGBE (.hdr) from github.com/mdouchement/hdr
// so HDR content keeps its floating point range.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"io"
	"os"
	"strings"

	"github.com/h2non/filetype"
	"github.com/muraty261/GlistEngine/internal/pixel"
	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/tiff" // Register TIFF decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
)

var (
	// ErrUnsupported is returned for content that is not a known image format.
	ErrUnsupported = errors.New("codec: unsupported image format")

	// ErrCorrupt is returned when a known format fails to decode.
	ErrCorrupt = errors.New("codec: corrupt image data")
)

// MaxPixels caps width*height of any decoded image. Headers claiming more
// are rejected as corrupt before pixel memory is allocated.
const MaxPixels = 1 << 28

func checkSize(width, height int) error {
	if width <= 0 || height <= 0 || width > MaxPixels/height {
		return fmt.Errorf("%w: image size %dx%d exceeds %d pixels", ErrCorrupt, width, height, MaxPixels)
	}
	return nil
}

// Options selects the output representation of a decode.
type Options struct {
	// Format is the requested pixel format. HDR sources are clamped when
	// Integer8 is requested, LDR sources are normalised to [0,1] for FloatHDR.
	Format pixel.Format

	// Mask reduces the result to a single 8-bit channel holding alpha, or
	// perceptual lightness when the source is fully opaque.
	Mask bool
}

// Decoder turns encoded image bytes into pixel buffers.
// The zero value is ready to use and safe for concurrent use.
type Decoder struct{}

// NewDecoder returns a Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// DecodeFile opens and decodes the file at path.
func (d *Decoder) DecodeFile(path string, opts Options) (*pixel.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	defer f.Close()

	buf, err := d.Decode(f, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return buf, nil
}

// Decode reads all of r and decodes it.
func (d *Decoder) Decode(r io.Reader, opts Options) (*pixel.Buffer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrUnsupported)
	}

	if isRadiance(data) {
		buf, err := decodeRadiance(data)
		if err != nil {
			return nil, err
		}
		if opts.Mask {
			return maskFromImage(buf.ToImage()), nil
		}
		if opts.Format == pixel.Integer8 {
			return pixel.FromImage(buf.ToImage(), pixel.Integer8), nil
		}
		return buf, nil
	}

	if kind, _ := filetype.Match(data); kind != filetype.Unknown && !filetype.IsImage(data) {
		return nil, fmt.Errorf("%w: content is %s", ErrUnsupported, kind.MIME.Value)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := checkSize(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if opts.Mask {
		return maskFromImage(img), nil
	}
	return pixel.FromImage(img, opts.Format), nil
}

// Sniff returns the file extension (without dot) matching the content in
// head, or "" when the content is not a recognised image.
func Sniff(head []byte) string {
	if isRadiance(head) {
		return "hdr"
	}
	if !filetype.IsImage(head) {
		return ""
	}
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return ""
	}
	return kind.Extension
}

// IsHDRFile reports whether the file at path holds floating point image
// data that should be decoded as pixel.FloatHDR.
func IsHDRFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, 16)
	n, _ := io.ReadFull(f, head)
	return isRadiance(head[:n])
}

// IsImageExt reports whether ext (with or without dot) names a format this
// package can decode.
func IsImageExt(ext string) bool {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "png", "jpg", "jpeg", "gif", "bmp", "tif", "tiff", "webp", "hdr":
		return true
	}
	return false
}
