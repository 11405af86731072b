package codec

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/muraty261/GlistEngine/internal/pixel"
)

// Encode writes buf to w in the format named by ext ("png", ".jpg", "hdr", ...).
// HDR buffers written to 8-bit formats are clamped to [0,1].
func Encode(w io.Writer, buf *pixel.Buffer, ext string) error {
	if buf.Empty() {
		return fmt.Errorf("cannot encode empty buffer")
	}
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "hdr" {
		return encodeRadiance(w, buf)
	}

	format, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	return imaging.Encode(w, buf.ToImage(), format, imaging.JPEGQuality(95))
}

// SaveFile encodes buf into path, choosing the format from the extension.
// Parent directories are created as needed.
func SaveFile(path string, buf *pixel.Buffer) error {
	ext := filepath.Ext(path)
	if ext == "" {
		return fmt.Errorf("%w: %s has no extension", ErrUnsupported, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Encode(f, buf, ext); err != nil {
		f.Close()
		os.Remove(path) // nolint:errcheck // best effort cleanup
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}
