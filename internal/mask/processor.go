// Package mask builds and edits alpha masks: 1-channel 8-bit pixel buffers
// that modulate a texture's alpha when applied.
package mask

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/aquilax/go-perlin"
	"github.com/disintegration/gift"
	"github.com/muraty261/GlistEngine/internal/pixel"
)

// ErrNotMask is returned for buffers that are not 1-channel Integer8.
var ErrNotMask = errors.New("mask: not a 1-channel 8-bit buffer")

// toGray wraps a mask's storage as an *image.Gray without copying.
func toGray(m *pixel.Buffer) (*image.Gray, error) {
	if m == nil || m.Channels() != 1 {
		return nil, ErrNotMask
	}
	px, err := m.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotMask, err)
	}
	return &image.Gray{Pix: px, Stride: m.Width(), Rect: image.Rect(0, 0, m.Width(), m.Height())}, nil
}

func fromGray(g *image.Gray) *pixel.Buffer {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	px := make([]byte, w*h)
	for y := 0; y < h; y++ {
		copy(px[y*w:(y+1)*w], g.Pix[y*g.Stride:y*g.Stride+w])
	}
	buf, _ := pixel.New(w, h, 1, px)
	return buf
}

func filter(m *pixel.Buffer, g *gift.GIFT) (*pixel.Buffer, error) {
	src, err := toGray(m)
	if err != nil {
		return nil, err
	}
	if m.Empty() {
		return m.Clone(), nil
	}
	dst := image.NewGray(g.Bounds(src.Bounds()))
	g.Draw(dst, src)
	return fromGray(dst), nil
}

// Feather applies a Gaussian blur to soften mask edges.
// The sigma parameter controls the blur radius (larger = more blur).
func Feather(m *pixel.Buffer, sigma float32) (*pixel.Buffer, error) {
	if sigma <= 0 {
		if _, err := toGray(m); err != nil {
			return nil, err
		}
		return m.Clone(), nil
	}
	return filter(m, gift.New(gift.GaussianBlur(sigma)))
}

// Resize scales a mask to width x height with linear resampling.
func Resize(m *pixel.Buffer, width, height int) (*pixel.Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("mask: invalid size %dx%d", width, height)
	}
	return filter(m, gift.New(gift.Resize(width, height, gift.LinearResampling)))
}

// Invert returns 255 - v for every value.
func Invert(m *pixel.Buffer) (*pixel.Buffer, error) {
	return mapValues(m, func(v uint8) uint8 { return 255 - v })
}

// Threshold makes the mask binary: values at or above threshold become 255,
// the rest 0.
func Threshold(m *pixel.Buffer, threshold uint8) (*pixel.Buffer, error) {
	return mapValues(m, func(v uint8) uint8 {
		if v >= threshold {
			return 255
		}
		return 0
	})
}

func mapValues(m *pixel.Buffer, fn func(uint8) uint8) (*pixel.Buffer, error) {
	if _, err := toGray(m); err != nil {
		return nil, err
	}
	out := m.Clone()
	px, _ := out.Bytes()
	for i, v := range px {
		px[i] = fn(v)
	}
	return out, nil
}

// Min returns the per-pixel minimum (intersection) of two masks of equal size.
func Min(a, b *pixel.Buffer) (*pixel.Buffer, error) {
	return combine(a, b, func(x, y uint8) uint8 { return min(x, y) })
}

// Max returns the per-pixel maximum (union) of two masks of equal size.
func Max(a, b *pixel.Buffer) (*pixel.Buffer, error) {
	return combine(a, b, func(x, y uint8) uint8 { return max(x, y) })
}

func combine(a, b *pixel.Buffer, fn func(x, y uint8) uint8) (*pixel.Buffer, error) {
	if _, err := toGray(a); err != nil {
		return nil, err
	}
	if _, err := toGray(b); err != nil {
		return nil, err
	}
	if a.Width() != b.Width() || a.Height() != b.Height() {
		return nil, fmt.Errorf("mask: size mismatch %dx%d vs %dx%d", a.Width(), a.Height(), b.Width(), b.Height())
	}
	out := a.Clone()
	dst, _ := out.Bytes()
	other, _ := b.Bytes()
	for i := range dst {
		dst[i] = fn(dst[i], other[i])
	}
	return out, nil
}

// PerlinNoise generates a grayscale Perlin noise mask.
// scale controls the frequency of the noise (smaller = more detail) and seed
// makes the output deterministic.
func PerlinNoise(width, height int, scale float64, seed int64) (*pixel.Buffer, error) {
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("mask: invalid size %dx%d", width, height)
	}
	if scale <= 0 {
		return nil, fmt.Errorf("mask: noise scale must be positive, got %g", scale)
	}

	// alpha 2 (persistence), beta 2 (lacunarity), 3 octaves
	p := perlin.NewPerlin(2.0, 2.0, 3, seed)

	px := make([]byte, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			val := p.Noise2D(float64(x)/scale, float64(y)/scale)
			// roughly [-1,1] -> [0,255]
			normalized := (val + 1.0) / 2.0
			px[y*width+x] = uint8(math.Max(0, math.Min(255, normalized*255)))
		}
	}
	return pixel.New(width, height, 1, px)
}

// ApplyNoise perturbs a mask with noise centred on 128, for organic edges.
// The noise is tiled when smaller than the mask. strength 0 leaves the
// mask unchanged, 1 applies the full noise amplitude.
func ApplyNoise(m, noise *pixel.Buffer, strength float64) (*pixel.Buffer, error) {
	if _, err := toGray(m); err != nil {
		return nil, err
	}
	if _, err := toGray(noise); err != nil {
		return nil, err
	}
	if noise.Empty() {
		return m.Clone(), nil
	}

	w, h := m.Width(), m.Height()
	nw, nh := noise.Width(), noise.Height()
	out := m.Clone()
	dst, _ := out.Bytes()
	npx, _ := noise.Bytes()

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			delta := (float64(npx[(y%nh)*nw+x%nw]) - 128.0) * strength
			combined := float64(dst[y*w+x]) + delta
			dst[y*w+x] = uint8(math.Max(0, math.Min(255, combined)))
		}
	}
	return out, nil
}
