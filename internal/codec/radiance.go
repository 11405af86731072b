package codec

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"
	"github.com/muraty261/GlistEngine/internal/pixel"
)

var radianceMagic = [][]byte{[]byte("#?RADIANCE"), []byte("#?RGBE")}

func isRadiance(head []byte) bool {
	for _, m := range radianceMagic {
		if bytes.HasPrefix(head, m) {
			return true
		}
	}
	return false
}

// decodeRadiance reads a Radiance RGBE picture into a 3-channel float buffer.
func decodeRadiance(data []byte) (*pixel.Buffer, error) {
	cfg, err := rgbe.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: radiance header: %v", ErrCorrupt, err)
	}
	if err := checkSize(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}

	img, err := rgbe.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: radiance: %v", ErrCorrupt, err)
	}
	m, ok := img.(hdr.Image)
	if !ok {
		return nil, fmt.Errorf("%w: radiance decoder returned %T", ErrUnsupported, img)
	}

	b := m.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]float32, w*h*3)
	for y := 0; y < h; y++ {
		row := out[y*w*3 : (y+1)*w*3]
		for x := 0; x < w; x++ {
			r, g, bl, _ := m.HDRAt(b.Min.X+x, b.Min.Y+y).HDRRGBA()
			row[x*3+0] = float32(r)
			row[x*3+1] = float32(g)
			row[x*3+2] = float32(bl)
		}
	}
	return pixel.NewHDR(w, h, 3, out)
}

// encodeRadiance writes buf as a Radiance picture. 8-bit buffers are
// normalised to [0,1].
func encodeRadiance(w io.Writer, buf *pixel.Buffer) error {
	width, height := buf.Width(), buf.Height()
	rgba := buf.ExpandRGBA()
	m := hdr.NewRGB(image.Rect(0, 0, width, height))

	floats, _ := rgba.Floats()
	px, _ := rgba.Bytes()
	at := func(i int) (r, g, b float64) {
		if floats != nil {
			return float64(floats[i]), float64(floats[i+1]), float64(floats[i+2])
		}
		return float64(px[i]) / 255, float64(px[i+1]) / 255, float64(px[i+2]) / 255
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b := at((y*width + x) * 4)
			m.SetRGB(x, y, hdrcolor.RGB{R: max(r, 0), G: max(g, 0), B: max(b, 0)})
		}
	}

	if err := rgbe.Encode(w, m); err != nil {
		return fmt.Errorf("failed to encode radiance: %w", err)
	}
	return nil
}
