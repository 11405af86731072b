package codec

import (
	"image"

	"github.com/anthonynsimon/bild/clone"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/muraty261/GlistEngine/internal/pixel"
)

// maskFromImage reduces img to a single-channel 8-bit mask.
// Translucent sources contribute their alpha channel; opaque sources
// contribute CIE L* lightness so a black-and-white mask works either way.
func maskFromImage(img image.Image) *pixel.Buffer {
	rgba := clone.AsRGBA(img)
	b := rgba.Bounds()
	w, h := b.Dx(), b.Dy()

	if w == 0 || h == 0 {
		buf, _ := pixel.New(0, 0, 1, nil)
		return buf
	}
	out := make([]byte, w*h)

	useAlpha := false
	for i := 3; i < len(rgba.Pix); i += 4 {
		if rgba.Pix[i] != 255 {
			useAlpha = true
			break
		}
	}

	for y := 0; y < h; y++ {
		row := rgba.Pix[y*rgba.Stride : y*rgba.Stride+w*4]
		for x := 0; x < w; x++ {
			p := row[x*4 : x*4+4]
			if useAlpha {
				out[y*w+x] = p[3]
				continue
			}
			c := colorful.Color{R: float64(p[0]) / 255, G: float64(p[1]) / 255, B: float64(p[2]) / 255}
			l, _, _ := c.Lab()
			out[y*w+x] = toByte(l)
		}
	}

	buf, _ := pixel.New(w, h, 1, out)
	return buf
}

func toByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}
