package pixel

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// ChannelsOf returns the natural channel count of a decoded image:
// 1 for gray, 3 for formats without alpha (JPEG, CMYK), 4 otherwise.
func ChannelsOf(img image.Image) int {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return 1
	case *image.YCbCr, *image.CMYK:
		return 3
	default:
		return 4
	}
}

// FromImage converts a decoded image into a buffer of the requested format.
// Color is stored non-premultiplied, rows top to bottom.
func FromImage(img image.Image, format Format) *Buffer {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	n := ChannelsOf(img)
	if w == 0 || h == 0 {
		return &Buffer{channels: n, format: format}
	}

	if format == FloatHDR {
		return fromImageHDR(img, n)
	}

	out := &Buffer{width: w, height: h, channels: n, format: Integer8, u8: make([]byte, w*h*n)}

	if n == 1 {
		gray := image.NewGray(image.Rect(0, 0, w, h))
		draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
		for y := 0; y < h; y++ {
			copy(out.u8[y*w:(y+1)*w], gray.Pix[y*gray.Stride:y*gray.Stride+w])
		}
		return out
	}

	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}

	// Repack in tight rows, dropping alpha for 3-channel sources.
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		if n == 4 {
			copy(out.u8[y*w*4:(y+1)*w*4], row)
			continue
		}
		dst := out.u8[y*w*3 : (y+1)*w*3]
		for x := 0; x < w; x++ {
			dst[x*3+0] = row[x*4+0]
			dst[x*3+1] = row[x*4+1]
			dst[x*3+2] = row[x*4+2]
		}
	}
	return out
}

func fromImageHDR(img image.Image, n int) *Buffer {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := &Buffer{width: w, height: h, channels: n, format: FloatHDR, f32: make([]float32, w*h*n)}

	const max16 = 65535.0
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBA64Model.Convert(img.At(x, y)).(color.NRGBA64)
			switch n {
			case 1:
				out.f32[i] = float32(c.R) / max16
			case 3:
				out.f32[i+0] = float32(c.R) / max16
				out.f32[i+1] = float32(c.G) / max16
				out.f32[i+2] = float32(c.B) / max16
			default:
				out.f32[i+0] = float32(c.R) / max16
				out.f32[i+1] = float32(c.G) / max16
				out.f32[i+2] = float32(c.B) / max16
				out.f32[i+3] = float32(c.A) / max16
			}
			i += n
		}
	}
	return out
}

// ToImage returns an image view suitable for encoding. Integer8 buffers with
// one channel become *image.Gray, everything else *image.NRGBA. FloatHDR
// buffers are clamped to [0,1] into an *image.NRGBA64.
func (b *Buffer) ToImage() image.Image {
	rect := image.Rect(0, 0, b.width, b.height)

	if b.format == FloatHDR {
		rgba := b.ExpandRGBA()
		dst := image.NewNRGBA64(rect)
		for i := 0; i < b.width*b.height; i++ {
			p := rgba.f32[i*4 : i*4+4]
			o := dst.Pix[i*8 : i*8+8]
			for c := 0; c < 4; c++ {
				v := uint16(clamp01(p[c])*65535 + 0.5)
				o[c*2] = uint8(v >> 8)
				o[c*2+1] = uint8(v)
			}
		}
		return dst
	}

	if b.channels == 1 {
		gray := image.NewGray(rect)
		copy(gray.Pix, b.u8)
		return gray
	}

	rgba := b.ExpandRGBA()
	dst := image.NewNRGBA(rect)
	if rgba == b {
		copy(dst.Pix, b.u8)
	} else {
		dst.Pix = rgba.u8
	}
	return dst
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
