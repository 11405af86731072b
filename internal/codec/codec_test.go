package codec

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/muraty261/GlistEngine/internal/pixel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func patternImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 40), G: uint8(y * 40), B: 100, A: 255})
		}
	}
	return img
}

func TestDecodePNGInteger(t *testing.T) {
	data := encodePNG(t, patternImage(5, 3))

	buf, err := NewDecoder().Decode(bytes.NewReader(data), Options{})
	require.NoError(t, err)
	assert.Equal(t, 5, buf.Width())
	assert.Equal(t, 3, buf.Height())
	assert.Equal(t, 4, buf.Channels())
	assert.Equal(t, pixel.Integer8, buf.Format())

	px, err := buf.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{80, 40, 100, 255}, px[(1*5+2)*4:(1*5+2)*4+4])
}

func TestDecodeGrayKeepsOneChannel(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 4, 4))
	data := encodePNG(t, gray)

	buf, err := NewDecoder().Decode(bytes.NewReader(data), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, buf.Channels())
}

func TestDecodeFloatHint(t *testing.T) {
	data := encodePNG(t, patternImage(2, 2))

	buf, err := NewDecoder().Decode(bytes.NewReader(data), Options{Format: pixel.FloatHDR})
	require.NoError(t, err)
	require.Equal(t, pixel.FloatHDR, buf.Format())

	f, err := buf.Floats()
	require.NoError(t, err)
	require.Len(t, f, 2*2*4)
	assert.InDelta(t, 100.0/255, f[2], 1e-4)
	assert.InDelta(t, 1.0, f[3], 1e-6)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{name: "text", data: []byte("definitely not an image"), want: ErrUnsupported},
		{name: "zip archive", data: []byte("PK\x03\x04\x14\x00\x00\x00\x08\x00"), want: ErrUnsupported},
		{name: "empty", data: nil, want: ErrUnsupported},
		{name: "truncated png", data: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR"), want: ErrCorrupt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDecoder().Decode(bytes.NewReader(tt.data), Options{})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeFileMissing(t *testing.T) {
	_, err := NewDecoder().DecodeFile(filepath.Join(t.TempDir(), "nope.png"), Options{})
	assert.Error(t, err)
}

func TestMaskFromOpaqueUsesLightness(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	buf, err := NewDecoder().Decode(bytes.NewReader(encodePNG(t, img)), Options{Mask: true})
	require.NoError(t, err)
	assert.Equal(t, 1, buf.Channels())

	px, _ := buf.Bytes()
	assert.Equal(t, uint8(0), px[0])
	assert.Equal(t, uint8(255), px[1])
}

func TestMaskFromTranslucentUsesAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 64})
	img.SetNRGBA(1, 0, color.NRGBA{R: 255, A: 255})

	buf, err := NewDecoder().Decode(bytes.NewReader(encodePNG(t, img)), Options{Mask: true})
	require.NoError(t, err)

	px, _ := buf.Bytes()
	assert.Equal(t, []byte{64, 255}, px)
}

func TestRadianceRoundTrip(t *testing.T) {
	src, err := pixel.NewHDR(2, 1, 3, []float32{1, 0.5, 0.25, 4, 2, 0})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, Encode(&out, src, "hdr"))
	assert.Equal(t, "hdr", Sniff(out.Bytes()))

	buf, err := NewDecoder().Decode(bytes.NewReader(out.Bytes()), Options{Format: pixel.FloatHDR})
	require.NoError(t, err)
	assert.Equal(t, pixel.FloatHDR, buf.Format())
	assert.Equal(t, 3, buf.Channels())

	f, _ := buf.Floats()
	assert.InDeltaSlice(t, []float64{1, 0.5, 0.25, 4, 2, 0}, toF64(f), 0.02)
}

func TestRadianceRLEScanline(t *testing.T) {
	// 8 pixels, every channel a single run.
	var data bytes.Buffer
	data.WriteString("#?RADIANCE\nFORMAT=32-bit_rle_rgbe\n\n-Y 1 +X 8\n")
	data.Write([]byte{2, 2, 0, 8})
	for _, v := range []byte{128, 64, 0, 129} {
		data.Write([]byte{128 + 8, v})
	}

	buf, err := NewDecoder().Decode(&data, Options{Format: pixel.FloatHDR})
	require.NoError(t, err)
	f, _ := buf.Floats()
	require.Len(t, f, 8*3)
	for x := 0; x < 8; x++ {
		assert.InDelta(t, 1.0, f[x*3], 0.01)
		assert.InDelta(t, 0.5, f[x*3+1], 0.01)
		assert.InDelta(t, 0.0, f[x*3+2], 0.01)
	}
}

func TestRadianceIntegerHintClamps(t *testing.T) {
	src, err := pixel.NewHDR(1, 1, 3, []float32{8, 0.5, 0})
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, Encode(&out, src, ".hdr"))

	buf, err := NewDecoder().Decode(&out, Options{Format: pixel.Integer8})
	require.NoError(t, err)
	px, err := buf.Bytes()
	require.NoError(t, err)
	assert.Equal(t, uint8(255), px[0])
	assert.InDelta(t, 128, int(px[1]), 1)
}

func TestSaveFileFormats(t *testing.T) {
	src := pixel.FromImage(patternImage(4, 4), pixel.Integer8)
	dir := t.TempDir()

	for _, name := range []string{"a.png", "b.jpg", "c.bmp", "d.tif", "e.hdr"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, "out", name)
			require.NoError(t, SaveFile(path, src))

			buf, err := NewDecoder().DecodeFile(path, Options{})
			require.NoError(t, err)
			assert.Equal(t, 4, buf.Width())
			assert.Equal(t, 4, buf.Height())
		})
	}
}

func TestIsHDRFile(t *testing.T) {
	dir := t.TempDir()
	hdr, _ := pixel.NewHDR(1, 1, 3, []float32{1, 1, 1})
	ldr := pixel.FromImage(patternImage(1, 1), pixel.Integer8)

	require.NoError(t, SaveFile(filepath.Join(dir, "sky.hdr"), hdr))
	require.NoError(t, SaveFile(filepath.Join(dir, "sky.png"), ldr))

	assert.True(t, IsHDRFile(filepath.Join(dir, "sky.hdr")))
	assert.False(t, IsHDRFile(filepath.Join(dir, "sky.png")))
	assert.False(t, IsHDRFile(filepath.Join(dir, "missing.hdr")))
}

func TestSaveFileUnknownExtension(t *testing.T) {
	src := pixel.FromImage(patternImage(1, 1), pixel.Integer8)
	err := SaveFile(filepath.Join(t.TempDir(), "x.xyz"), src)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestSniff(t *testing.T) {
	assert.Equal(t, "png", Sniff(encodePNG(t, patternImage(1, 1))))
	assert.Equal(t, "", Sniff([]byte("hello")))
	assert.True(t, IsImageExt(".JPG"))
	assert.False(t, IsImageExt("txt"))
}

func TestOversizedHeadersRejected(t *testing.T) {
	// IHDR of a 1x1 PNG patched to claim 100000x100000, with a valid CRC.
	bigPNG := encodePNG(t, image.NewGray(image.Rect(0, 0, 1, 1)))
	binary.BigEndian.PutUint32(bigPNG[16:20], 100000)
	binary.BigEndian.PutUint32(bigPNG[20:24], 100000)
	binary.BigEndian.PutUint32(bigPNG[29:33], crc32.ChecksumIEEE(bigPNG[12:29]))

	tests := []struct {
		name string
		data []byte
	}{
		{"radiance overflowing", []byte("#?RADIANCE\nFORMAT=32-bit_rle_rgbe\n\n-Y 3037000500 +X 3037000500\n")},
		{"radiance too large", []byte("#?RADIANCE\nFORMAT=32-bit_rle_rgbe\n\n-Y 100000 +X 100000\n")},
		{"png too large", bigPNG},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDecoder().Decode(bytes.NewReader(tt.data), Options{Format: pixel.FloatHDR})
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestCheckSize(t *testing.T) {
	assert.NoError(t, checkSize(1<<14, 1<<14))
	assert.ErrorIs(t, checkSize(1<<14+1, 1<<14), ErrCorrupt)
	assert.ErrorIs(t, checkSize(0, 10), ErrCorrupt)
}

func toF64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
