package pixel

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesShape(t *testing.T) {
	tests := []struct {
		name     string
		w, h, n  int
		dataLen  int
		wantErr  bool
		wantSize int
	}{
		{name: "rgba 2x2", w: 2, h: 2, n: 4, dataLen: 16, wantSize: 16},
		{name: "gray 3x1", w: 3, h: 1, n: 1, dataLen: 3, wantSize: 3},
		{name: "empty", w: 0, h: 0, n: 4, dataLen: 0, wantSize: 0},
		{name: "short storage", w: 2, h: 2, n: 4, dataLen: 15, wantErr: true},
		{name: "too many channels", w: 1, h: 1, n: 5, dataLen: 5, wantErr: true},
		{name: "zero channels", w: 1, h: 1, n: 0, dataLen: 0, wantErr: true},
		{name: "negative width", w: -1, h: 1, n: 1, dataLen: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := New(tt.w, tt.h, tt.n, make([]byte, tt.dataLen))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidShape))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSize, buf.SizeBytes())
		})
	}
}

func TestEmptyBufferHasNoStorage(t *testing.T) {
	buf, err := New(0, 7, 3, nil)
	require.NoError(t, err)
	assert.True(t, buf.Empty())
	assert.Equal(t, 0, buf.Width())
	assert.Equal(t, 0, buf.Height())

	data, err := buf.Bytes()
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestAccessorsRejectFormatMismatch(t *testing.T) {
	ldr, err := New(1, 1, 4, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	_, err = ldr.Floats()
	assert.ErrorIs(t, err, ErrFormatMismatch)

	hdr, err := NewHDR(1, 1, 3, []float32{0.5, 1.5, 2.5})
	require.NoError(t, err)
	_, err = hdr.Bytes()
	assert.ErrorIs(t, err, ErrFormatMismatch)

	f, err := hdr.Floats()
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 1.5, 2.5}, f)
	assert.Equal(t, 12, hdr.SizeBytes())
}

func TestCloneIsDeep(t *testing.T) {
	buf, err := New(2, 1, 1, []byte{10, 20})
	require.NoError(t, err)

	c := buf.Clone()
	data, _ := c.Bytes()
	data[0] = 99

	orig, _ := buf.Bytes()
	assert.Equal(t, byte(10), orig[0])
}

func TestExpandRGBA(t *testing.T) {
	gray, err := New(2, 1, 1, []byte{10, 200})
	require.NoError(t, err)
	rgba := gray.ExpandRGBA()
	data, _ := rgba.Bytes()
	assert.Equal(t, []byte{10, 10, 10, 255, 200, 200, 200, 255}, data)

	rgb, err := NewHDR(1, 1, 3, []float32{0.1, 0.2, 4})
	require.NoError(t, err)
	f, _ := rgb.ExpandRGBA().Floats()
	assert.Equal(t, []float32{0.1, 0.2, 4, 1}, f)

	same, err := New(1, 1, 4, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Same(t, same, same.ExpandRGBA())
}

func TestFromImageChannels(t *testing.T) {
	nrgba := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	nrgba.SetNRGBA(1, 0, color.NRGBA{R: 255, G: 128, B: 0, A: 64})
	buf := FromImage(nrgba, Integer8)
	assert.Equal(t, 4, buf.Channels())
	data, _ := buf.Bytes()
	assert.Equal(t, []byte{255, 128, 0, 64}, data[4:8], "alpha must stay non-premultiplied")

	gray := image.NewGray(image.Rect(0, 0, 3, 1))
	gray.Pix = []byte{1, 2, 3}
	gbuf := FromImage(gray, Integer8)
	assert.Equal(t, 1, gbuf.Channels())
	gdata, _ := gbuf.Bytes()
	assert.Equal(t, []byte{1, 2, 3}, gdata)

	ycc := image.NewYCbCr(image.Rect(0, 0, 4, 4), image.YCbCrSubsampleRatio420)
	assert.Equal(t, 3, FromImage(ycc, Integer8).Channels())
}

func TestFromImageHDRNormalises(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 0, B: 255, A: 255})

	buf := FromImage(img, FloatHDR)
	require.Equal(t, FloatHDR, buf.Format())
	f, err := buf.Floats()
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 0, 1, 1}, toF64(f), 1e-6)
}

func TestToImageRoundTrip(t *testing.T) {
	src := []byte{
		255, 0, 0, 255, 0, 255, 0, 128,
		0, 0, 255, 255, 9, 9, 9, 0,
	}
	buf, err := New(2, 2, 4, append([]byte(nil), src...))
	require.NoError(t, err)

	img, ok := buf.ToImage().(*image.NRGBA)
	require.True(t, ok)
	assert.Equal(t, src, img.Pix)

	back := FromImage(img, Integer8)
	data, _ := back.Bytes()
	assert.Equal(t, src, data)
}

func TestToImageClampsHDR(t *testing.T) {
	buf, err := NewHDR(1, 1, 4, []float32{4, -1, 0.5, 1})
	require.NoError(t, err)
	img, ok := buf.ToImage().(*image.NRGBA64)
	require.True(t, ok)
	c := img.NRGBA64At(0, 0)
	assert.Equal(t, uint16(65535), c.R)
	assert.Equal(t, uint16(0), c.G)
	assert.InDelta(t, 32768, int(c.B), 1)
}

func toF64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
