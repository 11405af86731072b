package gpu

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/disintegration/gift"
	"github.com/gogpu/gputypes"
	"github.com/muraty261/GlistEngine/internal/pixel"
)

// Texture is a texture held by a MemoryDevice.
type Texture struct {
	Pixels   *pixel.Buffer // Device-owned copy in upload layout
	ID       TextureID
	Format   gputypes.TextureFormat
	Width    int
	Height   int
	Channels int
}

// MemoryConfig configures a MemoryDevice.
type MemoryConfig struct {
	// Logger for texture operations
	Logger *slog.Logger
	// MaxBytes caps the total size of live textures (0 = unlimited)
	MaxBytes int64
}

// MemoryDevice is a Device that keeps textures in host memory. It enforces
// the same threading rule as a real driver: every call must come from its
// Thread. IDs increase monotonically and are never reused.
type MemoryDevice struct {
	thread   *Thread
	cfg      MemoryConfig
	mu       sync.Mutex
	textures map[TextureID]*Texture
	next     TextureID
	used     int64
}

// NewMemoryDevice creates a device bound to thread.
func NewMemoryDevice(thread *Thread, cfg MemoryConfig) *MemoryDevice {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &MemoryDevice{
		thread:   thread,
		cfg:      cfg,
		textures: make(map[TextureID]*Texture),
	}
}

// Thread returns the graphics thread the device is bound to.
func (d *MemoryDevice) Thread() *Thread { return d.thread }

func (d *MemoryDevice) checkThread() error {
	if d.thread == nil || !d.thread.Current() {
		return ErrNotGraphicsThread
	}
	return nil
}

// CreateTexture copies buf into a new texture.
func (d *MemoryDevice) CreateTexture(buf *pixel.Buffer) (TextureID, error) {
	if err := d.checkThread(); err != nil {
		return InvalidTexture, err
	}
	if buf.Empty() {
		return InvalidTexture, ErrEmptyBuffer
	}

	format, channels, err := FormatFor(buf)
	if err != nil {
		return InvalidTexture, err
	}
	var pixels *pixel.Buffer
	if channels != buf.Channels() {
		pixels = buf.ExpandRGBA()
	} else {
		pixels = buf.Clone()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	size := int64(pixels.SizeBytes())
	if d.cfg.MaxBytes > 0 && d.used+size > d.cfg.MaxBytes {
		return InvalidTexture, fmt.Errorf("%w: need %d bytes, %d of %d in use", ErrOutOfMemory, size, d.used, d.cfg.MaxBytes)
	}

	d.next++
	id := d.next
	d.textures[id] = &Texture{
		ID:       id,
		Format:   format,
		Width:    pixels.Width(),
		Height:   pixels.Height(),
		Channels: channels,
		Pixels:   pixels,
	}
	d.used += size

	d.cfg.Logger.Debug("texture created",
		"texture", uint64(id),
		"width", pixels.Width(),
		"height", pixels.Height(),
		"format", fmt.Sprint(format),
		"size_bytes", size,
	)
	return id, nil
}

// DestroyTexture releases id.
func (d *MemoryDevice) DestroyTexture(id TextureID) error {
	if err := d.checkThread(); err != nil {
		return err
	}
	if !id.Valid() {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	tex, ok := d.textures[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTexture, id)
	}
	d.used -= int64(tex.Pixels.SizeBytes())
	delete(d.textures, id)

	d.cfg.Logger.Debug("texture destroyed", "texture", uint64(id))
	return nil
}

// ApplyMask scales the mask to the texture with linear resampling and
// multiplies it into the texture's alpha channel.
func (d *MemoryDevice) ApplyMask(id TextureID, mask *pixel.Buffer) error {
	if err := d.checkThread(); err != nil {
		return err
	}
	if mask.Empty() {
		return ErrEmptyBuffer
	}
	maskPx, err := mask.Bytes()
	if err != nil || mask.Channels() != 1 {
		return fmt.Errorf("gpu: mask must be 1-channel %s, got %d-channel %s", pixel.Integer8, mask.Channels(), mask.Format())
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	tex, ok := d.textures[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTexture, id)
	}
	a := alphaIndex(tex.Channels)
	if a < 0 {
		return fmt.Errorf("%w: texture %d is %d-channel", ErrNoAlpha, id, tex.Channels)
	}

	if mask.Width() != tex.Width || mask.Height() != tex.Height {
		maskPx = resizeMask(maskPx, mask.Width(), mask.Height(), tex.Width, tex.Height)
	}

	n := tex.Channels
	if tex.Pixels.Format() == pixel.FloatHDR {
		px, _ := tex.Pixels.Floats()
		for i, m := range maskPx {
			px[i*n+a] *= float32(m) / 255
		}
	} else {
		px, _ := tex.Pixels.Bytes()
		for i, m := range maskPx {
			px[i*n+a] = uint8((uint32(px[i*n+a])*uint32(m) + 127) / 255)
		}
	}

	d.cfg.Logger.Debug("mask applied", "texture", uint64(id), "mask_width", mask.Width(), "mask_height", mask.Height())
	return nil
}

func resizeMask(px []byte, w, h, tw, th int) []byte {
	src := &image.Gray{Pix: px, Stride: w, Rect: image.Rect(0, 0, w, h)}
	g := gift.New(gift.Resize(tw, th, gift.LinearResampling))
	dst := image.NewGray(g.Bounds(src.Bounds()))
	g.Draw(dst, src)

	if dst.Stride == tw {
		return dst.Pix
	}
	out := make([]byte, tw*th)
	for y := 0; y < th; y++ {
		copy(out[y*tw:(y+1)*tw], dst.Pix[y*dst.Stride:])
	}
	return out
}

// Texture returns a copy of the texture record for id.
// It may be called from any goroutine.
func (d *MemoryDevice) Texture(id TextureID) (Texture, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tex, ok := d.textures[id]
	if !ok {
		return Texture{}, false
	}
	out := *tex
	out.Pixels = tex.Pixels.Clone()
	return out, true
}

// Live returns the number of textures not yet destroyed.
func (d *MemoryDevice) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.textures)
}

// UsedBytes returns the total size of live textures.
func (d *MemoryDevice) UsedBytes() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.used
}
