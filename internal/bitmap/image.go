package bitmap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/muraty261/GlistEngine/internal/codec"
	"github.com/muraty261/GlistEngine/internal/gpu"
	"github.com/muraty261/GlistEngine/internal/loader"
	"github.com/muraty261/GlistEngine/internal/pixel"
)

// Image pairs a host pixel buffer with the GPU texture made from it.
//
// The two slots are independent: data can be loaded without a texture,
// and ClearData drops the data while keeping the texture. The data slot is
// swapped atomically, so a reader sees either the previous buffer or the
// next one in full. Concurrent async loads on one image publish in
// completion order and the last to finish wins.
//
// Synchronous loads and uploads may be called from any goroutine; device
// work is handed to the graphics thread and the call waits for it. Only
// one goroutine should mutate a given image at a time, apart from the
// publish step of async loads.
type Image struct {
	m *Manager

	data    atomic.Pointer[pixel.Buffer]
	version atomic.Uint64

	mu            sync.Mutex
	texture       gpu.TextureID
	texWidth      int
	texHeight     int
	texChannels   int
	texFormat     pixel.Format
	loadedFromURL bool
	imageURL      string
}

func (img *Image) log() *slog.Logger {
	return img.m.logger
}

// publish replaces the data slot. A nil buf clears it.
func (img *Image) publish(buf *pixel.Buffer) {
	if buf.Empty() {
		buf = nil
	}
	img.data.Store(buf)
	img.version.Add(1)
}

// DataVersion increases every time the data slot is replaced or cleared.
// Callers can poll it to notice async load completion.
func (img *Image) DataVersion() uint64 {
	return img.version.Load()
}

// Load decodes the file at path and uploads it, replacing any previous
// data and texture. Radiance files load as FloatHDR. On failure it returns
// gpu.InvalidTexture and leaves the image unchanged.
func (img *Image) Load(path string) (gpu.TextureID, error) {
	resolved, err := img.m.resolver.ResolvePath(path)
	if err != nil {
		return gpu.InvalidTexture, img.failed("load", path, fmt.Errorf("%w: %w", ErrResolution, err))
	}
	return img.loadFile("load", resolved, img.clearProvenance)
}

// LoadImage is Load for a name under the project's images folder.
func (img *Image) LoadImage(name string) (gpu.TextureID, error) {
	resolved, err := img.m.resolver.ResolveProject(name)
	if err != nil {
		return gpu.InvalidTexture, img.failed("load image", name, fmt.Errorf("%w: %w", ErrResolution, err))
	}
	return img.loadFile("load image", resolved, img.clearProvenance)
}

// LoadImageFromURL downloads url and loads it like Load. It blocks for the
// whole download, so callers usually run it off the render loop. On
// success the image is marked as URL-loaded and remembers the URL, without
// its query string when cutParams is set.
func (img *Image) LoadImageFromURL(ctx context.Context, url string, cutParams bool) (gpu.TextureID, error) {
	if img.m.fetcher == nil {
		return gpu.InvalidTexture, img.failed("load url", url, fmt.Errorf("%w: no downloader configured", ErrPrecondition))
	}

	dl, err := img.m.fetcher.Fetch(ctx, url, cutParams)
	if err != nil {
		return gpu.InvalidTexture, img.failed("load url", url, fmt.Errorf("%w: %w", ErrResolution, err))
	}

	return img.loadFile("load url", dl.Path, func() {
		img.loadedFromURL = true
		img.imageURL = dl.URL
	})
}

func (img *Image) clearProvenance() {
	img.loadedFromURL = false
	img.imageURL = ""
}

// loadFile decodes and uploads path. commit runs under the texture lock
// once the upload has succeeded.
func (img *Image) loadFile(op, path string, commit func()) (gpu.TextureID, error) {
	start := time.Now()
	buf, err := img.m.decoder.DecodeFile(path, codec.Options{Format: formatFor(path, pixel.Integer8)})
	if err != nil {
		return gpu.InvalidTexture, img.failed(op, path, fmt.Errorf("%w: %w", ErrDecode, err))
	}

	id, err := img.upload(buf, func() {
		img.publish(buf)
		commit()
	})
	if err != nil {
		return gpu.InvalidTexture, img.failed(op, path, err)
	}

	img.log().Info("image loaded",
		"path", path,
		"texture", uint64(id),
		"width", buf.Width(),
		"height", buf.Height(),
		"channels", buf.Channels(),
		"format", buf.Format().String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return id, nil
}

// upload creates a texture from buf on the graphics thread, makes it the
// image's texture and destroys the one it replaces. The old texture is
// only released after the new one exists.
func (img *Image) upload(buf *pixel.Buffer, commit func()) (gpu.TextureID, error) {
	var (
		id  gpu.TextureID
		err error
	)
	doErr := img.m.onGraphicsThread(func() {
		id, err = img.m.device.CreateTexture(buf)
		if err != nil {
			return
		}
		if !id.Valid() {
			err = errors.New("device returned an invalid texture")
			return
		}

		old := img.swapTexture(id, buf, commit)
		if old.Valid() {
			if derr := img.m.device.DestroyTexture(old); derr != nil {
				img.log().Warn("failed to destroy replaced texture", "texture", uint64(old), "error", derr)
			}
		}
	})
	if err == nil {
		err = doErr
	}
	if err != nil {
		return gpu.InvalidTexture, fmt.Errorf("%w: %w", ErrGPUUpload, err)
	}
	return id, nil
}

// swapTexture installs id as the image's texture and returns the one it
// replaces.
func (img *Image) swapTexture(id gpu.TextureID, buf *pixel.Buffer, commit func()) gpu.TextureID {
	img.mu.Lock()
	defer img.mu.Unlock()

	old := img.texture
	img.texture = id
	img.texWidth, img.texHeight, img.texChannels = buf.Width(), buf.Height(), buf.Channels()
	img.texFormat = buf.Format()
	if commit != nil {
		commit()
	}
	return old
}

// LoadData decodes the file at path in the background and publishes the
// buffer when done. No texture is created. The returned channel delivers
// the outcome exactly once; on failure the data slot is left unchanged.
func (img *Image) LoadData(path string) <-chan error {
	return img.loadAsync("load data", path, img.m.resolver.ResolvePath)
}

// LoadImageData is LoadData for a name under the project's images folder.
func (img *Image) LoadImageData(name string) <-chan error {
	return img.loadAsync("load image data", name, img.m.resolver.ResolveProject)
}

func (img *Image) loadAsync(op, target string, resolve func(string) (string, error)) <-chan error {
	done := make(chan error, 1)

	job := loader.Job{
		Name: target,
		Run: func(context.Context) (*pixel.Buffer, error) {
			path, err := resolve(target)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrResolution, err)
			}
			buf, err := img.m.decoder.DecodeFile(path, codec.Options{Format: formatFor(path, pixel.Integer8)})
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrDecode, err)
			}
			return buf, nil
		},
		Done: func(buf *pixel.Buffer, err error) {
			if err != nil {
				done <- img.failed(op, target, err)
				return
			}
			img.publish(buf)
			done <- nil
		},
	}

	if err := img.m.queue.Submit(job); err != nil {
		done <- img.failed(op, target, fmt.Errorf("%w: %w", ErrPrecondition, err))
	}
	return done
}

// UseData uploads the current data as a new texture, destroying the
// previous texture. It fails with ErrPrecondition when no data is present.
func (img *Image) UseData() (gpu.TextureID, error) {
	buf := img.data.Load()
	if buf.Empty() {
		return gpu.InvalidTexture, img.failed("use data", "", fmt.Errorf("%w: no pixel data", ErrPrecondition))
	}

	id, err := img.upload(buf, nil)
	if err != nil {
		return gpu.InvalidTexture, img.failed("use data", "", err)
	}
	img.log().Debug("pixel data uploaded", "texture", uint64(id), "width", buf.Width(), "height", buf.Height())
	return id, nil
}

// shape returns the dimensions new raw data is interpreted with: those of
// the current buffer, else of the last upload.
func (img *Image) shape() (w, h, n int, ok bool) {
	if buf := img.data.Load(); !buf.Empty() {
		return buf.Width(), buf.Height(), buf.Channels(), true
	}
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.texWidth > 0 && img.texHeight > 0 {
		return img.texWidth, img.texHeight, img.texChannels, true
	}
	return 0, 0, 0, false
}

// SetImageData replaces the data with 8-bit pixels of the current shape.
// The image owns data afterwards. The texture is not refreshed; call
// UseData for that.
func (img *Image) SetImageData(data []byte) error {
	w, h, n, ok := img.shape()
	if !ok {
		return fmt.Errorf("%w: image has no shape, use SetImageDataSized", ErrPrecondition)
	}
	return img.SetImageDataSized(data, w, h, n)
}

// SetImageDataSized replaces the data with 8-bit pixels of the given shape.
func (img *Image) SetImageDataSized(data []byte, width, height, channels int) error {
	buf, err := pixel.New(width, height, channels, data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPrecondition, err)
	}
	img.publish(buf)
	return nil
}

// SetImageDataHDR replaces the data with float pixels of the current shape.
func (img *Image) SetImageDataHDR(data []float32) error {
	w, h, n, ok := img.shape()
	if !ok {
		return fmt.Errorf("%w: image has no shape, use SetImageDataHDRSized", ErrPrecondition)
	}
	return img.SetImageDataHDRSized(data, w, h, n)
}

// SetImageDataHDRSized replaces the data with float pixels of the given shape.
func (img *Image) SetImageDataHDRSized(data []float32, width, height, channels int) error {
	buf, err := pixel.NewHDR(width, height, channels, data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPrecondition, err)
	}
	img.publish(buf)
	return nil
}

// ImageData returns a view of the current 8-bit pixels. It fails with
// ErrPrecondition when there is no data and ErrFormatMismatch when the data
// is FloatHDR.
func (img *Image) ImageData() ([]byte, error) {
	buf := img.data.Load()
	if buf.Empty() {
		return nil, fmt.Errorf("%w: no pixel data", ErrPrecondition)
	}
	px, err := buf.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormatMismatch, err)
	}
	return px, nil
}

// ImageDataHDR returns a view of the current float pixels. It fails with
// ErrPrecondition when there is no data and ErrFormatMismatch when the data
// is Integer8.
func (img *Image) ImageDataHDR() ([]float32, error) {
	buf := img.data.Load()
	if buf.Empty() {
		return nil, fmt.Errorf("%w: no pixel data", ErrPrecondition)
	}
	px, err := buf.Floats()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormatMismatch, err)
	}
	return px, nil
}

// ClearData drops the pixel data. The texture is kept.
func (img *Image) ClearData() {
	img.publish(nil)
}

// LoadMaskImage decodes path as a 1-channel mask and multiplies it into
// the alpha of the current texture. Relative paths name project images.
// The data slot is not touched. It returns the masked texture.
func (img *Image) LoadMaskImage(path string) (gpu.TextureID, error) {
	if !img.Texture().Valid() {
		return gpu.InvalidTexture, img.failed("load mask", path, fmt.Errorf("%w: no texture to mask", ErrPrecondition))
	}

	resolve := img.m.resolver.ResolveProject
	if filepath.IsAbs(path) {
		resolve = img.m.resolver.ResolvePath
	}
	resolved, err := resolve(path)
	if err != nil {
		return gpu.InvalidTexture, img.failed("load mask", path, fmt.Errorf("%w: %w", ErrResolution, err))
	}

	mask, err := img.m.decoder.DecodeFile(resolved, codec.Options{Mask: true})
	if err != nil {
		return gpu.InvalidTexture, img.failed("load mask", path, fmt.Errorf("%w: %w", ErrDecode, err))
	}

	var id gpu.TextureID
	doErr := img.m.onGraphicsThread(func() {
		id = img.Texture()
		err = img.m.device.ApplyMask(id, mask)
	})
	if err == nil {
		err = doErr
	}
	if err != nil {
		return gpu.InvalidTexture, img.failed("load mask", path, fmt.Errorf("%w: %w", ErrGPUUpload, err))
	}

	img.log().Debug("mask applied", "path", resolved, "texture", uint64(id))
	return id, nil
}

// SaveImage encodes the current data to fileName under the asset root.
// The format follows the file extension.
func (img *Image) SaveImage(fileName string) error {
	buf := img.data.Load()
	if buf.Empty() {
		return img.failed("save", fileName, fmt.Errorf("%w: no pixel data", ErrPrecondition))
	}

	out, err := img.m.resolver.OutputPath(fileName)
	if err != nil {
		return img.failed("save", fileName, fmt.Errorf("%w: %w", ErrPrecondition, err))
	}
	if err := codec.SaveFile(out, buf); err != nil {
		return img.failed("save", fileName, fmt.Errorf("failed to save image: %w", err))
	}

	img.log().Info("image saved", "path", out, "width", buf.Width(), "height", buf.Height())
	return nil
}

// Destroy releases the texture and drops the data.
func (img *Image) Destroy() error {
	var err error
	doErr := img.m.onGraphicsThread(func() {
		img.mu.Lock()
		old := img.texture
		img.texture = gpu.InvalidTexture
		img.mu.Unlock()
		err = img.m.device.DestroyTexture(old)
	})
	img.publish(nil)
	if err == nil {
		err = doErr
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGPUUpload, err)
	}
	return nil
}

// HasData reports whether pixel data is present.
func (img *Image) HasData() bool {
	return !img.data.Load().Empty()
}

// Texture returns the current texture, or gpu.InvalidTexture.
func (img *Image) Texture() gpu.TextureID {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.texture
}

// Width returns the width of the data, or of the texture when the data
// has been cleared.
func (img *Image) Width() int {
	if buf := img.data.Load(); !buf.Empty() {
		return buf.Width()
	}
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.texWidth
}

// Height returns the height of the data, or of the texture when the data
// has been cleared.
func (img *Image) Height() int {
	if buf := img.data.Load(); !buf.Empty() {
		return buf.Height()
	}
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.texHeight
}

// Components returns the channel count of the data, or of the texture
// source when the data has been cleared.
func (img *Image) Components() int {
	if buf := img.data.Load(); !buf.Empty() {
		return buf.Channels()
	}
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.texChannels
}

// Format returns the pixel format of the data, or of the texture source
// when the data has been cleared.
func (img *Image) Format() pixel.Format {
	if buf := img.data.Load(); !buf.Empty() {
		return buf.Format()
	}
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.texFormat
}

// LoadedFromURL reports whether the current content came from a URL.
func (img *Image) LoadedFromURL() bool {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.loadedFromURL
}

// ImageURL returns the URL the current content came from, or "".
func (img *Image) ImageURL() string {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.imageURL
}

func (img *Image) failed(op, target string, err error) error {
	img.log().Warn("image operation failed", "op", op, "source", target, "error", err)
	return err
}
