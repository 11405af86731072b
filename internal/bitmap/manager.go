// Package bitmap owns the lifecycle of images used by the renderer: loading
// pixel data from files, project assets or URLs, holding it in host memory,
// and uploading it to GPU textures on the graphics thread.
package bitmap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/muraty261/GlistEngine/internal/codec"
	"github.com/muraty261/GlistEngine/internal/gpu"
	"github.com/muraty261/GlistEngine/internal/loader"
	"github.com/muraty261/GlistEngine/internal/pixel"
	"github.com/muraty261/GlistEngine/internal/source"
	"github.com/muraty261/GlistEngine/internal/worker"
)

// Decoder turns an image file into a pixel buffer.
type Decoder interface {
	DecodeFile(path string, opts codec.Options) (*pixel.Buffer, error)
}

// Fetcher downloads an image URL to a local file.
type Fetcher interface {
	Fetch(ctx context.Context, url string, cutParams bool) (source.Download, error)
}

// Config configures a Manager.
type Config struct {
	// Device creates textures. Required.
	Device gpu.Device
	// Thread is the graphics thread uploads are marshalled to. When nil and
	// Device has a Thread() method, that thread is used; otherwise device
	// calls run on the calling goroutine.
	Thread *gpu.Thread
	// Resolver resolves paths and project names (default: assets under ".").
	Resolver *source.Resolver
	// Decoder decodes files (default: codec.NewDecoder()).
	Decoder Decoder
	// Fetcher downloads URLs. LoadImageFromURL fails without one.
	Fetcher Fetcher
	// Queue runs async loads. When nil the manager starts and owns one.
	Queue *loader.Queue
	// Loader configures the owned queue.
	Loader loader.Config
	// Counter numbers downloaded files (default: source.DefaultCounter).
	Counter *source.Counter
	// Logger for image operations
	Logger *slog.Logger
}

// Manager holds the collaborators shared by all images of a process.
type Manager struct {
	device    gpu.Device
	thread    *gpu.Thread
	resolver  *source.Resolver
	decoder   Decoder
	fetcher   Fetcher
	queue     *loader.Queue
	counter   *source.Counter
	logger    *slog.Logger
	ownsQueue bool
}

// NewManager creates a manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Device == nil {
		return nil, errors.New("bitmap: a graphics device is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Thread == nil {
		if owner, ok := cfg.Device.(interface{ Thread() *gpu.Thread }); ok {
			cfg.Thread = owner.Thread()
		}
	}
	if cfg.Resolver == nil {
		cfg.Resolver = &source.Resolver{AssetRoot: "."}
	}
	if cfg.Decoder == nil {
		cfg.Decoder = codec.NewDecoder()
	}
	if cfg.Counter == nil {
		cfg.Counter = source.DefaultCounter
	}

	m := &Manager{
		device:   cfg.Device,
		thread:   cfg.Thread,
		resolver: cfg.Resolver,
		decoder:  cfg.Decoder,
		fetcher:  cfg.Fetcher,
		queue:    cfg.Queue,
		counter:  cfg.Counter,
		logger:   cfg.Logger,
	}
	if m.queue == nil {
		lc := cfg.Loader
		if lc.Logger == nil {
			lc.Logger = cfg.Logger
		}
		m.queue = loader.New(lc)
		m.queue.Start()
		m.ownsQueue = true
	}
	return m, nil
}

// Close stops the owned loader queue, waiting for in-flight loads.
func (m *Manager) Close() {
	if m.ownsQueue {
		m.queue.Stop()
	}
}

// Resolver returns the manager's resolver.
func (m *Manager) Resolver() *source.Resolver { return m.resolver }

// QueueStatus reports the async loader's counters.
func (m *Manager) QueueStatus() loader.Status { return m.queue.Status() }

// GenerateDownloadedImagePath returns a unique file name for a downloaded
// image of the given type (png when empty).
func (m *Manager) GenerateDownloadedImagePath(imageType string) string {
	return m.counter.GenerateDownloadedImagePath(imageType)
}

// NewImage returns an image with no data and no texture.
func (m *Manager) NewImage() *Image {
	return &Image{m: m}
}

// NewImageSized returns an image holding a zeroed 8-bit buffer of the
// given shape, ready for SetImageData or UseData.
func (m *Manager) NewImageSized(width, height, channels int) (*Image, error) {
	buf, err := pixel.Alloc(width, height, channels, pixel.Integer8)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrecondition, err)
	}
	img := m.NewImage()
	img.publish(buf)
	return img, nil
}

// onGraphicsThread runs fn on the graphics thread and waits for it.
func (m *Manager) onGraphicsThread(fn func()) error {
	if m.thread == nil {
		fn()
		return nil
	}
	return m.thread.Do(fn)
}

// PreloadConfig configures Preload.
type PreloadConfig struct {
	OnProgress worker.ProgressFunc
	Workers    int
	Format     pixel.Format
}

// Preload decodes project images in parallel and returns an image holding
// the data of each one that succeeded, keyed by name. Results carry one
// entry per name, including names that could not be resolved.
func (m *Manager) Preload(ctx context.Context, names []string, cfg PreloadConfig) (map[string]*Image, []worker.Result) {
	var (
		tasks   = make([]worker.Task, 0, len(names))
		results = make([]worker.Result, 0, len(names))
	)
	for _, name := range names {
		path, err := m.resolver.ResolveProject(name)
		if err != nil {
			results = append(results, worker.Result{
				Task: worker.Task{Name: name},
				Err:  fmt.Errorf("%w: %w", ErrResolution, err),
			})
			continue
		}
		tasks = append(tasks, worker.Task{
			Name:    name,
			Path:    path,
			Options: codec.Options{Format: formatFor(path, cfg.Format)},
		})
	}

	start := time.Now()
	pool := worker.New(worker.Config{
		Workers:    cfg.Workers,
		Decoder:    m.decoder,
		OnProgress: cfg.OnProgress,
	})

	images := make(map[string]*Image, len(tasks))
	for _, r := range pool.Run(ctx, tasks) {
		if r.Err != nil {
			if !errors.Is(r.Err, context.Canceled) && !errors.Is(r.Err, context.DeadlineExceeded) {
				r.Err = fmt.Errorf("%w: %w", ErrDecode, r.Err)
			}
			results = append(results, r)
			continue
		}
		img := m.NewImage()
		img.publish(r.Buffer)
		images[r.Task.Name] = img
		results = append(results, r)
	}

	m.logger.Info("preload finished",
		"requested", len(names),
		"loaded", len(images),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return images, results
}

// formatFor keeps Radiance files in floating point and decodes everything
// else as requested.
func formatFor(path string, requested pixel.Format) pixel.Format {
	if codec.IsHDRFile(path) {
		return pixel.FloatHDR
	}
	return requested
}
