package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/muraty261/GlistEngine/internal/bitmap"
	"github.com/muraty261/GlistEngine/internal/gpu"
	"github.com/muraty261/GlistEngine/internal/loader"
	"github.com/muraty261/GlistEngine/internal/source"
	"github.com/spf13/viper"
)

// env bundles the collaborators a command needs: a graphics thread with
// its device, and a manager wired to the configured resolver and
// downloader.
type env struct {
	manager *bitmap.Manager
	device  *gpu.MemoryDevice
	thread  *gpu.Thread
	index   *source.Index
}

func resolverFromConfig() (*source.Resolver, error) {
	scaling, err := source.ParseScalingMode(viper.GetString("scaling"))
	if err != nil {
		return nil, err
	}
	resolution := viper.GetString("resolution")
	if scaling == source.ScalingMipmap && resolution == "" {
		return nil, fmt.Errorf("mipmap scaling requires --resolution")
	}
	return &source.Resolver{
		AssetRoot:  viper.GetString("asset_root"),
		Scaling:    scaling,
		Resolution: resolution,
	}, nil
}

func newEnv() (*env, error) {
	if logger == nil {
		initLogging()
	}

	resolver, err := resolverFromConfig()
	if err != nil {
		return nil, err
	}

	e := &env{}
	if path := viper.GetString("download.index"); path != "" {
		e.index, err = source.OpenIndex(path)
		if err != nil {
			return nil, err
		}
	}

	downloader := &source.Downloader{
		Client:  &http.Client{Timeout: 60 * time.Second},
		Index:   e.index,
		Counter: source.DefaultCounter,
		Logger:  logger,
		Dir:     viper.GetString("download.dir"),
	}

	e.thread = gpu.NewThread(logger)
	e.device = gpu.NewMemoryDevice(e.thread, gpu.MemoryConfig{
		Logger:   logger,
		MaxBytes: viper.GetInt64("gpu.texture_budget"),
	})

	e.manager, err = bitmap.NewManager(bitmap.Config{
		Device:   e.device,
		Thread:   e.thread,
		Resolver: resolver,
		Fetcher:  downloader,
		Counter:  source.DefaultCounter,
		Logger:   logger,
		Loader: loader.Config{
			Workers:   viper.GetInt("loader.workers"),
			QueueSize: viper.GetInt("loader.queue_size"),
			Logger:    logger,
		},
	})
	if err != nil {
		e.thread.Stop()
		if e.index != nil {
			_ = e.index.Close()
		}
		return nil, err
	}
	return e, nil
}

// Close stops the loader and the graphics thread and closes the index.
func (e *env) Close() {
	e.manager.Close()
	e.thread.Stop()
	if e.index != nil {
		if err := e.index.Close(); err != nil {
			logger.Warn("Failed to close download index", "error", err)
		}
	}
}

// load reads target into img. Absolute or ./-prefixed paths are loaded as
// files, anything else as a project image name.
func (e *env) load(img *bitmap.Image, target string) (gpu.TextureID, error) {
	if isFilePath(target) {
		return img.Load(target)
	}
	return img.LoadImage(target)
}
