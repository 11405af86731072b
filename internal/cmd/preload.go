package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/muraty261/GlistEngine/internal/bitmap"
	"github.com/muraty261/GlistEngine/internal/pixel"
	"github.com/muraty261/GlistEngine/internal/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var preloadCmd = &cobra.Command{
	Use:   "preload <name>...",
	Short: "Decode many project images in parallel",
	Long: `Decode project images in parallel and optionally upload them.

Names are resolved under the asset root's image folder (or the mipmap folder
for the configured resolution). Radiance .hdr files always stay floating point.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPreload,
}

func init() {
	rootCmd.AddCommand(preloadCmd)

	preloadCmd.Flags().IntP("workers", "w", 0, "Number of parallel decoders (default: number of CPUs)")
	preloadCmd.Flags().Bool("progress", true, "Show a progress bar")
	preloadCmd.Flags().Bool("hdr", false, "Decode every image as floating point")
	preloadCmd.Flags().Bool("upload", false, "Upload every decoded image to a texture")
	preloadCmd.Flags().Bool("allow-failures", false, "Exit successfully even if some images fail")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"preload.workers", "workers"},
		{"preload.progress", "progress"},
		{"preload.hdr", "hdr"},
		{"preload.upload", "upload"},
		{"preload.allow_failures", "allow-failures"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, preloadCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runPreload(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workers := viper.GetInt("preload.workers")
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	format := pixel.Integer8
	if viper.GetBool("preload.hdr") {
		format = pixel.FloatHDR
	}

	progress := worker.NewProgress(len(args), viper.GetBool("preload.progress"))
	images, results := e.manager.Preload(ctx, args, bitmap.PreloadConfig{
		Workers:    workers,
		Format:     format,
		OnProgress: progress.Callback(),
	})
	progress.Done()

	failed := summarizePreload(progress, results)

	if viper.GetBool("preload.upload") {
		for name, img := range images {
			if _, err := img.UseData(); err != nil {
				failed++
				logger.Error("Upload failed", "name", name, "error", err)
			}
		}
		logger.Info("Textures uploaded", "live", e.device.Live(), "bytes", e.device.UsedBytes())
	}

	logger.Info(progress.Summary())

	if failed > 0 && !viper.GetBool("preload.allow_failures") {
		return fmt.Errorf("%d of %d images failed", failed, len(args))
	}
	return nil
}

// summarizePreload logs failures, records every result on progress and
// returns the number of failed results.
func summarizePreload(progress *worker.Progress, results []worker.Result) int {
	var failed int
	for _, r := range results {
		progress.Record(r)
		if r.Err != nil {
			failed++
			logger.Error("Preload failed", "name", r.Task.Name, "error", r.Err)
			continue
		}
		logger.Debug("Preloaded",
			"name", r.Task.Name,
			"width", r.Buffer.Width(),
			"height", r.Buffer.Height(),
			"elapsed_ms", r.Elapsed.Milliseconds(),
		)
	}
	return failed
}
