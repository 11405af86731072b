package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/muraty261/GlistEngine/internal/bitmap"
	"github.com/muraty261/GlistEngine/internal/gpu"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var loadCmd = &cobra.Command{
	Use:   "load <path|name>...",
	Short: "Load images and upload them to textures",
	Long: `Load one or more images and upload each to a texture.

Absolute paths and paths starting with ./ or ../ are read as files; anything
else is resolved as a project image name under the asset root.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)

	loadCmd.Flags().Bool("async", false, "Decode on the loader queue and upload afterwards")
	loadCmd.Flags().Bool("status", false, "Print the loader queue status as JSON when done")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"load.async", "async"},
		{"load.status", "status"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, loadCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

// isFilePath reports whether target names a file rather than a project image.
func isFilePath(target string) bool {
	return filepath.IsAbs(target) ||
		strings.HasPrefix(target, "./") ||
		strings.HasPrefix(target, "../")
}

func runLoad(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	async := viper.GetBool("load.async")
	out := cmd.OutOrStdout()

	var failed int
	for _, target := range args {
		img := e.manager.NewImage()
		if async {
			err = loadAsync(img, target)
		} else {
			_, err = e.load(img, target)
		}
		if err != nil {
			failed++
			logger.Error("Load failed", "target", target, "error", err)
			continue
		}
		printImage(out, target, img)
	}

	if viper.GetBool("load.status") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(e.manager.QueueStatus()); err != nil {
			return err
		}
	}

	logger.Info("Load complete", "requested", len(args), "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d images failed to load", failed, len(args))
	}
	return nil
}

// loadAsync decodes target on the queue, then uploads the result.
func loadAsync(img *bitmap.Image, target string) error {
	var done <-chan error
	if isFilePath(target) {
		done = img.LoadData(target)
	} else {
		done = img.LoadImageData(target)
	}
	if err := <-done; err != nil {
		return err
	}
	_, err := img.UseData()
	return err
}

func printImage(w io.Writer, target string, img *bitmap.Image) {
	tex := img.Texture()
	texture := "none"
	if tex != gpu.InvalidTexture {
		texture = fmt.Sprintf("%d", uint64(tex))
	}
	fmt.Fprintf(w, "%s: %dx%d, %d channels, %s, texture %s, version %d\n",
		target, img.Width(), img.Height(), img.Components(), img.Format(), texture, img.DataVersion())
}
