package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>...",
	Short: "Download images and upload them to textures",
	Long: `Download one or more images over HTTP, decode them and upload each to a texture.

Downloaded files are named <n>.<ext> in the download directory. With
--download-index, URLs that were fetched before are served from disk.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().Bool("cut-params", false, "Record URLs without their query string")
	fetchCmd.Flags().String("save", "", "Also save each image under the asset root with this extension (e.g. png)")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"fetch.cut_params", "cut-params"},
		{"fetch.save", "save"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, fetchCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runFetch(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cut := viper.GetBool("fetch.cut_params")
	saveExt := viper.GetString("fetch.save")
	out := cmd.OutOrStdout()

	var failed int
	for _, url := range args {
		img := e.manager.NewImage()
		if _, err := img.LoadImageFromURL(ctx, url, cut); err != nil {
			failed++
			logger.Error("Fetch failed", "url", url, "error", err)
			continue
		}
		printImage(out, img.ImageURL(), img)

		if saveExt != "" {
			name := e.manager.GenerateDownloadedImagePath(saveExt)
			if err := img.SaveImage(name); err != nil {
				failed++
				logger.Error("Save failed", "url", url, "error", err)
			}
		}
	}

	logger.Info("Fetch complete", "requested", len(args), "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(args))
	}
	return nil
}
