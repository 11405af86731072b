package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var saveCmd = &cobra.Command{
	Use:   "save <path|name> <output>",
	Short: "Re-encode an image under the asset root",
	Long: `Load an image and write its pixel data to <output> under the asset root.

The output format follows the file extension (png, jpg, bmp, tiff, gif, hdr).
With --no-upload the image is decoded on the loader queue and never given
a texture.`,
	Args: cobra.ExactArgs(2),
	RunE: runSave,
}

func init() {
	rootCmd.AddCommand(saveCmd)

	saveCmd.Flags().Bool("no-upload", false, "Decode only; skip the texture upload")

	if err := viper.BindPFlag("save.no_upload", saveCmd.Flags().Lookup("no-upload")); err != nil {
		panic(fmt.Sprintf("failed to bind flag: %v", err))
	}
}

func runSave(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	target, output := args[0], args[1]
	img := e.manager.NewImage()

	if viper.GetBool("save.no_upload") {
		var done <-chan error
		if isFilePath(target) {
			done = img.LoadData(target)
		} else {
			done = img.LoadImageData(target)
		}
		err = <-done
	} else {
		_, err = e.load(img, target)
	}
	if err != nil {
		return err
	}

	if err := img.SaveImage(output); err != nil {
		return err
	}

	logger.Info("Image saved",
		"source", target,
		"output", output,
		"width", img.Width(),
		"height", img.Height(),
		"channels", img.Components(),
	)
	return nil
}
