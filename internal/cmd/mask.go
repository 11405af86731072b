package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/muraty261/GlistEngine/internal/codec"
	"github.com/muraty261/GlistEngine/internal/mask"
	"github.com/muraty261/GlistEngine/internal/pixel"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var maskCmd = &cobra.Command{
	Use:   "mask <image> <mask>",
	Short: "Apply an alpha mask to an image texture",
	Long: `Load an image, upload it, and multiply a mask into the texture's alpha.

The mask is reduced to one channel (alpha, or lightness for opaque masks) and
scaled to the texture size. It can be feathered, thresholded, inverted and
roughened with Perlin noise before it is applied. The masked texture is
written to --out under the asset root.`,
	Args: cobra.ExactArgs(2),
	RunE: runMask,
}

func init() {
	rootCmd.AddCommand(maskCmd)

	maskCmd.Flags().String("out", "masked.png", "Output file name under the asset root")
	maskCmd.Flags().Float64("feather", 0, "Gaussian blur sigma applied to the mask")
	maskCmd.Flags().Int("threshold", -1, "Binarize the mask at this level (0-255, -1 disables)")
	maskCmd.Flags().Bool("invert", false, "Invert the mask")
	maskCmd.Flags().Float64("noise", 0, "Perlin noise strength (0..1) applied to the mask")
	maskCmd.Flags().Float64("noise-scale", 30, "Perlin noise scale in pixels")
	maskCmd.Flags().Int64("seed", 1337, "Deterministic seed for mask noise")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"mask.out", "out"},
		{"mask.feather", "feather"},
		{"mask.threshold", "threshold"},
		{"mask.invert", "invert"},
		{"mask.noise", "noise"},
		{"mask.noise_scale", "noise-scale"},
		{"mask.seed", "seed"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, maskCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

// maskOptions selects the edits applied to a mask before it is used.
type maskOptions struct {
	Feather    float64
	Threshold  int
	Invert     bool
	Noise      float64
	NoiseScale float64
	Seed       int64
}

func maskOptionsFromConfig() maskOptions {
	return maskOptions{
		Feather:    viper.GetFloat64("mask.feather"),
		Threshold:  viper.GetInt("mask.threshold"),
		Invert:     viper.GetBool("mask.invert"),
		Noise:      viper.GetFloat64("mask.noise"),
		NoiseScale: viper.GetFloat64("mask.noise_scale"),
		Seed:       viper.GetInt64("mask.seed"),
	}
}

func (o maskOptions) any() bool {
	return o.Feather > 0 || o.Threshold >= 0 || o.Invert || o.Noise > 0
}

// processMask applies noise, feathering, thresholding and inversion, in
// that order.
func processMask(m *pixel.Buffer, o maskOptions) (*pixel.Buffer, error) {
	var err error
	if o.Noise > 0 {
		noise, nerr := mask.PerlinNoise(m.Width(), m.Height(), o.NoiseScale, o.Seed)
		if nerr != nil {
			return nil, nerr
		}
		if m, err = mask.ApplyNoise(m, noise, o.Noise); err != nil {
			return nil, err
		}
	}
	if o.Feather > 0 {
		if m, err = mask.Feather(m, float32(o.Feather)); err != nil {
			return nil, err
		}
	}
	if o.Threshold >= 0 {
		if o.Threshold > 255 {
			return nil, fmt.Errorf("threshold must be within [0,255], got %d", o.Threshold)
		}
		if m, err = mask.Threshold(m, uint8(o.Threshold)); err != nil {
			return nil, err
		}
	}
	if o.Invert {
		if m, err = mask.Invert(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func runMask(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	target, maskTarget := args[0], args[1]
	opts := maskOptionsFromConfig()

	outPath, err := e.manager.Resolver().OutputPath(viper.GetString("mask.out"))
	if err != nil {
		return err
	}

	img := e.manager.NewImage()
	if _, err := e.load(img, target); err != nil {
		return err
	}

	maskPath := maskTarget
	if isFilePath(maskTarget) {
		if maskPath, err = filepath.Abs(maskTarget); err != nil {
			return err
		}
	}
	if opts.any() {
		edited, cleanup, err := editMask(e, maskPath, opts)
		if err != nil {
			return err
		}
		defer cleanup()
		maskPath = edited
	}

	id, err := img.LoadMaskImage(maskPath)
	if err != nil {
		return err
	}

	tex, ok := e.device.Texture(id)
	if !ok {
		return fmt.Errorf("texture %d vanished after masking", uint64(id))
	}
	if err := codec.SaveFile(outPath, tex.Pixels); err != nil {
		return err
	}

	logger.Info("Mask applied",
		"image", target,
		"mask", maskTarget,
		"texture", uint64(id),
		"output", outPath,
	)
	return nil
}

// editMask decodes the mask at path, applies opts and writes the result to
// a temporary PNG. The returned cleanup removes it.
func editMask(e *env, path string, opts maskOptions) (string, func(), error) {
	resolver := e.manager.Resolver()
	resolve := resolver.ResolveProject
	if filepath.IsAbs(path) {
		resolve = resolver.ResolvePath
	}
	resolved, err := resolve(path)
	if err != nil {
		return "", nil, err
	}

	m, err := codec.NewDecoder().DecodeFile(resolved, codec.Options{Mask: true})
	if err != nil {
		return "", nil, err
	}
	if m, err = processMask(m, opts); err != nil {
		return "", nil, err
	}

	dir, err := os.MkdirTemp("", "glistimage-mask-")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	edited := filepath.Join(dir, "mask.png")
	if err := codec.SaveFile(edited, m); err != nil {
		cleanup()
		return "", nil, err
	}
	logger.Debug("Mask edited", "source", resolved, "edited", edited)
	return edited, cleanup, nil
}
