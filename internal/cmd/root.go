package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "glistimage",
	Short: "Load, mask and upload bitmap images",
	Long: `glistimage drives the engine's image pipeline from the command line.

It resolves images from project assets, local paths or URLs, decodes them
into pixel buffers, uploads them to textures on the graphics thread, and
writes the results back to disk.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("asset-root", "./assets", "Project assets directory")
	rootCmd.PersistentFlags().String("scaling", "none", "Asset scaling mode (none, auto, mipmap)")
	rootCmd.PersistentFlags().String("resolution", "", "Device resolution folder used by mipmap scaling")
	rootCmd.PersistentFlags().String("download-dir", "", "Directory for downloaded images (default: system temp)")
	rootCmd.PersistentFlags().String("download-index", "", "SQLite file remembering downloaded URLs (disabled when empty)")
	rootCmd.PersistentFlags().Int("loader-workers", 2, "Number of async load workers")
	rootCmd.PersistentFlags().Int("loader-queue-size", 64, "Maximum number of pending async loads")
	rootCmd.PersistentFlags().Int64("texture-budget", 0, "Texture memory budget in bytes (0 = unlimited)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose logging")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"asset_root", "asset-root"},
		{"scaling", "scaling"},
		{"resolution", "resolution"},
		{"download.dir", "download-dir"},
		{"download.index", "download-index"},
		{"loader.workers", "loader-workers"},
		{"loader.queue_size", "loader-queue-size"},
		{"gpu.texture_budget", "texture-budget"},
		{"verbose", "verbose"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, rootCmd.PersistentFlags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("GLISTIMAGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
