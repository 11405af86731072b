package cmd

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/muraty261/GlistEngine/internal/codec"
	"github.com/muraty261/GlistEngine/internal/pixel"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setConfig overrides viper keys for the duration of a test.
func setConfig(t *testing.T, kv map[string]any) {
	t.Helper()
	for k, v := range kv {
		old := viper.Get(k)
		viper.Set(k, v)
		t.Cleanup(func() { viper.Set(k, old) })
	}
}

// quiet replaces the package logger with one that discards output.
func quiet(t *testing.T) {
	t.Helper()
	old := logger
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	t.Cleanup(func() { logger = old })
}

// assetRoot creates an asset root with an images folder and points the
// config at it.
func assetRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "images"), 0o755))
	setConfig(t, map[string]any{
		"asset_root":     root,
		"scaling":        "none",
		"resolution":     "",
		"download.index": "",
		"download.dir":   filepath.Join(root, "downloads"),
	})
	return root
}

func writeImage(t *testing.T, path string, w, h, n int, fill byte) {
	t.Helper()
	px := bytes.Repeat([]byte{fill}, w*h*n)
	buf, err := pixel.New(w, h, n, px)
	require.NoError(t, err)
	require.NoError(t, codec.SaveFile(path, buf))
}

func TestIsFilePath(t *testing.T) {
	tests := []struct {
		target string
		want   bool
	}{
		{"/abs/a.png", true},
		{"./a.png", true},
		{"../a.png", true},
		{"a.png", false},
		{"sub/a.png", false},
	}

	for _, tt := range tests {
		if got := isFilePath(tt.target); got != tt.want {
			t.Errorf("isFilePath(%q) = %v, want %v", tt.target, got, tt.want)
		}
	}
}

func TestResolverFromConfig(t *testing.T) {
	root := assetRoot(t)

	r, err := resolverFromConfig()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "images"), r.ImagesDir())

	setConfig(t, map[string]any{"scaling": "mipmap"})
	_, err = resolverFromConfig()
	assert.Error(t, err, "mipmap scaling without a resolution")

	setConfig(t, map[string]any{"resolution": "1920x1080"})
	r, err = resolverFromConfig()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "mipmaps", "1920x1080"), r.ImagesDir())

	setConfig(t, map[string]any{"scaling": "stretch"})
	_, err = resolverFromConfig()
	assert.Error(t, err)
}

func TestProcessMask(t *testing.T) {
	m, err := pixel.New(4, 1, 1, []byte{0, 100, 200, 255})
	require.NoError(t, err)

	t.Run("threshold and invert", func(t *testing.T) {
		out, err := processMask(m, maskOptions{Threshold: 128, Invert: true})
		require.NoError(t, err)
		px, _ := out.Bytes()
		assert.Equal(t, []byte{255, 255, 0, 0}, px)
	})

	t.Run("no edits", func(t *testing.T) {
		opts := maskOptions{Threshold: -1}
		assert.False(t, opts.any())
		out, err := processMask(m, opts)
		require.NoError(t, err)
		assert.Same(t, m, out)
	})

	t.Run("noise keeps shape", func(t *testing.T) {
		out, err := processMask(m, maskOptions{Threshold: -1, Noise: 0.5, NoiseScale: 2, Seed: 7})
		require.NoError(t, err)
		assert.Equal(t, 4, out.Width())
		assert.Equal(t, 1, out.Channels())
	})

	t.Run("threshold out of range", func(t *testing.T) {
		_, err := processMask(m, maskOptions{Threshold: 300})
		assert.Error(t, err)
	})
}

func TestRunNoiseThenSave(t *testing.T) {
	quiet(t)
	root := assetRoot(t)
	setConfig(t, map[string]any{
		"noise.width":    16,
		"noise.height":   8,
		"noise.scale":    4.0,
		"noise.seed":     int64(1),
		"noise.feather":  1.0,
		"noise.base":     "",
		"noise.strength": 0.5,
		"save.no_upload": false,
	})

	require.NoError(t, runNoise(noiseCmd, []string{"noise.png"}))

	noisePath := filepath.Join(root, "noise.png")
	buf, err := codec.NewDecoder().DecodeFile(noisePath, codec.Options{})
	require.NoError(t, err)
	assert.Equal(t, 16, buf.Width())
	assert.Equal(t, 8, buf.Height())
	assert.Equal(t, 1, buf.Channels())

	require.NoError(t, runSave(saveCmd, []string{noisePath, "copy.jpg"}))
	_, err = os.Stat(filepath.Join(root, "copy.jpg"))
	assert.NoError(t, err)

	setConfig(t, map[string]any{"save.no_upload": true})
	require.NoError(t, runSave(saveCmd, []string{noisePath, "copy.bmp"}))
	_, err = os.Stat(filepath.Join(root, "copy.bmp"))
	assert.NoError(t, err)
}

func TestRunNoiseRejectsEscapingOutput(t *testing.T) {
	quiet(t)
	assetRoot(t)
	assert.Error(t, runNoise(noiseCmd, []string{"../outside.png"}))
}

func TestRunMask(t *testing.T) {
	quiet(t)
	root := assetRoot(t)
	setConfig(t, map[string]any{
		"mask.out":       "masked.png",
		"mask.feather":   0.0,
		"mask.threshold": -1,
		"mask.invert":    false,
		"mask.noise":     0.0,
	})

	writeImage(t, filepath.Join(root, "images", "photo.png"), 4, 4, 4, 200)
	maskPath := filepath.Join(root, "hole.png")
	writeImage(t, maskPath, 2, 2, 1, 0)

	require.NoError(t, runMask(maskCmd, []string{"photo.png", maskPath}))

	out, err := codec.NewDecoder().DecodeFile(filepath.Join(root, "masked.png"), codec.Options{})
	require.NoError(t, err)
	require.Equal(t, 4, out.Channels())
	px, err := out.Bytes()
	require.NoError(t, err)
	for i := 3; i < len(px); i += 4 {
		if px[i] != 0 {
			t.Fatalf("alpha at pixel %d = %d, want 0", i/4, px[i])
		}
	}
}

func TestRunMaskInvertedKeepsAlpha(t *testing.T) {
	quiet(t)
	root := assetRoot(t)
	setConfig(t, map[string]any{
		"mask.out":       "masked.png",
		"mask.feather":   0.0,
		"mask.threshold": -1,
		"mask.invert":    true,
		"mask.noise":     0.0,
	})

	writeImage(t, filepath.Join(root, "images", "photo.png"), 4, 4, 4, 200)
	writeImage(t, filepath.Join(root, "images", "hole.png"), 4, 4, 1, 0)

	require.NoError(t, runMask(maskCmd, []string{"photo.png", "hole.png"}))

	out, err := codec.NewDecoder().DecodeFile(filepath.Join(root, "masked.png"), codec.Options{})
	require.NoError(t, err)
	px, err := out.Bytes()
	require.NoError(t, err)
	assert.Equal(t, byte(200), px[3])
}

func TestRunLoad(t *testing.T) {
	quiet(t)
	root := assetRoot(t)
	setConfig(t, map[string]any{"load.async": false, "load.status": false})

	writeImage(t, filepath.Join(root, "images", "a.png"), 3, 2, 4, 10)

	var out bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&out)

	require.NoError(t, runLoad(c, []string{"a.png"}))
	assert.Contains(t, out.String(), "a.png: 3x2, 4 channels")
	assert.Contains(t, out.String(), "texture 1")

	out.Reset()
	err := runLoad(c, []string{"a.png", "missing.png"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
}

func TestRunLoadAsyncStatus(t *testing.T) {
	quiet(t)
	root := assetRoot(t)
	setConfig(t, map[string]any{"load.async": true, "load.status": true})

	writeImage(t, filepath.Join(root, "images", "a.png"), 2, 2, 3, 10)

	var out bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&out)

	require.NoError(t, runLoad(c, []string{"a.png"}))
	assert.Contains(t, out.String(), "2x2, 3 channels")
	assert.True(t, strings.Contains(out.String(), `"completed": 1`), out.String())
}

func TestRunPreload(t *testing.T) {
	quiet(t)
	root := assetRoot(t)
	setConfig(t, map[string]any{
		"preload.workers":        2,
		"preload.progress":       false,
		"preload.hdr":            false,
		"preload.upload":         true,
		"preload.allow_failures": false,
	})

	writeImage(t, filepath.Join(root, "images", "a.png"), 2, 2, 4, 10)
	writeImage(t, filepath.Join(root, "images", "b.png"), 3, 1, 1, 20)

	require.NoError(t, runPreload(preloadCmd, []string{"a.png", "b.png"}))

	err := runPreload(preloadCmd, []string{"a.png", "missing.png"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")

	setConfig(t, map[string]any{"preload.allow_failures": true})
	assert.NoError(t, runPreload(preloadCmd, []string{"a.png", "missing.png"}))
}
