// Package source maps load requests (absolute paths, project asset names and
// URLs) to local files the decoder can read.
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrNotFound is returned when a path does not name a readable file.
	ErrNotFound = errors.New("source: image not found")

	// ErrUnreachable is returned when a URL cannot be fetched.
	ErrUnreachable = errors.New("source: url unreachable")
)

// ScalingMode selects which asset folder project-relative names resolve into.
type ScalingMode int

const (
	ScalingNone ScalingMode = iota
	ScalingAuto
	ScalingMipmap
)

// String returns the config spelling of the mode.
func (m ScalingMode) String() string {
	switch m {
	case ScalingNone:
		return "none"
	case ScalingAuto:
		return "auto"
	case ScalingMipmap:
		return "mipmap"
	default:
		return fmt.Sprintf("ScalingMode(%d)", int(m))
	}
}

// ParseScalingMode parses "none", "auto" or "mipmap".
func ParseScalingMode(s string) (ScalingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ScalingNone, nil
	case "auto":
		return ScalingAuto, nil
	case "mipmap":
		return ScalingMipmap, nil
	}
	return ScalingNone, fmt.Errorf("invalid scaling mode %q: must be none, auto or mipmap", s)
}

// Resolver resolves paths against the project asset root.
type Resolver struct {
	// AssetRoot is the project's assets directory (e.g. ./assets).
	AssetRoot string
	// Scaling selects images/ or mipmaps/<Resolution>/ for project names.
	Scaling ScalingMode
	// Resolution names the device resolution folder used by ScalingMipmap.
	Resolution string
}

// ImagesDir returns the folder project-relative image names resolve into.
func (r *Resolver) ImagesDir() string {
	if r.Scaling == ScalingMipmap {
		return filepath.Join(r.AssetRoot, "mipmaps", r.Resolution)
	}
	return filepath.Join(r.AssetRoot, "images")
}

// ResolvePath checks that path names a regular file. Paths are used as given,
// so lookups are as case-sensitive as the filesystem.
func (r *Resolver) ResolvePath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
	}
	return path, nil
}

// ResolveProject resolves an image name under ImagesDir.
func (r *Resolver) ResolveProject(name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: %q is not a project image name", ErrNotFound, name)
	}
	return r.ResolvePath(filepath.Join(r.ImagesDir(), name))
}

// OutputPath returns where a saved image named fileName is written.
func (r *Resolver) OutputPath(fileName string) (string, error) {
	if fileName == "" || filepath.IsAbs(fileName) || !filepath.IsLocal(fileName) {
		return "", fmt.Errorf("invalid output file name %q", fileName)
	}
	return filepath.Join(r.AssetRoot, fileName), nil
}
