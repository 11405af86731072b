package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/muraty261/GlistEngine/internal/codec"
)

// DefaultMaxDownloadBytes caps a single image download.
const DefaultMaxDownloadBytes = 64 << 20

// Download describes a fetched image on local disk.
type Download struct {
	Path   string // Local file
	URL    string // Source URL, without query when parameters were cut
	Ext    string
	Size   int64
	Cached bool // Served from the download index without a request
}

// Downloader fetches images over HTTP into a local directory, naming each
// file "<n>.<ext>" from a shared Counter.
type Downloader struct {
	Client   *http.Client
	Index    *Index // optional
	Counter  *Counter
	Logger   *slog.Logger
	Dir      string
	MaxBytes int64
}

// CutURLParameters strips the query string and fragment from rawURL.
func CutURLParameters(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

// Fetch downloads rawURL. With cutParams the stored URL drops its query;
// the request itself is always made with rawURL as given. The index is
// keyed on rawURL, so URLs that differ only in their query are fetched
// separately.
func (d *Downloader) Fetch(ctx context.Context, rawURL string, cutParams bool) (Download, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Download{}, fmt.Errorf("%w: invalid url %q", ErrUnreachable, rawURL)
	}

	stored := rawURL
	if cutParams {
		stored = CutURLParameters(rawURL)
	}
	log := d.log().With("url", stored)

	if d.Index != nil {
		if e, ok, err := d.Index.Lookup(rawURL); err != nil {
			log.Warn("download index lookup failed", "error", err)
		} else if ok {
			if _, statErr := os.Stat(e.File); statErr == nil {
				log.Debug("reusing downloaded image", "path", e.File)
				return Download{Path: e.File, URL: stored, Ext: e.Ext, Size: e.Size, Cached: true}, nil
			}
		}
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Download{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	resp, err := d.client().Do(req)
	if err != nil {
		return Download{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Download{}, fmt.Errorf("%w: %s returned %s", ErrUnreachable, stored, resp.Status)
	}

	limit := d.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxDownloadBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return Download{}, fmt.Errorf("%w: failed to read body: %v", ErrUnreachable, err)
	}
	if int64(len(body)) > limit {
		return Download{}, fmt.Errorf("%w: %s exceeds %d bytes", ErrUnreachable, stored, limit)
	}

	ext := inferExt(u.Path, body)
	file, err := d.write(ext, body)
	if err != nil {
		return Download{}, err
	}

	dl := Download{Path: file, URL: stored, Ext: ext, Size: int64(len(body))}
	log.Info("downloaded image",
		"path", file,
		"size_bytes", dl.Size,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if d.Index != nil {
		if err := d.Index.Record(IndexEntry{URL: rawURL, File: file, Ext: ext, Size: dl.Size}); err != nil {
			log.Warn("failed to record download", "error", err)
		}
	}
	return dl, nil
}

// inferExt picks the extension from the URL path, then from the content,
// defaulting to DefaultImageType.
func inferExt(urlPath string, body []byte) string {
	if ext := strings.ToLower(strings.TrimPrefix(path.Ext(urlPath), ".")); codec.IsImageExt(ext) {
		return ext
	}
	if ext := codec.Sniff(body); ext != "" {
		return ext
	}
	return DefaultImageType
}

func (d *Downloader) write(ext string, body []byte) (string, error) {
	dir := d.Dir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "glistimage-downloads")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download dir: %w", err)
	}

	counter := d.Counter
	if counter == nil {
		counter = DefaultCounter
	}
	final := filepath.Join(dir, counter.GenerateDownloadedImagePath(ext))

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name()) // nolint:errcheck // best effort cleanup
		return "", fmt.Errorf("failed to write download: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name()) // nolint:errcheck // best effort cleanup
		return "", fmt.Errorf("failed to write download: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name()) // nolint:errcheck // best effort cleanup
		return "", fmt.Errorf("failed to move download into place: %w", err)
	}
	return final, nil
}

func (d *Downloader) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (d *Downloader) log() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// IsUnreachable reports whether err came from a failed download.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}
