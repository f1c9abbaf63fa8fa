package deliver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// NativeDownloader is the local filesystem download subsystem: it fetches
// the asset over HTTP and writes it under a base directory. The relative
// destination path comes from the namer; a path that escapes the base or
// is otherwise structurally unusable is rejected with ErrStructuralPath so
// the caller can retry with a flattened name.
type NativeDownloader struct {
	base       string
	httpClient *http.Client
	log        *slog.Logger
}

// NewNativeDownloader creates a downloader rooted at base.
func NewNativeDownloader(base string, log *slog.Logger) *NativeDownloader {
	if log == nil {
		log = slog.Default()
	}
	return &NativeDownloader{
		base:       base,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		log:        log.With("component", "downloader"),
	}
}

// Submit downloads url to path (relative, slash-separated) under the base
// directory and returns the absolute destination as the handle.
func (d *NativeDownloader) Submit(ctx context.Context, url, path string) (string, error) {
	dest, err := d.destination(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create destination dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch asset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch asset: unexpected status %d", resp.StatusCode)
	}

	// Write through a partial file so an interrupted download never leaves
	// a truncated asset at the final name.
	part := dest + ".part"
	f, err := os.Create(part)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(part)
		return "", fmt.Errorf("write asset: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(part)
		return "", fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(part, dest); err != nil {
		os.Remove(part)
		return "", fmt.Errorf("finalize file: %w", err)
	}

	d.log.Info("asset saved", "url", url, "dest", dest)
	return dest, nil
}

// destination validates the relative path and anchors it under base.
func (d *NativeDownloader) destination(path string) (string, error) {
	if path == "" {
		return "", ErrStructuralPath
	}
	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == "." || filepath.IsAbs(clean) ||
		clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrStructuralPath
	}
	return filepath.Join(d.base, clean), nil
}
