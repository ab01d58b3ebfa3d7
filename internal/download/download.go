// Package download fetches firmware images and firmware manifests over
// HTTP(S).
//
// Image downloads stream straight to disk through the atomicfile package so
// an interrupted transfer never leaves a torn file in the firmware cache.
// Manifest fetches use a primary-then-cache double fallback: if the remote
// endpoint is unreachable, the last successfully fetched manifest is used
// and the caller is told so via a non-nil error alongside valid data.
package download

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"tools.zach/dev/modemflash/internal/atomicfile"
)

// maxImageSize caps a single firmware download (256 MB). Modem firmware
// rarely exceeds 100 MB; anything larger is a server error or a decoy.
const maxImageSize = 256 << 20

// ///////////////////////////////////////////////
// Downloader
// ///////////////////////////////////////////////

// Downloader performs HTTP fetches with retries.
type Downloader struct {
	// client retries transient failures (connection resets, 5xx).
	client *retryablehttp.Client
}

// New creates a Downloader with the given per-request timeout.
func New(timeout time.Duration) *Downloader {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.HTTPClient.Timeout = timeout
	client.Logger = nil // suppress retryablehttp's default logging
	return &Downloader{client: client}
}

// FetchImage downloads url into destDir and returns the written file path.
// The file name is taken from the URL path. The transfer streams through an
// atomic write, so destDir never holds a partial image.
func (d *Downloader) FetchImage(rawURL, destDir string) (string, error) {
	name, err := imageName(rawURL)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create firmware dir: %w", err)
	}

	resp, err := d.client.Get(rawURL)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("GET %s: status %d", rawURL, resp.StatusCode)
	}

	dest := filepath.Join(destDir, name)
	n, err := atomicfile.WriteReader(dest, io.LimitReader(resp.Body, maxImageSize+1), 0o644)
	if err != nil {
		return "", fmt.Errorf("store %s: %w", name, err)
	}
	if n > maxImageSize {
		os.Remove(dest)
		return "", fmt.Errorf("%s: image exceeds %d bytes", name, int64(maxImageSize))
	}
	return dest, nil
}

// imageName extracts the base file name from a download URL.
func imageName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("bad image URL %q: %w", rawURL, err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("image URL %q has no file name", rawURL)
	}
	return name, nil
}

// ///////////////////////////////////////////////
// Checksums
// ///////////////////////////////////////////////

// VerifySHA256 checks the file at path against the expected hex digest.
// An empty digest skips verification (manifest entries may omit it).
func VerifySHA256(path, digest string) error {
	if digest == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open for verify: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("hash %s: %w", filepath.Base(path), err)
	}
	got := hex.EncodeToString(h.Sum(nil))
	if got != digest {
		return fmt.Errorf("%s: checksum mismatch: got %s, want %s", filepath.Base(path), got, digest)
	}
	return nil
}
