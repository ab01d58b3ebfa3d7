package download

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"tools.zach/dev/modemflash/internal/atomicfile"
	"tools.zach/dev/modemflash/internal/paths"
)

// maxManifestBytes caps a manifest response (10 MiB).
const maxManifestBytes = 10 << 20

// ///////////////////////////////////////////////
// Manifest
// ///////////////////////////////////////////////

// Manifest maps modem model names to their published firmware images.
type Manifest struct {
	Models map[string]Release `json:"models"`
}

// Release lists the image files making up one firmware release.
type Release struct {
	Version string     `json:"version"`
	Images  []ImageRef `json:"images"`
}

// ImageRef points at one downloadable firmware file.
type ImageRef struct {
	URL    string `json:"url"`
	SHA256 string `json:"sha256,omitempty"`
}

// ImagesFor returns the image list for a modem model.
func (m *Manifest) ImagesFor(model string) (Release, error) {
	rel, ok := m.Models[model]
	if !ok {
		return Release{}, fmt.Errorf("manifest has no entry for model %q", model)
	}
	if len(rel.Images) == 0 {
		return Release{}, fmt.Errorf("manifest entry for %q lists no images", model)
	}
	return rel, nil
}

// ///////////////////////////////////////////////
// Fetch With Fallback
// ///////////////////////////////////////////////

// FetchManifest retrieves the firmware manifest with a double fallback:
// primary URL, then the on-disk cache from the last successful fetch.
//
// Returns nil with an error when both sources fail. The returned error is
// non-nil when the data came from a cache fallback, alongside a valid
// manifest, so the caller can warn without aborting.
func (d *Downloader) FetchManifest(url, cacheDir string) (*Manifest, error) {
	m, err := d.fetchManifestURL(url)
	if err == nil {
		if len(m.Models) == 0 {
			return nil, fmt.Errorf("manifest at %s lists no models", url)
		}
		if cacheErr := writeManifestCache(cacheDir, m); cacheErr != nil {
			slog.Warn("failed to write manifest cache", "error", cacheErr)
		}
		return m, nil
	}
	slog.Warn("failed to fetch manifest from primary source, trying cache", "error", err)

	m, cacheErr := readManifestCache(cacheDir)
	if cacheErr == nil {
		return m, fmt.Errorf("using cached manifest: primary fetch failed: %w", err)
	}
	slog.Warn("no manifest cache available", "error", cacheErr)

	return nil, fmt.Errorf("all manifest sources failed: primary: %w; cache: %w", err, cacheErr)
}

// fetchManifestURL downloads and parses the manifest from url.
func (d *Downloader) fetchManifestURL(url string) (*Manifest, error) {
	resp, err := d.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, maxManifestBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("reading manifest from %s: %w", url, err)
	}
	if int64(len(body)) > maxManifestBytes {
		return nil, fmt.Errorf("manifest from %s exceeds %d bytes", url, int64(maxManifestBytes))
	}
	return parseManifest(body)
}

// parseManifest decodes the manifest JSON.
func parseManifest(body []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// ///////////////////////////////////////////////
// Cache
// ///////////////////////////////////////////////

// writeManifestCache persists the manifest atomically under cacheDir.
func writeManifestCache(cacheDir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest cache: %w", err)
	}
	return atomicfile.Write(filepath.Join(cacheDir, paths.ManifestCacheFile), data, 0o644)
}

// readManifestCache loads the manifest from the cache file under cacheDir.
func readManifestCache(cacheDir string) (*Manifest, error) {
	body, err := os.ReadFile(filepath.Join(cacheDir, paths.ManifestCacheFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest cache: %w", err)
	}
	m, err := parseManifest(body)
	if err != nil {
		return nil, err
	}
	if len(m.Models) == 0 {
		return nil, fmt.Errorf("manifest cache lists no models")
	}
	return m, nil
}
