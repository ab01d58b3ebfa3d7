// Package update checks for newer releases of modemflash itself via the
// project's release manifest on GitHub.
//
// This concerns the tool, not modem firmware; firmware manifests live in
// the download package. Failures here are logged at debug level and never
// affect the exit status.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"tools.zach/dev/modemflash/internal/paths"
)

// Set at build time via:
//
//	-X tools.zach/dev/modemflash/internal/update.ldOwner=...
//	-X tools.zach/dev/modemflash/internal/update.ldRepo=...
var (
	ldOwner string
	ldRepo  string
)

var (
	repoOnce sync.Once
	rawBase  string
)

// githubRemoteRe extracts owner and repo from GitHub remote URLs, both
// HTTPS (github.com/) and SSH (github.com:) forms.
var githubRemoteRe = regexp.MustCompile(`github\.com[:/]([^/]+)/([^/.]+)`)

// manifestURL resolves the raw GitHub URL of the release manifest. Build
// time ldflags take precedence; a development build falls back to the
// local git remote origin. Empty when neither source is available.
func manifestURL() string {
	repoOnce.Do(func() {
		owner, repo := ldOwner, ldRepo
		if owner == "" || repo == "" {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			out, err := exec.CommandContext(ctx, "git", "remote", "get-url", "origin").Output()
			if err != nil {
				slog.Debug("release check: ldflags not set and git remote unavailable", "error", err)
				return
			}
			m := githubRemoteRe.FindStringSubmatch(string(out))
			if len(m) != 3 {
				return
			}
			owner, repo = m[1], m[2]
		}
		rawBase = "https://raw.githubusercontent.com/" + owner + "/" + repo + "/main/"
	})
	if rawBase == "" {
		return ""
	}
	return rawBase + paths.ReleaseManifest
}

// ///////////////////////////////////////////////
// Check
// ///////////////////////////////////////////////

// Check fetches the release manifest and logs when a newer version of the
// tool is available. Failures are silently ignored.
func Check(current string) {
	url := manifestURL()
	if url == "" {
		slog.Debug("skipping release check: no remote URL configured")
		return
	}
	latest, err := fetchLatest(url)
	if err != nil {
		slog.Debug("release check failed", "error", err)
		return
	}
	if latest == "" || latest == current {
		return
	}
	if semverLess(current, latest) {
		slog.Info("new modemflash release available", "current", current, "latest", latest)
	}
}

// fetchLatest downloads the release manifest and returns the version
// stored under the "." key, the latest stable release.
func fetchLatest(url string) (string, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var manifest map[string]string
	if err := json.Unmarshal(body, &manifest); err != nil {
		return "", fmt.Errorf("parsing manifest: %w", err)
	}
	return manifest["."], nil
}

// ///////////////////////////////////////////////
// Semver
// ///////////////////////////////////////////////

// semverLess reports whether a < b by numeric comparison of the three
// version parts. Non-semver strings are never less. A pre-release version
// is less than the same version without one ("0.1.0-dev" < "0.1.0").
func semverLess(a, b string) bool {
	pa, okA := parseSemver(a)
	pb, okB := parseSemver(b)
	if !okA || !okB {
		return false
	}
	for i := range 3 {
		if pa[i] != pb[i] {
			return pa[i] < pb[i]
		}
	}
	return hasPreRelease(a) && !hasPreRelease(b)
}

// hasPreRelease reports whether the version carries a pre-release suffix.
func hasPreRelease(s string) bool {
	return strings.Contains(strings.TrimPrefix(s, "v"), "-")
}

// parseSemver splits "v1.2.3" or "0.1.0-dev" into [major, minor, patch].
// Suffixes after "-" or "+" are stripped.
func parseSemver(s string) ([3]int, bool) {
	s = strings.TrimPrefix(s, "v")
	parts := strings.SplitN(s, ".", 3)
	if len(parts) != 3 {
		return [3]int{}, false
	}
	var out [3]int
	for i, p := range parts {
		if idx := strings.IndexAny(p, "-+"); idx >= 0 {
			p = p[:idx]
		}
		if p == "" {
			return [3]int{}, false
		}
		n := 0
		for _, c := range p {
			if c < '0' || c > '9' {
				return [3]int{}, false
			}
			n = n*10 + int(c-'0')
		}
		out[i] = n
	}
	return out, true
}
