package update

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// ///////////////////////////////////////////////
// Semver
// ///////////////////////////////////////////////

func TestParseSemver(t *testing.T) {
	tests := []struct {
		input string
		want  [3]int
		ok    bool
	}{
		{"1.2.3", [3]int{1, 2, 3}, true},
		{"v1.2.3", [3]int{1, 2, 3}, true},
		{"0.0.0-dev", [3]int{0, 0, 0}, true},
		{"1.0.0-beta+build123", [3]int{1, 0, 0}, true},
		{"10.20.30", [3]int{10, 20, 30}, true},

		{"", [3]int{}, false},
		{"1.2", [3]int{}, false},
		{"not.a.version", [3]int{}, false},
		{"1.2.x", [3]int{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := parseSemver(tt.input)
			if ok != tt.ok || got != tt.want {
				t.Errorf("parseSemver(%q) = %v, %v; want %v, %v", tt.input, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestSemverLess(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"patch_bump", "0.1.0", "0.1.1", true},
		{"minor_bump", "0.1.9", "0.2.0", true},
		{"major_bump", "1.9.9", "2.0.0", true},
		{"equal", "1.2.3", "1.2.3", false},
		{"greater", "1.2.4", "1.2.3", false},
		{"prerelease_less_than_release", "0.1.0-dev", "0.1.0", true},
		{"release_not_less_than_prerelease", "0.1.0", "0.1.0-dev", false},
		{"v_prefix", "v0.1.0", "v0.2.0", true},
		{"non_semver_never_less", "dev", "1.0.0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := semverLess(tt.a, tt.b); got != tt.want {
				t.Errorf("semverLess(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Manifest Fetch
// ///////////////////////////////////////////////

func TestFetchLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{".": "0.3.0", "beta": "0.4.0-rc.1"})
	}))
	defer srv.Close()

	got, err := fetchLatest(srv.URL)
	if err != nil {
		t.Fatalf("fetchLatest: %v", err)
	}
	if got != "0.3.0" {
		t.Errorf("latest = %q, want 0.3.0", got)
	}
}

func TestFetchLatestHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if _, err := fetchLatest(srv.URL); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestFetchLatestMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	if _, err := fetchLatest(srv.URL); err == nil {
		t.Fatal("expected error for malformed manifest")
	}
}
