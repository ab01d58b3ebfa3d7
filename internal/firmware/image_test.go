package firmware

import (
	"bytes"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"
)

// writeImage creates a firmware file of the given size under dir.
func writeImage(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	data := bytes.Repeat([]byte{0x5A}, size)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

// ///////////////////////////////////////////////
// Type Detection
// ///////////////////////////////////////////////

func TestDetectType(t *testing.T) {
	tests := []struct {
		name string
		path string
		want Type
	}{
		{"cwe", "SWI9X30C_02.24.05.06.cwe", TypeCWE},
		{"spk", "firmware.spk", TypeCWE},
		{"nvu", "carrier_pri.nvu", TypeNVU},
		{"uppercase", "IMAGE.CWE", TypeCWE},
		{"unknown", "readme.txt", TypeUnknown},
		{"no_ext", "firmware", TypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectType(tt.path); got != tt.want {
				t.Errorf("DetectType(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Load
// ///////////////////////////////////////////////

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeImage(t, dir, "fw.cwe", 1024)

	img, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.Type != TypeCWE {
		t.Errorf("type = %v, want cwe", img.Type)
	}
	if img.Size != 1024 {
		t.Errorf("size = %d, want 1024", img.Size)
	}
	if img.Name != "fw.cwe" {
		t.Errorf("name = %q", img.Name)
	}

	want := crc32.ChecksumIEEE(bytes.Repeat([]byte{0x5A}, 1024))
	if img.Checksum != want {
		t.Errorf("checksum = %08x, want %08x", img.Checksum, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.cwe")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadRejectsUnknownType(t *testing.T) {
	dir := t.TempDir()
	path := writeImage(t, dir, "notes.txt", 10)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown image type")
	}
}

func TestLoadRejectsTruncatedCWE(t *testing.T) {
	dir := t.TempDir()
	path := writeImage(t, dir, "tiny.cwe", cweHeaderSize-1)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for CWE smaller than its header")
	}
}

func TestLoadAcceptsSmallNVU(t *testing.T) {
	// NVU items have no fixed header and can be tiny.
	dir := t.TempDir()
	path := writeImage(t, dir, "pri.nvu", 16)

	if _, err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
}
