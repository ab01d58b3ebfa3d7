package paths

import (
	"path/filepath"
	"testing"
)

// ///////////////////////////////////////////////
// DataDir Path Construction
// ///////////////////////////////////////////////

func TestDataDirPaths(t *testing.T) {
	d := DataDir{Root: "/home/user/.modemflash"}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"config", d.Config(), filepath.Join(d.Root, "config.toml")},
		{"log", d.Log(), filepath.Join(d.Root, "modemflash.log")},
		{"firmware", d.Firmware(), filepath.Join(d.Root, "firmware")},
		{"manifest_cache", d.ManifestCache(), filepath.Join(d.Root, "manifest-cache.json")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Device Lock Names
// ///////////////////////////////////////////////

func TestLockFileForDevice(t *testing.T) {
	tests := []struct {
		name   string
		device string
		want   string
	}{
		{"cdc_wdm", "/dev/cdc-wdm0", "cdc-wdm0.lock"},
		{"nested", "/dev/usb/cdc-wdm1", "usb-cdc-wdm1.lock"},
		{"bare_name", "cdc-wdm0", "cdc-wdm0.lock"},
		{"empty", "", "device.lock"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LockFileForDevice(tt.device); got != tt.want {
				t.Errorf("LockFileForDevice(%q) = %q, want %q", tt.device, got, tt.want)
			}
		})
	}
}

func TestLockForDevice(t *testing.T) {
	d := DataDir{Root: "/data"}
	want := filepath.Join("/data", "cdc-wdm0.lock")
	if got := d.LockForDevice("/dev/cdc-wdm0"); got != want {
		t.Errorf("LockForDevice = %q, want %q", got, want)
	}
}
