// Package paths centralizes file and directory names used across the project.
// All data directory file names are defined here as the single source of truth.
package paths

import (
	"path/filepath"
	"strings"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	ConfigFile        = "config.toml"
	LogFile           = "modemflash.log"
	FirmwareDir       = "firmware"
	ManifestCacheFile = "manifest-cache.json"
)

// Tool identity.
const (
	BinaryName = "modemflash"
	DataDirRel = ".modemflash" // relative to $HOME
)

// Remote-fetched file paths (relative to repo root).
const (
	ReleaseManifest = ".release-manifest.json"
)

// LockFileForDevice returns the lock file name for a device path.
// For example, LockFileForDevice("/dev/cdc-wdm0") returns "cdc-wdm0.lock".
// Path separators are flattened so nested device paths stay valid file names.
func LockFileForDevice(device string) string {
	base := strings.Trim(device, string(filepath.Separator))
	base = strings.ReplaceAll(base, string(filepath.Separator), "-")
	base = strings.TrimPrefix(base, "dev-")
	if base == "" {
		base = "device"
	}
	return base + ".lock"
}

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// Config returns the full path to the config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// Log returns the full path to the log capture file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }

// Firmware returns the full path to the downloaded firmware directory.
func (d DataDir) Firmware() string { return filepath.Join(d.Root, FirmwareDir) }

// ManifestCache returns the full path to the firmware manifest cache file.
func (d DataDir) ManifestCache() string { return filepath.Join(d.Root, ManifestCacheFile) }

// LockForDevice returns the full path to the per-device lock file.
func (d DataDir) LockForDevice(device string) string {
	return filepath.Join(d.Root, LockFileForDevice(device))
}
