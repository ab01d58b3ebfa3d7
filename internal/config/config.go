// Package config provides configuration loading and defaults for modemflash.
//
// Configuration is loaded from a TOML file in the user's data directory.
// The package covers device defaults, firmware download settings, updater
// pacing, and log capture, with sensible defaults for every field. CLI
// flags override the loaded values.
package config

//go:generate go run ../../cmd/genconfig

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"tools.zach/dev/modemflash/internal/migrate"
	"tools.zach/dev/modemflash/internal/paths"
)

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Version is the config schema version used for migrations.
	Version int `toml:"version"`
	// Device holds modem device defaults.
	Device DeviceConfig `toml:"device"`
	// Download holds firmware download settings.
	Download DownloadConfig `toml:"download"`
	// Updater holds update pacing settings.
	Updater UpdaterConfig `toml:"updater"`
	// Log holds log capture settings.
	Log LogConfig `toml:"log"`
}

// DeviceConfig holds modem device defaults.
type DeviceConfig struct {
	// Path is the default QMI control device node, used when the -device
	// flag is not given (e.g. "/dev/cdc-wdm0").
	Path string `toml:"path,omitempty"`
	// OpenTimeoutSeconds bounds how long opening the control device may take.
	OpenTimeoutSeconds int `toml:"open_timeout_seconds"`
}

// DownloadConfig holds firmware download settings.
type DownloadConfig struct {
	// ManifestURL is the optional firmware manifest endpoint consulted by
	// the -download flag when given a bare model name instead of a URL.
	ManifestURL string `toml:"manifest_url,omitempty"`
	// TimeoutSeconds bounds each HTTP download request.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// UpdaterConfig holds update pacing settings.
type UpdaterConfig struct {
	// ChunkSizeKB is the size of each block streamed to the device.
	ChunkSizeKB int `toml:"chunk_size_kb"`
	// RebootWaitSeconds is how long to wait for the modem to re-enumerate
	// after the reset into download mode.
	RebootWaitSeconds int `toml:"reboot_wait_seconds"`
	// PollIntervalSeconds is the fallback polling interval while waiting
	// for the device node when inotify is unavailable.
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
}

// LogConfig holds log capture settings.
type LogConfig struct {
	// FileCapture enables the rotating capture file in the data directory.
	// The capture records everything, even during a -silent run.
	FileCapture bool `toml:"file_capture"`
	// MaxSizeMB is the maximum capture file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: migrate.Config.CurrentVersion,
		Device: DeviceConfig{
			OpenTimeoutSeconds: 15,
		},
		Download: DownloadConfig{
			TimeoutSeconds: 60,
		},
		Updater: UpdaterConfig{
			ChunkSizeKB:         512,
			RebootWaitSeconds:   120,
			PollIntervalSeconds: 2,
		},
		Log: LogConfig{
			FileCapture: true,
			MaxSizeMB:   10,
		},
	}
}

// ExampleConfig returns a Config suitable for generating config.default.toml.
// Identical to the defaults except the device path carries the most common
// node so the example reads naturally.
func ExampleConfig() *Config {
	cfg := DefaultConfig()
	cfg.Device.Path = "/dev/cdc-wdm0"
	return cfg
}

// ///////////////////////////////////////////////
// PeekVersion
// ///////////////////////////////////////////////

// PeekVersion reads just the version field from raw TOML bytes.
// Returns 1 if the version field is missing or zero.
func PeekVersion(data []byte) int {
	var v struct {
		Version int `toml:"version"`
	}
	if err := toml.Unmarshal(data, &v); err != nil {
		return 1
	}
	if v.Version == 0 {
		return 1
	}
	return v.Version
}

// ///////////////////////////////////////////////
// Loading
// ///////////////////////////////////////////////

// Load reads and parses the configuration file from dataDir/config.toml.
// If the file doesn't exist, returns DefaultConfig. Older schema versions
// are migrated in place, with a .bak copy of the original written first.
func Load(dataDir string) (*Config, error) {
	d := paths.DataDir{Root: dataDir}
	path := d.Config()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	version := PeekVersion(data)
	if migrate.Config.NeedsMigration(version) {
		if backupErr := os.WriteFile(path+".bak", data, 0o644); backupErr != nil {
			slog.Warn("failed to write config backup", "error", backupErr)
		}
		var migrateErr error
		data, _, migrateErr = migrate.Config.Run(data, version)
		if migrateErr != nil {
			return nil, fmt.Errorf("migrate config: %w", migrateErr)
		}
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Version = migrate.Config.CurrentVersion

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// Validate checks field ranges and formats. Called by Load after merging
// the file over the defaults.
func (c *Config) Validate() error {
	if c.Device.OpenTimeoutSeconds <= 0 {
		return fmt.Errorf("device.open_timeout_seconds must be positive, got %d", c.Device.OpenTimeoutSeconds)
	}
	if c.Download.TimeoutSeconds <= 0 {
		return fmt.Errorf("download.timeout_seconds must be positive, got %d", c.Download.TimeoutSeconds)
	}
	if url := c.Download.ManifestURL; url != "" &&
		!strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("download.manifest_url must be an http(s) URL, got %q", url)
	}
	if c.Updater.ChunkSizeKB < 1 || c.Updater.ChunkSizeKB > 4096 {
		return fmt.Errorf("updater.chunk_size_kb must be in 1..4096, got %d", c.Updater.ChunkSizeKB)
	}
	if c.Updater.RebootWaitSeconds <= 0 {
		return fmt.Errorf("updater.reboot_wait_seconds must be positive, got %d", c.Updater.RebootWaitSeconds)
	}
	if c.Updater.PollIntervalSeconds <= 0 {
		return fmt.Errorf("updater.poll_interval_seconds must be positive, got %d", c.Updater.PollIntervalSeconds)
	}
	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be positive, got %d", c.Log.MaxSizeMB)
	}
	return nil
}
