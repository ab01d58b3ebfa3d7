package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config field.
// The genconfig tool uses [FieldDoc] values to annotate the generated config.default.toml.
type FieldDoc struct {
	// Comment is shown as a header comment above the field in the example config.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps TOML field paths (dot-separated, e.g. "updater.chunk_size_kb")
// to their [FieldDoc] entries. The genconfig tool uses this map to annotate the
// generated config.default.toml with inline comments and alternative examples.
var ConfigDocs = map[string]FieldDoc{
	// ── Root ──────────────────────────────────────────────────────
	"version": {
		Comment: "Config schema version. Do not edit.",
	},

	// ── Device ───────────────────────────────────────────────────
	"device.path": {
		Comment: "Default QMI control device. The -device flag overrides this.",
		Alternatives: []string{
			`path = "/dev/cdc-wdm1"`,
		},
	},
	"device.open_timeout_seconds": {
		Comment: "How long opening the control device may take before giving up.",
	},

	// ── Download ─────────────────────────────────────────────────
	"download.manifest_url": {
		Comment: "Firmware manifest endpoint used when -download is given a bare\nmodel name instead of a full image URL. Leave empty to disable.",
		Alternatives: []string{
			`manifest_url = "https://firmware.example.com/manifest.json"`,
		},
	},
	"download.timeout_seconds": {
		Comment: "Per-request HTTP timeout for firmware downloads.",
	},

	// ── Updater ──────────────────────────────────────────────────
	"updater.chunk_size_kb": {
		Comment: "Block size streamed to the device. Larger blocks flash faster but\nsome modems reject writes above 1024 KB.",
	},
	"updater.reboot_wait_seconds": {
		Comment: "How long to wait for the modem to re-enumerate after the reset\ninto download mode.",
	},
	"updater.poll_interval_seconds": {
		Comment: "Fallback polling interval while waiting for the device node when\ninotify is unavailable.",
	},

	// ── Log ──────────────────────────────────────────────────────
	"log.file_capture": {
		Comment: "Keep a rotating capture file in the data directory. The capture\nrecords everything, even during a -silent run.",
	},
	"log.max_size_mb": {
		Comment: "Capture file size before rotation.",
	},
}
