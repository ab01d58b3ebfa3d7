// Package modemflash provides embedded assets for the modemflash tool.
//
// The root package exists solely to embed [config.default.toml] via
// [DefaultConfigTOML]. The main package writes this file into the data
// directory on first run so users start from a documented config.
package modemflash

import _ "embed"

// DefaultConfigTOML holds the raw bytes of config.default.toml, embedded at
// build time. Regenerate with `go generate ./internal/config` after schema
// changes.
//
//go:embed config.default.toml
var DefaultConfigTOML []byte
