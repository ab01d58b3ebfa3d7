package migrate

import "bytes"

// Config is the registry for the config.toml schema.
var Config = &Registry{CurrentVersion: 2}

func init() {
	Config.Register(Migration{
		Version:     2,
		Description: "rename [logging] section to [log]",
		Upgrade:     renameLoggingSection,
	})
}

// renameLoggingSection rewrites the v1 `[logging]` TOML table header to the
// v2 `[log]` name. The transform is textual so comments and key order in a
// hand-edited config survive the upgrade.
func renameLoggingSection(data []byte) ([]byte, error) {
	lines := bytes.Split(data, []byte("\n"))
	for i, line := range lines {
		if bytes.Equal(bytes.TrimSpace(line), []byte("[logging]")) {
			lines[i] = bytes.Replace(line, []byte("[logging]"), []byte("[log]"), 1)
		}
	}
	return bytes.Join(lines, []byte("\n")), nil
}
