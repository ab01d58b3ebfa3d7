// Package main implements the genconfig tool that writes config.default.toml
// from config.ExampleConfig().
//
// It is invoked by go generate via the directive in internal/config/config.go.
package main

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"tools.zach/dev/modemflash/internal/config"
)

func main() {
	cfg := config.ExampleConfig()

	var raw bytes.Buffer
	if err := toml.NewEncoder(&raw).Encode(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "marshal: %v\n", err)
		os.Exit(1)
	}

	result := annotate(raw.String())

	// go generate runs from the package directory (internal/config/).
	// With go.mod at root, ../../ reaches the repo root where configdata.go
	// embeds config.default.toml, the single source of truth.
	outPath := "../../config.default.toml"
	if err := os.WriteFile(outPath, []byte(result), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", outPath, err)
		os.Exit(1)
	}
	fmt.Printf("wrote config.default.toml\n")
}

// annotate post-processes the encoder output: strips indentation, injects
// header comments and alternatives from [config.ConfigDocs], adds section
// separators, and appends commented-out entries for documented fields the
// encoder omitted (omitempty fields at their zero value).
func annotate(encoded string) string {
	out := []string{
		"# ///////////////////////////////////////////////",
		"# modemflash Configuration",
		"# ///////////////////////////////////////////////",
		"",
	}

	var section string
	emitted := map[string]bool{}

	for _, line := range strings.Split(encoded, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		// Section headers: [device], [download], ...
		if strings.HasPrefix(trimmed, "[") && !strings.HasPrefix(trimmed, "[[") {
			injectOmitted(&out, section, emitted)
			section = strings.Trim(trimmed, "[] ")
			out = append(out, "", fmt.Sprintf("# ///// %s /////", titleCase(section)), "", trimmed)
			continue
		}

		// Pass through anything that is not a key = value line.
		if !strings.Contains(trimmed, "=") || strings.HasPrefix(trimmed, "#") {
			out = append(out, trimmed)
			continue
		}

		key := strings.TrimSpace(strings.SplitN(trimmed, "=", 2)[0])
		path := key
		if section != "" {
			path = section + "." + key
		}
		emitted[path] = true

		if doc, ok := config.ConfigDocs[path]; ok {
			for _, cl := range splitComment(doc.Comment) {
				out = append(out, "# "+cl)
			}
			out = append(out, trimmed)
			for _, alt := range doc.Alternatives {
				out = append(out, "# "+alt)
			}
			continue
		}
		out = append(out, trimmed)
	}
	injectOmitted(&out, section, emitted)

	return strings.TrimRight(strings.Join(out, "\n"), "\n") + "\n"
}

// injectOmitted appends commented-out entries for documented keys in the
// current section that the TOML encoder skipped. Sorted for deterministic
// output.
func injectOmitted(out *[]string, section string, emitted map[string]bool) {
	if section == "" {
		return
	}
	prefix := section + "."

	var omitted []string
	for path := range config.ConfigDocs {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || strings.Contains(rest, ".") || emitted[path] {
			continue
		}
		omitted = append(omitted, path)
	}
	sort.Strings(omitted)

	for _, path := range omitted {
		doc := config.ConfigDocs[path]
		*out = append(*out, "")
		for _, cl := range splitComment(doc.Comment) {
			*out = append(*out, "# "+cl)
		}
		*out = append(*out, commentLines(doc.Alternatives)...)
		emitted[path] = true
	}
}

// splitComment splits a multi-line doc comment, dropping the empty result
// for an unset comment.
func splitComment(comment string) []string {
	if comment == "" {
		return nil
	}
	return strings.Split(comment, "\n")
}

// commentLines prefixes each alternative with "# ".
func commentLines(alts []string) []string {
	lines := make([]string, 0, len(alts))
	for _, alt := range alts {
		lines = append(lines, "# "+alt)
	}
	return lines
}

// titleCase capitalizes the first letter of a section name for the separator
// banner. "device" yields "Device".
func titleCase(section string) string {
	if section == "" {
		return ""
	}
	return strings.ToUpper(section[:1]) + section[1:]
}
