package firmware

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ///////////////////////////////////////////////
// Selection
// ///////////////////////////////////////////////

// Expand resolves the image arguments into a download-ordered list. Each
// argument is either a literal file path or a doublestar glob pattern
// (e.g. "images/**/*.cwe"). Duplicates are dropped; the result is sorted
// with CWE archives before NVU items, then by name, which is the order the
// device expects the downloads in.
func Expand(args []string) ([]*Image, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no firmware images given")
	}

	seen := map[string]bool{}
	var images []*Image

	for _, arg := range args {
		paths, err := resolve(arg)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			if seen[p] {
				continue
			}
			seen[p] = true

			img, err := Load(p)
			if err != nil {
				return nil, err
			}
			images = append(images, img)
		}
	}

	sort.SliceStable(images, func(a, b int) bool {
		if images[a].Type != images[b].Type {
			return images[a].Type == TypeCWE
		}
		return images[a].Name < images[b].Name
	})
	return images, nil
}

// resolve turns one argument into concrete file paths. Arguments without
// glob metacharacters are returned as-is so a missing literal path fails
// loudly in Load rather than silently matching nothing.
func resolve(arg string) ([]string, error) {
	if !strings.ContainsAny(arg, "*?[{") {
		return []string{arg}, nil
	}
	matches, err := doublestar.FilepathGlob(arg)
	if err != nil {
		return nil, fmt.Errorf("bad image pattern %q: %w", arg, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("image pattern %q matched no files", arg)
	}
	return matches, nil
}
