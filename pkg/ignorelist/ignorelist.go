// Package ignorelist reads the optional .cargo-unmaintained.toml project
// file and unions it with repeated --ignore CLI flags, per SPEC_FULL §8.
package ignorelist

import (
	"os"

	"github.com/pelletier/go-toml/v2"
)

const fileName = ".cargo-unmaintained.toml"

type fileFormat struct {
	Ignore []string `toml:"ignore"`
}

// Load reads projectDir/.cargo-unmaintained.toml (if present) and returns
// the union of its ignore list with cliFlags, deduplicated. A missing file
// is not an error.
func Load(projectDir string, cliFlags []string) ([]string, error) {
	fromFile, err := loadFile(projectDir + string(os.PathSeparator) + fileName)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(fromFile)+len(cliFlags))
	out := make([]string, 0, len(fromFile)+len(cliFlags))
	for _, name := range append(fromFile, cliFlags...) {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out, nil
}

func loadFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var parsed fileFormat
	if err := toml.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}
	return parsed.Ignore, nil
}
