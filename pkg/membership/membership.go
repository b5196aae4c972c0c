// Package membership implements the Repository Membership Checker (spec
// §4.E): given a candidate repository and a package name, it decides
// whether some manifest reachable from the default branch declares that
// name.
package membership

import (
	"log/slog"

	"github.com/pelletier/go-toml/v2"

	"github.com/trailofbits/cargo-unmaintained/pkg/reposvc"
	"github.com/trailofbits/cargo-unmaintained/pkg/types"
)

type cargoToml struct {
	Package struct {
		Name string `toml:"name"`
	} `toml:"package"`
}

// Contains reports whether any Cargo.toml in handle's default-branch tree
// declares package.name == pkgName. Per-manifest parse failures are warned
// and skipped, never fatal (spec §4.E, §7).
func Contains(handle *types.RepoHandle, pkgName string) bool {
	manifests, err := reposvc.ListManifests(handle)
	if err != nil {
		slog.Warn("membership check: failed to list manifests", "url", handle.NormalizedURL, "err", err)
		return false
	}

	for _, path := range manifests {
		raw, err := reposvc.ReadBlob(handle, path)
		if err != nil {
			slog.Warn("membership check: failed to read manifest", "url", handle.NormalizedURL, "path", path, "err", err)
			continue
		}

		name, err := parseManifestName(raw)
		if err != nil {
			slog.Warn("membership check: failed to parse manifest", "url", handle.NormalizedURL, "path", path, "err", err)
			continue
		}

		if name == pkgName {
			return true
		}
	}

	return false
}

// parseManifestName extracts package.name from a Cargo.toml's raw bytes.
func parseManifestName(raw []byte) (string, error) {
	var doc cargoToml
	if err := toml.Unmarshal(raw, &doc); err != nil {
		return "", err
	}
	return doc.Package.Name, nil
}
