// Package outdated implements the Outdatedness Analyzer (spec §4.F): for a
// package's direct dependencies, it finds the ones whose pinned requirement
// cannot admit the latest published version of that dependency, discarding
// any upgrade too recent to reasonably expect the maintainer to have
// adopted yet.
package outdated

import (
	"log/slog"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/trailofbits/cargo-unmaintained/pkg/types"
)

// RegistryLookup is the capability Compute needs from the Registry Index
// Reader, kept narrow so tests can supply an in-memory double (spec §9:
// "RegistryIndex as capability interface with production and in-memory
// implementations").
type RegistryLookup interface {
	LatestNonYanked(name string) (types.RegistryVersion, error)
}

// Compute returns the outdated edges among deps, per spec §4.F's four-step
// rule. resolvedVersions maps a dependency's name to the version actually
// selected in the user's graph, used to populate OutdatedEdge.Used.
func Compute(lookup RegistryLookup, now time.Time, maxAge time.Duration, deps []types.RegistryDep, resolvedVersions map[string]string) []types.OutdatedEdge {
	var edges []types.OutdatedEdge

	for _, dep := range deps {
		latest, err := lookup.LatestNonYanked(dep.Name)
		if err != nil {
			// Transient per-package lookup failure: warn and skip this
			// edge rather than failing outdatedness analysis for X (spec
			// §7: treat as Skipped(LookupFailed) at the package level, not
			// a hard failure at the edge level).
			slog.Warn("outdatedness: registry lookup failed", "dep", dep.Name, "err", err)
			continue
		}

		inDate, err := satisfies(dep.Requirement, latest.Num)
		if err != nil {
			slog.Warn("outdatedness: could not parse requirement", "dep", dep.Name, "req", dep.Requirement, "err", err)
			continue
		}
		if inDate {
			continue
		}

		ageDays := int64(now.Sub(latest.PublishedAt).Hours() / 24)
		if !latest.PublishedAt.IsZero() && now.Sub(latest.PublishedAt) < maxAge {
			continue
		}

		edges = append(edges, types.OutdatedEdge{
			Dep:           dep.Name,
			Required:      dep.Requirement,
			Used:          resolvedVersions[dep.Name],
			Latest:        latest.Num,
			LatestAgeDays: ageDays,
		})
	}

	return edges
}

// satisfies reports whether candidateVersion is admitted by a Cargo-style
// requirement string. A bare version with no operator defaults to caret
// semantics, matching Cargo's own default.
func satisfies(requirement, candidateVersion string) (bool, error) {
	c, err := semver.NewConstraint(translateRequirement(requirement))
	if err != nil {
		return false, err
	}
	v, err := semver.NewVersion(candidateVersion)
	if err != nil {
		return false, err
	}
	return c.Check(v), nil
}

func translateRequirement(req string) string {
	parts := strings.Split(req, ",")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || p == "*" {
			parts[i] = "*"
			continue
		}
		switch p[0] {
		case '^', '~', '=', '<', '>':
			parts[i] = p
		default:
			parts[i] = "^" + p
		}
	}
	return strings.Join(parts, ",")
}
