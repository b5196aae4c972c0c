// Package classify implements the Classifier (spec §4.G): the ordered,
// first-match decision rule that combines repository archival, existence,
// membership, and outdatedness signals into a single verdict, followed by
// a depth-1 confirmation pass against the package's latest non-yanked
// version.
package classify

import (
	"context"
	"errors"
	"time"

	"github.com/trailofbits/cargo-unmaintained/pkg/archival"
	"github.com/trailofbits/cargo-unmaintained/pkg/outdated"
	"github.com/trailofbits/cargo-unmaintained/pkg/reposvc"
	"github.com/trailofbits/cargo-unmaintained/pkg/types"
)

// ArchivalChecker is the capability the classifier needs from the Archival
// Oracle.
type ArchivalChecker interface {
	Archived(ctx context.Context, repoURL string) archival.Status
}

// RepoStore is the capability the classifier needs from the Repository
// Store.
type RepoStore interface {
	Materialize(ctx context.Context, url string) (*types.RepoHandle, error)
}

// MembershipChecker is the capability the classifier needs from the
// Repository Membership Checker.
type MembershipChecker func(handle *types.RepoHandle, pkgName string) bool

// Input bundles everything one classification needs for a single candidate
// package. Resolved is the version selected in the user's graph; Latest is
// that same package's latest non-yanked registry version. ResolvedVersions
// maps a direct dependency's name to its version as selected in the user's
// graph, for outdated-edge reporting.
type Input struct {
	Name             string
	Resolved         types.RegistryVersion
	Latest           types.RegistryVersion
	MaxAge           time.Duration
	Now              time.Time
	Lookup           outdated.RegistryLookup
	Archival         ArchivalChecker
	Store            RepoStore
	IsMember         MembershipChecker
	ResolvedVersions map[string]string
}

// Classify runs the ordered rule of spec §4.G against in.Resolved, then
// applies the confirmation pass: any Unmaintained verdict is re-evaluated
// against in.Latest and downgraded to Skipped(LatestIsFine) if the latest
// version would not itself be Unmaintained.
func Classify(ctx context.Context, in Input) types.Verdict {
	pkg := types.PackageID{Name: in.Name, Version: in.Resolved.Num, Source: types.SourceCratesIo}

	verdict := evaluate(ctx, pkg, in.Resolved, in)
	if !verdict.Unmaintained {
		return verdict
	}

	if in.Resolved.Num == in.Latest.Num {
		// Trivially confirmed: the version in the graph already is the
		// latest (spec §8 boundary behavior).
		return verdict
	}

	latestPkg := types.PackageID{Name: in.Name, Version: in.Latest.Num, Source: types.SourceCratesIo}
	confirmVerdict := evaluate(ctx, latestPkg, in.Latest, in)
	if !confirmVerdict.Unmaintained {
		return types.Verdict{
			Package:    pkg,
			Skipped:    true,
			SkipReason: types.SkipLatestIsFine,
			Repository: verdict.Repository,
		}
	}

	return verdict
}

// evaluate runs rules 1-7 once, against one specific version of the
// package. It never recurses — the confirmation pass in Classify bounds
// recursion to depth 1, per spec §9.
func evaluate(ctx context.Context, pkg types.PackageID, version types.RegistryVersion, in Input) types.Verdict {
	verdict := types.Verdict{Package: pkg, Repository: version.RepositoryURL}

	// Rule 1: no declared repository URL. Without a repository there is
	// nothing for rules 2-4 to examine, but spec treats the missing URL as
	// repo_age_days = infinity rather than an automatic pass: a non-leaf
	// package still has to clear the outdated-edges check (rule 7; rule 6's
	// recency gate can never pass at infinite age).
	if version.RepositoryURL == "" {
		if version.IsLeaf() {
			return verdict
		}
		edges := outdated.Compute(in.Lookup, in.Now, in.MaxAge, version.DirectDeps(), in.ResolvedVersions)
		if len(edges) == 0 {
			return verdict
		}
		verdict.Unmaintained = true
		verdict.Reason = types.ReasonOutdatedAndStale
		verdict.Outdated = edges
		return verdict
	}

	// Rule 2: archived.
	if in.Archival.Archived(ctx, version.RepositoryURL) == archival.Yes {
		verdict.Unmaintained = true
		verdict.Reason = types.ReasonRepositoryArchived
		return verdict
	}

	// Rule 3/4: materialize and check membership + age.
	handle, err := in.Store.Materialize(ctx, version.RepositoryURL)
	if err != nil {
		var cf *reposvc.CloneFailure
		if errors.As(err, &cf) && (cf.Kind == types.CloneNotFound || cf.Kind == types.CloneTimeout) {
			verdict.Unmaintained = true
			verdict.Reason = types.ReasonRepositoryMissing
			return verdict
		}
		// Network/Auth failures are Unknown, never positive evidence of
		// unmaintenance (spec §7).
		verdict.Skipped = true
		verdict.SkipReason = types.SkipLookupFailed
		return verdict
	}

	ageDays := int64(in.Now.Sub(handle.HeadCommitTime).Hours() / 24)
	verdict.AgeDays = &ageDays

	if !in.IsMember(handle, pkg.Name) {
		verdict.Unmaintained = true
		verdict.Reason = types.ReasonNotInNamedRepository
		return verdict
	}

	// Rule 5: leaf immunity.
	if version.IsLeaf() {
		return verdict
	}

	// Rule 6: repository recently active.
	if ageDays <= int64(in.MaxAge.Hours()/24) {
		return verdict
	}

	// Rule 7: outdated direct dependencies.
	edges := outdated.Compute(in.Lookup, in.Now, in.MaxAge, version.DirectDeps(), in.ResolvedVersions)
	if len(edges) == 0 {
		return verdict
	}

	verdict.Unmaintained = true
	verdict.Reason = types.ReasonOutdatedAndStale
	verdict.Outdated = edges
	return verdict
}
