// Package types holds the data model shared by every component of the
// classification pipeline: package identities, dependency edges, repository
// handles, registry entries, and verdicts.
package types

import "time"

// Source identifies where a package's code is resolved from.
type Source string

const (
	SourceCratesIo  Source = "crates-io"
	SourceGit       Source = "git"
	SourcePath      Source = "path"
	SourceRegistry  Source = "registry"
)

// DependencyKind distinguishes the three Cargo dependency kinds. Only Normal
// and Build edges are considered by the classification pipeline.
type DependencyKind string

const (
	KindNormal DependencyKind = "normal"
	KindBuild  DependencyKind = "build"
	KindDev    DependencyKind = "dev"
)

// PackageID uniquely identifies a resolved package in the dependency graph.
type PackageID struct {
	Name    string
	Version string
	Source  Source
}

// DependencyEdge is one edge of the resolved dependency graph.
type DependencyEdge struct {
	Parent      PackageID
	Child       PackageID
	Requirement string
	Kind        DependencyKind
}

// RepoHandle is a materialized, read-only handle onto a bare git mirror.
type RepoHandle struct {
	NormalizedURL  string
	ClonePath      string
	HeadCommitTime time.Time
}

// RegistryVersion is one version record inside a RegistryEntry.
type RegistryVersion struct {
	Num            string
	Yanked         bool
	PublishedAt    time.Time
	Deps           []RegistryDep
	RepositoryURL  string
}

// RegistryDep is a direct dependency declared by a specific registry version.
type RegistryDep struct {
	Name       string
	Requirement string
	Kind       DependencyKind
}

// RegistryEntry is the cached, parsed form of one crate's index file.
type RegistryEntry struct {
	Name     string
	Versions []RegistryVersion
}

// Reason explains why a package was deemed unmaintained.
type Reason string

const (
	ReasonRepositoryArchived    Reason = "archived"
	ReasonRepositoryMissing     Reason = "missing"
	ReasonNotInNamedRepository  Reason = "not-in-repo"
	ReasonOutdatedAndStale      Reason = "outdated"
)

// SkipReason explains why a candidate was excluded without a verdict.
type SkipReason string

const (
	SkipLeaf             SkipReason = "leaf"
	SkipWorkspaceMember  SkipReason = "workspace-member"
	SkipNonCratesIo      SkipReason = "non-crates-io"
	SkipIgnored          SkipReason = "ignored"
	SkipLatestIsFine     SkipReason = "latest-is-fine"
	SkipLookupFailed     SkipReason = "lookup-failed"
)

// OutdatedEdge is one direct dependency whose pinned requirement cannot
// admit the latest non-yanked version of that dependency, and whose latest
// version is itself old enough to no longer be "too recent to flag".
type OutdatedEdge struct {
	Dep            string
	Required       string
	Used           string
	Latest         string
	LatestAgeDays  int64
}

// Verdict is the outcome of classifying one package.
type Verdict struct {
	Package      PackageID
	Unmaintained bool
	Reason       Reason
	Skipped      bool
	SkipReason   SkipReason
	Repository   string
	AgeDays      *int64
	Outdated     []OutdatedEdge
}

// ProjectContext is the resolved view of the project under audit, handed to
// the core by the CLI collaborator.
type ProjectContext struct {
	ManifestPath     string
	WorkspaceMembers []string
	Ignore           []string
}

// Config carries the knobs the core needs. The CLI in cmd does not build
// one; it passes its flag values to the collaborators directly.
type Config struct {
	MaxAge      time.Duration
	FailFast    bool
	UseCache    bool
	GithubToken string
	Concurrency int
	Mode        OutputMode
}

// OutputMode selects the Result Sink's rendering.
type OutputMode string

const (
	ModeHuman OutputMode = "human"
	ModeJSON  OutputMode = "json"
)

// Report is the core's sole return value.
type Report struct {
	Verdicts []Verdict
}

// ErrorKind enumerates the fatal/non-fatal error taxonomy of §7.
type ErrorKind string

const (
	ErrManifestParse  ErrorKind = "manifest-parse-error"
	ErrResolveFailed  ErrorKind = "resolve-failed"
	ErrIndexUnavail   ErrorKind = "index-unavailable"
	ErrNoSuchPackage  ErrorKind = "no-such-package"
	ErrCloneFailed    ErrorKind = "clone-failed"
	ErrAPI            ErrorKind = "api-error"
	ErrCacheLockFailed ErrorKind = "cache-lock-failed"
)

// CloneFailureKind refines ErrCloneFailed per §4.B/§7.
type CloneFailureKind string

const (
	CloneNetwork  CloneFailureKind = "network"
	CloneNotFound CloneFailureKind = "not-found"
	CloneTimeout  CloneFailureKind = "timeout"
	CloneAuth     CloneFailureKind = "auth"
)

// IsLeaf reports whether a registry version has zero Normal/Build
// dependencies, the leaf-immunity predicate of invariant 1.
func (v RegistryVersion) IsLeaf() bool {
	for _, d := range v.Deps {
		if d.Kind == KindNormal || d.Kind == KindBuild {
			return false
		}
	}
	return true
}

// DirectDeps returns the Normal and Build dependencies of a version,
// ignoring Dev dependencies per spec.
func (v RegistryVersion) DirectDeps() []RegistryDep {
	out := make([]RegistryDep, 0, len(v.Deps))
	for _, d := range v.Deps {
		if d.Kind == KindNormal || d.Kind == KindBuild {
			out = append(out, d)
		}
	}
	return out
}
