// Package scheduler implements the Scheduler & Cache Coordinator (spec
// §4.H): candidate-set derivation, bounded concurrent classification,
// per-URL materialize dedup, and cooperative fail-fast cancellation.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/trailofbits/cargo-unmaintained/pkg/archival"
	"github.com/trailofbits/cargo-unmaintained/pkg/classify"
	"github.com/trailofbits/cargo-unmaintained/pkg/manifest"
	"github.com/trailofbits/cargo-unmaintained/pkg/membership"
	"github.com/trailofbits/cargo-unmaintained/pkg/outdated"
	"github.com/trailofbits/cargo-unmaintained/pkg/reposvc"
	"github.com/trailofbits/cargo-unmaintained/pkg/types"
)

// RegistryReader is the capability the scheduler needs to resolve a
// candidate's pinned and latest version records.
type RegistryReader interface {
	outdated.RegistryLookup
	VersionByNum(name, num string) (types.RegistryVersion, error)
}

// dedupStore wraps a classify.RepoStore so at most one Materialize call per
// URL is ever in flight (spec §4.H: "at most one in-flight materialize(url)
// call per process, with other callers awaiting the same result").
type dedupStore struct {
	inner classify.RepoStore
	group singleflight.Group
}

func (d *dedupStore) Materialize(ctx context.Context, url string) (*types.RepoHandle, error) {
	v, err, _ := d.group.Do(url, func() (interface{}, error) {
		return d.inner.Materialize(ctx, url)
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.RepoHandle), nil
}

// Candidates derives the candidate set of spec §4.H: every CratesIo-sourced
// package in the resolved graph, minus workspace members, minus ignored
// names. An ignored name that never actually appears in the graph produces
// a warning rather than an error.
func Candidates(graph *manifest.Graph, ignore []string) []manifest.Package {
	ignored := make(map[string]bool, len(ignore))
	seen := make(map[string]bool, len(ignore))
	for _, name := range ignore {
		ignored[name] = true
	}

	out := make([]manifest.Package, 0, len(graph.Packages))
	for _, pkg := range graph.Packages {
		if pkg.ID.Source != types.SourceCratesIo {
			continue
		}
		if graph.WorkspaceMembers[pkg.ID.Name] {
			continue
		}
		if ignored[pkg.ID.Name] {
			seen[pkg.ID.Name] = true
			continue
		}
		out = append(out, pkg)
	}

	for name := range ignored {
		if !seen[name] {
			slog.Warn("ignored package not present in dependency graph", "name", name)
		}
	}

	return out
}

// Coordinator owns the shared collaborators a classification run needs.
type Coordinator struct {
	Index    RegistryReader
	Store    classify.RepoStore
	Archival classify.ArchivalChecker

	Concurrency int
	MaxAge      time.Duration
	Now         time.Time
	FailFast    bool
}

// NewCoordinator wires production collaborators together.
func NewCoordinator(index RegistryReader, store *reposvc.Store, oracle *archival.Oracle, concurrency int, maxAge time.Duration) *Coordinator {
	return &Coordinator{
		Index:       index,
		Store:       store,
		Archival:    oracle,
		Concurrency: concurrency,
		MaxAge:      maxAge,
		Now:         time.Now(),
	}
}

// Run classifies every candidate concurrently, bounded to c.Concurrency
// in-flight classifications at a time, and returns the accumulated report.
// If c.FailFast, the first confirmed Unmaintained verdict cancels all
// remaining work.
func (c *Coordinator) Run(ctx context.Context, graph *manifest.Graph, candidates []manifest.Package) (*types.Report, error) {
	store := &dedupStore{inner: c.Store}

	resolvedVersions := make(map[string]string, len(graph.Packages))
	for _, p := range graph.Packages {
		resolvedVersions[p.ID.Name] = p.ID.Version
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	if c.Concurrency > 0 {
		g.SetLimit(c.Concurrency)
	}

	var mu sync.Mutex
	var verdicts []types.Verdict

	for _, pkg := range candidates {
		pkg := pkg
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}

			resolved, err := c.Index.VersionByNum(pkg.ID.Name, pkg.ID.Version)
			if err != nil {
				slog.Warn("scheduler: could not load resolved version from index", "pkg", pkg.ID.Name, "version", pkg.ID.Version, "err", err)
				return nil
			}
			latest, err := c.Index.LatestNonYanked(pkg.ID.Name)
			if err != nil {
				slog.Warn("scheduler: could not load latest version from index", "pkg", pkg.ID.Name, "err", err)
				return nil
			}

			verdict := classify.Classify(gctx, classify.Input{
				Name:             pkg.ID.Name,
				Resolved:         resolved,
				Latest:           latest,
				MaxAge:           c.MaxAge,
				Now:              c.Now,
				Lookup:           c.Index,
				Archival:         c.Archival,
				Store:            store,
				IsMember:         membership.Contains,
				ResolvedVersions: resolvedVersions,
			})

			mu.Lock()
			verdicts = append(verdicts, verdict)
			mu.Unlock()

			if c.FailFast && verdict.Unmaintained {
				cancel()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &types.Report{Verdicts: verdicts}, nil
}
