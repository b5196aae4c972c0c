// Package manifest invokes the project's package-graph resolver (cargo
// metadata) and decodes the resolved dependency graph, mirroring the way
// the teacher's parser package shells out to the Go toolchain and parses
// its output.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/trailofbits/cargo-unmaintained/pkg/types"
)

// rawMetadata is the subset of `cargo metadata --format-version=1` this
// loader cares about.
type rawMetadata struct {
	Packages         []rawPackage `json:"packages"`
	WorkspaceMembers []string     `json:"workspace_members"`
	Resolve          rawResolve   `json:"resolve"`
	TargetDirectory  string       `json:"target_directory"`
	WorkspaceRoot    string       `json:"workspace_root"`
}

type rawPackage struct {
	Name         string      `json:"name"`
	Version      string      `json:"version"`
	ID           string      `json:"id"`
	Source       *string     `json:"source"`
	ManifestPath string      `json:"manifest_path"`
	Dependencies []rawPkgDep `json:"dependencies"`
}

// rawPkgDep is an entry in package.dependencies: the *declared* requirement,
// as written in Cargo.toml, before resolution.
type rawPkgDep struct {
	Name string `json:"name"`
	Req  string `json:"req"`
	Kind string `json:"kind"` // "", "dev", "build"
}

type rawResolve struct {
	Nodes []rawNode `json:"nodes"`
	Root  *string   `json:"root"`
}

type rawNode struct {
	ID           string       `json:"id"`
	Dependencies []string     `json:"dependencies"`
	Deps         []rawNodeDep `json:"deps"`
}

type rawNodeDep struct {
	Name     string        `json:"name"`
	Pkg      string        `json:"pkg"`
	DepKinds []rawDepKind  `json:"dep_kinds"`
}

type rawDepKind struct {
	Kind string `json:"kind"` // "", "dev", "build"
}

// Package is a fully resolved package in the dependency graph.
type Package struct {
	ID      types.PackageID
	PkgID   string // cargo's opaque package id string, used to join nodes
	Source  *string
}

// Graph is the resolved dependency graph the Scheduler fans out over.
type Graph struct {
	ProjectPath      string
	Packages         []Package
	WorkspaceMembers map[string]bool // package name -> member
	Edges            []types.DependencyEdge
}

// Load invokes cargo metadata against manifestPath and decodes the result.
// Failures are always ManifestParseError/ResolveFailed-class and therefore
// fatal to the run (spec §4.D, §7).
func Load(ctx context.Context, manifestPath string) (*Graph, error) {
	cargoTomlDir := manifestPath
	if filepath.Base(manifestPath) == "Cargo.toml" {
		cargoTomlDir = filepath.Dir(manifestPath)
	}

	cmd := exec.CommandContext(ctx, "cargo", "metadata", "--format-version=1", "--all-features")
	cmd.Dir = cargoTomlDir

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("cargo metadata failed (resolve-failed): %w", err)
	}

	var raw rawMetadata
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse cargo metadata output (manifest-parse-error): %w", err)
	}

	return buildGraph(cargoTomlDir, &raw)
}

func buildGraph(projectPath string, raw *rawMetadata) (*Graph, error) {
	g := &Graph{
		ProjectPath:      projectPath,
		WorkspaceMembers: make(map[string]bool, len(raw.WorkspaceMembers)),
	}

	byID := make(map[string]rawPackage, len(raw.Packages))
	for _, p := range raw.Packages {
		byID[p.ID] = p
	}

	memberIDs := make(map[string]bool, len(raw.WorkspaceMembers))
	for _, id := range raw.WorkspaceMembers {
		memberIDs[id] = true
		if p, ok := byID[id]; ok {
			g.WorkspaceMembers[p.Name] = true
		}
	}

	pkgByID := make(map[string]types.PackageID, len(raw.Packages))
	for _, p := range raw.Packages {
		pid := types.PackageID{
			Name:    p.Name,
			Version: p.Version,
			Source:  classifySource(p.Source),
		}
		pkgByID[p.ID] = pid
		g.Packages = append(g.Packages, Package{ID: pid, PkgID: p.ID, Source: p.Source})
	}

	for _, node := range raw.Resolve.Nodes {
		parent, ok := pkgByID[node.ID]
		if !ok {
			continue
		}
		if len(node.Deps) > 0 {
			for _, d := range node.Deps {
				child, ok := pkgByID[d.Pkg]
				if !ok {
					continue
				}
				req := requirementFor(byID[node.ID], d.Name)
				for _, dk := range d.DepKinds {
					kind := classifyKind(dk.Kind)
					g.Edges = append(g.Edges, types.DependencyEdge{
						Parent:      parent,
						Child:       child,
						Requirement: req,
						Kind:        kind,
					})
				}
				if len(d.DepKinds) == 0 {
					g.Edges = append(g.Edges, types.DependencyEdge{
						Parent:      parent,
						Child:       child,
						Requirement: req,
						Kind:        types.KindNormal,
					})
				}
			}
			continue
		}
		// Older cargo metadata versions only populate node.Dependencies
		// (a flat id list, kind-less). Treat every edge as Normal.
		for _, depID := range node.Dependencies {
			child, ok := pkgByID[depID]
			if !ok {
				continue
			}
			g.Edges = append(g.Edges, types.DependencyEdge{
				Parent:      parent,
				Child:       child,
				Requirement: requirementFor(byID[node.ID], child.Name),
				Kind:        types.KindNormal,
			})
		}
	}

	return g, nil
}

func requirementFor(pkg rawPackage, depName string) string {
	for _, d := range pkg.Dependencies {
		if d.Name == depName {
			return d.Req
		}
	}
	return "*"
}

func classifyKind(k string) types.DependencyKind {
	switch k {
	case "dev":
		return types.KindDev
	case "build":
		return types.KindBuild
	default:
		return types.KindNormal
	}
}

func classifySource(source *string) types.Source {
	if source == nil {
		return types.SourcePath
	}
	switch {
	case *source == "registry+https://github.com/rust-lang/crates.io-index":
		return types.SourceCratesIo
	case strings.HasPrefix(*source, "git+"):
		return types.SourceGit
	case strings.HasPrefix(*source, "registry+"):
		return types.SourceRegistry
	default:
		return types.SourcePath
	}
}
