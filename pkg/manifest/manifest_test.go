package manifest

import (
	"testing"

	"github.com/trailofbits/cargo-unmaintained/pkg/types"
)

func strptr(s string) *string { return &s }

func TestBuildGraph_WorkspaceMembersAndSources(t *testing.T) {
	raw := &rawMetadata{
		WorkspaceMembers: []string{"root-id"},
		Packages: []rawPackage{
			{Name: "root", Version: "0.1.0", ID: "root-id", Source: nil},
			{
				Name: "serde", Version: "1.0.200", ID: "serde-id",
				Source:       strptr("registry+https://github.com/rust-lang/crates.io-index"),
				Dependencies: []rawPkgDep{{Name: "itoa", Req: "^1.0", Kind: ""}},
			},
			{Name: "itoa", Version: "1.0.9", ID: "itoa-id", Source: strptr("registry+https://github.com/rust-lang/crates.io-index")},
			{Name: "patched", Version: "0.2.0", ID: "patched-id", Source: strptr("git+https://github.com/example/patched")},
		},
		Resolve: rawResolve{
			Nodes: []rawNode{
				{
					ID: "root-id",
					Deps: []rawNodeDep{
						{Name: "serde", Pkg: "serde-id", DepKinds: []rawDepKind{{Kind: ""}}},
					},
				},
				{
					ID: "serde-id",
					Deps: []rawNodeDep{
						{Name: "itoa", Pkg: "itoa-id", DepKinds: []rawDepKind{{Kind: ""}}},
					},
				},
				{ID: "itoa-id"},
				{ID: "patched-id"},
			},
		},
	}

	g, err := buildGraph("/tmp/proj", raw)
	if err != nil {
		t.Fatalf("buildGraph() error: %v", err)
	}

	if !g.WorkspaceMembers["root"] {
		t.Error("expected root to be a workspace member")
	}
	if g.WorkspaceMembers["serde"] {
		t.Error("serde must not be a workspace member")
	}

	var serdeEdge *types.DependencyEdge
	for i := range g.Edges {
		if g.Edges[i].Parent.Name == "root" && g.Edges[i].Child.Name == "serde" {
			serdeEdge = &g.Edges[i]
		}
	}
	if serdeEdge == nil {
		t.Fatal("expected root -> serde edge")
	}
	if serdeEdge.Kind != types.KindNormal {
		t.Errorf("kind = %v, want Normal", serdeEdge.Kind)
	}

	var serdePkg, itoaPkg, patchedPkg *Package
	for i := range g.Packages {
		switch g.Packages[i].ID.Name {
		case "serde":
			serdePkg = &g.Packages[i]
		case "itoa":
			itoaPkg = &g.Packages[i]
		case "patched":
			patchedPkg = &g.Packages[i]
		}
	}
	if serdePkg == nil || serdePkg.ID.Source != types.SourceCratesIo {
		t.Errorf("serde source = %v, want CratesIo", serdePkg)
	}
	if itoaPkg == nil || itoaPkg.ID.Source != types.SourceCratesIo {
		t.Errorf("itoa source = %v, want CratesIo", itoaPkg)
	}
	if patchedPkg == nil || patchedPkg.ID.Source != types.SourceGit {
		t.Errorf("patched source = %v, want Git", patchedPkg)
	}
}

func TestRequirementFor_FallsBackToWildcard(t *testing.T) {
	pkg := rawPackage{Dependencies: []rawPkgDep{{Name: "foo", Req: "^2.0"}}}

	if got := requirementFor(pkg, "foo"); got != "^2.0" {
		t.Errorf("requirementFor() = %q, want %q", got, "^2.0")
	}
	if got := requirementFor(pkg, "bar"); got != "*" {
		t.Errorf("requirementFor() = %q, want %q", got, "*")
	}
}

func TestClassifySource(t *testing.T) {
	tests := []struct {
		name   string
		source *string
		want   types.Source
	}{
		{"nil is path", nil, types.SourcePath},
		{"crates.io registry", strptr("registry+https://github.com/rust-lang/crates.io-index"), types.SourceCratesIo},
		{"git source", strptr("git+https://github.com/example/repo?rev=abc"), types.SourceGit},
		{"alternate registry", strptr("registry+https://my-registry.example/index"), types.SourceRegistry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifySource(tt.source); got != tt.want {
				t.Errorf("classifySource() = %v, want %v", got, tt.want)
			}
		})
	}
}
