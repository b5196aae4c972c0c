package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/trailofbits/cargo-unmaintained/pkg/archival"
	"github.com/trailofbits/cargo-unmaintained/pkg/manifest"
	"github.com/trailofbits/cargo-unmaintained/pkg/types"
)

func TestCandidates_FiltersWorkspaceMembersAndNonCratesIo(t *testing.T) {
	graph := &manifest.Graph{
		WorkspaceMembers: map[string]bool{"my-app": true},
		Packages: []manifest.Package{
			{ID: types.PackageID{Name: "my-app", Version: "0.1.0", Source: types.SourcePath}},
			{ID: types.PackageID{Name: "serde", Version: "1.0.0", Source: types.SourceCratesIo}},
			{ID: types.PackageID{Name: "patched-dep", Version: "0.2.0", Source: types.SourceGit}},
		},
	}

	got := Candidates(graph, nil)

	if len(got) != 1 || got[0].ID.Name != "serde" {
		t.Errorf("Candidates() = %+v, want only [serde]", got)
	}
}

func TestCandidates_DropsIgnoredNames(t *testing.T) {
	graph := &manifest.Graph{
		WorkspaceMembers: map[string]bool{},
		Packages: []manifest.Package{
			{ID: types.PackageID{Name: "serde", Version: "1.0.0", Source: types.SourceCratesIo}},
			{ID: types.PackageID{Name: "itoa", Version: "1.0.0", Source: types.SourceCratesIo}},
		},
	}

	got := Candidates(graph, []string{"itoa"})

	if len(got) != 1 || got[0].ID.Name != "serde" {
		t.Errorf("Candidates() = %+v, want only [serde]", got)
	}
}

type fakeRegistry struct {
	byNameVersion map[string]types.RegistryVersion
	latest        map[string]types.RegistryVersion
}

func (f fakeRegistry) VersionByNum(name, num string) (types.RegistryVersion, error) {
	return f.byNameVersion[name+"@"+num], nil
}

func (f fakeRegistry) LatestNonYanked(name string) (types.RegistryVersion, error) {
	return f.latest[name], nil
}

type fakeStore struct{ handle *types.RepoHandle }

func (f fakeStore) Materialize(ctx context.Context, url string) (*types.RepoHandle, error) {
	return f.handle, nil
}

type fakeArchival struct{ status archival.Status }

func (f fakeArchival) Archived(ctx context.Context, url string) archival.Status { return f.status }

func TestCoordinator_Run_AccumulatesOneVerdictPerCandidate(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	graph := &manifest.Graph{
		WorkspaceMembers: map[string]bool{},
		Packages: []manifest.Package{
			{ID: types.PackageID{Name: "serde", Version: "1.0.0", Source: types.SourceCratesIo}},
			{ID: types.PackageID{Name: "itoa", Version: "1.0.0", Source: types.SourceCratesIo}},
		},
	}
	candidates := Candidates(graph, nil)

	c := &Coordinator{
		Index: fakeRegistry{
			byNameVersion: map[string]types.RegistryVersion{
				"serde@1.0.0": {Num: "1.0.0", RepositoryURL: "https://example.com/serde"},
				"itoa@1.0.0":  {Num: "1.0.0", RepositoryURL: "https://example.com/itoa"},
			},
			latest: map[string]types.RegistryVersion{
				"serde": {Num: "1.0.0", RepositoryURL: "https://example.com/serde"},
				"itoa":  {Num: "1.0.0", RepositoryURL: "https://example.com/itoa"},
			},
		},
		Store:       fakeStore{handle: &types.RepoHandle{HeadCommitTime: now.Add(-5 * 24 * time.Hour)}},
		Archival:    fakeArchival{status: archival.No},
		Concurrency: 2,
		MaxAge:      365 * 24 * time.Hour,
		Now:         now,
	}

	report, err := c.Run(context.Background(), graph, candidates)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Verdicts) != 2 {
		t.Fatalf("got %d verdicts, want 2", len(report.Verdicts))
	}
}

func TestCoordinator_Run_FailFastCancelsRemainingWork(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	graph := &manifest.Graph{
		WorkspaceMembers: map[string]bool{},
		Packages: []manifest.Package{
			{ID: types.PackageID{Name: "dead-dep", Version: "1.0.0", Source: types.SourceCratesIo}},
		},
	}
	candidates := Candidates(graph, nil)

	c := &Coordinator{
		Index: fakeRegistry{
			byNameVersion: map[string]types.RegistryVersion{
				"dead-dep@1.0.0": {Num: "1.0.0", RepositoryURL: "https://example.com/dead-dep"},
			},
			latest: map[string]types.RegistryVersion{
				"dead-dep": {Num: "1.0.0", RepositoryURL: "https://example.com/dead-dep"},
			},
		},
		Store:       fakeStore{handle: &types.RepoHandle{HeadCommitTime: now.Add(-5 * 24 * time.Hour)}},
		Archival:    fakeArchival{status: archival.Yes},
		Concurrency: 1,
		MaxAge:      365 * 24 * time.Hour,
		Now:         now,
		FailFast:    true,
	}

	report, err := c.Run(context.Background(), graph, candidates)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Verdicts) != 1 || !report.Verdicts[0].Unmaintained {
		t.Errorf("expected one Unmaintained verdict, got %+v", report.Verdicts)
	}
}
