// Package registryidx reads a locally mirrored, git-backed registry index
// and answers version queries about individual packages. It owns the one
// piece of shared, exclusive-write state described in spec §5: the index
// clone itself, updated once per process under an exclusive lock, then read
// concurrently by every worker.
package registryidx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/go-git/go-git/v5"

	"github.com/trailofbits/cargo-unmaintained/pkg/diskcache"
	"github.com/trailofbits/cargo-unmaintained/pkg/types"
)

// ErrIndexUnavailable is returned when the index cannot be updated and no
// cached clone already exists on disk.
var ErrIndexUnavailable = errors.New("registry index unavailable")

// ErrNoSuchPackage is returned when a name has no entry in the index.
var ErrNoSuchPackage = errors.New("no such package in registry index")

const defaultIndexURL = "https://github.com/rust-lang/crates.io-index"

// indexLine is one newline-delimited JSON record inside a crate's index
// file.
type indexLine struct {
	Name        string          `json:"name"`
	Vers        string          `json:"vers"`
	Deps        []indexDep      `json:"deps"`
	Yanked      bool            `json:"yanked"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
	RepoURL     string          `json:"repository,omitempty"`
}

type indexDep struct {
	Name     string `json:"name"`
	Req      string `json:"req"`
	Kind     string `json:"kind"`
	Optional bool   `json:"optional"`
}

// Reader is the Registry Index Reader (spec §4.A). It owns one clone of the
// index and memoizes parsed entries in memory with a TTL, per SPEC_FULL §8 —
// a lighter-weight cache than the permanent repository mirrors of §4.B,
// since the index itself changes far more often than any single repo's
// history.
type Reader struct {
	repoPath string
	ttl      time.Duration

	mu      sync.Mutex
	entries map[string]cachedEntry
}

type cachedEntry struct {
	entry   *types.RegistryEntry
	fetched time.Time
}

// Open clones the index (if absent) or opens the existing clone at
// cacheRoot/index, updating it under an exclusive lock. indexURL defaults to
// the upstream crates.io index mirror when empty.
func Open(ctx context.Context, cacheRoot, indexURL string, ttl time.Duration) (*Reader, error) {
	if indexURL == "" {
		indexURL = defaultIndexURL
	}
	repoPath := filepath.Join(cacheRoot, "index")

	lock := diskcache.NewLock(cacheRoot)
	unlock, lockErr := lock.Exclusive()
	if lockErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, lockErr)
	}
	err := updateOrClone(ctx, repoPath, indexURL)
	unlock()
	if err != nil {
		if _, statErr := os.Stat(repoPath); statErr == nil {
			// Stale copy on disk: degrade gracefully rather than failing
			// the whole run, per the spirit of §4.A ("no cached copy
			// exists" is the only unconditionally fatal case).
			return &Reader{repoPath: repoPath, ttl: ttl, entries: make(map[string]cachedEntry)}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	return &Reader{repoPath: repoPath, ttl: ttl, entries: make(map[string]cachedEntry)}, nil
}

func updateOrClone(ctx context.Context, repoPath, indexURL string) error {
	if _, err := os.Stat(filepath.Join(repoPath, ".git")); err == nil {
		repo, err := git.PlainOpen(repoPath)
		if err != nil {
			return fmt.Errorf("opening existing index clone: %w", err)
		}
		wt, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("index worktree: %w", err)
		}

		pullCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()
		err = wt.PullContext(pullCtx, &git.PullOptions{RemoteName: "origin"})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return fmt.Errorf("updating index clone: %w", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(repoPath), 0o755); err != nil {
		return fmt.Errorf("preparing index cache dir: %w", err)
	}

	cloneCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	_, err := git.PlainCloneContext(cloneCtx, repoPath, false, &git.CloneOptions{
		URL:   indexURL,
		Depth: 1,
	})
	if err != nil {
		return fmt.Errorf("cloning index: %w", err)
	}
	return nil
}

// LatestNonYanked returns the highest semver-precedence non-yanked version
// of name, falling back to the next-highest non-yanked version if the
// latest is yanked (spec §4.A).
func (r *Reader) LatestNonYanked(name string) (types.RegistryVersion, error) {
	entry, err := r.entry(name)
	if err != nil {
		return types.RegistryVersion{}, err
	}
	for _, v := range entry.Versions {
		if !v.Yanked {
			return v, nil
		}
	}
	return types.RegistryVersion{}, fmt.Errorf("%w: %s has only yanked versions", ErrNoSuchPackage, name)
}

// AllVersions returns every version of name ordered newest-first.
func (r *Reader) AllVersions(name string) ([]types.RegistryVersion, error) {
	entry, err := r.entry(name)
	if err != nil {
		return nil, err
	}
	return entry.Versions, nil
}

// VersionByNum returns one specific version record of name, used to fetch
// the full registry metadata (dependencies, repository URL) for a version
// already pinned in a resolved dependency graph.
func (r *Reader) VersionByNum(name, num string) (types.RegistryVersion, error) {
	entry, err := r.entry(name)
	if err != nil {
		return types.RegistryVersion{}, err
	}
	for _, v := range entry.Versions {
		if v.Num == num {
			return v, nil
		}
	}
	return types.RegistryVersion{}, fmt.Errorf("%w: %s has no version %s", ErrNoSuchPackage, name, num)
}

// entry returns the parsed, semver-sorted registry entry for name, serving
// from the in-memory TTL cache when fresh (single writer per key, per §5).
func (r *Reader) entry(name string) (*types.RegistryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.entries[name]; ok && (r.ttl <= 0 || time.Since(c.fetched) < r.ttl) {
		return c.entry, nil
	}

	entry, err := r.readEntry(name)
	if err != nil {
		return nil, err
	}

	r.entries[name] = cachedEntry{entry: entry, fetched: time.Now()}
	return entry, nil
}

func (r *Reader) readEntry(name string) (*types.RegistryEntry, error) {
	path := filepath.Join(r.repoPath, shardPath(name))

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoSuchPackage, name)
		}
		return nil, fmt.Errorf("reading index entry for %s: %w", name, err)
	}
	defer f.Close()

	var versions []types.RegistryVersion
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec indexLine
		if err := json.Unmarshal(line, &rec); err != nil {
			continue // malformed line; skip rather than fail the whole read
		}
		v := types.RegistryVersion{
			Num:           rec.Vers,
			Yanked:        rec.Yanked,
			RepositoryURL: rec.RepoURL,
		}
		if rec.PublishedAt != nil {
			v.PublishedAt = *rec.PublishedAt
		}
		for _, d := range rec.Deps {
			v.Deps = append(v.Deps, types.RegistryDep{
				Name:        d.Name,
				Requirement: d.Req,
				Kind:        classifyDepKind(d.Kind),
			})
		}
		versions = append(versions, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning index entry for %s: %w", name, err)
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchPackage, name)
	}

	sortVersionsDescending(versions)

	// Resolve conflicting repository_url declarations per spec §9(b): the
	// latest non-yanked version's declared URL wins for every version's
	// canonical-repository purposes downstream.
	var canonical string
	for _, v := range versions {
		if !v.Yanked {
			canonical = v.RepositoryURL
			break
		}
	}
	if canonical != "" {
		for i := range versions {
			versions[i].RepositoryURL = canonical
		}
	}

	return &types.RegistryEntry{Name: name, Versions: versions}, nil
}

func classifyDepKind(k string) types.DependencyKind {
	switch k {
	case "dev":
		return types.KindDev
	case "build":
		return types.KindBuild
	default:
		return types.KindNormal
	}
}

func sortVersionsDescending(versions []types.RegistryVersion) {
	sort.SliceStable(versions, func(i, j int) bool {
		vi, erri := semver.NewVersion(versions[i].Num)
		vj, errj := semver.NewVersion(versions[j].Num)
		if erri != nil || errj != nil {
			return versions[i].Num > versions[j].Num
		}
		return vi.GreaterThan(vj)
	})
}

// shardPath reproduces crates.io's index sharding convention.
func shardPath(name string) string {
	switch {
	case len(name) == 1:
		return filepath.Join("1", name)
	case len(name) == 2:
		return filepath.Join("2", name)
	case len(name) == 3:
		return filepath.Join("3", name[:1], name)
	default:
		return filepath.Join(name[:2], name[2:4], name)
	}
}
