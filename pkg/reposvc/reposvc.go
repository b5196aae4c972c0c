// Package reposvc implements the Repository Store (spec §4.B): it clones or
// reuses a bare git mirror of a repository URL into a content-addressed
// on-disk cache, reports the last-commit timestamp, and enumerates manifest
// files within the default-branch tree without ever checking out a working
// copy.
package reposvc

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/trailofbits/cargo-unmaintained/pkg/diskcache"
	"github.com/trailofbits/cargo-unmaintained/pkg/types"
)

// CloneFailure refines a materialize failure per spec §4.B/§7.
type CloneFailure struct {
	Kind types.CloneFailureKind
	Err  error
}

func (e *CloneFailure) Error() string {
	return fmt.Sprintf("clone failed (%s): %v", e.Kind, e.Err)
}

func (e *CloneFailure) Unwrap() error { return e.Err }

const sentinelSuffix = ".ok"

// Store materializes and reads bare git mirrors rooted at cacheRoot/repos.
type Store struct {
	root string
	lock *diskcache.Lock
}

// New returns a Store rooted at cacheRoot/repos. Writes (new clones) are
// serialized cache-root-wide through lock; reads of an already-materialized
// repo take only a shared lock so concurrent classifications don't block on
// each other.
func New(cacheRoot string) *Store {
	return &Store{root: filepath.Join(cacheRoot, "repos"), lock: diskcache.NewLock(cacheRoot)}
}

// Normalize canonicalizes a repository URL per spec §3: strips the `git://`
// scheme in favor of `https://`, strips a trailing `.git` suffix, strips a
// trailing slash, lowercases the host, and rewrites GitHub SSH remotes to
// their HTTPS equivalent. It is a pure function with no I/O.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "git@") {
		// git@github.com:owner/repo.git -> https://github.com/owner/repo
		rest := strings.TrimPrefix(s, "git@")
		if idx := strings.Index(rest, ":"); idx != -1 {
			host := rest[:idx]
			path := rest[idx+1:]
			s = "https://" + host + "/" + path
		}
	}

	if strings.HasPrefix(s, "git://") {
		s = "https://" + strings.TrimPrefix(s, "git://")
	}
	if strings.HasPrefix(s, "ssh://git@") {
		s = "https://" + strings.TrimPrefix(s, "ssh://git@")
	}

	s = strings.TrimSuffix(s, "/")
	s = strings.TrimSuffix(s, ".git")

	if u, err := url.Parse(s); err == nil && u.Host != "" {
		u.Host = strings.ToLower(u.Host)
		s = u.String()
	}

	return s
}

// ClonePath returns the content-addressed clone directory for a normalized
// URL, without touching disk.
func (s *Store) ClonePath(normalizedURL string) string {
	sum := sha1.Sum([]byte(normalizedURL))
	return filepath.Join(s.root, fmt.Sprintf("%x", sum))
}

func (s *Store) sentinelPath(clonePath string) string {
	return clonePath + sentinelSuffix
}

// Materialize clones (or reuses) a bare mirror of rawURL. A repository is
// cloned at most once per cache lifetime: if the success sentinel exists,
// the existing clone is opened read-only.
func (s *Store) Materialize(ctx context.Context, rawURL string) (*types.RepoHandle, error) {
	normalized := Normalize(rawURL)
	clonePath := s.ClonePath(normalized)
	sentinel := s.sentinelPath(clonePath)

	if _, err := os.Stat(sentinel); err == nil {
		unlock, err := s.lock.Shared()
		if err != nil {
			return nil, &CloneFailure{Kind: types.CloneNetwork, Err: err}
		}
		defer unlock()

		repo, err := git.PlainOpen(clonePath)
		if err != nil {
			return nil, &CloneFailure{Kind: types.CloneNetwork, Err: err}
		}
		return s.handleFromRepo(normalized, clonePath, repo)
	}

	// A new clone mutates the cache, so it's serialized against every other
	// writer (another clone, an index update) at cache-root granularity.
	unlock, err := s.lock.Exclusive()
	if err != nil {
		return nil, &CloneFailure{Kind: types.CloneNetwork, Err: err}
	}
	defer unlock()

	// Another worker may have raced us to materialize the same URL before
	// the lock was granted.
	if _, err := os.Stat(sentinel); err == nil {
		repo, err := git.PlainOpen(clonePath)
		if err != nil {
			return nil, &CloneFailure{Kind: types.CloneNetwork, Err: err}
		}
		return s.handleFromRepo(normalized, clonePath, repo)
	}

	tmpDir, err := os.MkdirTemp(s.root, "clone-*")
	if err != nil {
		return nil, &CloneFailure{Kind: types.CloneNetwork, Err: fmt.Errorf("preparing temp clone dir: %w", err)}
	}
	defer os.RemoveAll(tmpDir)

	cloneCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	repo, err := git.PlainCloneContext(cloneCtx, tmpDir, true, &git.CloneOptions{
		URL:          normalized,
		NoCheckout:   true,
		SingleBranch: true,
		Depth:        0,
	})
	if err != nil {
		return nil, &CloneFailure{Kind: classifyCloneErr(err), Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(clonePath), 0o755); err != nil {
		return nil, &CloneFailure{Kind: types.CloneNetwork, Err: err}
	}
	if err := os.Rename(tmpDir, clonePath); err != nil {
		return nil, &CloneFailure{Kind: types.CloneNetwork, Err: fmt.Errorf("atomic rename into place: %w", err)}
	}
	if err := os.WriteFile(sentinel, nil, 0o644); err != nil {
		return nil, &CloneFailure{Kind: types.CloneNetwork, Err: fmt.Errorf("writing success sentinel: %w", err)}
	}

	// Re-open at the final path: the in-memory repo object still points at
	// tmpDir's now-gone location.
	repo, err = git.PlainOpen(clonePath)
	if err != nil {
		return nil, &CloneFailure{Kind: types.CloneNetwork, Err: err}
	}

	return s.handleFromRepo(normalized, clonePath, repo)
}

func classifyCloneErr(err error) types.CloneFailureKind {
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded), strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return types.CloneTimeout
	case strings.Contains(msg, "not found"), strings.Contains(msg, "404"), strings.Contains(msg, "repository not found"):
		return types.CloneNotFound
	case strings.Contains(msg, "authentication"), strings.Contains(msg, "401"), strings.Contains(msg, "403"):
		return types.CloneAuth
	default:
		return types.CloneNetwork
	}
}

func (s *Store) handleFromRepo(normalized, clonePath string, repo *git.Repository) (*types.RepoHandle, error) {
	t, err := lastCommitTime(repo)
	if err != nil {
		return nil, &CloneFailure{Kind: types.CloneNetwork, Err: err}
	}
	return &types.RepoHandle{
		NormalizedURL:  normalized,
		ClonePath:      clonePath,
		HeadCommitTime: t,
	}, nil
}

// LastCommitTime returns the committer timestamp of the default branch tip.
func LastCommitTime(handle *types.RepoHandle) (time.Time, error) {
	repo, err := git.PlainOpen(handle.ClonePath)
	if err != nil {
		return time.Time{}, fmt.Errorf("opening clone: %w", err)
	}
	return lastCommitTime(repo)
}

func lastCommitTime(repo *git.Repository) (time.Time, error) {
	head, err := repo.Head()
	if err != nil {
		return time.Time{}, fmt.Errorf("resolving HEAD: %w", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return time.Time{}, fmt.Errorf("reading HEAD commit: %w", err)
	}
	return commit.Committer.When, nil
}

// ListManifests enumerates every file named Cargo.toml in the default
// branch's tree, reading the git object database directly rather than a
// working copy (spec §4.B).
func ListManifests(handle *types.RepoHandle) ([]string, error) {
	repo, err := git.PlainOpen(handle.ClonePath)
	if err != nil {
		return nil, fmt.Errorf("opening clone: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("reading HEAD commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("reading HEAD tree: %w", err)
	}

	var manifests []string
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if err != nil {
			break
		}
		if entry.Mode.IsFile() && filepath.Base(name) == "Cargo.toml" {
			manifests = append(manifests, name)
		}
	}

	return manifests, nil
}

// ReadBlob reads a tree-relative file's content from the default branch.
func ReadBlob(handle *types.RepoHandle, treePath string) ([]byte, error) {
	repo, err := git.PlainOpen(handle.ClonePath)
	if err != nil {
		return nil, fmt.Errorf("opening clone: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("reading HEAD commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("reading HEAD tree: %w", err)
	}
	file, err := tree.File(treePath)
	if err != nil {
		return nil, fmt.Errorf("finding %s in tree: %w", treePath, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("opening blob reader for %s: %w", treePath, err)
	}
	defer reader.Close()

	content := make([]byte, 0, file.Size)
	buf := make([]byte, 32*1024)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			content = append(content, buf[:n]...)
		}
		if err != nil {
			break
		}
	}
	return content, nil
}
