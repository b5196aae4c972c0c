// Package archival implements the Archival Oracle (spec §4.C): a tri-state
// "is this repository archived?" check, restricted to GitHub-hosted
// repositories and gated on an optional token. It adapts the teacher's
// go-github client wiring and the archived-bit lookup prototyped (but never
// wired in) in the teacher's scan package.
package archival

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/github"
	"golang.org/x/oauth2"
)

// Status is the tri-state result of an archival check.
type Status int

const (
	Unknown Status = iota
	Yes
	No
)

func (s Status) String() string {
	switch s {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "unknown"
	}
}

// Oracle answers archived(url) queries against the GitHub REST API.
// A zero-value Oracle (no token) always returns Unknown, matching spec §6:
// "if neither [env var] is set, the Archival Oracle is disabled."
type Oracle struct {
	client *github.Client
}

// New returns an Oracle. An empty token disables the oracle outright rather
// than erroring, since the Archival Oracle is explicitly optional (spec
// §4.C: "optional, token-gated").
func New(token string) *Oracle {
	if token == "" {
		return &Oracle{}
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)
	return &Oracle{client: github.NewClient(tc)}
}

// Archived implements §4.C's contract exactly: non-GitHub hosts and
// network/auth failures both resolve to Unknown, never Yes — the classifier
// must never conclude "unmaintained" on the absence of positive evidence
// (spec §7).
func (o *Oracle) Archived(ctx context.Context, repoURL string) Status {
	if o.client == nil {
		return Unknown
	}

	owner, repo, ok := githubOwnerRepo(repoURL)
	if !ok {
		return Unknown
	}

	reqCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	repository, resp, err := o.client.Repositories.Get(reqCtx, owner, repo)
	if err != nil {
		// Per spec §7: CloneFailed{Network|Auth}/ApiError -> warn, treat as
		// Unknown. A 404 here is not RepositoryMissing (that's decided by
		// the git clone in rule 3, not this lookup) so it also degrades to
		// Unknown rather than being reinterpreted as a verdict.
		slog.Warn("archival check failed", "url", repoURL, "err", err)
		return Unknown
	}
	if resp != nil && resp.StatusCode >= 400 {
		return Unknown
	}
	if repository == nil {
		return Unknown
	}
	if repository.GetArchived() {
		return Yes
	}
	return No
}

// githubOwnerRepo extracts (owner, repo) from a normalized repository URL,
// reporting ok=false for any non-github.com host.
func githubOwnerRepo(repoURL string) (owner, repo string, ok bool) {
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", "", false
	}
	if !strings.EqualFold(u.Host, "github.com") {
		return "", "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return "", "", false
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), true
}

var errNoToken = errors.New("archival oracle disabled: no token configured")

// Err is exposed for callers that want to distinguish "disabled" from a
// genuine Unknown verdict when logging, without changing the classifier's
// contract (which only ever sees the Status).
func (o *Oracle) Err() error {
	if o.client == nil {
		return errNoToken
	}
	return nil
}
