package archival

import "testing"

func TestGithubOwnerRepo(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantOwner string
		wantRepo  string
		wantOK    bool
	}{
		{"github url", "https://github.com/user/repo", "user", "repo", true},
		{"github url with dot-git", "https://github.com/user/repo.git", "user", "repo", true},
		{"gitlab not supported", "https://gitlab.com/user/repo", "", "", false},
		{"bare host not supported", "https://example.com/foo", "", "", false},
		{"malformed url", "://not-a-url", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, ok := githubOwnerRepo(tt.url)
			if ok != tt.wantOK || owner != tt.wantOwner || repo != tt.wantRepo {
				t.Errorf("githubOwnerRepo(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.url, owner, repo, ok, tt.wantOwner, tt.wantRepo, tt.wantOK)
			}
		})
	}
}

func TestOracle_Archived_UnknownWithoutToken(t *testing.T) {
	o := New("")
	if got := o.Archived(nil, "https://github.com/user/repo"); got != Unknown { //nolint:staticcheck // nil ctx never dereferenced: no-token path returns before any context use
		t.Errorf("Archived() = %v, want Unknown", got)
	}
}

func TestOracle_Archived_UnknownForNonGitHubHost(t *testing.T) {
	o := New("fake-token-for-unit-test")
	if got := o.Archived(nil, "https://gitlab.com/user/repo"); got != Unknown { //nolint:staticcheck // nil ctx never dereferenced: non-github path returns before any context use
		t.Errorf("Archived() = %v, want Unknown", got)
	}
}

func TestStatus_String(t *testing.T) {
	tests := []struct {
		s    Status
		want string
	}{
		{Yes, "yes"},
		{No, "no"},
		{Unknown, "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
