package reposvc

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"https unchanged", "https://github.com/user/repo", "https://github.com/user/repo"},
		{"trailing slash stripped", "https://github.com/user/repo/", "https://github.com/user/repo"},
		{"dot-git suffix stripped", "https://github.com/user/repo.git", "https://github.com/user/repo"},
		{"git scheme rewritten", "git://github.com/user/repo", "https://github.com/user/repo"},
		{"ssh shorthand rewritten", "git@github.com:user/repo.git", "https://github.com/user/repo"},
		{"host lowercased", "https://GitHub.com/user/repo", "https://github.com/user/repo"},
		{"combination", "git://GitHub.com/user/repo.git/", "https://github.com/user/repo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStore_ClonePath_SharesStorageForEquivalentURLs(t *testing.T) {
	s := New(t.TempDir())

	equivalent := []string{
		"https://github.com/user/repo",
		"https://github.com/user/repo.git",
		"https://github.com/user/repo/",
		"git://github.com/user/repo",
		"git@github.com:user/repo.git",
	}

	want := s.ClonePath(Normalize(equivalent[0]))
	for _, u := range equivalent[1:] {
		if got := s.ClonePath(Normalize(u)); got != want {
			t.Errorf("ClonePath(Normalize(%q)) = %q, want %q (shared storage)", u, got, want)
		}
	}
}

func TestStore_ClonePath_DiffersForDistinctURLs(t *testing.T) {
	s := New(t.TempDir())

	a := s.ClonePath(Normalize("https://github.com/user/repo-a"))
	b := s.ClonePath(Normalize("https://github.com/user/repo-b"))
	if a == b {
		t.Error("expected distinct clone paths for distinct repositories")
	}
}
