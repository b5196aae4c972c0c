package tokensrc

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiscover_PrefersTokenPathOverLiteral(t *testing.T) {
	tmp := t.TempDir()
	tokenFilePath := filepath.Join(tmp, "gh-token")
	if err := os.WriteFile(tokenFilePath, []byte("from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv(envTokenPath, tokenFilePath)
	t.Setenv(envToken, "from-literal")

	if got := Discover(); got != "from-file" {
		t.Errorf("Discover() = %q, want %q", got, "from-file")
	}
}

func TestDiscover_FallsBackToLiteral(t *testing.T) {
	t.Setenv(envTokenPath, "")
	t.Setenv(envToken, "from-literal")

	if got := Discover(); got != "from-literal" {
		t.Errorf("Discover() = %q, want %q", got, "from-literal")
	}
}

func TestDiscover_FallsBackToSavedToken(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv(envTokenPath, "")
	t.Setenv(envToken, "")
	t.Setenv("XDG_CONFIG_HOME", tmp)

	if err := Save("saved-token"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if got := Discover(); got != "saved-token" {
		t.Errorf("Discover() = %q, want %q", got, "saved-token")
	}
}

func TestDiscover_EmptyWhenNothingConfigured(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv(envTokenPath, "")
	t.Setenv(envToken, "")
	t.Setenv("XDG_CONFIG_HOME", tmp)

	if got := Discover(); got != "" {
		t.Errorf("Discover() = %q, want empty", got)
	}
}

func TestSave_WritesWithRestrictivePermissions(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)

	if err := Save("secret-token"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	path := filepath.Join(tmp, configDir, tokenFile)
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat saved token: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("token file perm = %o, want 0600", perm)
	}
}
