// Package tokensrc resolves the GitHub token that powers the Archival
// Oracle and implements --save-token, generalizing the teacher's single
// PAT-environment-variable fallback into the two-source precedence of
// spec §6.
package tokensrc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	envTokenPath = "GITHUB_TOKEN_PATH"
	envToken     = "GITHUB_TOKEN"
	configDir    = "cargo-unmaintained"
	tokenFile    = "token"
)

// Discover resolves the GitHub token per spec §6: GITHUB_TOKEN_PATH (a file
// containing the token) is preferred, GITHUB_TOKEN (the literal value) is a
// fallback, and an empty string means the Archival Oracle runs disabled. If
// neither environment variable is set, the token saved by --save-token is
// used as a last resort.
func Discover() string {
	if path := os.Getenv(envTokenPath); path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	if tok := os.Getenv(envToken); tok != "" {
		return tok
	}

	if path, err := savedTokenPath(); err == nil {
		if data, err := os.ReadFile(path); err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	return ""
}

// Save persists token to the per-user config directory with 0600
// permissions, for later discovery by Discover.
func Save(token string) error {
	path, err := savedTokenPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("preparing token config dir: %w", err)
	}
	return os.WriteFile(path, []byte(strings.TrimSpace(token)+"\n"), 0o600)
}

func savedTokenPath() (string, error) {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, configDir, tokenFile), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", configDir, tokenFile), nil
}
