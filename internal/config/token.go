package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnsureAPIToken returns the bearer token protecting the management API,
// generating and persisting one under dataDir on first use. The environment
// variable BOTFORGE_API_TOKEN overrides the stored token.
func EnsureAPIToken(dataDir string) (string, error) {
	if tok := os.Getenv("BOTFORGE_API_TOKEN"); tok != "" {
		return tok, nil
	}

	path := filepath.Join(dataDir, "api_token")
	if data, err := os.ReadFile(path); err == nil {
		tok := strings.TrimSpace(string(data))
		if tok != "" {
			return tok, nil
		}
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	tok := hex.EncodeToString(buf)

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(tok+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("writing API token: %w", err)
	}
	return tok, nil
}
