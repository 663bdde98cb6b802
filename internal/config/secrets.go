package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// secretsFilePath returns the location of the local secrets file. Secrets are
// kept out of config.json so `config show` never prints them.
func secretsFilePath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "twind", "secrets.json")
}

// SecretStore reads and writes secrets by service and account.
type SecretStore interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// secretsReader is the file-backed SecretStore.
type secretsReader struct {
	path string
}

// NewSecretStore returns the file-backed secret store.
func NewSecretStore() SecretStore {
	return secretsReader{}
}

func (s secretsReader) file() string {
	if s.path != "" {
		return s.path
	}
	return secretsFilePath()
}

func (s secretsReader) Get(service, account string) (string, error) {
	data, err := os.ReadFile(s.file())
	if err != nil {
		return "", fmt.Errorf("secrets not available: %w", err)
	}
	var secrets map[string]map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return "", fmt.Errorf("parsing secrets file: %w", err)
	}
	svc, ok := secrets[service]
	if !ok {
		return "", fmt.Errorf("service %q not found", service)
	}
	val, ok := svc[account]
	if !ok {
		return "", fmt.Errorf("account %q not found in service %q", account, service)
	}
	return strings.TrimSpace(val), nil
}

func (s secretsReader) Set(service, account, value string) error {
	p := s.file()

	var secrets map[string]map[string]string
	data, err := os.ReadFile(p)
	switch {
	case err == nil:
		// A corrupt file is left alone; rewriting it would drop the other secrets.
		if err := json.Unmarshal(data, &secrets); err != nil {
			return fmt.Errorf("parsing secrets file %s: %w", p, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("reading secrets file: %w", err)
	}
	if secrets == nil {
		secrets = make(map[string]map[string]string)
	}
	if secrets[service] == nil {
		secrets[service] = make(map[string]string)
	}
	secrets[service][account] = value

	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, out, 0o600)
}

// GetAPIToken returns the bearer token protecting management endpoints,
// generating and persisting a new random token on first use.
func GetAPIToken(store SecretStore) (string, error) {
	if tok := os.Getenv("TWIND_API_TOKEN"); tok != "" {
		return tok, nil
	}
	if tok, err := store.Get("twind", "api_token"); err == nil && tok != "" {
		return tok, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api token: %w", err)
	}
	tok := hex.EncodeToString(buf)
	if err := store.Set("twind", "api_token", tok); err != nil {
		return "", fmt.Errorf("storing api token: %w", err)
	}
	return tok, nil
}
