// Package credentials stores the lum.tools platform API key used for tunnel
// mode, in the same ~/.lrok/config.toml file the lrok CLI reads.
package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	// KeyPrefix starts every valid platform API key.
	KeyPrefix = "lum_"

	// EnvAPIKey is the environment variable checked first.
	EnvAPIKey = "LUM_API_KEY"

	// EnvLegacyAPIKey is still honoured for older setups.
	EnvLegacyAPIKey = "FRP_API_KEY"

	// KeysURL is where users create keys.
	KeysURL = "https://platform.lum.tools/keys"
)

// ErrNoAPIKey is returned by Resolve when no source provides a key.
var ErrNoAPIKey = errors.New("credentials: no API key configured")

// Source says where a resolved key came from.
type Source int

const (
	SourceNone Source = iota
	SourceFlag
	SourceEnv
	SourceFile
)

func (s Source) String() string {
	switch s {
	case SourceFlag:
		return "command-line flag"
	case SourceEnv:
		return "environment variable"
	case SourceFile:
		return "config file (~/.lrok/config.toml)"
	default:
		return "none"
	}
}

// DefaultPath returns ~/.lrok/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("credentials: home directory: %w", err)
	}
	return filepath.Join(home, ".lrok", "config.toml"), nil
}

// Store reads and writes the key file. Other tables in the file are kept.
type Store struct {
	path string
}

// NewStore returns a store at path, or DefaultPath when path is empty.
func NewStore(path string) (*Store, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}
	return &Store{path: path}, nil
}

// Path returns the file location.
func (s *Store) Path() string { return s.path }

// Load returns the saved key, or "" when the file or key is absent.
func (s *Store) Load() (string, error) {
	doc, err := s.read()
	if err != nil {
		return "", err
	}
	auth, _ := doc["auth"].(map[string]any)
	key, _ := auth["api_key"].(string)
	return strings.TrimSpace(key), nil
}

// Save writes apiKey under [auth] api_key with owner-only permissions.
func (s *Store) Save(apiKey string) error {
	doc, err := s.read()
	if err != nil {
		return err
	}

	auth, _ := doc["auth"].(map[string]any)
	if auth == nil {
		auth = make(map[string]any)
	}
	auth["api_key"] = apiKey
	doc["auth"] = auth

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return fmt.Errorf("credentials: encode: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("credentials: create directory: %w", err)
	}
	if err := os.WriteFile(s.path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("credentials: write %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) read() (map[string]any, error) {
	doc := make(map[string]any)
	if _, err := toml.DecodeFile(s.path, &doc); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]any), nil
		}
		return nil, fmt.Errorf("credentials: read %s: %w", s.path, err)
	}
	return doc, nil
}

// Validate reports whether key has the platform prefix.
func Validate(key string) bool {
	return strings.HasPrefix(key, KeyPrefix)
}

// Mask shows the first 8 and last 4 characters of a key.
func Mask(key string) string {
	if len(key) <= 12 {
		return strings.Repeat("*", len(key))
	}
	return key[:8] + "..." + key[len(key)-4:]
}

// Resolver finds the key by priority: flag, environment, then file.
type Resolver struct {
	Store  *Store
	Getenv func(string) string
}

// NewResolver uses the process environment.
func NewResolver(store *Store) *Resolver {
	return &Resolver{Store: store, Getenv: os.Getenv}
}

// Resolve returns the first key found, or ErrNoAPIKey.
func (r *Resolver) Resolve(flagKey string) (string, Source, error) {
	if key := strings.TrimSpace(flagKey); key != "" {
		return key, SourceFlag, nil
	}

	getenv := r.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	for _, name := range []string{EnvAPIKey, EnvLegacyAPIKey} {
		if key := strings.TrimSpace(getenv(name)); key != "" {
			return key, SourceEnv, nil
		}
	}

	if r.Store != nil {
		key, err := r.Store.Load()
		if err != nil {
			return "", SourceNone, err
		}
		if key != "" {
			return key, SourceFile, nil
		}
	}
	return "", SourceNone, ErrNoAPIKey
}
