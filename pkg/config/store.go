package config

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

const fileVersion = "1"

// Store persists section data.
type Store interface {
	// Load reads the backing file
	Load() error

	// Save writes the backing file
	Save() error

	// GetSection returns a copy of one section's data (empty if absent)
	GetSection(sectionID string) (map[string]any, error)

	// SetSection replaces one section's data
	SetSection(sectionID string, data map[string]any) error

	// GetAll returns a copy of every section
	GetAll() (map[string]map[string]any, error)

	// SetAll replaces every section
	SetAll(data map[string]map[string]any) error
}

type fileLayout struct {
	Version  string                    `yaml:"version"`
	Sections map[string]map[string]any `yaml:"sections"`
}

// FileStore is a Store backed by a YAML file.
type FileStore struct {
	path     string
	data     map[string]map[string]any
	version  string
	modified bool
	mu       sync.RWMutex
}

// DefaultPath returns ~/.browsermcp/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".browsermcp", "config.yaml"), nil
}

// NewFileStore opens the store at path, or DefaultPath when path is empty.
// A missing file is not an error.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	store := &FileStore{
		path:    path,
		data:    make(map[string]map[string]any),
		version: fileVersion,
	}
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return store, nil
}

// Load reads the file. A missing file leaves the store empty.
func (s *FileStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.data = make(map[string]map[string]any)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var layout fileLayout
	if err := yaml.Unmarshal(raw, &layout); err != nil {
		return fmt.Errorf("failed to decode config file: %w", err)
	}

	if layout.Version != "" {
		s.version = layout.Version
	}
	s.data = layout.Sections
	if s.data == nil {
		s.data = make(map[string]map[string]any)
	}
	s.modified = false
	return nil
}

// Save writes the file atomically through a temp file and rename.
func (s *FileStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out, err := yaml.Marshal(fileLayout{Version: s.version, Sections: s.data})
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace config file: %w", err)
	}

	s.modified = false
	return nil
}

func (s *FileStore) GetSection(sectionID string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	section, ok := s.data[sectionID]
	if !ok {
		return make(map[string]any), nil
	}
	return maps.Clone(section), nil
}

func (s *FileStore) SetSection(sectionID string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sectionID] = maps.Clone(data)
	s.modified = true
	return nil
}

func (s *FileStore) GetAll() (map[string]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSections(s.data), nil
}

func (s *FileStore) SetAll(data map[string]map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = cloneSections(data)
	s.modified = true
	return nil
}

// IsModified reports unsaved changes.
func (s *FileStore) IsModified() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modified
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

func cloneSections(data map[string]map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(data))
	for id, section := range data {
		out[id] = maps.Clone(section)
	}
	return out
}
