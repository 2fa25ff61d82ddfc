package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// fileFormat is the on-disk YAML layout of a FileStore.
type fileFormat struct {
	BannedUsers   []string `yaml:"banned_users,omitempty"`
	AutoAccept    bool     `yaml:"auto_accept_connections"`
	TryOtherPorts bool     `yaml:"try_other_ports"`
	MaxPortsToTry int      `yaml:"max_ports_to_try,omitempty"`
}

// FileStore is a Preferences implementation persisted as a YAML file.
// Mutations are written back to disk immediately.
type FileStore struct {
	path string

	mu   sync.Mutex
	data fileFormat
}

// LoadFileStore reads preferences from path. A missing file yields a
// store with defaults (auto-accept off, port search on) that will be
// created on the first mutation.
func LoadFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path: path,
		data: fileFormat{
			TryOtherPorts: true,
			MaxPortsToTry: DefaultMaxPortsToTry,
		},
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading preferences: %w", err)
	}
	if err := yaml.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parsing preferences %s: %w", path, err)
	}
	if s.data.MaxPortsToTry <= 0 {
		s.data.MaxPortsToTry = DefaultMaxPortsToTry
	}
	return s, nil
}

// save writes the current state to disk. Caller holds s.mu.
func (s *FileStore) save() error {
	raw, err := yaml.Marshal(&s.data)
	if err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating preferences directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, raw, 0644); err != nil {
		return fmt.Errorf("writing preferences: %w", err)
	}
	return nil
}

// BannedUsers returns a copy of the ban list.
func (s *FileStore) BannedUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.data.BannedUsers...)
}

// AddBannedUser appends an entry if not already present and persists
// the updated list. Persistence errors are swallowed; the in-memory
// list stays authoritative for the running process.
func (s *FileStore) AddBannedUser(entry string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.data.BannedUsers {
		if b == entry {
			return false
		}
	}
	s.data.BannedUsers = append(s.data.BannedUsers, entry)
	_ = s.save()
	return true
}

// AutoAcceptConnections reports the auto-accept policy.
func (s *FileStore) AutoAcceptConnections() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.AutoAccept
}

// SetAutoAcceptConnections updates and persists the auto-accept policy.
func (s *FileStore) SetAutoAcceptConnections(v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.AutoAccept = v
	return s.save()
}

// TryOtherPorts reports the port search policy.
func (s *FileStore) TryOtherPorts() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.TryOtherPorts
}

// MaxPortsToTry reports the port search depth.
func (s *FileStore) MaxPortsToTry() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.MaxPortsToTry
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Compile-time interface satisfaction check.
var _ Preferences = (*FileStore)(nil)
