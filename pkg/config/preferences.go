package config

import "sync"

// Default preference values.
const (
	// DefaultMaxPortsToTry is how many successive ports a listener
	// tries when its requested port is taken.
	DefaultMaxPortsToTry = 10
)

// Preferences exposes the settings the protocol core consults at
// runtime. Implementations must be safe for concurrent use.
type Preferences interface {
	// BannedUsers returns the ban list as "user@host" entries.
	BannedUsers() []string

	// AddBannedUser appends an entry to the ban list. Adding an entry
	// that is already present is a no-op; the return value reports
	// whether the list changed.
	AddBannedUser(entry string) bool

	// AutoAcceptConnections reports whether inbound peers are admitted
	// without confirmation.
	AutoAcceptConnections() bool

	// TryOtherPorts reports whether a listener may probe successive
	// ports when the requested one is taken.
	TryOtherPorts() bool

	// MaxPortsToTry is the number of successive ports to probe.
	MaxPortsToTry() int
}

// MemoryStore is an in-memory Preferences implementation.
type MemoryStore struct {
	mu sync.Mutex

	banned     []string
	autoAccept bool
	otherPorts bool
	maxPorts   int
}

// NewMemoryStore creates a memory store with the given policies and an
// empty ban list.
func NewMemoryStore(autoAccept, tryOtherPorts bool) *MemoryStore {
	return &MemoryStore{
		autoAccept: autoAccept,
		otherPorts: tryOtherPorts,
		maxPorts:   DefaultMaxPortsToTry,
	}
}

// BannedUsers returns a copy of the ban list.
func (s *MemoryStore) BannedUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.banned...)
}

// AddBannedUser appends an entry if not already present.
func (s *MemoryStore) AddBannedUser(entry string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.banned {
		if b == entry {
			return false
		}
	}
	s.banned = append(s.banned, entry)
	return true
}

// AutoAcceptConnections reports the auto-accept policy.
func (s *MemoryStore) AutoAcceptConnections() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoAccept
}

// SetAutoAcceptConnections updates the auto-accept policy.
func (s *MemoryStore) SetAutoAcceptConnections(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoAccept = v
}

// TryOtherPorts reports the port search policy.
func (s *MemoryStore) TryOtherPorts() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.otherPorts
}

// MaxPortsToTry reports the port search depth.
func (s *MemoryStore) MaxPortsToTry() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxPorts <= 0 {
		return DefaultMaxPortsToTry
	}
	return s.maxPorts
}

// SetMaxPortsToTry updates the port search depth.
func (s *MemoryStore) SetMaxPortsToTry(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxPorts = n
}

// Compile-time interface satisfaction check.
var _ Preferences = (*MemoryStore)(nil)
