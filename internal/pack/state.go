package pack

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wfassist/tailor/internal/domain"
)

// StateFileName is the side file that records enabled/disabled state per pack
const StateFileName = "pack_state.json"

// StateStore manages the persistence of pack_state.json
type StateStore struct {
	mu       sync.RWMutex
	filePath string
	entries  map[string]domain.PackStateEntry
	now      func() time.Time
}

// NewStateStore creates a state store for the given packs directory
func NewStateStore(packsDir string) *StateStore {
	return &StateStore{
		filePath: filepath.Join(packsDir, StateFileName),
		entries:  make(map[string]domain.PackStateEntry),
		now:      time.Now,
	}
}

// Load reads the state file. A missing file yields an empty state.
func (s *StateStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		s.entries = make(map[string]domain.PackStateEntry)
		return nil
	}
	if err != nil {
		return err
	}

	entries := make(map[string]domain.PackStateEntry)
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	s.entries = entries
	return nil
}

// commitUnsafe persists next and only then makes it the in-memory state
// (caller must hold lock)
func (s *StateStore) commitUnsafe(next map[string]domain.PackStateEntry) error {
	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return err
	}

	// Atomic write using temp file
	tempPath := s.filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tempPath, s.filePath); err != nil {
		os.Remove(tempPath)
		return err
	}

	s.entries = next
	return nil
}

// cloneUnsafe copies the entries (caller must hold lock)
func (s *StateStore) cloneUnsafe() map[string]domain.PackStateEntry {
	next := make(map[string]domain.PackStateEntry, len(s.entries)+1)
	for id, entry := range s.entries {
		next[id] = entry
	}
	return next
}

// Get returns the state entry for a pack
func (s *StateStore) Get(packID string) (domain.PackStateEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[packID]
	return entry, ok
}

// IsEnabled reports whether the pack is recorded as enabled
func (s *StateStore) IsEnabled(packID string) bool {
	entry, ok := s.Get(packID)
	return ok && entry.Enabled
}

// SetEnabled records the enabled flag for a pack and persists the file
func (s *StateStore) SetEnabled(packID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.entries[packID]
	if !ok {
		entry.InstalledAt = now
	}
	entry.Enabled = enabled
	entry.LastUpdated = now

	next := s.cloneUnsafe()
	next[packID] = entry
	return s.commitUnsafe(next)
}

// MarkInstalled records a fresh install. An existing entry keeps its enabled flag.
func (s *StateStore) MarkInstalled(packID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.entries[packID]
	if !ok {
		entry = domain.PackStateEntry{Enabled: enabled}
	}
	entry.InstalledAt = now
	entry.LastUpdated = now

	next := s.cloneUnsafe()
	next[packID] = entry
	return s.commitUnsafe(next)
}

// Put writes an entry as is. Used to undo a change whose file operation failed.
func (s *StateStore) Put(packID string, entry domain.PackStateEntry, exists bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cloneUnsafe()
	if exists {
		next[packID] = entry
	} else {
		delete(next, packID)
	}
	return s.commitUnsafe(next)
}

// Remove deletes the entry for a pack
func (s *StateStore) Remove(packID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[packID]; !exists {
		return nil
	}
	next := s.cloneUnsafe()
	delete(next, packID)
	return s.commitUnsafe(next)
}

// All returns a copy of every entry
func (s *StateStore) All() map[string]domain.PackStateEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.PackStateEntry, len(s.entries))
	for id, entry := range s.entries {
		out[id] = entry
	}
	return out
}
