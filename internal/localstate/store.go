package localstate

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

type entry struct {
	Value   json.RawMessage `json:"value"`
	SavedAt int64           `json:"saved_at"` // Unix milliseconds
}

type fileState struct {
	Entries map[string]entry `json:"entries"`
}

// Store is the durable key/value side-channel for operator preferences and
// cached selections. Reads are best-effort: a corrupt or expired entry is a
// miss, and a failed write never surfaces to the caller.
type Store struct {
	path  string
	mu    sync.RWMutex
	state fileState
	now   func() time.Time
}

// NewStore loads (or creates) the state file under dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	s := &Store{
		path:  filepath.Join(dir, "state.json"),
		state: fileState{Entries: make(map[string]entry)},
		now:   time.Now,
	}
	s.load()
	return s, nil
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Failed to read state file, starting fresh", "path", s.path, "error", err)
		}
		return
	}
	if len(data) == 0 {
		return
	}

	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		slog.Warn("Failed to parse state file, starting fresh", "path", s.path, "error", err)
		return
	}
	if state.Entries == nil {
		state.Entries = make(map[string]entry)
	}
	s.state = state
}

func (s *Store) save() {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		slog.Warn("Failed to encode state file", "path", s.path, "error", err)
		return
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		slog.Warn("Failed to write state file", "path", s.path, "error", err)
	}
}

// Put stores value under key. Encoding or write failures are logged and
// swallowed; persistence is an optimization, never a requirement.
func (s *Store) Put(key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		slog.Warn("Failed to encode state entry", "key", key, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Entries[key] = entry{Value: raw, SavedAt: s.now().UnixMilli()}
	s.save()
}

// Get decodes the entry under key into out. A missing, expired (per ttl,
// measured from write time; ttl <= 0 never expires), or undecodable entry
// reads as a miss.
func (s *Store) Get(key string, ttl time.Duration, out any) bool {
	s.mu.RLock()
	e, ok := s.state.Entries[key]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	if ttl > 0 {
		age := s.now().Sub(time.UnixMilli(e.SavedAt))
		if age < 0 || age > ttl {
			return false
		}
	}

	if err := json.Unmarshal(e.Value, out); err != nil {
		slog.Warn("Failed to decode state entry, treating as miss", "key", key, "error", err)
		return false
	}
	return true
}

// SavedAt returns the write time of the entry under key.
func (s *Store) SavedAt(key string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.state.Entries[key]
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(e.SavedAt), true
}

// Delete removes the entry under key.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.Entries[key]; !ok {
		return
	}
	delete(s.state.Entries, key)
	s.save()
}

// DeletePrefix removes every entry whose key starts with prefix.
func (s *Store) DeletePrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for k := range s.state.Entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(s.state.Entries, k)
			count++
		}
	}
	if count > 0 {
		s.save()
	}
	return count
}
