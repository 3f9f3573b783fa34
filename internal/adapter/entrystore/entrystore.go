package entrystore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/LaStrada/airthings2mqtt/internal/core/domain"
	"github.com/LaStrada/airthings2mqtt/internal/core/port"
)

const fileName = "entries.json"

// FileStore persists config entries as a JSON file under a state
// directory. Writes go through a temp file rename so a crash never
// leaves a truncated registry behind.
type FileStore struct {
	path    string
	mutex   sync.RWMutex
	entries map[string]domain.ConfigEntry
}

var _ port.EntryStore = (*FileStore)(nil)

// NewFileStore loads the registry from stateDir, creating the directory
// when missing.
func NewFileStore(stateDir string) (*FileStore, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create state dir")
	}
	store := &FileStore{
		path:    filepath.Join(stateDir, fileName),
		entries: map[string]domain.ConfigEntry{},
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *FileStore) load() error {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "read entry registry")
	}
	var entries []domain.ConfigEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return errors.Wrap(err, "parse entry registry")
	}
	for _, entry := range entries {
		s.entries[normalize(entry.Address)] = entry
	}
	return nil
}

func (s *FileStore) Add(entry domain.ConfigEntry) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.entries[normalize(entry.Address)] = entry
	return s.save()
}

func (s *FileStore) Remove(address string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.entries, normalize(address))
	return s.save()
}

func (s *FileStore) Has(address string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	_, ok := s.entries[normalize(address)]
	return ok
}

func (s *FileStore) List() []domain.ConfigEntry {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return sorted(s.entries)
}

func (s *FileStore) save() error {
	raw, err := json.MarshalIndent(sorted(s.entries), "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode entry registry")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errors.Wrap(err, "write entry registry")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "replace entry registry")
	}
	return nil
}

// MemoryStore keeps entries in memory only. Used in tests and as the
// registry when no state directory is configured.
type MemoryStore struct {
	mutex   sync.RWMutex
	entries map[string]domain.ConfigEntry
}

var _ port.EntryStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]domain.ConfigEntry{}}
}

func (s *MemoryStore) Add(entry domain.ConfigEntry) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.entries[normalize(entry.Address)] = entry
	return nil
}

func (s *MemoryStore) Remove(address string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.entries, normalize(address))
	return nil
}

func (s *MemoryStore) Has(address string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	_, ok := s.entries[normalize(address)]
	return ok
}

func (s *MemoryStore) List() []domain.ConfigEntry {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return sorted(s.entries)
}

func normalize(address string) string {
	return strings.ToLower(address)
}

func sorted(entries map[string]domain.ConfigEntry) []domain.ConfigEntry {
	list := make([]domain.ConfigEntry, 0, len(entries))
	for _, entry := range entries {
		list = append(list, entry)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Address < list[j].Address
	})
	return list
}
