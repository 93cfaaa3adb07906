package localstore

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"favsync/internal/fav"
	"favsync/internal/model"
)

// StorageKey is the single key the favorites list lives under.
const StorageKey = "favorites-store"

// Store is the device-local favorites list, JSON-encoded under StorageKey:
//
//	[{"itemId":"52772","addedAt":"2024-01-15T10:30:00Z"}, ...]
//
// Each method reads, modifies and writes the list inside one critical
// section. The lock is per process; other processes sharing the same port are
// not excluded.
type Store struct {
	mu     sync.Mutex
	port   fav.StoragePort
	logger fav.Logger
}

// NewStore creates a Store on top of port.
func NewStore(port fav.StoragePort, logger fav.Logger) *Store {
	if logger == nil {
		logger = fav.NewNopLogger()
	}
	return &Store{port: port, logger: logger}
}

// Load returns the stored records, oldest first.
func (s *Store) Load() ([]model.LocalFavoriteRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Append adds rec unless its item is already stored.
func (s *Store) Append(rec model.LocalFavoriteRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return false, err
	}
	if slices.ContainsFunc(records, func(r model.LocalFavoriteRecord) bool { return r.ItemID == rec.ItemID }) {
		return false, nil
	}
	if err := s.write(append(records, rec)); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveByItemID deletes every record for itemID.
func (s *Store) RemoveByItemID(itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}
	kept := slices.DeleteFunc(records, func(r model.LocalFavoriteRecord) bool { return r.ItemID == itemID })
	return s.write(kept)
}

// Clear removes the stored list.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.port.Remove(StorageKey); err != nil {
		return fmt.Errorf("clearing local favorites: %w", err)
	}
	return nil
}

// read must be called with s.mu held.
func (s *Store) read() ([]model.LocalFavoriteRecord, error) {
	data, err := s.port.Get(StorageKey)
	if err != nil {
		return nil, fmt.Errorf("reading local favorites: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var records []model.LocalFavoriteRecord
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Warn("local favorites are malformed, treating as empty", "key", StorageKey, "error", err)
		return nil, nil
	}
	return records, nil
}

// write must be called with s.mu held.
func (s *Store) write(records []model.LocalFavoriteRecord) error {
	if records == nil {
		records = []model.LocalFavoriteRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encoding local favorites: %w", err)
	}
	if err := s.port.Set(StorageKey, data); err != nil {
		return fmt.Errorf("writing local favorites: %w", err)
	}
	return nil
}

// Compile-time check that Store implements fav.LocalStore
var _ fav.LocalStore = (*Store)(nil)
