package remote

import (
	"context"
	"slices"
	"sync"

	"favsync/internal/fav"
	"favsync/internal/model"
)

// MemoryStore is an in-memory implementation of fav.RemoteStore.
// It enforces one record per (owner, item) and is safe for concurrent use.
type MemoryStore struct {
	ids    fav.IDGenerator
	owners map[string][]model.FavoriteRecord // owner -> records in insertion order
	mu     sync.RWMutex
}

// NewMemoryStore creates an empty store. ids defaults to random UUIDs.
func NewMemoryStore(ids fav.IDGenerator) *MemoryStore {
	if ids == nil {
		ids = fav.UUIDGenerator{}
	}
	return &MemoryStore{
		ids:    ids,
		owners: make(map[string][]model.FavoriteRecord),
	}
}

// List returns the owner's records, newest first.
func (m *MemoryStore) List(_ context.Context, ownerID string) ([]model.FavoriteRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := slices.Clone(m.owners[ownerID])
	sortNewestFirst(records)
	if records == nil {
		records = []model.FavoriteRecord{}
	}
	return records, nil
}

// Put creates rec unless the owner already has a record for rec.ItemID.
func (m *MemoryStore) Put(_ context.Context, rec model.FavoriteRecord) (model.FavoriteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.putLocked(rec.OwnerID, rec), nil
}

// Commit applies deletes and then puts while holding the write lock.
func (m *MemoryStore) Commit(_ context.Context, ownerID string, b fav.Batch) ([]model.FavoriteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, itemID := range b.DeleteItemIDs {
		m.owners[ownerID] = slices.DeleteFunc(m.owners[ownerID], func(r model.FavoriteRecord) bool {
			return r.ItemID == itemID
		})
	}

	stored := make([]model.FavoriteRecord, 0, len(b.Puts))
	for _, rec := range b.Puts {
		stored = append(stored, m.putLocked(ownerID, rec))
	}
	return stored, nil
}

// Len returns the number of records held for ownerID.
func (m *MemoryStore) Len(ownerID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.owners[ownerID])
}

func (m *MemoryStore) putLocked(ownerID string, rec model.FavoriteRecord) model.FavoriteRecord {
	for _, existing := range m.owners[ownerID] {
		if existing.ItemID == rec.ItemID {
			return existing
		}
	}
	rec.OwnerID = ownerID
	rec.ID = m.ids.New()
	m.owners[ownerID] = append(m.owners[ownerID], rec)
	return rec
}

func sortNewestFirst(records []model.FavoriteRecord) {
	slices.SortStableFunc(records, func(a, b model.FavoriteRecord) int {
		return b.AddedAt.Compare(a.AddedAt)
	})
}

// Compile-time check that MemoryStore implements fav.RemoteStore
var _ fav.RemoteStore = (*MemoryStore)(nil)
