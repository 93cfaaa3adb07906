package lookup

import (
	"context"
	"sync"

	"favsync/internal/fav"
	"favsync/internal/model"
)

// MemoryLookup serves snapshots from a map. Safe for concurrent use.
type MemoryLookup struct {
	mu    sync.RWMutex
	items map[string]model.ItemSnapshot
	err   error
}

func NewMemoryLookup() *MemoryLookup {
	return &MemoryLookup{items: make(map[string]model.ItemSnapshot)}
}

// Add registers the snapshot returned for itemID.
func (m *MemoryLookup) Add(itemID string, s model.ItemSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[itemID] = s
}

// Fail makes every lookup return err until called with nil.
func (m *MemoryLookup) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MemoryLookup) GetByID(_ context.Context, itemID string) (*model.ItemSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.items[itemID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

var _ fav.ItemLookup = (*MemoryLookup)(nil)
