package localstore

import (
	"bytes"
	"sync"

	"favsync/internal/fav"
)

// MemoryPort is an in-memory StoragePort, useful for tests and for sessions
// that should not touch the disk. This implementation is safe for concurrent use.
type MemoryPort struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryPort creates an empty MemoryPort.
func NewMemoryPort() *MemoryPort {
	return &MemoryPort{data: make(map[string][]byte)}
}

func (m *MemoryPort) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return bytes.Clone(v), nil
}

func (m *MemoryPort) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = bytes.Clone(value)
	return nil
}

func (m *MemoryPort) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

// Compile-time check that MemoryPort implements fav.StoragePort
var _ fav.StoragePort = (*MemoryPort)(nil)
