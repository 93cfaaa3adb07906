package testutil

import (
	"sync"

	"favsync/internal/fav"
)

// FailingPort wraps a StoragePort and can be switched to fail writes, like
// a device whose storage quota is exhausted.
type FailingPort struct {
	inner fav.StoragePort

	mu     sync.Mutex
	setErr error
	sets   int
}

func NewFailingPort(inner fav.StoragePort) *FailingPort {
	return &FailingPort{inner: inner}
}

// FailSets makes every Set and Remove return err until called with nil.
func (p *FailingPort) FailSets(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setErr = err
}

// Sets returns the number of successful writes.
func (p *FailingPort) Sets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sets
}

func (p *FailingPort) Get(key string) ([]byte, error) {
	return p.inner.Get(key)
}

func (p *FailingPort) Set(key string, value []byte) error {
	p.mu.Lock()
	err := p.setErr
	if err == nil {
		p.sets++
	}
	p.mu.Unlock()
	if err != nil {
		return err
	}
	return p.inner.Set(key, value)
}

func (p *FailingPort) Remove(key string) error {
	p.mu.Lock()
	err := p.setErr
	p.mu.Unlock()
	if err != nil {
		return err
	}
	return p.inner.Remove(key)
}

var _ fav.StoragePort = (*FailingPort)(nil)
