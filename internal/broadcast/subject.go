// Package broadcast provides explicitly owned observer registries.
//
// A Subject holds one value and invokes subscriber callbacks synchronously on
// every Publish. Publishes and subscriptions are serialized, so a subscriber
// observes every published value exactly once and in order, starting with the
// value current at the time it subscribed (when replay is enabled).
//
// Callbacks must not call Publish or Subscribe on the Subject that is
// invoking them. Cancelling a subscription from inside a callback is allowed.
package broadcast

import (
	"sync"
	"sync/atomic"
)

// Source is anything that can be subscribed to with a callback.
type Source[T any] interface {
	Subscribe(fn func(T)) (cancel func())
}

type subscriber[T any] struct {
	fn     func(T)
	active atomic.Bool
}

// Subject is a broadcast channel with optional replay of the latest value.
type Subject[T any] struct {
	pubMu sync.Mutex // serializes Publish and Subscribe delivery

	mu     sync.Mutex // guards the fields below
	subs   map[uint64]*subscriber[T]
	nextID uint64
	latest T
	has    bool
	replay bool
}

// New creates a Subject that replays the latest value (initially initial) to
// new subscribers.
func New[T any](initial T) *Subject[T] {
	return &Subject[T]{
		subs:   make(map[uint64]*subscriber[T]),
		latest: initial,
		has:    true,
		replay: true,
	}
}

// NewFeed creates a Subject that only delivers values published after the
// subscription was made.
func NewFeed[T any]() *Subject[T] {
	return &Subject[T]{
		subs: make(map[uint64]*subscriber[T]),
	}
}

// Subscribe registers fn. When the subject replays, fn is called with the
// current value before Subscribe returns.
func (s *Subject[T]) Subscribe(fn func(T)) (cancel func()) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	sub := &subscriber[T]{fn: fn}
	sub.active.Store(true)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	latest, has := s.latest, s.has && s.replay
	s.mu.Unlock()

	if has {
		fn(latest)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.active.Store(false)
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Publish replaces the current value and delivers it to every subscriber.
func (s *Subject[T]) Publish(v T) {
	s.Update(func(T) T { return v })
}

// Update atomically derives the next value from the current one and publishes
// it. Concurrent Updates never lose each other's changes.
func (s *Subject[T]) Update(next func(T) T) T {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	v := next(s.latest)
	s.latest = v
	s.has = true
	subs := make([]*subscriber[T], 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		if sub.active.Load() {
			sub.fn(v)
		}
	}
	return v
}

// Latest returns the current value. It is safe to call from a callback.
func (s *Subject[T]) Latest() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Len returns the number of active subscribers.
func (s *Subject[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
