package broadcast

import "sync"

// Distinct subscribes to src and calls fn with project(value) only when the
// projected value differs from the last one delivered. The first projection is
// always delivered.
func Distinct[S any, T comparable](src Source[S], project func(S) T, fn func(T)) (cancel func()) {
	var (
		mu   sync.Mutex
		last T
		seen bool
	)
	return src.Subscribe(func(v S) {
		p := project(v)

		mu.Lock()
		if seen && p == last {
			mu.Unlock()
			return
		}
		seen, last = true, p
		mu.Unlock()

		fn(p)
	})
}

// Chan adapts a Source into a channel. Delivery blocks the publisher when the
// buffer is full, so the consumer must keep draining until cancel is called.
func Chan[T any](src Source[T], buffer int) (<-chan T, func()) {
	ch := make(chan T, buffer)
	done := make(chan struct{})
	stop := src.Subscribe(func(v T) {
		select {
		case ch <- v:
		case <-done:
		}
	})

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			stop()
			close(done)
		})
	}
}

// SourceFunc adapts a subscribe function to a Source.
type SourceFunc[T any] func(fn func(T)) (cancel func())

func (f SourceFunc[T]) Subscribe(fn func(T)) (cancel func()) { return f(fn) }
