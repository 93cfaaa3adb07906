package broadcast

import (
	"context"
	"errors"
	"sync"
)

// ErrDispatcherClosed is returned by Flush after Close.
var ErrDispatcherClosed = errors.New("broadcast: dispatcher closed")

// Dispatcher runs posted functions one at a time, in posting order, on its own
// goroutine. Post never blocks, so a producer holding a lock or running on a
// work lane can hand notifications off without waiting for the consumers.
//
// Functions may Post to the same Dispatcher. They must not call Flush or Close
// on it.
type Dispatcher struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []func()
	closed  bool
	done    chan struct{}
}

// NewDispatcher starts a Dispatcher.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// Post queues fn. It reports false when the Dispatcher is closed.
func (d *Dispatcher) Post(fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.pending = append(d.pending, fn)
	d.cond.Signal()
	return true
}

// Flush waits until everything posted before the call has run.
func (d *Dispatcher) Flush(ctx context.Context) error {
	reached := make(chan struct{})
	if !d.Post(func() { close(reached) }) {
		return ErrDispatcherClosed
	}
	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work, runs what is already queued, and waits for the
// goroutine to exit. It is idempotent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Signal()
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.pending) == 0 && !d.closed {
			d.cond.Wait()
		}
		batch := d.pending
		d.pending = nil
		closed := d.closed
		d.mu.Unlock()

		for _, fn := range batch {
			call(fn)
		}
		if closed && len(batch) == 0 {
			return
		}
	}
}

// call runs fn, keeping the goroutine alive if a consumer panics.
func call(fn func()) {
	defer func() { _ = recover() }()
	fn()
}
