// Package queue provides a FIFO work lane. Jobs submitted to a Runner execute
// one at a time, in submission order, on a single worker goroutine.
//
// Once a job has started it runs to completion: the submitter's context only
// bounds the wait to enqueue, and the job itself sees a context that is never
// cancelled by the submitter.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned when submitting to a stopped Runner.
var ErrClosed = errors.New("queue: runner closed")

// Job is a unit of work.
type Job func(ctx context.Context) error

type queuedJob struct {
	ctx    context.Context
	job    Job
	result chan error
}

// Runner executes jobs sequentially.
type Runner struct {
	mu     sync.RWMutex // held for reading while enqueueing, for writing by Close
	closed bool
	jobs   chan queuedJob
	wg     sync.WaitGroup
}

// NewRunner starts a runner whose queue holds up to size pending jobs.
func NewRunner(size int) *Runner {
	if size <= 0 {
		size = 64
	}
	r := &Runner{jobs: make(chan queuedJob, size)}
	r.wg.Add(1)
	go r.run()
	return r
}

// Submit enqueues job and returns a channel that receives its result.
func (r *Runner) Submit(ctx context.Context, job Job) (<-chan error, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrClosed
	}

	qj := queuedJob{ctx: ctx, job: job, result: make(chan error, 1)}
	select {
	case r.jobs <- qj:
		return qj.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Do enqueues job and waits for it to finish. Once enqueued the job is not
// abandoned: Do returns only after it has run.
func (r *Runner) Do(ctx context.Context, job Job) error {
	res, err := r.Submit(ctx, job)
	if err != nil {
		return err
	}
	return <-res
}

// Barrier waits until every job submitted before it has completed.
func (r *Runner) Barrier(ctx context.Context) error {
	return r.Do(ctx, func(context.Context) error { return nil })
}

// Close stops accepting jobs, drains the queue, and waits for the worker.
// It is idempotent.
func (r *Runner) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.jobs)
	r.mu.Unlock()

	r.wg.Wait()
	return nil
}

func (r *Runner) run() {
	defer r.wg.Done()
	for qj := range r.jobs {
		qj.result <- r.execute(qj)
	}
}

func (r *Runner) execute(qj queuedJob) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("queue: job panicked: %v", p)
		}
	}()
	return qj.job(context.WithoutCancel(qj.ctx))
}
