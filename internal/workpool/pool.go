// Package workpool runs blocking model calls on a bounded set of workers.
package workpool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrSaturated is returned when every worker is busy and the queue is full.
var ErrSaturated = errors.New("worker pool is saturated")

// Pool admits up to workers+queueDepth tasks and runs at most workers of them
// at a time. Admission never blocks: a full pool rejects with ErrSaturated.
type Pool struct {
	workers  int64
	capacity int64

	slots    *semaphore.Weighted
	admitted *semaphore.Weighted

	running atomic.Int64
	queued  atomic.Int64
}

type Stats struct {
	Workers  int64 `json:"workers"`
	Capacity int64 `json:"capacity"`
	Running  int64 `json:"running"`
	Queued   int64 `json:"queued"`
}

func New(workers, queueDepth int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueDepth < 0 {
		queueDepth = 0
	}
	capacity := int64(workers + queueDepth)

	return &Pool{
		workers:  int64(workers),
		capacity: capacity,
		slots:    semaphore.NewWeighted(int64(workers)),
		admitted: semaphore.NewWeighted(capacity),
	}
}

func (p *Pool) Stats() Stats {
	return Stats{
		Workers:  p.workers,
		Capacity: p.capacity,
		Running:  p.running.Load(),
		Queued:   p.queued.Load(),
	}
}

// Future is the pending result of a submitted task.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Done is closed once the task has finished.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task finishes or ctx ends. Giving up does not cancel
// the task; it keeps its worker slot until it returns.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit admits fn for execution. ctx bounds the time spent waiting for a
// worker; fn itself receives a context that keeps ctx's values but is never
// cancelled by it.
func Submit[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (*Future[T], error) {
	if p == nil {
		return nil, fmt.Errorf("worker pool is nil")
	}
	if !p.admitted.TryAcquire(1) {
		return nil, ErrSaturated
	}

	future := &Future[T]{done: make(chan struct{})}
	p.queued.Add(1)

	go func() {
		defer close(future.done)
		defer p.admitted.Release(1)

		if err := p.slots.Acquire(ctx, 1); err != nil {
			p.queued.Add(-1)
			future.err = err
			return
		}
		p.queued.Add(-1)
		p.running.Add(1)
		defer func() {
			p.running.Add(-1)
			p.slots.Release(1)
		}()

		future.value, future.err = run(context.WithoutCancel(ctx), fn)
	}()

	return future, nil
}

// Do submits fn and waits for its result.
func Do[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (T, error) {
	future, err := Submit(ctx, p, fn)
	if err != nil {
		var zero T
		return zero, err
	}
	return future.Wait(ctx)
}

func run[T any](ctx context.Context, fn func(context.Context) (T, error)) (value T, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("task panicked: %v", recovered)
		}
	}()
	return fn(ctx)
}
