// Package worker bounds CPU-heavy work (rasterizing, OCR) so that concurrent
// webhook requests share a fixed number of slots.
package worker

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/semaphore"
)

type Pool struct {
	size int64
	sem  *semaphore.Weighted
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{size: int64(size), sem: semaphore.NewWeighted(int64(size))}
}

func (p *Pool) Size() int {
	return int(p.size)
}

// Do runs fn once a slot is free. Waiting for a slot honours ctx; fn itself
// runs to completion.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for worker slot: %w", err)
	}
	defer p.sem.Release(1)
	return fn()
}

// Submit is the typed form of Do.
func Submit[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}
