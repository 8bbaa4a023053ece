// Package concurrent bounds fan-out work such as ingesting many documents.
package concurrent

import (
	"context"
	"errors"
	"sync"
)

const defaultWorkers = 4

// WorkerPool caps the number of functions running at once.
type WorkerPool struct {
	sem chan struct{}
}

func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = defaultWorkers
	}
	return &WorkerPool{sem: make(chan struct{}, maxWorkers)}
}

// Size reports the worker limit.
func (wp *WorkerPool) Size() int { return cap(wp.sem) }

// Do waits for a free slot and runs fn, or returns ctx.Err() if ctx ends first.
func (wp *WorkerPool) Do(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case wp.sem <- struct{}{}:
		defer func() { <-wp.sem }()
		return fn()
	}
}

// ParallelMap applies fn to every item with at most maxConcurrency calls in
// flight. Results keep item order. Every item is attempted; the returned error
// joins all failures in item order.
func ParallelMap[T, R any](ctx context.Context, items []T, fn func(context.Context, T) (R, error), maxConcurrency int) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}
	pool := NewWorkerPool(maxConcurrency)
	results := make([]R, len(items))
	errs := make([]error, len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(idx int, val T) {
			defer wg.Done()
			errs[idx] = pool.Do(ctx, func() error {
				var err error
				results[idx], err = fn(ctx, val)
				return err
			})
		}(i, item)
	}
	wg.Wait()
	return results, errors.Join(errs...)
}
