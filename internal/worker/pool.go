// Package worker runs CPU heavy jobs on a bounded number of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"
)

// ErrPanic is returned by Run when the job panicked.
var ErrPanic = errors.New("job panicked")

// Pool limits the number of jobs that run at the same time.
type Pool struct {
	sem      *semaphore.Weighted
	wg       sync.WaitGroup
	inFlight prometheus.Gauge
}

// NewPool creates a pool that runs at most size jobs concurrently.
// inFlight is optional and tracks the number of running jobs.
func NewPool(size int, inFlight prometheus.Gauge) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool size must be at least 1, got %d", size)
	}

	return &Pool{
		sem:      semaphore.NewWeighted(int64(size)),
		inFlight: inFlight,
	}, nil
}

type result[T any] struct {
	val T
	err error
}

// Run runs fn on the pool and waits for its result.
//
// Run blocks until a slot is available or ctx is done. Once fn has started it
// always runs to completion. If ctx is done before fn returns, Run returns
// ctx.Err() and the result of fn is discarded.
func Run[T any](ctx context.Context, p *Pool, fn func() T) (T, error) {
	var zero T

	err := p.sem.Acquire(ctx, 1)
	if err != nil {
		return zero, err
	}

	p.wg.Add(1)
	if p.inFlight != nil {
		p.inFlight.Inc()
	}

	// Buffered so the job never blocks when nobody is listening anymore.
	resC := make(chan result[T], 1)

	go func() {
		defer func() {
			if p.inFlight != nil {
				p.inFlight.Dec()
			}
			p.sem.Release(1)
			p.wg.Done()
		}()

		defer func() {
			if r := recover(); r != nil {
				resC <- result[T]{err: fmt.Errorf("%w: %v", ErrPanic, r)}
			}
		}()

		resC <- result[T]{val: fn()}
	}()

	select {
	case res := <-resC:
		return res.val, res.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Wait blocks until all started jobs, including detached ones, have finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}
