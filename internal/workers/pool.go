package workers

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"golang.org/x/sync/semaphore"
)

const DefaultSize = 16

// Pool runs blocking I/O jobs on at most size goroutines at a time.
// Callers wait for their own job, so a connection that hands its frames
// to the pool one by one keeps them in order.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
	log  *slog.Logger
}

func NewPool(size int, log *slog.Logger) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
		log:  log,
	}
}

// Do runs job on a pool goroutine and waits for it to finish.
// ctx only bounds the wait for a free slot: once started, a job runs to
// completion with a context that is never cancelled.
func (p *Pool) Do(ctx context.Context, job func(ctx context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("worker job panicked", "panic", r, "stack", string(debug.Stack()))
				done <- fmt.Errorf("worker job panicked: %v", r)
			}
		}()
		done <- job(context.WithoutCancel(ctx))
	}()

	return <-done
}

// Size returns the maximum number of concurrent jobs.
func (p *Pool) Size() int {
	return int(p.size)
}
