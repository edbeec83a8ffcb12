package service

import (
	"context"
	"fmt"
	"time"

	"github.com/devrev/histtree/internal/errors"
	"github.com/devrev/histtree/internal/util/workerpool"
)

const (
	DefaultQueueSize   = 1024
	DefaultStopTimeout = 30 * time.Second
)

// WorkerOptions configures the single worker behind a threaded wrapper
type WorkerOptions struct {
	QueueSize   int
	StopTimeout time.Duration
}

func (o *WorkerOptions) setDefaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = DefaultStopTimeout
	}
}

type result[T any] struct {
	value T
	err   error
}

// call runs fn on the pool's worker and waits for its result. Once submitted,
// fn runs even if ctx is canceled while waiting.
func call[T any](ctx context.Context, pool *workerpool.WorkerPool, id string, fn func() (T, error)) (T, error) {
	var zero T
	done := make(chan result[T], 1)

	err := pool.SubmitWithContext(ctx, workerpool.Task{
		ID: id,
		Fn: func(context.Context) error {
			r := result[T]{err: errors.InternalError(fmt.Sprintf("%s did not complete", id), nil)}
			defer func() { done <- r }()
			r.value, r.err = fn()
			return r.err
		},
	})
	if err != nil {
		return zero, err
	}

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return zero, fmt.Errorf("waiting for %s: %w", id, ctx.Err())
	}
}
