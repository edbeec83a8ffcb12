package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/devrev/histtree/internal/errors"
	"github.com/devrev/histtree/internal/model"
	"github.com/devrev/histtree/internal/storage/historyfile"
	"github.com/devrev/histtree/internal/util/workerpool"
	"github.com/devrev/histtree/internal/validation"
	"go.uber.org/zap"
)

// ThreadedWriter feeds a history file writer from a single background worker.
// Inserts are queued and applied in submission order; queries wait for the
// inserts queued before them.
type ThreadedWriter struct {
	writer    *historyfile.Writer
	pool      *workerpool.WorkerPool
	validator *validation.Validator
	opts      WorkerOptions
	path      string
	logger    *zap.Logger

	// mu orders producers and guards last and closed
	mu      sync.Mutex
	last    model.Interval
	hasLast bool
	closed  bool

	// errMu guards the first failure reported by the worker
	errMu sync.Mutex
	err   error
}

// NewThreadedWriter creates the history file and starts its worker
func NewThreadedWriter(cfg *historyfile.Config, opts WorkerOptions, logger *zap.Logger) (*ThreadedWriter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.setDefaults()

	w, err := historyfile.Create(cfg, logger)
	if err != nil {
		return nil, err
	}

	tw := &ThreadedWriter{
		writer:    w,
		validator: validation.NewValidator(cfg.StartTimestamp),
		opts:      opts,
		path:      cfg.FilePath,
		logger:    logger,
	}
	tw.pool = workerpool.NewWorkerPool(&workerpool.Config{
		Name:       "writer",
		MaxWorkers: 1,
		QueueSize:  opts.QueueSize,
		Logger:     logger,
		Metrics:    cfg.Metrics,
	})

	return tw, nil
}

// Insert queues iv and returns without waiting for it to be stored. Invalid
// or out-of-order intervals are rejected immediately. Once a queued insert
// fails, that error is returned by every later Insert and by Close.
func (tw *ThreadedWriter) Insert(ctx context.Context, iv model.Interval) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.closed {
		return errors.TreeClosed(tw.path)
	}
	if err := tw.Err(); err != nil {
		return err
	}
	if err := tw.validator.ValidateInterval(iv); err != nil {
		return err
	}
	if tw.hasLast {
		if err := tw.validator.ValidateOrder(tw.last, iv); err != nil {
			return err
		}
	}

	err := tw.pool.SubmitWithContext(ctx, workerpool.Task{
		ID: "insert",
		Fn: func(context.Context) error {
			if err := tw.writer.Insert(iv); err != nil {
				tw.latch(fmt.Errorf("insert %s: %w", iv, err))
				return err
			}
			return nil
		},
	})
	if err != nil {
		return err
	}

	tw.last, tw.hasLast = iv, true
	return nil
}

// QueryAll returns every stored interval containing t once all earlier inserts are applied
func (tw *ThreadedWriter) QueryAll(ctx context.Context, t model.Timestamp) (model.Jar, error) {
	return call(ctx, tw.pool, "query_all", func() (model.Jar, error) {
		return tw.writer.QueryAll(t)
	})
}

// Query returns the most recent interval of attr containing t
func (tw *ThreadedWriter) Query(ctx context.Context, t model.Timestamp, attr model.AttributeKey) (model.Interval, bool, error) {
	type match struct {
		iv    model.Interval
		found bool
	}
	m, err := call(ctx, tw.pool, "query", func() (match, error) {
		iv, found, err := tw.writer.Query(t, attr)
		return match{iv: iv, found: found}, err
	})
	return m.iv, m.found, err
}

// Flush waits until every queued insert has been applied and returns the latched error
func (tw *ThreadedWriter) Flush(ctx context.Context) error {
	_, err := call(ctx, tw.pool, "flush", func() (struct{}, error) {
		return struct{}{}, nil
	})
	if err != nil {
		return err
	}
	return tw.Err()
}

// Close applies the queued inserts, finalizes the file at end and stops the worker
func (tw *ThreadedWriter) Close(ctx context.Context, end model.Timestamp) error {
	tw.mu.Lock()
	if tw.closed {
		tw.mu.Unlock()
		return errors.TreeClosed(tw.path)
	}
	tw.closed = true
	tw.mu.Unlock()

	_, closeErr := call(ctx, tw.pool, "close", func() (struct{}, error) {
		return struct{}{}, tw.writer.Close(end)
	})
	if err := tw.pool.Stop(tw.opts.StopTimeout); err != nil {
		tw.logger.Warn("Writer worker did not stop in time", zap.Error(err))
	}

	if err := tw.Err(); err != nil {
		return err
	}
	return closeErr
}

// Err returns the first failure reported by the worker, if any
func (tw *ThreadedWriter) Err() error {
	tw.errMu.Lock()
	defer tw.errMu.Unlock()
	return tw.err
}

// Stats returns statistics of the worker queue
func (tw *ThreadedWriter) Stats() workerpool.Stats {
	return tw.pool.Stats()
}

func (tw *ThreadedWriter) latch(err error) {
	tw.errMu.Lock()
	defer tw.errMu.Unlock()
	if tw.err == nil {
		tw.err = err
		tw.logger.Error("Asynchronous insert failed", zap.String("path", tw.path), zap.Error(err))
	}
}
