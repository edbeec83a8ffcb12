package service

import (
	"context"
	"sync"

	"github.com/devrev/histtree/internal/errors"
	"github.com/devrev/histtree/internal/model"
	"github.com/devrev/histtree/internal/storage/historyfile"
	"github.com/devrev/histtree/internal/storage/nodecache"
	"github.com/devrev/histtree/internal/util/workerpool"
	"go.uber.org/zap"
)

// ThreadedReader serves queries over a closed history file from a single
// background worker, so any number of goroutines may query it
type ThreadedReader struct {
	reader *historyfile.Reader
	pool   *workerpool.WorkerPool
	opts   WorkerOptions
	meta   model.TreeMetadata
	logger *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewThreadedReader opens the history file and starts its worker
func NewThreadedReader(cfg *historyfile.Config, opts WorkerOptions, logger *zap.Logger) (*ThreadedReader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.setDefaults()

	r, err := historyfile.Open(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &ThreadedReader{
		reader: r,
		opts:   opts,
		meta:   r.Metadata(),
		logger: logger,
		pool: workerpool.NewWorkerPool(&workerpool.Config{
			Name:       "reader",
			MaxWorkers: 1,
			QueueSize:  opts.QueueSize,
			Logger:     logger,
			Metrics:    cfg.Metrics,
		}),
	}, nil
}

// QueryAll returns every interval containing t
func (tr *ThreadedReader) QueryAll(ctx context.Context, t model.Timestamp) (model.Jar, error) {
	return call(ctx, tr.pool, "query_all", func() (model.Jar, error) {
		return tr.reader.QueryAll(t)
	})
}

// Query returns the most recent interval of attr containing t
func (tr *ThreadedReader) Query(ctx context.Context, t model.Timestamp, attr model.AttributeKey) (model.Interval, bool, error) {
	type match struct {
		iv    model.Interval
		found bool
	}
	m, err := call(ctx, tr.pool, "query", func() (match, error) {
		iv, found, err := tr.reader.Query(t, attr)
		return match{iv: iv, found: found}, err
	})
	return m.iv, m.found, err
}

// QueryAttributes returns the intervals containing t grouped by attribute
func (tr *ThreadedReader) QueryAttributes(ctx context.Context, t model.Timestamp) (map[model.AttributeKey][]model.Interval, error) {
	return call(ctx, tr.pool, "query_attributes", func() (map[model.AttributeKey][]model.Interval, error) {
		return tr.reader.QueryAttributes(t)
	})
}

// Inspect returns a summary of every node
func (tr *ThreadedReader) Inspect(ctx context.Context) ([]model.NodeSummary, error) {
	return call(ctx, tr.pool, "inspect", func() ([]model.NodeSummary, error) {
		return tr.reader.Inspect()
	})
}

// CacheStats returns statistics of the node cache
func (tr *ThreadedReader) CacheStats(ctx context.Context) (nodecache.Stats, error) {
	return call(ctx, tr.pool, "cache_stats", func() (nodecache.Stats, error) {
		return tr.reader.CacheStats(), nil
	})
}

// Metadata describes the opened file
func (tr *ThreadedReader) Metadata() model.TreeMetadata {
	return tr.meta
}

// QueueDepth returns the number of queries waiting for the worker
func (tr *ThreadedReader) QueueDepth() int {
	return tr.pool.Stats().QueuedTasks
}

// Close answers the queued queries, then closes the file
func (tr *ThreadedReader) Close() error {
	tr.closeOnce.Do(func() {
		if err := tr.pool.Stop(tr.opts.StopTimeout); err != nil {
			tr.closeErr = errors.Unavailable("reader worker did not stop in time", err)
			tr.logger.Warn("Reader worker did not stop in time", zap.Error(err))
			return
		}
		tr.closeErr = tr.reader.Close()
	})
	return tr.closeErr
}
