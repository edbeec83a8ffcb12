package historyfile

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/devrev/histtree/internal/errors"
	"github.com/devrev/histtree/internal/metrics"
	"github.com/devrev/histtree/internal/model"
	"github.com/devrev/histtree/internal/storage/node"
	"github.com/devrev/histtree/internal/storage/nodecache"
	"go.uber.org/zap"
)

// Reader answers queries over a closed history file. Nodes are fetched on
// demand through an LRU node cache. A Reader is not safe for concurrent use.
type Reader struct {
	path     string
	header   Header
	blocks   *blockFile
	cache    *nodecache.Cache
	logger   *zap.Logger
	metrics  *metrics.Metrics
	openedAt time.Time
	closed   bool
}

// Open opens a history file read-only and validates its header
func Open(cfg *Config, logger *zap.Logger) (*Reader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FilePath == "" {
		return nil, errors.InvalidArgument("history file path is required", nil)
	}
	capacity := cfg.CacheCapacity
	if capacity == 0 {
		capacity = DefaultCacheCapacity
	}

	file, err := os.Open(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}

	block := make([]byte, HeaderSize)
	if _, err := io.ReadFull(file, block); err != nil {
		file.Close()
		return nil, errors.MalformedHeader("failed to read header block", err)
	}
	header, err := DecodeHeader(block)
	if err != nil {
		file.Close()
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat history file: %w", err)
	}
	if want := NodeOffset(header.NodeCount, int(header.BlockSize)); info.Size() < want {
		file.Close()
		return nil, errors.MalformedHeader(
			fmt.Sprintf("file is %d bytes, header describes %d", info.Size(), want), nil)
	}

	r := &Reader{
		path:     cfg.FilePath,
		header:   header,
		logger:   logger,
		metrics:  cfg.Metrics,
		openedAt: time.Now(),
	}
	r.blocks = &blockFile{file: file, layout: header.layout(), metrics: cfg.Metrics}

	r.cache, err = nodecache.New(capacity, r.loadNode, logger, cfg.Metrics)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.metrics.UpdateTreeShape(int(header.Height), header.NodeCount)

	logger.Info("Opened history file",
		zap.String("path", cfg.FilePath),
		zap.Uint32("nodes", header.NodeCount),
		zap.Uint32("root_seq", header.RootSeq),
		zap.Uint32("block_size", header.BlockSize),
		zap.Int64("start", header.Start),
		zap.Int64("end", header.End))

	return r, nil
}

// QueryAll returns every interval containing t, in root-to-leaf visitation order.
// Timestamps outside the tree's range yield an empty jar.
func (r *Reader) QueryAll(t model.Timestamp) (model.Jar, error) {
	if r.closed {
		return nil, errors.TreeClosed(r.path)
	}
	if !r.inRange(t) {
		r.metrics.RecordQuery(queryKindAll, 0, 0)
		return nil, nil
	}

	start := time.Now()
	jar, err := collectAll(r, t)
	if err != nil {
		r.logger.Error("Query failed", zap.Int64("t", t), zap.Error(err))
		return nil, err
	}
	r.metrics.RecordQuery(queryKindAll, time.Since(start).Seconds(), jar.Len())
	return jar, nil
}

// Query returns the interval of attr containing t with the greatest start.
// The boolean is false when no interval matches.
func (r *Reader) Query(t model.Timestamp, attr model.AttributeKey) (model.Interval, bool, error) {
	if r.closed {
		return model.Interval{}, false, errors.TreeClosed(r.path)
	}
	if !r.inRange(t) {
		r.metrics.RecordQuery(queryKindSingle, 0, 0)
		return model.Interval{}, false, nil
	}

	start := time.Now()
	iv, found, err := collectOne(r, t, attr)
	if err != nil {
		r.logger.Error("Query failed", zap.Int64("t", t), zap.Uint32("attribute", attr), zap.Error(err))
		return model.Interval{}, false, err
	}
	results := 0
	if found {
		results = 1
	}
	r.metrics.RecordQuery(queryKindSingle, time.Since(start).Seconds(), results)
	return iv, found, nil
}

// QueryAttributes returns the intervals containing t grouped by attribute
func (r *Reader) QueryAttributes(t model.Timestamp) (map[model.AttributeKey][]model.Interval, error) {
	if r.closed {
		return nil, errors.TreeClosed(r.path)
	}
	if !r.inRange(t) {
		return map[model.AttributeKey][]model.Interval{}, nil
	}

	start := time.Now()
	out, err := collectByAttribute(r, t)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, ivs := range out {
		total += len(ivs)
	}
	r.metrics.RecordQuery(queryKindAttributes, time.Since(start).Seconds(), total)
	return out, nil
}

// Inspect returns a summary of every node in sequence order
func (r *Reader) Inspect() ([]model.NodeSummary, error) {
	if r.closed {
		return nil, errors.TreeClosed(r.path)
	}
	out := make([]model.NodeSummary, 0, r.header.NodeCount)
	for seq := uint32(0); seq < r.header.NodeCount; seq++ {
		n, err := r.cache.Get(seq)
		if err != nil {
			return nil, err
		}
		out = append(out, n.Summary())
	}
	return out, nil
}

// Metadata describes the opened file
func (r *Reader) Metadata() model.TreeMetadata {
	return model.TreeMetadata{
		FilePath:    r.path,
		BlockSize:   r.header.BlockSize,
		MaxChildren: r.header.MaxChildren,
		NodeCount:   r.header.NodeCount,
		RootSeq:     r.header.RootSeq,
		Start:       r.header.Start,
		End:         r.header.End,
		OpenedAt:    r.openedAt,
	}
}

// Header returns the parsed file header
func (r *Reader) Header() Header {
	return r.header
}

// CacheStats returns statistics of the node cache
func (r *Reader) CacheStats() nodecache.Stats {
	return r.cache.Stats()
}

// Close releases the file and drops cached nodes
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.cache.Purge()
	if err := r.blocks.file.Close(); err != nil {
		return fmt.Errorf("failed to close history file: %w", err)
	}
	r.logger.Info("Closed history file reader", zap.String("path", r.path))
	return nil
}

func (r *Reader) inRange(t model.Timestamp) bool {
	return t >= r.header.Start && t <= r.header.End
}

func (r *Reader) rootNode() (*node.Node, error) {
	return r.cache.Get(r.header.RootSeq)
}

func (r *Reader) nodeAt(seq uint32) (*node.Node, error) {
	return r.cache.Get(seq)
}

func (r *Reader) loadNode(seq uint32) (*node.Node, error) {
	return r.blocks.readNode(seq, r.header.NodeCount)
}
