package historyfile

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/devrev/histtree/internal/errors"
	"github.com/devrev/histtree/internal/metrics"
	"github.com/devrev/histtree/internal/model"
	"github.com/devrev/histtree/internal/storage/codec"
	"github.com/devrev/histtree/internal/storage/node"
	"github.com/devrev/histtree/internal/storage/nodecache"
	"go.uber.org/zap"
)

// Writer builds a history file. Intervals must be inserted in non-decreasing
// start order. A Writer is not safe for concurrent use.
type Writer struct {
	cfg     *Config
	layout  node.Layout
	blocks  *blockFile
	cache   *nodecache.Cache
	logger  *zap.Logger
	metrics *metrics.Metrics

	// branch holds the open nodes from the root down to the deepest open node
	branch    []*node.Node
	nodeCount uint32
	lastEnd   model.Timestamp
	closed    bool
}

// Create creates a fresh history file holding a single empty leaf as root
func Create(cfg *Config, logger *zap.Logger) (*Writer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(cfg.FilePath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create history file: %w", err)
	}

	// The header block stays zeroed until Close so readers reject a partial file.
	if _, err := file.WriteAt(make([]byte, HeaderSize), 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to reserve header block: %w", err)
	}

	w := &Writer{
		cfg:     cfg,
		layout:  cfg.layout(),
		logger:  logger,
		metrics: cfg.Metrics,
		lastEnd: cfg.StartTimestamp,
	}
	w.blocks = &blockFile{file: file, layout: w.layout, metrics: cfg.Metrics}

	w.cache, err = nodecache.New(cfg.CacheCapacity, w.loadNode, logger, cfg.Metrics)
	if err != nil {
		file.Close()
		return nil, err
	}

	w.branch = []*node.Node{w.newNode(node.NoParent, 0, cfg.StartTimestamp)}
	w.metrics.UpdateTreeShape(w.Height(), w.nodeCount)

	logger.Info("Created history file",
		zap.String("path", cfg.FilePath),
		zap.Int("block_size", cfg.BlockSize),
		zap.Int("max_children", cfg.MaxChildren),
		zap.Int64("start", cfg.StartTimestamp))

	return w, nil
}

// Insert adds an interval to the tree, sealing and flushing nodes as they fill
func (w *Writer) Insert(iv model.Interval) error {
	if w.closed {
		return errors.TreeClosed(w.cfg.FilePath)
	}
	if err := w.checkInterval(iv); err != nil {
		return err
	}

	start := time.Now()
	var (
		target  *node.Node
		bubbled bool
	)
	for {
		idx := w.targetIndex(iv.Start)
		if w.branch[idx].CanAccept(iv) {
			target = w.branch[idx]
			bubbled = idx < len(w.branch)-1
			break
		}
		if lvl := w.splitLevel(idx, iv.Start); lvl > 0 {
			if err := w.split(lvl, iv.Start); err != nil {
				return err
			}
			continue
		}
		// a taller tree leaves room for a sibling at iv.Start
		if w.layout.MaxChildren > 1 && w.branch[0].Start() < iv.Start {
			w.growRoot()
			continue
		}
		if j := w.ancestorFor(idx, iv); j >= 0 {
			target = w.branch[j]
			bubbled = true
			break
		}
		w.growRoot()
	}
	if err := target.Add(iv); err != nil {
		return err
	}

	if iv.End > w.lastEnd {
		w.lastEnd = iv.End
	}
	w.metrics.RecordInsert(time.Since(start).Seconds(), bubbled)
	return nil
}

// checkInterval rejects intervals no node could ever hold
func (w *Writer) checkInterval(iv model.Interval) error {
	if iv.End < iv.Start {
		return errors.InvalidArgument(fmt.Sprintf("interval end %d precedes start %d", iv.End, iv.Start), nil)
	}
	if iv.Start < w.cfg.StartTimestamp {
		return errors.IntervalOutOfRange(iv.Start, w.cfg.StartTimestamp)
	}
	if iv.End == math.MaxInt64 {
		return errors.InvalidArgument("interval end must be below the maximum timestamp", nil)
	}
	if !iv.Type().Known() {
		return errors.UnknownIntervalType(uint8(iv.Type()))
	}
	if size, limit := codec.Size(iv), w.layout.MaxIntervalSize(); size > limit {
		return errors.IntervalTooLarge(size, limit)
	}
	return nil
}

// targetIndex returns the deepest open node whose coverage starts at or before start.
// An interval that began before the open leaf bubbles up to the first ancestor covering it.
func (w *Writer) targetIndex(start model.Timestamp) int {
	for i := len(w.branch) - 1; i > 0; i-- {
		if w.branch[i].Start() <= start {
			return i
		}
	}
	return 0
}

// splitLevel returns the deepest branch index at or above idx whose node can be
// closed in favour of a sibling starting at at, or 0 when there is none. The
// sibling needs a free slot in the parent and a start strictly after the node's.
func (w *Writer) splitLevel(idx int, at model.Timestamp) int {
	for i := idx; i > 0; i-- {
		if w.branch[i].Start() < at && w.branch[i-1].CanAcceptChild() {
			return i
		}
	}
	return 0
}

// ancestorFor returns the deepest open node above idx with room for iv, or -1
func (w *Writer) ancestorFor(idx int, iv model.Interval) int {
	for j := idx - 1; j >= 0; j-- {
		if w.branch[j].CanAccept(iv) {
			return j
		}
	}
	return -1
}

// split closes branch[idx:] at time at and opens a fresh subtree starting there.
// Intervals still running at at move up into the open ancestors so that every
// sealed node ends before its next sibling begins.
func (w *Writer) split(idx int, at model.Timestamp) error {
	var running []model.Interval
	for i := len(w.branch) - 1; i >= idx; i-- {
		evicted, err := w.branch[i].Evict(at)
		if err != nil {
			return err
		}
		running = append(running, evicted...)
	}
	if err := w.sealFrom(idx); err != nil {
		return err
	}
	parent := w.branch[idx-1]

	for _, iv := range running {
		j := w.ancestorFor(len(w.branch), iv)
		for j < 0 {
			w.growRoot()
			j = w.ancestorFor(len(w.branch), iv)
		}
		if err := w.branch[j].Add(iv); err != nil {
			return err
		}
	}
	if len(running) > 0 {
		w.logger.Debug("Moved running intervals to ancestors",
			zap.Int64("split", at),
			zap.Int("intervals", len(running)))
	}

	return w.drawBranch(parent, at)
}

// growRoot puts a new empty root one level above the current one. The old root
// stays open as its only child.
func (w *Writer) growRoot() {
	old := w.branch[0]
	root := w.newNode(node.NoParent, old.Level()+1, w.cfg.StartTimestamp)
	// a fresh branch node always has a slot and no earlier child
	_ = root.AddChild(old.Seq(), old.Start())
	old.SetParent(root.Seq())
	w.branch = append([]*node.Node{root}, w.branch...)

	w.logger.Debug("Tree height increased",
		zap.Uint32("root_seq", root.Seq()),
		zap.Int("height", w.Height()))
	w.metrics.UpdateTreeShape(w.Height(), w.nodeCount)
}

// drawBranch opens new nodes below parent, the deepest open node, down to a leaf.
// All of them start at at.
func (w *Writer) drawBranch(parent *node.Node, at model.Timestamp) error {
	for parent.Level() > 0 {
		child := w.newNode(parent.Seq(), parent.Level()-1, at)
		if err := parent.AddChild(child.Seq(), at); err != nil {
			return err
		}
		w.branch = append(w.branch, child)
		parent = child
	}

	w.metrics.UpdateTreeShape(w.Height(), w.nodeCount)
	return nil
}

// sealFrom seals and flushes branch[idx:] bottom-up and drops them from the branch
func (w *Writer) sealFrom(idx int) error {
	for i := len(w.branch) - 1; i >= idx; i-- {
		if err := w.flush(w.branch[i]); err != nil {
			return err
		}
	}
	w.branch = w.branch[:idx]
	return nil
}

// flush seals n and writes it to its block
func (w *Writer) flush(n *node.Node) error {
	if w.cfg.SpaceGuard != nil {
		if err := w.cfg.SpaceGuard.CheckBeforeWrite(uint64(w.layout.BlockSize)); err != nil {
			return err
		}
	}

	n.Seal()
	if _, err := w.blocks.writeNode(n); err != nil {
		return err
	}
	w.cache.Invalidate(n.Seq())

	w.logger.Debug("Sealed node",
		zap.Uint32("seq", n.Seq()),
		zap.Uint16("level", n.Level()),
		zap.Int64("start", n.Start()),
		zap.Int64("end", n.End()),
		zap.Int("intervals", n.IntervalCount()),
		zap.Int("children", n.ChildCount()))
	return nil
}

func (w *Writer) newNode(parentSeq uint32, level uint16, start model.Timestamp) *node.Node {
	n := node.New(w.layout, w.nodeCount, parentSeq, level, start)
	w.nodeCount++
	return n
}

// Close seals every open node, then writes the header last and syncs the file.
// The recorded end is the later of end and the latest interval end.
func (w *Writer) Close(end model.Timestamp) error {
	if w.closed {
		return errors.TreeClosed(w.cfg.FilePath)
	}
	w.closed = true

	if end < w.lastEnd {
		w.logger.Warn("Close time precedes stored intervals, using latest interval end",
			zap.Int64("requested_end", end),
			zap.Int64("last_end", w.lastEnd))
		end = w.lastEnd
	}

	root := w.branch[0]
	height := w.Height()
	if err := w.sealFrom(0); err != nil {
		w.blocks.file.Close()
		return err
	}
	w.branch = []*node.Node{root}

	header := Header{
		Major:       MajorVersion,
		Minor:       MinorVersion,
		BlockSize:   uint32(w.layout.BlockSize),
		MaxChildren: uint32(w.layout.MaxChildren),
		NodeCount:   w.nodeCount,
		RootSeq:     root.Seq(),
		Start:       w.cfg.StartTimestamp,
		End:         end,
		Height:      uint32(height),
	}

	file := w.blocks.file
	if _, err := file.WriteAt(header.Encode(), 0); err != nil {
		file.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync history file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close history file: %w", err)
	}
	w.cache.Purge()

	w.logger.Info("Closed history file",
		zap.String("path", w.cfg.FilePath),
		zap.Uint32("nodes", w.nodeCount),
		zap.Uint32("root_seq", header.RootSeq),
		zap.Int("height", height),
		zap.Int64("end", end))

	return nil
}

// Height returns the number of levels in the tree
func (w *Writer) Height() int {
	return int(w.branch[0].Level()) + 1
}

// NodeCount returns the number of nodes created so far
func (w *Writer) NodeCount() uint32 {
	return w.nodeCount
}

// End returns the latest interval end inserted so far
func (w *Writer) End() model.Timestamp {
	return w.lastEnd
}

// Root returns a summary of the current root node
func (w *Writer) Root() model.NodeSummary {
	return w.branch[0].Summary()
}

// QueryAll returns every stored interval containing t, reading sealed nodes back from disk
func (w *Writer) QueryAll(t model.Timestamp) (model.Jar, error) {
	if w.closed {
		return nil, errors.TreeClosed(w.cfg.FilePath)
	}
	if t < w.cfg.StartTimestamp {
		return nil, nil
	}
	start := time.Now()
	jar, err := collectAll(w, t)
	w.metrics.RecordQuery(queryKindAll, time.Since(start).Seconds(), jar.Len())
	return jar, err
}

// Query returns the most recent interval of attr containing t
func (w *Writer) Query(t model.Timestamp, attr model.AttributeKey) (model.Interval, bool, error) {
	if w.closed {
		return model.Interval{}, false, errors.TreeClosed(w.cfg.FilePath)
	}
	if t < w.cfg.StartTimestamp {
		return model.Interval{}, false, nil
	}
	start := time.Now()
	iv, found, err := collectOne(w, t, attr)
	results := 0
	if found {
		results = 1
	}
	w.metrics.RecordQuery(queryKindSingle, time.Since(start).Seconds(), results)
	return iv, found, err
}

func (w *Writer) rootNode() (*node.Node, error) {
	return w.branch[0], nil
}

func (w *Writer) nodeAt(seq uint32) (*node.Node, error) {
	for _, n := range w.branch {
		if n.Seq() == seq {
			return n, nil
		}
	}
	return w.cache.Get(seq)
}

func (w *Writer) loadNode(seq uint32) (*node.Node, error) {
	return w.blocks.readNode(seq, w.nodeCount)
}
