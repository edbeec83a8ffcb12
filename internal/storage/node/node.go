package node

import (
	"fmt"
	"math"
	"sort"

	"github.com/devrev/histtree/internal/errors"
	"github.com/devrev/histtree/internal/model"
	"github.com/devrev/histtree/internal/storage/codec"
)

const (
	// HeaderSize is the width of the per-node header at the start of every block
	HeaderSize = 44

	// ChildPointerSize is the width of one (start, seq) child pointer
	ChildPointerSize = 12

	// NoParent marks the root's parent sequence number
	NoParent = math.MaxUint32

	// MaxBlockSize bounds block sizes so variable offsets fit in 32 bits
	MaxBlockSize = 1 << 30
)

// Layout is the fixed geometry shared by every node of a tree
type Layout struct {
	BlockSize   int
	MaxChildren int
}

// Validate checks that an empty branch node can hold at least one interval
func (l Layout) Validate() error {
	if l.MaxChildren < 1 {
		return errors.InvalidArgument(fmt.Sprintf("max children must be at least 1, got %d", l.MaxChildren), nil)
	}
	if l.BlockSize > MaxBlockSize {
		return errors.InvalidArgument(fmt.Sprintf("block size %d exceeds maximum %d", l.BlockSize, MaxBlockSize), nil)
	}
	minSize := HeaderSize + l.MaxChildren*ChildPointerSize + codec.FixedRecordSize
	if l.BlockSize < minSize {
		return errors.InvalidArgument(
			fmt.Sprintf("block size %d too small for %d children, need at least %d", l.BlockSize, l.MaxChildren, minSize), nil).
			WithDetail("block_size", l.BlockSize).
			WithDetail("max_children", l.MaxChildren)
	}
	return nil
}

// reserved returns the bytes set aside for child pointers in a node of the given kind
func (l Layout) reserved(kind model.NodeKind) int {
	if kind == model.NodeKindBranch {
		return l.MaxChildren * ChildPointerSize
	}
	return 0
}

// MaxIntervalSize is the largest packed interval every node kind can store when empty
func (l Layout) MaxIntervalSize() int {
	return l.BlockSize - HeaderSize - l.reserved(model.NodeKindBranch)
}

// Child is a pointer from a branch node to one of its children
type Child struct {
	Seq   uint32
	Start model.Timestamp
}

// Node is one fixed-size block of the history tree.
// A node is mutable until Seal; afterwards it is shared read-only.
type Node struct {
	layout    Layout
	seq       uint32
	parentSeq uint32
	level     uint16
	start     model.Timestamp
	end       model.Timestamp
	intervals []model.Interval
	children  []Child
	varBytes  int
	sealed    bool
}

// New creates an empty open node. Level 0 nodes are leaves.
func New(layout Layout, seq, parentSeq uint32, level uint16, start model.Timestamp) *Node {
	return &Node{
		layout:    layout,
		seq:       seq,
		parentSeq: parentSeq,
		level:     level,
		start:     start,
		end:       start,
	}
}

func (n *Node) Seq() uint32                 { return n.seq }
func (n *Node) ParentSeq() uint32           { return n.parentSeq }
func (n *Node) Level() uint16               { return n.level }
func (n *Node) Start() model.Timestamp      { return n.start }
func (n *Node) End() model.Timestamp        { return n.end }
func (n *Node) IsSealed() bool              { return n.sealed }
func (n *Node) IntervalCount() int          { return len(n.intervals) }
func (n *Node) ChildCount() int             { return len(n.children) }
func (n *Node) Children() []Child           { return n.children }
func (n *Node) Intervals() []model.Interval { return n.intervals }

// Kind returns leaf for level 0 and branch otherwise
func (n *Node) Kind() model.NodeKind {
	if n.level == 0 {
		return model.NodeKindLeaf
	}
	return model.NodeKindBranch
}

// SetParent records the back-reference to the node that adopted n as a child
func (n *Node) SetParent(seq uint32) { n.parentSeq = seq }

// fixedEnd is the first byte past the interval records
func (n *Node) fixedEnd() int {
	return HeaderSize + n.layout.reserved(n.Kind()) + len(n.intervals)*codec.FixedRecordSize
}

// FreeBytes returns the space left between the fixed and variable regions
func (n *Node) FreeBytes() int {
	return n.layout.BlockSize - n.fixedEnd() - n.varBytes
}

// CanAccept reports whether iv fits without overflowing the block
func (n *Node) CanAccept(iv model.Interval) bool {
	if n.sealed {
		return false
	}
	return n.fixedEnd()+codec.FixedRecordSize <= n.layout.BlockSize-n.varBytes-codec.VariableSize(iv)
}

// Add appends iv in arrival order
func (n *Node) Add(iv model.Interval) error {
	if n.sealed {
		return errors.InternalError(fmt.Sprintf("node %d is sealed", n.seq), nil)
	}
	if !n.CanAccept(iv) {
		return errors.IntervalTooLarge(codec.Size(iv), n.FreeBytes()).WithDetail("seq", n.seq)
	}
	n.intervals = append(n.intervals, iv)
	n.varBytes += codec.VariableSize(iv)
	if iv.End > n.end {
		n.end = iv.End
	}
	return nil
}

// Evict removes and returns the intervals still running at from, keeping
// arrival order on both sides. The node's end shrinks to what remains.
func (n *Node) Evict(from model.Timestamp) ([]model.Interval, error) {
	if n.sealed {
		return nil, errors.InternalError(fmt.Sprintf("node %d is sealed", n.seq), nil)
	}
	var evicted []model.Interval
	kept := n.intervals[:0]
	n.end = n.start
	n.varBytes = 0
	for _, iv := range n.intervals {
		if iv.End >= from {
			evicted = append(evicted, iv)
			continue
		}
		kept = append(kept, iv)
		n.varBytes += codec.VariableSize(iv)
		if iv.End > n.end {
			n.end = iv.End
		}
	}
	n.intervals = kept
	return evicted, nil
}

// CanAcceptChild reports whether a child pointer slot is still free
func (n *Node) CanAcceptChild() bool {
	return !n.sealed && n.Kind() == model.NodeKindBranch && len(n.children) < n.layout.MaxChildren
}

// AddChild links a child; child starts must be strictly increasing
func (n *Node) AddChild(seq uint32, start model.Timestamp) error {
	if !n.CanAcceptChild() {
		return errors.NodeFull(n.seq, n.layout.MaxChildren)
	}
	if k := len(n.children); k > 0 && n.children[k-1].Start >= start {
		return errors.InternalError(
			fmt.Sprintf("child start %d does not follow %d in node %d", start, n.children[k-1].Start, n.seq), nil)
	}
	n.children = append(n.children, Child{Seq: seq, Start: start})
	return nil
}

// ChildAt returns the child whose coverage contains t: the last child starting at or before t
func (n *Node) ChildAt(t model.Timestamp) (Child, bool) {
	i := sort.Search(len(n.children), func(i int) bool { return n.children[i].Start > t })
	if i == 0 {
		return Child{}, false
	}
	return n.children[i-1], true
}

// Collect appends the intervals of n that contain t to jar
func (n *Node) Collect(t model.Timestamp, jar model.Jar) model.Jar {
	for _, iv := range n.intervals {
		if iv.Contains(t) {
			jar = append(jar, iv)
		}
	}
	return jar
}

// Seal freezes the node. Its end is the latest interval end, never before its start.
func (n *Node) Seal() {
	if n.sealed {
		return
	}
	n.end = n.start
	for _, iv := range n.intervals {
		if iv.End > n.end {
			n.end = iv.End
		}
	}
	n.sealed = true
}

// Summary describes the node for inspection output
func (n *Node) Summary() model.NodeSummary {
	return model.NodeSummary{
		Seq:       n.seq,
		ParentSeq: n.parentSeq,
		Level:     n.level,
		Kind:      n.Kind(),
		Start:     n.start,
		End:       n.end,
		Intervals: len(n.intervals),
		Children:  len(n.children),
		FreeBytes: n.FreeBytes(),
		IsSealed:  n.sealed,
	}
}
