package historyfile

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/devrev/histtree/internal/errors"
	"github.com/devrev/histtree/internal/metrics"
	"github.com/devrev/histtree/internal/storage/node"
)

// blockFile does the positioned node I/O shared by the writer and the reader
type blockFile struct {
	file    *os.File
	layout  node.Layout
	metrics *metrics.Metrics
}

// readNode loads and decodes the sealed node seq; nodeCount bounds valid sequence numbers
func (f *blockFile) readNode(seq, nodeCount uint32) (*node.Node, error) {
	if seq >= nodeCount {
		return nil, errors.NodeNotFound(seq, nodeCount)
	}

	start := time.Now()
	block := make([]byte, f.layout.BlockSize)
	if _, err := f.file.ReadAt(block, NodeOffset(seq, f.layout.BlockSize)); err != nil {
		f.metrics.RecordNodeRead(0, err)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errors.CorruptedData(fmt.Sprintf("node %d is truncated", seq), err).
				WithDetail("seq", seq)
		}
		return nil, errors.InternalError(fmt.Sprintf("failed to read node %d", seq), err)
	}

	n, err := node.Decode(f.layout, block)
	if err == nil {
		switch {
		case n.Seq() != seq:
			err = errors.CorruptedData(fmt.Sprintf("block %d holds node %d", seq, n.Seq()), nil)
		case !n.IsSealed():
			err = errors.CorruptedData(fmt.Sprintf("node %d was never sealed", seq), nil)
		}
	}
	f.metrics.RecordNodeRead(time.Since(start).Seconds(), err)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// writeNode writes the encoded node at its block offset and returns the bytes written
func (f *blockFile) writeNode(n *node.Node) (int, error) {
	start := time.Now()
	block, err := n.Encode()
	if err != nil {
		return 0, err
	}
	written, err := f.file.WriteAt(block, NodeOffset(n.Seq(), f.layout.BlockSize))
	if err != nil {
		return written, errors.InternalError(fmt.Sprintf("failed to write node %d", n.Seq()), err)
	}
	f.metrics.RecordNodeWrite(written, time.Since(start).Seconds())
	return written, nil
}
