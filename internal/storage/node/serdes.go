package node

import (
	"encoding/binary"
	"fmt"

	"github.com/devrev/histtree/internal/errors"
	"github.com/devrev/histtree/internal/model"
	"github.com/devrev/histtree/internal/storage/codec"
	"github.com/devrev/histtree/internal/util"
)

// Node header layout (little endian):
//
//	[0:8)   start
//	[8:16)  end
//	[16:20) sequence number
//	[20:24) parent sequence number
//	[24:26) level
//	[26]    flags
//	[27]    kind
//	[28:32) interval count
//	[32:36) child count
//	[36:40) variable region bytes
//	[40:44) CRC32 of the block with this field zeroed
const (
	offStart     = 0
	offEnd       = 8
	offSeq       = 16
	offParent    = 20
	offLevel     = 24
	offFlags     = 26
	offKind      = 27
	offIntervals = 28
	offChildren  = 32
	offVarBytes  = 36
	offChecksum  = 40

	flagSealed = 1 << 0
)

// Encode serializes the node into exactly one block
func (n *Node) Encode() ([]byte, error) {
	block := make([]byte, n.layout.BlockSize)

	binary.LittleEndian.PutUint64(block[offStart:], uint64(n.start))
	binary.LittleEndian.PutUint64(block[offEnd:], uint64(n.end))
	binary.LittleEndian.PutUint32(block[offSeq:], n.seq)
	binary.LittleEndian.PutUint32(block[offParent:], n.parentSeq)
	binary.LittleEndian.PutUint16(block[offLevel:], n.level)
	if n.sealed {
		block[offFlags] = flagSealed
	}
	block[offKind] = byte(n.Kind())
	binary.LittleEndian.PutUint32(block[offIntervals:], uint32(len(n.intervals)))
	binary.LittleEndian.PutUint32(block[offChildren:], uint32(len(n.children)))
	binary.LittleEndian.PutUint32(block[offVarBytes:], uint32(n.varBytes))

	off := HeaderSize
	for _, c := range n.children {
		binary.LittleEndian.PutUint64(block[off:], uint64(c.Start))
		binary.LittleEndian.PutUint32(block[off+8:], c.Seq)
		off += ChildPointerSize
	}

	off = HeaderSize + n.layout.reserved(n.Kind())
	varUsed := 0
	for _, iv := range n.intervals {
		varUsed = codec.Encode(block, off, varUsed, iv)
		off += codec.FixedRecordSize
	}
	if varUsed != n.varBytes {
		return nil, errors.InternalError(
			fmt.Sprintf("node %d packed %d variable bytes, accounted %d", n.seq, varUsed, n.varBytes), nil)
	}

	util.StampBlock(block, offChecksum)
	return block, nil
}

// Decode rebuilds a node from one block read from disk
func Decode(layout Layout, block []byte) (*Node, error) {
	if len(block) != layout.BlockSize {
		return nil, errors.CorruptedData(
			fmt.Sprintf("block is %d bytes, expected %d", len(block), layout.BlockSize), nil)
	}

	if stored, actual, ok := util.VerifyBlock(block, offChecksum); !ok {
		return nil, errors.ChecksumFailed(stored, actual)
	}

	n := &Node{
		layout:    layout,
		start:     int64(binary.LittleEndian.Uint64(block[offStart:])),
		end:       int64(binary.LittleEndian.Uint64(block[offEnd:])),
		seq:       binary.LittleEndian.Uint32(block[offSeq:]),
		parentSeq: binary.LittleEndian.Uint32(block[offParent:]),
		level:     binary.LittleEndian.Uint16(block[offLevel:]),
		sealed:    block[offFlags]&flagSealed != 0,
		varBytes:  int(binary.LittleEndian.Uint32(block[offVarBytes:])),
	}

	kind := model.NodeKind(block[offKind])
	if kind != model.NodeKindLeaf && kind != model.NodeKindBranch {
		return nil, errors.UnknownNodeType(n.seq, uint8(kind))
	}
	if kind != n.Kind() {
		return nil, errors.CorruptedData(
			fmt.Sprintf("node %d is a %s at level %d", n.seq, kind, n.level), nil)
	}

	intervalCount := int(binary.LittleEndian.Uint32(block[offIntervals:]))
	childCount := int(binary.LittleEndian.Uint32(block[offChildren:]))
	if childCount > layout.MaxChildren || (kind == model.NodeKindLeaf && childCount != 0) {
		return nil, errors.CorruptedData(fmt.Sprintf("node %d has %d children", n.seq, childCount), nil)
	}

	fixedEnd := HeaderSize + layout.reserved(kind) + intervalCount*codec.FixedRecordSize
	if intervalCount < 0 || n.varBytes < 0 || fixedEnd > layout.BlockSize-n.varBytes {
		return nil, errors.CorruptedData(
			fmt.Sprintf("node %d regions overlap: %d intervals, %d variable bytes", n.seq, intervalCount, n.varBytes), nil)
	}

	if childCount > 0 {
		n.children = make([]Child, 0, childCount)
	}
	off := HeaderSize
	for i := 0; i < childCount; i++ {
		n.children = append(n.children, Child{
			Start: int64(binary.LittleEndian.Uint64(block[off:])),
			Seq:   binary.LittleEndian.Uint32(block[off+8:]),
		})
		off += ChildPointerSize
	}

	if intervalCount > 0 {
		n.intervals = make([]model.Interval, 0, intervalCount)
	}
	off = HeaderSize + layout.reserved(kind)
	varLimit := layout.BlockSize - n.varBytes
	for i := 0; i < intervalCount; i++ {
		iv, err := codec.Decode(block, off, varLimit)
		if err != nil {
			return nil, err
		}
		n.intervals = append(n.intervals, iv)
		off += codec.FixedRecordSize
	}

	return n, nil
}
