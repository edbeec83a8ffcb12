package historyfile

import (
	"encoding/binary"
	"fmt"

	"github.com/devrev/histtree/internal/errors"
	"github.com/devrev/histtree/internal/model"
	"github.com/devrev/histtree/internal/storage/node"
	"github.com/devrev/histtree/internal/util"
)

const (
	// HeaderSize is the size of the header block that precedes the first node
	HeaderSize = 4096

	Magic        uint32 = 0x21b4a980
	MajorVersion uint16 = 1
	MinorVersion uint16 = 0
)

// File header layout (little endian):
//
//	[0:4)   magic
//	[4:6)   major version
//	[6:8)   minor version
//	[8:12)  block size
//	[12:16) max children
//	[16:20) node count
//	[20:24) root sequence number
//	[24:32) start timestamp
//	[32:40) end timestamp
//	[40:44) height
//	[44:48) CRC32 of the header block with this field zeroed
const headerChecksumOffset = 44

// Header is the tree-wide metadata written last, on close
type Header struct {
	Major       uint16
	Minor       uint16
	BlockSize   uint32
	MaxChildren uint32
	NodeCount   uint32
	RootSeq     uint32
	Start       model.Timestamp
	End         model.Timestamp
	Height      uint32
}

// NodeOffset returns the file offset of the block holding seq
func NodeOffset(seq uint32, blockSize int) int64 {
	return HeaderSize + int64(seq)*int64(blockSize)
}

func (h Header) layout() node.Layout {
	return node.Layout{BlockSize: int(h.BlockSize), MaxChildren: int(h.MaxChildren)}
}

// Encode serializes the header into a full header block
func (h Header) Encode() []byte {
	block := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(block[0:], Magic)
	binary.LittleEndian.PutUint16(block[4:], h.Major)
	binary.LittleEndian.PutUint16(block[6:], h.Minor)
	binary.LittleEndian.PutUint32(block[8:], h.BlockSize)
	binary.LittleEndian.PutUint32(block[12:], h.MaxChildren)
	binary.LittleEndian.PutUint32(block[16:], h.NodeCount)
	binary.LittleEndian.PutUint32(block[20:], h.RootSeq)
	binary.LittleEndian.PutUint64(block[24:], uint64(h.Start))
	binary.LittleEndian.PutUint64(block[32:], uint64(h.End))
	binary.LittleEndian.PutUint32(block[40:], h.Height)
	util.StampBlock(block, headerChecksumOffset)
	return block
}

// DecodeHeader parses and validates a header block
func DecodeHeader(block []byte) (Header, error) {
	if len(block) != HeaderSize {
		return Header{}, errors.MalformedHeader(fmt.Sprintf("header is %d bytes, expected %d", len(block), HeaderSize), nil)
	}
	if magic := binary.LittleEndian.Uint32(block[0:]); magic != Magic {
		return Header{}, errors.MalformedHeader(fmt.Sprintf("bad magic number 0x%08x", magic), nil).
			WithDetail("magic", magic)
	}
	if stored, actual, ok := util.VerifyBlock(block, headerChecksumOffset); !ok {
		return Header{}, errors.MalformedHeader("header checksum mismatch", errors.ChecksumFailed(stored, actual))
	}

	h := Header{
		Major:       binary.LittleEndian.Uint16(block[4:]),
		Minor:       binary.LittleEndian.Uint16(block[6:]),
		BlockSize:   binary.LittleEndian.Uint32(block[8:]),
		MaxChildren: binary.LittleEndian.Uint32(block[12:]),
		NodeCount:   binary.LittleEndian.Uint32(block[16:]),
		RootSeq:     binary.LittleEndian.Uint32(block[20:]),
		Start:       int64(binary.LittleEndian.Uint64(block[24:])),
		End:         int64(binary.LittleEndian.Uint64(block[32:])),
		Height:      binary.LittleEndian.Uint32(block[40:]),
	}

	if h.Major != MajorVersion {
		return Header{}, errors.MalformedHeader(
			fmt.Sprintf("unsupported file version %d.%d", h.Major, h.Minor), nil).
			WithDetail("major", h.Major).
			WithDetail("minor", h.Minor)
	}
	if err := h.layout().Validate(); err != nil {
		return Header{}, errors.MalformedHeader("invalid node geometry", err)
	}
	if h.NodeCount == 0 || h.RootSeq >= h.NodeCount {
		return Header{}, errors.MalformedHeader(
			fmt.Sprintf("root %d outside node count %d", h.RootSeq, h.NodeCount), nil)
	}
	if h.End < h.Start {
		return Header{}, errors.MalformedHeader(fmt.Sprintf("end %d precedes start %d", h.End, h.Start), nil)
	}
	return h, nil
}
