package util

import (
	"encoding/binary"
	"hash/crc32"
)

// Block checksums for node blocks and the file header.
// The checksum is stored inside the block it covers, so it is computed with its own
// 4-byte field zeroed.

var crc32Table = crc32.MakeTable(crc32.IEEE)

// ComputeChecksum computes a CRC32 checksum for the given data
func ComputeChecksum(data []byte) uint32 {
	return crc32.Checksum(data, crc32Table)
}

// ValidateChecksum validates data against an expected checksum
func ValidateChecksum(data []byte, expected uint32) bool {
	return ComputeChecksum(data) == expected
}

// StampBlock computes the checksum of block with the field at off zeroed and stores it there
func StampBlock(block []byte, off int) uint32 {
	binary.LittleEndian.PutUint32(block[off:], 0)
	sum := ComputeChecksum(block)
	binary.LittleEndian.PutUint32(block[off:], sum)
	return sum
}

// VerifyBlock checks a block stamped by StampBlock.
// It returns the stored and recomputed checksums; the block is left unchanged.
func VerifyBlock(block []byte, off int) (stored, actual uint32, ok bool) {
	if off < 0 || off+4 > len(block) {
		return 0, 0, false
	}
	stored = binary.LittleEndian.Uint32(block[off:])
	binary.LittleEndian.PutUint32(block[off:], 0)
	actual = ComputeChecksum(block)
	binary.LittleEndian.PutUint32(block[off:], stored)
	return stored, actual, stored == actual
}
