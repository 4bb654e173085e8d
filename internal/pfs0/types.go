package pfs0

import (
	"encoding/binary"
	"math"
)

// Magic is "PFS0" read as a little-endian u32
const Magic uint32 = 0x30534650

// InvalidIndex is returned by IndexOf when no entry matches
const InvalidIndex uint32 = math.MaxUint32

// DefaultWorkBufferSize is the scratch buffer size used by extraction
const DefaultWorkBufferSize = 4 * 1024 * 1024

type header struct {
	Magic           uint32
	FileCount       uint32
	StringTableSize uint32
	_               uint32
}

type fileEntry struct {
	Offset            uint64
	Size              uint64
	StringTableOffset uint32
	_                 uint32
}

var (
	headerSize = uint64(binary.Size(header{}))
	entrySize  = uint64(binary.Size(fileEntry{}))
)

// Entry describes one embedded file
type Entry struct {
	// Offset of the payload relative to the end of the header region
	Offset uint64
	Size   uint64

	StringTableOffset uint32
	Name              string
}

// IsInvalidIndex reports whether idx is the sentinel returned for failed lookups
func IsInvalidIndex(idx uint32) bool {
	return idx == InvalidIndex
}
