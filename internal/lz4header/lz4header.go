// Package lz4header parses the block-index sidecar smuggled inside a
// skippable LZ4 frame at the front of a container file, as described by
// the external container format: a real LZ4 frame magic at offset 0, a
// skippable frame at offset 15 carrying an endianness-tagged block table,
// followed by a standard independent-block LZ4 frame holding the content.
package lz4header

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ds-sloth/mbediso/internal/mbedisoerr"
)

const (
	lz4Magic       = 0x184D2204
	skippableMagic = 0x184D2A50

	minBlockSize = 2048
	maxBlockSize = 64 * 1024
)

// Header is the parsed block-index sidecar: logical content is divided
// into BlockSize-byte blocks, and BlockOffsets[i] is the file offset of
// block i's 4-byte length prefix in the trailing LZ4 frame.
type Header struct {
	BlockSize    uint32
	BlockOffsets []uint32
}

// BlockCount reports the number of blocks described by the header.
func (h *Header) BlockCount() int { return len(h.BlockOffsets) }

// Load reads and validates the sidecar from r, which must support
// absolute positioning (r is read via ReadAt so callers may share the
// underlying file with unrelated readers). It returns nil, nil if the
// file does not begin with the LZ4 magic at all — the caller should then
// treat the archive as an uncompressed ISO image.
func Load(r io.ReaderAt) (*Header, error) {
	var head [4]byte
	if _, err := r.ReadAt(head[:], 0); err != nil {
		return nil, fmt.Errorf("lz4header: read magic: %w", err)
	}
	if binary.LittleEndian.Uint32(head[:]) != lz4Magic {
		return nil, nil
	}

	var sk [8]byte
	if _, err := r.ReadAt(sk[:], 15); err != nil {
		return nil, fmt.Errorf("lz4header: read skippable frame header: %w", err)
	}
	if binary.LittleEndian.Uint32(sk[0:4]) != skippableMagic {
		return nil, fmt.Errorf("lz4header: missing skippable-frame magic: %w", mbedisoerr.ErrMalformed)
	}
	innerLength := binary.LittleEndian.Uint32(sk[4:8])

	var tag [4]byte
	if _, err := r.ReadAt(tag[:], 23); err != nil {
		return nil, fmt.Errorf("lz4header: read endianness tag: %w", err)
	}
	if tag[0] != 'M' || tag[1] != 'I' || (tag[2] != 'L' && tag[2] != 'B') || tag[3] != 'E' {
		return nil, fmt.Errorf("lz4header: bad mbediso tag %q: %w", tag[:], mbedisoerr.ErrMalformed)
	}
	var bo binary.ByteOrder = binary.LittleEndian
	if tag[2] == 'B' {
		bo = binary.BigEndian
	}

	var sizes [8]byte
	if _, err := r.ReadAt(sizes[:], 27); err != nil {
		return nil, fmt.Errorf("lz4header: read sizes: %w", err)
	}
	fileSize := bo.Uint32(sizes[0:4])
	blockSize := bo.Uint32(sizes[4:8])

	if blockSize < minBlockSize || blockSize > maxBlockSize || blockSize%2048 != 0 {
		return nil, fmt.Errorf("lz4header: block size %d out of range: %w", blockSize, mbedisoerr.ErrMalformed)
	}

	blockCount := (fileSize + blockSize - 1) / blockSize
	if innerLength != 12+4*blockCount {
		return nil, fmt.Errorf("lz4header: inner frame length %d does not match block_count %d: %w", innerLength, blockCount, mbedisoerr.ErrMalformed)
	}

	table := make([]byte, 4*blockCount)
	if _, err := r.ReadAt(table, 35); err != nil {
		return nil, fmt.Errorf("lz4header: read block offset table: %w", err)
	}

	offsets := make([]uint32, blockCount)
	for i := range offsets {
		offsets[i] = bo.Uint32(table[4*i : 4*i+4])
	}

	return &Header{BlockSize: blockSize, BlockOffsets: offsets}, nil
}
