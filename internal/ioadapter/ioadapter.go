// Package ioadapter implements the sector-oriented and byte-range I/O
// adapter: an uncompressed variant backed directly by a file, and an
// LZ4-block-indexed variant that decompresses only the block(s) a read
// touches, per the container format's skippable-frame sidecar.
package ioadapter

import (
	"errors"
	"fmt"
	"hash/maphash"
	"io"
	"os"

	"github.com/dgryski/go-tinylfu"
	lz4block "github.com/pierrec/lz4/v4"

	"github.com/ds-sloth/mbediso/internal/lz4header"
)

const sectorSize = 2048

// IO is the contract both variants satisfy: sector reads return a buffer
// valid until the next call on the same handle; direct reads copy an
// arbitrary byte range. Both report a short count (and non-nil error) on
// I/O failure, invalidating any cached block.
type IO interface {
	ReadSector(sector uint32) ([]byte, error)
	ReadDirect(dest []byte, offset uint64) (int, error)
	Close() error
}

// Open builds the appropriate IO variant for f, given an optional LZ4
// header (nil means the archive is a plain uncompressed ISO image).
func Open(f *os.File, header *lz4header.Header) IO {
	if header == nil {
		return &uncompressed{file: f, filePos: -1}
	}
	return newLZ4(f, header)
}

type uncompressed struct {
	file    *os.File
	filePos int64
	buf     [sectorSize]byte
}

func (u *uncompressed) ReadSector(sector uint32) ([]byte, error) {
	target := int64(sector) * sectorSize
	if u.filePos != target {
		if _, err := u.file.Seek(target, io.SeekStart); err != nil {
			u.filePos = -1
			return nil, fmt.Errorf("ioadapter: seek: %w", err)
		}
	}
	if _, err := io.ReadFull(u.file, u.buf[:]); err != nil {
		u.filePos = -1
		return nil, fmt.Errorf("ioadapter: read sector %d: %w", sector, err)
	}
	u.filePos = target + sectorSize
	return u.buf[:], nil
}

func (u *uncompressed) ReadDirect(dest []byte, offset uint64) (int, error) {
	off := int64(offset)
	if u.filePos != off {
		if _, err := u.file.Seek(off, io.SeekStart); err != nil {
			u.filePos = -1
			return 0, fmt.Errorf("ioadapter: seek: %w", err)
		}
	}
	n, err := io.ReadFull(u.file, dest)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		u.filePos = -1
		return n, err
	}
	u.filePos = off + int64(n)
	return n, nil
}

func (u *uncompressed) Close() error { return u.file.Close() }

// blockCacheCapacity bounds the number of decompressed blocks kept warm
// per open LZ4 handle. A handle only ever touches a small working set
// during sequential or path-resolution reads, so this is deliberately
// small; it exists to avoid repeat decompression when a caller seeks
// back and forth within one block-sized region (directory records that
// straddle a block boundary, small files re-read during retries).
const blockCacheCapacity = 64

type lz4 struct {
	file   *os.File
	header *lz4header.Header

	filePos int64

	fileBuf []byte

	decompressed []byte
	blockIndex   int // -1 if decompressed holds nothing valid
	blockStart   uint32
	blockLen     uint32

	cache *tinylfu.T[int, []byte]
}

var blockCacheHashSeed = maphash.MakeSeed()

func hashBlockIndex(k int) uint64 { return maphash.Comparable(blockCacheHashSeed, k) }

func newLZ4(f *os.File, header *lz4header.Header) *lz4 {
	return &lz4{
		file:         f,
		header:       header,
		filePos:      -1,
		fileBuf:      make([]byte, header.BlockSize+4),
		decompressed: make([]byte, header.BlockSize),
		blockIndex:   -1,
		cache:        tinylfu.New[int, []byte](blockCacheCapacity, blockCacheCapacity*10, hashBlockIndex),
	}
}

// prepare ensures the block covering logicalPos is decompressed into
// l.decompressed (or aliased from the uncompressed-block fast path), and
// sets blockStart/blockLen to describe its extent.
func (l *lz4) prepare(logicalPos uint32) error {
	if l.blockIndex >= 0 && logicalPos >= l.blockStart && logicalPos < l.blockStart+l.blockLen {
		return nil
	}

	block := logicalPos / l.header.BlockSize
	if int(block) >= l.header.BlockCount() {
		return fmt.Errorf("ioadapter: logical position %d past end of archive", logicalPos)
	}

	if cached, ok := l.cache.Get(int(block)); ok {
		buf := cached
		copy(l.decompressed, buf)
		l.blockIndex = int(block)
		l.blockStart = block * l.header.BlockSize
		l.blockLen = uint32(len(buf))
		return nil
	}

	offset := int64(l.header.BlockOffsets[block])
	if l.filePos != offset {
		if _, err := l.file.Seek(offset, io.SeekStart); err != nil {
			l.filePos = -1
			l.blockIndex = -1
			return fmt.Errorf("ioadapter: seek to block %d: %w", block, err)
		}
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(l.file, lenBuf[:]); err != nil {
		l.filePos = -1
		l.blockIndex = -1
		return fmt.Errorf("ioadapter: read block %d length: %w", block, err)
	}

	raw := uint32(lenBuf[0]) | uint32(lenBuf[1])<<8 | uint32(lenBuf[2])<<16 | uint32(lenBuf[3])<<24
	stored := raw&0x80000000 != 0
	compressedLen := raw &^ 0x80000000

	if compressedLen > l.header.BlockSize {
		l.blockIndex = -1
		return fmt.Errorf("ioadapter: block %d compressed length %d exceeds block size", block, compressedLen)
	}

	if cap(l.fileBuf) < int(compressedLen) {
		l.fileBuf = make([]byte, compressedLen)
	}
	fileBuf := l.fileBuf[:compressedLen]
	if _, err := io.ReadFull(l.file, fileBuf); err != nil {
		l.filePos = -1
		l.blockIndex = -1
		return fmt.Errorf("ioadapter: read block %d body: %w", block, err)
	}
	l.filePos = offset + 4 + int64(compressedLen)

	var decompressedLen int
	if stored {
		copy(l.decompressed, fileBuf)
		decompressedLen = int(compressedLen)
	} else {
		n, err := lz4block.UncompressBlock(fileBuf, l.decompressed)
		if err != nil {
			l.blockIndex = -1
			return fmt.Errorf("ioadapter: decompress block %d: %w", block, err)
		}
		decompressedLen = n
	}

	if decompressedLen == 0 {
		l.blockIndex = -1
		return fmt.Errorf("ioadapter: block %d decompressed to zero bytes", block)
	}

	l.blockIndex = int(block)
	l.blockStart = block * l.header.BlockSize
	l.blockLen = uint32(decompressedLen)

	cached := make([]byte, decompressedLen)
	copy(cached, l.decompressed[:decompressedLen])
	l.cache.Add(int(block), cached)

	return nil
}

func (l *lz4) ReadSector(sector uint32) ([]byte, error) {
	offset := sector * sectorSize
	if err := l.prepare(offset); err != nil {
		return nil, err
	}
	if l.blockStart+l.blockLen < offset+sectorSize {
		return nil, fmt.Errorf("ioadapter: sector %d not fully covered by its block", sector)
	}
	start := offset - l.blockStart
	return l.decompressed[start : start+sectorSize], nil
}

func (l *lz4) ReadDirect(dest []byte, offset uint64) (int, error) {
	want := len(dest)
	read := 0
	pos := uint32(offset)

	for read < want {
		if err := l.prepare(pos); err != nil {
			return read, err
		}

		canRead := int(l.blockStart+l.blockLen) - int(pos)
		remaining := want - read
		if canRead > remaining {
			canRead = remaining
		}

		start := pos - l.blockStart
		copy(dest[read:read+canRead], l.decompressed[start:int(start)+canRead])

		read += canRead
		pos += uint32(canRead)
	}

	return read, nil
}

func (l *lz4) Close() error { return l.file.Close() }
