package isofs

import (
	"encoding/binary"
	"fmt"

	"github.com/ds-sloth/mbediso/internal/ioadapter"
	"github.com/ds-sloth/mbediso/internal/isoutil"
	"github.com/ds-sloth/mbediso/internal/mbedisoerr"
)

const sectorSize = 2048

// recordFlagMask is the set of file-flag bits this reader understands:
// bit 0 (hidden/associated, ignored) and bit 1 (directory). Any other bit
// set (0xFC) means a feature this library does not support (Rock Ridge,
// multi-extent, interleaving) is in play for that record.
const recordFlagMask = 0x03
const flagDirectory = 0x02

// record is one parsed ISO 9660 directory record.
type record struct {
	name      string
	isDir     bool
	extent    uint32
	dataLen   uint32
	consumed  int
	dotEntry  bool // true for "." or ".." — never pushed into a Directory
	softFail  bool // malformed in a way the original tolerates: consumed, ignored
}

// parseRecord parses a single directory record at the start of buf,
// returning the number of bytes it occupies (record.consumed) regardless
// of whether the record is usable. buf must hold at least the record's
// declared length; callers should have already checked buf[0] != 0 (the
// padding/end-of-sector marker).
func parseRecord(buf []byte) (record, error) {
	if len(buf) < 1 {
		return record{}, fmt.Errorf("isofs: directory record truncated: %w", mbedisoerr.ErrMalformed)
	}
	length := int(buf[0])
	if length == 0 {
		return record{}, fmt.Errorf("isofs: zero-length directory record: %w", mbedisoerr.ErrMalformed)
	}
	if length < 33 || length > len(buf) {
		return record{}, fmt.Errorf("isofs: directory record length %d out of range: %w", length, mbedisoerr.ErrMalformed)
	}
	rec := record{consumed: length}

	if buf[1] != 0 {
		return record{}, fmt.Errorf("isofs: extended attribute records are not supported: %w", mbedisoerr.ErrMalformed)
	}

	extent := binary.LittleEndian.Uint32(buf[2:6])
	dataLen := binary.LittleEndian.Uint32(buf[10:14])

	flags := buf[25]
	unit := buf[26]
	interleave := buf[27]
	volSeq := binary.LittleEndian.Uint16(buf[28:30])

	if flags&^recordFlagMask != 0 || unit != 0 || interleave != 0 || volSeq != 1 {
		rec.softFail = true
		return rec, nil
	}

	nameLen := int(buf[32])
	if nameLen < 1 || 33+nameLen > length {
		rec.softFail = true
		return rec, nil
	}
	nameBytes := buf[33 : 33+nameLen]

	rec.isDir = flags&flagDirectory != 0
	rec.extent = extent
	rec.dataLen = dataLen

	if nameLen == 1 && (nameBytes[0] == 0x00 || nameBytes[0] == 0x01) {
		rec.dotEntry = true
		return rec, nil
	}

	if nameLen%2 != 0 {
		rec.softFail = true
		return rec, nil
	}
	name, err := isoutil.UTF16BEToUTF8(nameBytes)
	if err != nil {
		rec.softFail = true
		return rec, nil
	}
	rec.name = name

	return rec, nil
}

// findJolietRoot scans sectors 16 through 31 for a Supplementary Volume
// Descriptor carrying a Joliet UCS-2 escape sequence, and returns the
// on-disk Location of its root directory.
func findJolietRoot(io ioadapter.IO) (Location, error) {
	for sector := uint32(16); sector <= 31; sector++ {
		data, err := io.ReadSector(sector)
		if err != nil {
			return Location{}, fmt.Errorf("isofs: read volume descriptor sector %d: %w", sector, err)
		}

		if data[0] == 255 {
			break // volume descriptor set terminator
		}
		if string(data[1:6]) != "CD001" {
			return Location{}, fmt.Errorf("isofs: sector %d is not a volume descriptor: %w", sector, mbedisoerr.ErrMalformed)
		}
		if data[0] != 2 {
			continue // not a Supplementary Volume Descriptor
		}
		if data[88] != 0x25 || data[89] != 0x2F {
			continue // not UCS-2 (Joliet) escape sequence
		}
		switch data[90] {
		case 0x40, 0x43, 0x45: // level 1, 2, 3
		default:
			continue
		}
		if data[881] != 1 {
			return Location{}, fmt.Errorf("isofs: unsupported file structure version %d: %w", data[881], mbedisoerr.ErrMalformed)
		}

		rootRecord := data[156:190]
		rec, err := parseRecord(rootRecord)
		if err != nil {
			return Location{}, fmt.Errorf("isofs: parse joliet root directory record: %w", err)
		}
		if rec.softFail || !rec.isDir {
			return Location{}, fmt.Errorf("isofs: joliet root directory record is malformed: %w", mbedisoerr.ErrMalformed)
		}
		return Location{Sector: rec.extent, Length: rec.dataLen, Directory: true}, nil
	}

	return Location{}, fmt.Errorf("isofs: no joliet supplementary volume descriptor found: %w", mbedisoerr.ErrMalformed)
}
