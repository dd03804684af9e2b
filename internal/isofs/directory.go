package isofs

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ds-sloth/mbediso/internal/ioadapter"
	"github.com/ds-sloth/mbediso/internal/strdiff"
)

// Directory is a fully loaded directory: every child's name and Location,
// stored diff-coded (component B) over a single packed string table.
type Directory struct {
	names       []strdiff.Fragment
	locs        []Location
	stringtable []byte
}

func (d *Directory) get(i int) strdiff.Fragment { return d.names[i] }
func (d *Directory) set(i int, f strdiff.Fragment) { d.names[i] = f }

// Snapshot is a serializable copy of a Directory's contents, used by the
// persistent index cache to avoid re-reading and re-compacting a
// directory that was already scanned in a previous process run.
type Snapshot struct {
	Names       []uint64
	Locs        []Location
	StringTable []byte
}

// Snapshot captures d's contents.
func (d *Directory) Snapshot() Snapshot {
	names := make([]uint64, len(d.names))
	for i, f := range d.names {
		names[i] = uint64(f)
	}
	return Snapshot{
		Names:       names,
		Locs:        append([]Location(nil), d.locs...),
		StringTable: append([]byte(nil), d.stringtable...),
	}
}

// FromSnapshot rebuilds a Directory previously captured with Snapshot.
func FromSnapshot(s Snapshot) *Directory {
	names := make([]strdiff.Fragment, len(s.Names))
	for i, v := range s.Names {
		names[i] = strdiff.Fragment(v)
	}
	return &Directory{names: names, locs: s.Locs, stringtable: s.StringTable}
}

// Len reports the number of children.
func (d *Directory) Len() int { return len(d.names) }

// Name reconstructs the name of the child at index i.
func (d *Directory) Name(i int) (string, error) {
	buf := make([]byte, 256)
	for {
		n, err := strdiff.Reconstruct(buf, d.stringtable, len(d.names), d.get, i)
		if err == nil {
			return string(buf[:n-1]), nil
		}
		if len(buf) >= strdiff.MaxNameLen*2 {
			return "", err
		}
		buf = make([]byte, len(buf)*2)
	}
}

// Location returns the Location of the child at index i.
func (d *Directory) Location(i int) Location { return d.locs[i] }

// Lookup finds the child named name, returning its index.
func (d *Directory) Lookup(name []byte) (index int, found bool) {
	return strdiff.Lookup(d.stringtable, len(d.names), d.get, name)
}

// pendingEntry is a freshly parsed, not-yet-sorted/compacted child: its
// name lives verbatim in a scratch buffer, self-contained.
type pendingEntry struct {
	name string
	loc  Location
}

// LoadDirectory reads and parses every record in the extent described by
// loc (which must not already be loaded), producing a compacted
// Directory. Records with unsupported flags or unit/interleave/volume
// values, or with names that do not decode, are skipped silently; a
// record with an out-of-range length or an extended attribute record
// fails the whole load.
func LoadDirectory(io ioadapter.IO, loc Location) (*Directory, error) {
	if loc.Loaded() {
		return nil, fmt.Errorf("isofs: location is already loaded")
	}

	var pending []pendingEntry
	unsorted := false
	var prevName string
	haveName := false

	sector := loc.Sector
	remaining := loc.Length
	for remaining > 0 {
		data, err := io.ReadSector(sector)
		if err != nil {
			return nil, fmt.Errorf("isofs: read directory sector %d: %w", sector, err)
		}
		sector++

		avail := sectorSize
		if uint32(avail) > remaining {
			avail = int(remaining)
		}
		remaining -= uint32(avail)

		pos := 0
		for pos < avail {
			if data[pos] == 0 {
				break // remainder of this sector is padding
			}
			rec, err := parseRecord(data[pos:avail])
			if err != nil {
				return nil, fmt.Errorf("isofs: sector %d offset %d: %w", sector-1, pos, err)
			}
			pos += rec.consumed

			if rec.dotEntry || rec.softFail {
				continue
			}

			if haveName && rec.name < prevName {
				unsorted = true
			}
			prevName = rec.name
			haveName = true

			pending = append(pending, pendingEntry{
				name: rec.name,
				loc:  Location{Sector: rec.extent, Length: rec.dataLen, Directory: rec.isDir},
			})
		}
	}

	if unsorted {
		sort.SliceStable(pending, func(i, j int) bool { return pending[i].name < pending[j].name })
	}

	d := &Directory{
		names: make([]strdiff.Fragment, len(pending)),
		locs:  make([]Location, len(pending)),
	}
	var table bytes.Buffer
	for i, p := range pending {
		off := table.Len()
		table.WriteString(p.name)
		frag, err := strdiff.NewSelfContained(off, len(p.name))
		if err != nil {
			return nil, fmt.Errorf("isofs: name %q: %w", p.name, err)
		}
		d.names[i] = frag
		d.locs[i] = p.loc
	}
	d.stringtable = table.Bytes()

	if len(d.names) > 0 {
		compacted, err := strdiff.Compact(d.stringtable, len(d.names), d.get, d.set)
		if err != nil {
			return nil, fmt.Errorf("isofs: compacting directory: %w", err)
		}
		d.stringtable = compacted
	}

	return d, nil
}

// LookupOnDisk resolves one path segment against an unloaded directory
// extent without materializing a Directory, for lazy (non-full-scan)
// traversals where promoting every intermediate directory would defeat
// the point of lazy loading. It stops at the first match, or after
// scanning the whole extent.
func LookupOnDisk(io ioadapter.IO, loc Location, name []byte) (Location, bool, error) {
	if loc.Loaded() {
		return Location{}, false, fmt.Errorf("isofs: location is already loaded")
	}

	sector := loc.Sector
	remaining := loc.Length
	for remaining > 0 {
		data, err := io.ReadSector(sector)
		if err != nil {
			return Location{}, false, fmt.Errorf("isofs: read directory sector %d: %w", sector, err)
		}
		sector++

		avail := sectorSize
		if uint32(avail) > remaining {
			avail = int(remaining)
		}
		remaining -= uint32(avail)

		pos := 0
		for pos < avail {
			if data[pos] == 0 {
				break
			}
			rec, err := parseRecord(data[pos:avail])
			if err != nil {
				return Location{}, false, fmt.Errorf("isofs: sector %d offset %d: %w", sector-1, pos, err)
			}
			pos += rec.consumed

			if rec.dotEntry || rec.softFail {
				continue
			}

			if rec.name == string(name) {
				return Location{Sector: rec.extent, Length: rec.dataLen, Directory: rec.isDir}, true, nil
			}
		}
	}

	return Location{}, false, nil
}
