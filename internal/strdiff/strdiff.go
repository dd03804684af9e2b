// Package strdiff implements the string-diff codec: compact storage of a
// sorted sequence of byte strings by prefix-sharing, reconstruction of a
// single name by walking a back-pointer chain, and in-place compaction of
// a freshly built (self-contained) fragment array into diff-coded form.
package strdiff

import "fmt"

const (
	lastEffectiveEntryBits = 19
	substTableOffsetBits   = 24
	substPosBits           = 10

	// MaxEntries is the largest directory entry count the 19-bit back
	// pointer can address; MaxTableSize is the largest per-directory
	// string table the 24-bit offset can address; MaxNameLen is the
	// largest name the 10-bit begin/end positions can address.
	MaxEntries   = 1<<lastEffectiveEntryBits - 1
	MaxTableSize = 1 << substTableOffsetBits
	MaxNameLen   = 1 << substPosBits

	// sentinel marks "no ancestor": the chain stops here.
	sentinel = MaxEntries
)

// Fragment is the 64-bit packed name-fragment record described in the
// data model: last_effective_entry:19, clip_end:1, subst_table_offset:24,
// subst_begin:10, subst_end:10.
type Fragment uint64

const (
	shiftLastEffectiveEntry = 0
	shiftClipEnd            = shiftLastEffectiveEntry + lastEffectiveEntryBits
	shiftSubstTableOffset   = shiftClipEnd + 1
	shiftSubstBegin         = shiftSubstTableOffset + substTableOffsetBits
	shiftSubstEnd           = shiftSubstBegin + substPosBits

	maskLastEffectiveEntry = 1<<lastEffectiveEntryBits - 1
	maskSubstTableOffset   = 1<<substTableOffsetBits - 1
	maskSubstPos           = 1<<substPosBits - 1
)

// NewSelfContained builds the fragment for a freshly read, not-yet-diffed
// entry: the whole name lives at stringtable[offset:offset+length].
func NewSelfContained(offset, length int) (Fragment, error) {
	return pack(sentinel, true, offset, 0, length)
}

func pack(lee int, clipEnd bool, offset, begin, end int) (Fragment, error) {
	if lee < 0 || lee > MaxEntries {
		return 0, fmt.Errorf("strdiff: last_effective_entry %d out of range", lee)
	}
	if offset < 0 || offset >= MaxTableSize {
		return 0, fmt.Errorf("strdiff: subst_table_offset %d out of range", offset)
	}
	if begin < 0 || begin >= MaxNameLen || end < 0 || end >= MaxNameLen {
		return 0, fmt.Errorf("strdiff: subst range [%d,%d) out of range", begin, end)
	}

	var f Fragment
	f |= Fragment(lee&maskLastEffectiveEntry) << shiftLastEffectiveEntry
	if clipEnd {
		f |= 1 << shiftClipEnd
	}
	f |= Fragment(offset&maskSubstTableOffset) << shiftSubstTableOffset
	f |= Fragment(begin&maskSubstPos) << shiftSubstBegin
	f |= Fragment(end&maskSubstPos) << shiftSubstEnd
	return f, nil
}

func (f Fragment) LastEffectiveEntry() int {
	return int((f >> shiftLastEffectiveEntry) & maskLastEffectiveEntry)
}
func (f Fragment) ClipEnd() bool { return (f>>shiftClipEnd)&1 != 0 }
func (f Fragment) SubstTableOffset() int {
	return int((f >> shiftSubstTableOffset) & maskSubstTableOffset)
}
func (f Fragment) SubstBegin() int { return int((f >> shiftSubstBegin) & maskSubstPos) }
func (f Fragment) SubstEnd() int   { return int((f >> shiftSubstEnd) & maskSubstPos) }

// Reconstruct rebuilds the name of entry `top` into dst, returning the
// name's length plus one: dst[n-1] is a zero terminator, and bytes of dst
// from n on are not written. get(i) must return entry i's fragment for i
// in [0, n).
func Reconstruct(dst []byte, stringtable []byte, n int, get func(i int) Fragment, top int) (int, error) {
	const unbounded = 1 << 30

	clipAt := unbounded
	lee := top
	stringSize := 0

	for lee < n {
		frag := get(lee)

		endEff := frag.SubstEnd()
		if endEff > clipAt {
			endEff = clipAt
		}

		if endEff+1 > stringSize {
			if endEff+1 > len(dst) {
				return 0, fmt.Errorf("strdiff: reconstruction exceeds buffer of %d bytes", len(dst))
			}
			for i := stringSize; i < endEff+1; i++ {
				dst[i] = 0
			}
			stringSize = endEff + 1
		}

		begin, off := frag.SubstBegin(), frag.SubstTableOffset()
		for i := begin; i < endEff; i++ {
			if dst[i] == 0 {
				dst[i] = stringtable[off+(i-begin)]
			}
		}

		if frag.ClipEnd() {
			clipAt = endEff
		}

		lee = frag.LastEffectiveEntry()
	}

	return stringSize, nil
}

// Compact diff-encodes a strictly sorted, duplicate-free array of n
// self-contained fragments (as produced by NewSelfContained) in place via
// set, appending the surviving bytes of stringtable into a fresh, tightly
// packed table that it returns. Entries must already be sorted by the
// byte strings they denote. Fails if entry 0 is not self-contained
// (before calling set), or if any adjacent pair of entries is identical
// (detected during the pass, after earlier entries have been rewritten).
func Compact(stringtable []byte, n int, get func(i int) Fragment, set func(i int, f Fragment)) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}

	newTable := make([]byte, 0, len(stringtable))

	first := get(0)
	if !first.ClipEnd() || first.SubstBegin() != 0 {
		return nil, fmt.Errorf("strdiff: first entry is not self-contained")
	}

	// finalize commits the pending diff range computed for a now-settled
	// predecessor, reading its current (possibly lee-updated) fragment so
	// that a last_effective_entry written in an earlier round survives.
	finalize := func(index int, begin, end int, clipEnd bool) error {
		cur := get(index)
		off := len(newTable)
		src := stringtable[cur.SubstTableOffset():]
		newTable = append(newTable, src[begin:end]...)
		f, err := pack(cur.LastEffectiveEntry(), clipEnd, off, begin, end)
		if err != nil {
			return err
		}
		set(index, f)
		return nil
	}

	lastEntryIdx := 0
	lastEntryOrig := first
	lastDiffBegin, lastDiffEnd, lastClipEnd := 0, first.SubstEnd(), true

	for e := 1; e < n; e++ {
		entry := get(e)
		if !entry.ClipEnd() || entry.SubstBegin() != 0 {
			return nil, fmt.Errorf("strdiff: entry %d is not self-contained pre-compaction", e)
		}

		diffBegin, diffEnd := 0, 0
		clipEnd := false

		minLen := min(entry.SubstEnd(), lastEntryOrig.SubstEnd())
		for i := 0; i < minLen; i++ {
			if stringtable[entry.SubstTableOffset()+i] == stringtable[lastEntryOrig.SubstTableOffset()+i] {
				continue
			}
			if diffEnd == 0 {
				diffBegin = i
			}
			diffEnd = i + 1
		}

		switch {
		case entry.SubstEnd() < lastEntryOrig.SubstEnd():
			if diffEnd == 0 {
				diffBegin = entry.SubstEnd()
			}
			diffEnd = entry.SubstEnd()
			clipEnd = true
		case entry.SubstEnd() > lastEntryOrig.SubstEnd():
			if diffEnd == 0 {
				diffBegin = lastEntryOrig.SubstEnd()
			}
			diffEnd = entry.SubstEnd()
			clipEnd = true
		default:
			if diffEnd == 0 {
				return nil, fmt.Errorf("strdiff: duplicate entry at index %d", e)
			}
			if diffEnd == entry.SubstEnd() {
				clipEnd = true
			}
		}

		if err := finalize(lastEntryIdx, lastDiffBegin, lastDiffEnd, lastClipEnd); err != nil {
			return nil, err
		}

		lastEntryIdx = e
		lastEntryOrig = entry
		lastDiffBegin, lastDiffEnd, lastClipEnd = diffBegin, diffEnd, clipEnd

		var lee int
		if diffBegin == 0 && clipEnd {
			lee = sentinel
		} else {
			lee = e - 1
		}

		clipAt := entry.SubstEnd()
		for lee < n {
			o := get(lee)
			oEnd := o.SubstEnd()
			if oEnd > clipAt {
				oEnd = clipAt
			}
			if o.SubstBegin() < diffBegin || oEnd > diffEnd {
				break
			}
			if o.ClipEnd() {
				clipAt = oEnd
			}
			lee = o.LastEffectiveEntry()
		}

		// only the back pointer is final at this point; begin/end/offset
		// stay self-contained until this entry is finalized in a later
		// round (or in the epilogue below, if it is the last one).
		withLee, err := pack(lee, entry.ClipEnd(), entry.SubstTableOffset(), entry.SubstBegin(), entry.SubstEnd())
		if err != nil {
			return nil, err
		}
		set(e, withLee)
	}

	if err := finalize(lastEntryIdx, lastDiffBegin, lastDiffEnd, lastClipEnd); err != nil {
		return nil, err
	}

	return newTable, nil
}

// byteAt resolves the byte at position pos of entry index's reconstructed
// name without materializing the whole name, walking the fragment chain
// the same way Reconstruct does. ok is false if the name ends at or
// before pos.
func byteAt(stringtable []byte, n int, get func(i int) Fragment, index, pos int) (b byte, ok bool) {
	const unbounded = 1 << 30

	clipAt := unbounded
	lee := index

	for lee < n {
		f := get(lee)

		end := f.SubstEnd()
		if end > clipAt {
			end = clipAt
		}

		if pos < end {
			begin := f.SubstBegin()
			if pos >= begin {
				return stringtable[f.SubstTableOffset()+(pos-begin)], true
			}
		} else if f.ClipEnd() {
			return 0, false
		}

		if f.ClipEnd() {
			clipAt = end
		}
		lee = f.LastEffectiveEntry()
	}

	return 0, false
}

// compareFrom compares entry index's reconstructed name against name,
// starting at byte position `from` (bytes before `from` are assumed
// already known equal by the caller). It returns the strncmp-style
// ordering and how many leading bytes (from position 0) are now known to
// match.
func compareFrom(stringtable []byte, n int, get func(i int) Fragment, index int, name []byte, from int) (ordering, matched int) {
	pos := from
	for {
		mb, mok := byteAt(stringtable, n, get, index, pos)
		qb, qok := byte(0), pos < len(name)
		if qok {
			qb = name[pos]
		}

		switch {
		case !mok && !qok:
			return 0, pos
		case !mok:
			return -1, pos
		case !qok:
			return 1, pos
		case mb != qb:
			if mb < qb {
				return -1, pos
			}
			return 1, pos
		}
		pos++
	}
}

// Lookup binary-searches n sorted diff-encoded entries for name using
// character-wise ternary narrowing: each probe resumes the comparison
// from the shared prefix length already established by the current
// search bounds (min of the two bounds' known-matching prefixes) instead
// of reconstructing and comparing the full candidate name. Sorted order
// guarantees every candidate between the bounds shares at least that much
// prefix with the query, so no information is lost by skipping ahead.
func Lookup(stringtable []byte, n int, get func(i int) Fragment, name []byte) (index int, found bool) {
	begin, end := 0, n
	beginGE, endLE := 0, 0

	for begin != end {
		mid := begin + (end-begin)/2

		from := beginGE
		if endLE < from {
			from = endLE
		}

		cmp, matched := compareFrom(stringtable, n, get, mid, name, from)

		switch {
		case cmp == 0:
			return mid, true
		case cmp < 0:
			begin = mid + 1
			beginGE = matched
		default:
			end = mid
			endLE = matched
		}
	}

	return begin, false
}
