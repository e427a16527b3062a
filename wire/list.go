// Package wire implements the bit-exact binary layouts that are part of
// busreg's external contract: the list-output buffer of spec.md §6 and the
// request/response frame format used by package transport. Everything here
// is little-endian (the list buffer's records are also 8-byte aligned; frame
// headers and length-prefixed strings are not padded), mirroring the teacher protocol's
// header+payload framing (github.com/vignemail1/pipewire-go's
// core/message.go) rather than a general-purpose serialization library.
package wire

import (
	"encoding/binary"
)

// recordHeaderSize is the fixed prefix of every list record: record_size,
// flags, id, conn_flags — four u64 fields.
const recordHeaderSize = 32

// ListRecord is one row destined for the List output buffer.
type ListRecord struct {
	Flags     uint64
	ID        uint64
	ConnFlags uint64
	Name      string // empty for a unique-id record with no name
	HasName   bool
}

func padTo8(n int) int {
	if rem := n % 8; rem != 0 {
		return n + (8 - rem)
	}
	return n
}

func (r ListRecord) encodedSize() int {
	if !r.HasName {
		return recordHeaderSize
	}
	return padTo8(recordHeaderSize + len(r.Name) + 1)
}

// BuildList serializes records into the exact buffer layout of spec.md §6:
// an 8-byte total_size header followed by each 8-byte-aligned record in
// order. A first pass over records computes sizes, a second pass writes
// into a single pre-sized allocation — mirroring the reference
// implementation's two-pass list algorithm, which this package preserves
// because the output layout (not just its content) is part of the
// external contract.
func BuildList(records []ListRecord) []byte {
	total := 8 // header
	for _, rec := range records {
		total += rec.encodedSize()
	}

	buf := make([]byte, total)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(total))

	off := 8
	for _, rec := range records {
		sz := rec.encodedSize()
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(sz))
		binary.LittleEndian.PutUint64(buf[off+8:off+16], rec.Flags)
		binary.LittleEndian.PutUint64(buf[off+16:off+24], rec.ID)
		binary.LittleEndian.PutUint64(buf[off+24:off+32], rec.ConnFlags)
		if rec.HasName {
			copy(buf[off+32:], rec.Name)
			buf[off+32+len(rec.Name)] = 0
			// remaining pad bytes are already zero from make([]byte, ...)
		}
		off += sz
	}

	return buf
}

// ParsedRecord is a decoded list record, for clients reading the List
// output buffer back (e.g. cmd/busctl, cmd/busmon).
type ParsedRecord struct {
	Flags     uint64
	ID        uint64
	ConnFlags uint64
	Name      string
	HasName   bool
}

// ParseList decodes a buffer produced by BuildList.
func ParseList(buf []byte) ([]ParsedRecord, error) {
	if len(buf) < 8 {
		return nil, errShortBuffer("list header")
	}
	total := binary.LittleEndian.Uint64(buf[0:8])
	if uint64(len(buf)) != total {
		return nil, errSizeMismatch(total, uint64(len(buf)))
	}

	var out []ParsedRecord
	off := 8
	for off < len(buf) {
		if off+recordHeaderSize > len(buf) {
			return nil, errShortBuffer("record header")
		}
		size := binary.LittleEndian.Uint64(buf[off : off+8])
		flags := binary.LittleEndian.Uint64(buf[off+8 : off+16])
		id := binary.LittleEndian.Uint64(buf[off+16 : off+24])
		connFlags := binary.LittleEndian.Uint64(buf[off+24 : off+32])

		rec := ParsedRecord{Flags: flags, ID: id, ConnFlags: connFlags}
		if int(size) > recordHeaderSize {
			nameBytes := buf[off+32 : off+int(size)]
			nulAt := -1
			for i, b := range nameBytes {
				if b == 0 {
					nulAt = i
					break
				}
			}
			if nulAt < 0 {
				return nil, errShortBuffer("name terminator")
			}
			rec.Name = string(nameBytes[:nulAt])
			rec.HasName = true
		}
		out = append(out, rec)
		off += int(size)
	}

	return out, nil
}
