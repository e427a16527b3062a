package wire

import (
	"encoding/binary"
	"fmt"
)

// Frame is the fundamental request/response unit exchanged between a bus
// client and cmd/busd, ported from the teacher protocol's MessageFrame
// (12-byte header: object id, method id, sequence, then a payload) and
// repurposed to carry already-validated registry requests instead of POD
// audio arguments — the registry itself never sees a Frame (spec.md §1:
// "the ioctl marshaling layer" is out of scope for the core).
type Frame struct {
	ConnID   uint32 // requesting connection id (low 32 bits; see transport)
	Op       uint32 // operation code, see transport.Op*
	Sequence uint32 // request/response correlation id
	Payload  []byte
}

// Marshal encodes the frame as [connID(4)][op(4)][sequence(4)][payload].
func (f *Frame) Marshal() ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("nil frame")
	}
	header := make([]byte, 12)
	binary.LittleEndian.PutUint32(header[0:4], f.ConnID)
	binary.LittleEndian.PutUint32(header[4:8], f.Op)
	binary.LittleEndian.PutUint32(header[8:12], f.Sequence)
	return append(header, f.Payload...), nil
}

// Unmarshal decodes a frame previously produced by Marshal.
func (f *Frame) Unmarshal(data []byte) error {
	if f == nil {
		return fmt.Errorf("nil frame")
	}
	if len(data) < 12 {
		return fmt.Errorf("frame too short: %d bytes (need >= 12)", len(data))
	}
	f.ConnID = binary.LittleEndian.Uint32(data[0:4])
	f.Op = binary.LittleEndian.Uint32(data[4:8])
	f.Sequence = binary.LittleEndian.Uint32(data[8:12])
	if len(data) > 12 {
		f.Payload = append([]byte(nil), data[12:]...)
	}
	return nil
}

func (f *Frame) String() string {
	if f == nil {
		return "Frame{nil}"
	}
	return fmt.Sprintf("Frame{conn:%d op:%d seq:%d payload:%dB}", f.ConnID, f.Op, f.Sequence, len(f.Payload))
}

// PutString appends a length-prefixed (u32 length, little-endian) string
// to buf and returns the result — the payload encoding used by every
// request/response body in package transport.
func PutString(buf []byte, s string) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, s...)
}

// GetString reads a length-prefixed string written by PutString, returning
// the remaining slice after it.
func GetString(buf []byte) (s string, rest []byte, err error) {
	if len(buf) < 4 {
		return "", nil, errShortBuffer("string length")
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	buf = buf[4:]
	if uint64(len(buf)) < uint64(n) {
		return "", nil, errShortBuffer("string data")
	}
	return string(buf[:n]), buf[n:], nil
}

// PutUint64 appends a little-endian u64.
func PutUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

// GetUint64 reads a little-endian u64, returning the remaining slice.
func GetUint64(buf []byte) (v uint64, rest []byte, err error) {
	if len(buf) < 8 {
		return 0, nil, errShortBuffer("uint64")
	}
	return binary.LittleEndian.Uint64(buf[0:8]), buf[8:], nil
}

// PutUint32 appends a little-endian u32.
func PutUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

// GetUint32 reads a little-endian u32, returning the remaining slice.
func GetUint32(buf []byte) (v uint32, rest []byte, err error) {
	if len(buf) < 4 {
		return 0, nil, errShortBuffer("uint32")
	}
	return binary.LittleEndian.Uint32(buf[0:4]), buf[4:], nil
}
