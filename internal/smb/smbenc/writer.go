// Package smbenc provides little-endian sequential encoding and decoding of
// SMB wire data.
//
// The Writer grows by appending and supports back-patching: offset and length
// fields are written as placeholders and patched via WriteAt once the
// referenced payload has been emitted and the byte distance is known. The
// Reader accumulates the first error and turns all subsequent reads into
// no-ops, so a decode function can run straight through and check Err once.
package smbenc

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"
)

// Writer provides sequential writing of little-endian encoded SMB wire data
// with append-based growth and pre-allocated capacity.
type Writer struct {
	buf []byte
	err error
}

// NewWriter creates a new Writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{
		buf: make([]byte, 0, capacity),
	}
}

// WriteUint8 appends a single byte.
func (w *Writer) WriteUint8(v uint8) {
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, v)
}

// WriteUint16 appends a little-endian uint16.
func (w *Writer) WriteUint16(v uint16) {
	if w.err != nil {
		return
	}
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteUint32 appends a little-endian uint32.
func (w *Writer) WriteUint32(v uint32) {
	if w.err != nil {
		return
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteUint64 appends a little-endian uint64.
func (w *Writer) WriteUint64(v uint64) {
	if w.err != nil {
		return
	}
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteBytes appends raw bytes.
func (w *Writer) WriteBytes(data []byte) {
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, data...)
}

// WriteZeros appends n zero bytes.
func (w *Writer) WriteZeros(n int) {
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, make([]byte, n)...)
}

// WriteUTF16String appends the UTF-16LE encoding of s, without any
// terminator. A zero-length string appends nothing.
func (w *Writer) WriteUTF16String(s string) {
	if w.err != nil {
		return
	}
	for _, u := range utf16.Encode([]rune(s)) {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], u)
		w.buf = append(w.buf, b[:]...)
	}
}

// Pad pads the buffer to the given alignment boundary by appending zero
// bytes. If already aligned, no padding is added.
func (w *Writer) Pad(alignment int) {
	if w.err != nil {
		return
	}
	if alignment <= 0 {
		return
	}
	remainder := len(w.buf) % alignment
	if remainder == 0 {
		return
	}
	w.buf = append(w.buf, make([]byte, alignment-remainder)...)
}

// WriteAt overwrites bytes at the specified offset. Used for backpatching
// offset fields once the referenced payload position is known. Sets error if
// the write extends beyond the current buffer length.
func (w *Writer) WriteAt(offset int, data []byte) {
	if w.err != nil {
		return
	}
	if offset+len(data) > len(w.buf) {
		w.err = fmt.Errorf("smbenc: WriteAt out of bounds: offset %d + %d > %d", offset, len(data), len(w.buf))
		return
	}
	copy(w.buf[offset:], data)
}

// PatchUint16 back-patches a little-endian uint16 at the given offset.
func (w *Writer) PatchUint16(offset int, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.WriteAt(offset, b[:])
}

// PatchUint32 back-patches a little-endian uint32 at the given offset.
func (w *Writer) PatchUint32(offset int, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.WriteAt(offset, b[:])
}

// Bytes returns the accumulated bytes.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the current length of the buffer.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Err returns the first error encountered, or nil.
func (w *Writer) Err() error {
	return w.err
}

// EncodeUTF16 returns the UTF-16LE encoding of s.
func EncodeUTF16(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[i*2:], u)
	}
	return out
}

// DecodeUTF16 decodes UTF-16LE bytes into a string. A trailing odd byte is
// ignored.
func DecodeUTF16(b []byte) string {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return string(utf16.Decode(units))
}
