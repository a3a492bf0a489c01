package asm

import "encoding/binary"

// ByteBuffer is an append-only growable byte sink with typed little-endian
// pushers and random-access overwrite, used for the program stream (the
// static-data sink is a plain byte slice). Operand widths are variable
// per opcode, so pushes come in u8/u16/u32/u64/cstring flavors rather
// than one fixed-width record shape.
type ByteBuffer struct {
	buf []byte
}

// NewByteBuffer returns an empty buffer.
func NewByteBuffer() *ByteBuffer {
	return &ByteBuffer{}
}

// Len returns the number of bytes written so far.
func (b *ByteBuffer) Len() int { return len(b.buf) }

func (b *ByteBuffer) PushU8(v uint8) {
	b.buf = append(b.buf, v)
}

func (b *ByteBuffer) PushU16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

func (b *ByteBuffer) PushU32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

func (b *ByteBuffer) PushU64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

func (b *ByteBuffer) PushI64(v int64) {
	b.PushU64(uint64(v))
}

// PushCString appends s followed by a single null terminator.
func (b *ByteBuffer) PushCString(s string) {
	b.buf = append(b.buf, s...)
	b.buf = append(b.buf, 0)
}

// PushBytes appends raw bytes verbatim.
func (b *ByteBuffer) PushBytes(p []byte) {
	b.buf = append(b.buf, p...)
}

// OverwriteI64 rewrites the 8 bytes at offset with v, little-endian. Used
// by the assembler's label fix-up pass to patch placeholder displacements.
func (b *ByteBuffer) OverwriteI64(offset int, v int64) {
	binary.LittleEndian.PutUint64(b.buf[offset:offset+8], uint64(v))
}

// ReadU16 reads a little-endian u16 at offset without mutating the buffer.
func (b *ByteBuffer) ReadU16(offset int) uint16 {
	return binary.LittleEndian.Uint16(b.buf[offset : offset+2])
}

// Build finalizes the buffer into an owned, independent byte slice.
func (b *ByteBuffer) Build() []byte {
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}

// Bytes exposes the buffer's current contents without copying; callers
// must not retain the slice past further pushes.
func (b *ByteBuffer) Bytes() []byte { return b.buf }
