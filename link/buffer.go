/*
 * VC5 load balancer. Copyright (C) 2021-present David Coles
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation; either version 2 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License along
 * with this program; if not, write to the Free Software Foundation, Inc.,
 * 51 Franklin Street, Fifth Floor, Boston, MA 02110-1301 USA.
 */

package link

// Buffer is an append-only byte writer with a checkpoint/rewind
// transaction mechanism and an optional size limit (§4.A). A failed
// append never mutates the buffer: the write is checked against the
// limit before any byte is copied in.
type Buffer struct {
	data       []byte
	checkpoint int
	limit      int // 0 means unlimited
}

// NewBuffer returns an empty buffer with the given initial capacity hint.
func NewBuffer(capacityHint int) *Buffer {
	return &Buffer{data: make([]byte, 0, capacityHint)}
}

// LimitSize caps the buffer at n bytes; 0 removes the limit.
func (b *Buffer) LimitSize(n int) {
	b.limit = n
}

func (b *Buffer) fits(extra int) bool {
	return b.limit == 0 || len(b.data)+extra <= b.limit
}

// AppendByte appends a single byte.
func (b *Buffer) AppendByte(v byte) error {
	if !b.fits(1) {
		return ErrBufferFull
	}
	b.data = append(b.data, v)
	return nil
}

// AppendU16BE appends a 16-bit big-endian integer.
func (b *Buffer) AppendU16BE(v uint16) error {
	if !b.fits(2) {
		return ErrBufferFull
	}
	b.data = append(b.data, byte(v>>8), byte(v))
	return nil
}

// AppendU32BE appends a 32-bit big-endian integer.
func (b *Buffer) AppendU32BE(v uint32) error {
	if !b.fits(4) {
		return ErrBufferFull
	}
	b.data = append(b.data, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	return nil
}

// AppendBytes appends a raw slice.
func (b *Buffer) AppendBytes(p []byte) error {
	if !b.fits(len(p)) {
		return ErrBufferFull
	}
	b.data = append(b.data, p...)
	return nil
}

// Position returns the current write offset.
func (b *Buffer) Position() int {
	return len(b.data)
}

// Set overwrites the byte at offset, used to back-patch a length field
// after the fact. offset must already have been written.
func (b *Buffer) Set(offset int, v byte) error {
	if offset < 0 || offset >= len(b.data) {
		return ErrBufferFull
	}
	b.data[offset] = v
	return nil
}

// Checkpoint marks the current position as the point rewind returns to.
func (b *Buffer) Checkpoint() {
	b.checkpoint = len(b.data)
}

// Rewind discards everything appended since the last Checkpoint. Used as
// a transactional abort after a partially written record.
func (b *Buffer) Rewind() {
	b.data = b.data[:b.checkpoint]
}

// Bytes returns the buffer's contents. The caller must not retain it
// across further appends.
func (b *Buffer) Bytes() []byte {
	return b.data
}
