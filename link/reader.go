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

// Reader walks an inbound payload byte by byte, the read-side
// counterpart of Buffer. It implements the reader interface consumed by
// ParseAddress.
type Reader struct {
	data []byte
	pos  int
}

// NewReader wraps data for sequential reading from offset 0.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Remaining reports how many bytes are left to read.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// Position returns the current read offset.
func (r *Reader) Position() int {
	return r.pos
}

// SeekTo jumps to an absolute offset, clamped to the buffer length. Used
// to skip unknown trailing bytes of a record by jumping to its declared
// end (§4.G).
func (r *Reader) SeekTo(pos int) {
	if pos < 0 {
		pos = 0
	}
	if pos > len(r.data) {
		pos = len(r.data)
	}
	r.pos = pos
}

// GetByte reads one byte, returning (-1, false) at end of input —
// mirroring ob_get's "-1 means nothing left" convention.
func (r *Reader) GetByte() (int, bool) {
	if r.pos >= len(r.data) {
		return -1, false
	}
	b := r.data[r.pos]
	r.pos++
	return int(b), true
}

// GetU32BE reads a 32-bit big-endian integer.
func (r *Reader) GetU32BE() (uint32, bool) {
	if r.Remaining() < 4 {
		return 0, false
	}
	v := uint32(r.data[r.pos])<<24 | uint32(r.data[r.pos+1])<<16 | uint32(r.data[r.pos+2])<<8 | uint32(r.data[r.pos+3])
	r.pos += 4
	return v, true
}

func (r *Reader) readByte() (byte, bool) {
	v, ok := r.GetByte()
	if !ok {
		return 0, false
	}
	return byte(v), true
}

func (r *Reader) readBytes(n int) ([]byte, bool) {
	if r.Remaining() < n {
		return nil, false
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out, true
}
