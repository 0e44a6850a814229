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

// DecodeContext tracks, for a single packet, which SIDs have already
// been written or read in full so that a later reference to the same
// subscriber can use a one-byte abbreviation instead (§4.B).
//
// The compression scheme itself is not mandated by the spec (it is
// "whatever the external framing defines"); this is the simplest scheme
// consistent with "a per-packet decode context that tracks which SIDs
// have already appeared":
//
//	addrFull      (0xff) full 32-byte SID follows, recorded for later reuse
//	addrSender    (0x00) no bytes follow; refers to ctx.Sender
//	addrAbbrev    (0x01) one byte follows: an index into previously seen SIDs
type DecodeContext struct {
	Sender SID

	// InvalidAddresses is set by Parse when a referenced abbreviation
	// cannot be resolved; the caller batches a "please explain" for the
	// sender once the whole payload has been processed.
	InvalidAddresses bool

	// unresolvedSID and unresolvedKnown record the raw SID behind the
	// most recent InvalidAddresses, when Parse actually saw one (a
	// full-SID or "same as sender" reference that the directory just
	// doesn't know yet) as opposed to an abbreviation index with nothing
	// behind it at all.
	unresolvedSID   SID
	unresolvedKnown bool

	seen []SID
}

// NewDecodeContext returns a context for a packet received from (or, on
// the encode side, destined to carry records about) sender.
func NewDecodeContext(sender SID) *DecodeContext {
	return &DecodeContext{Sender: sender}
}

const (
	addrSender addrTag = 0x00
	addrAbbrev addrTag = 0x01
	addrFull   addrTag = 0xff
)

type addrTag byte

func (ctx *DecodeContext) indexOf(sid SID) (int, bool) {
	for i, s := range ctx.seen {
		if s == sid {
			return i, true
		}
	}
	return 0, false
}

// AppendAddress encodes a subscriber reference into buf using ctx's
// abbreviation table.
func AppendAddress(ctx *DecodeContext, buf *Buffer, subscriber *Subscriber) error {
	if subscriber == nil {
		return ErrParseUnknownAddress
	}

	if subscriber.SID == ctx.Sender {
		return buf.AppendByte(byte(addrSender))
	}

	if idx, ok := ctx.indexOf(subscriber.SID); ok {
		if err := buf.AppendByte(byte(addrAbbrev)); err != nil {
			return err
		}
		return buf.AppendByte(byte(idx))
	}

	if err := buf.AppendByte(byte(addrFull)); err != nil {
		return err
	}
	if err := buf.AppendBytes(subscriber.SID[:]); err != nil {
		return err
	}
	ctx.seen = append(ctx.seen, subscriber.SID)
	return nil
}

// reader is the minimal interface Parse needs off an inbound buffer;
// recv.go implements this over the raw record bytes being walked.
type reader interface {
	readByte() (byte, bool)
	readBytes(n int) ([]byte, bool)
}

// ParseAddress decodes a subscriber reference previously written by
// AppendAddress, resolving it against directory. On an unresolvable
// abbreviation it sets ctx.InvalidAddresses and returns
// ErrParseUnknownAddress; on truncation it returns ErrParseTruncated.
func ParseAddress(ctx *DecodeContext, r reader, directory Directory) (*Subscriber, error) {
	tag, ok := r.readByte()
	if !ok {
		return nil, ErrParseTruncated
	}

	switch addrTag(tag) {
	case addrSender:
		sub, ok := directory.Lookup(ctx.Sender)
		if !ok {
			ctx.markUnresolved(ctx.Sender)
			return nil, ErrParseUnknownAddress
		}
		return sub, nil

	case addrAbbrev:
		idx, ok := r.readByte()
		if !ok {
			return nil, ErrParseTruncated
		}
		if int(idx) >= len(ctx.seen) {
			ctx.InvalidAddresses = true
			return nil, ErrParseUnknownAddress
		}
		sid := ctx.seen[idx]
		sub, ok := directory.Lookup(sid)
		if !ok {
			ctx.markUnresolved(sid)
			return nil, ErrParseUnknownAddress
		}
		return sub, nil

	case addrFull:
		raw, ok := r.readBytes(32)
		if !ok {
			return nil, ErrParseTruncated
		}
		var sid SID
		copy(sid[:], raw)
		ctx.seen = append(ctx.seen, sid)
		sub, ok := directory.Lookup(sid)
		if !ok {
			ctx.markUnresolved(sid)
			return nil, ErrParseUnknownAddress
		}
		return sub, nil

	default:
		ctx.InvalidAddresses = true
		return nil, ErrParseUnknownAddress
	}
}

func (ctx *DecodeContext) markUnresolved(sid SID) {
	ctx.InvalidAddresses = true
	ctx.unresolvedSID = sid
	ctx.unresolvedKnown = true
}
