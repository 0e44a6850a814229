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

// Modifier bits carried through from the caller into the header flags.
const (
	ModifierCiphered uint8 = 1 << 0
	ModifierSigned   uint8 = 1 << 1
)

// Header flag bits (§4.C, §6).
const (
	flagCiphered    uint8 = 1 << 0
	flagSigned      uint8 = 1 << 1
	flagOneHop      uint8 = 1 << 2
	flagSenderSame  uint8 = 1 << 3
	flagToBroadcast uint8 = 1 << 4
	flagLegacyType  uint8 = 1 << 5
)

// FrameDescriptor is the input to BuildHeader (§4.C).
type FrameDescriptor struct {
	Queue       uint8 // 0-3
	Type        uint8
	Modifiers   uint8
	TTL         uint8 // 0..PayloadTTLMax
	BroadcastID *[BroadcastLen]byte
	NextHop     *Subscriber
	Destination *Subscriber // nil means broadcast
	Source      *Subscriber
}

// BuildHeader emits the variable-layout overlay frame header described
// in §4.C directly into buf. The payload body (16-bit length + bytes) is
// the caller's responsibility.
func BuildHeader(ctx *DecodeContext, buf *Buffer, fd FrameDescriptor) error {
	if fd.TTL > PayloadTTLMax {
		return ErrInvalidTTL
	}

	flags := fd.Modifiers & (flagCiphered | flagSigned)

	if (fd.TTL == 1 && fd.BroadcastID == nil) ||
		(fd.Destination != nil && fd.Destination == fd.NextHop) {
		flags |= flagOneHop
	}

	if fd.Source != nil && fd.Source.SID == ctx.Sender {
		flags |= flagSenderSame
	}

	if fd.Destination == nil {
		flags |= flagToBroadcast
	}

	if fd.Type != FrameTypeData {
		flags |= flagLegacyType
	}

	if err := buf.AppendByte(flags); err != nil {
		return err
	}

	if flags&flagSenderSame == 0 {
		if err := AppendAddress(ctx, buf, fd.Source); err != nil {
			return err
		}
	}

	if flags&flagToBroadcast != 0 {
		if flags&flagOneHop == 0 {
			id := fd.BroadcastID
			if id == nil {
				var zero [BroadcastLen]byte
				id = &zero
			}
			if err := buf.AppendBytes(id[:]); err != nil {
				return err
			}
		}
	} else {
		if err := AppendAddress(ctx, buf, fd.Destination); err != nil {
			return err
		}
		if flags&flagOneHop == 0 {
			if err := AppendAddress(ctx, buf, fd.NextHop); err != nil {
				return err
			}
		}
	}

	if flags&flagOneHop == 0 {
		combined := (fd.TTL & 0x1F) | ((fd.Queue & 3) << 5)
		if err := buf.AppendByte(combined); err != nil {
			return err
		}
	}

	if flags&flagLegacyType != 0 {
		if err := buf.AppendByte(fd.Type); err != nil {
			return err
		}
	}

	return nil
}
