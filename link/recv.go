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

// Link advertisement record flag bits (§6).
const (
	RecordHasInterface uint8 = 1 << 0
	RecordNoPath       uint8 = 1 << 1
	RecordBroadcast    uint8 = 1 << 2
	RecordUnicast      uint8 = 1 << 3
	RecordHasAck       uint8 = 1 << 4
	RecordHasDropRate  uint8 = 1 << 5
)

// popcount15 counts set bits in the low 15 bits of mask, using the
// original's branchless bit-twiddling rather than math/bits so the
// "low 15 bits only" masking stays visible at the call site (§9).
func popcount15(mask uint32) int {
	i := mask & 0x7FFF
	i = i - ((i >> 1) & 0x55555555)
	i = (i & 0x33333333) + ((i >> 2) & 0x33333333)
	return int((((i + (i >> 4)) & 0x0F0F0F0F) * 0x01010101) >> 24)
}

// LinkReceivedPacket records that we heard sender on ourInterface (their
// interface index theirInterface), with sequence number seq (-1 if the
// transport has none), and updates the per-link ACK window (§4.G).
// Unicast packets are ignored. It returns the neighbour's resulting
// NextNeighbourUpdate so the caller can pull the send alarm forward.
func (t *Table) LinkReceivedPacket(sender *Subscriber, ourInterface Interface, theirInterface int, seq int, unicast bool, now int64) int64 {
	if unicast {
		return 0
	}

	neighbour := t.GetNeighbour(sender.SID, sender, true)
	nl := t.GetNeighbourLink(neighbour, ourInterface, theirInterface, unicast)

	nextUpdate := neighbour.NextNeighbourUpdate
	neighbour.AckCounter--

	if seq >= 0 {
		if nl.AckSequence != -1 {
			offset := (nl.AckSequence - 1 - seq) & 0xFF
			if offset < 32 {
				// Late arrival of a previously-missed sequence.
				nl.AckMask |= 1 << uint(offset)
			} else {
				nl.AckMask = (nl.AckMask << 1) | 1
				for {
					nl.AckSequence = (nl.AckSequence + 1) & 0xFF
					if nl.AckSequence == seq {
						break
					}
					// A gap before seq: a missed packet, bring the
					// update forward.
					nl.AckMask = nl.AckMask << 1
					nextUpdate = now + 100
				}
			}
		} else {
			nl.AckSequence = seq
		}
	}

	if neighbour.AckCounter <= 0 {
		nextUpdate = now + 10
	}
	if nl.LinkTimeout < now {
		nextUpdate = now
	}

	if nextUpdate < neighbour.NextNeighbourUpdate {
		neighbour.NextNeighbourUpdate = nextUpdate
	}

	nl.LinkTimeout = now + ourInterface.TickMS()*5

	return neighbour.NextNeighbourUpdate
}

// parsedRecord is one decoded link advertisement record (§6).
type parsedRecord struct {
	receiver    *Subscriber
	transmitter *Subscriber
	hasTransmitter bool
	version     int
	interfaceID int // -1 if absent
	ackSeq      int // -1 if absent
	ackMask     uint32
	dropRate    int // -1 if absent
	skip        bool

	// unresolved and unresolvedKnown carry the raw SID behind a skipped
	// record's unresolvable address, when one was actually seen on the
	// wire (§4.G "please explain" batching).
	unresolved      SID
	unresolvedKnown bool
}

// parseOneRecord decodes a single record starting at r's current
// position. It never advances r past the record's declared length,
// even on unknown trailing bytes (§4.G).
func parseOneRecord(ctx *DecodeContext, r *Reader, directory Directory) (parsedRecord, bool) {
	var rec parsedRecord
	rec.interfaceID = -1
	rec.ackSeq = -1
	rec.dropRate = -1

	start := r.Position()

	length, ok := r.GetByte()
	if !ok || length <= 0 {
		return rec, false
	}

	flags, ok := r.GetByte()
	if !ok {
		return rec, false
	}

	receiver, err := ParseAddress(ctx, r, directory)
	if err != nil && err != ErrParseUnknownAddress {
		return rec, false
	}
	rec.receiver = receiver

	version, ok := r.GetByte()
	if !ok {
		return rec, false
	}
	rec.version = version

	if uint8(flags)&RecordNoPath == 0 {
		transmitter, err := ParseAddress(ctx, r, directory)
		if err != nil && err != ErrParseUnknownAddress {
			return rec, false
		}
		rec.transmitter = transmitter
		rec.hasTransmitter = true
	}

	if uint8(flags)&RecordHasInterface != 0 {
		id, ok := r.GetByte()
		if !ok {
			return rec, false
		}
		rec.interfaceID = id
	}

	if uint8(flags)&RecordHasAck != 0 {
		seq, ok := r.GetByte()
		if !ok {
			return rec, false
		}
		mask, ok := r.GetU32BE()
		if !ok {
			return rec, false
		}
		rec.ackSeq = seq
		rec.ackMask = mask

		dropRate := 15 - popcount15(mask)
		if dropRate <= 2 {
			dropRate = 0
		}
		rec.dropRate = dropRate
	}

	if uint8(flags)&RecordHasDropRate != 0 {
		dr, ok := r.GetByte()
		if !ok {
			return rec, false
		}
		rec.dropRate = dr
	}

	// Jump to the declared end of the record regardless of what we
	// actually understood.
	r.SeekTo(start + length)

	if ctx.InvalidAddresses {
		rec.skip = true
		rec.unresolved = ctx.unresolvedSID
		rec.unresolvedKnown = ctx.unresolvedKnown
		ctx.InvalidAddresses = false
		ctx.unresolvedKnown = false
	}

	return rec, true
}

// InterfaceByID resolves an interface_id field (0..OVERLAY_MAX_INTERFACES-1)
// to a live Interface; the receive path treats an interface that isn't
// currently UP the same as an unresolvable one.
type InterfaceByID func(id int) (Interface, bool)

// LinkReceive parses a sequence of link advertisement records from an
// inbound payload (§4.G) and updates this table's neighbour/link state
// accordingly. It returns whether anything changed (the caller bumps
// RouteVersion and the neighbour's PathVersion, and pulls the send
// alarm forward, per §4.G) together with the set of SIDs whose
// addresses could not be resolved (for a batched "please explain").
func (t *Table) LinkReceive(sender *Subscriber, payload []byte, mySubscriber *Subscriber, now int64, directory Directory, ifaceByID InterfaceByID) (changed bool, unresolved []SID) {
	ctx := NewDecodeContext(sender.SID)
	r := NewReader(payload)
	neighbour := t.GetNeighbour(sender.SID, sender, true)

	for r.Remaining() > 0 {
		rec, ok := parseOneRecord(ctx, r, directory)
		if !ok {
			break
		}
		if rec.skip {
			if rec.unresolvedKnown {
				unresolved = append(unresolved, rec.unresolved)
			}
			continue
		}
		if rec.receiver == nil {
			continue
		}

		// Records naming us as the receiver are not stored in the
		// neighbour's BST.
		if rec.receiver == mySubscriber {
			continue
		}

		var transmitter *Subscriber
		var iface Interface
		create := false

		if rec.receiver == sender {
			// Who can our neighbour hear? If they name us as their
			// transmitter on one of our interfaces, they can hear us: we
			// can route through them. Falls through to record the
			// resulting one-hop link (receiver=sender,
			// transmitter=mySubscriber) — this is the only link that
			// ever scores hop_count==1 (Invariant 2, score.go).
			if !(rec.hasTransmitter && rec.transmitter == mySubscriber && rec.interfaceID != -1) {
				continue
			}

			resolved, ok := ifaceByID(rec.interfaceID)
			if !ok || resolved.State() != InterfaceUp {
				continue
			}
			iface = resolved

			if neighbour.NeighbourLinkTimeout < now {
				changed = true
			}
			neighbour.NeighbourLinkTimeout = now + iface.TickMS()*5

			transmitter = mySubscriber
			create = true
		} else {
			transmitter = rec.transmitter
			if transmitter == mySubscriber {
				transmitter = nil
			}
			create = transmitter != nil
		}

		existing := t.FindLink(neighbour, rec.receiver, create)
		if existing == nil {
			continue
		}

		version := rec.version
		if transmitter == mySubscriber {
			version = existing.LinkVersion
			if rec.dropRate != existing.DropRate || transmitter != existing.Transmitter {
				version++
			}
		}

		if existing.Transmitter != transmitter || existing.LinkVersion != version {
			changed = true
			existing.Transmitter = transmitter
			existing.LinkVersion = version
			existing.Interface = iface
			existing.DropRate = rec.dropRate
		}
	}

	return changed, unresolved
}
