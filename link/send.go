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

import "sort"

// Timing constants, §6.
const (
	IncludeAnyway       = 500   // ms slack applied to neighbour/subscriber deadlines
	AckWindow           = 16    // ack_counter reload value
	MaxLinkStates       = 512   // resource-budgeting upper bound, not enforced directly
	SubscriberPeriodMS  = 5000  // default re-advertisement period for a subscriber link
	AlarmCeilingMS      = 10000 // worst-case time between send passes
	PayloadCapBytes     = 400   // outbound link-state payload cap
	PostReceiveDrainMS  = 10    // deadline pulled in after a changed receive
)

// appendLinkState writes one link advertisement record (§4.H, §6):
// length byte (back-patched), flags, receiver, version, optional
// transmitter/interface/ack/drop-rate. On success it checkpoints the
// buffer; on failure (buffer full) it leaves the buffer exactly as far
// as it got — the caller is responsible for a final unconditional
// Rewind so a partial record never survives (§4.A, §7 BUFFER_FULL).
func appendLinkState(ctx *DecodeContext, buf *Buffer, baseFlags uint8, transmitter, receiver *Subscriber, interfaceID, version, ackSeq int, ackMask uint32, dropRate int) error {
	flags := baseFlags
	if interfaceID != -1 {
		flags |= RecordHasInterface
	}
	if transmitter == nil {
		flags |= RecordNoPath
	}
	if ackSeq != -1 {
		flags |= RecordHasAck
	}
	if dropRate != -1 {
		flags |= RecordHasDropRate
	}

	lengthPos := buf.Position()
	if err := buf.AppendByte(0); err != nil {
		return err
	}
	if err := buf.AppendByte(flags); err != nil {
		return err
	}
	if err := AppendAddress(ctx, buf, receiver); err != nil {
		return err
	}
	if err := buf.AppendByte(byte(version)); err != nil {
		return err
	}
	if transmitter != nil {
		if err := AppendAddress(ctx, buf, transmitter); err != nil {
			return err
		}
	}
	if interfaceID != -1 {
		if err := buf.AppendByte(byte(interfaceID)); err != nil {
			return err
		}
	}
	if ackSeq != -1 {
		if err := buf.AppendByte(byte(ackSeq)); err != nil {
			return err
		}
		if err := buf.AppendU32BE(ackMask); err != nil {
			return err
		}
	}
	if dropRate != -1 {
		if err := buf.AppendByte(byte(dropRate)); err != nil {
			return err
		}
	}

	end := buf.Position()
	if err := buf.Set(lengthPos, byte(end-lengthPos)); err != nil {
		return err
	}
	buf.Checkpoint()
	return nil
}

// bestNeighbourLink picks the neighbour-link whose interface compares
// best, ties broken by keeping the neighbour's current best (avoids
// churn when two interfaces are equivalent).
func bestNeighbourLink(n *Neighbour) *NeighbourLink {
	if len(n.Links) == 0 {
		return nil
	}
	best := n.Links[0]
	if n.BestLink != nil {
		for _, l := range n.Links {
			if l == n.BestLink {
				best = l
				break
			}
		}
	}
	for _, l := range n.Links {
		if l.Interface != best.Interface && l.Interface.Better(best.Interface) {
			best = l
		}
	}
	return best
}

func sortedNeighbours(m map[SID]*Neighbour) []*Neighbour {
	out := make([]*Neighbour, 0, len(m))
	for _, n := range m {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Subscriber.SID.Less(out[j].Subscriber.SID)
	})
	return out
}

// LegacyAckBuilder builds the 9-byte legacy self-announce-ACK frame sent
// to neighbours still running the old protocol (§4.H, §6).
type LegacyAckBuilder func(neighbour *Neighbour, link *NeighbourLink, now int64) *Frame

// linkSendNeighbours emits one record per live neighbour whose best
// link changed or whose update deadline has arrived (§4.H step 3). It
// returns false (matching the source's "overflowed" signal) the moment
// an appendLinkState call fails because the payload is full.
func (t *Table) linkSendNeighbours(ctx *DecodeContext, payload *Buffer, mySubscriber *Subscriber, now int64, legacyAck LegacyAckBuilder, legacyFrames *[]*Frame, nextAlarm *int64) bool {
	t.CleanNeighbours(now)

	for _, n := range sortedNeighbours(t.Neighbours) {
		best := bestNeighbourLink(n)

		if n.BestLink != best {
			n.BestLink = best
			n.NextNeighbourUpdate = now
		}

		if n.NextNeighbourUpdate-IncludeAnyway <= now && best != nil {
			if n.LegacyProtocol {
				if legacyAck != nil {
					if f := legacyAck(n, best, now); f != nil {
						*legacyFrames = append(*legacyFrames, f)
					}
				}
			} else {
				var flags uint8
				if best.Unicast {
					flags |= RecordUnicast
				} else {
					flags |= RecordBroadcast
				}
				if err := appendLinkState(ctx, payload, flags, n.Subscriber, mySubscriber, best.NeighbourInterface, 1, best.AckSequence, best.AckMask, -1); err != nil {
					*nextAlarm = now
					return false
				}
			}
			n.LastUpdate = now
			n.NextNeighbourUpdate = now + best.Interface.TickMS()
			n.AckCounter = AckWindow
		}

		if n.NextNeighbourUpdate < *nextAlarm {
			*nextAlarm = n.NextNeighbourUpdate
		}
	}

	return true
}

// appendSubscriberLinks enumerates every non-self subscriber whose
// link-state deadline has arrived and writes its record (§4.H step 4).
func (t *Table) appendSubscriberLinks(ctx *DecodeContext, payload *Buffer, mySubscriber *Subscriber, directory Directory, now int64, announce AnnounceFunc, nextAlarm *int64) {
	directory.Enumerate(func(s *Subscriber) bool {
		if s == mySubscriber {
			return true
		}

		if err := t.FindBestLink(s, mySubscriber, now, announce); err != nil {
			// Already being calculated higher up the stack: skip this
			// subscriber for this pass (§4.F).
			return true
		}

		state := t.getLinkState(s)
		if state.nextUpdate-IncludeAnyway <= now {
			var err error
			if s.Reachable == ReachableSelf {
				err = appendLinkState(ctx, payload, 0, mySubscriber, s, -1, 1, -1, 0, 0)
			} else {
				l := state.link
				version, dropRate := -1, 32
				if l != nil {
					version = l.LinkVersion
					dropRate = l.DropRate
				}
				err = appendLinkState(ctx, payload, 0, state.transmitter, s, -1, version, -1, 0, dropRate)
			}
			if err != nil {
				*nextAlarm = now
				return false
			}
			state.nextUpdate = now + SubscriberPeriodMS
		}

		if state.nextUpdate < *nextAlarm {
			*nextAlarm = state.nextUpdate
		}
		return true
	})
}

// SendTick drives one firing of the send alarm (§4.H): it composes a
// single DATA frame containing neighbour heartbeats and dirty subscriber
// link records, plus any legacy self-announce-ACK frames owed to legacy
// neighbours. It returns the frame to enqueue (nil if nothing was
// written), the legacy frames to enqueue alongside it, and the time the
// alarm should next be armed for.
func (t *Table) SendTick(mySubscriber *Subscriber, directory Directory, now int64, portPrefixer PortPrefixer, announce AnnounceFunc, legacyAck LegacyAckBuilder) (frame *Frame, legacyFrames []*Frame, nextAlarm int64) {
	nextAlarm = now + AlarmCeilingMS

	payload := NewBuffer(PayloadCapBytes)
	payload.LimitSize(PayloadCapBytes)

	ctx := NewDecodeContext(mySubscriber.SID)

	if err := portPrefixer.EncodePorts(payload, LinkstatePort, LinkstatePort); err != nil {
		return nil, nil, nextAlarm
	}
	payload.Checkpoint()
	startPos := payload.Position()

	if t.linkSendNeighbours(ctx, payload, mySubscriber, now, legacyAck, &legacyFrames, &nextAlarm) {
		t.appendSubscriberLinks(ctx, payload, mySubscriber, directory, now, announce, &nextAlarm)
	}

	payload.Rewind()

	if payload.Position() == startPos {
		return nil, legacyFrames, nextAlarm
	}

	return &Frame{
		Type:    FrameTypeData,
		TTL:     1,
		Queue:   QueueMeshManagement,
		Source:  mySubscriber,
		Payload: payload,
	}, legacyFrames, nextAlarm
}

// UpdateAlarm is the idempotent re-arm described in §5: it only ever
// pulls an alarm's time earlier, never later.
func UpdateAlarm(current, limit int64) int64 {
	if current == 0 || limit < current {
		return limit
	}
	return current
}
