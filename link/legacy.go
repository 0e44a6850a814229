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

// LegacyAckLen is the fixed body size of a legacy self-announce-ACK
// frame: last_update_ms (u32be) || now_ms (u32be) || neighbour_interface
// (u8) (§9 supplemented feature: interoperate with pre-link-state peers).
const LegacyAckLen = 9

// BuildLegacyAck composes the 9-byte legacy self-announce-ACK body
// telling neighbour when we last heard them directly and on which of
// their interfaces (nl.NeighbourInterface), so a legacy peer (which has
// no concept of our link table) can still measure round-trip liveness.
func BuildLegacyAck(nl *NeighbourLink, now int64) ([]byte, bool) {
	if nl == nil {
		return nil, false
	}
	body := make([]byte, LegacyAckLen)
	putU32BE(body[0:4], uint32(nl.LinkTimeout))
	putU32BE(body[4:8], uint32(now))
	body[8] = byte(nl.NeighbourInterface)
	return body, true
}

// DefaultLegacyAckBuilder wraps BuildLegacyAck into a LegacyAckBuilder
// suitable for SendTick, framing it as a one-hop unicast
// self-announce-ack addressed directly to the neighbour.
func DefaultLegacyAckBuilder(mySubscriber *Subscriber) LegacyAckBuilder {
	return func(neighbour *Neighbour, nl *NeighbourLink, now int64) *Frame {
		body, ok := BuildLegacyAck(nl, now)
		if !ok {
			return nil
		}
		payload := NewBuffer(LegacyAckLen)
		if err := payload.AppendBytes(body); err != nil {
			return nil
		}
		return &Frame{
			Type:        FrameTypeSelfAnnounceAck,
			TTL:         1,
			Queue:       QueueMeshManagement,
			Source:      mySubscriber,
			Destination: neighbour.Subscriber,
			Payload:     payload,
		}
	}
}

// ParseLegacyAck decodes a frame built by BuildLegacyAck.
func ParseLegacyAck(payload []byte) (lastUpdateMS, nowMS uint32, neighbourInterface int, ok bool) {
	if len(payload) < LegacyAckLen {
		return 0, 0, 0, false
	}
	lastUpdateMS = getU32BE(payload[0:4])
	nowMS = getU32BE(payload[4:8])
	neighbourInterface = int(payload[8])
	return lastUpdateMS, nowMS, neighbourInterface, true
}

// ApplyLegacyAck folds a received legacy self-announce-ACK into the
// sender's neighbour-link and, mirroring link_state_legacy_ack, records a
// one-hop link claiming "we can reach sender via ourselves" with a fixed
// high drop rate so the route is never actually preferred (§4.G, §9,
// scenario S6). It returns whether anything changed.
func (t *Table) ApplyLegacyAck(sender, mySubscriber *Subscriber, ourInterface Interface, payload []byte, now int64, ifaceByID InterfaceByID) bool {
	_, _, neighbourInterface, ok := ParseLegacyAck(payload)
	if !ok {
		return false
	}

	neighbour := t.GetNeighbour(sender.SID, sender, true)

	changed := !neighbour.LegacyProtocol
	changed = changed || neighbour.NeighbourLinkTimeout < now

	link := t.FindLink(neighbour, sender, true)
	if link.Transmitter != mySubscriber {
		changed = true
	}
	link.Transmitter = mySubscriber
	link.LinkVersion = 1
	// High drop rate: we never want to actually route through this
	// link, we just want to remember that it can hear us.
	link.DropRate = 32
	if iface, ok := ifaceByID(neighbourInterface); ok {
		link.Interface = iface
	}

	neighbour.LegacyProtocol = true

	nl := t.GetNeighbourLink(neighbour, ourInterface, neighbourInterface, false)
	nl.LinkTimeout = now + ourInterface.TickMS()*5
	neighbour.NeighbourLinkTimeout = nl.LinkTimeout

	return changed
}

func putU32BE(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func getU32BE(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
