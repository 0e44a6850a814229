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

// Link represents a claim in a neighbour's table: "neighbour N claims it
// hears subscriber Receiver via Transmitter" (§3, §4.D). Links live in an
// unbalanced BST keyed by Receiver.SID, owned by their Neighbour.
type Link struct {
	Receiver    *Subscriber
	Transmitter *Subscriber // nil means "no path"
	Interface   Interface

	LinkVersion int
	DropRate    int // 0-32

	// Derived by the path scorer (§4.E).
	HopCount     int
	PathDropRate int
	PathVersion  int64
	Calculating  bool

	left, right, parent *Link
}

// NeighbourLink is one (our interface, their interface, unicast) tuple on
// which we have heard a neighbour (§3).
type NeighbourLink struct {
	Interface          Interface
	NeighbourInterface int
	Unicast            bool

	LinkTimeout int64

	AckSequence int // -1 if none observed
	AckMask     uint32
}

// Neighbour is one directly-heard subscriber (§3).
type Neighbour struct {
	Subscriber *Subscriber

	PathVersion          int64
	NeighbourLinkTimeout int64

	NextNeighbourUpdate int64
	LastUpdate          int64
	AckCounter          int

	root  *Link
	Links []*NeighbourLink

	BestLink *NeighbourLink

	LegacyProtocol bool
}

// Table is the link table (§4.D): the neighbour collection and each
// neighbour's BST of observed links. Its RouteVersion is the single
// global counter bumped on any topology change (§3).
type Table struct {
	Neighbours   map[SID]*Neighbour
	RouteVersion int64
}

// NewTable returns an empty link table.
func NewTable() *Table {
	return &Table{Neighbours: make(map[SID]*Neighbour)}
}

// BumpRouteVersion increments the global route version, invalidating
// every cached best-hop decision.
func (t *Table) BumpRouteVersion() {
	t.RouteVersion++
}

// GetNeighbour finds (or, if create, creates) the neighbour for sid.
func (t *Table) GetNeighbour(sid SID, subscriber *Subscriber, create bool) *Neighbour {
	if n, ok := t.Neighbours[sid]; ok {
		return n
	}
	if !create {
		return nil
	}
	n := &Neighbour{Subscriber: subscriber}
	t.Neighbours[sid] = n
	return n
}

// FindLink finds (or, if create, creates and inserts) the link for
// receiver in neighbour's BST, keyed by receiver.SID (Invariant 1).
func (t *Table) FindLink(neighbour *Neighbour, receiver *Subscriber, create bool) *Link {
	linkPtr := &neighbour.root
	var link *Link = neighbour.root

	for {
		if link == nil {
			if !create {
				return nil
			}
			link = &Link{Receiver: receiver, PathVersion: neighbour.PathVersion - 1}
			*linkPtr = link
			return link
		}
		if receiver.SID == link.Receiver.SID {
			return link
		}
		if receiver.SID.Less(link.Receiver.SID) {
			linkPtr = &link.left
		} else {
			linkPtr = &link.right
		}
		link = *linkPtr
	}
}

// parentLink resolves (and caches) the link's parent: the link whose
// receiver is this link's transmitter, within the same neighbour's BST.
// The root of a neighbour's own one-hop link, and any link with no
// transmitter, has no parent.
func (t *Table) parentLink(neighbour *Neighbour, link *Link) *Link {
	if link.Receiver == neighbour.Subscriber || link.Transmitter == nil {
		return nil
	}
	if link.parent == nil {
		link.parent = t.FindLink(neighbour, link.Transmitter, false)
	}
	return link.parent
}

// GetNeighbourLink finds or appends the neighbour-link for the given
// (our interface, their interface, unicast) tuple.
func (t *Table) GetNeighbourLink(neighbour *Neighbour, ourInterface Interface, theirInterface int, unicast bool) *NeighbourLink {
	for _, l := range neighbour.Links {
		if l.Interface == ourInterface && l.NeighbourInterface == theirInterface && l.Unicast == unicast {
			return l
		}
	}
	l := &NeighbourLink{
		Interface:          ourInterface,
		NeighbourInterface: theirInterface,
		Unicast:            unicast,
		AckSequence:        -1,
	}
	neighbour.Links = append(neighbour.Links, l)
	return l
}

// FreeNeighbour removes sid's neighbour entirely, dropping its whole BST
// and neighbour-link list, and bumps RouteVersion.
func (t *Table) FreeNeighbour(sid SID) {
	if _, ok := t.Neighbours[sid]; !ok {
		return
	}
	delete(t.Neighbours, sid)
	t.BumpRouteVersion()
}

// CleanNeighbours drops expired neighbour-links whose interface is no
// longer up or whose timeout has passed, then frees any neighbour whose
// link list became empty as a result.
func (t *Table) CleanNeighbours(now int64) {
	for sid, n := range t.Neighbours {
		live := n.Links[:0]
		for _, l := range n.Links {
			if l.Interface.State() != InterfaceUp || l.LinkTimeout < now {
				continue
			}
			live = append(live, l)
		}
		n.Links = live

		if len(n.Links) == 0 {
			t.FreeNeighbour(sid)
		}
	}
}
