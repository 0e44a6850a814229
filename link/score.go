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

// UpdatePathScore recomputes link's hop count and path drop rate within
// neighbour's BST (§4.E). A hit against neighbour.PathVersion is a
// no-op; a link already mid-recursion (Calculating) is left untouched —
// this is the loop guard that makes the mutual recursion with
// FindBestLink safe on cyclic neighbour claims.
func (t *Table) UpdatePathScore(neighbour *Neighbour, link *Link, mySubscriber *Subscriber) {
	if link.PathVersion == neighbour.PathVersion {
		return
	}
	if link.Calculating {
		return
	}

	link.Calculating = true

	hopCount := -1
	dropRate := 0

	if link.Transmitter == mySubscriber {
		if link.Receiver == neighbour.Subscriber {
			hopCount = 1
		}
	} else {
		parent := t.parentLink(neighbour, link)
		if parent != nil && !parent.Calculating {
			t.UpdatePathScore(neighbour, parent, mySubscriber)
			if parent.HopCount > 0 {
				hopCount = parent.HopCount + 1
				dropRate = parent.PathDropRate
			}
		}
	}

	// Drop rates of 0-2 are measurement noise and are ignored (§4.E).
	if link.DropRate > 2 {
		dropRate += link.DropRate
	}

	link.HopCount = hopCount
	link.PathVersion = neighbour.PathVersion
	link.PathDropRate = dropRate
	link.Calculating = false
}
