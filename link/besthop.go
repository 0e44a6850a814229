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

import "errors"

// ErrCalculating is returned by FindBestLink when the subscriber's
// best-hop is already being computed higher up the call stack (a cycle
// in the neighbours' claims); the caller should treat this as "no update
// this pass", per §4.F.
var ErrCalculating = errors.New("link: best-hop already calculating")

// getLinkState lazily creates subscriber's per-subscriber routing state,
// starting one version behind the current global counter so the first
// query is always a cache miss.
func (t *Table) getLinkState(subscriber *Subscriber) *linkState {
	if subscriber.linkState == nil {
		subscriber.linkState = &linkState{routeVersion: t.RouteVersion - 1}
	}
	return subscriber.linkState
}

// RouteInfo exposes a subscriber's cached best-hop decision (hop count,
// transmitter) without reaching into unexported state — used by callers
// like a monitor-announce pass that need the decision FindBestLink
// already committed.
func (t *Table) RouteInfo(subscriber *Subscriber) (hopCount int, transmitter *Subscriber) {
	state := t.getLinkState(subscriber)
	return state.hopCount, state.transmitter
}

// ForceResend marks subscriber's link record as due for immediate
// re-emission on the next send pass (SPEC_FULL.md supplemented feature
// #2, link_explained in the source).
func (t *Table) ForceResend(subscriber *Subscriber, now int64) {
	state := t.getLinkState(subscriber)
	state.nextUpdate = now
}

// AnnounceFunc is called whenever FindBestLink commits a change to a
// subscriber's best hop (SPEC_FULL.md supplemented feature #1,
// monitor_announce_link in the source).
type AnnounceFunc func(hopCount int, transmitter, subscriber *Subscriber)

// FindBestLink computes (or returns the cached) best next-hop for
// subscriber (§4.F). mySubscriber is this node's own identity; announce,
// if non-nil, is invoked when the winning hop changes.
func (t *Table) FindBestLink(subscriber, mySubscriber *Subscriber, now int64, announce AnnounceFunc) error {
	if subscriber == mySubscriber {
		return nil
	}

	state := t.getLinkState(subscriber)
	if state.routeVersion == t.RouteVersion {
		return nil
	}
	if state.calculating {
		return ErrCalculating
	}
	state.calculating = true

	var (
		bestHopCount = 99
		bestDropRate = 99
		bestLink     *Link
		nextHop      *Subscriber
		transmitter  *Subscriber
		winningIface Interface
	)

	for _, neighbour := range t.Neighbours {
		if neighbour.NeighbourLinkTimeout < now {
			continue
		}

		candidate := t.FindLink(neighbour, subscriber, false)
		if candidate == nil || candidate.Transmitter == nil {
			continue
		}

		if candidate.Transmitter != mySubscriber {
			parentState := t.getLinkState(candidate.Transmitter)
			// A parent mid-computation (cycle) just means we can't
			// validate this candidate yet; it's skipped, not fatal.
			_ = t.FindBestLink(candidate.Transmitter, mySubscriber, now, announce)
			if parentState.nextHop != neighbour.Subscriber {
				continue
			}
		}

		t.UpdatePathScore(neighbour, candidate, mySubscriber)

		if candidate.HopCount <= 0 {
			continue
		}

		if candidate.PathDropRate < bestDropRate ||
			(candidate.PathDropRate == bestDropRate && candidate.HopCount < bestHopCount) {
			nextHop = neighbour.Subscriber
			bestHopCount = candidate.HopCount
			bestDropRate = candidate.PathDropRate
			transmitter = candidate.Transmitter
			winningIface = candidate.Interface
			bestLink = candidate
		}
	}

	changed := state.nextHop != nextHop || state.transmitter != transmitter || state.link != bestLink
	if nextHop == subscriber && winningIface != subscriber.Interface {
		changed = true
	}

	state.nextHop = nextHop
	state.transmitter = transmitter
	state.hopCount = bestHopCount
	state.routeVersion = t.RouteVersion
	state.calculating = false
	state.link = bestLink

	reachable := subscriber.Reachable
	switch {
	case nextHop == nil:
		if subscriber.Reachable&ReachableAssumed == 0 {
			reachable = ReachableNone
		}
	case nextHop == subscriber:
		ifaceChanged := subscriber.Interface != winningIface
		if ifaceChanged {
			subscriber.LastProbe = 0
			subscriber.Address = [16]byte{}
		}
		reachable = ReachableBroadcast
		if !ifaceChanged {
			reachable |= subscriber.Reachable & ReachableUnicast
		}
		nextHop = nil
		subscriber.Interface = winningIface
	default:
		reachable = ReachableIndirect
	}

	subscriber.NextHop = nextHop
	subscriber.Reachable = reachable

	if changed {
		if announce != nil {
			announce(bestHopCount, transmitter, subscriber)
		}
		state.nextUpdate = now
	}

	return nil
}
