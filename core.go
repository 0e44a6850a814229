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

// Package linkstate wires the link-state routing core (package link) to
// its external collaborators: a subscriber directory, an outbound frame
// queue, a scheduler, logging and metrics. It owns the single send alarm
// and runs single-threaded and cooperatively: every exported method runs
// to completion before returning, matching link's no-suspension-point
// invariant.
package linkstate

import (
	"github.com/rs/xid"

	"github.com/overmesh/linkstate/link"
	"github.com/overmesh/linkstate/log"
	"github.com/overmesh/linkstate/metrics"
)

// Core is the orchestration root, grouping the table, the route-version
// driven cache it gates, the one send alarm and this node's own identity
// into a single explicit context (§9 "Global singletons" resolved in
// favour of instance state rather than package-level globals).
type Core struct {
	table        *link.Table
	mySubscriber *link.Subscriber

	directory    link.Directory
	queue        link.Queue
	scheduler    link.Scheduler
	clock        link.Clock
	portPrefixer link.PortPrefixer
	ifaceByID    link.InterfaceByID

	alarm *link.Alarm

	log     log.Log
	metrics *metrics.Collector

	legacyAck link.LegacyAckBuilder

	pleaseExplain func(sender link.SID, unresolved []link.SID)
}

// Config groups Core's external collaborators.
type Config struct {
	MySubscriber *link.Subscriber
	Directory    link.Directory
	Queue        link.Queue
	Scheduler    link.Scheduler
	Clock        link.Clock
	PortPrefixer link.PortPrefixer
	InterfaceByID link.InterfaceByID
	Log          log.Log
	Metrics      *metrics.Collector

	// PleaseExplain is called, if non-nil, whenever an inbound link-state
	// payload referenced an address this node could not resolve (§4.G,
	// "a 'please explain' request will be sent to the sender"). Actually
	// sending that request over the wire is an MDP/transport concern
	// outside this core's scope (§1); this hook only tells the caller
	// which SIDs to ask sender to explain.
	PleaseExplain func(sender link.SID, unresolved []link.SID)
}

// NewCore builds a Core ready to receive packets and drive its own send
// alarm. Log and Metrics default to no-ops if nil.
func NewCore(cfg Config) *Core {
	l := cfg.Log
	if l == nil {
		l = log.Nil{}
	}

	c := &Core{
		table:         link.NewTable(),
		mySubscriber:  cfg.MySubscriber,
		directory:     cfg.Directory,
		queue:         cfg.Queue,
		scheduler:     cfg.Scheduler,
		clock:         cfg.Clock,
		portPrefixer:  cfg.PortPrefixer,
		ifaceByID:     cfg.InterfaceByID,
		log:           l,
		metrics:       cfg.Metrics,
		pleaseExplain: cfg.PleaseExplain,
	}
	c.legacyAck = link.DefaultLegacyAckBuilder(c.mySubscriber)
	return c
}

// OnPacketReceived records that sender was heard directly, on
// ourInterface, advertising theirInterface and sequence seq (-1 if the
// transport carries none). unicast packets never establish or refresh a
// broadcast neighbour-link (§4.G).
func (c *Core) OnPacketReceived(sender *link.Subscriber, ourInterface link.Interface, theirInterface int, seq int, unicast bool) {
	now := c.clock()
	if unicast {
		return
	}
	next := c.table.LinkReceivedPacket(sender, ourInterface, theirInterface, seq, unicast, now)
	c.armAlarm(next)
}

// OnLinkStateFrame applies an inbound link-state payload from sender and
// settles best-hop state for anything it touched.
func (c *Core) OnLinkStateFrame(sender *link.Subscriber, payload []byte) {
	now := c.clock()

	changed, unresolved := c.table.LinkReceive(sender, payload, c.mySubscriber, now, c.directory, c.ifaceByID)
	if len(unresolved) > 0 && c.pleaseExplain != nil {
		c.pleaseExplain(sender.SID, unresolved)
	}
	if !changed {
		return
	}

	c.table.BumpRouteVersion()
	if n := c.table.GetNeighbour(sender.SID, sender, false); n != nil {
		n.PathVersion++
	}
	c.log.LinkState(sender.SID.String(), "link state applied, route version bumped")
	c.settle(now)
	c.armAlarm(now + link.PostReceiveDrainMS)
}

// OnLegacyAck applies an inbound legacy self-announce-ACK frame from
// sender, heard on ourInterface (SPEC_FULL.md supplemented feature #4).
func (c *Core) OnLegacyAck(sender *link.Subscriber, ourInterface link.Interface, payload []byte) {
	now := c.clock()
	if c.table.ApplyLegacyAck(sender, c.mySubscriber, ourInterface, payload, now, c.ifaceByID) {
		c.table.BumpRouteVersion()
		c.armAlarm(now + link.PostReceiveDrainMS)
	}
}

// InterfaceDown reaps expired neighbour-links immediately rather than
// waiting for the next send tick (SPEC_FULL.md supplemented feature #3).
func (c *Core) InterfaceDown() {
	c.table.CleanNeighbours(c.clock())
	c.table.BumpRouteVersion()
}

// Explain forces subscriber's link record to be repeated on the very
// next send pass, in response to a neighbour's "please explain" request
// for an address it could not resolve (SPEC_FULL.md supplemented feature
// #2).
func (c *Core) Explain(sid link.SID) {
	subscriber, ok := c.directory.Lookup(sid)
	if !ok {
		return
	}
	now := c.clock()
	c.table.ForceResend(subscriber, now)
	c.armAlarm(now)
}

// AnnounceLinks calls fn once for every currently reachable subscriber
// other than this node itself, with its best hop count and transmitter (SPEC_FULL.md supplemented
// feature #1, monitor_announce_link in the source).
func (c *Core) AnnounceLinks(fn func(hopCount int, transmitter, subscriber link.SID)) {
	if fn == nil {
		return
	}
	c.directory.Enumerate(func(s *link.Subscriber) bool {
		if s == c.mySubscriber || !s.Reachable.IsReachable() {
			return true
		}
		hopCount, transmitter := c.table.RouteInfo(s)
		transmitterSID := c.mySubscriber.SID
		if transmitter != nil {
			transmitterSID = transmitter.SID
		}
		fn(hopCount, transmitterSID, s.SID)
		return true
	})
}

// settle runs FindBestLink across every subscriber touched by a route
// version bump. A parent's next_hop may not be settled on the first pass
// (§9 open question); a second pass converges because the set of
// subscribers whose decision can still change after the first pass is
// bounded by what the first pass itself changed, and `calculating`
// continues to guard true cycles.
func (c *Core) settle(now int64) {
	for pass := 0; pass < 2; pass++ {
		anyChanged := false
		c.directory.Enumerate(func(s *link.Subscriber) bool {
			before := s.NextHop
			_ = c.table.FindBestLink(s, c.mySubscriber, now, c.announce)
			if s.NextHop != before {
				anyChanged = true
			}
			return true
		})
		if !anyChanged {
			break
		}
	}
	c.publishMetrics()
}

func (c *Core) announce(hopCount int, transmitter, subscriber *link.Subscriber) {
	c.log.Neighbour(subscriber.SID.String(), "best hop changed", log.KV{Key: "hop_count", Value: hopCount})
}

func (c *Core) publishMetrics() {
	if c.metrics == nil {
		return
	}
	snapshots := make([]metrics.NeighbourSnapshot, 0, len(c.table.Neighbours))
	for sid, n := range c.table.Neighbours {
		live := 0
		for _, l := range n.Links {
			if l.Interface.State() == link.InterfaceUp {
				live++
			}
		}
		dropRate := 0
		if direct := c.table.FindLink(n, n.Subscriber, false); direct != nil {
			dropRate = direct.DropRate
		}
		snapshots = append(snapshots, metrics.NeighbourSnapshot{
			SID:       sid.String(),
			LiveLinks: live,
			DropRate:  dropRate,
		})
	}
	c.metrics.Update(c.table.RouteVersion, snapshots)
}

// Tick drives one firing of the send alarm (§4.H).
func (c *Core) Tick() {
	now := c.clock()

	traceID := xid.New()
	c.log.Send("send tick", log.KV{Key: "trace_id", Value: traceID.String()})

	frame, legacyFrames, nextAlarm := c.table.SendTick(c.mySubscriber, c.directory, now, c.portPrefixer, c.announce, c.legacyAck)

	if frame != nil {
		if err := c.queue.Enqueue(frame); err != nil {
			c.log.Error("enqueue failed", log.KV{Key: "error", Value: err.Error()})
		}
	}
	for _, f := range legacyFrames {
		if err := c.queue.Enqueue(f); err != nil {
			c.log.Error("legacy ack enqueue failed", log.KV{Key: "error", Value: err.Error()})
		}
	}

	c.publishMetrics()
	// The alarm that just fired is spent; arm a fresh one at nextAlarm.
	c.alarm = nil
	c.armAlarm(nextAlarm)
}

// armAlarm re-schedules the send alarm via the idempotent update_alarm
// rule: it only ever pulls the fire time earlier (§5).
func (c *Core) armAlarm(at int64) {
	next := link.UpdateAlarm(alarmAt(c.alarm), at)
	if c.alarm != nil && alarmAt(c.alarm) == next {
		return
	}
	if c.alarm != nil {
		c.scheduler.Unschedule(c.alarm)
	}
	c.alarm = &link.Alarm{At: next, Deadline: next, Fire: func(int64) { c.Tick() }}
	c.scheduler.Schedule(c.alarm)
}

func alarmAt(a *link.Alarm) int64 {
	if a == nil {
		return 0
	}
	return a.At
}
