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

// Command linkstate-demo wires two in-process Core instances together
// over fake Directory/Queue/Scheduler/Interface collaborators and runs a
// handful of send ticks, printing each node's idea of the other's
// reachability — the same "wire the public API end to end" role
// cmd/bgp.go plays for the BGP session type.
package main

import (
	"crypto/sha256"
	"flag"
	"fmt"
	"os"

	linkstate "github.com/overmesh/linkstate"
	"github.com/overmesh/linkstate/link"
	"github.com/overmesh/linkstate/log"
	"github.com/overmesh/linkstate/metrics"
)

func main() {
	ticks := flag.Int("ticks", 6, "number of send ticks to simulate")
	tickMS := flag.Int64("tick-ms", 1000, "milliseconds advanced per simulated tick")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Simulates two mesh nodes exchanging link-state records.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	alice := newSubscriber("alice")
	bob := newSubscriber("bob")

	dir := &fakeDirectory{subscribers: map[link.SID]*link.Subscriber{alice.SID: alice, bob.SID: bob}}

	world := &fakeWorld{now: 0}

	aliceCore := linkstate.NewCore(linkstate.Config{
		MySubscriber:  alice,
		Directory:     dir,
		Queue:         &fakeQueue{world: world, from: alice, toName: "bob"},
		Scheduler:     world.schedulerFor("alice"),
		Clock:         world.clock,
		PortPrefixer:  fakePortPrefixer{},
		InterfaceByID: fakeIfaceByID,
		Log:           log.NewLogrus(nil),
		Metrics:       metrics.New("linkstate_alice"),
	})

	bobCore := linkstate.NewCore(linkstate.Config{
		MySubscriber:  bob,
		Directory:     dir,
		Queue:         &fakeQueue{world: world, from: bob, toName: "alice"},
		Scheduler:     world.schedulerFor("bob"),
		Clock:         world.clock,
		PortPrefixer:  fakePortPrefixer{},
		InterfaceByID: fakeIfaceByID,
		Log:           log.NewLogrus(nil),
		Metrics:       metrics.New("linkstate_bob"),
	})

	world.cores = map[string]*linkstate.Core{"alice": aliceCore, "bob": bobCore}

	// Seed each node hearing the other, as if a broadcast packet had
	// just arrived on their shared interface.
	aliceCore.OnPacketReceived(bob, demoInterface, demoInterface.ID(), 0, false)
	bobCore.OnPacketReceived(alice, demoInterface, demoInterface.ID(), 0, false)

	for i := 0; i < *ticks; i++ {
		world.advance(*tickMS)
		world.fireDue()

		fmt.Printf("tick %d, t=%dms: alice sees bob reachable=%v, bob sees alice reachable=%v\n",
			i, world.now, bob.Reachable.IsReachable(), alice.Reachable.IsReachable())
	}
}

func newSubscriber(name string) *link.Subscriber {
	h := sha256.Sum256([]byte(name))
	return &link.Subscriber{SID: link.SID(h)}
}

// fakeDirectory is the whole demo's subscriber universe: a fixed map, no
// discovery.
type fakeDirectory struct {
	subscribers map[link.SID]*link.Subscriber
}

func (d *fakeDirectory) Lookup(sid link.SID) (*link.Subscriber, bool) {
	s, ok := d.subscribers[sid]
	return s, ok
}

func (d *fakeDirectory) Enumerate(fn func(*link.Subscriber) bool) {
	for _, s := range d.subscribers {
		if !fn(s) {
			return
		}
	}
}

// fakeWorld is the demo's shared clock and alarm board: each node's
// Scheduler registers its next alarm here, and the demo loop fires
// whichever alarm is due after advancing the clock.
type fakeWorld struct {
	now   int64
	cores map[string]*linkstate.Core
	next  map[string]*link.Alarm
}

func (w *fakeWorld) clock() int64 { return w.now }

func (w *fakeWorld) advance(ms int64) { w.now += ms }

func (w *fakeWorld) schedulerFor(name string) link.Scheduler {
	if w.next == nil {
		w.next = make(map[string]*link.Alarm)
	}
	return &fakeScheduler{world: w, name: name}
}

func (w *fakeWorld) fireDue() {
	for _, a := range w.next {
		if a != nil && a.At <= w.now {
			a.Fire(w.now)
		}
	}
}

type fakeScheduler struct {
	world *fakeWorld
	name  string
}

func (s *fakeScheduler) Schedule(a *link.Alarm)   { s.world.next[s.name] = a }
func (s *fakeScheduler) Unschedule(a *link.Alarm) { s.world.next[s.name] = nil }

// fakeQueue delivers a sender's outbound frame straight to the
// recipient's Core, standing in for the interface/MDP transport layer.
type fakeQueue struct {
	world  *fakeWorld
	from   *link.Subscriber
	toName string
}

// mdpPortPrefixLen is the byte width fakePortPrefixer.EncodePorts writes:
// two big-endian uint16 ports. The real MDP layer strips this prefix
// before handing the remaining payload to the routing core (§1); this
// demo stands in for that layer, so it must strip it too.
const mdpPortPrefixLen = 4

func (q *fakeQueue) Enqueue(f *link.Frame) error {
	dest := q.world.cores[q.toName]
	if f.Type == link.FrameTypeSelfAnnounceAck {
		dest.OnLegacyAck(q.from, demoInterface, f.Payload.Bytes())
		return nil
	}
	dest.OnLinkStateFrame(q.from, f.Payload.Bytes()[mdpPortPrefixLen:])
	return nil
}

type fakePortPrefixer struct{}

func (fakePortPrefixer) EncodePorts(buf *link.Buffer, src, dst uint16) error {
	if err := buf.AppendU16BE(src); err != nil {
		return err
	}
	return buf.AppendU16BE(dst)
}

type fakeInterface struct{ id int }

func (f fakeInterface) ID() int                      { return f.id }
func (f fakeInterface) State() link.InterfaceState   { return link.InterfaceUp }
func (f fakeInterface) TickMS() int64                { return 1000 }
func (f fakeInterface) Better(other link.Interface) bool { return false }
func (f fakeInterface) NextSequence() uint8          { return 0 }

var demoInterface = fakeInterface{id: 0}

func fakeIfaceByID(id int) (link.Interface, bool) {
	if id == demoInterface.id {
		return demoInterface, true
	}
	return nil, false
}
