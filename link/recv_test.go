package link

import "testing"

func TestPopcount15(t *testing.T) {
	cases := []struct {
		mask uint32
		want int
	}{
		{0x0000, 0},
		{0x7FFF, 15},
		{0xFFFFFFFF, 15}, // bits above 14 must be masked off
		{0x0001, 1},
		{0x5555, 8},      // low 15 bits of 0x5555 = 0b101010101010101
	}

	for _, c := range cases {
		if got := popcount15(c.mask); got != c.want {
			t.Errorf("popcount15(%#x) = %d, want %d", c.mask, got, c.want)
		}
	}
}

func TestLinkReceivedPacketUnicastIsNoop(t *testing.T) {
	tbl := NewTable()
	sender := &Subscriber{SID: sidFor(1)}
	iface := &fakeTestInterface{state: InterfaceUp, tickMS: 1000}

	next := tbl.LinkReceivedPacket(sender, iface, 0, 5, true, 1000)
	if next != 0 {
		t.Fatalf("expected no update for a unicast packet, got %d", next)
	}
	if len(tbl.Neighbours) != 0 {
		t.Fatalf("expected no neighbour created for a unicast-only packet")
	}
}

func TestLinkReceivedPacketTracksSequenceGap(t *testing.T) {
	tbl := NewTable()
	sender := &Subscriber{SID: sidFor(1)}
	iface := &fakeTestInterface{state: InterfaceUp, tickMS: 1000}

	tbl.LinkReceivedPacket(sender, iface, 0, 10, false, 0)
	// A gap: sequence jumps from 10 to 13, missing 11 and 12.
	tbl.LinkReceivedPacket(sender, iface, 0, 13, false, 100)

	neighbour := tbl.GetNeighbour(sender.SID, sender, false)
	if neighbour == nil {
		t.Fatalf("expected neighbour to exist")
	}
	nl := neighbour.Links[0]
	if nl.AckSequence != 13 {
		t.Fatalf("expected ack sequence to advance to 13, got %d", nl.AckSequence)
	}
}

func TestParseOneRecordRoundTrip(t *testing.T) {
	sender := &Subscriber{SID: sidFor(1)}
	receiver := &Subscriber{SID: sidFor(2)}
	dir := &testDirectory{subs: map[SID]*Subscriber{sender.SID: sender, receiver.SID: receiver}}

	ctx := NewDecodeContext(sender.SID)
	buf := NewBuffer(64)

	if err := appendLinkState(ctx, buf, RecordBroadcast, sender, receiver, 2, 7, 9, 0x7FFF, -1); err != nil {
		t.Fatalf("appendLinkState: %v", err)
	}

	readCtx := NewDecodeContext(sender.SID)
	r := NewReader(buf.Bytes())

	rec, ok := parseOneRecord(readCtx, r, dir)
	if !ok {
		t.Fatalf("expected record to parse")
	}
	if rec.receiver != receiver {
		t.Fatalf("expected receiver to resolve, got %v", rec.receiver)
	}
	if rec.transmitter != sender {
		t.Fatalf("expected transmitter to resolve, got %v", rec.transmitter)
	}
	if rec.version != 7 {
		t.Fatalf("expected version 7, got %d", rec.version)
	}
	if rec.interfaceID != 2 {
		t.Fatalf("expected interface id 2, got %d", rec.interfaceID)
	}
	if rec.ackSeq != 9 {
		t.Fatalf("expected ack sequence 9, got %d", rec.ackSeq)
	}
	// A full ack_mask (all 15 bits set) means no losses: derived drop
	// rate clamps to 0 once it is at or below 2.
	if rec.dropRate != 0 {
		t.Fatalf("expected derived drop rate 0 for a full ack window, got %d", rec.dropRate)
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected the reader to be positioned at the record's declared end, got %d bytes remaining", r.Remaining())
	}
}

// TestLinkReceiveEstablishesOneHopRoute drives reachability end-to-end
// through the real receive path instead of hand-assigning Transmitter on a
// link, the way the best-hop and path-score tests do: it delivers an
// advertisement naming us as the transmitter the sender hears itself
// through, then asserts FindBestLink resolves the sender as a direct,
// hop_count==1 neighbour (§4.G, §4.E, Invariant 2).
func TestLinkReceiveEstablishesOneHopRoute(t *testing.T) {
	me := &Subscriber{SID: sidFor(1)}
	b := &Subscriber{SID: sidFor(2)}
	dir := &testDirectory{subs: map[SID]*Subscriber{me.SID: me, b.SID: b}}

	iface := &fakeTestInterface{id: 0, state: InterfaceUp, tickMS: 1000}
	ifaceByID := func(id int) (Interface, bool) {
		if id == iface.id {
			return iface, true
		}
		return nil, false
	}

	// B advertises "receiver=B, transmitter=me" on its interface 0: B
	// hears itself via us, i.e. B can hear us directly.
	encodeCtx := NewDecodeContext(b.SID)
	payload := NewBuffer(64)
	if err := appendLinkState(encodeCtx, payload, 0, me, b, iface.id, 1, -1, 0, -1); err != nil {
		t.Fatalf("appendLinkState: %v", err)
	}

	tbl := NewTable()
	changed, unresolved := tbl.LinkReceive(b, payload.Bytes(), me, 0, dir, ifaceByID)
	if !changed {
		t.Fatalf("expected the one-hop link to be recorded as a change")
	}
	if len(unresolved) != 0 {
		t.Fatalf("expected no unresolved addresses, got %v", unresolved)
	}

	neighbour := tbl.GetNeighbour(b.SID, b, false)
	if neighbour == nil {
		t.Fatalf("expected a neighbour to exist for b")
	}
	link := tbl.FindLink(neighbour, b, false)
	if link == nil || link.Transmitter != me {
		t.Fatalf("expected a one-hop link receiver=b, transmitter=me, got %v", link)
	}

	tbl.BumpRouteVersion()
	if err := tbl.FindBestLink(b, me, 0, nil); err != nil {
		t.Fatalf("FindBestLink: %v", err)
	}

	hopCount, transmitter := tbl.RouteInfo(b)
	if hopCount != 1 {
		t.Fatalf("expected hop count 1 for a direct neighbour (Invariant 2), got %d", hopCount)
	}
	if transmitter != me {
		t.Fatalf("expected transmitter to be me, got %v", transmitter)
	}
	if b.Reachable&ReachableBroadcast == 0 {
		t.Fatalf("expected b to become REACHABLE_BROADCAST, got %v", b.Reachable)
	}
}

func TestLinkReceiveReportsUnresolvedAddress(t *testing.T) {
	sender := &Subscriber{SID: sidFor(1)}
	me := &Subscriber{SID: sidFor(2)}
	ghost := &Subscriber{SID: sidFor(3)}
	dir := &testDirectory{subs: map[SID]*Subscriber{sender.SID: sender, me.SID: me}}

	encodeCtx := NewDecodeContext(sender.SID)
	buf := NewBuffer(128)

	// A record claiming sender can reach ghost via a full SID reference;
	// ghost is not in the directory yet.
	if err := AppendAddress(encodeCtx, buf, ghost); err != nil {
		t.Fatalf("append ghost: %v", err)
	}
	if err := buf.AppendByte(1); err != nil { // version
		t.Fatalf("append version: %v", err)
	}
	if err := buf.AppendByte(byte(addrSender)); err != nil { // transmitter: sender
		t.Fatalf("append transmitter: %v", err)
	}
	record := buf.Bytes()

	payload := NewBuffer(128)
	if err := payload.AppendByte(byte(len(record) + 2)); err != nil {
		t.Fatalf("append length: %v", err)
	}
	if err := payload.AppendByte(0); err != nil { // flags: has-path, no interface/ack/drop-rate
		t.Fatalf("append flags: %v", err)
	}
	if err := payload.AppendBytes(record); err != nil {
		t.Fatalf("append record: %v", err)
	}

	noInterfaces := func(id int) (Interface, bool) { return nil, false }

	tbl := NewTable()
	changed, unresolved := tbl.LinkReceive(sender, payload.Bytes(), me, 0, dir, noInterfaces)

	if changed {
		t.Fatalf("expected a skipped record to report no change")
	}
	if len(unresolved) != 1 || unresolved[0] != ghost.SID {
		t.Fatalf("expected ghost's SID to be reported unresolved, got %v", unresolved)
	}
}
