package link

import "testing"

type testPortPrefixer struct{}

func (testPortPrefixer) EncodePorts(buf *Buffer, src, dst uint16) error {
	if err := buf.AppendU16BE(src); err != nil {
		return err
	}
	return buf.AppendU16BE(dst)
}

func TestAppendLinkStateFlagsAndLength(t *testing.T) {
	sender := &Subscriber{SID: sidFor(1)}
	receiver := &Subscriber{SID: sidFor(2)}
	ctx := NewDecodeContext(sender.SID)
	buf := NewBuffer(64)

	if err := appendLinkState(ctx, buf, RecordUnicast, sender, receiver, 3, 1, 9, 0x00FF, -1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data := buf.Bytes()
	length := int(data[0])
	if length != len(data) {
		t.Fatalf("back-patched length %d does not match actual record length %d", length, len(data))
	}

	flags := data[1]
	want := RecordUnicast | RecordHasInterface | RecordHasAck
	if flags != want {
		t.Fatalf("expected flags %08b, got %08b", want, flags)
	}
}

func TestAppendLinkStateRewoundOnOverflow(t *testing.T) {
	sender := &Subscriber{SID: sidFor(1)}
	receiver := &Subscriber{SID: sidFor(2)}
	ctx := NewDecodeContext(sender.SID)

	buf := NewBuffer(4)
	buf.LimitSize(4) // too small for a full record
	buf.Checkpoint()

	if err := appendLinkState(ctx, buf, 0, sender, receiver, -1, 1, -1, 0, -1); err == nil {
		t.Fatalf("expected ErrBufferFull")
	}

	buf.Rewind()
	if len(buf.Bytes()) != 0 {
		t.Fatalf("expected rewind to discard the partial record, got %d bytes", len(buf.Bytes()))
	}
}

func TestSendTickDiscardsEmptyFrame(t *testing.T) {
	tbl := NewTable()
	me := &Subscriber{SID: sidFor(1)}
	dir := &testDirectory{subs: map[SID]*Subscriber{me.SID: me}}

	frame, legacy, _ := tbl.SendTick(me, dir, 0, testPortPrefixer{}, nil, nil)
	if frame != nil {
		t.Fatalf("expected no frame when there are no neighbours or dirty subscribers")
	}
	if len(legacy) != 0 {
		t.Fatalf("expected no legacy frames")
	}
}

func TestSendTickEmitsNeighbourRecord(t *testing.T) {
	tbl := NewTable()
	me := &Subscriber{SID: sidFor(1)}
	neighbourSub := &Subscriber{SID: sidFor(2)}
	dir := &testDirectory{subs: map[SID]*Subscriber{me.SID: me, neighbourSub.SID: neighbourSub}}

	iface := &fakeTestInterface{state: InterfaceUp, tickMS: 1000}
	neighbour := tbl.GetNeighbour(neighbourSub.SID, neighbourSub, true)
	tbl.GetNeighbourLink(neighbour, iface, 0, false)

	frame, _, _ := tbl.SendTick(me, dir, 0, testPortPrefixer{}, nil, nil)
	if frame == nil {
		t.Fatalf("expected a frame carrying the neighbour heartbeat")
	}
	if frame.Payload.Position() <= 4 {
		t.Fatalf("expected more than just the MDP port prefix, got %d bytes", frame.Payload.Position())
	}
}

func TestBestNeighbourLinkKeepsIncumbentOnTie(t *testing.T) {
	n := &Neighbour{}
	ifaceA := &fakeTestInterface{id: 0}
	ifaceB := &fakeTestInterface{id: 1}

	linkA := &NeighbourLink{Interface: ifaceA}
	linkB := &NeighbourLink{Interface: ifaceB}
	n.Links = []*NeighbourLink{linkA, linkB}
	n.BestLink = linkA

	if got := bestNeighbourLink(n); got != linkA {
		t.Fatalf("expected incumbent to be kept on a tie")
	}
}
