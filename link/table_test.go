package link

import "testing"

// inorder walks link's BST and appends visited receivers in order.
func inorder(l *Link, out *[]SID) {
	if l == nil {
		return
	}
	inorder(l.left, out)
	*out = append(*out, l.Receiver.SID)
	inorder(l.right, out)
}

func TestFindLinkBSTOrderInvariant(t *testing.T) {
	tbl := NewTable()
	neighbourSub := &Subscriber{SID: sidFor(1)}
	neighbour := tbl.GetNeighbour(neighbourSub.SID, neighbourSub, true)

	receivers := []byte{5, 2, 8, 1, 3, 7, 9, 4}
	for _, b := range receivers {
		tbl.FindLink(neighbour, &Subscriber{SID: sidFor(b)}, true)
	}

	var out []SID
	inorder(neighbour.root, &out)

	if len(out) != len(receivers) {
		t.Fatalf("expected %d links, got %d", len(receivers), len(out))
	}
	for i := 1; i < len(out); i++ {
		if !out[i-1].Less(out[i]) {
			t.Fatalf("BST in-order walk not sorted at index %d: %v", i, out)
		}
	}
}

func TestFindLinkReturnsSameNodeForSameReceiver(t *testing.T) {
	tbl := NewTable()
	neighbourSub := &Subscriber{SID: sidFor(1)}
	neighbour := tbl.GetNeighbour(neighbourSub.SID, neighbourSub, true)
	receiver := &Subscriber{SID: sidFor(2)}

	a := tbl.FindLink(neighbour, receiver, true)
	b := tbl.FindLink(neighbour, receiver, true)

	if a != b {
		t.Fatalf("expected FindLink to return the same node for the same receiver")
	}
}

func TestFindLinkNoCreateReturnsNilWhenMissing(t *testing.T) {
	tbl := NewTable()
	neighbourSub := &Subscriber{SID: sidFor(1)}
	neighbour := tbl.GetNeighbour(neighbourSub.SID, neighbourSub, true)

	if l := tbl.FindLink(neighbour, &Subscriber{SID: sidFor(2)}, false); l != nil {
		t.Fatalf("expected nil, got %v", l)
	}
}

func TestCleanNeighboursFreesEmptyNeighbour(t *testing.T) {
	tbl := NewTable()
	sub := &Subscriber{SID: sidFor(1)}
	neighbour := tbl.GetNeighbour(sub.SID, sub, true)

	iface := &fakeTestInterface{state: InterfaceDown}
	tbl.GetNeighbourLink(neighbour, iface, 0, false)

	tbl.CleanNeighbours(1000)

	if _, ok := tbl.Neighbours[sub.SID]; ok {
		t.Fatalf("expected neighbour to be freed once its only link went down")
	}
}

type fakeTestInterface struct {
	state   InterfaceState
	tickMS  int64
	id      int
}

func (f *fakeTestInterface) ID() int                    { return f.id }
func (f *fakeTestInterface) State() InterfaceState      { return f.state }
func (f *fakeTestInterface) TickMS() int64              { return f.tickMS }
func (f *fakeTestInterface) Better(o Interface) bool     { return false }
func (f *fakeTestInterface) NextSequence() uint8        { return 0 }
