package link

import "testing"

type testDirectory struct {
	subs map[SID]*Subscriber
}

func (d *testDirectory) Lookup(sid SID) (*Subscriber, bool) {
	s, ok := d.subs[sid]
	return s, ok
}

func (d *testDirectory) Enumerate(fn func(*Subscriber) bool) {
	for _, s := range d.subs {
		if !fn(s) {
			return
		}
	}
}

func sidFor(b byte) SID {
	var s SID
	s[0] = b
	return s
}

func TestAddressRoundTripSenderAndFull(t *testing.T) {
	sender := &Subscriber{SID: sidFor(1)}
	other := &Subscriber{SID: sidFor(2)}
	dir := &testDirectory{subs: map[SID]*Subscriber{sender.SID: sender, other.SID: other}}

	encodeCtx := NewDecodeContext(sender.SID)
	buf := NewBuffer(128)

	if err := AppendAddress(encodeCtx, buf, sender); err != nil {
		t.Fatalf("append sender: %v", err)
	}
	if err := AppendAddress(encodeCtx, buf, other); err != nil {
		t.Fatalf("append other: %v", err)
	}
	// Second reference to the same subscriber should abbreviate.
	if err := AppendAddress(encodeCtx, buf, other); err != nil {
		t.Fatalf("append other again: %v", err)
	}

	r := NewReader(buf.Bytes())
	decodeCtx := NewDecodeContext(sender.SID)

	got, err := ParseAddress(decodeCtx, r, dir)
	if err != nil || got != sender {
		t.Fatalf("expected sender, got %v err %v", got, err)
	}

	got, err = ParseAddress(decodeCtx, r, dir)
	if err != nil || got != other {
		t.Fatalf("expected other (full), got %v err %v", got, err)
	}

	got, err = ParseAddress(decodeCtx, r, dir)
	if err != nil || got != other {
		t.Fatalf("expected other (abbreviated), got %v err %v", got, err)
	}
}

func TestAddressUnknownAbbreviation(t *testing.T) {
	sender := &Subscriber{SID: sidFor(1)}
	dir := &testDirectory{subs: map[SID]*Subscriber{sender.SID: sender}}

	ctx := NewDecodeContext(sender.SID)
	r := &testReaderBytes{data: []byte{byte(addrAbbrev), 5}}

	_, err := ParseAddress(ctx, r, dir)
	if err != ErrParseUnknownAddress {
		t.Fatalf("expected ErrParseUnknownAddress, got %v", err)
	}
	if !ctx.InvalidAddresses {
		t.Fatalf("expected InvalidAddresses to be set")
	}
}

type testReaderBytes struct {
	data []byte
	pos  int
}

func (r *testReaderBytes) readByte() (byte, bool) {
	if r.pos >= len(r.data) {
		return 0, false
	}
	b := r.data[r.pos]
	r.pos++
	return b, true
}

func (r *testReaderBytes) readBytes(n int) ([]byte, bool) {
	if len(r.data)-r.pos < n {
		return nil, false
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out, true
}
