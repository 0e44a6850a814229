package link

import "testing"

func byteSliceEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i, v := range a {
		if v != b[i] {
			return false
		}
	}
	return true
}

func TestBufferAppendAndLimit(t *testing.T) {
	b := NewBuffer(4)
	b.LimitSize(4)

	if err := b.AppendByte(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.AppendU16BE(0x0203); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := b.AppendU16BE(0x0405); err != ErrBufferFull {
		t.Fatalf("expected ErrBufferFull, got %v", err)
	}

	if !byteSliceEqual(b.Bytes(), []byte{1, 2, 3}) {
		t.Fatalf("unexpected contents after failed append: %v", b.Bytes())
	}
}

func TestBufferCheckpointRewind(t *testing.T) {
	b := NewBuffer(16)

	if err := b.AppendByte(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b.Checkpoint()

	if err := b.AppendByte(2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.AppendByte(3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b.Rewind()

	if !byteSliceEqual(b.Bytes(), []byte{1}) {
		t.Fatalf("expected rewind to discard everything since the checkpoint, got %v", b.Bytes())
	}
}

func TestBufferSetBackpatch(t *testing.T) {
	b := NewBuffer(8)

	lengthPos := b.Position()
	if err := b.AppendByte(0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.AppendBytes([]byte{1, 2, 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	end := b.Position()
	if err := b.Set(lengthPos, byte(end-lengthPos)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !byteSliceEqual(b.Bytes(), []byte{4, 1, 2, 3}) {
		t.Fatalf("unexpected contents: %v", b.Bytes())
	}
}
