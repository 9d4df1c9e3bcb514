package buffer

import "testing"

func TestAppendAndLen(t *testing.T) {
	b := New()
	b.AppendByte(0x21)
	b.AppendWord(0x1234)
	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", b.Len())
	}
	want := []byte{0x21, 0x34, 0x12}
	got := b.Bytes()
	if len(got) != len(want) {
		t.Fatalf("Bytes() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Bytes()[%d] = %x, want %x", i, got[i], want[i])
		}
	}
}

func TestAppendWordBE(t *testing.T) {
	b := New()
	b.AppendWordBE(0x1234)
	got := b.Bytes()
	if got[0] != 0x12 || got[1] != 0x34 {
		t.Fatalf("AppendWordBE wrote %x, want 12 34", got)
	}
}

func TestSwapWordHoleChain(t *testing.T) {
	b := New()
	// Simulate a two-node hole chain: head at off0 points to 0 (list end),
	// a second unresolved slot points back to off0. Offset 0 itself is the
	// list end, so the chain starts after a 2-byte leading slot (a page's
	// default-address slot in real output).
	b.Reserve(2)
	off0 := b.Reserve(2)
	off1 := b.Reserve(2)
	b.SwapWord(off1, uint16(off0))

	// Resolve: walk from head=off1 to 0, patching each with final address.
	const resolved = 0x55AA
	head := uint16(off1)
	for head != 0 {
		next := b.SwapWord(int(head), resolved)
		head = next
	}
	if b.WordAt(off0) != resolved {
		t.Fatalf("WordAt(off0) = %x, want %x", b.WordAt(off0), resolved)
	}
	if b.WordAt(off1) != resolved {
		t.Fatalf("WordAt(off1) = %x, want %x", b.WordAt(off1), resolved)
	}
}

func TestSwapDword(t *testing.T) {
	b := New()
	off := b.AppendDword(0)
	old := b.SwapDword(off, 0xDEADBEEF)
	if old != 0 {
		t.Fatalf("old = %x, want 0", old)
	}
	if b.DwordAt(off) != 0xDEADBEEF {
		t.Fatalf("DwordAt = %x, want DEADBEEF", b.DwordAt(off))
	}
}
