package blizzard

import (
	"bytes"
	"testing"
)

func TestStreamBufferReassembly(t *testing.T) {
	b := newStreamBuffer(0)
	if err := b.append(9, []byte{0xDE, 0xAD}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := b.append(9, []byte{0xBE, 0xEF}); err != nil {
		t.Fatalf("append: %v", err)
	}

	data, ok := b.complete(9)
	if !ok {
		t.Fatal("expected stream present at complete")
	}
	if !bytes.Equal(data, []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Fatalf("reassembled data = % x, want deadbeef", data)
	}

	if _, ok := b.complete(9); ok {
		t.Fatal("second complete for the same id must report ok=false")
	}
}

func TestStreamBufferUnknownStream(t *testing.T) {
	b := newStreamBuffer(0)
	if _, ok := b.complete(42); ok {
		t.Fatal("complete on a stream with no chunks must report ok=false")
	}
}

func TestStreamBufferTooLarge(t *testing.T) {
	b := newStreamBuffer(4)
	if err := b.append(1, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("append at cap: %v", err)
	}
	if err := b.append(1, []byte{5}); err != ErrBufferTooLarge {
		t.Fatalf("append past cap: got %v, want ErrBufferTooLarge", err)
	}
	if _, ok := b.complete(1); ok {
		t.Fatal("an over-cap stream must be discarded, not completed")
	}
}
