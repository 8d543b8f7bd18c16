// Copyright © 2024 Vortex Studio.

package ring

import "testing"

func TestByteRingWriteReadRoundTrip(t *testing.T) {
	r := NewByteRing(16)
	if got := r.Capacity(); got != 64 {
		t.Errorf("expected minimum capacity 64, got %d", got)
	}

	in := []byte("hello world")
	if n := r.Write(in); n != len(in) {
		t.Errorf("expected Write to consume the whole span, got %d", n)
	}
	if r.Size() != len(in) {
		t.Errorf("expected size %d, got %d", len(in), r.Size())
	}

	out := make([]byte, len(in))
	if n := r.Read(out); n != len(in) {
		t.Fatalf("expected to read back %d bytes, got %d", len(in), n)
	}
	if string(out) != string(in) {
		t.Errorf("expected %q, got %q", in, out)
	}
	if r.Size() != 0 {
		t.Errorf("expected ring to be empty after reading everything, got size %d", r.Size())
	}
}

func TestByteRingWrapsAroundBuffer(t *testing.T) {
	r := NewByteRing(64)
	// Write and drain repeatedly so read/write cursors wrap past the end
	// of the backing array at least once.
	chunk := make([]byte, 40)
	for i := range chunk {
		chunk[i] = byte(i)
	}
	for i := 0; i < 5; i++ {
		r.Write(chunk)
		out := make([]byte, len(chunk))
		r.Read(out)
		for j := range chunk {
			if out[j] != chunk[j] {
				t.Fatalf("iteration %d: byte %d mismatch: got %d want %d", i, j, out[j], chunk[j])
			}
		}
	}
}

func TestByteRingGrowsWhenOverCapacity(t *testing.T) {
	r := NewByteRing(64)
	big := make([]byte, 200)
	r.Write(big)
	if r.Capacity() < 200 {
		t.Errorf("expected ring to grow to fit 200 bytes, capacity is %d", r.Capacity())
	}
	if r.Size() != 200 {
		t.Errorf("expected size 200 after growth, got %d", r.Size())
	}
}

func TestByteRingPeekDoesNotAdvance(t *testing.T) {
	r := NewByteRing(64)
	r.Write([]byte("abc"))
	out := make([]byte, 3)
	r.Peek(out)
	if r.Size() != 3 {
		t.Errorf("expected Peek not to consume buffered bytes, size is %d", r.Size())
	}
	r.Skip(3)
	if r.Size() != 0 {
		t.Errorf("expected Skip to advance past the peeked bytes, size is %d", r.Size())
	}
}

func TestByteRingReadAsWriteAsRoundTrip(t *testing.T) {
	r := NewByteRing(64)
	WriteAs[uint32](r, 0xdeadbeef)
	v, ok := ReadAs[uint32](r)
	if !ok {
		t.Fatalf("expected ReadAs to succeed with a buffered sample")
	}
	if v != 0xdeadbeef {
		t.Errorf("expected 0xdeadbeef, got %#x", v)
	}

	if _, ok := ReadAs[uint32](r); ok {
		t.Errorf("expected ReadAs to report false on an empty ring")
	}
}

func TestSPSCQueueTryPushPop(t *testing.T) {
	q := NewSPSCQueue[int](4)
	if q.Cap() != 4 {
		t.Errorf("expected capacity 4, got %d", q.Cap())
	}
	for i := 0; i < 4; i++ {
		if !q.TryPush(i) {
			t.Fatalf("expected TryPush %d to succeed", i)
		}
	}
	if q.TryPush(4) {
		t.Errorf("expected TryPush to fail once the queue is full")
	}
	for i := 0; i < 4; i++ {
		v, ok := q.TryPop()
		if !ok || v != i {
			t.Fatalf("expected to pop %d, got %d ok=%v", i, v, ok)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Errorf("expected TryPop to fail on an empty queue")
	}
}

func TestSPSCQueueForcePushDropsOldest(t *testing.T) {
	q := NewSPSCQueue[int](2)
	q.TryPush(1)
	q.TryPush(2)
	if dropped := q.ForcePush(3); !dropped {
		t.Errorf("expected ForcePush to report a drop when the queue is full")
	}
	first, ok := q.TryPop()
	if !ok || first != 2 {
		t.Errorf("expected the oldest value (1) to have been dropped, front is %d", first)
	}
	second, ok := q.TryPop()
	if !ok || second != 3 {
		t.Errorf("expected the pushed value 3 next, got %d", second)
	}
}
