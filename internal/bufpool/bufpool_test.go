// Copyright © 2024 Vortex Studio.

package bufpool

import "testing"

func TestPoolGetSizesExactly(t *testing.T) {
	p := New()
	for _, size := range []int{10, 4096, 5000, 65536, 1 << 20, 2 << 20} {
		buf := p.Get(size)
		if len(buf) != size {
			t.Errorf("Get(%d): expected length %d, got %d", size, size, len(buf))
		}
	}
}

func TestPoolGetZeroOrNegativeReturnsNil(t *testing.T) {
	p := New()
	if buf := p.Get(0); buf != nil {
		t.Errorf("expected Get(0) to return nil, got %v", buf)
	}
	if buf := p.Get(-1); buf != nil {
		t.Errorf("expected Get(-1) to return nil, got %v", buf)
	}
}

func TestPoolPutReuseClearsContent(t *testing.T) {
	p := New()
	buf := p.Get(4096)
	for i := range buf {
		buf[i] = 0xff
	}
	p.Put(buf)

	reused := p.Get(4096)
	for i, b := range reused {
		if b != 0 {
			t.Fatalf("expected reused buffer to be cleared at index %d, got %#x", i, b)
			break
		}
	}
}

func TestPoolPutDiscardsNonMatchingCapacity(t *testing.T) {
	p := New()
	// A size that falls outside every size class allocates unpooled; Put
	// must not panic trying to return it to a class pool.
	buf := p.Get(3 << 20)
	p.Put(buf)
}

func TestPackageLevelDefaultPool(t *testing.T) {
	buf := Get(4096)
	if len(buf) != 4096 {
		t.Fatalf("expected 4096 bytes from the default pool, got %d", len(buf))
	}
	Put(buf)
}

func TestNilPoolIsSafe(t *testing.T) {
	var p *Pool
	if buf := p.Get(1024); buf != nil {
		t.Errorf("expected a nil Pool's Get to return nil")
	}
	p.Put(make([]byte, 1024)) // must not panic.
}
