// SPDX-FileCopyrightText: © 2024 Vortex Studio.
// SPDX-License-Identifier: BSD-2-Clause

package vortex

import (
	"testing"
)

// check that handle ids are properly allocated.
func TestHandleIDs(t *testing.T) {
	t.Run("zero is not a valid handle", func(t *testing.T) {
		a := &handleArena{}
		if a.valid(0) {
			t.Errorf("expecting invalid for unallocated handle")
		}
		if a.valid(1) {
			t.Errorf("expecting invalid for unallocated handle")
		}
	})
	t.Run("first valid handle is one", func(t *testing.T) {
		a := &handleArena{}
		if one := a.create(); one != 1 {
			t.Errorf("expecting first hID to be 1")
		}
	})
	t.Run("removed handles are not valid", func(t *testing.T) {
		a := &handleArena{}
		one := a.create()
		if !a.valid(one) {
			t.Errorf("expected valid idx:%d gen:%d", one.index(), one.generation())
		}
		a.remove(one)
		if a.valid(one) {
			t.Errorf("expected invalid idx:%d gen:%d", one.index(), one.generation())
		}
	})
	t.Run("allocate all handles", func(t *testing.T) {
		a := &handleArena{}
		for cnt := 1; cnt < maxNodeIdx; cnt++ {
			if id := a.create(); int(id) != cnt {
				t.Errorf("expecting initial handles to be allocated sequentially.")
			}
		}

		// check that allocating one more than max returns zero.
		if id := a.create(); id != 0 {
			t.Errorf("expecting to have exhausted node handles")
		}
	})
	t.Run("allocate more than max using remove", func(t *testing.T) {
		a := &handleArena{}
		for cnt := 1; cnt < maxNodeIdx; cnt++ {
			a.create() // create max handles.
		}
		// should have allocated maxNodeIdx-1 at this point

		// remove 2*reuseAt handles. Check that the free list can grow
		// larger than the amount that triggers reuse.
		for cnt := 1; cnt <= 2*reuseAt; cnt++ {
			a.remove(hID(cnt)) // should not crash.
		}
		if len(a.free) != 2*reuseAt {
			t.Errorf("expected freelist %d to be %d", len(a.free), 2*reuseAt)
		}

		// should be able to reuse the removed 2*reuseAt handles.
		for cnt := 0; cnt < 2*reuseAt; cnt++ {
			h := a.create()
			if h == 0 {
				t.Errorf("expecting to reuse removed node handles")
			}
		}

		// check that one more than max is caught.
		if h := a.create(); h != 0 {
			t.Errorf("expecting to have re-exhausted node handles")
		}
	})
}

// Tests
// =============================================================================
// Benchmarks.

// go test -bench=.
// Hammer handles by creating and removing as fast as possible.
func BenchmarkCreateRemove(b *testing.B) {
	a := &handleArena{}
	var h hID
	for cnt := 0; cnt < b.N; cnt++ {
		h = a.create()
		a.remove(h)
	}
}
