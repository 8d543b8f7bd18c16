// Copyright © 2024 Vortex Studio.

package vortex

import "testing"

type fakeOutputController struct {
	lastBase PTSTick
}

func (f *fakeOutputController) SetBasePTS(pts PTSTick) { f.lastBase = pts }

func newTestHandle(idx uint32) Handle {
	return Handle{idx: hID(idx)}
}

func TestSchedulerAddAndRemoveOutput(t *testing.T) {
	sched := NewScheduler(NewPTSClock(nil))
	ctrl := &fakeOutputController{}
	out := newTestHandle(1)

	sched.AddOutput(out, NewRational(30, 1), ctrl)
	if sched.heap.Len() != 1 {
		t.Fatalf("expected 1 scheduled output, got %d", sched.heap.Len())
	}

	sched.RemoveOutput(out)
	if sched.heap.Len() != 0 {
		t.Fatalf("expected 0 scheduled outputs after remove, got %d", sched.heap.Len())
	}

	// removing an unregistered output is a no-op, not a panic.
	sched.RemoveOutput(newTestHandle(99))
}

func TestSchedulerGetNextReadyOutputEmpty(t *testing.T) {
	sched := NewScheduler(NewPTSClock(nil))
	if _, _, ok := sched.GetNextReadyOutput(); ok {
		t.Errorf("expected no ready output on an empty scheduler")
	}
}

func TestSchedulerPlayResetsEveryOutputToNow(t *testing.T) {
	sched := NewScheduler(NewPTSClock(nil))
	ctrl30 := &fakeOutputController{}
	ctrl60 := &fakeOutputController{}
	out30 := newTestHandle(1)
	out60 := newTestHandle(2)

	sched.AddOutput(out30, NewRational(30, 1), ctrl30)
	sched.AddOutput(out60, NewRational(60, 1), ctrl60)
	sched.Play()

	for _, entry := range sched.heap {
		if entry.frameNum != 0 {
			t.Errorf("expected frame counter reset to 0 after Play, got %d", entry.frameNum)
		}
		if entry.next != entry.base {
			t.Errorf("expected next == base right after Play")
		}
	}
	if ctrl30.lastBase < 0 || ctrl60.lastBase < 0 {
		t.Errorf("expected Play to propagate a non-negative base PTS to every controller")
	}
}

// Immediately after Play, the master clock and every output's frame grid
// start at the same instant, so the first GetNextReadyOutput call must find
// an output due within the epsilon window (spec 4.G).
func TestSchedulerFirstTickAfterPlayIsDue(t *testing.T) {
	sched := NewScheduler(NewPTSClock(nil))
	ctrl := &fakeOutputController{}
	out := newTestHandle(1)
	sched.AddOutput(out, NewRational(30, 1), ctrl)
	sched.Play()

	got, pts, ok := sched.GetNextReadyOutput()
	if !ok {
		t.Fatalf("expected the sole registered output to be due right after Play")
	}
	if got != out {
		t.Errorf("expected %v to be due, got %v", out, got)
	}
	if pts < 0 {
		t.Errorf("expected a non-negative due pts, got %d", pts)
	}

	entry := sched.byHandle[out]
	if entry.frameNum != 1 {
		t.Errorf("expected GetNextReadyOutput to advance the frame counter, got %d", entry.frameNum)
	}
}

func TestSchedulerDropsOutputsFarBehindMasterClock(t *testing.T) {
	sched := NewScheduler(NewPTSClock(nil))
	ctrl := &fakeOutputController{}
	out := newTestHandle(1)
	sched.AddOutput(out, NewRational(30, 1), ctrl)
	sched.Play()

	entry := sched.byHandle[out]
	tpf := TicksPerFrame(NewRational(30, 1))
	// Push the output many frames behind without touching upperBoundary,
	// forcing the drop-frame branch inside getNextReadyOutput to fire and
	// recurse until it catches back up to due.
	entry.base -= tpf * 10
	entry.next -= tpf * 10

	got, _, ok := sched.getNextReadyOutput(sched.clock.Current())
	if !ok {
		t.Fatalf("expected the scheduler to recover a ready output after dropping stale frames")
	}
	if got != out {
		t.Errorf("expected %v, got %v", out, got)
	}
	if entry.frameNum <= 1 {
		t.Errorf("expected multiple dropped frames to advance the frame counter past 1, got %d", entry.frameNum)
	}
}
