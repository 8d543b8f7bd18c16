// Copyright © 2024 Vortex Studio.

package vortex

import (
	"testing"
	"time"
)

func TestTicksPerFrame(t *testing.T) {
	if tpf := TicksPerFrame(NewRational(30, 1)); tpf != PTSHz/30 {
		t.Errorf("expected %d ticks per frame at 30fps, got %d", PTSHz/30, tpf)
	}
	if tpf := TicksPerFrame(NewRational(60, 1)); tpf != PTSHz/60 {
		t.Errorf("expected %d ticks per frame at 60fps, got %d", PTSHz/60, tpf)
	}
}

func TestPTSClockToWallFromWallRoundTrip(t *testing.T) {
	clock := NewPTSClock(nil)
	d := 500 * time.Millisecond
	pts := clock.FromWall(d)
	back := clock.ToWall(pts)
	// 90kHz ticks can't represent nanoseconds exactly; allow a small delta.
	delta := back - d
	if delta < 0 {
		delta = -delta
	}
	if delta > time.Microsecond*20 {
		t.Errorf("round trip drifted too far: started %v, got back %v", d, back)
	}
}

func TestRoundToFrame(t *testing.T) {
	rate := NewRational(30, 1)
	tpf := TicksPerFrame(rate)

	if got := RoundToFrame(0, rate); got != 0 {
		t.Errorf("expected 0 to round to 0, got %d", got)
	}
	if got := RoundToFrame(tpf-1, rate); got != tpf {
		t.Errorf("expected %d to round up to %d, got %d", tpf-1, tpf, got)
	}
	if got := RoundToFrame(tpf/4, rate); got != 0 {
		t.Errorf("expected %d to round down to 0, got %d", tpf/4, got)
	}
}

func TestPTSClockResetStartsNearZero(t *testing.T) {
	clock := NewPTSClock(nil)
	time.Sleep(2 * time.Millisecond)
	clock.Reset()
	if cur := clock.Current(); cur > PTSHz/10 {
		t.Errorf("expected PTS near zero right after Reset, got %d", cur)
	}
}
