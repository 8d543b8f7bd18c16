// Copyright © 2024 Vortex Studio.

package vortex

import "time"

// PTSTick is the master time unit across the scheduler and animation
// system: a 90 kHz presentation timestamp tick, per the MPEG convention.
type PTSTick = int64

// PTSHz is the tick rate of the master clock.
const PTSHz = 90000

// InvalidPTS marks "no value" for a PTS-typed field (e.g. a clip that has
// never played, or a track evaluated with no local time available).
const InvalidPTS PTSTick = -1

// WallClock reports elapsed nanoseconds since a fixed steady-time origin.
// It exists so the rest of the engine never calls time.Now directly and so
// a test can substitute a WallClock with a controlled origin.
type WallClock struct {
	origin time.Time
}

// NewWallClock returns a WallClock whose origin is the current instant.
func NewWallClock() *WallClock {
	return &WallClock{origin: time.Now()}
}

// Reset moves the origin to the current instant.
func (w *WallClock) Reset() {
	w.origin = time.Now()
}

// ElapsedNanos returns nanoseconds elapsed since the origin (or since the
// last Reset).
func (w *WallClock) ElapsedNanos() int64 {
	return time.Since(w.origin).Nanoseconds()
}

// PTSClock wraps a WallClock and derives 90 kHz presentation timestamps
// from it.
type PTSClock struct {
	wall *WallClock
}

// NewPTSClock wraps the given WallClock. A nil clock allocates a fresh one.
func NewPTSClock(wall *WallClock) *PTSClock {
	if wall == nil {
		wall = NewWallClock()
	}
	return &PTSClock{wall: wall}
}

// Reset restarts the underlying wall clock, so Current begins again at 0.
func (c *PTSClock) Reset() {
	c.wall.Reset()
}

// Current returns the current PTS: elapsed_ns * 90000 / 1e9.
func (c *PTSClock) Current() PTSTick {
	return c.wall.ElapsedNanos() * PTSHz / int64(time.Second)
}

// TicksPerFrame returns how many PTS ticks make up one frame at rate R
// (frames per second expressed as a Rational): 90000 * R.Den / R.Num.
func TicksPerFrame(rate Rational) int64 {
	return PTSHz * rate.Den / rate.Num
}

// ToWall converts a PTS value to an equivalent time.Duration since the
// clock's origin.
func (c *PTSClock) ToWall(pts PTSTick) time.Duration {
	return time.Duration(pts * int64(time.Second) / PTSHz)
}

// FromWall converts a time.Duration since the clock's origin to PTS ticks.
func (c *PTSClock) FromWall(d time.Duration) PTSTick {
	return d.Nanoseconds() * PTSHz / int64(time.Second)
}

// RoundToFrame rounds pts to the nearest whole-frame boundary for rate R.
func RoundToFrame(pts PTSTick, rate Rational) PTSTick {
	tpf := TicksPerFrame(rate)
	if tpf <= 0 {
		return pts
	}
	half := tpf / 2
	return ((pts + half) / tpf) * tpf
}
