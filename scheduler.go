// Copyright © 2024 Vortex Studio.

package vortex

import (
	"container/heap" // for priority queue.
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/vortexstudio/vortex/metrics"
)

// scheduler.go implements the output scheduler of spec 4.G: a min-heap of
// scheduled outputs ordered by next_pts, reconciling each output's own
// frame rate against the single master PTS clock, with epsilon-bounded
// due detection and drop-frame recovery. Modeled on the teacher's own
// container/heap priority queue in ai/astar.go.

// epsilonTicks is spec 4.G's due-window half-width: 200 ticks at 90kHz,
// about 2.2ms.
const epsilonTicks PTSTick = 200

// OutputController is the narrow interface the scheduler needs from an
// output node: just enough to push a new base PTS after a Play() reset.
type OutputController interface {
	SetBasePTS(pts PTSTick)
}

// scheduledOutput tracks one output's frame-grid position: base is the
// PTS at frame_number zero, next is the PTS currently due.
type scheduledOutput struct {
	output     Handle
	controller OutputController
	rate       Rational
	base       PTSTick
	next       PTSTick
	frameNum   int64
	index      int // heap.Interface bookkeeping
}

func (s *scheduledOutput) advance() {
	s.frameNum++
	// Multiply before dividing (spec 4.G): TicksPerFrame(rate)*frameNum
	// floors once per frame and drifts for rates whose frame length is not
	// a whole number of ticks (e.g. 24000/1001); computing the numerator
	// over the full frame count first floors only once, on the total, so
	// the rounding error stays below one tick instead of growing.
	s.next = s.base + (PTSHz*s.rate.Den*s.frameNum)/s.rate.Num
}

// outputHeap is a container/heap.Interface ordered by next_pts.
type outputHeap []*scheduledOutput

func (h outputHeap) Len() int            { return len(h) }
func (h outputHeap) Less(i, j int) bool  { return h[i].next < h[j].next }
func (h outputHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *outputHeap) Push(x any) {
	e := x.(*scheduledOutput)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *outputHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Scheduler reconciles every registered output's frame grid against the
// shared master clock (spec 4.G).
type Scheduler struct {
	clock   *PTSClock
	heap    outputHeap
	byHandle map[Handle]*scheduledOutput
	upperBoundary PTSTick
}

// NewScheduler returns a scheduler driven by clock.
func NewScheduler(clock *PTSClock) *Scheduler {
	return &Scheduler{
		clock:    clock,
		byHandle: make(map[Handle]*scheduledOutput),
	}
}

// AddOutput registers output at rate fps, rounding the current PTS to the
// output's frame boundary to seed base/next (spec 4.G "Add output").
func (s *Scheduler) AddOutput(output Handle, rate Rational, controller OutputController) {
	now := RoundToFrame(s.clock.Current(), rate)
	entry := &scheduledOutput{
		output:     output,
		controller: controller,
		rate:       rate,
		base:       now,
		next:       now,
	}
	s.byHandle[output] = entry
	heap.Push(&s.heap, entry)
	if now > s.upperBoundary {
		s.upperBoundary = now
	}
}

// RemoveOutput unregisters output, if present.
func (s *Scheduler) RemoveOutput(output Handle) {
	entry, ok := s.byHandle[output]
	if !ok {
		return
	}
	delete(s.byHandle, output)
	heap.Remove(&s.heap, entry.index)
}

// Play resets the master clock and every registered output's frame
// counter to start from now, propagating the new base PTS to each
// output's controller (spec 4.G "Play").
func (s *Scheduler) Play() {
	s.clock.Reset()
	now := s.clock.Current()
	for _, entry := range s.heap {
		entry.frameNum = 0
		entry.base = now
		entry.next = now
		entry.controller.SetBasePTS(now)
	}
	heap.Init(&s.heap)
	s.upperBoundary = now
}

// GetNextReadyOutput implements spec 4.G's exact algorithm: catch-up reset
// if the clock ran ahead of every scheduled entry, then pop/inspect/re-heap
// the top entry, recursing through overdue (drop-frame) entries until one
// is due or none are.
func (s *Scheduler) GetNextReadyOutput() (Handle, PTSTick, bool) {
	if s.heap.Len() == 0 {
		return Handle{}, InvalidPTS, false
	}
	now := s.clock.Current()
	if now > s.upperBoundary {
		for _, entry := range s.heap {
			entry.frameNum = 0
			entry.base = now
			entry.next = now
		}
		s.upperBoundary = now
	}
	return s.getNextReadyOutput(now)
}

func (s *Scheduler) getNextReadyOutput(now PTSTick) (Handle, PTSTick, bool) {
	if s.heap.Len() == 0 {
		return Handle{}, InvalidPTS, false
	}
	entry := s.heap[0]
	diff := entry.next - now

	if diff < -epsilonTicks {
		due := entry.next
		entry.advance()
		heap.Fix(&s.heap, entry.index)
		if entry.next > s.upperBoundary {
			s.upperBoundary = entry.next
		}
		log.Warn().
			Uint32("output_index", entry.output.idx.index()).
			Int64("pts", due).
			Msg("dropped frame: output fell behind master clock")
		outputLabel := strconv.FormatUint(uint64(entry.output.idx.index()), 10)
		metrics.DroppedFramesTotal.WithLabelValues("scheduler", outputLabel, "behind_master_clock").Inc()
		return s.getNextReadyOutput(now)
	}

	if diff <= epsilonTicks {
		due := entry.next
		entry.advance()
		heap.Fix(&s.heap, entry.index)
		if entry.next > s.upperBoundary {
			s.upperBoundary = entry.next
		}
		outputLabel := strconv.FormatUint(uint64(entry.output.idx.index()), 10)
		metrics.SchedulerTickLatency.WithLabelValues(outputLabel).Observe(s.clock.ToWall(now - due).Seconds())
		return entry.output, due, true
	}

	return Handle{}, InvalidPTS, false
}
