// Copyright © 2024 Vortex Studio.

package vortex

import (
	"github.com/vortexstudio/vortex/gpu"
)

// traversal.go implements the render probe and forward descriptor of spec
// 4.I, and the shared recursive-pull helper filter nodes (blend, transform,
// color correction) use to acquire a transient and evaluate their upstream
// source. The per-node draw sequencing itself (bind pipeline, suballocate
// table, barriers, begin/end render pass) lives in the node implementations
// in package nodes, which hold the gpu-specific knowledge of how to issue a
// single draw; this file provides only the pool/probe plumbing common to
// all of them.

// AudioBuffer is the accumulation target EvaluateAudio writes into; it is
// intentionally untyped here since audio mixing across sources is an
// explicit non-goal — this is a pass-through buffer reference, not a
// mixer.
type AudioBuffer struct {
	Samples []float32
}

// RenderProbe aggregates everything a node needs to produce one frame's
// work for one output: broker access, the texture pool, the current
// command list, and timing context. Graph.Traverse constructs one probe
// per output per tick and passes it down through the recursive Evaluate
// calls.
type RenderProbe struct {
	Graph         *Graph
	Descriptors   *DescriptorBroker
	Pool          *TexturePool
	CmdList       gpu.CommandList
	FrameInFlight int
	OutputRate    Rational
	CurrentPTS    PTSTick
	OutputBasePTS PTSTick
	Audio         *AudioBuffer
}

// ForwardDescriptor is handed from a parent to a child: it names the
// render target the child must render into, plus the generation stamp
// that must not be reacquired at the same depth (spec glossary:
// Generation, Depth).
type ForwardDescriptor struct {
	Target        gpu.ResourceView
	Width, Height int
	PoolSlotIndex int // -1 sentinel: the output's own swapchain image.
	Generation    uint32
	Depth         int
}

// SwapchainSlot is the PoolSlotIndex sentinel meaning "not a pool texture,
// the output's swapchain image".
const SwapchainSlot = -1

// AcquireUpstream is the traversal-contract step 2 helper (spec 4.I):
// acquire a transient texture sized to match the current forward target,
// build the child's forward descriptor, and recursively evaluate the
// node connected to sink. It returns the lease (which the caller must
// Release once its transient's content has been consumed), whether the
// upstream call produced content, and any error.
func AcquireUpstream(probe *RenderProbe, sink Sink, depth int, current *ForwardDescriptor) (*TextureLease, bool, error) {
	if !sink.Connected() {
		return nil, false, nil
	}
	lease, err := probe.Pool.AcquireTexture(depth, current.Generation)
	if err != nil {
		return nil, false, err
	}
	child := &ForwardDescriptor{
		Target:        lease.Texture().RenderTargetView(),
		Width:         current.Width,
		Height:        current.Height,
		PoolSlotIndex: 0,
		Generation:    lease.Generation(),
		Depth:         depth,
	}
	upstream, ok := probe.Graph.NodeByHandle(sink.SourceNode)
	if !ok {
		lease.Release()
		return nil, false, nil
	}
	probe.CmdList.ResourceBarrier(lease.Texture(), gpu.StatePresent, gpu.StateRenderTarget)
	ok2, err := upstream.Evaluate(probe, child)
	if err != nil {
		lease.Release()
		return nil, false, err
	}
	if !ok2 {
		lease.Release()
		return nil, false, nil
	}
	probe.CmdList.ResourceBarrier(lease.Texture(), gpu.StateRenderTarget, gpu.StateShaderResource)
	return lease, true, nil
}
