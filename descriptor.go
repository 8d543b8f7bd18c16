// Copyright © 2024 Vortex Studio.

package vortex

import (
	"github.com/vortexstudio/vortex/gpu"
	"github.com/vortexstudio/vortex/internal/errcode"
	"github.com/vortexstudio/vortex/metrics"
)

// descriptor.go implements the descriptor/sampler sub-allocators of spec
// 4.H: each holds one buffer sized for a fixed batch of descriptors across
// every frame-in-flight, linearly suballocated within the current frame's
// slice and reset at NextFrame.

func alignUp(v, alignment int) int {
	if alignment <= 1 {
		return v
	}
	return (v + alignment - 1) / alignment * alignment
}

type subAllocator struct {
	descSize       int
	alignment      int
	batch          int
	frames         int
	perBatchStride int
	bufferSize     int
	frameIndex     int
	nextOffset     int
}

func newSubAllocator(descSize, batch, frames, alignment int) *subAllocator {
	perBatchStride := alignUp(batch*descSize, alignment)
	return &subAllocator{
		descSize:       descSize,
		alignment:      alignment,
		batch:          batch,
		frames:         frames,
		perBatchStride: perBatchStride,
		bufferSize:     alignUp(perBatchStride*frames, alignment),
	}
}

// suballocate reserves n contiguous descriptors within the current frame's
// slice, returning the absolute offset (including the frame's stride
// offset) or an error if the batch is exhausted for this frame.
func (a *subAllocator) suballocate(n int) (int, error) {
	need := n * a.descSize
	if a.nextOffset+need > a.perBatchStride {
		metrics.DescriptorTableExhaustionsTotal.Inc()
		return 0, errcode.NewResourceError("descriptorbroker.suballocate", nil)
	}
	offset := a.frameIndex*a.perBatchStride + a.nextOffset
	a.nextOffset += need
	return offset, nil
}

func (a *subAllocator) nextFrame() {
	a.frameIndex = (a.frameIndex + 1) % a.frames
	a.nextOffset = 0
}

// DescriptorBroker owns the descriptor and sampler sub-allocators for one
// output and hands out DescriptorTables for each draw's resource bindings.
type DescriptorBroker struct {
	gfx      gpu.Device
	desc     *subAllocator
	sampler  *subAllocator
}

// DescriptorBrokerConfig sizes the backing buffers: batch descriptors per
// table, frames in flight, and the backend's required alignment.
type DescriptorBrokerConfig struct {
	DescSize      int
	SamplerSize   int
	Batch         int
	Frames        int
	Alignment     int
}

// NewDescriptorBroker builds a broker sized per cfg.
func NewDescriptorBroker(gfx gpu.Device, cfg DescriptorBrokerConfig) *DescriptorBroker {
	return &DescriptorBroker{
		gfx:     gfx,
		desc:    newSubAllocator(cfg.DescSize, cfg.Batch, cfg.Frames, cfg.Alignment),
		sampler: newSubAllocator(cfg.SamplerSize, cfg.Batch, cfg.Frames, cfg.Alignment),
	}
}

// NextFrame advances both sub-allocators to the next frame-in-flight slice.
func (b *DescriptorBroker) NextFrame() {
	b.desc.nextFrame()
	b.sampler.nextFrame()
}

// DescriptorTable addresses n contiguous descriptors (and samplers) within
// the broker's current frame slice.
type DescriptorTable struct {
	gpuTable      gpu.DescriptorTable
	descOffset    int
	samplerOffset int
	count         int
}

// SuballocateTable reserves n descriptor and n sampler slots for one draw.
func (b *DescriptorBroker) SuballocateTable(n int) (*DescriptorTable, error) {
	descOff, err := b.desc.suballocate(n)
	if err != nil {
		return nil, err
	}
	samplerOff, err := b.sampler.suballocate(n)
	if err != nil {
		return nil, err
	}
	gt, err := b.gfx.CreateDescriptorTable(n)
	if err != nil {
		return nil, errcode.NewResourceError("descriptorbroker.createtable", err)
	}
	return &DescriptorTable{gpuTable: gt, descOffset: descOff, samplerOffset: samplerOff, count: n}, nil
}

// WriteTexture writes a shader-resource view into slot of this table.
func (t *DescriptorTable) WriteTexture(slot int, srv gpu.ResourceView) {
	t.gpuTable.WriteTexture(slot, srv)
}

// WriteSampler writes a sampler view into slot of this table.
func (t *DescriptorTable) WriteSampler(slot int, sampler gpu.ResourceView) {
	t.gpuTable.WriteSampler(slot, sampler)
}

// BindOffset binds this table's descriptor range at rootIndex on a graphics
// command list.
func (t *DescriptorTable) BindOffset(cmd gpu.CommandList, rootIndex int) {
	t.gpuTable.BindOffset(cmd, rootIndex)
}

// BindComputeOffset binds this table's descriptor range at rootIndex on a
// compute dispatch.
func (t *DescriptorTable) BindComputeOffset(cmd gpu.CommandList, rootIndex int) {
	t.gpuTable.BindComputeOffset(cmd, rootIndex)
}
