// Copyright © 2024 Vortex Studio.

package vortex

import (
	"github.com/vortexstudio/vortex/gpu"
	"github.com/vortexstudio/vortex/internal/errcode"
	"github.com/vortexstudio/vortex/metrics"
)

// texturepool.go implements the per-output transient render-target pool of
// spec 4.H: a small set of per-frame-in-flight slots, each a growable list
// of texture entries stamped with a generation and a depth, so a child
// node never reuses the exact transient its parent is currently writing.

// poolEntry is one texture the pool owns, along with its current lease
// state.
type poolEntry struct {
	texture    gpu.Texture
	inUse      bool
	generation uint32
	depth      int
}

type frameSlot struct {
	entries []*poolEntry
}

// TexturePool hands out transient render targets for one output. It is
// owned by that output and cycled once per frame via SwapFrame.
type TexturePool struct {
	gfx        gpu.Device
	desc       gpu.TextureDesc
	slots      []frameSlot
	current    int
	genCounter uint32
}

// NewTexturePool creates a pool with maxFramesInFlight slots (spec 4.H:
// normally 2), each lazily populated as AcquireTexture needs more entries.
func NewTexturePool(gfx gpu.Device, desc gpu.TextureDesc, maxFramesInFlight int) *TexturePool {
	return &TexturePool{
		gfx:   gfx,
		desc:  desc,
		slots: make([]frameSlot, maxFramesInFlight),
	}
}

// TextureLease is the RAII-style guard AcquireTexture returns: Release
// clears the entry's in_use flag so it can be reused by a later acquire in
// the same or a later frame.
type TextureLease struct {
	entry *poolEntry
}

// Texture returns the leased GPU texture.
func (l *TextureLease) Texture() gpu.Texture { return l.entry.texture }

// Generation returns the stamp assigned at acquisition time, to be forwarded
// as the child's forbidden-generation argument.
func (l *TextureLease) Generation() uint32 { return l.entry.generation }

// Release clears the lease's in-use flag. Safe to call once; the entry
// simply becomes available to a future AcquireTexture call.
func (l *TextureLease) Release() {
	if !l.entry.inUse {
		return
	}
	l.entry.inUse = false
	metrics.TexturePoolInUse.Dec()
}

// AcquireTexture scans the current slot's entries for the first one that is
// not in use and whose (generation, depth) pair does not collide with the
// forbidden generation at the same depth (spec 4.H): a match is acceptable
// if its generation differs from forbiddenGeneration, or if it belongs to a
// different depth (so the same physical texture can be legitimately reused
// at a different nesting level). If no entry qualifies, a new one is
// allocated and appended.
func (p *TexturePool) AcquireTexture(depth int, forbiddenGeneration uint32) (*TextureLease, error) {
	slot := &p.slots[p.current]
	for _, e := range slot.entries {
		if e.inUse {
			continue
		}
		if e.generation != forbiddenGeneration || e.depth != depth {
			p.stamp(e, depth)
			return &TextureLease{entry: e}, nil
		}
	}
	tex, err := p.gfx.CreateTexture(p.desc)
	if err != nil {
		return nil, errcode.NewResourceError("texturepool.acquire", err)
	}
	e := &poolEntry{texture: tex}
	p.stamp(e, depth)
	slot.entries = append(slot.entries, e)
	metrics.TexturePoolCapacity.Inc()
	return &TextureLease{entry: e}, nil
}

func (p *TexturePool) stamp(e *poolEntry, depth int) {
	e.inUse = true
	e.depth = depth
	p.genCounter++
	e.generation = p.genCounter
	metrics.TexturePoolInUse.Inc()
}

// SwapFrame advances the current slot pointer cyclically, exposing the
// next frame-in-flight's texture set to future AcquireTexture calls.
func (p *TexturePool) SwapFrame() {
	p.current = (p.current + 1) % len(p.slots)
}
