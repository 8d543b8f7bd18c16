// Copyright © 2024 Vortex Studio.

package vortex

// handle.go provides unique node identifiers that track graph-owned
// resources. Nodes are referenced by Handle rather than by pointer so that
// a graph can detect use of a stale reference after a node is removed and
// its slot reused: see the disposal note in section 3 of the design notes.

import (
	"github.com/rs/zerolog/log"
)

// Handle is an opaque reference to a node. A Handle remains comparable and
// stable for the life of the node it names; once the node is removed, the
// Handle becomes permanently invalid even if its index slot is recycled for
// a different node.
type Handle struct {
	idx hID // Index and generation, packed.
}

// Valid reports whether h names a live node in g.
func (h Handle) Valid(g *Graph) bool {
	return g.handles.valid(h.idx)
}

// Bits returns the packed (index, generation) value underlying h, for
// transports that can only carry numbers (section 6: "returns handle as a
// double, bit-cast of the pointer" — Go has no pointer identity to
// bit-cast, so the packed handle value stands in for it).
func (h Handle) Bits() uint32 { return uint32(h.idx) }

// HandleFromBits reconstructs a Handle from a value previously returned by
// Bits. The result is only meaningful against the Graph that issued it;
// Valid still performs the generation check against stale/reused indices.
func HandleFromBits(bits uint32) Handle { return Handle{idx: hID(bits)} }

// Handle
// =============================================================================
// hID defines packed node identifiers.

// hID is a node identifier comprised of an index used as a live reference
// to graph-owned node storage and a generation used to detect use of a
// stale handle after the index slot has been recycled. Handle indices are
// expected to be used as array indices for node storage and so do not
// change value over the node's lifetime.
type hID uint32

// Divide the handle bits into an index and a generation. The generation
// bits are used to detect access through a handle whose node has been
// removed and whose slot was reused by a later node.
const idxBits = 20                   // node array index : max 1048575
const genBits = 12                   // node generation  : max    4095
const maxNodeIdx = (1 << idxBits) - 1 // mask and max live nodes.
const maxGen = (1 << genBits) - 1     // mask and max dispose-and-reuse cycles.

// index is the value to be used for array lookups.
func (h hID) index() uint32 { return uint32(h & maxNodeIdx) }

// generation returns the value that tracks if the handle is still live.
func (h hID) generation() uint16 { return uint16((h >> idxBits) & maxGen) }

// handle
// =============================================================================
// handleArena handles the creation and removal of node identifiers. It
// ensures a limited set of unique identifiers usable directly as indices
// into arrays of node data.

// handleArena allocates and recycles hIDs for a Graph's node storage.
type handleArena struct {
	// Starts empty and grows as handles are allocated.
	// Max size is maxNodeIdx.
	generations []uint16 // generation of the node currently at each index.

	// Starts empty and grows as nodes are removed.
	// New handles are allocated from here once reuseAt is reached.
	free []uint32 // indices ready for reuse.
}

// reuseAt starts recycling indices once the amount of removed handles
// exceeds the given size. Delaying reuse makes stale-handle bugs easier to
// catch during development since a freed index is not immediately reissued.
const reuseAt = (1 << (genBits - 1)) // recycling when free exceeds 2048.

// create returns a new handle id starting at 1.
// Returns zero when all node identifiers have been allocated.
func (a *handleArena) create() hID {
	idx := uint32(0)
	if len(a.free) > reuseAt {
		idx = a.free[0]
		a.free = append(a.free[:0], a.free[1:]...)
	} else {
		a.generations = append(a.generations, 0)
		if idx = uint32(len(a.generations)); idx >= maxNodeIdx {

			// indices exhausted if nothing in the free list.
			if len(a.free) == 0 {
				log.Warn().Int("max_nodes", maxNodeIdx+1).Msg("all node handles in use")
				return 0 // graph capacity error to be caught during development.
			}
			idx = a.free[0]
			a.free = append(a.free[:0], a.free[1:]...)
		}
	}
	return hID(idx | uint32(a.generations[idx-1])<<idxBits)
}

// valid handles are those that have been created and not yet removed.
func (a *handleArena) valid(h hID) bool {
	idx := h.index()
	if idx == 0 {
		return false // index zero is never valid - used to track max allocations.
	}
	if idx > uint32(len(a.generations)) {
		return false
	}
	return a.generations[idx-1] == h.generation()
}

// remove marks a handle as no longer valid. The index is queued for
// reallocation. The index can be reallocated maxGen times before its
// handle value repeats a previously issued handle.
func (a *handleArena) remove(h hID) {
	idx := h.index()
	a.generations[idx-1]++           // mark this index's current generation dead.
	a.free = append(a.free, idx)     // queue it up for reallocation.
}
