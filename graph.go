// Copyright © 2024 Vortex Studio.

package vortex

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vortexstudio/vortex/gpu"
	"github.com/vortexstudio/vortex/internal/errcode"
	"github.com/vortexstudio/vortex/metrics"
)

// graph.go implements the mutable node graph of spec 4.F: node lifecycle,
// connection validation with cycle rejection (Design Notes), dirty
// tracking, and the per-tick traversal entry point that hands off to the
// scheduler, the render traversal, and the animation manager.

// Graph owns every node, keyed by the generational Handle allocated from
// handleArena (Design Notes: replace pointer-as-handle identity with a
// generational index).
type Graph struct {
	factory *NodeFactory
	gfx     gpu.Device
	log     zerolog.Logger

	handles handleArena
	nodes   map[hID]Node
	outputs []Handle

	connections map[Connection]struct{}
	dirty       map[Handle]struct{}

	anim  *AnimationManager
	sched *Scheduler

	changeCallback func(node Handle, index int, serialized string)
}

// SetChangeCallback installs the function bound to every node's Notifier
// at creation time — the graph-wide property-change sink a UI bridge reads
// from (spec 4.E/4.L: unsolicited NotifyPropertyChange pushes, fired
// synchronously on the caller's goroutine, no correlation id). Nodes
// created before this call keep whatever callback their Notifier already
// had; call it before the first CreateNode to cover every node.
func (g *Graph) SetChangeCallback(cb func(node Handle, index int, serialized string)) {
	g.changeCallback = cb
}

// NewGraph constructs an empty graph bound to factory and gfx, with its
// own animation manager and output scheduler.
func NewGraph(factory *NodeFactory, gfx gpu.Device, clock *PTSClock, log zerolog.Logger) *Graph {
	return &Graph{
		factory:     factory,
		gfx:         gfx,
		log:         log,
		nodes:       make(map[hID]Node),
		connections: make(map[Connection]struct{}),
		dirty:       make(map[Handle]struct{}),
		anim:        NewAnimationManager(),
		sched:       NewScheduler(clock),
	}
}

// Scheduler exposes the graph's output scheduler, e.g. for the driver loop
// to call Play/GetNextReadyOutput directly.
func (g *Graph) Scheduler() *Scheduler { return g.sched }

// Factory exposes the node factory the graph was constructed with, e.g.
// for a UI bridge's GetNodeTypesAsync handler to list registered types.
func (g *Graph) Factory() *NodeFactory { return g.factory }

// UpdateAll calls Update once on every live node (spec 4.E: "Update runs
// at most once per driver tick before any Evaluate"). The driver calls this
// once per tick before Traverse.
func (g *Graph) UpdateAll(gfx gpu.Device) {
	for _, n := range g.nodes {
		n.Update(gfx)
	}
}

// NodeByHandle resolves a live handle to its node. Used by the render
// traversal to follow a sink's SourceNode.
func (g *Graph) NodeByHandle(h Handle) (Node, bool) {
	if !g.handles.valid(h.idx) {
		return nil, false
	}
	n, ok := g.nodes[h.idx]
	return n, ok
}

// outputSchedulerAdapter lets a concrete OutputNode satisfy the scheduler's
// narrow OutputController interface without the scheduler importing Node.
type outputSchedulerAdapter struct {
	node OutputNode
}

func (a outputSchedulerAdapter) SetBasePTS(pts PTSTick) { a.node.SetBasePTS(pts) }

// CreateNode resolves name in the factory, constructs the node with a
// notifier bound to this node's own handle, registers it with the
// scheduler if it is an output, and enqueues an initial update if the
// node's strategy is Static (spec 4.F "Create node").
func (g *Graph) CreateNode(name string, props string) (Handle, error) {
	idx := g.handles.create()
	if idx == 0 {
		return Handle{}, errcode.NewFatalError("graph.createnode", fmt.Errorf("node handle arena exhausted"))
	}
	h := Handle{idx: idx}

	notifier := &Notifier{Node: h, Callback: g.changeCallback}
	n, info, err := g.factory.Create(name, g.gfx, notifier, props)
	if err != nil {
		g.handles.remove(idx)
		g.log.Error().Err(err).Str("type", name).Msg("create node failed")
		return Handle{}, errcode.NewConfigError("graph.createnode", err)
	}
	g.nodes[idx] = n

	if info.Kind == NodeOutput {
		out, ok := n.(OutputNode)
		if !ok {
			g.handles.remove(idx)
			delete(g.nodes, idx)
			return Handle{}, errcode.NewConfigError("graph.createnode", fmt.Errorf("node type %q declared as output but does not implement OutputNode", name))
		}
		g.sched.AddOutput(h, out.OutputFPS(), outputSchedulerAdapter{node: out})
		g.outputs = append(g.outputs, h)
	}

	if n.EvaluationStrategy() == EvalStatic {
		g.dirty[h] = struct{}{}
	}
	metrics.NodesActive.Inc()
	return h, nil
}

// RemoveNode tears down every incident connection (rebinding the opposing
// half of each), removes the node from the outputs list and scheduler if
// applicable, clears it from the dirty set, and releases its handle.
func (g *Graph) RemoveNode(h Handle) {
	n, ok := g.NodeByHandle(h)
	if !ok {
		return
	}

	for conn := range g.connections {
		if conn.FromNode == h {
			g.clearSinkSource(conn.ToNode, conn.ToIndex)
			delete(g.connections, conn)
		} else if conn.ToNode == h {
			g.removeSourceTarget(conn.FromNode, conn.FromIndex, conn.ToNode, conn.ToIndex)
			delete(g.connections, conn)
		}
	}

	if _, isOutput := n.(OutputNode); isOutput {
		g.sched.RemoveOutput(h)
		for i, o := range g.outputs {
			if o == h {
				g.outputs = append(g.outputs[:i], g.outputs[i+1:]...)
				break
			}
		}
	}

	delete(g.dirty, h)
	delete(g.nodes, h.idx)
	g.handles.remove(h.idx)
	metrics.NodesActive.Dec()
}

func (g *Graph) clearSinkSource(nodeH Handle, sinkIdx int) {
	n, ok := g.NodeByHandle(nodeH)
	if !ok {
		return
	}
	sinks := n.Sinks()
	if sinkIdx < 0 || sinkIdx >= len(sinks) {
		return
	}
	sinks[sinkIdx].connected = false
	sinks[sinkIdx].SourceNode = Handle{}
	sinks[sinkIdx].SourceIndex = 0
}

func (g *Graph) removeSourceTarget(nodeH Handle, sourceIdx int, sinkNode Handle, sinkIdx int) {
	n, ok := g.NodeByHandle(nodeH)
	if !ok {
		return
	}
	sources := n.Sources()
	if sourceIdx < 0 || sourceIdx >= len(sources) {
		return
	}
	delete(sources[sourceIdx].Targets, SourceTarget{SinkNode: sinkNode, SinkIndex: sinkIdx})
}

// reachable performs a bounded DFS from `from` over existing connections,
// following each visited node's connected sinks back to their sources,
// looking for `target`. This is the Design Notes' required cyclic-
// reachability check: before adding edge (from -> to), Connect asks
// reachable(from, to) — if from already (transitively) depends on to,
// adding the new edge would close a cycle.
func (g *Graph) reachable(from, target Handle) bool {
	visited := make(map[Handle]bool)
	return g.reachableDFS(from, target, visited)
}

func (g *Graph) reachableDFS(from, target Handle, visited map[Handle]bool) bool {
	if visited[from] {
		return false
	}
	visited[from] = true
	n, ok := g.NodeByHandle(from)
	if !ok {
		return false
	}
	for _, sink := range n.Sinks() {
		if !sink.Connected() {
			continue
		}
		if sink.SourceNode == target {
			return true
		}
		if g.reachableDFS(sink.SourceNode, target, visited) {
			return true
		}
	}
	return false
}

// Connect implements spec 4.F "Connect (F,fi,T,ti)".
func (g *Graph) Connect(from Handle, fromIndex int, to Handle, toIndex int) (bool, error) {
	fromNode, ok := g.NodeByHandle(from)
	if !ok {
		return false, errcode.NewConfigError("graph.connect", fmt.Errorf("unknown from-node"))
	}
	toNode, ok := g.NodeByHandle(to)
	if !ok {
		return false, errcode.NewConfigError("graph.connect", fmt.Errorf("unknown to-node"))
	}
	sources := fromNode.Sources()
	sinks := toNode.Sinks()
	if fromIndex < 0 || fromIndex >= len(sources) {
		return false, errcode.NewConfigError("graph.connect", fmt.Errorf("source index %d out of range", fromIndex))
	}
	if toIndex < 0 || toIndex >= len(sinks) {
		return false, errcode.NewConfigError("graph.connect", fmt.Errorf("sink index %d out of range", toIndex))
	}
	if sources[fromIndex].Kind != sinks[toIndex].Kind {
		g.log.Error().Str("op", "graph.connect").Msg("incompatible port kinds")
		return false, errcode.NewConfigError("graph.connect", fmt.Errorf("port kind mismatch: source %v, sink %v", sources[fromIndex].Kind, sinks[toIndex].Kind))
	}

	// Cyclic reachability (Design Notes): reject if `to` already feeds
	// `from` through existing connections.
	if g.reachable(from, to) {
		g.log.Error().Str("op", "graph.connect").Msg("connection would create a cycle")
		return false, errcode.NewConfigError("graph.connect", fmt.Errorf("connection (%v,%d -> %v,%d) would create a cycle", from, fromIndex, to, toIndex))
	}

	newConn := Connection{FromNode: from, FromIndex: fromIndex, ToNode: to, ToIndex: toIndex}
	if _, exists := g.connections[newConn]; exists {
		return false, nil
	}

	if sinks[toIndex].Connected() {
		prevConn := Connection{
			FromNode:  sinks[toIndex].SourceNode,
			FromIndex: sinks[toIndex].SourceIndex,
			ToNode:    to,
			ToIndex:   toIndex,
		}
		delete(g.connections, prevConn)
		g.removeSourceTarget(prevConn.FromNode, prevConn.FromIndex, to, toIndex)
	}

	sinks[toIndex].connected = true
	sinks[toIndex].SourceNode = from
	sinks[toIndex].SourceIndex = fromIndex
	sources[fromIndex].Targets[SourceTarget{SinkNode: to, SinkIndex: toIndex}] = struct{}{}
	g.connections[newConn] = struct{}{}

	if toNode.EvaluationStrategy() == EvalStatic {
		g.dirty[to] = struct{}{}
	}
	return true, nil
}

// Disconnect implements spec 4.F "Disconnect".
func (g *Graph) Disconnect(from Handle, fromIndex int, to Handle, toIndex int) bool {
	conn := Connection{FromNode: from, FromIndex: fromIndex, ToNode: to, ToIndex: toIndex}
	if _, ok := g.connections[conn]; !ok {
		return false
	}
	delete(g.connections, conn)
	g.clearSinkSource(to, toIndex)
	g.removeSourceTarget(from, fromIndex, to, toIndex)

	if toNode, ok := g.NodeByHandle(to); ok && toNode.EvaluationStrategy() == EvalStatic {
		g.dirty[to] = struct{}{}
	}
	return true
}

// SetNodeProperty dispatches to the node's SetProperty and marks Static
// nodes dirty (spec 4.F "Set node property").
func (g *Graph) SetNodeProperty(h Handle, index int, value PropertyValue, notify bool) error {
	n, ok := g.NodeByHandle(h)
	if !ok {
		return errcode.NewConfigError("graph.setproperty", fmt.Errorf("unknown node"))
	}
	if err := n.SetProperty(index, value, notify); err != nil {
		return err
	}
	if n.EvaluationStrategy() == EvalStatic {
		g.dirty[h] = struct{}{}
	}
	return nil
}

// Traverse performs one tick of spec 4.F "Traverse for one tick": poll the
// scheduler, evaluate the due output if any, then run the animation
// manager over the master clock's current PTS.
func (g *Graph) Traverse(probeFactory func(output Handle, pts PTSTick) *RenderProbe) error {
	start := time.Now()
	defer func() { metrics.GraphTraverseDuration.Observe(time.Since(start).Seconds()) }()

	h, pts, ok := g.sched.GetNextReadyOutput()
	if !ok {
		return nil
	}
	n, ok := g.NodeByHandle(h)
	if !ok {
		return nil
	}
	out, ok := n.(OutputNode)
	if !ok {
		return errcode.NewFatalError("graph.traverse", fmt.Errorf("scheduled handle is not an output node"))
	}
	probe := probeFactory(h, pts)
	if _, err := out.EvaluateOutput(probe, pts); err != nil {
		return err
	}
	g.anim.EvaluateAtPTS(g, g.sched.clock.Current())
	return nil
}

// CreateAnimation binds a new clip to node (spec 4.F "Animation API").
func (g *Graph) CreateAnimation(node Handle) Handle {
	return g.anim.CreateClip(node)
}

// AddPropertyTrack resolves name against node's property descriptors and
// creates or reuses a track on clip for that property.
func (g *Graph) AddPropertyTrack(clip Handle, node Handle, name string, keyframesJSON string) error {
	n, ok := g.NodeByHandle(node)
	if !ok {
		return errcode.NewConfigError("graph.addpropertytrack", fmt.Errorf("unknown node"))
	}
	rec, ok := n.(interface{ Descriptors() []PropertyDescriptor })
	if !ok {
		return errcode.NewConfigError("graph.addpropertytrack", fmt.Errorf("node does not expose property descriptors"))
	}
	var found *PropertyDescriptor
	for _, d := range rec.Descriptors() {
		if d.Name == name {
			dCopy := d
			found = &dCopy
			break
		}
	}
	if found == nil {
		return errcode.NewConfigError("graph.addpropertytrack", fmt.Errorf("unknown property %q", name))
	}
	return g.anim.AddPropertyTrack(clip, node, found.Index, found.Kind, name, keyframesJSON)
}

// AddKeyframe adds one keyframe (parsed from its JSON form) to track.
func (g *Graph) AddKeyframe(track Handle, keyframeJSON string) error {
	return g.anim.AddKeyframe(track, keyframeJSON)
}

// RemoveKeyframe removes the keyframe at index from track.
func (g *Graph) RemoveKeyframe(track Handle, index int) error {
	return g.anim.RemoveKeyframe(track, index)
}

// Animation exposes the graph's animation manager, e.g. for Play/Pause
// control from the protocol bridge.
func (g *Graph) Animation() *AnimationManager { return g.anim }
